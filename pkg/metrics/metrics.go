package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Reconcile outcomes used as the "outcome" label
const (
	OutcomeNoop        = "noop"
	OutcomeApplied     = "applied"
	OutcomeNotReady    = "not_ready"
	OutcomeApplyFailed = "apply_failed"
)

var (
	// Reconciler metrics
	ReconciliationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "norris_reconciliations_total",
			Help: "Total number of reconciliations by outcome",
		},
		[]string{"outcome"},
	)

	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "norris_reconciliation_duration_seconds",
			Help:    "Time taken by one reconciliation in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	LayerAppliesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "norris_layer_applies_total",
			Help: "Total number of layers pushed to the supervisor by service",
		},
		[]string{"service"},
	)

	ServiceStartsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "norris_service_starts_total",
			Help: "Total number of service starts issued by service",
		},
		[]string{"service"},
	)

	ServiceStopsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "norris_service_stops_total",
			Help: "Total number of service stops issued by service",
		},
		[]string{"service"},
	)

	// Ingress metrics
	IngressUpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "norris_ingress_updates_total",
			Help: "Total number of ingress configuration updates by result",
		},
		[]string{"result"},
	)

	// Dispatch metrics
	EventsDispatchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "norris_events_dispatched_total",
			Help: "Total number of dispatched events by kind and result",
		},
		[]string{"event", "result"},
	)

	// Unit metrics
	UnitStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "norris_unit_status",
			Help: "Current unit status (1 for the active status kind, 0 otherwise)",
		},
		[]string{"status"},
	)

	UnitRestarts = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "norris_unit_restarts",
			Help: "Workload restarts caused by plan changes since the unit was created",
		},
	)

	ServiceRunning = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "norris_service_running",
			Help: "Whether each supervised service is running (1 = yes)",
		},
		[]string{"service"},
	)

	SupervisorReachable = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "norris_supervisor_reachable",
			Help: "Whether the process supervisor accepted the last connection (1 = yes)",
		},
	)
)

// statusKinds lists every label value UnitStatus is reset across
var statusKinds = []string{"active", "blocked", "waiting", "maintenance", "unknown"}

func init() {
	// Register all metrics
	prometheus.MustRegister(ReconciliationsTotal)
	prometheus.MustRegister(ReconciliationDuration)
	prometheus.MustRegister(LayerAppliesTotal)
	prometheus.MustRegister(ServiceStartsTotal)
	prometheus.MustRegister(ServiceStopsTotal)
	prometheus.MustRegister(IngressUpdatesTotal)
	prometheus.MustRegister(EventsDispatchedTotal)
	prometheus.MustRegister(UnitStatus)
	prometheus.MustRegister(UnitRestarts)
	prometheus.MustRegister(ServiceRunning)
	prometheus.MustRegister(SupervisorReachable)
}

// SetUnitStatus flips the unit status gauge to the given kind
func SetUnitStatus(kind string) {
	for _, k := range statusKinds {
		if k == kind {
			UnitStatus.WithLabelValues(k).Set(1)
		} else {
			UnitStatus.WithLabelValues(k).Set(0)
		}
	}
}

// SetSupervisorReachable records supervisor reachability
func SetSupervisorReachable(ok bool) {
	if ok {
		SupervisorReachable.Set(1)
		return
	}
	SupervisorReachable.Set(0)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
