package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"reflect"
	"sync"
	"syscall"
	"time"

	"github.com/cuemby/charmed-norris/pkg/api"
	"github.com/cuemby/charmed-norris/pkg/events"
	"github.com/cuemby/charmed-norris/pkg/health"
	"github.com/cuemby/charmed-norris/pkg/log"
	"github.com/cuemby/charmed-norris/pkg/metrics"
	"github.com/cuemby/charmed-norris/pkg/plan"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Health components reported by the agent
const (
	componentSupervisor = "supervisor"
	componentWorkload   = "workload"
	componentCharm      = "charm"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run the operator as a long-lived agent",
	Long: `Agent watches the unit and synthesizes lifecycle events:

  - norris-pebble-ready when the supervisor becomes reachable
  - config-changed when the resolved charm config differs from the last one
    seen (and once on startup)

Deferred events, and a failed norris-pebble-ready, are retried on every
poll until they are handled. The agent
also probes workload health and serves /metrics, /health and /ready, plus
POST /v1/events/{kind} for dispatching events while it holds the state.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		broker := events.NewBroker()
		broker.Start()
		defer broker.Stop()

		op, err := newOperator(settings, broker)
		if err != nil {
			return err
		}
		defer op.Close()

		a := newAgent(op, broker)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		collector := metrics.NewCollector(op.store, op.sup, settings.PollInterval)
		collector.Start()
		defer collector.Stop()

		go a.watchOutcomes(ctx)
		go a.monitor.Run(ctx)

		server := api.NewServer(a, op.charm, a.health)
		errCh := make(chan error, 1)
		go func() {
			if err := server.Start(settings.MetricsAddr); err != nil {
				errCh <- err
			}
		}()

		fmt.Println(successMsg("Agent started for %s", settings.UnitName))
		fmt.Print(keyValues("  ",
			kv("backend", settings.Backend),
			kv("metrics", "http://"+settings.MetricsAddr+"/metrics"),
			kv("poll", settings.PollInterval.String()),
		))

		go a.Run(ctx, settings.PollInterval)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		var runErr error
		select {
		case <-sigCh:
			fmt.Println("\nShutting down...")
		case runErr = <-errCh:
		}

		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = server.Stop(shutdownCtx)

		// Wait for an in-flight dispatch before the store closes
		a.mu.Lock()
		defer a.mu.Unlock()

		if runErr != nil {
			return runErr
		}
		fmt.Println(successMsg("Shutdown complete"))
		return nil
	},
}

func init() {
	flags := agentCmd.Flags()
	flags.StringVar(&flagSettings.MetricsAddr, "metrics-addr", flagSettings.MetricsAddr, "Address for /metrics, /health and /ready")
	flags.DurationVar(&flagSettings.PollInterval, "poll-interval", flagSettings.PollInterval, "How often to poll the supervisor and config")
	flags.StringVar(&flagSettings.WorkloadURL, "workload-url", flagSettings.WorkloadURL, "Workload health URL (default http://127.0.0.1:PORT/healthz)")
}

// agent turns observed changes into events. Dispatches are serialized.
type agent struct {
	op      *operator
	broker  *events.Broker
	health  *metrics.HealthChecker
	monitor *health.Monitor
	logger  zerolog.Logger

	mu         sync.Mutex
	reachable  bool
	lastConfig map[string]string
	deferred   map[events.EventKind]bool
}

func newAgent(op *operator, broker *events.Broker) *agent {
	checker := metrics.NewHealthChecker(Version, componentSupervisor)

	hc := health.DefaultConfig()
	hc.Interval = op.settings.PollInterval
	hc.StartPeriod = op.settings.PollInterval
	monitor := health.NewMonitor(hc, checker)
	monitor.Add(componentSupervisor, health.NewSupervisorChecker(op.sup, plan.ServiceName))
	monitor.Add(componentWorkload, health.NewHTTPChecker(op.settings.WorkloadEndpoint()))

	return &agent{
		op:       op,
		broker:   broker,
		health:   checker,
		monitor:  monitor,
		logger:   log.WithUnit(op.settings.UnitName).With().Str("component", "agent").Logger(),
		deferred: make(map[events.EventKind]bool),
	}
}

// Run polls until ctx is done
func (a *agent) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.Tick(ctx)
	for {
		select {
		case <-ticker.C:
			a.Tick(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Tick compares what it observes with the last poll and dispatches the
// resulting events, then retries anything still deferred
func (a *agent) Tick(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if ctx.Err() != nil {
		return
	}

	dispatched := make(map[events.EventKind]bool)

	reachable := a.op.sup.CanConnect()
	metrics.SetSupervisorReachable(reachable)
	if reachable && !a.reachable {
		a.logger.Info().Msg("Supervisor became reachable")
		a.dispatchLocked(ctx, events.EventWorkloadReady)
		dispatched[events.EventWorkloadReady] = true
	}
	a.reachable = reachable

	config, err := a.op.resolveConfig()
	if err != nil {
		a.logger.Warn().Err(err).Msg("Failed to resolve charm config")
	} else if a.lastConfig == nil || !reflect.DeepEqual(config, a.lastConfig) {
		a.lastConfig = config
		a.dispatchLocked(ctx, events.EventConfigChanged)
		dispatched[events.EventConfigChanged] = true
	}

	if !reachable {
		return
	}
	for _, kind := range events.Kinds {
		if a.deferred[kind] && !dispatched[kind] {
			a.logger.Debug().Str("event", string(kind)).Msg("Retrying deferred event")
			a.dispatchLocked(ctx, kind)
		}
	}
}

// Dispatch runs one event under the agent's lock
func (a *agent) Dispatch(ctx context.Context, kind events.EventKind) (*events.Outcome, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dispatchLocked(ctx, kind)
}

func (a *agent) dispatchLocked(ctx context.Context, kind events.EventKind) (*events.Outcome, error) {
	outcome, err := a.op.dispatcher.Dispatch(ctx, events.NewEvent(kind, map[string]string{
		"unit":   a.op.settings.UnitName,
		"source": "agent",
	}))
	if outcome != nil {
		// A failed workload-ready is retried too: no other event brings
		// the service back up while the supervisor stays reachable
		if outcome.Deferred || (err != nil && kind == events.EventWorkloadReady) {
			a.deferred[kind] = true
		} else {
			delete(a.deferred, kind)
		}
	}
	return outcome, err
}

// Deferred reports whether kind is waiting to be retried
func (a *agent) Deferred(kind events.EventKind) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.deferred[kind]
}

// watchOutcomes reports the charm's health from dispatch outcomes. A
// deferred event is not a failure.
func (a *agent) watchOutcomes(ctx context.Context) {
	sub := a.broker.Subscribe()
	defer a.broker.Unsubscribe(sub)

	for {
		select {
		case outcome, ok := <-sub:
			if !ok {
				return
			}
			a.recordOutcome(outcome)
		case <-ctx.Done():
			return
		}
	}
}

func (a *agent) recordOutcome(outcome *events.Outcome) {
	if !outcome.Handled {
		return
	}
	if outcome.Err != nil && !outcome.Deferred {
		a.health.Set(componentCharm, false, fmt.Sprintf("%s: %v", outcome.Event.Kind, outcome.Err))
		return
	}
	a.health.Set(componentCharm, true, "")
}
