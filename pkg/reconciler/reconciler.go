package reconciler

import (
	"context"

	"github.com/cuemby/charmed-norris/pkg/errors"
	"github.com/cuemby/charmed-norris/pkg/log"
	"github.com/cuemby/charmed-norris/pkg/metrics"
	"github.com/cuemby/charmed-norris/pkg/plan"
	"github.com/cuemby/charmed-norris/pkg/types"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/cuemby/charmed-norris/pkg/reconciler"

// PlanFetcher returns the plan currently applied by the supervisor
type PlanFetcher func() (types.Plan, error)

// ProcessController is the capability the reconciler drives
type ProcessController interface {
	CanConnect() bool
	IsRunning(name string) (bool, error)
	Stop(name string) error
	Start(name string) error
	Apply(name string, layer types.Plan) error
}

// Result describes what one reconciliation did
type Result struct {
	Status types.UnitStatus

	// Applied lists services whose definition was pushed
	Applied []string

	// Restarted lists services that were running and got stopped before start
	Restarted []string

	// Started lists every service start issued, restarts included
	Started []string

	// Diff is the services diff that triggered the apply, empty on no-op
	Diff string
}

// Changed reports whether anything was pushed to the supervisor
func (r Result) Changed() bool {
	return len(r.Applied) > 0
}

// NeedsApply compares desired and current services structurally
func NeedsApply(desired, current types.Plan) bool {
	return !plan.ServicesEqual(desired, current)
}

// Reconcile brings the supervisor's plan in line with desired.
//
// The current plan is always fetched; nothing is cached between calls.
// When services already match, nothing is applied or restarted. Otherwise
// each desired service is applied with combine semantics and then started,
// stopping it first only if it is running. Errors are never retried here.
func Reconcile(desired types.Plan, fetch PlanFetcher, ctrl ProcessController) (Result, error) {
	if !ctrl.CanConnect() {
		return Result{}, errors.NewNotReadyError("cannot connect to process supervisor", nil)
	}

	current, err := fetch()
	if err != nil {
		return Result{}, asNotReady("failed to fetch current plan", err)
	}

	if !NeedsApply(desired, current) {
		return Result{Status: types.ActiveStatus()}, nil
	}

	result := Result{Diff: plan.Diff(current, desired)}
	names := desired.ServiceNames()

	for _, name := range names {
		if err := ctrl.Apply(name, desired); err != nil {
			return result, asApplyFailed("failed to apply layer", name, err)
		}
		result.Applied = append(result.Applied, name)
	}

	for _, name := range names {
		running, err := ctrl.IsRunning(name)
		if err != nil {
			return result, asApplyFailed("failed to query service", name, err)
		}
		if running {
			if err := ctrl.Stop(name); err != nil {
				return result, asApplyFailed("failed to stop service", name, err)
			}
			result.Restarted = append(result.Restarted, name)
		}
		if err := ctrl.Start(name); err != nil {
			return result, asApplyFailed("failed to start service", name, err)
		}
		result.Started = append(result.Started, name)
	}

	result.Status = types.ActiveStatus()
	return result, nil
}

// asNotReady keeps not_ready errors and maps anything else from the fetch
// step onto not_ready as well, since the plan endpoint is the first contact
func asNotReady(msg string, err error) error {
	if errors.TypeOf(err) != "" {
		return err
	}
	return errors.NewNotReadyError(msg, err)
}

// asApplyFailed keeps not_ready errors and wraps everything else as apply_failed
func asApplyFailed(msg, service string, err error) error {
	if errors.IsNotReadyError(err) {
		return err
	}
	return errors.NewApplyFailedError(msg, err).WithContext("service", service)
}

// Reconciler runs Reconcile against one supervisor with logging, metrics
// and tracing around it
type Reconciler struct {
	fetch  PlanFetcher
	ctrl   ProcessController
	logger zerolog.Logger
	tracer trace.Tracer
}

// Option configures a Reconciler
type Option func(*Reconciler)

// WithTracer overrides the global tracer
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Reconciler) {
		r.tracer = tracer
	}
}

// NewReconciler creates a new reconciler
func NewReconciler(fetch PlanFetcher, ctrl ProcessController, opts ...Option) *Reconciler {
	r := &Reconciler{
		fetch:  fetch,
		ctrl:   ctrl,
		logger: log.WithComponent("reconciler"),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile performs one reconciliation cycle
func (r *Reconciler) Reconcile(ctx context.Context, desired types.Plan) (Result, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ReconciliationDuration)

	_, span := r.tracer.Start(ctx, "reconcile", trace.WithAttributes(
		attribute.StringSlice("norris.services", desired.ServiceNames()),
	))
	defer span.End()

	result, err := Reconcile(desired, r.fetch, r.ctrl)

	for _, name := range result.Applied {
		metrics.LayerAppliesTotal.WithLabelValues(name).Inc()
	}
	for _, name := range result.Restarted {
		metrics.ServiceStopsTotal.WithLabelValues(name).Inc()
	}
	for _, name := range result.Started {
		metrics.ServiceStartsTotal.WithLabelValues(name).Inc()
	}
	span.SetAttributes(
		attribute.Bool("norris.changed", result.Changed()),
		attribute.Int("norris.restarts", len(result.Restarted)),
	)

	switch {
	case errors.IsNotReadyError(err):
		metrics.ReconciliationsTotal.WithLabelValues(metrics.OutcomeNotReady).Inc()
		metrics.SetSupervisorReachable(false)
		span.SetStatus(codes.Error, "not ready")
		r.logger.Warn().Err(err).Msg("Supervisor not ready")
		return result, err

	case err != nil:
		metrics.ReconciliationsTotal.WithLabelValues(metrics.OutcomeApplyFailed).Inc()
		metrics.SetSupervisorReachable(true)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Error().Err(err).Strs("applied", result.Applied).Msg("Reconciliation failed")
		return result, err
	}

	metrics.SetSupervisorReachable(true)
	if !result.Changed() {
		metrics.ReconciliationsTotal.WithLabelValues(metrics.OutcomeNoop).Inc()
		r.logger.Debug().Msg("Plan unchanged, nothing to do")
		return result, nil
	}

	metrics.ReconciliationsTotal.WithLabelValues(metrics.OutcomeApplied).Inc()
	r.logger.Info().
		Strs("applied", result.Applied).
		Strs("restarted", result.Restarted).
		Msg("Applied updated layer and restarted services")
	r.logger.Debug().Str("diff", result.Diff).Msg("Plan diff")
	return result, nil
}
