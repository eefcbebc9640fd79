package charm

import (
	"context"
	"strconv"
	"time"

	"github.com/cuemby/charmed-norris/pkg/errors"
	"github.com/cuemby/charmed-norris/pkg/events"
	"github.com/cuemby/charmed-norris/pkg/ingress"
	"github.com/cuemby/charmed-norris/pkg/log"
	"github.com/cuemby/charmed-norris/pkg/metrics"
	"github.com/cuemby/charmed-norris/pkg/plan"
	"github.com/cuemby/charmed-norris/pkg/reconciler"
	"github.com/cuemby/charmed-norris/pkg/supervisor"
	"github.com/cuemby/charmed-norris/pkg/types"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

const (
	// WaitingMessage is shown while the supervisor cannot be reached
	WaitingMessage = "waiting for Pebble API"

	// RestartingMessage is shown while an updated layer is being rolled out
	RestartingMessage = "restarting norris"
)

// ConfigSource returns the resolved charm config for the current event
type ConfigSource func() (map[string]string, error)

// StateStore persists unit state between events
type StateStore interface {
	GetUnitState() (*types.UnitState, error)
	SaveUnitState(state *types.UnitState) error
}

// Config holds the dependencies of a Charm
type Config struct {
	Supervisor supervisor.Supervisor
	Store      StateStore
	Ingress    *ingress.Requirer
	Source     ConfigSource

	// IngressHostname and ServicePort are sent to the ingress provider on
	// every config change
	IngressHostname string
	ServicePort     int

	// Tracer overrides the global tracer for reconcile spans
	Tracer trace.Tracer
}

// Charm reacts to lifecycle events for the norris workload
type Charm struct {
	sup        supervisor.Supervisor
	store      StateStore
	ingress    *ingress.Requirer
	source     ConfigSource
	reconciler *reconciler.Reconciler
	hostname   string
	port       int
	logger     zerolog.Logger
}

// New creates a charm
func New(cfg Config) *Charm {
	var opts []reconciler.Option
	if cfg.Tracer != nil {
		opts = append(opts, reconciler.WithTracer(cfg.Tracer))
	}

	return &Charm{
		sup:        cfg.Supervisor,
		store:      cfg.Store,
		ingress:    cfg.Ingress,
		source:     cfg.Source,
		reconciler: reconciler.NewReconciler(cfg.Supervisor.Plan, cfg.Supervisor, opts...),
		hostname:   cfg.IngressHostname,
		port:       cfg.ServicePort,
		logger:     log.WithComponent("charm"),
	}
}

// Register binds the charm's handlers into the dispatch table
func (c *Charm) Register(d *events.Dispatcher) {
	d.Register(events.EventWorkloadReady, c.handle(c.OnWorkloadReady))
	d.Register(events.EventConfigChanged, c.handle(c.OnConfigChanged))
	d.Register(events.EventIngressRelationJoined, c.handle(c.OnIngressRelationChanged))
	d.Register(events.EventIngressRelationChanged, c.handle(c.OnIngressRelationChanged))
}

// stateHandler is a handler with the unit state and config passed in
type stateHandler func(ctx context.Context, state *types.UnitState, config map[string]string) error

// handle loads state and config, runs h, and persists the state it leaves
// behind whether or not h succeeded
func (c *Charm) handle(h stateHandler) events.Handler {
	return func(ctx context.Context, ev *events.Event) error {
		state, err := c.store.GetUnitState()
		if err != nil {
			return errors.NewIOError("failed to load unit state", err)
		}

		config, err := c.source()
		if err != nil {
			c.setStatus(state, types.BlockedStatus(err.Error()))
			return err
		}

		state.LastEvent = string(ev.Kind)
		handlerErr := h(ctx, state, config)

		if err := c.store.SaveUnitState(state); err != nil {
			c.logger.Error().Err(err).Msg("Failed to save unit state")
			if handlerErr == nil {
				return errors.NewIOError("failed to save unit state", err)
			}
		}
		return handlerErr
	}
}

// OnWorkloadReady pushes the desired layer and makes sure every enabled
// service is running. The second step covers a restarted container whose
// plan already matches but whose services are stopped.
func (c *Charm) OnWorkloadReady(ctx context.Context, state *types.UnitState, config map[string]string) error {
	if err := c.reconcile(ctx, state, config); err != nil {
		return err
	}

	if err := c.sup.AutoStart(); err != nil {
		return c.fail(state, err)
	}

	c.setStatus(state, types.ActiveStatus())
	return nil
}

// OnConfigChanged pushes the desired layer when it differs from the
// supervisor's plan, then sends the ingress settings regardless of whether
// the plan changed
func (c *Charm) OnConfigChanged(ctx context.Context, state *types.UnitState, config map[string]string) error {
	if err := c.reconcile(ctx, state, config); err != nil {
		return err
	}

	if err := c.ingress.UpdateConfig(map[string]string{
		types.IngressKeyHostname: c.hostname,
		types.IngressKeyPort:     strconv.Itoa(c.port),
	}); err != nil {
		return c.fail(state, err)
	}

	c.setStatus(state, types.ActiveStatus())
	return nil
}

// OnIngressRelationChanged republishes the full ingress config
func (c *Charm) OnIngressRelationChanged(_ context.Context, state *types.UnitState, _ map[string]string) error {
	if err := c.ingress.Publish(); err != nil {
		return c.fail(state, err)
	}
	return nil
}

// reconcile runs one reconciliation and records its effect on state. Status
// is left for the caller to settle on success.
func (c *Charm) reconcile(ctx context.Context, state *types.UnitState, config map[string]string) error {
	desired := plan.BuildDesired(config)

	if current, err := c.sup.Plan(); err == nil && reconciler.NeedsApply(desired, current) {
		c.setStatus(state, types.MaintenanceStatus(RestartingMessage))
	}

	result, err := c.reconciler.Reconcile(ctx, desired)

	// A failed stop or start still leaves the applied layers in the
	// supervisor's plan
	if result.Changed() {
		state.LastApplied = appliedPlan(state.LastApplied, desired, result.Applied)
		state.LastConfig = config
	}
	state.Restarts += len(result.Restarted)

	if err != nil {
		return c.fail(state, err)
	}
	state.LastConfig = config
	return nil
}

// appliedPlan returns the plan the supervisor holds after the named
// services of desired were applied over previous
func appliedPlan(previous *types.Plan, desired types.Plan, applied []string) *types.Plan {
	if len(applied) == len(desired.Services) {
		out := desired.Clone()
		return &out
	}

	var base types.Plan
	if previous != nil {
		base = *previous
	}
	for _, name := range applied {
		if layer, err := plan.Subset(desired, name); err == nil {
			base = plan.Combine(base, layer)
		}
	}
	return &base
}

// fail maps an error onto a unit status and returns it
func (c *Charm) fail(state *types.UnitState, err error) error {
	if errors.IsNotReadyError(err) {
		c.setStatus(state, types.WaitingStatus(WaitingMessage))
	} else {
		c.setStatus(state, types.BlockedStatus(err.Error()))
	}
	return err
}

// setStatus records a status transition. Transitions are saved right away
// so a status query during a long restart sees Maintenance.
func (c *Charm) setStatus(state *types.UnitState, status types.UnitStatus) {
	if state.Status.Equal(status) {
		return
	}

	c.logger.Info().
		Str("from", string(state.Status.Kind)).
		Str("to", string(status.Kind)).
		Str("message", status.Message).
		Msg("Unit status changed")

	status.UpdatedAt = time.Now()
	state.Status = status
	metrics.SetUnitStatus(string(status.Kind))

	if err := c.store.SaveUnitState(state); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to save status transition")
	}
}

// Status returns the persisted unit state
func (c *Charm) Status() (*types.UnitState, error) {
	return c.store.GetUnitState()
}
