package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/charmed-norris/pkg/errors"
	"github.com/cuemby/charmed-norris/pkg/log"
	"github.com/cuemby/charmed-norris/pkg/metrics"
	"github.com/rs/zerolog"
)

// Dispatch results used as the "result" metric label
const (
	ResultOK       = "ok"
	ResultError    = "error"
	ResultIgnored  = "ignored"
	ResultDeferred = "deferred"
)

// Handler reacts to one event
type Handler func(ctx context.Context, ev *Event) error

// Outcome records what happened to a dispatched event
type Outcome struct {
	Event    *Event
	Handled  bool
	Deferred bool
	Err      error
	Duration time.Duration
}

// Result returns the metric label for the outcome
func (o *Outcome) Result() string {
	switch {
	case !o.Handled:
		return ResultIgnored
	case o.Deferred:
		return ResultDeferred
	case o.Err != nil:
		return ResultError
	default:
		return ResultOK
	}
}

// Dispatcher routes events to handlers through an explicit table. Handlers
// run synchronously on the dispatching goroutine, one event at a time.
type Dispatcher struct {
	mu       sync.Mutex
	handlers map[EventKind]Handler
	broker   *Broker
	logger   zerolog.Logger
}

// NewDispatcher creates an empty dispatcher. Outcomes are published to
// broker when it is non-nil.
func NewDispatcher(broker *Broker) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[EventKind]Handler),
		broker:   broker,
		logger:   log.WithComponent("dispatcher"),
	}
}

// Register binds a handler to a kind, replacing any previous binding
func (d *Dispatcher) Register(kind EventKind, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[kind] = handler
}

// Handles reports whether a handler is bound to kind
func (d *Dispatcher) Handles(kind EventKind) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.handlers[kind]
	return ok
}

// Dispatch runs the handler bound to the event's kind. Events without a
// handler are ignored. A handler failing with a not_ready error defers the
// event: the outcome is marked deferred, keeps the cause, and no error is
// returned. Any other handler error is returned as is.
func (d *Dispatcher) Dispatch(ctx context.Context, ev *Event) (*Outcome, error) {
	if ev == nil {
		return nil, fmt.Errorf("cannot dispatch nil event")
	}

	d.mu.Lock()
	handler, ok := d.handlers[ev.Kind]
	d.mu.Unlock()

	logger := log.WithEvent(string(ev.Kind), ev.ID)
	outcome := &Outcome{Event: ev, Handled: ok}

	if !ok {
		logger.Debug().Msg("No handler registered, ignoring event")
	} else {
		start := time.Now()
		outcome.Err = handler(ctx, ev)
		outcome.Duration = time.Since(start)

		switch {
		case errors.IsNotReadyError(outcome.Err):
			outcome.Deferred = true
			logger.Warn().Err(outcome.Err).Msg("Event deferred until the workload is reachable")
		case outcome.Err != nil:
			logger.Error().Err(outcome.Err).Dur("duration", outcome.Duration).Msg("Event handler failed")
		default:
			logger.Info().Dur("duration", outcome.Duration).Msg("Event handled")
		}
	}

	metrics.EventsDispatchedTotal.WithLabelValues(string(ev.Kind), outcome.Result()).Inc()
	if d.broker != nil {
		d.broker.Publish(outcome)
	}

	if outcome.Deferred {
		return outcome, nil
	}
	return outcome, outcome.Err
}
