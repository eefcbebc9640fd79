/*
Package events routes platform lifecycle events to operator handlers.

The Dispatcher holds an explicit table from EventKind to Handler. Dispatch
looks up the handler for an event and runs it on the calling goroutine, so
handlers for one unit never overlap. Kinds with no handler are logged at
debug level and ignored, since the platform delivers every event regardless
of what the operator observes. A handler that fails with a not_ready error
defers its event instead of failing it; the caller decides when to retry.

Every dispatch produces an Outcome. When the dispatcher is built with a
Broker, outcomes are also fanned out to subscribers on buffered channels;
the long-running agent uses this to track the last dispatch in its health
report. Slow subscribers miss outcomes rather than blocking dispatch.

	d := events.NewDispatcher(nil)
	d.Register(events.EventConfigChanged, handler)
	outcome, err := d.Dispatch(ctx, events.NewEvent(events.EventConfigChanged, nil))
*/
package events
