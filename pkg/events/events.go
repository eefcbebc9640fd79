package events

import (
	"time"

	"github.com/google/uuid"
)

// EventKind names a lifecycle event delivered by the platform
type EventKind string

const (
	// EventWorkloadReady fires when the workload container's supervisor
	// becomes reachable
	EventWorkloadReady EventKind = "norris-pebble-ready"

	// EventConfigChanged fires whenever charm config values change, and
	// once after install
	EventConfigChanged EventKind = "config-changed"

	EventIngressRelationJoined  EventKind = "ingress-relation-joined"
	EventIngressRelationChanged EventKind = "ingress-relation-changed"
)

// Kinds lists every event kind the operator knows about
var Kinds = []EventKind{
	EventWorkloadReady,
	EventConfigChanged,
	EventIngressRelationJoined,
	EventIngressRelationChanged,
}

// Event is one lifecycle notification
type Event struct {
	ID        string
	Kind      EventKind
	Timestamp time.Time
	Metadata  map[string]string
}

// NewEvent creates an event with a fresh ID
func NewEvent(kind EventKind, metadata map[string]string) *Event {
	if metadata == nil {
		metadata = make(map[string]string)
	}
	return &Event{
		ID:        uuid.New().String(),
		Kind:      kind,
		Timestamp: time.Now(),
		Metadata:  metadata,
	}
}

// ParseKind maps a hook name onto a kind. Unknown names are returned as-is
// so they can be dispatched and ignored.
func ParseKind(name string) EventKind {
	return EventKind(name)
}

// Known reports whether the kind is one the operator defines
func (k EventKind) Known() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}
