package supervisor

import (
	"fmt"

	"github.com/cuemby/charmed-norris/pkg/types"
)

// Backend names accepted by New
const (
	BackendPebble = "pebble"
	BackendLocal  = "local"
)

// Supervisor is the remote-controlled process manager running inside the
// workload container. Every call is a synchronous request; an unreachable
// supervisor yields a not_ready DomainError.
type Supervisor interface {
	// CanConnect reports whether the supervisor API currently answers
	CanConnect() bool

	// Plan returns the combined plan of every layer applied so far
	Plan() (types.Plan, error)

	// Apply pushes the named service of layer using combine semantics
	Apply(name string, layer types.Plan) error

	// IsRunning reports whether the named service is active
	IsRunning(name string) (bool, error)

	// Start starts the named service and waits for the change to finish
	Start(name string) error

	// Stop stops the named service and waits for the change to finish
	Stop(name string) error

	// AutoStart starts every service whose startup policy is enabled
	AutoStart() error

	// Services returns the state of the named services, or all if none given
	Services(names ...string) ([]types.ServiceInfo, error)
}

// Config selects and configures a supervisor backend
type Config struct {
	Backend string

	// Socket is the pebble API socket path (pebble backend)
	Socket string

	// Store persists layers and process state (local backend)
	Store LocalStore

	// Available marks the local supervisor reachable
	Available bool
}

// New creates the supervisor named by cfg.Backend
func New(cfg Config) (Supervisor, error) {
	switch cfg.Backend {
	case BackendPebble, "":
		return NewPebbleSupervisor(cfg.Socket)
	case BackendLocal:
		if cfg.Store == nil {
			return nil, fmt.Errorf("local supervisor requires a store")
		}
		return NewLocalSupervisor(cfg.Store, cfg.Available), nil
	default:
		return nil, fmt.Errorf("unknown supervisor backend: %s", cfg.Backend)
	}
}
