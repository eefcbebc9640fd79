package supervisor

import (
	stderrors "errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/canonical/pebble/client"
	"github.com/cuemby/charmed-norris/pkg/errors"
	"github.com/cuemby/charmed-norris/pkg/log"
	"github.com/cuemby/charmed-norris/pkg/plan"
	"github.com/cuemby/charmed-norris/pkg/types"
	"github.com/rs/zerolog"
)

// DefaultSocket is where the platform mounts the workload's pebble socket
const DefaultSocket = "/charm/containers/norris/pebble.socket"

// changeTimeout bounds how long a start or stop change may take
const changeTimeout = 30 * time.Second

// pebbleClient is the subset of the pebble client used here
type pebbleClient interface {
	SysInfo() (*client.SysInfo, error)
	PlanBytes(opts *client.PlanOptions) ([]byte, error)
	AddLayer(opts *client.AddLayerOptions) error
	Services(opts *client.ServicesOptions) ([]*client.ServiceInfo, error)
	Start(opts *client.ServiceOptions) (string, error)
	Stop(opts *client.ServiceOptions) (string, error)
	AutoStart(opts *client.ServiceOptions) (string, error)
	WaitChange(id string, opts *client.WaitChangeOptions) (*client.Change, error)
}

// PebbleSupervisor talks to pebble over its unix socket
type PebbleSupervisor struct {
	client pebbleClient
	socket string
	logger zerolog.Logger
}

// NewPebbleSupervisor creates a supervisor for the pebble socket at path
func NewPebbleSupervisor(socket string) (*PebbleSupervisor, error) {
	if socket == "" {
		socket = DefaultSocket
	}

	c, err := client.New(&client.Config{Socket: socket})
	if err != nil {
		return nil, fmt.Errorf("failed to create pebble client: %w", err)
	}

	return newPebbleSupervisor(c, socket), nil
}

func newPebbleSupervisor(c pebbleClient, socket string) *PebbleSupervisor {
	return &PebbleSupervisor{
		client: c,
		socket: socket,
		logger: log.WithComponent("pebble"),
	}
}

// CanConnect checks the socket exists and pebble answers a system info request
func (p *PebbleSupervisor) CanConnect() bool {
	if _, err := os.Stat(p.socket); err != nil {
		p.logger.Debug().Str("socket", p.socket).Msg("pebble socket not present")
		return false
	}
	if _, err := p.client.SysInfo(); err != nil {
		p.logger.Debug().Err(err).Msg("pebble system info failed")
		return false
	}
	return true
}

// Plan fetches and parses the combined pebble plan
func (p *PebbleSupervisor) Plan() (types.Plan, error) {
	data, err := p.client.PlanBytes(&client.PlanOptions{})
	if err != nil {
		return types.Plan{}, p.classify("failed to fetch plan", err)
	}

	current, err := plan.Unmarshal(data)
	if err != nil {
		return types.Plan{}, errors.NewInternalError("pebble returned an unreadable plan", err)
	}
	return current, nil
}

// Apply adds the named service as a layer labelled with the service name,
// combining with any existing layer of that label
func (p *PebbleSupervisor) Apply(name string, layer types.Plan) error {
	subset, err := plan.Subset(layer, name)
	if err != nil {
		return errors.NewApplyFailedError("cannot build layer", err).WithContext("service", name)
	}

	data, err := plan.Marshal(subset)
	if err != nil {
		return errors.NewApplyFailedError("cannot render layer", err).WithContext("service", name)
	}

	if err := p.client.AddLayer(&client.AddLayerOptions{
		Combine:   true,
		Label:     name,
		LayerData: data,
	}); err != nil {
		return p.classify("failed to add layer", err).WithContext("service", name)
	}

	p.logger.Debug().Str("service", name).Msg("layer added")
	return nil
}

// IsRunning reports whether pebble considers the service active
func (p *PebbleSupervisor) IsRunning(name string) (bool, error) {
	infos, err := p.Services(name)
	if err != nil {
		return false, err
	}
	for _, info := range infos {
		if info.Name == name {
			return info.IsRunning(), nil
		}
	}
	return false, nil
}

// Start starts the service and waits for the change
func (p *PebbleSupervisor) Start(name string) error {
	changeID, err := p.client.Start(&client.ServiceOptions{Names: []string{name}})
	if err != nil {
		return p.classify("failed to start service", err).WithContext("service", name)
	}
	return p.wait(changeID, name)
}

// Stop stops the service and waits for the change
func (p *PebbleSupervisor) Stop(name string) error {
	changeID, err := p.client.Stop(&client.ServiceOptions{Names: []string{name}})
	if err != nil {
		return p.classify("failed to stop service", err).WithContext("service", name)
	}
	return p.wait(changeID, name)
}

// AutoStart starts all services with startup enabled
func (p *PebbleSupervisor) AutoStart() error {
	changeID, err := p.client.AutoStart(&client.ServiceOptions{})
	if err != nil {
		return p.classify("failed to autostart services", err)
	}
	return p.wait(changeID, "")
}

// Services lists the named services
func (p *PebbleSupervisor) Services(names ...string) ([]types.ServiceInfo, error) {
	infos, err := p.client.Services(&client.ServicesOptions{Names: names})
	if err != nil {
		return nil, p.classify("failed to list services", err)
	}

	out := make([]types.ServiceInfo, 0, len(infos))
	for _, info := range infos {
		out = append(out, types.ServiceInfo{
			Name:         info.Name,
			Startup:      types.StartupPolicy(info.Startup),
			Current:      types.ServiceState(info.Current),
			CurrentSince: info.CurrentSince,
		})
	}
	return out, nil
}

// wait blocks until the change is ready and surfaces its error
func (p *PebbleSupervisor) wait(changeID, name string) error {
	if changeID == "" {
		return nil
	}

	change, err := p.client.WaitChange(changeID, &client.WaitChangeOptions{Timeout: changeTimeout})
	if err != nil {
		return p.classify("failed waiting for change", err).WithContext("change", changeID)
	}
	if change.Err != "" {
		return errors.NewApplyFailedError("change failed", stderrors.New(change.Err)).
			WithContext("change", changeID).
			WithContext("service", name)
	}
	return nil
}

// classify maps a client error onto not_ready when the socket cannot be
// reached and apply_failed otherwise
func (p *PebbleSupervisor) classify(msg string, err error) *errors.DomainError {
	var opErr *net.OpError
	if stderrors.As(err, &opErr) || stderrors.Is(err, os.ErrNotExist) {
		return errors.NewNotReadyError(msg, err)
	}
	return errors.NewApplyFailedError(msg, err)
}
