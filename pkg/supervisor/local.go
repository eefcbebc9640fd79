package supervisor

import (
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/charmed-norris/pkg/errors"
	"github.com/cuemby/charmed-norris/pkg/log"
	"github.com/cuemby/charmed-norris/pkg/plan"
	"github.com/cuemby/charmed-norris/pkg/types"
	"github.com/rs/zerolog"
)

// LocalStore is the persistence the local supervisor needs
type LocalStore interface {
	SaveLayer(record *types.LayerRecord) error
	GetLayer(label string) (*types.LayerRecord, error)
	ListLayers() ([]*types.LayerRecord, error)
	SaveProcess(record *types.ProcessRecord) error
	GetProcess(name string) (*types.ProcessRecord, error)
	ListProcesses() ([]*types.ProcessRecord, error)
}

// LocalSupervisor simulates pebble on top of a store. Layers and process
// state survive across operator invocations, which makes it usable for
// development without a workload container. It never executes commands.
type LocalSupervisor struct {
	mu        sync.Mutex
	store     LocalStore
	available bool
	logger    zerolog.Logger
	now       func() time.Time
}

// NewLocalSupervisor creates a local supervisor
func NewLocalSupervisor(store LocalStore, available bool) *LocalSupervisor {
	return &LocalSupervisor{
		store:     store,
		available: available,
		logger:    log.WithComponent("local-supervisor"),
		now:       time.Now,
	}
}

// SetAvailable toggles whether the supervisor accepts requests
func (l *LocalSupervisor) SetAvailable(available bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.available = available
}

func (l *LocalSupervisor) CanConnect() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.available
}

func (l *LocalSupervisor) Plan() (types.Plan, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkAvailable(); err != nil {
		return types.Plan{}, err
	}
	return l.plan()
}

// plan combines every layer in order; caller holds mu
func (l *LocalSupervisor) plan() (types.Plan, error) {
	layers, err := l.store.ListLayers()
	if err != nil {
		return types.Plan{}, errors.NewIOError("failed to list layers", err)
	}

	combined := types.Plan{}
	for _, record := range layers {
		combined = plan.Combine(combined, record.Layer)
	}
	if len(combined.Services) == 0 {
		combined.Services = nil
	}
	return combined, nil
}

func (l *LocalSupervisor) Apply(name string, layer types.Plan) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkAvailable(); err != nil {
		return err
	}

	subset, err := plan.Subset(layer, name)
	if err != nil {
		return errors.NewApplyFailedError("cannot build layer", err).WithContext("service", name)
	}
	if err := validateLayer(subset); err != nil {
		return errors.NewApplyFailedError("layer rejected", err).WithContext("service", name)
	}

	existing, err := l.store.GetLayer(name)
	switch {
	case errors.IsNotFoundError(err):
		layers, err := l.store.ListLayers()
		if err != nil {
			return errors.NewIOError("failed to list layers", err)
		}
		existing = &types.LayerRecord{Label: name, Order: len(layers) + 1, Layer: subset}
	case err != nil:
		return errors.NewIOError("failed to read layer", err)
	default:
		combined := plan.Combine(existing.Layer, subset)
		combined.Summary = subset.Summary
		combined.Description = subset.Description
		existing.Layer = combined
	}

	if err := l.store.SaveLayer(existing); err != nil {
		return errors.NewApplyFailedError("failed to save layer", err).WithContext("service", name)
	}

	l.logger.Debug().Str("service", name).Int("order", existing.Order).Msg("layer added")
	return nil
}

func (l *LocalSupervisor) IsRunning(name string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkAvailable(); err != nil {
		return false, err
	}

	record, err := l.store.GetProcess(name)
	if errors.IsNotFoundError(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.NewIOError("failed to read process", err)
	}
	return record.Current == types.ServiceStateActive, nil
}

func (l *LocalSupervisor) Start(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkAvailable(); err != nil {
		return err
	}
	return l.start(name)
}

// start marks a planned service active; caller holds mu
func (l *LocalSupervisor) start(name string) error {
	current, err := l.plan()
	if err != nil {
		return err
	}
	if _, ok := current.Service(name); !ok {
		return errors.NewApplyFailedError("cannot start service", fmt.Errorf("service %q not in plan", name)).
			WithContext("service", name)
	}

	record, err := l.process(name)
	if err != nil {
		return err
	}
	if record.Current == types.ServiceStateActive {
		return nil
	}

	record.Current = types.ServiceStateActive
	record.CurrentSince = l.now()
	record.Starts++
	if err := l.store.SaveProcess(record); err != nil {
		return errors.NewIOError("failed to save process", err)
	}

	l.logger.Info().Str("service", name).Int("starts", record.Starts).Msg("service started")
	return nil
}

func (l *LocalSupervisor) Stop(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkAvailable(); err != nil {
		return err
	}

	record, err := l.process(name)
	if err != nil {
		return err
	}
	if record.Current != types.ServiceStateActive {
		return nil
	}

	record.Current = types.ServiceStateInactive
	record.CurrentSince = l.now()
	if err := l.store.SaveProcess(record); err != nil {
		return errors.NewIOError("failed to save process", err)
	}

	l.logger.Info().Str("service", name).Msg("service stopped")
	return nil
}

func (l *LocalSupervisor) AutoStart() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkAvailable(); err != nil {
		return err
	}

	current, err := l.plan()
	if err != nil {
		return err
	}
	for _, name := range current.ServiceNames() {
		if current.Services[name].Startup != types.StartupEnabled {
			continue
		}
		if err := l.start(name); err != nil {
			return err
		}
	}
	return nil
}

func (l *LocalSupervisor) Services(names ...string) ([]types.ServiceInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkAvailable(); err != nil {
		return nil, err
	}

	current, err := l.plan()
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		names = current.ServiceNames()
	}

	var out []types.ServiceInfo
	for _, name := range names {
		svc, ok := current.Service(name)
		if !ok {
			continue
		}
		record, err := l.process(name)
		if err != nil {
			return nil, err
		}
		out = append(out, types.ServiceInfo{
			Name:         name,
			Startup:      svc.Startup,
			Current:      record.Current,
			CurrentSince: record.CurrentSince,
		})
	}
	return out, nil
}

// process loads a process record, defaulting to inactive; caller holds mu
func (l *LocalSupervisor) process(name string) (*types.ProcessRecord, error) {
	record, err := l.store.GetProcess(name)
	if errors.IsNotFoundError(err) {
		return &types.ProcessRecord{Name: name, Current: types.ServiceStateInactive}, nil
	}
	if err != nil {
		return nil, errors.NewIOError("failed to read process", err)
	}
	return record, nil
}

// checkAvailable fails fast when the supervisor is marked unreachable; caller holds mu
func (l *LocalSupervisor) checkAvailable() error {
	if !l.available {
		return errors.NewNotReadyError("local supervisor is not available", nil)
	}
	return nil
}

// validateLayer mirrors the checks pebble applies to an added layer
func validateLayer(layer types.Plan) error {
	for name, svc := range layer.Services {
		switch svc.Override {
		case types.OverrideReplace, types.OverrideMerge:
		default:
			return fmt.Errorf("service %q has invalid override %q", name, svc.Override)
		}
		if svc.Override == types.OverrideReplace && svc.Command == "" {
			return fmt.Errorf("service %q has no command", name)
		}
		switch svc.Startup {
		case "", types.StartupEnabled, types.StartupDisabled:
		default:
			return fmt.Errorf("service %q has invalid startup %q", name, svc.Startup)
		}
	}
	return nil
}
