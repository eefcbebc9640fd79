package main

import (
	"github.com/cuemby/charmed-norris/pkg/charm"
	"github.com/cuemby/charmed-norris/pkg/config"
	"github.com/cuemby/charmed-norris/pkg/events"
	"github.com/cuemby/charmed-norris/pkg/ingress"
	"github.com/cuemby/charmed-norris/pkg/storage"
	"github.com/cuemby/charmed-norris/pkg/supervisor"
	"github.com/cuemby/charmed-norris/pkg/types"
)

// operator holds everything a command needs to dispatch events for one unit
type operator struct {
	settings   config.Settings
	schema     *config.Options
	store      *storage.BoltStore
	sup        supervisor.Supervisor
	requirer   *ingress.Requirer
	charm      *charm.Charm
	dispatcher *events.Dispatcher
	telemetry  *telemetry
}

// newOperator opens the unit's state and wires the charm into a dispatcher.
// broker may be nil.
func newOperator(s config.Settings, broker *events.Broker) (*operator, error) {
	schema, err := s.Schema()
	if err != nil {
		return nil, err
	}

	store, err := storage.NewBoltStore(s.DataDir)
	if err != nil {
		return nil, err
	}

	sup, err := supervisor.New(supervisor.Config{
		Backend:   s.Backend,
		Socket:    s.Socket,
		Store:     store,
		Available: true,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	op := &operator{
		settings:  s,
		schema:    schema,
		store:     store,
		sup:       sup,
		telemetry: newTelemetry(),
	}

	op.requirer = ingress.NewRequirer(store, types.IngressConfig{
		ServiceHostname: s.IngressHostname,
		ServiceName:     s.AppName,
		ServicePort:     s.ServicePort,
	})

	op.charm = charm.New(charm.Config{
		Supervisor:      sup,
		Store:           store,
		Ingress:         op.requirer,
		Source:          op.resolveConfig,
		IngressHostname: s.IngressHostname,
		ServicePort:     s.ServicePort,
		Tracer:          op.telemetry.Tracer(),
	})

	op.dispatcher = events.NewDispatcher(broker)
	op.charm.Register(op.dispatcher)

	return op, nil
}

// resolveConfig reads the values file and fills in schema defaults
func (o *operator) resolveConfig() (map[string]string, error) {
	values, err := config.LoadValues(o.settings.ValuesFile)
	if err != nil {
		return nil, err
	}
	return o.schema.Resolve(values)
}

func (o *operator) Close() {
	o.telemetry.Close()
	o.store.Close()
}
