package supervisor

import (
	stderrors "errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/canonical/pebble/client"
	"github.com/cuemby/charmed-norris/pkg/errors"
	"github.com/cuemby/charmed-norris/pkg/plan"
	"github.com/cuemby/charmed-norris/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePebble records calls and answers from canned data
type fakePebble struct {
	sysInfoErr error
	planData   []byte
	planErr    error
	layers     []*client.AddLayerOptions
	addErr     error
	services   []*client.ServiceInfo
	started    [][]string
	stopped    [][]string
	autostarts int
	changeErr  string
}

func (f *fakePebble) SysInfo() (*client.SysInfo, error) {
	if f.sysInfoErr != nil {
		return nil, f.sysInfoErr
	}
	return &client.SysInfo{Version: "test"}, nil
}

func (f *fakePebble) PlanBytes(_ *client.PlanOptions) ([]byte, error) {
	return f.planData, f.planErr
}

func (f *fakePebble) AddLayer(opts *client.AddLayerOptions) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.layers = append(f.layers, opts)
	return nil
}

func (f *fakePebble) Services(opts *client.ServicesOptions) ([]*client.ServiceInfo, error) {
	if len(opts.Names) == 0 {
		return f.services, nil
	}
	var out []*client.ServiceInfo
	for _, svc := range f.services {
		for _, name := range opts.Names {
			if svc.Name == name {
				out = append(out, svc)
			}
		}
	}
	return out, nil
}

func (f *fakePebble) Start(opts *client.ServiceOptions) (string, error) {
	f.started = append(f.started, opts.Names)
	return "1", nil
}

func (f *fakePebble) Stop(opts *client.ServiceOptions) (string, error) {
	f.stopped = append(f.stopped, opts.Names)
	return "2", nil
}

func (f *fakePebble) AutoStart(_ *client.ServiceOptions) (string, error) {
	f.autostarts++
	return "3", nil
}

func (f *fakePebble) WaitChange(id string, _ *client.WaitChangeOptions) (*client.Change, error) {
	return &client.Change{ID: id, Ready: true, Err: f.changeErr}, nil
}

func newTestPebble(t *testing.T, fake *fakePebble) *PebbleSupervisor {
	t.Helper()
	socket := filepath.Join(t.TempDir(), "pebble.socket")
	require.NoError(t, os.WriteFile(socket, nil, 0600))
	return newPebbleSupervisor(fake, socket)
}

func TestPebbleSupervisor_CanConnect(t *testing.T) {
	fake := &fakePebble{}
	sup := newTestPebble(t, fake)
	assert.True(t, sup.CanConnect())

	fake.sysInfoErr = stderrors.New("connection refused")
	assert.False(t, sup.CanConnect())

	missing := newPebbleSupervisor(&fakePebble{}, filepath.Join(t.TempDir(), "absent.socket"))
	assert.False(t, missing.CanConnect())
}

func TestPebbleSupervisor_Plan(t *testing.T) {
	fake := &fakePebble{planData: []byte(`services:
    norris:
        override: replace
        summary: norris
        command: /charmed-norris
        startup: enabled
        environment:
            CHUCK_CATEGORY: dev
`)}
	sup := newTestPebble(t, fake)

	current, err := sup.Plan()
	require.NoError(t, err)
	assert.True(t, plan.ServicesEqual(current, plan.BuildDesired(map[string]string{"category": "dev"})))
	assert.Equal(t, "norris", current.Services["norris"].Name)

	fake.planData = []byte("{}\n")
	current, err = sup.Plan()
	require.NoError(t, err)
	assert.Empty(t, current.Services)
}

func TestPebbleSupervisor_PlanErrors(t *testing.T) {
	fake := &fakePebble{planErr: &net.OpError{Op: "dial", Net: "unix", Err: stderrors.New("no such file")}}
	sup := newTestPebble(t, fake)

	_, err := sup.Plan()
	assert.True(t, errors.IsNotReadyError(err))

	fake.planErr = nil
	fake.planData = []byte("services: [")
	_, err = sup.Plan()
	assert.True(t, errors.IsInternalError(err))
}

func TestPebbleSupervisor_Apply(t *testing.T) {
	fake := &fakePebble{}
	sup := newTestPebble(t, fake)

	require.NoError(t, sup.Apply(plan.ServiceName, plan.BuildDesired(map[string]string{"category": "dev"})))

	require.Len(t, fake.layers, 1)
	layer := fake.layers[0]
	assert.True(t, layer.Combine)
	assert.Equal(t, "norris", layer.Label)

	parsed, err := plan.Unmarshal(layer.LayerData)
	require.NoError(t, err)
	assert.Equal(t, plan.LayerSummary, parsed.Summary)
	assert.Equal(t, "dev", parsed.Services["norris"].Environment["CHUCK_CATEGORY"])

	fake.addErr = stderrors.New("layer has invalid override")
	err = sup.Apply(plan.ServiceName, plan.BuildDesired(nil))
	assert.True(t, errors.IsApplyFailedError(err))

	err = sup.Apply("missing", plan.BuildDesired(nil))
	assert.True(t, errors.IsApplyFailedError(err))
}

func TestPebbleSupervisor_IsRunning(t *testing.T) {
	fake := &fakePebble{services: []*client.ServiceInfo{
		{Name: "norris", Startup: client.StartupEnabled, Current: client.StatusActive, CurrentSince: time.Now()},
		{Name: "sidecar", Startup: client.StartupDisabled, Current: client.StatusInactive},
	}}
	sup := newTestPebble(t, fake)

	running, err := sup.IsRunning("norris")
	require.NoError(t, err)
	assert.True(t, running)

	running, err = sup.IsRunning("sidecar")
	require.NoError(t, err)
	assert.False(t, running)

	running, err = sup.IsRunning("missing")
	require.NoError(t, err)
	assert.False(t, running)

	infos, err := sup.Services()
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, types.StartupEnabled, infos[0].Startup)
	assert.Equal(t, types.ServiceStateInactive, infos[1].Current)
}

func TestPebbleSupervisor_StartStop(t *testing.T) {
	fake := &fakePebble{}
	sup := newTestPebble(t, fake)

	require.NoError(t, sup.Stop("norris"))
	require.NoError(t, sup.Start("norris"))
	require.NoError(t, sup.AutoStart())

	assert.Equal(t, [][]string{{"norris"}}, fake.stopped)
	assert.Equal(t, [][]string{{"norris"}}, fake.started)
	assert.Equal(t, 1, fake.autostarts)

	fake.changeErr = "cannot start service: exited quickly"
	err := sup.Start("norris")
	require.Error(t, err)
	assert.True(t, errors.IsApplyFailedError(err))
	assert.Contains(t, err.Error(), "exited quickly")
}
