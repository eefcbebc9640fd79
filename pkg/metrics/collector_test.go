package metrics

import (
	stderrors "errors"
	"testing"
	"time"

	"github.com/cuemby/charmed-norris/pkg/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

type fakeUnit struct {
	state *types.UnitState
	err   error
}

func (f *fakeUnit) GetUnitState() (*types.UnitState, error) { return f.state, f.err }

type fakeServices struct {
	connect bool
	infos   []types.ServiceInfo
}

func (f *fakeServices) CanConnect() bool { return f.connect }

func (f *fakeServices) Services(...string) ([]types.ServiceInfo, error) { return f.infos, nil }

func TestCollector_Collect(t *testing.T) {
	unit := &fakeUnit{state: &types.UnitState{Status: types.WaitingStatus("waiting"), Restarts: 4}}
	services := &fakeServices{connect: true, infos: []types.ServiceInfo{
		{Name: "norris", Current: types.ServiceStateActive},
		{Name: "sidecar", Current: types.ServiceStateInactive},
	}}

	NewCollector(unit, services, time.Minute).Collect()

	assert.Equal(t, float64(1), testutil.ToFloat64(UnitStatus.WithLabelValues("waiting")))
	assert.Equal(t, float64(0), testutil.ToFloat64(UnitStatus.WithLabelValues("active")))
	assert.Equal(t, float64(4), testutil.ToFloat64(UnitRestarts))
	assert.Equal(t, float64(1), testutil.ToFloat64(SupervisorReachable))
	assert.Equal(t, float64(1), testutil.ToFloat64(ServiceRunning.WithLabelValues("norris")))
	assert.Equal(t, float64(0), testutil.ToFloat64(ServiceRunning.WithLabelValues("sidecar")))
}

func TestCollector_Unreachable(t *testing.T) {
	unit := &fakeUnit{err: stderrors.New("closed")}
	NewCollector(unit, &fakeServices{}, 0).Collect()

	assert.Equal(t, float64(0), testutil.ToFloat64(SupervisorReachable))
}

func TestCollector_StartStop(t *testing.T) {
	unit := &fakeUnit{state: &types.UnitState{Status: types.ActiveStatus(), Restarts: 7}}
	c := NewCollector(unit, &fakeServices{connect: true}, time.Hour)
	c.Start()
	defer c.Stop()

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(UnitRestarts) == 7
	}, time.Second, 5*time.Millisecond)

	c.Stop()
}
