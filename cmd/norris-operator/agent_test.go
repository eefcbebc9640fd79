package main

import (
	"context"
	stderrors "errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/cuemby/charmed-norris/pkg/api"
	"github.com/cuemby/charmed-norris/pkg/client"
	"github.com/cuemby/charmed-norris/pkg/config"
	"github.com/cuemby/charmed-norris/pkg/errors"
	"github.com/cuemby/charmed-norris/pkg/events"
	"github.com/cuemby/charmed-norris/pkg/plan"
	"github.com/cuemby/charmed-norris/pkg/supervisor"
	"github.com/cuemby/charmed-norris/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAgent(t *testing.T, category string) (*agent, string) {
	t.Helper()

	dir := t.TempDir()
	s := config.DefaultSettings()
	s.Backend = supervisor.BackendLocal
	s.DataDir = filepath.Join(dir, "state")
	s.ValuesFile = filepath.Join(dir, "values.yaml")
	writeValues(t, s.ValuesFile, category)

	op, err := newOperator(s, nil)
	require.NoError(t, err)
	t.Cleanup(op.Close)

	return newAgent(op, nil), s.ValuesFile
}

func writeValues(t *testing.T, path, category string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("category: "+category+"\n"), 0600))
}

func appliedCategory(t *testing.T, a *agent) string {
	t.Helper()
	state, err := a.op.charm.Status()
	require.NoError(t, err)
	require.NotNil(t, state.LastApplied)
	return state.LastApplied.Services[plan.ServiceName].Environment[plan.CategoryEnv]
}

func TestAgentTick_ConfigChanges(t *testing.T) {
	a, values := newTestAgent(t, "dev")
	ctx := context.Background()

	a.Tick(ctx)
	state, err := a.op.charm.Status()
	require.NoError(t, err)
	assert.Equal(t, types.StatusActive, state.Status.Kind)
	assert.Equal(t, "dev", appliedCategory(t, a))
	assert.Equal(t, 0, state.Restarts)

	// Unchanged values dispatch nothing
	a.Tick(ctx)
	state, err = a.op.charm.Status()
	require.NoError(t, err)
	assert.Equal(t, 0, state.Restarts)

	writeValues(t, values, "religion")
	a.Tick(ctx)
	state, err = a.op.charm.Status()
	require.NoError(t, err)
	assert.Equal(t, "religion", appliedCategory(t, a))
	assert.Equal(t, 1, state.Restarts)
	assert.Equal(t, string(events.EventConfigChanged), state.LastEvent)
}

func TestAgentTick_RetriesDeferred(t *testing.T) {
	a, _ := newTestAgent(t, "dev")
	ctx := context.Background()

	local, ok := a.op.sup.(*supervisor.LocalSupervisor)
	require.True(t, ok)
	local.SetAvailable(false)

	a.Tick(ctx)
	assert.True(t, a.Deferred(events.EventConfigChanged))
	state, err := a.op.charm.Status()
	require.NoError(t, err)
	assert.Equal(t, types.StatusWaiting, state.Status.Kind)

	local.SetAvailable(true)
	a.Tick(ctx)
	assert.False(t, a.Deferred(events.EventConfigChanged))
	state, err = a.op.charm.Status()
	require.NoError(t, err)
	assert.Equal(t, types.StatusActive, state.Status.Kind)
	assert.Equal(t, "dev", appliedCategory(t, a))

	_, err = a.op.requirer.Published()
	assert.True(t, errors.IsNotFoundError(err), "no ingress relation has joined")
}

func TestAgentAPI_Events(t *testing.T) {
	a, _ := newTestAgent(t, "")
	srv := httptest.NewServer(api.NewServer(a, a.op.charm, a.health).Handler())
	defer srv.Close()
	c := client.NewClient(srv.URL)

	tests := []struct {
		kind   string
		result string
	}{
		{"ingress-relation-joined", events.ResultOK},
		{"config-changed", events.ResultOK},
		{"update-status", events.ResultIgnored},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			result, err := c.Dispatch(context.Background(), tt.kind)
			require.NoError(t, err)
			assert.Equal(t, tt.result, result.Result)
			assert.NotEmpty(t, result.ID)
		})
	}

	data, err := a.op.requirer.Published()
	require.NoError(t, err)
	assert.Equal(t, "charmed.norris", data[types.IngressKeyHostname])
	assert.Equal(t, "3333", data[types.IngressKeyPort])

	state, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.StatusActive, state.Status.Kind)
	assert.Equal(t, string(events.EventConfigChanged), state.LastEvent)
}

func TestAgentTick_RetriesFailedWorkloadReady(t *testing.T) {
	a, _ := newTestAgent(t, "dev")
	ctx := context.Background()

	calls := 0
	a.op.dispatcher.Register(events.EventWorkloadReady, func(context.Context, *events.Event) error {
		calls++
		if calls == 1 {
			return errors.NewApplyFailedError("cannot start services", stderrors.New("exited quickly"))
		}
		return nil
	})

	a.Tick(ctx)
	assert.Equal(t, 1, calls)
	assert.True(t, a.Deferred(events.EventWorkloadReady))

	a.Tick(ctx)
	assert.Equal(t, 2, calls)
	assert.False(t, a.Deferred(events.EventWorkloadReady))

	a.Tick(ctx)
	assert.Equal(t, 2, calls, "handled once the supervisor stays reachable")
}

func TestAgent_RecordOutcome(t *testing.T) {
	a, _ := newTestAgent(t, "")
	ev := events.NewEvent(events.EventConfigChanged, nil)

	a.recordOutcome(&events.Outcome{Event: ev, Handled: true, Deferred: true,
		Err: errors.NewNotReadyError("cannot connect", nil)})
	comp, ok := a.health.Component(componentCharm)
	require.True(t, ok)
	assert.True(t, comp.Healthy)

	a.recordOutcome(&events.Outcome{Event: ev, Handled: true, Err: stderrors.New("boom")})
	comp, _ = a.health.Component(componentCharm)
	assert.False(t, comp.Healthy)
	assert.Contains(t, comp.Message, "boom")

	a.recordOutcome(&events.Outcome{Event: events.NewEvent("update-status", nil)})
	comp, _ = a.health.Component(componentCharm)
	assert.False(t, comp.Healthy, "ignored events leave health alone")
}
