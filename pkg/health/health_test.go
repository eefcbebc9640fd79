package health

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProber struct {
	connect bool
	running bool
	err     error
}

func (f *fakeProber) CanConnect() bool { return f.connect }

func (f *fakeProber) IsRunning(string) (bool, error) { return f.running, f.err }

type report struct {
	healthy bool
	message string
}

type fakeReporter struct {
	mu      sync.Mutex
	reports map[string]report
}

func (f *fakeReporter) Set(name string, healthy bool, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reports == nil {
		f.reports = make(map[string]report)
	}
	f.reports[name] = report{healthy, message}
}

func (f *fakeReporter) get(name string) (report, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reports[name]
	return r, ok
}

func TestSupervisorChecker(t *testing.T) {
	tests := []struct {
		name    string
		prober  *fakeProber
		healthy bool
		message string
	}{
		{"unreachable", &fakeProber{}, false, "supervisor not reachable"},
		{"query fails", &fakeProber{connect: true, err: stderrors.New("boom")}, false, "failed to query norris: boom"},
		{"stopped", &fakeProber{connect: true}, false, "service norris is not running"},
		{"running", &fakeProber{connect: true, running: true}, true, "service norris is running"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NewSupervisorChecker(tt.prober, "norris").Check(context.Background())
			assert.Equal(t, tt.healthy, result.Healthy)
			assert.Equal(t, tt.message, result.Message)
		})
	}

	assert.Equal(t, CheckTypeSupervisor, NewSupervisorChecker(&fakeProber{}, "norris").Type())
}

func TestStatus_Update(t *testing.T) {
	cfg := DefaultConfig()
	s := NewStatus()
	require.True(t, s.Healthy)

	s.Update(Result{Healthy: false}, cfg)
	s.Update(Result{Healthy: false}, cfg)
	assert.True(t, s.Healthy, "below retry threshold")
	assert.Equal(t, 2, s.ConsecutiveFailures)

	s.Update(Result{Healthy: false}, cfg)
	assert.False(t, s.Healthy)

	s.Update(Result{Healthy: true}, cfg)
	assert.True(t, s.Healthy)
	assert.Equal(t, 0, s.ConsecutiveFailures)
	assert.Equal(t, 1, s.ConsecutiveSuccesses)
}

func TestStatus_InStartPeriod(t *testing.T) {
	s := NewStatus()
	assert.False(t, s.InStartPeriod(Config{}))
	assert.True(t, s.InStartPeriod(Config{StartPeriod: time.Hour}))

	s.StartedAt = time.Now().Add(-2 * time.Hour)
	assert.False(t, s.InStartPeriod(Config{StartPeriod: time.Hour}))
}

func TestMonitor_RunOnce(t *testing.T) {
	reporter := &fakeReporter{}
	prober := &fakeProber{connect: true, running: true}

	m := NewMonitor(Config{Timeout: time.Second, Retries: 1}, reporter)
	m.Add("supervisor", NewSupervisorChecker(prober, "norris"))

	m.RunOnce(context.Background())
	r, ok := reporter.get("supervisor")
	require.True(t, ok)
	assert.True(t, r.healthy)

	prober.running = false
	m.RunOnce(context.Background())
	r, _ = reporter.get("supervisor")
	assert.False(t, r.healthy)
	assert.Equal(t, "service norris is not running", r.message)

	status, ok := m.Status("supervisor")
	require.True(t, ok)
	assert.Equal(t, 1, status.ConsecutiveFailures)

	_, ok = m.Status("workload")
	assert.False(t, ok)
}

func TestMonitor_StartPeriodSuppressesFailures(t *testing.T) {
	reporter := &fakeReporter{}
	m := NewMonitor(Config{Retries: 1, StartPeriod: time.Hour}, reporter)
	m.Add("supervisor", NewSupervisorChecker(&fakeProber{}, "norris"))

	m.RunOnce(context.Background())
	_, ok := reporter.get("supervisor")
	assert.False(t, ok)
}

func TestMonitor_Run(t *testing.T) {
	reporter := &fakeReporter{}
	m := NewMonitor(Config{Interval: 10 * time.Millisecond, Timeout: time.Second, Retries: 1}, reporter)
	m.Add("supervisor", NewSupervisorChecker(&fakeProber{connect: true, running: true}, "norris"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		status, _ := m.Status("supervisor")
		return status.ConsecutiveSuccesses >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
}
