package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

// TestNewTimer tests timer creation
func TestNewTimer(t *testing.T) {
	timer := NewTimer()

	assert.False(t, timer.start.IsZero())
	assert.Less(t, time.Since(timer.start), time.Second)
}

// TestTimerDuration tests duration measurement
func TestTimerDuration(t *testing.T) {
	timer := NewTimer()

	sleepDuration := 20 * time.Millisecond
	time.Sleep(sleepDuration)

	assert.GreaterOrEqual(t, timer.Duration(), sleepDuration)
}

// TestTimerObserveDuration tests histogram observation
func TestTimerObserveDuration(t *testing.T) {
	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_duration_seconds",
		Help:    "Test duration histogram",
		Buckets: prometheus.DefBuckets,
	})
	registry := prometheus.NewRegistry()
	registry.MustRegister(histogram)

	NewTimer().ObserveDuration(histogram)

	count, err := testutil.GatherAndCount(registry, "test_duration_seconds")
	assert.NoError(t, err)
	assert.Equal(t, 1, count)
}

// TestTimerObserveDurationVec tests histogram vec observation
func TestTimerObserveDurationVec(t *testing.T) {
	histogramVec := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "test_duration_vec_seconds",
			Help:    "Test duration histogram vec",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	NewTimer().ObserveDurationVec(histogramVec, "reconcile")

	assert.Equal(t, 1, testutil.CollectAndCount(histogramVec))
}

// TestMultipleTimers tests that multiple timers work independently
func TestMultipleTimers(t *testing.T) {
	timer1 := NewTimer()
	time.Sleep(10 * time.Millisecond)
	timer2 := NewTimer()
	time.Sleep(10 * time.Millisecond)

	assert.Greater(t, timer1.Duration(), timer2.Duration())
}

func TestSetUnitStatus(t *testing.T) {
	SetUnitStatus("blocked")

	assert.Equal(t, float64(1), testutil.ToFloat64(UnitStatus.WithLabelValues("blocked")))
	assert.Equal(t, float64(0), testutil.ToFloat64(UnitStatus.WithLabelValues("active")))

	SetUnitStatus("active")

	assert.Equal(t, float64(0), testutil.ToFloat64(UnitStatus.WithLabelValues("blocked")))
	assert.Equal(t, float64(1), testutil.ToFloat64(UnitStatus.WithLabelValues("active")))
}

func TestSetSupervisorReachable(t *testing.T) {
	SetSupervisorReachable(true)
	assert.Equal(t, float64(1), testutil.ToFloat64(SupervisorReachable))

	SetSupervisorReachable(false)
	assert.Equal(t, float64(0), testutil.ToFloat64(SupervisorReachable))
}
