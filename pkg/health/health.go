// Package health probes the workload and its supervisor and feeds the
// results into the operator's health report.
package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cuemby/charmed-norris/pkg/log"
	"github.com/rs/zerolog"
)

// CheckType represents the type of health check
type CheckType string

const (
	CheckTypeHTTP       CheckType = "http"
	CheckTypeSupervisor CheckType = "supervisor"
)

// Result represents the outcome of a health check
type Result struct {
	Healthy   bool
	Message   string
	CheckedAt time.Time
	Duration  time.Duration
}

// Checker is the interface that all health checkers must implement
type Checker interface {
	// Check performs the health check and returns the result
	Check(ctx context.Context) Result

	// Type returns the type of health check
	Type() CheckType
}

// Config contains common configuration for all health checks
type Config struct {
	// Interval is the time between health checks
	Interval time.Duration

	// Timeout is the maximum time to wait for a health check to complete
	Timeout time.Duration

	// Retries is the number of consecutive failures before marking as unhealthy
	Retries int

	// StartPeriod is the grace period before failures count, giving the
	// workload time to come up after a restart
	StartPeriod time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		Retries:     3,
		StartPeriod: 0,
	}
}

// Status tracks the health of one checked component
type Status struct {
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
	LastCheck            time.Time
	LastResult           Result
	Healthy              bool
	StartedAt            time.Time
}

// NewStatus creates a new Status with default values
func NewStatus() *Status {
	return &Status{
		Healthy:   true, // Assume healthy until proven otherwise
		StartedAt: time.Now(),
	}
}

// Update updates the status based on a new health check result
func (s *Status) Update(result Result, config Config) {
	s.LastCheck = result.CheckedAt
	s.LastResult = result

	if result.Healthy {
		s.ConsecutiveSuccesses++
		s.ConsecutiveFailures = 0
		s.Healthy = true
		return
	}

	s.ConsecutiveFailures++
	s.ConsecutiveSuccesses = 0

	// Mark as unhealthy after reaching retry threshold
	if s.ConsecutiveFailures >= config.Retries {
		s.Healthy = false
	}
}

// InStartPeriod returns true if we're still in the startup grace period
func (s *Status) InStartPeriod(config Config) bool {
	if config.StartPeriod == 0 {
		return false
	}
	return time.Since(s.StartedAt) < config.StartPeriod
}

// Reporter receives component health, typically a metrics.HealthChecker
type Reporter interface {
	Set(name string, healthy bool, message string)
}

// Monitor runs named checks on an interval and reports their status
type Monitor struct {
	mu       sync.Mutex
	config   Config
	checks   map[string]Checker
	statuses map[string]*Status
	reporter Reporter
	logger   zerolog.Logger
}

// NewMonitor creates a monitor reporting to reporter
func NewMonitor(config Config, reporter Reporter) *Monitor {
	return &Monitor{
		config:   config,
		checks:   make(map[string]Checker),
		statuses: make(map[string]*Status),
		reporter: reporter,
		logger:   log.WithComponent("health"),
	}
}

// Add registers a check under a component name
func (m *Monitor) Add(name string, checker Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks[name] = checker
	m.statuses[name] = NewStatus()
}

// Status returns a copy of the named component's status
func (m *Monitor) Status(name string) (Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.statuses[name]
	if !ok {
		return Status{}, false
	}
	return *s, true
}

// RunOnce runs every check once and reports the results
func (m *Monitor) RunOnce(ctx context.Context) {
	m.mu.Lock()
	names := make([]string, 0, len(m.checks))
	for name := range m.checks {
		names = append(names, name)
	}
	m.mu.Unlock()
	sort.Strings(names)

	for _, name := range names {
		m.check(ctx, name)
	}
}

func (m *Monitor) check(ctx context.Context, name string) {
	m.mu.Lock()
	checker := m.checks[name]
	m.mu.Unlock()

	checkCtx, cancel := ctx, context.CancelFunc(func() {})
	if m.config.Timeout > 0 {
		checkCtx, cancel = context.WithTimeout(ctx, m.config.Timeout)
	}
	result := checker.Check(checkCtx)
	cancel()

	m.mu.Lock()
	status := m.statuses[name]
	if !result.Healthy && status.InStartPeriod(m.config) {
		m.mu.Unlock()
		m.logger.Debug().Str("check", name).Str("message", result.Message).Msg("Check failed during start period")
		return
	}
	wasHealthy := status.Healthy
	status.Update(result, m.config)
	healthy := status.Healthy
	m.mu.Unlock()

	if wasHealthy != healthy {
		m.logger.Info().Str("check", name).Bool("healthy", healthy).Str("message", result.Message).Msg("Health changed")
	}
	if m.reporter != nil {
		m.reporter.Set(name, healthy, result.Message)
	}
}

// Run checks on the configured interval until ctx is done
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	m.RunOnce(ctx)
	for {
		select {
		case <-ticker.C:
			m.RunOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}
