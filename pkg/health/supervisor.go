package health

import (
	"context"
	"fmt"
	"time"
)

// ServiceProber is the part of the supervisor a SupervisorChecker needs
type ServiceProber interface {
	CanConnect() bool
	IsRunning(name string) (bool, error)
}

// SupervisorChecker reports healthy when the supervisor answers and the
// named service is running under it
type SupervisorChecker struct {
	Prober  ServiceProber
	Service string
}

// NewSupervisorChecker creates a checker for one supervised service
func NewSupervisorChecker(prober ServiceProber, service string) *SupervisorChecker {
	return &SupervisorChecker{Prober: prober, Service: service}
}

// Check performs the supervisor health check
func (s *SupervisorChecker) Check(_ context.Context) Result {
	start := time.Now()
	result := func(healthy bool, message string) Result {
		return Result{Healthy: healthy, Message: message, CheckedAt: start, Duration: time.Since(start)}
	}

	if !s.Prober.CanConnect() {
		return result(false, "supervisor not reachable")
	}

	running, err := s.Prober.IsRunning(s.Service)
	if err != nil {
		return result(false, fmt.Sprintf("failed to query %s: %v", s.Service, err))
	}
	if !running {
		return result(false, fmt.Sprintf("service %s is not running", s.Service))
	}
	return result(true, fmt.Sprintf("service %s is running", s.Service))
}

// Type returns the health check type
func (s *SupervisorChecker) Type() CheckType {
	return CheckTypeSupervisor
}
