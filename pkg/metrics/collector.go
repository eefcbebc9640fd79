package metrics

import (
	"sync"
	"time"

	"github.com/cuemby/charmed-norris/pkg/log"
	"github.com/cuemby/charmed-norris/pkg/types"
)

// DefaultCollectInterval is how often gauges are refreshed
const DefaultCollectInterval = 15 * time.Second

// UnitSource provides the persisted unit state
type UnitSource interface {
	GetUnitState() (*types.UnitState, error)
}

// ServiceSource provides the supervisor's view of its services
type ServiceSource interface {
	CanConnect() bool
	Services(names ...string) ([]types.ServiceInfo, error)
}

// Collector refreshes gauges from the unit state and the supervisor
type Collector struct {
	unit     UnitSource
	services ServiceSource
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewCollector creates a new metrics collector
func NewCollector(unit UnitSource, services ServiceSource, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = DefaultCollectInterval
	}
	return &Collector{
		unit:     unit,
		services: services,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		// Collect immediately on start
		c.Collect()

		for {
			select {
			case <-ticker.C:
				c.Collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
}

// Collect refreshes every gauge once
func (c *Collector) Collect() {
	c.collectUnitMetrics()
	c.collectServiceMetrics()
}

func (c *Collector) collectUnitMetrics() {
	state, err := c.unit.GetUnitState()
	if err != nil {
		log.Logger.Debug().Err(err).Msg("Failed to read unit state for metrics")
		return
	}
	SetUnitStatus(string(state.Status.Kind))
	UnitRestarts.Set(float64(state.Restarts))
}

func (c *Collector) collectServiceMetrics() {
	if !c.services.CanConnect() {
		SetSupervisorReachable(false)
		return
	}
	SetSupervisorReachable(true)

	infos, err := c.services.Services()
	if err != nil {
		log.Logger.Debug().Err(err).Msg("Failed to list services for metrics")
		return
	}
	for _, info := range infos {
		if info.IsRunning() {
			ServiceRunning.WithLabelValues(info.Name).Set(1)
		} else {
			ServiceRunning.WithLabelValues(info.Name).Set(0)
		}
	}
}
