package manager

import (
	"time"

	"github.com/cuemby/herald/pkg/metrics"
)

// MetricsCollector publishes repository sizes as Prometheus gauges
type MetricsCollector struct {
	manager  *EventManager
	interval time.Duration
	stopCh   chan struct{}
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(mgr *EventManager, interval time.Duration) *MetricsCollector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &MetricsCollector{
		manager:  mgr,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *MetricsCollector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *MetricsCollector) Stop() {
	close(c.stopCh)
}

func (c *MetricsCollector) collect() {
	stats := c.manager.Stats()

	metrics.EventsTotal.WithLabelValues("produced").Set(float64(stats.Produced))
	metrics.EventsTotal.WithLabelValues("subscribed").Set(float64(stats.Subscribed))
	metrics.PeriodicEventsTotal.WithLabelValues("produced").Set(float64(stats.ProducedPeriodic))
	metrics.PeriodicEventsTotal.WithLabelValues("subscribed").Set(float64(stats.SubscribedPeriodic))
	metrics.SubscribersTotal.Set(float64(stats.Subscribers))

	// Expired request ids belong to callers that gave up waiting
	if n := c.manager.requestIDs.CleanupExpired(); n > 0 {
		c.manager.logger.Debug().Int("released", n).Msg("Released expired request ids")
	}
}
