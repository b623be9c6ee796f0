// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package metrics

import (
	"sync"
	"time"

	"grimm.is/peek/internal/logging"
	"grimm.is/peek/internal/model"
)

// Source is what the collector samples.
type Source interface {
	GetStats() model.Stats
	CacheLen() int
	OverrideCount() int
}

// Collector periodically copies engine state into the registry.
type Collector struct {
	registry *Registry
	source   Source
	logger   *logging.Logger
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewCollector creates a collector sampling source every interval.
func NewCollector(registry *Registry, source Source, logger *logging.Logger, interval time.Duration) *Collector {
	if logger == nil {
		logger = logging.WithComponent("metrics")
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Collector{
		registry: registry,
		source:   source,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the collection loop in the background.
func (c *Collector) Start() {
	c.logger.Info("Starting metrics collector", "interval", c.interval.String())
	c.Collect()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.Collect()
			case <-c.stopCh:
				return
			}
		}
	}()
}

// Stop ends the loop and waits for it.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
	c.logger.Info("Stopping metrics collector")
}

// Collect samples the source once.
func (c *Collector) Collect() {
	c.registry.SetStats(c.source.GetStats())
	c.registry.CacheEntries.Set(float64(c.source.CacheLen()))
	c.registry.OverrideEntries.Set(float64(c.source.OverrideCount()))
}
