package metrics

import (
	"sync"
	"time"
)

// DefaultCollectInterval is how often NewCollector samples its source
const DefaultCollectInterval = 15 * time.Second

// SessionSource is what the collector samples. The session manager
// implements it.
type SessionSource interface {
	SessionCount() int
	RootCount() int
	PushCount() int
}

// Collector samples the active-session gauges on a ticker. Counting under
// the registry lock on every request would cost more than a stale gauge.
type Collector struct {
	source   SessionSource
	interval time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewCollector samples source every DefaultCollectInterval
func NewCollector(source SessionSource) *Collector {
	return NewCollectorWithInterval(source, DefaultCollectInterval)
}

// NewCollectorWithInterval samples source every interval
func NewCollectorWithInterval(source SessionSource, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = DefaultCollectInterval
	}
	return &Collector{
		source:   source,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start samples once and then on every tick until Stop
func (c *Collector) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				return
			}
		}
	}()
}

// Stop ends sampling and waits for the sampling goroutine. It is safe to
// call more than once.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

func (c *Collector) collect() {
	SessionsActive.Set(float64(c.source.SessionCount()))
	RootsActive.Set(float64(c.source.RootCount()))
	PushConnectionsActive.Set(float64(c.source.PushCount()))
}
