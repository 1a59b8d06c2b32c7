package metrics

import "time"

// LockStats is the subset of keylock.Registry that Collector polls. It is
// defined here rather than imported to avoid a dependency from pkg/metrics
// onto pkg/keylock.
type LockStats interface {
	Held() int
}

// Collector periodically samples gauge-shaped state that has no natural
// "on every call" observation point, such as the number of keys currently
// held in the Key-Lock Registry.
type Collector struct {
	locks  LockStats
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector polling locks.
func NewCollector(locks LockStats) *Collector {
	return &Collector{
		locks:  locks,
		stopCh: make(chan struct{}),
	}
}

// Start begins polling on a 15 second interval.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
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

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	LocksHeld.Set(float64(c.locks.Held()))
}
