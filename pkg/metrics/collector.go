package metrics

import (
	"context"
	"time"
)

// Source is anything a Collector can poll for gauge metrics: one named
// cache instance (UserAccount, LocalMachine, Secure, InMemory, ...).
type Source interface {
	GetAllKeys(ctx context.Context) ([]string, error)
}

// QueueDepthSource is implemented by sources that can also report how
// many operations are currently waiting on the next drain.
type QueueDepthSource interface {
	PendingOps() int
}

// Collector periodically samples a set of named cache instances and
// updates the EntriesTotal/QueueDepth gauges.
type Collector struct {
	sources map[string]Source
	period  time.Duration
	stopCh  chan struct{}
}

// NewCollector builds a Collector over the given named sources, keyed
// by instance name (e.g. "user_account", "secure").
func NewCollector(sources map[string]Source) *Collector {
	return &Collector{
		sources: sources,
		period:  15 * time.Second,
		stopCh:  make(chan struct{}),
	}
}

// Start begins the polling loop in a background goroutine.
func (c *Collector) Start() {
	ticker := time.NewTicker(c.period)
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

// Stop terminates the polling loop.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for name, src := range c.sources {
		keys, err := src.GetAllKeys(ctx)
		if err != nil {
			continue
		}
		EntriesTotal.WithLabelValues(name).Set(float64(len(keys)))

		if qd, ok := src.(QueueDepthSource); ok {
			QueueDepth.WithLabelValues(name).Set(float64(qd.PendingOps()))
		}
	}
}
