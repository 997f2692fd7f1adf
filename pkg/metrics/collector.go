package metrics

import (
	"time"

	"github.com/cuemby/flatshard/pkg/flatstate"
)

// statusReader is the one flatstore.Store method this collector needs.
// Declared locally rather than importing pkg/flatstore, since flatstore
// itself reports read/commit timings through this package.
type statusReader interface {
	GetStatus(shard flatstate.ShardUID) (flatstate.Status, error)
}

// Collector periodically samples shard status from the flat store so
// gauges stay current even for shards that aren't actively being
// written to.
type Collector struct {
	store  statusReader
	shards []flatstate.ShardUID
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector over the given shards.
func NewCollector(store statusReader, shards []flatstate.ShardUID) *Collector {
	return &Collector{
		store:  store,
		shards: shards,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics
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

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectReshardingGauge()
}

func (c *Collector) collectReshardingGauge() {
	for _, shard := range c.shards {
		status, err := c.store.GetStatus(shard)
		if err != nil {
			continue
		}
		switch status.Kind {
		case flatstate.StatusSplittingParent, flatstate.StatusCreatingChild, flatstate.StatusCatchingUp:
			ReshardingInProgress.Set(1)
			return
		}
	}
	ReshardingInProgress.Set(0)
}
