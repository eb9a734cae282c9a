package metrics

import (
	"time"

	"github.com/menmos/menmos/pkg/router"
	"github.com/menmos/menmos/pkg/store"
	"github.com/menmos/menmos/pkg/types"
)

// Collector periodically samples the store and router for gauge
// metrics that have no natural counter/histogram call site (node
// counts, blob counts by status, row occupancy).
type Collector struct {
	st     *store.Store
	rtr    *router.Router
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector.
func NewCollector(st *store.Store, rtr *router.Router) *Collector {
	return &Collector{
		st:     st,
		rtr:    rtr,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics on a 15 second interval.
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
	c.collectNodeMetrics()
	c.collectBlobMetrics()
}

func (c *Collector) collectNodeMetrics() {
	nodes, err := c.st.AllNodes()
	if err != nil {
		return
	}

	live, dead := 0, 0
	for _, n := range nodes {
		if c.rtr.IsLive(n.ID) {
			live++
		} else {
			dead++
		}
	}
	NodesTotal.WithLabelValues("live").Set(float64(live))
	NodesTotal.WithLabelValues("dead").Set(float64(dead))
}

func (c *Collector) collectBlobMetrics() {
	counts := make(map[types.BlobStatus]int)
	rows := 0

	err := c.st.AllBlobs(func(id types.BlobID, meta *types.BlobMeta) error {
		counts[meta.Status]++
		rows++
		return nil
	})
	if err != nil {
		return
	}

	for status, count := range counts {
		BlobsTotal.WithLabelValues(string(status)).Set(float64(count))
	}
	IndexedRowsTotal.Set(float64(rows))
}
