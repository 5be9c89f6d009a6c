package metrics

import (
	"time"

	"github.com/clustercore/lifecyclectl/pkg/manager"
)

// Collector periodically samples manager state into the cluster-level
// gauges (data streams, backing indices, deployments, Raft status). DSLC
// and AAS update their own counters/histograms directly as they act; this
// loop only covers the metrics nothing else naturally touches.
type Collector struct {
	manager *manager.Manager
	stopCh  chan struct{}
}

// NewCollector creates a new metrics collector.
func NewCollector(mgr *manager.Manager) *Collector {
	return &Collector{
		manager: mgr,
		stopCh:  make(chan struct{}),
	}
}

// Start begins collecting metrics every 15 seconds.
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
	c.collectClusterMetrics()
	c.collectRaftMetrics()
}

func (c *Collector) collectClusterMetrics() {
	streams, err := c.manager.ListDataStreams()
	if err != nil {
		return
	}
	DataStreamsTotal.Set(float64(len(streams)))

	indexCount := 0
	for _, ds := range streams {
		indexCount += len(ds.Indices)
	}
	BackingIndicesTotal.Set(float64(indexCount))

	deployments, err := c.manager.ListDeployments()
	if err != nil {
		return
	}
	DeploymentsTotal.Set(float64(len(deployments)))
}

func (c *Collector) collectRaftMetrics() {
	if c.manager.IsLeader() {
		RaftLeader.Set(1)
	} else {
		RaftLeader.Set(0)
	}

	stats := c.manager.GetRaftStats()
	if stats == nil {
		return
	}
	if lastIndex, ok := stats["last_log_index"].(uint64); ok {
		RaftLogIndex.Set(float64(lastIndex))
	}
	if appliedIndex, ok := stats["applied_index"].(uint64); ok {
		RaftAppliedIndex.Set(float64(appliedIndex))
	}
}
