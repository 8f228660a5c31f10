package metrics

import "github.com/prometheus/client_golang/prometheus"

// PoolStats is read at scrape time.
type PoolStats interface {
	Snapshot() (workers, pending int)
}

// PoolCollector exposes the engine worker pool as live gauges.
type PoolCollector struct {
	pool PoolStats

	workers *prometheus.Desc
	pending *prometheus.Desc
}

func NewPoolCollector(pool PoolStats) *PoolCollector {
	return &PoolCollector{
		pool: pool,
		workers: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "engine_pool", "workers"),
			"Workers running blocking engine calls.",
			nil, nil,
		),
		pending: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "engine_pool", "pending"),
			"Engine calls waiting for a worker.",
			nil, nil,
		),
	}
}

func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.workers
	ch <- c.pending
}

func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	var workers, pending int
	if c.pool != nil {
		workers, pending = c.pool.Snapshot()
	}
	ch <- prometheus.MustNewConstMetric(c.workers, prometheus.GaugeValue, float64(workers))
	ch <- prometheus.MustNewConstMetric(c.pending, prometheus.GaugeValue, float64(pending))
}
