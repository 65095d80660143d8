package redis

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// poolCollector exports go-redis connection pool statistics at scrape time.
type poolCollector struct {
	stats func() *redis.PoolStats

	hits, misses, timeouts *prometheus.Desc
	total, idle, stale     *prometheus.Desc
}

// Collector returns a prometheus.Collector for the client's pool.
func (c *Client) Collector() prometheus.Collector {
	return newPoolCollector(c.rdb.PoolStats)
}

func newPoolCollector(stats func() *redis.PoolStats) *poolCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName("positional", "redis_pool", name), help, nil, nil)
	}
	return &poolCollector{
		stats:    stats,
		hits:     desc("hits_total", "Connections reused from the pool."),
		misses:   desc("misses_total", "Connections that had to be dialed."),
		timeouts: desc("timeouts_total", "Waits for a free connection that timed out."),
		total:    desc("connections", "Connections currently in the pool."),
		idle:     desc("idle_connections", "Idle connections in the pool."),
		stale:    desc("stale_connections_total", "Connections removed as stale."),
	}
}

func (p *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{p.hits, p.misses, p.timeouts, p.total, p.idle, p.stale} {
		ch <- d
	}
}

func (p *poolCollector) Collect(ch chan<- prometheus.Metric) {
	s := p.stats()
	ch <- prometheus.MustNewConstMetric(p.hits, prometheus.CounterValue, float64(s.Hits))
	ch <- prometheus.MustNewConstMetric(p.misses, prometheus.CounterValue, float64(s.Misses))
	ch <- prometheus.MustNewConstMetric(p.timeouts, prometheus.CounterValue, float64(s.Timeouts))
	ch <- prometheus.MustNewConstMetric(p.total, prometheus.GaugeValue, float64(s.TotalConns))
	ch <- prometheus.MustNewConstMetric(p.idle, prometheus.GaugeValue, float64(s.IdleConns))
	ch <- prometheus.MustNewConstMetric(p.stale, prometheus.CounterValue, float64(s.StaleConns))
}
