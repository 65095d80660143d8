// Package analytics keeps in-process search statistics: counts, latency
// percentiles over a sliding window, and the most frequent and zero-result
// queries.
package analytics

import (
	"cmp"
	"slices"
	"strings"
	"sync"
	"time"
)

const (
	defaultWindow = 10000
	topQueries    = 10
	// Per-query counters stop admitting new queries past this size.
	maxTrackedQueries = 50000
)

type AggregatedStats struct {
	TotalSearches     int64        `json:"total_searches"`
	CacheHits         int64        `json:"cache_hits"`
	CacheMisses       int64        `json:"cache_misses"`
	ZeroResultCount   int64        `json:"zero_result_count"`
	AvgLatencyMs      float64      `json:"avg_latency_ms"`
	P50LatencyMs      float64      `json:"p50_latency_ms"`
	P95LatencyMs      float64      `json:"p95_latency_ms"`
	P99LatencyMs      float64      `json:"p99_latency_ms"`
	TopQueries        []QueryCount `json:"top_queries"`
	ZeroResultQueries []QueryCount `json:"zero_result_queries"`
	QueriesPerMinute  float64      `json:"queries_per_minute"`
	LastGeneration    uint64       `json:"last_generation"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// latencyRing holds the most recent len(samples) latencies.
type latencyRing struct {
	samples []time.Duration
	filled  int
	next    int
}

func (r *latencyRing) add(d time.Duration) {
	r.samples[r.next] = d
	r.next = (r.next + 1) % len(r.samples)
	r.filled = min(r.filled+1, len(r.samples))
}

func (r *latencyRing) sorted() []time.Duration {
	out := slices.Clone(r.samples[:r.filled])
	slices.Sort(out)
	return out
}

type tally map[string]int64

func (t tally) inc(query string) {
	if _, seen := t[query]; !seen && len(t) >= maxTrackedQueries {
		return
	}
	t[query]++
}

// top orders by count, then query, and keeps the first n.
func (t tally) top(n int) []QueryCount {
	out := make([]QueryCount, 0, len(t))
	for q, c := range t {
		out = append(out, QueryCount{Query: q, Count: c})
	}
	slices.SortFunc(out, func(a, b QueryCount) int {
		return cmp.Or(cmp.Compare(b.Count, a.Count), strings.Compare(a.Query, b.Query))
	})
	return out[:min(n, len(out))]
}

type Aggregator struct {
	mu        sync.RWMutex
	counts    AggregatedStats
	latency   latencyRing
	queries   tally
	zeroHits  tally
	startTime time.Time
	now       func() time.Time
}

// NewAggregator keeps latency samples for the last window searches.
func NewAggregator(window int) *Aggregator {
	if window <= 0 {
		window = defaultWindow
	}
	return &Aggregator{
		latency:   latencyRing{samples: make([]time.Duration, window)},
		queries:   make(tally),
		zeroHits:  make(tally),
		startTime: time.Now(),
		now:       time.Now,
	}
}

func (a *Aggregator) Record(event SearchEvent) {
	query := strings.Join(strings.Fields(event.Query), " ")

	a.mu.Lock()
	defer a.mu.Unlock()
	c := &a.counts
	c.TotalSearches++
	if event.CacheHit {
		c.CacheHits++
	} else {
		c.CacheMisses++
	}
	c.LastGeneration = event.Generation
	a.latency.add(event.Latency)
	a.queries.inc(query)
	if event.TotalHits == 0 {
		c.ZeroResultCount++
		a.zeroHits.inc(query)
	}
}

func (a *Aggregator) Stats() AggregatedStats {
	return a.StatsTop(topQueries)
}

// StatsTop is Stats with the query lists cut to n entries.
func (a *Aggregator) StatsTop(n int) AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := a.counts
	if sorted := a.latency.sorted(); len(sorted) > 0 {
		var sum time.Duration
		for _, d := range sorted {
			sum += d
		}
		stats.AvgLatencyMs = millis(sum) / float64(len(sorted))
		stats.P50LatencyMs = millis(rank(sorted, 50))
		stats.P95LatencyMs = millis(rank(sorted, 95))
		stats.P99LatencyMs = millis(rank(sorted, 99))
	}
	stats.TopQueries = a.queries.top(n)
	stats.ZeroResultQueries = a.zeroHits.top(n)
	if minutes := a.now().Sub(a.startTime).Minutes(); minutes > 0 {
		stats.QueriesPerMinute = float64(stats.TotalSearches) / minutes
	}
	return stats
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// rank returns the sample at the pct-th position of a non-empty sorted slice.
func rank(sorted []time.Duration, pct int) time.Duration {
	return sorted[min(pct*len(sorted)/100, len(sorted)-1)]
}
