// Package metrics defines the Prometheus collectors shared by the indexer
// and the searcher. Every metric lives under the "positional" namespace.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "positional"

var (
	httpBuckets   = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
	searchBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}
	resultBuckets = []float64{0, 1, 5, 10, 25, 50, 100}
)

// Metrics holds all collectors. A nil *Metrics is valid and records
// nothing; callers check before use.
type Metrics struct {
	// HTTP surface of the searcher.
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Query execution.
	SearchQueriesTotal *prometheus.CounterVec
	SearchLatency      *prometheus.HistogramVec
	SearchResultsCount prometheus.Histogram
	CacheHitsTotal     prometheus.Counter
	CacheMissesTotal   prometheus.Counter
	TermLookupsTotal   *prometheus.CounterVec

	// Index builds and the generation being served.
	DocsIndexedTotal   prometheus.Counter
	DocsSkippedTotal   prometheus.Counter
	IndexBuildDuration prometheus.Histogram
	IndexBuildsTotal   *prometheus.CounterVec
	IndexGeneration    prometheus.Gauge
	IndexTerms         prometheus.Gauge
	IndexDocuments     prometheus.Gauge
}

// New registers all collectors with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers all collectors with reg. Tests pass a fresh
// prometheus.NewRegistry to avoid duplicate registration.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	counter := func(name, help string) prometheus.Counter {
		return f.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help})
	}
	counterVec := func(name, help string, labels ...string) *prometheus.CounterVec {
		return f.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help}, labels)
	}
	gauge := func(name, help string) prometheus.Gauge {
		return f.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
	}

	return &Metrics{
		HTTPRequestsTotal: counterVec("http_requests_total",
			"HTTP requests by method, route and status code.", "method", "path", "code"),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   httpBuckets,
		}, []string{"method", "path"}),
		HTTPRequestsInFlight: gauge("http_requests_in_flight", "HTTP requests being served."),

		SearchQueriesTotal: counterVec("search_queries_total",
			"Queries by kind (free_text, and) and outcome (ok, zero_result, error).", "kind", "outcome"),
		SearchLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_latency_seconds",
			Help:      "End-to-end query latency by cache status.",
			Buckets:   searchBuckets,
		}, []string{"cache_status"}),
		SearchResultsCount: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_results_count",
			Help:      "Results returned per query.",
			Buckets:   resultBuckets,
		}),
		CacheHitsTotal:   counter("cache_hits_total", "Result cache hits."),
		CacheMissesTotal: counter("cache_misses_total", "Result cache misses, including unreadable values."),
		TermLookupsTotal: counterVec("term_lookups_total",
			"Lexicon lookups by result (found, absent, error).", "result"),

		DocsIndexedTotal: counter("docs_indexed_total", "Documents tokenized into an index."),
		DocsSkippedTotal: counter("docs_skipped_total", "Documents skipped because they could not be read."),
		IndexBuildDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "index_build_duration_seconds",
			Help:      "Wall time of a build including save.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}),
		IndexBuildsTotal: counterVec("index_builds_total", "Index builds by status.", "status"),
		IndexGeneration:  gauge("index_generation", "Generation id of the loaded index."),
		IndexTerms:       gauge("index_terms", "Distinct terms in the loaded index."),
		IndexDocuments:   gauge("index_documents", "Documents in the loaded index."),
	}
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
