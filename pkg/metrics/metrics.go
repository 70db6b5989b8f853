// Package metrics defines the Prometheus metric collectors used across the
// engine and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the engine.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	SearchQueriesTotal *prometheus.CounterVec
	SearchLatency      *prometheus.HistogramVec
	SearchResultsCount prometheus.Histogram

	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	QueueSize          prometheus.Gauge
	BatchFlushDuration prometheus.Histogram
	BatchFlushesTotal  *prometheus.CounterVec
	DocsIndexedTotal   prometheus.Counter

	BarrelCacheEvictionsTotal prometheus.Counter
	BarrelCacheSize           prometheus.Gauge

	PoolActiveWorkers prometheus.Gauge
	PoolTasksTotal    *prometheus.CounterVec

	CircuitBreakerState *prometheus.GaugeVec
}

// New creates all Prometheus metrics and registers them with the default
// registry, replacing any collectors registered there by an earlier call.
func New() *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total search queries by result type (hit, miss, zero_result, error).",
			},
			[]string{"result_type"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search query latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"cache_status"},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_results_count",
				Help:    "Number of results returned per search query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of query-result cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of query-result cache misses.",
			},
		),
		QueueSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ingest_queue_size",
				Help: "Number of pending documents waiting for the batch writer.",
			},
		),
		BatchFlushDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "batch_flush_duration_seconds",
				Help:    "Duration of a batch index writer flush.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
		),
		BatchFlushesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "batch_flushes_total",
				Help: "Total batch index writer flushes by outcome.",
			},
			[]string{"outcome"},
		),
		DocsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docs_indexed_total",
				Help: "Total documents that became searchable.",
			},
		),
		BarrelCacheEvictionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "barrel_cache_evictions_total",
				Help: "Total barrel-cache bulk eviction events.",
			},
		),
		BarrelCacheSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "barrel_cache_size",
				Help: "Number of barrels currently held in the in-process cache.",
			},
		),
		PoolActiveWorkers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pdf_pool_active_workers",
				Help: "Number of PDF pool workers currently processing a task.",
			},
		),
		PoolTasksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdf_pool_tasks_total",
				Help: "Total PDF pool tasks by outcome.",
			},
			[]string{"outcome"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	for _, c := range []prometheus.Collector{
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.QueueSize,
		m.BatchFlushDuration,
		m.BatchFlushesTotal,
		m.DocsIndexedTotal,
		m.BarrelCacheEvictionsTotal,
		m.BarrelCacheSize,
		m.PoolActiveWorkers,
		m.PoolTasksTotal,
		m.CircuitBreakerState,
	} {
		prometheus.Unregister(c)
		prometheus.MustRegister(c)
	}

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
