package service

import (
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/sma-results-api/internal/models"
)

const metricsNamespace = "sma_results"

// MetricsSnapshot is a point-in-time summary of the collected counters.
type MetricsSnapshot struct {
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	ResultsComputed          uint64    `json:"results_computed"`
	ResultsFromCache         uint64    `json:"results_from_cache"`
	AverageComputeMs         float64   `json:"average_compute_ms"`
	BatchItemsSucceeded      uint64    `json:"batch_items_succeeded"`
	BatchItemsFailed         uint64    `json:"batch_items_failed"`
	BatchItemsCancelled      uint64    `json:"batch_items_cancelled"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}

// MetricsService owns a private Prometheus registry plus a few atomic tallies for the
// JSON summary endpoint. Every method is safe on a nil receiver.
type MetricsService struct {
	handler http.Handler

	requestDuration *prometheus.HistogramVec
	cacheLookups    *prometheus.CounterVec
	cacheLatency    prometheus.Histogram
	cacheWrite      prometheus.Histogram
	classResults    *prometheus.CounterVec
	computeDuration prometheus.Histogram
	batchItems      *prometheus.CounterVec
	batchDuration   prometheus.Histogram
	renderDuration  prometheus.Histogram

	requests       atomic.Uint64
	requestNanos   atomic.Uint64
	cacheHits      atomic.Uint64
	cacheMisses    atomic.Uint64
	computed       atomic.Uint64
	computeNanos   atomic.Uint64
	fromCache      atomic.Uint64
	itemsSucceeded atomic.Uint64
	itemsFailed    atomic.Uint64
	itemsCancelled atomic.Uint64
}

// NewMetricsService registers the collectors on a fresh registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(registry)

	return &MetricsService{
		handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "cache_lookups_total",
			Help:      "Results cache lookups by outcome.",
		}, []string{"outcome"}),
		cacheLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "cache_lookup_seconds",
			Help:      "Results cache read latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		cacheWrite: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "cache_write_seconds",
			Help:      "Results cache write latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		classResults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "class_results_total",
			Help:      "Class results served, by source.",
		}, []string{"source"}),
		computeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "class_result_compute_seconds",
			Help:      "Time to load marks and grade, rank and summarise one class.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		batchItems: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "report_batch_items_total",
			Help:      "Report card batch items by outcome.",
		}, []string{"status"}),
		batchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "report_batch_duration_seconds",
			Help:      "Wall time of one report card batch run.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		renderDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "report_card_render_seconds",
			Help:      "Time to render and store one report card.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records one served request.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
	m.requests.Add(1)
	m.requestNanos.Add(uint64(duration))
}

// RecordCacheOperation records a results cache lookup.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
		m.cacheHits.Add(1)
		return
	}
	m.cacheLookups.WithLabelValues("miss").Inc()
	m.cacheMisses.Add(1)
}

// ObserveCacheWrite records a results cache write.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordClassResult counts a class result by source. Computed results go through ObserveCompute.
func (m *MetricsService) RecordClassResult(source string) {
	if m == nil {
		return
	}
	m.classResults.WithLabelValues(source).Inc()
	if source == "cache" {
		m.fromCache.Add(1)
	}
}

// ObserveCompute records one full class computation.
func (m *MetricsService) ObserveCompute(duration time.Duration) {
	if m == nil {
		return
	}
	m.classResults.WithLabelValues("computed").Inc()
	m.computeDuration.Observe(duration.Seconds())
	m.computed.Add(1)
	m.computeNanos.Add(uint64(duration))
}

// RecordBatchItem counts one batch item outcome.
func (m *MetricsService) RecordBatchItem(status models.BatchItemStatus) {
	if m == nil {
		return
	}
	m.batchItems.WithLabelValues(string(status)).Inc()
	switch status {
	case models.BatchItemSucceeded:
		m.itemsSucceeded.Add(1)
	case models.BatchItemFailed:
		m.itemsFailed.Add(1)
	default:
		m.itemsCancelled.Add(1)
	}
}

// ObserveBatchDuration records the wall time of one batch run.
func (m *MetricsService) ObserveBatchDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.batchDuration.Observe(duration.Seconds())
}

// ObserveRender records the time spent rendering one report card.
func (m *MetricsService) ObserveRender(duration time.Duration) {
	if m == nil {
		return
	}
	m.renderDuration.Observe(duration.Seconds())
}

// Snapshot summarises the tallies for the JSON endpoint.
func (m *MetricsService) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	hits, misses := m.cacheHits.Load(), m.cacheMisses.Load()
	requests, computed := m.requests.Load(), m.computed.Load()

	return MetricsSnapshot{
		RequestsTotal:            requests,
		AverageRequestDurationMs: averageMillis(m.requestNanos.Load(), requests),
		CacheHits:                hits,
		CacheMisses:              misses,
		CacheHitRatio:            ratio(hits, hits+misses),
		ResultsComputed:          computed,
		ResultsFromCache:         m.fromCache.Load(),
		AverageComputeMs:         averageMillis(m.computeNanos.Load(), computed),
		BatchItemsSucceeded:      m.itemsSucceeded.Load(),
		BatchItemsFailed:         m.itemsFailed.Load(),
		BatchItemsCancelled:      m.itemsCancelled.Load(),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}

func averageMillis(totalNanos, count uint64) float64 {
	if count == 0 {
		return 0
	}
	return float64(totalNanos) / float64(count) / float64(time.Millisecond)
}

func ratio(part, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total)
}
