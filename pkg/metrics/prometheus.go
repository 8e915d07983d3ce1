// Package metrics provides Prometheus metrics for the feedrank service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector used by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Interaction ingestion
	interactions          *prometheus.CounterVec
	interactionDuplicates prometheus.Counter
	interactionsIgnored   *prometheus.CounterVec

	// Tracker
	flushes            prometheus.Counter
	flushLatency       prometheus.Histogram
	flushEntries       prometheus.Counter
	flushFailures      prometheus.Counter
	pendingViews       prometheus.Gauge
	scoreRecomputes    prometheus.Counter
	storeErrors        *prometheus.CounterVec
	breakerState       *prometheus.GaugeVec
	engagementReads    prometheus.Counter
	engagementReadMiss prometheus.Counter

	// Ranking
	feedRankLatency prometheus.Histogram
	feedRankItems   prometheus.Histogram
	trackedItems    prometheus.Gauge

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueDequeued      prometheus.Counter
	queueEnqueueErrors *prometheus.CounterVec

	// Workers
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorsByComponent   *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "feedrank",
		subsystem:        "engagement",
		histogramBuckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	}, labels)
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.interactions = m.counterVec("interactions_total", "Interactions applied to the tracker, by kind", "kind")
	m.interactionDuplicates = m.counter("interactions_duplicate_total", "Interactions rejected as duplicates by event id")
	m.interactionsIgnored = m.counterVec("interactions_ignored_total", "Interactions dropped before reaching the store, by reason", "reason")

	m.flushes = m.counter("flushes_total", "Completed view-time flush cycles")
	m.flushLatency = m.histogram("flush_latency_ms", "Flush cycle latency in milliseconds", m.histogramBuckets)
	m.flushEntries = m.counter("flush_entries_total", "Buffered user x item entries written by flushes")
	m.flushFailures = m.counter("flush_failures_total", "Buffered entries re-queued after a failed write")
	m.pendingViews = m.gauge("pending_views", "Buffered user x item view-time entries awaiting flush")
	m.scoreRecomputes = m.counter("score_recomputes_total", "Engagement score recomputations")
	m.storeErrors = m.counterVec("store_errors_total", "Aggregate store failures by operation", "op")
	m.breakerState = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "breaker_state", Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
	}, []string{"name"})
	m.engagementReads = m.counter("engagement_reads_total", "Aggregate reads issued to the store")
	m.engagementReadMiss = m.counter("engagement_read_miss_total", "Aggregate reads that found no record")

	m.feedRankLatency = m.histogram("feed_rank_latency_ms", "Feed ranking latency in milliseconds", m.histogramBuckets)
	m.feedRankItems = m.histogram("feed_rank_items", "Number of items per ranking request", []float64{1, 5, 10, 25, 50, 100, 250, 500})
	m.trackedItems = m.gauge("tracked_items", "Items with an engagement aggregate")

	m.queueSize = m.gauge("queue_size", "Interactions waiting in the queue")
	m.queueCapacity = m.gauge("queue_capacity", "Configured queue capacity")
	m.queueEnqueued = m.counter("queue_enqueued_total", "Interactions enqueued")
	m.queueDequeued = m.counter("queue_dequeued_total", "Interactions dequeued")
	m.queueEnqueueErrors = m.counterVec("queue_enqueue_errors_total", "Rejected enqueues by reason", "reason")

	m.workerCount = m.gauge("worker_count", "Interaction workers running")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_ms", "Per-interaction worker latency in milliseconds", m.histogramBuckets)
	m.workerErrors = m.counter("worker_errors_total", "Interactions the workers failed to apply")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint, method and status", "endpoint", "method", "status")
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "http_request_duration_ms", Help: "HTTP request duration in milliseconds",
		Buckets: m.histogramBuckets,
	}, []string{"endpoint", "method", "status"})
	m.errorsByComponent = m.counterVec("errors_total", "Errors by component and type", "component", "type")

	m.systemMemoryUsage = m.gauge("system_memory_bytes", "Allocated heap bytes")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Running goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_ms", "Average GC pause in milliseconds", []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10})
}

// GetRegistry returns the registry backing the global manager.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// Interactions.

func RecordInteraction(kind string)      { globalManager.interactions.WithLabelValues(kind).Inc() }
func RecordInteractionDuplicate()        { globalManager.interactionDuplicates.Inc() }
func RecordInteractionIgnored(reason string) {
	globalManager.interactionsIgnored.WithLabelValues(reason).Inc()
}

// Tracker.

// RecordFlush records one completed flush cycle.
func RecordFlush(latencyMs float64, written, failed int) {
	globalManager.flushes.Inc()
	globalManager.flushLatency.Observe(latencyMs)
	globalManager.flushEntries.Add(float64(written))
	globalManager.flushFailures.Add(float64(failed))
}

func UpdatePendingViews(n int)        { globalManager.pendingViews.Set(float64(n)) }
func RecordScoreRecompute()           { globalManager.scoreRecomputes.Inc() }
func RecordStoreError(op string)      { globalManager.storeErrors.WithLabelValues(op).Inc() }
func UpdateBreakerState(name string, state int) {
	globalManager.breakerState.WithLabelValues(name).Set(float64(state))
}

// RecordEngagementRead records a store read and whether it missed.
func RecordEngagementRead(miss bool) {
	globalManager.engagementReads.Inc()
	if miss {
		globalManager.engagementReadMiss.Inc()
	}
}

// Ranking.

// RecordFeedRank records one ranking request.
func RecordFeedRank(latencyMs float64, items int) {
	globalManager.feedRankLatency.Observe(latencyMs)
	globalManager.feedRankItems.Observe(float64(items))
}

func UpdateTrackedItems(n int) { globalManager.trackedItems.Set(float64(n)) }

// Queue.

func UpdateQueueSize(n int)                 { globalManager.queueSize.Set(float64(n)) }
func UpdateQueueCapacity(n int)             { globalManager.queueCapacity.Set(float64(n)) }
func RecordQueueEnqueue()                   { globalManager.queueEnqueued.Inc() }
func RecordQueueDequeue()                   { globalManager.queueDequeued.Inc() }
func RecordQueueEnqueueError(reason string) { globalManager.queueEnqueueErrors.WithLabelValues(reason).Inc() }

// Workers.

func UpdateWorkerCount(n int)                         { globalManager.workerCount.Set(float64(n)) }
func RecordWorkerProcessingLatency(latencyMs float64) { globalManager.workerProcessingLatency.Observe(latencyMs) }
func RecordWorkerError()                              { globalManager.workerErrors.Inc() }

// HTTP.

// RecordHTTPRequest records a finished HTTP request.
func RecordHTTPRequest(endpoint, method, status string, durationMs float64) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, status).Inc()
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, status).Observe(durationMs)
}

func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// System.

func UpdateSystemMemoryUsage(bytes uint64)    { globalManager.systemMemoryUsage.Set(float64(bytes)) }
func UpdateSystemGoroutineCount(count int)    { globalManager.systemGoroutineCount.Set(float64(count)) }
func RecordSystemGCPauseTime(pauseMs float64) { globalManager.systemGCPauseTime.Observe(pauseMs) }
