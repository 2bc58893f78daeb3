// Package metrics provides Prometheus metrics for the tinymerit service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Manager manages all Prometheus metrics for the tinymerit service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Upstream calls
	githubCalls   *prometheus.CounterVec
	githubLatency *prometheus.HistogramVec
	meritCalls    *prometheus.CounterVec
	meritLatency  *prometheus.HistogramVec

	// Business
	checkoutURLs     *prometheus.CounterVec
	historyLoads     *prometheus.CounterVec
	staleResults     prometheus.Counter
	payeeOperations  *prometheus.CounterVec
	activeSessions   prometheus.Gauge
	settingsChanges  *prometheus.CounterVec
	debouncedQueries prometheus.Counter

	// Enrichment queue and workers
	enrichJobs       *prometheus.CounterVec
	enrichLatency    prometheus.Histogram
	queueSize        prometheus.Gauge
	queueCapacity    prometheus.Gauge
	queueRejections  prometheus.Counter
	workerCount      prometheus.Gauge
	workerBusyCount  prometheus.Gauge

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error tracking
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System Performance Metrics
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
		namespace:        "tinymerit",
		subsystem:        "app",
		histogramBuckets: prometheus.DefBuckets,
		customLabels:     make(map[string]string),
		metricPrefix:     "",
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
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.metricPrefix + name, Help: help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.metricPrefix + name, Help: help,
		ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.metricPrefix + name, Help: help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.metricPrefix + name, Help: help,
		Buckets: m.histogramBuckets, ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.metricPrefix + name, Help: help,
		Buckets: m.histogramBuckets, ConstLabels: m.customLabels,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	m.githubCalls = m.counterVec("github_calls_total", "GitHub API calls by operation and outcome", "operation", "outcome")
	m.githubLatency = m.histogramVec("github_call_duration_milliseconds", "GitHub API call latency in milliseconds", "operation")
	m.meritCalls = m.counterVec("merit_calls_total", "Merit API calls by operation and outcome", "operation", "outcome")
	m.meritLatency = m.histogramVec("merit_call_duration_milliseconds", "Merit API call latency in milliseconds", "operation")

	m.checkoutURLs = m.counterVec("checkout_urls_total", "Checkout URLs built, by construction path", "path")
	m.historyLoads = m.counterVec("history_loads_total", "Payment history load cycles by outcome", "outcome")
	m.staleResults = m.counter("history_stale_results_total", "History results discarded because their inputs changed")
	m.payeeOperations = m.counterVec("payee_operations_total", "Payee list operations by kind", "operation")
	m.activeSessions = m.gauge("active_sessions", "Number of live cart sessions")
	m.settingsChanges = m.counterVec("settings_changes_total", "Persisted settings changes by topic", "topic")
	m.debouncedQueries = m.counter("debounced_queries_total", "Account search triggers superseded before firing")

	m.enrichJobs = m.counterVec("enrich_jobs_total", "Payment row enrichment jobs by outcome", "outcome")
	m.enrichLatency = m.histogram("enrich_duration_milliseconds", "Payment row enrichment latency in milliseconds")
	m.queueSize = m.gauge("enrich_queue_size", "Current size of the enrichment queue")
	m.queueCapacity = m.gauge("enrich_queue_capacity", "Capacity of the enrichment queue")
	m.queueRejections = m.counter("enrich_queue_rejections_total", "Enrichment jobs rejected by a full or closed queue")
	m.workerCount = m.gauge("enrich_worker_count", "Number of enrichment workers")
	m.workerBusyCount = m.gauge("enrich_worker_busy", "Number of enrichment workers currently processing a job")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Errors by component and error type", "component", "error_type")
	m.errorRateByType = m.counterVec("errors_by_type_total", "Errors by type and severity", "error_type", "severity")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "Errors by HTTP endpoint", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_bytes", "Allocated heap bytes")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_milliseconds", "Average GC pause in milliseconds")
}

// RecordGitHubCall records one GitHub API call.
func RecordGitHubCall(operation, outcome string, latencyMs float64) {
	globalManager.githubCalls.WithLabelValues(operation, outcome).Inc()
	globalManager.githubLatency.WithLabelValues(operation).Observe(latencyMs)
}

// RecordMeritCall records one Merit API call.
func RecordMeritCall(operation, outcome string, latencyMs float64) {
	globalManager.meritCalls.WithLabelValues(operation, outcome).Inc()
	globalManager.meritLatency.WithLabelValues(operation).Observe(latencyMs)
}

// RecordCheckoutURL records a built checkout URL by path (sdk or fallback).
func RecordCheckoutURL(path string) {
	globalManager.checkoutURLs.WithLabelValues(path).Inc()
}

// RecordHistoryLoad records the outcome of a history load cycle.
func RecordHistoryLoad(outcome string) {
	globalManager.historyLoads.WithLabelValues(outcome).Inc()
}

// RecordStaleResult records a discarded out-of-date history result.
func RecordStaleResult() {
	globalManager.staleResults.Inc()
}

// RecordPayeeOperation records an add/remove/update on a payee list.
func RecordPayeeOperation(operation string) {
	globalManager.payeeOperations.WithLabelValues(operation).Inc()
}

// UpdateActiveSessions sets the number of live sessions.
func UpdateActiveSessions(count int) {
	globalManager.activeSessions.Set(float64(count))
}

// RecordSettingsChange records a published settings topic.
func RecordSettingsChange(topic string) {
	globalManager.settingsChanges.WithLabelValues(topic).Inc()
}

// RecordDebouncedQuery records a superseded search trigger.
func RecordDebouncedQuery() {
	globalManager.debouncedQueries.Inc()
}

// RecordEnrichJob records an enrichment job outcome and latency.
func RecordEnrichJob(outcome string, latencyMs float64) {
	globalManager.enrichJobs.WithLabelValues(outcome).Inc()
	globalManager.enrichLatency.Observe(latencyMs)
}

// UpdateQueueSize sets the enrichment queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the enrichment queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueRejection records a rejected enqueue.
func RecordQueueRejection() {
	globalManager.queueRejections.Inc()
}

// UpdateWorkerCount sets the number of enrichment workers.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// AddWorkerBusy adjusts the busy worker gauge by delta.
func AddWorkerBusy(delta int) {
	globalManager.workerBusyCount.Add(float64(delta))
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records errors by component and type.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records errors by type and severity.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records errors by HTTP endpoint.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage updates system memory usage.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount updates goroutine count.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// Since returns the elapsed milliseconds since start as a float, the unit
// every latency histogram in this package uses.
func Since(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}

// GetRegistry returns the custom Prometheus registry.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
