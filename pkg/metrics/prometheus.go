package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector of the songsort service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Comparison engine
	outcomesRecorded  prometheus.Counter
	outcomesDuplicate prometheus.Counter
	outcomesFailed    *prometheus.CounterVec
	partialUpdates    prometheus.Counter
	ratingDelta       prometheus.Histogram
	outcomeLatency    prometheus.Histogram
	pairsServed       prometheus.Counter

	// Sessions
	activeSessions  prometheus.Gauge
	sessionsStarted prometheus.Counter
	sessionsReaped  prometheus.Counter

	// Catalog
	imports          *prometheus.CounterVec
	importedRatings  prometheus.Counter
	totalRatings     prometheus.Gauge
	totalCollections prometheus.Gauge

	// Store
	storeOpLatency *prometheus.HistogramVec
	storeRetries   *prometheus.CounterVec
	storeErrors    *prometheus.CounterVec
	breakerState   *prometheus.GaugeVec
	replicaLag     prometheus.Gauge

	// Match journal
	journalEnqueued  prometheus.Counter
	journalDropped   *prometheus.CounterVec
	journalQueueSize prometheus.Gauge
	journalProcessed prometheus.Counter
	journalLatency   prometheus.Histogram
	journalWorkers   prometheus.Gauge
	journalRetained  prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	errorRateByComponent *prometheus.CounterVec

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

// NewManager creates a new metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "songsort",
		subsystem:        "engine",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.constLabels,
	}
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // one block per collector
	auto := promauto.With(m.registry)

	m.outcomesRecorded = auto.NewCounter(m.counterOpts(
		"outcomes_recorded_total",
		"Total number of match outcomes applied to both ratings",
	))
	m.outcomesDuplicate = auto.NewCounter(m.counterOpts(
		"outcomes_duplicate_total",
		"Total number of resubmitted outcomes ignored by idempotency key",
	))
	m.outcomesFailed = auto.NewCounterVec(m.counterOpts(
		"outcomes_failed_total",
		"Total number of outcomes that were not applied, by reason",
	), []string{"reason"})
	m.partialUpdates = auto.NewCounter(m.counterOpts(
		"partial_updates_total",
		"Total number of outcomes where only one of the two ratings was written",
	))
	m.ratingDelta = auto.NewHistogram(m.histogramOpts(
		"rating_delta_points",
		"Rating points gained by the winner per outcome",
		[]float64{0, 1, 2, 4, 8, 12, 16, 20, 24, 28, 32},
	))
	m.outcomeLatency = auto.NewHistogram(m.histogramOpts(
		"outcome_latency_milliseconds",
		"Time to read, rate and persist one outcome in milliseconds",
		m.histogramBuckets,
	))
	m.pairsServed = auto.NewCounter(m.counterOpts(
		"pairs_served_total",
		"Total number of match pairs handed to sessions",
	))

	m.activeSessions = auto.NewGauge(m.gaugeOpts(
		"active_sessions",
		"Number of open comparison sessions",
	))
	m.sessionsStarted = auto.NewCounter(m.counterOpts(
		"sessions_started_total",
		"Total number of comparison sessions started",
	))
	m.sessionsReaped = auto.NewCounter(m.counterOpts(
		"sessions_reaped_total",
		"Total number of sessions closed for inactivity",
	))

	m.imports = auto.NewCounterVec(m.counterOpts(
		"imports_total",
		"Total number of collection imports by kind",
	), []string{"kind"})
	m.importedRatings = auto.NewCounter(m.counterOpts(
		"imported_ratings_total",
		"Total number of rating records created by imports",
	))
	m.totalRatings = auto.NewGauge(m.gaugeOpts(
		"ratings",
		"Number of rating records in the store",
	))
	m.totalCollections = auto.NewGauge(m.gaugeOpts(
		"collections",
		"Number of collections in the store",
	))

	m.storeOpLatency = auto.NewHistogramVec(m.histogramOpts(
		"store_operation_latency_milliseconds",
		"Rating store operation latency in milliseconds",
		m.histogramBuckets,
	), []string{"op"})
	m.storeRetries = auto.NewCounterVec(m.counterOpts(
		"store_retries_total",
		"Total number of store calls retried after a transient failure",
	), []string{"op"})
	m.storeErrors = auto.NewCounterVec(m.counterOpts(
		"store_errors_total",
		"Total number of store calls that failed",
	), []string{"op"})
	m.breakerState = auto.NewGaugeVec(m.gaugeOpts(
		"store_breaker_state",
		"Circuit breaker state of the store (0 closed, 1 half-open, 2 open)",
	), []string{"breaker"})
	m.replicaLag = auto.NewGauge(m.gaugeOpts(
		"store_replica_lag_writes",
		"Writes committed on the primary that the read replica has not applied",
	))

	m.journalEnqueued = auto.NewCounter(m.counterOpts(
		"journal_enqueued_total",
		"Total number of match events queued for the journal",
	))
	m.journalDropped = auto.NewCounterVec(m.counterOpts(
		"journal_dropped_total",
		"Total number of match events the journal queue refused, by reason",
	), []string{"reason"})
	m.journalQueueSize = auto.NewGauge(m.gaugeOpts(
		"journal_queue_size",
		"Number of match events waiting for a journal worker",
	))
	m.journalProcessed = auto.NewCounter(m.counterOpts(
		"journal_processed_total",
		"Total number of match events appended to collection histories",
	))
	m.journalLatency = auto.NewHistogram(m.histogramOpts(
		"journal_latency_milliseconds",
		"Time from outcome to journal append in milliseconds",
		m.histogramBuckets,
	))
	m.journalWorkers = auto.NewGauge(m.gaugeOpts(
		"journal_workers",
		"Number of running journal workers",
	))
	m.journalRetained = auto.NewGauge(m.gaugeOpts(
		"journal_retained_matches",
		"Number of matches retained across all collection histories",
	))

	m.httpRequests = auto.NewCounterVec(m.counterOpts(
		"http_requests_total",
		"Total number of HTTP requests by endpoint and method",
	), []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts(
		"http_request_duration_milliseconds",
		"HTTP request duration in milliseconds",
		m.histogramBuckets,
	), []string{"endpoint", "method", "status_code"})

	m.errorRateByComponent = auto.NewCounterVec(m.counterOpts(
		"errors_by_component_total",
		"Total number of errors by component",
	), []string{"component", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts(
		"system_memory_usage_bytes",
		"System memory usage in bytes",
	))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts(
		"system_goroutine_count",
		"Number of goroutines",
	))
	m.systemGCPauseTime = auto.NewHistogram(m.histogramOpts(
		"system_gc_pause_time_milliseconds",
		"GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
	))
}

// Comparison engine.

// RecordOutcomeRecorded increments the applied outcomes counter.
func RecordOutcomeRecorded() {
	globalManager.outcomesRecorded.Inc()
}

// RecordOutcomeDuplicate increments the duplicate outcomes counter.
func RecordOutcomeDuplicate() {
	globalManager.outcomesDuplicate.Inc()
}

// RecordOutcomeFailed counts an outcome that was rejected or failed.
func RecordOutcomeFailed(reason string) {
	globalManager.outcomesFailed.WithLabelValues(reason).Inc()
}

// RecordPartialUpdate counts an outcome that committed only one rating.
func RecordPartialUpdate() {
	globalManager.partialUpdates.Inc()
}

// RecordRatingDelta observes the winner's gain for one outcome.
func RecordRatingDelta(points int) {
	globalManager.ratingDelta.Observe(float64(points))
}

// RecordOutcomeLatency records the end-to-end latency of one outcome.
func RecordOutcomeLatency(latencyMs float64) {
	globalManager.outcomeLatency.Observe(latencyMs)
}

// RecordPairServed increments the pairs served counter.
func RecordPairServed() {
	globalManager.pairsServed.Inc()
}

// Sessions.

// UpdateActiveSessions sets the number of open sessions.
func UpdateActiveSessions(count int) {
	globalManager.activeSessions.Set(float64(count))
}

// RecordSessionStarted increments the started sessions counter.
func RecordSessionStarted() {
	globalManager.sessionsStarted.Inc()
}

// RecordSessionsReaped adds n idle sessions to the reaped counter.
func RecordSessionsReaped(n int) {
	globalManager.sessionsReaped.Add(float64(n))
}

// Catalog.

// RecordImport counts an import of the given kind and the records it created.
func RecordImport(kind string, created int) {
	globalManager.imports.WithLabelValues(kind).Inc()
	globalManager.importedRatings.Add(float64(created))
}

// UpdateTotalRatings sets the number of stored rating records.
func UpdateTotalRatings(count int) {
	globalManager.totalRatings.Set(float64(count))
}

// UpdateTotalCollections sets the number of stored collections.
func UpdateTotalCollections(count int) {
	globalManager.totalCollections.Set(float64(count))
}

// Store.

// RecordStoreOpLatency records the latency of one store operation.
func RecordStoreOpLatency(op string, latencyMs float64) {
	globalManager.storeOpLatency.WithLabelValues(op).Observe(latencyMs)
}

// RecordStoreRetry counts a retried store call.
func RecordStoreRetry(op string) {
	globalManager.storeRetries.WithLabelValues(op).Inc()
}

// RecordStoreError counts a failed store call.
func RecordStoreError(op string) {
	globalManager.storeErrors.WithLabelValues(op).Inc()
}

// UpdateBreakerState publishes a circuit breaker state.
func UpdateBreakerState(name string, state int) {
	globalManager.breakerState.WithLabelValues(name).Set(float64(state))
}

// UpdateReplicaLag sets how many writes the read replica is behind.
func UpdateReplicaLag(writes int) {
	globalManager.replicaLag.Set(float64(writes))
}

// Match journal.

// RecordJournalEnqueued counts a match event accepted by the journal queue.
func RecordJournalEnqueued() {
	globalManager.journalEnqueued.Inc()
}

// RecordJournalDropped counts a match event the journal queue refused.
func RecordJournalDropped(reason string) {
	globalManager.journalDropped.WithLabelValues(reason).Inc()
}

// UpdateJournalQueueSize sets the number of pending match events.
func UpdateJournalQueueSize(size int) {
	globalManager.journalQueueSize.Set(float64(size))
}

// RecordJournalProcessed counts a match event appended to a history.
func RecordJournalProcessed() {
	globalManager.journalProcessed.Inc()
}

// RecordJournalLatency records the delay between an outcome and its journal entry.
func RecordJournalLatency(latencyMs float64) {
	globalManager.journalLatency.Observe(latencyMs)
}

// UpdateJournalWorkers sets the number of running journal workers.
func UpdateJournalWorkers(count int) {
	globalManager.journalWorkers.Set(float64(count))
}

// UpdateJournalRetained sets the number of matches held in memory.
func UpdateJournalRetained(count int) {
	globalManager.journalRetained.Set(float64(count))
}

// HTTP.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// System.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
