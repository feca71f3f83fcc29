// Package metrics provides Prometheus metrics for the clicker game service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every collector exported by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Game
	tapsAccepted  prometheus.Counter
	tapsRejected  *prometheus.CounterVec
	scoreAwarded  *prometheus.CounterVec
	scoringTime   prometheus.Histogram
	roundsCreated prometheus.Counter
	roundsTracked prometheus.Gauge

	// Serializer
	queueSize     prometheus.Gauge
	queueCapacity prometheus.Gauge
	queueLanes    prometheus.Gauge
	queueEnqueued prometheus.Counter
	queueRejected *prometheus.CounterVec
	jobLatency    prometheus.Histogram
	jobWait       prometheus.Histogram
	jobTimeouts   prometheus.Counter
	workerCount   prometheus.Gauge

	// Fanout
	subscribers     prometheus.Gauge
	published       prometheus.Counter
	droppedSubs     prometheus.Counter
	bridgeForwarded prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorsByComponent   *prometheus.CounterVec
	errorsByEndpoint    *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // registry without default Go collectors

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "clicker",
		subsystem:        "game",
		histogramBuckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000},
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

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: m.histogramBuckets,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	}, labels)
}

func (m *Manager) initializeMetrics() { //nolint:funlen // flat list of collectors
	m.tapsAccepted = m.counter("taps_accepted_total", "Taps applied to an active round")
	m.tapsRejected = m.counterVec("taps_rejected_total", "Taps that did not change state, by reason", "reason")
	m.scoreAwarded = m.counterVec("score_awarded_total", "Score points awarded, by delta kind", "kind")
	m.scoringTime = m.histogram("scoring_latency_ms", "Time spent inside the scoring transition")
	m.roundsCreated = m.counter("rounds_created_total", "Rounds created")
	m.roundsTracked = m.gauge("rounds_tracked", "Rounds currently held by the store")

	m.queueSize = m.gauge("serializer_queue_size", "Jobs waiting in the tap serializer")
	m.queueCapacity = m.gauge("serializer_queue_capacity", "Maximum number of queued jobs")
	m.queueLanes = m.gauge("serializer_lanes", "Rounds with queued or running jobs")
	m.queueEnqueued = m.counter("serializer_enqueued_total", "Jobs accepted by the serializer")
	m.queueRejected = m.counterVec("serializer_rejected_total", "Jobs refused by the serializer", "reason")
	m.jobLatency = m.histogram("serializer_job_latency_ms", "Job execution time")
	m.jobWait = m.histogram("serializer_job_wait_ms", "Time a job waited in its lane")
	m.jobTimeouts = m.counter("serializer_job_timeouts_total", "Jobs that exceeded the processing timeout")
	m.workerCount = m.gauge("serializer_workers", "Serializer worker goroutines")

	m.subscribers = m.gauge("fanout_subscribers", "Live round subscribers")
	m.published = m.counter("fanout_published_total", "Updates published to round subscribers")
	m.droppedSubs = m.counter("fanout_dropped_subscribers_total", "Subscribers dropped for falling behind")
	m.bridgeForwarded = m.counter("fanout_bridge_forwarded_total", "Updates relayed from the broker")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests", "endpoint", "method", "status_code")
	m.httpRequestDuration = promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "http_request_duration_ms", Help: "HTTP request duration", Buckets: m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})
	m.errorsByComponent = m.counterVec("errors_by_component_total", "Errors by component", "component", "error_type")
	m.errorsByEndpoint = m.counterVec("errors_by_endpoint_total", "HTTP errors by endpoint", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Running goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_ms", "Average GC pause")
}

// RecordTapAccepted counts an applied tap and the score it awarded.
func RecordTapAccepted(delta int64) {
	globalManager.tapsAccepted.Inc()
	kind := "normal"
	switch {
	case delta == 0:
		kind = "zero"
	case delta > 1:
		kind = "bonus"
	}
	globalManager.scoreAwarded.WithLabelValues(kind).Add(float64(delta))
}

// RecordTapRejected counts a tap that left state untouched.
func RecordTapRejected(reason string) {
	globalManager.tapsRejected.WithLabelValues(reason).Inc()
}

// RecordScoringLatency observes the scoring transition time.
func RecordScoringLatency(latencyMs float64) {
	globalManager.scoringTime.Observe(latencyMs)
}

// RecordRoundCreated counts a new round.
func RecordRoundCreated() {
	globalManager.roundsCreated.Inc()
}

// UpdateRoundsTracked sets the number of stored rounds.
func UpdateRoundsTracked(count int) {
	globalManager.roundsTracked.Set(float64(count))
}

// UpdateQueueSize sets the number of queued jobs.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the serializer capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueLanes sets the number of live lanes.
func UpdateQueueLanes(lanes int) {
	globalManager.queueLanes.Set(float64(lanes))
}

// RecordQueueEnqueue counts an accepted job.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueRejected counts a refused job.
func RecordQueueRejected(reason string) {
	globalManager.queueRejected.WithLabelValues(reason).Inc()
}

// RecordJobLatency observes a job's execution time.
func RecordJobLatency(latencyMs float64) {
	globalManager.jobLatency.Observe(latencyMs)
}

// RecordJobWait observes how long a job sat in its lane.
func RecordJobWait(waitMs float64) {
	globalManager.jobWait.Observe(waitMs)
}

// RecordJobTimeout counts a job that hit the processing timeout.
func RecordJobTimeout() {
	globalManager.jobTimeouts.Inc()
}

// UpdateWorkerCount sets the number of serializer workers.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// AddSubscribers moves the live subscriber gauge by delta.
func AddSubscribers(delta int) {
	globalManager.subscribers.Add(float64(delta))
}

// RecordPublished counts a published update.
func RecordPublished() {
	globalManager.published.Inc()
}

// RecordSubscriberDropped counts a subscriber cut off for being slow.
func RecordSubscriberDropped() {
	globalManager.droppedSubs.Inc()
}

// RecordBridgeForwarded counts an update relayed from the broker.
func RecordBridgeForwarded() {
	globalManager.bridgeForwarded.Inc()
}

// RecordHTTPRequest counts a served request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration observes a request's duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent counts an error raised by a component.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint counts an HTTP error response.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the heap allocation gauge.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the goroutine gauge.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime observes the average GC pause.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the registry the global manager writes to.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
