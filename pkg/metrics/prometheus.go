// Package metrics provides Prometheus metrics for the duel matchmaking and rating service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Outcome label values shared by the vote and matchup counters.
const (
	OutcomeApplied                = "applied"
	OutcomeSkipped                = "skipped"
	OutcomeDuplicate              = "duplicate"
	OutcomeGuest                  = "guest"
	OutcomeRejected               = "rejected"
	OutcomeConflict               = "conflict"
	OutcomeFailed                 = "failed"
	OutcomeServed                 = "served"
	OutcomeInsufficientPool       = "insufficient_pool"
	OutcomeInsufficientCandidates = "insufficient_candidates"
)

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace       string
	enabled         bool
	refreshInterval time.Duration
	constLabels     map[string]string
	registry        prometheus.Registerer

	// Engine
	votes             *prometheus.CounterVec
	voteLatency       prometheus.Histogram
	casConflicts      *prometheus.CounterVec
	matchups          *prometheus.CounterVec
	matchupPoolSize   prometheus.Histogram
	derivationLatency *prometheus.HistogramVec

	// Storage
	storeLatency *prometheus.HistogramVec
	storeErrors  *prometheus.CounterVec

	// Replay pipeline
	replayQueueSize     prometheus.Gauge
	replayQueueCapacity prometheus.Gauge
	replays             *prometheus.CounterVec
	replayLatency       prometheus.Histogram
	workerActiveCount   prometheus.Gauge

	// Feed
	feedSubscribers prometheus.Gauge
	feedDropped     prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// latencyBuckets are the millisecond buckets shared by the latency histograms.
var latencyBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000} //nolint:gochecknoglobals // read-only

// customRegistry keeps the default Go collectors out of the exposition.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:       "duel",
		enabled:         true,
		refreshInterval: defaultRefreshInterval,
		constLabels:     make(map[string]string),
		registry:        prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

// Configure replaces the global manager with one built from opts on a fresh
// registry, which GetRegistry then exposes. Call it once at startup, before
// anything records or the /metrics handler is built.
func Configure(opts ...Option) *Manager {
	registry := prometheus.NewRegistry()
	m := NewManager(append(opts, WithRegistry(registry))...)
	customRegistry = registry
	globalManager = m
	return m
}

// RefreshInterval reports how often gauge updaters should run.
func (m *Manager) RefreshInterval() time.Duration { return m.refreshInterval }

// Enabled reports whether recording is on.
func (m *Manager) Enabled() bool { return m.enabled }

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)
	labels := prometheus.Labels(m.constLabels)

	m.votes = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "engine", ConstLabels: labels,
		Name: "votes_total",
		Help: "Votes handled by the ingestor, by outcome",
	}, []string{"context", "outcome"})

	m.voteLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: "engine", ConstLabels: labels,
		Name:    "vote_apply_duration_milliseconds",
		Help:    "Time to append a vote and apply its aggregate effect",
		Buckets: latencyBuckets,
	})

	m.casConflicts = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "engine", ConstLabels: labels,
		Name: "cas_conflicts_total",
		Help: "Optimistic version conflicts seen while updating aggregates",
	}, []string{"record"})

	m.matchups = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "engine", ConstLabels: labels,
		Name: "matchups_total",
		Help: "Matchup selections by outcome",
	}, []string{"context", "outcome"})

	m.matchupPoolSize = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: "engine", ConstLabels: labels,
		Name:    "matchup_pool_size",
		Help:    "Candidate pool size seen by the matchmaker",
		Buckets: []float64{2, 5, 10, 25, 50, 75, 100},
	})

	m.derivationLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: "engine", ConstLabels: labels,
		Name:    "derivation_duration_milliseconds",
		Help:    "Leaderboard and graph derivation latency",
		Buckets: latencyBuckets,
	}, []string{"view"})

	m.storeLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: "store", ConstLabels: labels,
		Name:    "operation_duration_milliseconds",
		Help:    "Storage operation latency by backend and operation",
		Buckets: latencyBuckets,
	}, []string{"backend", "operation"})

	m.storeErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "store", ConstLabels: labels,
		Name: "errors_total",
		Help: "Storage operation failures by backend and operation",
	}, []string{"backend", "operation"})

	m.replayQueueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: "replay", ConstLabels: labels,
		Name: "queue_size",
		Help: "Votes waiting for aggregate replay",
	})

	m.replayQueueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: "replay", ConstLabels: labels,
		Name: "queue_capacity",
		Help: "Capacity of the replay queue",
	})

	m.replays = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "replay", ConstLabels: labels,
		Name: "votes_total",
		Help: "Replayed votes by outcome",
	}, []string{"outcome"})

	m.replayLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: "replay", ConstLabels: labels,
		Name:    "duration_milliseconds",
		Help:    "Time to replay one vote",
		Buckets: latencyBuckets,
	})

	m.workerActiveCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: "replay", ConstLabels: labels,
		Name: "workers_active",
		Help: "Replay workers currently running",
	})

	m.feedSubscribers = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: "feed", ConstLabels: labels,
		Name: "subscribers",
		Help: "Connected live feed subscribers",
	})

	m.feedDropped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "feed", ConstLabels: labels,
		Name: "dropped_messages_total",
		Help: "Feed messages dropped because a subscriber was too slow",
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "http", ConstLabels: labels,
		Name: "requests_total",
		Help: "HTTP requests by endpoint, method and status code",
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: "http", ConstLabels: labels,
		Name:    "request_duration_milliseconds",
		Help:    "HTTP request duration in milliseconds",
		Buckets: latencyBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: "system", ConstLabels: labels,
		Name: "memory_bytes",
		Help: "Heap bytes in use",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: "system", ConstLabels: labels,
		Name: "goroutines",
		Help: "Number of goroutines",
	})

	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: "system", ConstLabels: labels,
		Name:    "gc_pause_milliseconds",
		Help:    "Most recent GC pause in milliseconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 50},
	})
}

func enabled() bool { return globalManager != nil && globalManager.enabled }

// RecordVote counts one handled vote.
func RecordVote(context, outcome string) {
	if enabled() {
		globalManager.votes.WithLabelValues(context, outcome).Inc()
	}
}

// RecordVoteLatency records vote application latency in milliseconds.
func RecordVoteLatency(latencyMs float64) {
	if enabled() {
		globalManager.voteLatency.Observe(latencyMs)
	}
}

// RecordCASConflict counts one version conflict on a rating or pair record.
func RecordCASConflict(record string) {
	if enabled() {
		globalManager.casConflicts.WithLabelValues(record).Inc()
	}
}

// RecordMatchup counts one matchup request by outcome.
func RecordMatchup(context, outcome string) {
	if enabled() {
		globalManager.matchups.WithLabelValues(context, outcome).Inc()
	}
}

// RecordMatchupPoolSize observes the size of a candidate pool.
func RecordMatchupPoolSize(size int) {
	if enabled() {
		globalManager.matchupPoolSize.Observe(float64(size))
	}
}

// RecordDerivationLatency records leaderboard or graph latency.
func RecordDerivationLatency(view string, latencyMs float64) {
	if enabled() {
		globalManager.derivationLatency.WithLabelValues(view).Observe(latencyMs)
	}
}

// RecordStoreLatency records one storage operation.
func RecordStoreLatency(backend, operation string, latencyMs float64) {
	if enabled() {
		globalManager.storeLatency.WithLabelValues(backend, operation).Observe(latencyMs)
	}
}

// RecordStoreError counts one failed storage operation.
func RecordStoreError(backend, operation string) {
	if enabled() {
		globalManager.storeErrors.WithLabelValues(backend, operation).Inc()
	}
}

// UpdateReplayQueueSize sets the replay queue depth.
func UpdateReplayQueueSize(size int) {
	if enabled() {
		globalManager.replayQueueSize.Set(float64(size))
	}
}

// UpdateReplayQueueCapacity sets the replay queue capacity.
func UpdateReplayQueueCapacity(capacity int) {
	if enabled() {
		globalManager.replayQueueCapacity.Set(float64(capacity))
	}
}

// RecordReplay counts one replayed vote.
func RecordReplay(outcome string) {
	if enabled() {
		globalManager.replays.WithLabelValues(outcome).Inc()
	}
}

// RecordReplayLatency records replay latency in milliseconds.
func RecordReplayLatency(latencyMs float64) {
	if enabled() {
		globalManager.replayLatency.Observe(latencyMs)
	}
}

// UpdateWorkerActiveCount sets the number of running replay workers.
func UpdateWorkerActiveCount(count int) {
	if enabled() {
		globalManager.workerActiveCount.Set(float64(count))
	}
}

// UpdateFeedSubscribers sets the number of live feed subscribers.
func UpdateFeedSubscribers(count int) {
	if enabled() {
		globalManager.feedSubscribers.Set(float64(count))
	}
}

// RecordFeedDropped counts one message dropped for a slow subscriber.
func RecordFeedDropped() {
	if enabled() {
		globalManager.feedDropped.Inc()
	}
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if enabled() {
		globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	}
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if enabled() {
		globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
	}
}

// UpdateSystemMemoryUsage sets the heap usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	if enabled() {
		globalManager.systemMemoryUsage.Set(float64(bytes))
	}
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	if enabled() {
		globalManager.systemGoroutineCount.Set(float64(count))
	}
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	if enabled() {
		globalManager.systemGCPauseTime.Observe(pauseMs)
	}
}

// Since returns the elapsed milliseconds since start.
func Since(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}

// Global returns the process-wide manager.
func Global() *Manager { return globalManager }

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
