package service

import (
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Gate decision outcomes recorded by qbot_gate_decisions_total.
const (
	GateOutcomeAllowed          = "allowed"
	GateOutcomeProfileNotFound  = "profile_not_found"
	GateOutcomeChatbotNotFound  = "chatbot_not_found"
	GateOutcomeClassInfoMissing = "class_info_missing"
	GateOutcomeClassNotAllowed  = "class_not_allowed"
	GateOutcomeQuotaExceeded    = "quota_exceeded"
	GateOutcomeError            = "error"
)

// MetricsService encapsulates Prometheus instrumentation.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	gateDecisions   *prometheus.CounterVec
	attemptResets   *prometheus.CounterVec
	evaluations     *prometheus.CounterVec
	evalDuration    prometheus.Observer

	cacheHitCount  uint64
	cacheMissCount uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	gateDecisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qbot_gate_decisions_total",
		Help: "Chatbot session start decisions by outcome",
	}, []string{"outcome"})

	attemptResets := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qbot_attempt_resets_total",
		Help: "Usage sessions deleted by administrative resets",
	}, []string{"scope"})

	evaluations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qbot_goal_evaluations_total",
		Help: "Goal evaluation runs by result",
	}, []string{"status"})

	evalDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "qbot_goal_evaluation_seconds",
		Help:    "Wall time of goal evaluation runs including LLM retries",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		gateDecisions, attemptResets, evaluations, evalDuration, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHitRatio:   cacheHitRatio,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		gateDecisions:   gateDecisions,
		attemptResets:   attemptResets,
		evaluations:     evaluations,
		evalDuration:    evalDuration,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry returns the underlying registry, mostly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordGateDecision counts one access gate outcome.
func (m *MetricsService) RecordGateDecision(outcome string) {
	if m == nil {
		return
	}
	m.gateDecisions.WithLabelValues(outcome).Inc()
}

// RecordAttemptReset adds deleted sessions for a reset scope.
func (m *MetricsService) RecordAttemptReset(scope string, deleted int64) {
	if m == nil {
		return
	}
	m.attemptResets.WithLabelValues(scope).Add(float64(deleted))
}

// ObserveEvaluation records one evaluation run.
func (m *MetricsService) ObserveEvaluation(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.evaluations.WithLabelValues(status).Inc()
	m.evalDuration.Observe(duration.Seconds())
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	total := hits + atomic.LoadUint64(&m.cacheMissCount)
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}
