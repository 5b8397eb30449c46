package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Planner run outcomes used as metric labels.
const (
	OutcomeScheduled = "scheduled"
	OutcomePartial   = "partial"
	OutcomeNoSlots   = "no_slots"
	OutcomeNoWork    = "no_work"
	OutcomeFailed    = "failed"
	OutcomeLocked    = "locked"
)

// MetricsService encapsulates Prometheus instrumentation for HTTP, cache and planner activity.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	planRuns        *prometheus.CounterVec
	planDuration    prometheus.Observer
	plannedSessions prometheus.Counter
	plannedMinutes  prometheus.Counter
	shortfall       prometheus.Counter
	deletedSessions prometheus.Counter
}

// NewMetricsService registers the collectors on a private registry.
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

	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_lookups_total",
		Help: "Cache lookups by result",
	}, []string{"result"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	planRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "planner_runs_total",
		Help: "Planning runs by outcome",
	}, []string{"outcome"})

	planDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "planner_run_duration_seconds",
		Help:    "Duration of planning runs",
		Buckets: prometheus.DefBuckets,
	})

	plannedSessions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "planner_sessions_created_total",
		Help: "Self-study sessions created by the planner",
	})

	plannedMinutes := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "planner_minutes_scheduled_total",
		Help: "Study minutes placed by the planner",
	})

	shortfall := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "planner_shortfall_minutes_total",
		Help: "Requested study minutes that did not fit",
	})

	deletedSessions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "planner_sessions_deleted_total",
		Help: "Engine sessions removed on reset",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLookups, cacheLatency, planRuns, planDuration,
		plannedSessions, plannedMinutes, shortfall, deletedSessions, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLookups:    cacheLookups,
		cacheLatency:    cacheLatency,
		planRuns:        planRuns,
		planDuration:    planDuration,
		plannedSessions: plannedSessions,
		plannedMinutes:  plannedMinutes,
		shortfall:       shortfall,
		deletedSessions: deletedSessions,
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

// Registry returns the underlying registry.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records a cache lookup.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// ObservePlanRun records the outcome of one planning run.
func (m *MetricsService) ObservePlanRun(outcome string, sessions, scheduledMinutes, shortfallMinutes int, duration time.Duration) {
	if m == nil {
		return
	}
	m.planRuns.WithLabelValues(outcome).Inc()
	m.planDuration.Observe(duration.Seconds())
	m.plannedSessions.Add(float64(sessions))
	m.plannedMinutes.Add(float64(scheduledMinutes))
	m.shortfall.Add(float64(shortfallMinutes))
}

// ObserveSessionsDeleted records removed engine sessions.
func (m *MetricsService) ObserveSessionsDeleted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.deletedSessions.Add(float64(n))
}
