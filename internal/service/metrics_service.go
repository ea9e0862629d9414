package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the
// compliance API: request timings, ordinance cache behaviour, ingestion
// row counts and email dispatch outcomes.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	ingestRows      *prometheus.CounterVec
	emailDispatch   *prometheus.CounterVec
	reviewDuration  prometheus.Histogram
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

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ordinance_cache_hits_total",
		Help: "Total ordinance list cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ordinance_cache_misses_total",
		Help: "Total ordinance list cache misses",
	})

	ingestRows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ordinance_ingest_rows_total",
		Help: "Ordinance ingestion rows by outcome",
	}, []string{"outcome"})

	emailDispatch := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "email_dispatch_total",
		Help: "Email dispatch attempts by outcome",
	}, []string{"outcome"})

	reviewDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ai_review_duration_seconds",
		Help:    "Duration of AI compliance review runs",
		Buckets: []float64{1, 2.5, 5, 10, 20, 40, 60, 120},
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheHits, cacheMisses, ingestRows, emailDispatch, reviewDuration, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		ingestRows:      ingestRows,
		emailDispatch:   emailDispatch,
		reviewDuration:  reviewDuration,
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

// ObserveHTTPRequest records request timing and count.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation counts ordinance list cache hits and misses.
func (m *MetricsService) RecordCacheOperation(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// ObserveIngest records the outcome counts of one ingestion run.
func (m *MetricsService) ObserveIngest(imported, errored int) {
	if m == nil {
		return
	}
	m.ingestRows.WithLabelValues("imported").Add(float64(imported))
	m.ingestRows.WithLabelValues("errored").Add(float64(errored))
}

// ObserveEmailDispatch counts one delivery attempt outcome
// (sent, failed or simulated).
func (m *MetricsService) ObserveEmailDispatch(outcome string) {
	if m == nil {
		return
	}
	m.emailDispatch.WithLabelValues(outcome).Inc()
}

// ObserveReview records the duration of one AI review run.
func (m *MetricsService) ObserveReview(duration time.Duration) {
	if m == nil {
		return
	}
	m.reviewDuration.Observe(duration.Seconds())
}
