package service

import (
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	appErrors "github.com/noah-isme/enrollment-engine/pkg/errors"
)

// MetricsService encapsulates Prometheus instrumentation for the API and the enrollment engine.
type MetricsService struct {
	registry         *prometheus.Registry
	handler          http.Handler
	requestDuration  *prometheus.HistogramVec
	requestTotal     *prometheus.CounterVec
	enrollmentOps    *prometheus.CounterVec
	rolloverArchived prometheus.Counter
	lockdownFailures *prometheus.CounterVec
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

	enrollmentOps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollment_operations_total",
		Help: "Enrollment engine operations by outcome",
	}, []string{"operation", "outcome"})

	rolloverArchived := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rollover_archived_total",
		Help: "Enrollments archived by term rollovers",
	})

	lockdownFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rollover_lockdown_failures_total",
		Help: "Rollover lockdown steps that exhausted every retry",
	}, []string{"step"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, enrollmentOps, rolloverArchived, lockdownFailures, goroutines)

	return &MetricsService{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:  requestDuration,
		requestTotal:     requestTotal,
		enrollmentOps:    enrollmentOps,
		rolloverArchived: rolloverArchived,
		lockdownFailures: lockdownFailures,
	}
}

// Registry exposes the underlying registry for tests and custom collectors.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
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

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordEnrollmentOperation counts an engine operation, labelling failures by error code.
func (m *MetricsService) RecordEnrollmentOperation(operation string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = strings.ToLower(appErrors.FromError(err).Code)
	}
	m.enrollmentOps.WithLabelValues(operation, outcome).Inc()
}

// AddRolloverArchived adds archived enrollments to the rollover counter.
func (m *MetricsService) AddRolloverArchived(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.rolloverArchived.Add(float64(count))
}

// RecordLockdownFailure counts a lockdown step that could not be completed.
func (m *MetricsService) RecordLockdownFailure(step string) {
	if m == nil {
		return
	}
	m.lockdownFailures.WithLabelValues(step).Inc()
}
