package service

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/campushq/sis-api/internal/transition"
)

// MetricsService encapsulates Prometheus instrumentation. It implements
// transition.Observer so engine outcomes are counted at the source.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	transitionTotal *prometheus.CounterVec
	conflictTotal   *prometheus.CounterVec
	sweepRestored   prometheus.Counter
	sweepRuns       prometheus.Counter
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

	transitionTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "status_transitions_total",
		Help: "Status transitions processed by the engine",
	}, []string{"subject_type", "reason", "applied"})

	conflictTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "status_transition_conflicts_total",
		Help: "Transitions rejected due to concurrent or invalid state",
	}, []string{"subject_type"})

	sweepRestored := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "expiry_sweep_restored_total",
		Help: "Subjects restored by the expiry sweep",
	})

	sweepRuns := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "expiry_sweep_runs_total",
		Help: "Completed expiry sweep passes",
	})

	registry.MustRegister(requestDuration, requestTotal, transitionTotal, conflictTotal, sweepRestored, sweepRuns)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		transitionTotal: transitionTotal,
		conflictTotal:   conflictTotal,
		sweepRestored:   sweepRestored,
		sweepRuns:       sweepRuns,
	}
}

// Handler exposes the Prometheus scrape endpoint.
func (m *MetricsService) Handler() http.Handler {
	return m.handler
}

// ObserveRequest records one HTTP request.
func (m *MetricsService) ObserveRequest(method, path string, status int, elapsed time.Duration) {
	labels := []string{method, path, strconv.Itoa(status)}
	m.requestDuration.WithLabelValues(labels...).Observe(elapsed.Seconds())
	m.requestTotal.WithLabelValues(labels...).Inc()
}

// ObserveTransition implements transition.Observer.
func (m *MetricsService) ObserveTransition(subject transition.SubjectType, reason transition.Reason, applied bool) {
	m.transitionTotal.WithLabelValues(string(subject), string(reason), strconv.FormatBool(applied)).Inc()
}

// ObserveConflict implements transition.Observer.
func (m *MetricsService) ObserveConflict(subject transition.SubjectType) {
	m.conflictTotal.WithLabelValues(string(subject)).Inc()
}

// ObserveSweep implements transition.Observer.
func (m *MetricsService) ObserveSweep(restored int) {
	m.sweepRuns.Inc()
	m.sweepRestored.Add(float64(restored))
}
