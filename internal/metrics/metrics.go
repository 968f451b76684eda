// Package metrics holds the Prometheus instruments for the solver client.
// All methods are safe to call on a nil *Metrics.
package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "qps"

// Metrics groups every instrument the client records.
type Metrics struct {
	ServiceRequests *prometheus.CounterVec
	ServiceDuration *prometheus.HistogramVec
	UploadOutcomes  *prometheus.CounterVec
	PairTransitions *prometheus.CounterVec
	StaleResults    *prometheus.CounterVec
	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
	HTTPInFlight    prometheus.Gauge
}

// New creates the instruments and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ServiceRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "service",
			Name:      "requests_total",
			Help:      "Collaborator service requests by operation and outcome.",
		}, []string{"op", "outcome"}),
		ServiceDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "service",
			Name:      "request_duration_seconds",
			Help:      "Collaborator service request latency in seconds.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"op"}),
		UploadOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "uploads_total",
			Help:      "Completed upload workflows by resulting session status.",
		}, []string{"status"}),
		PairTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "pair_transitions_total",
			Help:      "Question pair transitions by target status.",
		}, []string{"status"}),
		StaleResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "stale_results_total",
			Help:      "Results discarded because the session generation moved on.",
		}, []string{"op"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status_code"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status_code"}),
		HTTPInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of HTTP requests currently being processed.",
		}),
	}

	reg.MustRegister(
		m.ServiceRequests, m.ServiceDuration,
		m.UploadOutcomes, m.PairTransitions, m.StaleResults,
		m.HTTPRequests, m.HTTPDuration, m.HTTPInFlight,
	)
	return m
}

// ObserveServiceRequest records one collaborator call.
func (m *Metrics) ObserveServiceRequest(op, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ServiceRequests.WithLabelValues(op, outcome).Inc()
	m.ServiceDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// UploadFinished records the session status an upload workflow ended in.
func (m *Metrics) UploadFinished(status string) {
	if m == nil {
		return
	}
	m.UploadOutcomes.WithLabelValues(status).Inc()
}

// PairTransition records a pair entering status.
func (m *Metrics) PairTransition(status string) {
	if m == nil {
		return
	}
	m.PairTransitions.WithLabelValues(status).Inc()
}

// StaleResult records a discarded late response.
func (m *Metrics) StaleResult(op string) {
	if m == nil {
		return
	}
	m.StaleResults.WithLabelValues(op).Inc()
}

// Middleware returns an Echo middleware that records HTTP metrics.
// It skips /metrics and the websocket feed.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Path()
			if m == nil || path == "/metrics" || strings.HasSuffix(path, "/ws") {
				return next(c)
			}

			m.HTTPInFlight.Inc()
			defer m.HTTPInFlight.Dec()

			timer := prometheus.NewTimer(prometheus.ObserverFunc(func(v float64) {
				status := strconv.Itoa(c.Response().Status)
				m.HTTPDuration.WithLabelValues(c.Request().Method, path, status).Observe(v)
				m.HTTPRequests.WithLabelValues(c.Request().Method, path, status).Inc()
			}))

			err := next(c)
			timer.ObserveDuration()
			return err
		}
	}
}
