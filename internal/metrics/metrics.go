package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for booking operations.
const (
	OutcomeSuccess  = "success"
	OutcomeConflict = "conflict"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// BookingMetrics exposes counters/histograms for the booking core. A nil *BookingMetrics is a no-op.
type BookingMetrics struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	httpTotal  *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "operations_total",
			Help:      "Booking operations by kind, channel and outcome",
		}, []string{"operation", "channel", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "operation_duration_seconds",
			Help:      "Latency of booking operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		httpTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route pattern and status",
		}, []string{"method", "route", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.operations, m.latency, m.httpTotal)
	return m
}

func (m *BookingMetrics) ObserveOperation(operation, channel, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	if channel == "" {
		channel = "none"
	}
	m.operations.WithLabelValues(operation, channel, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func (m *BookingMetrics) ObserveHTTP(method, route string, status int) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpTotal.WithLabelValues(method, route, statusClass(status)).Inc()
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
