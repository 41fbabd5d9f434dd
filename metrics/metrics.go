// Package metrics instruments protocol sessions with Prometheus collectors.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "mcp"

// Outcome labels for request counters.
const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeTimeout   = "timeout"
	OutcomeCancelled = "cancelled"
	OutcomeClosed    = "closed"
)

// Metrics holds the collectors shared by every session it is attached to.
type Metrics struct {
	requestsSent     *prometheus.CounterVec
	requestsReceived *prometheus.CounterVec
	notificationsOut *prometheus.CounterVec
	pending          prometheus.Gauge
	latency          *prometheus.HistogramVec
	logsDropped      *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg skips
// registration.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requestsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "requests_sent_total",
			Help:      "Outgoing requests by method and terminal outcome.",
		}, []string{"method", "outcome"}),
		requestsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "requests_received_total",
			Help:      "Inbound requests by method and outcome.",
		}, []string{"method", "outcome"}),
		notificationsOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "notifications_sent_total",
			Help:      "Outgoing notifications by method.",
		}, []string{"method"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "pending_requests",
			Help:      "Outgoing requests awaiting a terminal outcome.",
		}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "request_duration_seconds",
			Help:      "Time from sending a request to its terminal outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		logsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "logging",
			Name:      "dropped_total",
			Help:      "Log notifications dropped before reaching the transport.",
		}, []string{"reason"}),
	}
	if reg != nil {
		reg.MustRegister(m.requestsSent, m.requestsReceived, m.notificationsOut, m.pending, m.latency, m.logsDropped)
	}
	return m
}

// RequestStarted marks an outgoing request as pending.
func (m *Metrics) RequestStarted() {
	if m == nil {
		return
	}
	m.pending.Inc()
}

// RequestFinished records the terminal outcome of an outgoing request.
func (m *Metrics) RequestFinished(method, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.pending.Dec()
	m.requestsSent.WithLabelValues(method, outcome).Inc()
	m.latency.WithLabelValues(method).Observe(d.Seconds())
}

// RequestReceived records how an inbound request was answered.
func (m *Metrics) RequestReceived(method, outcome string) {
	if m == nil {
		return
	}
	m.requestsReceived.WithLabelValues(method, outcome).Inc()
}

// NotificationSent counts an outgoing notification.
func (m *Metrics) NotificationSent(method string) {
	if m == nil {
		return
	}
	m.notificationsOut.WithLabelValues(method).Inc()
}

// LogDropped counts a log notification suppressed for reason.
func (m *Metrics) LogDropped(reason string) {
	if m == nil {
		return
	}
	m.logsDropped.WithLabelValues(reason).Inc()
}
