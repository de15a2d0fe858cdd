package websocket

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Drop reasons recorded on FramesDropped.
const (
	dropInvalid    = "invalid"
	dropNotOpen    = "not_open"
	dropBufferFull = "buffer_full"
)

// ConnectionMetrics holds the Prometheus series for the gateway, the
// broadcaster and the scheduler. Each instance owns its registry.
type ConnectionMetrics struct {
	registry *prometheus.Registry

	OpenConnections    prometheus.Gauge
	RegisteredUsers    prometheus.Gauge
	FramesReceived     *prometheus.CounterVec
	FramesDropped      *prometheus.CounterVec
	MessagesSent       *prometheus.CounterVec
	MessagesDropped    *prometheus.CounterVec
	AlertsRaised       *prometheus.CounterVec
	EvaluationDuration prometheus.Histogram
	EvaluationErrors   prometheus.Counter
}

// NewConnectionMetrics creates and registers the engine metrics under namespace.
func NewConnectionMetrics(namespace string) *ConnectionMetrics {
	registry := prometheus.NewRegistry()

	m := &ConnectionMetrics{
		registry: registry,
		OpenConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_open_connections",
			Help:      "Number of open websocket connections",
		}),
		RegisteredUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_registered_users",
			Help:      "Number of users registered to a session",
		}),
		FramesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_frames_received_total",
			Help:      "Inbound frames by message type",
		}, []string{"type"}),
		FramesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_frames_dropped_total",
			Help:      "Inbound frames discarded without processing",
		}, []string{"reason"}),
		MessagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_sent_total",
			Help:      "Outbound messages queued to a connection",
		}, []string{"type"}),
		MessagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_dropped_total",
			Help:      "Outbound messages dropped for a single recipient",
		}, []string{"type"}),
		AlertsRaised: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_raised_total",
			Help:      "Alerts raised by category",
		}, []string{"category"}),
		EvaluationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_evaluation_duration_seconds",
			Help:      "Time spent evaluating one session on a tick",
			Buckets:   prometheus.DefBuckets,
		}),
		EvaluationErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_evaluation_errors_total",
			Help:      "Session evaluations that failed to read the store",
		}),
	}

	registry.MustRegister(
		m.OpenConnections,
		m.RegisteredUsers,
		m.FramesReceived,
		m.FramesDropped,
		m.MessagesSent,
		m.MessagesDropped,
		m.AlertsRaised,
		m.EvaluationDuration,
		m.EvaluationErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry so other components can add series.
func (m *ConnectionMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *ConnectionMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveEvaluation records how long a session evaluation took.
func (m *ConnectionMetrics) ObserveEvaluation(start time.Time) {
	m.EvaluationDuration.Observe(time.Since(start).Seconds())
}
