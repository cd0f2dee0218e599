package utils

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector tracks performance metrics across the system. Every
// collector is registered on its own registry so independent servers (and
// tests) never collide on the global default registerer.
type MetricsCollector struct {
	Registry *prometheus.Registry

	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	messagesSent     *prometheus.CounterVec
	readReceipts     prometheus.Counter
	connections      prometheus.Gauge
	socketEvents     *prometheus.CounterVec
	operationLatency *prometheus.HistogramVec
	errorCount       *prometheus.CounterVec
}

func NewMetricsCollector() *MetricsCollector {
	mc := &MetricsCollector{
		Registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "connectyou_http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "connectyou_http_request_duration_seconds",
				Help:    "HTTP request duration",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"method", "path"},
		),
		messagesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "connectyou_messages_sent_total",
				Help: "Total chat messages persisted",
			},
			[]string{"origin"}, // "rest" or "socket"
		),
		readReceipts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "connectyou_read_receipts_total",
				Help: "Total messagesRead notifications emitted",
			},
		),
		connections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "connectyou_socket_connections",
				Help: "Currently open realtime connections",
			},
		),
		socketEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "connectyou_socket_events_total",
				Help: "Realtime events handled",
			},
			[]string{"event", "outcome"},
		),
		operationLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "connectyou_operation_duration_seconds",
				Help:    "Messaging service operation latency",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"operation"},
		),
		errorCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "connectyou_errors_total",
				Help: "Errors by application error code",
			},
			[]string{"code"},
		),
	}

	mc.Registry.MustRegister(
		mc.httpRequests,
		mc.httpDuration,
		mc.messagesSent,
		mc.readReceipts,
		mc.connections,
		mc.socketEvents,
		mc.operationLatency,
		mc.errorCount,
	)
	return mc
}

func (mc *MetricsCollector) ObserveRequest(method, path string, status int, duration time.Duration) {
	mc.httpRequests.WithLabelValues(method, path, statusLabel(status)).Inc()
	mc.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func (mc *MetricsCollector) IncrementMessagesSent(origin string) {
	mc.messagesSent.WithLabelValues(origin).Inc()
}

func (mc *MetricsCollector) AddReadReceipts(n int) {
	mc.readReceipts.Add(float64(n))
}

func (mc *MetricsCollector) ConnectionOpened() {
	mc.connections.Inc()
}

func (mc *MetricsCollector) ConnectionClosed() {
	mc.connections.Dec()
}

func (mc *MetricsCollector) IncrementSocketEvent(event, outcome string) {
	mc.socketEvents.WithLabelValues(event, outcome).Inc()
}

func (mc *MetricsCollector) IncrementErrors(code string) {
	mc.errorCount.WithLabelValues(code).Inc()
}

func (mc *MetricsCollector) AddOperationLatency(operationName string, duration time.Duration) {
	mc.operationLatency.WithLabelValues(operationName).Observe(duration.Seconds())
}

func statusLabel(status int) string {
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
