package nrepl

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metricsNamespace is the Prometheus namespace for all server metrics.
const metricsNamespace = "slate"

// Metrics holds the server's Prometheus instruments. A nil *Metrics is
// valid and records nothing, so embedding code can opt out entirely.
type Metrics struct {
	connectionsTotal  prometheus.Counter
	activeConnections prometheus.Gauge
	opsTotal          *prometheus.CounterVec
	opDuration        *prometheus.HistogramVec
	decodeFailures    prometheus.Counter
	bytesRead         prometheus.Counter
	bytesWritten      prometheus.Counter
}

// NewMetrics registers the server instruments with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		connectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "nrepl",
			Name:      "connections_total",
			Help:      "Accepted connections.",
		}),
		activeConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "nrepl",
			Name:      "connections_active",
			Help:      "Currently open connections.",
		}),
		opsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "nrepl",
			Name:      "ops_total",
			Help:      "Dispatched requests by verb and outcome.",
		}, []string{"op", "status"}),
		opDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "nrepl",
			Name:      "op_duration_seconds",
			Help:      "Request handling duration by verb.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		decodeFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "nrepl",
			Name:      "decode_failures_total",
			Help:      "Connections dropped on malformed framing.",
		}),
		bytesRead: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "nrepl",
			Name:      "bytes_read_total",
			Help:      "Bytes received across all connections.",
		}),
		bytesWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "nrepl",
			Name:      "bytes_written_total",
			Help:      "Bytes written across all connections.",
		}),
	}
}

func (m *Metrics) connOpened() {
	if m == nil {
		return
	}
	m.connectionsTotal.Inc()
	m.activeConnections.Inc()
}

func (m *Metrics) connClosed() {
	if m == nil {
		return
	}
	m.activeConnections.Dec()
}

func (m *Metrics) observeOp(op, status string, d time.Duration) {
	if m == nil {
		return
	}
	if op == "" {
		op = "unknown"
	}
	m.opsTotal.WithLabelValues(op, status).Inc()
	m.opDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (m *Metrics) decodeFailed() {
	if m == nil {
		return
	}
	m.decodeFailures.Inc()
}

func (m *Metrics) addRead(n int) {
	if m == nil {
		return
	}
	m.bytesRead.Add(float64(n))
}

func (m *Metrics) addWritten(n int) {
	if m == nil {
		return
	}
	m.bytesWritten.Add(float64(n))
}
