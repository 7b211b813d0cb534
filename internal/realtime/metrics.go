package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for realtime sessions.
type Metrics struct {
	activeConnections prometheus.Gauge
	rejectedTotal     prometheus.Counter
	heartbeatsTotal   prometheus.Counter
	messagesTotal     *prometheus.CounterVec
	authTotal         *prometheus.CounterVec
}

// NewMetrics creates realtime metrics registered with reg. A nil
// registerer leaves them unregistered.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "vibemuse"
	}

	m := &Metrics{
		activeConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "active_connections",
			Help:      "Number of live WebSocket sessions",
		}),
		rejectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "rejected_connections_total",
			Help:      "Total number of sessions rejected by the connection ceiling",
		}),
		heartbeatsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "heartbeats_total",
			Help:      "Total number of heartbeat events sent",
		}),
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "messages_total",
			Help:      "Total number of inbound messages by event",
		}, []string{"event"}),
		authTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "authentications_total",
			Help:      "Total number of in-band authentication attempts by result",
		}, []string{"result"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.activeConnections,
			m.rejectedTotal,
			m.heartbeatsTotal,
			m.messagesTotal,
			m.authTotal,
		)
	}
	return m
}

func (m *Metrics) setActive(n int) {
	if m != nil {
		m.activeConnections.Set(float64(n))
	}
}

func (m *Metrics) recordRejected() {
	if m != nil {
		m.rejectedTotal.Inc()
	}
}

func (m *Metrics) recordHeartbeat() {
	if m != nil {
		m.heartbeatsTotal.Inc()
	}
}

func (m *Metrics) recordMessage(event string) {
	if m == nil {
		return
	}
	switch event {
	case EventAuthenticate, EventTest:
	default:
		event = "unknown"
	}
	m.messagesTotal.WithLabelValues(event).Inc()
}

func (m *Metrics) recordAuth(success bool) {
	if m == nil {
		return
	}
	result := "success"
	if !success {
		result = "failure"
	}
	m.authTotal.WithLabelValues(result).Inc()
}
