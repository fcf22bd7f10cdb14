package forum

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus collectors of the realtime layer. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	framesReceived    *prometheus.CounterVec
	framesDropped     *prometheus.CounterVec
	framesSent        *prometheus.CounterVec
	connectionsOpened prometheus.Counter
	reconnectAttempts prometheus.Counter
	connected         prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "forum",
			Subsystem: "realtime",
			Name:      "frames_received_total",
			Help:      "Inbound frames decoded, by type.",
		}, []string{"type"}),
		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "forum",
			Subsystem: "realtime",
			Name:      "frames_dropped_total",
			Help:      "Inbound frames dropped, by reason.",
		}, []string{"reason"}),
		framesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "forum",
			Subsystem: "realtime",
			Name:      "frames_sent_total",
			Help:      "Outbound frames written, by type.",
		}, []string{"type"}),
		connectionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "forum",
			Subsystem: "realtime",
			Name:      "connections_opened_total",
			Help:      "Successful connection handshakes.",
		}),
		reconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "forum",
			Subsystem: "realtime",
			Name:      "reconnect_attempts_total",
			Help:      "Automatic reconnect attempts.",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "forum",
			Subsystem: "realtime",
			Name:      "connected",
			Help:      "1 while a connection is open.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.framesReceived, m.framesDropped, m.framesSent,
			m.connectionsOpened, m.reconnectAttempts, m.connected)
	}
	return m
}

func (m *Metrics) frameReceived(t FrameType) {
	if m != nil {
		m.framesReceived.WithLabelValues(string(t)).Inc()
	}
}

func (m *Metrics) frameDropped(reason string) {
	if m != nil {
		m.framesDropped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) frameSent(t FrameType) {
	if m != nil {
		m.framesSent.WithLabelValues(string(t)).Inc()
	}
}

func (m *Metrics) opened() {
	if m != nil {
		m.connectionsOpened.Inc()
		m.connected.Set(1)
	}
}

func (m *Metrics) closed() {
	if m != nil {
		m.connected.Set(0)
	}
}

func (m *Metrics) reconnectAttempt() {
	if m != nil {
		m.reconnectAttempts.Inc()
	}
}
