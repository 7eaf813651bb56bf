package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "quizrooms"

// Metrics holds the server's prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	roomsActive       prometheus.Gauge
	connectionsActive prometheus.Gauge
	messages          *prometheus.CounterVec
	errors            *prometheus.CounterVec
	broadcasts        *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		roomsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms_active",
			Help:      "Number of live rooms.",
		}),
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Number of open client connections.",
		}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Inbound messages handled, by type.",
		}, []string{"type"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Error replies sent to clients, by code.",
		}, []string{"code"}),
		broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Room broadcasts sent, by type.",
		}, []string{"type"}),
	}

	for _, c := range []prometheus.Collector{
		m.roomsActive, m.connectionsActive, m.messages, m.errors, m.broadcasts,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// SetRooms records the number of live rooms
func (m *Metrics) SetRooms(n int) {
	if m == nil {
		return
	}
	m.roomsActive.Set(float64(n))
}

// SetConnections records the number of open connections
func (m *Metrics) SetConnections(n int) {
	if m == nil {
		return
	}
	m.connectionsActive.Set(float64(n))
}

// Message counts one inbound message
func (m *Metrics) Message(typ string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(typ).Inc()
}

// Error counts one error reply
func (m *Metrics) Error(code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(code).Inc()
}

// Broadcast counts one room broadcast
func (m *Metrics) Broadcast(typ string) {
	if m == nil {
		return
	}
	m.broadcasts.WithLabelValues(typ).Inc()
}
