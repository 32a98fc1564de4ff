package client

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics holds the client's Prometheus instruments. A nil *metrics (no
// Registerer configured) disables collection; every method is nil-safe.
type metrics struct {
	connects      prometheus.Counter
	reconnects    prometheus.Counter
	handshakeFail *prometheus.CounterVec
	state         prometheus.Gauge

	eventsSent      prometheus.Counter
	eventsReceived  prometheus.Counter
	duplicates      prometheus.Counter
	retransmissions prometheus.Counter

	acks       *prometheus.CounterVec
	ackLatency prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		return nil
	}
	factory := promauto.With(reg)
	return &metrics{
		connects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "relink",
			Subsystem: "client",
			Name:      "connects_total",
			Help:      "Successful handshakes, fresh sessions and recoveries alike.",
		}),
		reconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "relink",
			Subsystem: "client",
			Name:      "reconnect_attempts_total",
			Help:      "Reconnection attempts scheduled after a connection loss.",
		}),
		handshakeFail: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relink",
			Subsystem: "client",
			Name:      "handshake_failures_total",
			Help:      "Handshake rejections by server status.",
		}, []string{"status"}),
		state: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "relink",
			Subsystem: "client",
			Name:      "state",
			Help:      "Current lifecycle state as its numeric code.",
		}),
		eventsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "relink",
			Subsystem: "client",
			Name:      "events_sent_total",
			Help:      "Events accepted into the outbound queue.",
		}),
		eventsReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "relink",
			Subsystem: "client",
			Name:      "events_received_total",
			Help:      "Events dispatched to handlers.",
		}),
		duplicates: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "relink",
			Subsystem: "client",
			Name:      "duplicate_events_total",
			Help:      "Sequenced events dropped because their sequence was already delivered.",
		}),
		retransmissions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "relink",
			Subsystem: "client",
			Name:      "retransmissions_total",
			Help:      "Retransmissions of unacknowledged events.",
		}),
		acks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relink",
			Subsystem: "client",
			Name:      "acks_total",
			Help:      "Tracked call outcomes.",
		}, []string{"outcome"}),
		ackLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "relink",
			Subsystem: "client",
			Name:      "ack_latency_seconds",
			Help:      "Time from first transmission to terminal outcome.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
	}
}

func (m *metrics) observeConnect() {
	if m == nil {
		return
	}
	m.connects.Inc()
}

func (m *metrics) observeReconnectAttempt() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

func (m *metrics) observeHandshakeFailure(status string) {
	if m == nil {
		return
	}
	m.handshakeFail.WithLabelValues(status).Inc()
}

func (m *metrics) observeState(s State) {
	if m == nil {
		return
	}
	m.state.Set(float64(s))
}

func (m *metrics) observeEventSent() {
	if m == nil {
		return
	}
	m.eventsSent.Inc()
}

func (m *metrics) observeEventReceived() {
	if m == nil {
		return
	}
	m.eventsReceived.Inc()
}

func (m *metrics) observeDuplicate() {
	if m == nil {
		return
	}
	m.duplicates.Inc()
}

func (m *metrics) observeRetransmission() {
	if m == nil {
		return
	}
	m.retransmissions.Inc()
}

func (m *metrics) observeAck(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.acks.WithLabelValues(outcome).Inc()
	m.ackLatency.Observe(elapsed.Seconds())
}
