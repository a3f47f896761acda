package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	relayConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "famcall_relay_connections",
		Help: "Number of WebSocket clients currently connected to this relay",
	})

	relayMessagesDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "famcall_relay_messages_delivered_total",
		Help: "Total signaling messages delivered to subscribers",
	})

	relayMessagesThrottled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "famcall_relay_messages_throttled_total",
		Help: "Total signaling messages dropped by per-connection rate limiting",
	})

	relayMessagesRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "famcall_relay_messages_rejected_total",
		Help: "Total signaling messages rejected by validation",
	})
)
