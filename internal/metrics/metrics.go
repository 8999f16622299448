/*
Package metrics defines the Prometheus instrumentation for the relay: HTTP
request metrics plus counters and gauges for the messaging core.
*/
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hubchat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hubchat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Connection metrics
	ConnectionsAdmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hubchat_connections_admitted_total",
			Help: "Total WebSocket connections admitted",
		},
		[]string{"role"}, // "HUB" or "SPOKE"
	)

	ConnectionsRefused = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hubchat_connections_refused_total",
			Help: "Total WebSocket connections refused",
		},
		[]string{"reason"}, // "unauthorized", "rate_limited", "upgrade_failed"
	)

	SpokesOnline = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hubchat_spokes_online",
			Help: "Spoke users currently present",
		},
	)

	HubsOnline = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hubchat_hubs_online",
			Help: "Hub operator connections currently admitted",
		},
	)

	// Messaging metrics
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hubchat_messages_sent_total",
			Help: "Total messages persisted",
		},
		[]string{"sender_role", "status"}, // status at send time: "SENT" or "DELIVERED"
	)

	ReadReceipts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hubchat_read_receipts_total",
			Help: "Total mark-as-read operations that transitioned at least one message",
		},
	)

	TypingSignals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hubchat_typing_signals_total",
			Help: "Total typing signals relayed",
		},
		[]string{"sender_role"},
	)

	StoreFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hubchat_store_failures_total",
			Help: "Total conversation store failures",
		},
		[]string{"operation"},
	)

	DroppedEvents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hubchat_dropped_events_total",
			Help: "Total events dropped because a client send queue was full",
		},
	)
)
