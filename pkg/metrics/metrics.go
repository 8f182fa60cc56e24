package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OrdersAccepted counts orders accepted into the book.
var OrdersAccepted = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "relayer_orders_accepted_total",
		Help: "Total number of signed orders accepted into the order book",
	},
)

// OrdersRejected counts rejected submissions by reason.
var OrdersRejected = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "relayer_orders_rejected_total",
		Help: "Total number of order submissions rejected",
	},
	[]string{"reason"},
)

// OrdersUpdated counts in-place remaining-amount updates.
var OrdersUpdated = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "relayer_orders_updated_total",
		Help: "Total number of orders whose remaining amounts were updated",
	},
)

// OrdersRemoved counts orders removed from the book by reason (filled, cancelled, pruned).
var OrdersRemoved = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "relayer_orders_removed_total",
		Help: "Total number of orders removed from the order book",
	},
	[]string{"reason"},
)

// SettlementQueryLatency records latency of settlement authority queries.
var SettlementQueryLatency = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "relayer_settlement_query_latency_seconds",
		Help:    "Latency in seconds of remaining-fillable queries against the settlement authority",
		Buckets: prometheus.DefBuckets,
	},
)

// SettlementQueryErrors counts transient settlement query failures.
var SettlementQueryErrors = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "relayer_settlement_query_errors_total",
		Help: "Total number of transient settlement query failures",
	},
)

// Event bus delivery counters
var (
	EventsPublished = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relayer_events_published_total",
			Help: "Total number of order events published on the bus",
		},
	)

	EventsDelivered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relayer_events_delivered_total",
			Help: "Total number of order events delivered to subscribers",
		},
	)

	EventsFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relayer_events_failed_total",
			Help: "Total number of order event deliveries that panicked",
		},
	)
)

// WebSocket feed metrics
var (
	WSConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "relayer_ws_connections",
			Help: "Number of active WebSocket subscriber connections",
		},
	)

	WSMessagesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relayer_ws_messages_sent_total",
			Help: "Total number of snapshot and update messages written to subscribers",
		},
	)

	WSMessagesDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relayer_ws_messages_dropped_total",
			Help: "Total number of messages dropped because a subscriber was too slow",
		},
	)
)

func init() {
	prometheus.MustRegister(OrdersAccepted, OrdersRejected, OrdersUpdated, OrdersRemoved)
	prometheus.MustRegister(SettlementQueryLatency, SettlementQueryErrors)
	prometheus.MustRegister(EventsPublished, EventsDelivered, EventsFailed)
	prometheus.MustRegister(WSConnections, WSMessagesSent, WSMessagesDropped)
}
