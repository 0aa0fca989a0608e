package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Business metrics
	ConnectedChargers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ocpp_connected_chargers",
		Help: "Number of charger slots currently occupied",
	})

	ActiveTransactions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ocpp_active_transactions",
		Help: "Number of transactions currently bound to a connector",
	})

	// Infrastructure metrics
	OCPPMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ocpp_messages_total",
		Help: "Total OCPP messages by action and direction",
	}, []string{"action", "direction"})

	CallErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ocpp_call_errors_total",
		Help: "Total CALLERROR frames emitted by error code",
	}, []string{"code"})

	OutboundTimeoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ocpp_outbound_timeouts_total",
		Help: "Outbound calls that expired without a response",
	})

	DatabaseLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ocpp_database_latency_seconds",
		Help:    "Latency of telemetry inserts",
		Buckets: prometheus.DefBuckets,
	})
)
