package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Session metrics
	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "canopy_sessions_active",
			Help: "Number of sessions with a running application",
		},
	)

	RootsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "canopy_roots_active",
			Help: "Number of open roots (browser windows) across all sessions",
		},
	)

	PushConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "canopy_push_connections_active",
			Help: "Number of roots with an open websocket push channel",
		},
	)

	SessionsExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "canopy_sessions_expired_total",
			Help: "Total number of sessions closed because of inactivity",
		},
	)

	// UIDL metrics
	UIDLRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "canopy_uidl_requests_total",
			Help: "Total number of UIDL requests by outcome",
		},
		[]string{"outcome"},
	)

	UIDLRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "canopy_uidl_request_duration_seconds",
			Help:    "UIDL request handling duration in seconds, lock wait included",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	ResponseBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "canopy_uidl_response_bytes",
			Help:    "Size of UIDL responses in bytes",
			Buckets: prometheus.ExponentialBuckets(64, 4, 8),
		},
	)

	ConnectorsPainted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "canopy_connectors_painted_total",
			Help: "Total number of dirty connectors written to clients",
		},
	)

	RPCInvocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "canopy_rpc_invocations_total",
			Help: "Total number of RPC invocations by direction",
		},
		[]string{"direction"},
	)

	// Error metrics
	SecurityFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "canopy_security_failures_total",
			Help: "Total number of requests rejected for a wrong security key",
		},
	)

	VariableChangeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "canopy_variable_change_errors_total",
			Help: "Total number of failed client changes by reason",
		},
		[]string{"reason"},
	)

	PushMessages = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "canopy_push_messages_total",
			Help: "Total number of UIDL messages pushed over websockets",
		},
	)

	EventsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "canopy_events_dropped_total",
			Help: "Total number of lifecycle events dropped by where they were dropped",
		},
		[]string{"stage"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(SessionsActive)
	prometheus.MustRegister(RootsActive)
	prometheus.MustRegister(PushConnectionsActive)
	prometheus.MustRegister(SessionsExpired)
	prometheus.MustRegister(UIDLRequestsTotal)
	prometheus.MustRegister(UIDLRequestDuration)
	prometheus.MustRegister(ResponseBytes)
	prometheus.MustRegister(ConnectorsPainted)
	prometheus.MustRegister(RPCInvocations)
	prometheus.MustRegister(SecurityFailures)
	prometheus.MustRegister(VariableChangeErrors)
	prometheus.MustRegister(PushMessages)
	prometheus.MustRegister(EventsDropped)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
