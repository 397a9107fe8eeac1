/*
Package metrics defines canopy's Prometheus metrics and the component
health registry behind /health and /ready.

All collectors are package variables registered with the default registry
in init, so any package can update them directly:

	metrics.UIDLRequestsTotal.WithLabelValues("ok").Inc()

	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.UIDLRequestDuration, "update")

# Metrics

Sessions:

	canopy_sessions_active                gauge, sampled by Collector
	canopy_roots_active                   gauge, sampled by Collector
	canopy_push_connections_active        gauge, sampled by Collector
	canopy_sessions_expired_total         counter

UIDL:

	canopy_uidl_requests_total{outcome}   ok, expired, out_of_sync, security,
	                                      protocol, serialization, error
	canopy_uidl_request_duration_seconds{kind}
	                                      update or repaint, lock wait included
	canopy_uidl_response_bytes            histogram
	canopy_connectors_painted_total       counter
	canopy_rpc_invocations_total{direction}
	                                      client (server to client) or server
	canopy_push_messages_total            counter

Errors:

	canopy_security_failures_total        wrong security key
	canopy_variable_change_errors_total{reason}
	                                      missing, disabled, handler
	canopy_events_dropped_total{stage}    queue or subscriber

# Collector

The active gauges (sessions, roots and push connections) are sampled every
15 seconds from a SessionSource rather than updated on every change:

	c := metrics.NewCollector(mgr)
	c.Start()
	defer c.Stop()

# Health

Components report their state with RegisterComponent or install a probe
with RegisterCheck; probes run on every health request. /ready answers 503
until every critical component (sessions, store and api by default) is
registered and healthy. /health reports all components, /live only that
the process is up.

	metrics.RegisterCheck("store", store.Ping)
	metrics.RegisterComponent("api", true, "listening on :8080")

Useful queries:

	rate(canopy_uidl_requests_total{outcome!="ok"}[5m])
	histogram_quantile(0.95, rate(canopy_uidl_request_duration_seconds_bucket[5m]))
	rate(canopy_security_failures_total[5m]) > 0
*/
package metrics
