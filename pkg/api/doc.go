/*
Package api is the HTTP and gRPC front of a canopy server.

It adapts browser requests to the session manager and nothing more: the
manager decides what goes into a response, this package only moves bytes.

# Routes

	POST /init                  create or reuse the session, open a root
	POST /UIDL?rootId=N         one UIDL round trip; body is the payload
	GET  /PUSH?rootId=N         WebSocket push channel for root N
	GET  /health /ready /live   component health
	GET  /metrics               Prometheus metrics

The session id travels in the CANOPYSESSION cookie. /init sets it when the
request carries no live session.

/UIDL always answers 200 once the request is well formed. Expired sessions,
bad security keys and unknown roots come back as critical notifications
inside the UIDL message, which is what the client runtime expects.
Optional query flags:

	repaintAll=1             resend the whole tree
	analyzeLayouts=1         report relative sizes in undefined parents
	highlightConnector=<id>  log the connector's hierarchy

# Rate limiting

With Config.RequestsPerSecond set, /UIDL requests are limited per session
(per client address before a session exists) using a token bucket from
golang.org/x/time/rate. Rejected requests get 429 with Retry-After.

# Push

The push handler registers a WebSocket connection with the manager. Changes
made through Manager.Access are written to it as complete UIDL messages.
The server pings every 30 seconds and drops the connection when pongs stop.

# Admin server

AdminServer runs the standard grpc.health.v1.Health service on a separate
listener. Its status is SERVING while every critical component reported to
the metrics package is ready.

	srv := api.NewServer(mgr, api.Config{RequestsPerSecond: 20, Burst: 40})
	go srv.Start(":8080")

	admin := api.NewAdminServer(5 * time.Second)
	go admin.Start(":9090")
*/
package api
