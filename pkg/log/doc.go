/*
Package log provides structured logging for canopy using zerolog.

All packages log through the global Logger, usually via a child logger that
carries a component name:

	logger := log.WithComponent("manager")
	logger.Info().Str("session_id", id).Msg("Session created")

Request handling adds the session and root to every line it writes:

	logger := log.WithRootID(sessionID, rootID)
	logger.Warn().Str("connector", cid).Msg("Ignoring change for missing connector")

# Initialization

	log.Init(log.Config{
		Level:      log.ParseLevel(cfg.Log.Level),
		JSONOutput: true,
	})

JSON output is meant for log shippers; the console writer is for
development. Output defaults to stdout.

# Levels

  - debug: per-request detail such as painted connectors and HTTP access
  - info: session lifecycle and server start and stop
  - warn: stale targets, security key mismatches, missing layout templates
  - error: failures in application code and serialization errors

Field names are snake_case: component, session_id, root_id, connector.
*/
package log
