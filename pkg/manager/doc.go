/*
Package manager serves UIDL requests for every session of a Canopy server.

A Manager keeps the live sessions, each pairing an app.Application with the
uidl.Writer that serializes its roots. A request is handled entirely under
the application lock:

	payload ──▶ security key ──▶ bursts ──▶ dispatch ──▶ uidl.Writer ──▶ response
	             (burst 0)        │ unescape, parse       │
	                              └─ discard repaint ─────┘ between bursts

Burst 0 must be the session's security key, or "init" on the first request
of a root, which asks for the key to be sent back. Calls addressed to
connectors that are gone or disabled make the request inconsistent; the
client is then either shown the out-of-sync notification or sent a full
repaint.

Responses are buffered. Any failure replaces the partial message with a
critical notification chosen from the configured system messages, so the
client always receives one well-formed message.

# Sessions

Sessions expire after SessionTimeout of inactivity. Expiry is noticed on
the next request and by a sweeper goroutine started with Start. Ended
sessions are recorded in the optional storage.Store, which lets a restarted
server answer requests for them with the session-expired notification.

# Push

Background goroutines change the UI through Manager.Access, which runs under
the application lock and then writes the pending changes of every root that
has a PushConnection attached.
*/
package manager
