/*
Package uidl writes the server-to-client half of the protocol.

A Writer turns the dirty connectors of one root into a single UIDL
message. Every message is framed as

	for(;;);[{ ... }]

and its entries always come in this order:

	securityKey   only on the first response of a root
	changes       legacy paint output of dirty Paintable connectors
	state         shared state of dirty connectors, by id
	types         client type key of every dirty connector
	hierarchy     child ids of dirty containers
	rpc           queued server-to-client calls, only when there are any
	meta          repaintAll, invalidLayouts, hl, timedRedirect
	resources     layout templates the client has not seen
	typeMappings  type name to key, for names not sent before
	locales       locale definitions not sent before
	timings       [session ms, last request ms], outside production mode

Hidden connectors, and everything below them, are left out of the
message; showing a connector again re-sends its subtree. A full repaint
(Options.RepaintAll) forgets the client cache and sends everything again.

Type keys are small integers assigned per writer on first use, so a
writer must live as long as the session whose roots it serializes.

# Envelopes

WriteCriticalNotification and WriteEnded produce the two messages that
replace a normal response: an error the client shows before reloading, and
the redirect sent after the application has closed.

# Debug output

Outside production mode the writer can report relative-size children in
undefined-size parents (AnalyzeLayouts) and echo a connector to highlight.
*/
package uidl
