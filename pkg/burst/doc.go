/*
Package burst decodes the client-to-server half of the UIDL protocol.

A request payload is a sequence of bursts separated by U+001D. The first
burst is the session's security key, or the literal "init" on the first
request of a root. Every later burst is an escaped JSON array of
invocations:

	<key> 1D [["PID3","v","v",["text",["s","hello"]]],
	          ["PID7","canopy.ui.Button","click",[]]]

Each invocation is [connectorId, interface, method, params], with every
parameter a tagged value (see package value). The interface and method
"v"/"v" mark a legacy variable change whose two parameters are the
variable name and its value. Consecutive variable changes to one connector
are merged into a single Call so the owner sees them together.

# Escaping

Bursts must not contain the separator, so U+001D and the escape character
U+001B itself are written as U+001B followed by the character plus 0x30:

	U+001B U+004B  ->  U+001B
	U+001B U+004D  ->  U+001D

Any other character after U+001B fails with ErrInvalidEscape; it means
client and server disagree on the protocol. Bursts that do not decode fail
with ErrMalformed.

Encode and EscapeString produce the same format and are what tests and
non-browser clients use to build payloads.
*/
package burst
