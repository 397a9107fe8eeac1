/*
Package value is the tagged value model of the wire protocol.

Every value sent in either direction is a two element array of a type tag
and its contents:

	["s","text"]  ["i",42]  ["b",true]  ["S",["a","b"]]
	["m",{"k":["d",1.5]}]  ["c","PID4"]  ["u",null]

Value is a closed sum type with one Go type per tag. Shared state (tag "t")
is a map of field names to values and is what connectors keep in
connector.Base.

Encoding rejects NaN and infinities (ErrNotFinite) and nesting deeper than
MaxDepth (ErrTooDeep), which is how a cyclic map shows up. Strings are
escaped by WriteQuoted rather than a JSON library because the client
expects "/" written as "\/" and other control characters as \u00XX in
upper case hex.

Decoding goes through json-iterator with UseNumber so that longs survive
unchanged.
*/
package value
