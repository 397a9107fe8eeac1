// Package types holds the plain data shared between canopy packages: the
// persisted session record and the system messages shown by the client
// when something goes wrong.
package types
