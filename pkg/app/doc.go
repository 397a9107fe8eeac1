// Package app is the per-session application state: its roots, the lock
// every UI change runs under, and the chain of error handlers that see
// failures raised by connectors.
//
// Code touching the UI must run inside Access. It serializes client
// requests with background work and turns panics into ErrPanic errors:
//
//	err := a.Access(func() error {
//		label.SetText("done")
//		return nil
//	})
package app
