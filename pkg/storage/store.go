package storage

import (
	"errors"
	"time"

	"github.com/cuemby/canopy/pkg/types"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("storage: not found")

// Store persists session records so that a restarted server can tell an
// expired session apart from one it never issued
type Store interface {
	SaveSession(session *types.Session) error
	GetSession(id string) (*types.Session, error)
	ListSessions() ([]*types.Session, error)
	DeleteSession(id string) error

	// PruneSessions deletes ended sessions that ended before cutoff and
	// returns how many were removed
	PruneSessions(cutoff time.Time) (int, error)

	// Ping checks that the store is usable
	Ping() error

	Close() error
}
