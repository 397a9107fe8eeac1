package connector

import (
	"fmt"
	"strconv"
)

const (
	idPrefix      = "PID"
	debugIDPrefix = "PID_S"
)

// Registry maps identifiers to the connectors of one root, in both
// directions. It is only used under the application lock and does no
// locking of its own.
type Registry struct {
	root     *Root
	counters *Counters
	byID     map[string]Connector
}

func newRegistry(root *Root, counters *Counters) *Registry {
	if counters == nil {
		counters = &Counters{}
	}
	return &Registry{
		root:     root,
		counters: counters,
		byID:     make(map[string]Connector),
	}
}

// IDFor returns the identifier of c, allocating one on first use. An id is
// kept by the connector for its whole life, so a detached and reattached
// connector comes back with the same id and ids are never handed out twice.
func (r *Registry) IDFor(c Connector) (string, error) {
	b := c.ConnectorBase()
	id := b.id
	if id == "" {
		if b.debugID != "" {
			id = debugIDPrefix + b.debugID
		} else {
			id = idPrefix + strconv.FormatUint(r.counters.NextID(), 10)
		}
	}
	if existing, ok := r.byID[id]; ok && existing != c && r.live(existing) {
		return "", fmt.Errorf("%w: %s is already used by a %T", ErrIDCollision, id, existing)
	}
	b.id = id
	r.byID[id] = c
	return id, nil
}

// Connector returns the connector registered under id.
func (r *Registry) Connector(id string) (Connector, bool) {
	c, ok := r.byID[id]
	return c, ok
}

// Purge drops every entry whose connector no longer hangs under the root.
// It returns the number of entries removed.
func (r *Registry) Purge() int {
	removed := 0
	for id, c := range r.byID {
		if !r.live(c) {
			delete(r.byID, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of registered connectors.
func (r *Registry) Len() int { return len(r.byID) }

func (r *Registry) live(c Connector) bool {
	return RootOf(c) == r.root
}
