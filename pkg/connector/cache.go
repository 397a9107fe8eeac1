package connector

// Client cache key prefixes
const (
	TypeKeyPrefix     = "type:"
	ResourceKeyPrefix = "resource:"
)

// ClientCache remembers what a client has already been sent.
type ClientCache struct {
	known map[string]struct{}
}

// NewClientCache creates an empty cache.
func NewClientCache() *ClientCache {
	return &ClientCache{known: make(map[string]struct{})}
}

// Cache records key and reports whether it was new, meaning the client still
// has to be told about it.
func (c *ClientCache) Cache(key string) bool {
	if _, ok := c.known[key]; ok {
		return false
	}
	c.known[key] = struct{}{}
	return true
}

// Contains reports whether key was cached.
func (c *ClientCache) Contains(key string) bool {
	_, ok := c.known[key]
	return ok
}

// Len returns the number of cached keys.
func (c *ClientCache) Len() int { return len(c.known) }

// Clear forgets every key. Used on full repaint, when the client starts over.
func (c *ClientCache) Clear() {
	c.known = make(map[string]struct{})
}
