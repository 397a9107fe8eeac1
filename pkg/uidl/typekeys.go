package uidl

// TypeKeys hands out the small integer keys that stand in for client type
// names on the wire. Keys are stable for the life of the application.
type TypeKeys struct {
	next int
	keys map[string]int
}

// NewTypeKeys creates an empty key table
func NewTypeKeys() *TypeKeys {
	return &TypeKeys{keys: make(map[string]int)}
}

// KeyFor returns the key of name, allocating the next one on first use
func (k *TypeKeys) KeyFor(name string) int {
	key, ok := k.keys[name]
	if !ok {
		key = k.next
		k.next++
		k.keys[name] = key
	}
	return key
}

// Len returns the number of allocated keys
func (k *TypeKeys) Len() int { return len(k.keys) }
