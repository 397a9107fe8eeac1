package connector

import (
	"fmt"
	"reflect"
	"sync"
)

// TypeRegistry maps Go connector types to the client widget type that
// renders them. Registration happens at startup; lookups are concurrent.
type TypeRegistry struct {
	mu    sync.RWMutex
	names map[reflect.Type]string
}

// NewTypeRegistry creates an empty registry.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{names: make(map[reflect.Type]string)}
}

// DefaultTypes is the registry used by RegisterType and by writers created
// without an explicit one.
var DefaultTypes = NewTypeRegistry()

// RegisterType registers clientType for the dynamic type of proto in
// DefaultTypes.
func RegisterType(proto Connector, clientType string) {
	DefaultTypes.Register(proto, clientType)
}

// Register maps the dynamic type of proto to clientType.
func (r *TypeRegistry) Register(proto Connector, clientType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names[reflect.TypeOf(proto)] = clientType
}

// ClientTypeOf resolves the client type of c. An exact registration wins.
// Otherwise the embedded fields of c's struct are searched breadth first,
// so a type embedding a registered connector renders like it. A
// ClientType method is the last resort.
func (r *TypeRegistry) ClientTypeOf(c Connector) (string, error) {
	r.mu.RLock()
	name, ok := r.lookup(reflect.TypeOf(c))
	r.mu.RUnlock()
	if ok {
		return name, nil
	}
	if ct, ok := c.(ClientTyper); ok {
		if name := ct.ClientType(); name != "" {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w: %T", ErrNoClientType, c)
}

func (r *TypeRegistry) lookup(t reflect.Type) (string, bool) {
	queue := []reflect.Type{t}
	seen := make(map[reflect.Type]bool)
	for len(queue) > 0 {
		t := queue[0]
		queue = queue[1:]
		if seen[t] {
			continue
		}
		seen[t] = true

		if name, ok := r.names[t]; ok {
			return name, true
		}
		if t.Kind() != reflect.Pointer {
			if name, ok := r.names[reflect.PointerTo(t)]; ok {
				return name, true
			}
		}

		st := t
		if st.Kind() == reflect.Pointer {
			st = st.Elem()
		}
		if st.Kind() != reflect.Struct {
			continue
		}
		for i := 0; i < st.NumField(); i++ {
			if f := st.Field(i); f.Anonymous {
				queue = append(queue, f.Type)
			}
		}
	}
	return "", false
}
