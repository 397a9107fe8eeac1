package connector

import (
	"errors"
	"fmt"

	"github.com/cuemby/canopy/pkg/value"
)

var (
	// ErrIDCollision is returned when two live connectors in one root would
	// share an identifier
	ErrIDCollision = errors.New("connector: identifier collision")

	// ErrDetached is returned for operations that need an attached connector
	ErrDetached = errors.New("connector: not attached to a running root")

	// ErrNoClientType is returned when no client type is registered for a
	// connector's Go type or any type it embeds
	ErrNoClientType = errors.New("connector: no client type registered")

	// ErrCycle is raised when a connector would be added inside its own
	// subtree
	ErrCycle = errors.New("connector: cannot be added inside its own subtree")
)

// Connector is any server-side object that takes part in the UI tree.
// Implementations embed Base and call Init from their constructor.
type Connector interface {
	ConnectorBase() *Base
}

// Container is a connector with child connectors
type Container interface {
	Connector
	Children() []Connector
}

// Remover is implemented by connectors that can give up a child. Adopt
// uses it to take a child away from its current parent.
type Remover interface {
	RemoveComponent(c Connector) bool
}

// VariableOwner receives legacy variable changes sent by the client. All
// changes for one connector within a burst arrive in a single call.
type VariableOwner interface {
	Connector
	ChangeVariables(vars map[string]value.Value) error
}

// StateUpdater is called for every dirty, visible connector right before its
// shared state is serialized.
type StateUpdater interface {
	UpdateState()
}

// ErrorHandler is implemented by connectors that want to see errors raised
// while their variable changes or RPC calls are applied. handled reports
// whether the error should stop propagating to the application handler.
type ErrorHandler interface {
	HandleComponentError(err error) (handled bool, herr error)
}

// ClientTyper lets a connector name its client type directly. The type
// registry is consulted first.
type ClientTyper interface {
	ClientType() string
}

// RPCHandler applies one server RPC call for a single interface.
type RPCHandler func(method string, params []value.Value) error

// Base carries the tree links, flags, shared state and RPC queues of a
// connector.
type Base struct {
	self     Connector
	parent   Connector
	id       string
	debugID  string
	hidden   bool
	disabled bool

	state    value.SharedState
	pending  []*Invocation
	handlers map[string]RPCHandler
}

// Init binds the base to the connector embedding it. It must be called
// before the connector is attached anywhere.
func (b *Base) Init(self Connector) {
	b.self = self
	if b.state == nil {
		b.state = value.SharedState{}
	}
}

// ConnectorBase implements Connector.
func (b *Base) ConnectorBase() *Base { return b }

// Self returns the connector this base was initialised for.
func (b *Base) Self() Connector { return b.self }

// Parent returns the parent connector, or nil for roots and detached nodes.
func (b *Base) Parent() Connector { return b.parent }

// ID returns the allocated identifier, empty until first referenced.
func (b *Base) ID() string { return b.id }

// DebugID returns the debug identifier, if one was set.
func (b *Base) DebugID() string { return b.debugID }

// SetDebugID makes the connector's identifier derive from id. It only has
// an effect before the connector is first painted.
func (b *Base) SetDebugID(id string) { b.debugID = id }

// Visible reports the connector's own visibility flag. See IsVisible for
// the effective value.
func (b *Base) Visible() bool { return !b.hidden }

// SetVisible changes visibility. Showing a connector re-sends its whole
// subtree, since nothing under a hidden connector reaches the client.
func (b *Base) SetVisible(visible bool) {
	if b.hidden == !visible {
		return
	}
	b.hidden = !visible
	if root := RootOf(b.self); root != nil {
		if visible {
			Walk(b.self, root.tracker.MarkDirty)
		} else {
			root.tracker.MarkDirty(b.self)
		}
		if b.parent != nil {
			root.tracker.MarkDirty(b.parent)
		}
	}
}

// Enabled reports the connector's own enabled flag.
func (b *Base) Enabled() bool { return !b.disabled }

// SetEnabled changes the enabled flag and marks the connector dirty.
func (b *Base) SetEnabled(enabled bool) {
	if b.disabled == !enabled {
		return
	}
	b.disabled = !enabled
	b.state["enabled"] = value.Bool(enabled)
	b.MarkAsDirty()
}

// MarkAsDirty requests that the connector is sent in the next response.
// Detached connectors are ignored.
func (b *Base) MarkAsDirty() {
	if root := RootOf(b.self); root != nil {
		root.tracker.MarkDirty(b.self)
	}
}

// State returns the live shared-state map. Mutations made through it must
// be followed by MarkAsDirty.
func (b *Base) State() value.SharedState { return b.state }

// SetState sets one shared-state field and marks the connector dirty.
func (b *Base) SetState(field string, v value.Value) {
	if v == nil {
		v = value.Null
	}
	b.state[field] = v
	b.MarkAsDirty()
}

// RegisterRPC installs the handler for server RPC calls on iface.
func (b *Base) RegisterRPC(iface string, h RPCHandler) {
	if b.handlers == nil {
		b.handlers = make(map[string]RPCHandler)
	}
	b.handlers[iface] = h
}

// RPCHandler returns the handler registered for iface.
func (b *Base) RPCHandler(iface string) (RPCHandler, bool) {
	h, ok := b.handlers[iface]
	return h, ok
}

// Invoke queues a client RPC call. The sequence number is drawn from the
// owning application's counters, so the connector must be attached.
func (b *Base) Invoke(iface, method string, params ...value.Value) error {
	root := RootOf(b.self)
	if root == nil || root.owner == nil {
		return ErrDetached
	}
	inv := newInvocation(root.owner.Counters().NextSeq(), b.self, iface, method, params)
	b.pending = append(b.pending, inv)
	root.tracker.MarkDirty(b.self)
	return nil
}

// Pending returns the number of queued client RPC calls.
func (b *Base) Pending() int { return len(b.pending) }

// SetParent moves child under parent, or detaches it when parent is nil.
// The subtree is dropped from the old root's dirty set and marked dirty in
// the new one. Containers call this from their add and remove methods.
//
// SetParent panics with ErrCycle when parent lies inside child's subtree.
func SetParent(child Connector, parent Connector) {
	b := child.ConnectorBase()
	if b.parent == parent {
		return
	}
	if err := checkCycle(child, parent); err != nil {
		panic(err)
	}
	if old := RootOf(child); old != nil {
		Walk(child, old.tracker.MarkClean)
	}
	b.parent = parent
	if root := RootOf(child); root != nil {
		Walk(child, root.tracker.MarkDirty)
	}
}

// Adopt prepares child to be added under parent. It panics with ErrCycle
// when parent lies inside child's subtree, and otherwise removes child from
// its current parent. Containers call it before recording the new child.
func Adopt(parent, child Connector) {
	if err := checkCycle(child, parent); err != nil {
		panic(err)
	}
	old := child.ConnectorBase().parent
	if old == nil {
		return
	}
	if r, ok := old.(Remover); ok {
		r.RemoveComponent(child)
	}
}

func checkCycle(child, parent Connector) error {
	for p := parent; p != nil; p = p.ConnectorBase().parent {
		if p == child {
			return fmt.Errorf("%w: %T", ErrCycle, child)
		}
	}
	return nil
}

// RootOf returns the root c hangs under, or nil when c is detached.
func RootOf(c Connector) *Root {
	if c == nil {
		return nil
	}
	for {
		p := c.ConnectorBase().parent
		if p == nil {
			break
		}
		c = p
	}
	root, _ := c.(*Root)
	return root
}

// IsAttached reports whether c belongs to a root of a running application.
func IsAttached(c Connector) bool {
	root := RootOf(c)
	return root != nil && root.IsAttached()
}

// Depth returns the number of parent links between c and the top of its
// tree.
func Depth(c Connector) int {
	d := 0
	for p := c.ConnectorBase().parent; p != nil; p = p.ConnectorBase().parent {
		d++
	}
	return d
}

// IsVisible reports whether c and all of its ancestors are visible.
func IsVisible(c Connector) bool {
	for ; c != nil; c = c.ConnectorBase().parent {
		if c.ConnectorBase().hidden {
			return false
		}
	}
	return true
}

// IsConnectorEnabled reports whether the client may change c: it must be
// attached, visible and enabled along with every ancestor.
func IsConnectorEnabled(c Connector) bool {
	if !IsAttached(c) || !IsVisible(c) {
		return false
	}
	for ; c != nil; c = c.ConnectorBase().parent {
		if c.ConnectorBase().disabled {
			return false
		}
	}
	return true
}

// Walk calls fn for c and every connector below it, parents first.
func Walk(c Connector, fn func(Connector)) {
	fn(c)
	if ct, ok := c.(Container); ok {
		for _, child := range ct.Children() {
			Walk(child, fn)
		}
	}
}

// VisibleChildren returns the children of ct that are themselves visible.
func VisibleChildren(ct Container) []Connector {
	children := ct.Children()
	out := make([]Connector, 0, len(children))
	for _, child := range children {
		if child.ConnectorBase().Visible() {
			out = append(out, child)
		}
	}
	return out
}
