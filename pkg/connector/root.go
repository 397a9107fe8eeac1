package connector

// Owner is the application state a root belongs to.
type Owner interface {
	IsRunning() bool
	Counters() *Counters
}

// Root is the top of one browser window's connector tree. It owns the
// identifier registry, dirty tracker and client cache for that window.
type Root struct {
	Base

	id       int
	owner    Owner
	registry *Registry
	tracker  *DirtyTracker
	cache    *ClientCache
	content  Connector
	windows  []Connector
}

// NewRoot creates root number id for owner.
func NewRoot(id int, owner Owner) *Root {
	r := &Root{id: id, owner: owner}
	r.Init(r)
	var counters *Counters
	if owner != nil {
		counters = owner.Counters()
	}
	r.registry = newRegistry(r, counters)
	r.tracker = newDirtyTracker(r)
	r.cache = NewClientCache()
	r.tracker.MarkDirty(r)
	return r
}

// RootID returns the numeric root id the client addresses requests to.
func (r *Root) RootID() int { return r.id }

// Owner returns the application the root belongs to.
func (r *Root) Owner() Owner { return r.owner }

// Registry returns the root's identifier registry.
func (r *Root) Registry() *Registry { return r.registry }

// Tracker returns the root's dirty tracker.
func (r *Root) Tracker() *DirtyTracker { return r.tracker }

// Cache returns the root's client cache.
func (r *Root) Cache() *ClientCache { return r.cache }

// IsAttached reports whether the root still belongs to a running application.
func (r *Root) IsAttached() bool {
	return r.owner != nil && r.owner.IsRunning()
}

// Detach cuts the root loose from its application. Every connector below
// it stops being attached.
func (r *Root) Detach() {
	r.owner = nil
	r.tracker.Clear()
}

// Content returns the main content connector.
func (r *Root) Content() Connector { return r.content }

// SetContent replaces the root's main content.
func (r *Root) SetContent(c Connector) {
	if r.content == c {
		return
	}
	if c != nil {
		Adopt(r, c)
	}
	if r.content != nil {
		SetParent(r.content, nil)
	}
	r.content = c
	if c != nil {
		SetParent(c, r)
	}
	r.MarkAsDirty()
}

// RemoveComponent implements Remover for the content and the sub-windows.
func (r *Root) RemoveComponent(c Connector) bool {
	if c == nil {
		return false
	}
	if r.content == c {
		r.content = nil
		SetParent(c, nil)
		r.MarkAsDirty()
		return true
	}
	return r.RemoveWindow(c)
}

// AddWindow attaches a sub-window on top of the content.
func (r *Root) AddWindow(w Connector) {
	for _, existing := range r.windows {
		if existing == w {
			return
		}
	}
	Adopt(r, w)
	r.windows = append(r.windows, w)
	SetParent(w, r)
	r.MarkAsDirty()
}

// RemoveWindow detaches a sub-window. It reports whether w was present.
func (r *Root) RemoveWindow(w Connector) bool {
	for i, existing := range r.windows {
		if existing == w {
			r.windows = append(r.windows[:i:i], r.windows[i+1:]...)
			SetParent(w, nil)
			r.MarkAsDirty()
			return true
		}
	}
	return false
}

// Windows returns the attached sub-windows in the order they were added.
func (r *Root) Windows() []Connector {
	return append([]Connector(nil), r.windows...)
}

// Children implements Container.
func (r *Root) Children() []Connector {
	out := make([]Connector, 0, len(r.windows)+1)
	if r.content != nil {
		out = append(out, r.content)
	}
	return append(out, r.windows...)
}

// ClientType implements ClientTyper.
func (r *Root) ClientType() string { return "canopy.Root" }
