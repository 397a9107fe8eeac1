package connector

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/canopy/pkg/value"
)

type testOwner struct {
	running  bool
	counters Counters
}

func (o *testOwner) IsRunning() bool     { return o.running }
func (o *testOwner) Counters() *Counters { return &o.counters }

type leaf struct {
	Base
	name string
}

func newLeaf(name string) *leaf {
	l := &leaf{name: name}
	l.Init(l)
	return l
}

type group struct {
	Base
	children []Connector
}

func newGroup(children ...Connector) *group {
	g := &group{}
	g.Init(g)
	for _, c := range children {
		g.add(c)
	}
	return g
}

func (g *group) add(c Connector) {
	g.children = append(g.children, c)
	SetParent(c, g)
	g.MarkAsDirty()
}

func (g *group) remove(c Connector) {
	for i, o := range g.children {
		if o == c {
			g.children = append(g.children[:i], g.children[i+1:]...)
			break
		}
	}
	SetParent(c, nil)
	g.MarkAsDirty()
}

func (g *group) Children() []Connector { return g.children }

func newTestRoot() (*Root, *testOwner) {
	owner := &testOwner{running: true}
	return NewRoot(1, owner), owner
}

// TestAttachMarksSubtreeDirty tests that attaching a tree marks every node
func TestAttachMarksSubtreeDirty(t *testing.T) {
	root, _ := newTestRoot()
	a, b := newLeaf("a"), newLeaf("b")
	inner := newGroup(b)
	content := newGroup(a, inner)

	root.SetContent(content)

	for _, c := range []Connector{root, content, a, inner, b} {
		assert.True(t, root.Tracker().IsDirty(c), "%T should be dirty", c)
	}
	assert.True(t, IsAttached(b))
	assert.Same(t, root, RootOf(b))
	assert.Equal(t, 3, Depth(b))
}

// TestDirtyOrder tests that parents are always listed before their children
func TestDirtyOrder(t *testing.T) {
	root, _ := newTestRoot()
	deep := newLeaf("deep")
	mid := newGroup(deep)
	sibling := newLeaf("sibling")
	content := newGroup(mid, sibling)
	root.SetContent(content)
	root.Tracker().Clear()

	// Mark in reverse hierarchy order
	deep.MarkAsDirty()
	sibling.MarkAsDirty()
	mid.MarkAsDirty()
	root.MarkAsDirty()
	content.MarkAsDirty()

	dirty := root.Tracker().Dirty()
	require.Len(t, dirty, 5)
	assert.Equal(t, []Connector{root, content, sibling, mid, deep}, dirty)

	pos := make(map[Connector]int)
	for i, c := range dirty {
		pos[c] = i
	}
	for _, c := range dirty {
		for p := c.ConnectorBase().Parent(); p != nil; p = p.ConnectorBase().Parent() {
			if pp, ok := pos[p]; ok {
				assert.Less(t, pp, pos[c])
			}
		}
	}
}

// TestDirtyDropsDetached tests that detached connectors leave the set silently
func TestDirtyDropsDetached(t *testing.T) {
	root, _ := newTestRoot()
	a, b := newLeaf("a"), newLeaf("b")
	content := newGroup(a, b)
	root.SetContent(content)
	root.Tracker().Clear()

	a.MarkAsDirty()
	b.MarkAsDirty()
	content.remove(b)

	assert.False(t, root.Tracker().IsDirty(b))
	assert.Equal(t, []Connector{content, a}, root.Tracker().Dirty())

	// A connector detached by moving its parent is filtered out too
	c := newLeaf("c")
	other := newGroup(c)
	content.add(other)
	root.Tracker().Clear()
	c.MarkAsDirty()
	other.ConnectorBase().parent = nil
	assert.Empty(t, root.Tracker().Dirty())
	assert.Equal(t, 0, root.Tracker().Len())
}

// TestMarkDirtyIdempotent tests that repeated marks keep a single entry
func TestMarkDirtyIdempotent(t *testing.T) {
	root, _ := newTestRoot()
	a := newLeaf("a")
	root.SetContent(a)
	root.Tracker().Clear()

	a.MarkAsDirty()
	a.MarkAsDirty()
	a.SetState("caption", value.String("x"))

	assert.Equal(t, 1, root.Tracker().Len())
	assert.Equal(t, value.String("x"), a.State()["caption"])
}

// TestRegistryIDStability tests identifier allocation and lookups
func TestRegistryIDStability(t *testing.T) {
	root, _ := newTestRoot()
	leaves := make([]Connector, 0, 20)
	for i := 0; i < 20; i++ {
		leaves = append(leaves, newLeaf(fmt.Sprint(i)))
	}
	content := newGroup(leaves...)
	root.SetContent(content)
	reg := root.Registry()

	seen := make(map[string]Connector)
	for _, c := range append([]Connector{root, content}, leaves...) {
		id, err := reg.IDFor(c)
		require.NoError(t, err)
		assert.NotContains(t, seen, id)
		seen[id] = c

		again, err := reg.IDFor(c)
		require.NoError(t, err)
		assert.Equal(t, id, again)

		found, ok := reg.Connector(id)
		require.True(t, ok)
		assert.Same(t, c, found)
	}
}

// TestRegistryNoReuse tests that ids are never reused after detach
func TestRegistryNoReuse(t *testing.T) {
	root, _ := newTestRoot()
	a := newLeaf("a")
	content := newGroup(a)
	root.SetContent(content)
	reg := root.Registry()

	idA, err := reg.IDFor(a)
	require.NoError(t, err)

	content.remove(a)
	assert.Equal(t, 1, reg.Purge())
	_, ok := reg.Connector(idA)
	assert.False(t, ok)

	b := newLeaf("b")
	content.add(b)
	idB, err := reg.IDFor(b)
	require.NoError(t, err)
	assert.NotEqual(t, idA, idB)

	// Reattaching keeps the original id
	content.add(a)
	again, err := reg.IDFor(a)
	require.NoError(t, err)
	assert.Equal(t, idA, again)
}

// TestRegistryDebugIDs tests debug identifiers and collision detection
func TestRegistryDebugIDs(t *testing.T) {
	root, _ := newTestRoot()
	a, b := newLeaf("a"), newLeaf("b")
	a.SetDebugID("save")
	b.SetDebugID("save")
	content := newGroup(a, b)
	root.SetContent(content)
	reg := root.Registry()

	id, err := reg.IDFor(a)
	require.NoError(t, err)
	assert.Equal(t, "PID_Ssave", id)

	_, err = reg.IDFor(b)
	assert.ErrorIs(t, err, ErrIDCollision)
	assert.Empty(t, b.ID())

	// Once the holder is detached the id may be taken over
	content.remove(a)
	id, err = reg.IDFor(b)
	require.NoError(t, err)
	assert.Equal(t, "PID_Ssave", id)
}

// TestVisibilityAndEnabled tests effective visibility and enabled state
func TestVisibilityAndEnabled(t *testing.T) {
	root, owner := newTestRoot()
	a := newLeaf("a")
	content := newGroup(a)
	root.SetContent(content)

	assert.True(t, IsConnectorEnabled(a))

	content.SetEnabled(false)
	assert.False(t, IsConnectorEnabled(a))
	content.SetEnabled(true)

	content.SetVisible(false)
	assert.False(t, IsVisible(a))
	assert.False(t, IsConnectorEnabled(a))
	assert.Empty(t, VisibleChildren(root))

	root.Tracker().Clear()
	content.SetVisible(true)
	assert.True(t, root.Tracker().IsDirty(a), "showing a connector resends its subtree")

	owner.running = false
	assert.False(t, IsConnectorEnabled(a))
	assert.False(t, IsConnectorEnabled(newLeaf("detached")))
}

// TestWindows tests sub-window attachment
func TestWindows(t *testing.T) {
	root, _ := newTestRoot()
	content, w := newLeaf("content"), newLeaf("window")
	root.SetContent(content)
	root.AddWindow(w)
	root.AddWindow(w)

	assert.Equal(t, []Connector{content, w}, root.Children())
	assert.True(t, root.RemoveWindow(w))
	assert.False(t, root.RemoveWindow(w))
	assert.False(t, IsAttached(w))
}

func TestSetParentRejectsCycle(t *testing.T) {
	root, _ := newTestRoot()
	leafA := newLeaf("a")
	inner := newGroup(leafA)
	outer := newGroup(inner)
	root.SetContent(outer)

	tests := []struct {
		name   string
		child  Connector
		parent Connector
	}{
		{name: "into child", child: outer, parent: inner},
		{name: "into grandchild", child: outer, parent: leafA},
		{name: "into itself", child: inner, parent: inner},
		{name: "root into content", child: root, parent: outer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.PanicsWithError(t, fmt.Sprintf("%s: %T", ErrCycle, tt.child), func() {
				SetParent(tt.child, tt.parent)
			})
			assert.PanicsWithError(t, fmt.Sprintf("%s: %T", ErrCycle, tt.child), func() {
				Adopt(tt.parent, tt.child)
			})
		})
	}

	// The tree is unchanged
	assert.Equal(t, Connector(root), outer.Parent())
	assert.Equal(t, Connector(outer), inner.Parent())
	assert.Same(t, root, RootOf(leafA))
}

func TestRootMovesContentToWindow(t *testing.T) {
	root, _ := newTestRoot()
	content := newLeaf("content")
	root.SetContent(content)

	root.AddWindow(content)
	assert.Nil(t, root.Content())
	assert.Equal(t, []Connector{content}, root.Windows())
	assert.Equal(t, []Connector{content}, root.Children())

	root.SetContent(content)
	assert.Equal(t, Connector(content), root.Content())
	assert.Empty(t, root.Windows())
	assert.Equal(t, []Connector{content}, root.Children())
}

func TestAdoptRemovesFromOldParent(t *testing.T) {
	root, _ := newTestRoot()
	content := newLeaf("content")
	root.SetContent(content)

	other := newGroup()
	Adopt(other, content)
	assert.Nil(t, root.Content())
	assert.Nil(t, content.Parent())
	assert.False(t, root.RemoveComponent(content))
}

// TestClientCache tests that keys are reported new exactly once
func TestClientCache(t *testing.T) {
	cache := NewClientCache()

	assert.True(t, cache.Cache("type:Button"))
	assert.False(t, cache.Cache("type:Button"))
	assert.True(t, cache.Contains("type:Button"))
	assert.Equal(t, 1, cache.Len())

	cache.Clear()
	assert.False(t, cache.Contains("type:Button"))
	assert.True(t, cache.Cache("type:Button"))
}

type fancyLeaf struct {
	*leaf
}

type namedLeaf struct {
	Base
}

func (namedLeaf) ClientType() string { return "custom.Named" }

// TestTypeRegistry tests client type resolution
func TestTypeRegistry(t *testing.T) {
	reg := NewTypeRegistry()
	reg.Register(&leaf{}, "test.Leaf")

	name, err := reg.ClientTypeOf(newLeaf("x"))
	require.NoError(t, err)
	assert.Equal(t, "test.Leaf", name)

	// Embedding a registered connector resolves to its type
	name, err = reg.ClientTypeOf(fancyLeaf{newLeaf("y")})
	require.NoError(t, err)
	assert.Equal(t, "test.Leaf", name)

	name, err = reg.ClientTypeOf(&namedLeaf{})
	require.NoError(t, err)
	assert.Equal(t, "custom.Named", name)

	_, err = reg.ClientTypeOf(newGroup())
	assert.ErrorIs(t, err, ErrNoClientType)
}

// TestInvokeRequiresAttachment tests client RPC queueing
func TestInvokeRequiresAttachment(t *testing.T) {
	a := newLeaf("a")
	assert.ErrorIs(t, a.Invoke("Focus", "focus"), ErrDetached)

	root, _ := newTestRoot()
	root.SetContent(a)
	root.Tracker().Clear()

	require.NoError(t, a.Invoke("Focus", "focus"))
	assert.Equal(t, 1, a.Pending())
	assert.True(t, root.Tracker().IsDirty(a))

	invs := CollectPending(a)
	require.Len(t, invs, 1)
	assert.Equal(t, "Focus", invs[0].Interface())
	assert.Equal(t, "focus", invs[0].Method())
	assert.Same(t, a, invs[0].Target())
	assert.Equal(t, 0, a.Pending())
}

// TestRPCOrdering tests that merged queues follow creation order
func TestRPCOrdering(t *testing.T) {
	root, _ := newTestRoot()
	a, b, c := newLeaf("a"), newLeaf("b"), newLeaf("c")
	root.SetContent(newGroup(a, b, c))

	// Interleave calls across connectors
	order := []*leaf{a, b, a, c, c, b, a}
	for i, target := range order {
		require.NoError(t, target.Invoke("Log", "log", value.Int(int32(i))))
	}

	var merged []*Invocation
	for _, target := range []*leaf{c, a, b} {
		merged = MergeInvocations(merged, CollectPending(target))
	}

	require.Len(t, merged, len(order))
	for i, inv := range merged {
		assert.Equal(t, []value.Value{value.Int(int32(i))}, inv.Params())
		if i > 0 {
			assert.Less(t, merged[i-1].Seq(), inv.Seq())
		}
	}
}

// TestMergeInvocationsTies tests that ties keep the accumulated list first
func TestMergeInvocationsTies(t *testing.T) {
	x := newLeaf("x")
	a := []*Invocation{newInvocation(1, x, "I", "a", nil), newInvocation(3, x, "I", "a", nil)}
	b := []*Invocation{newInvocation(1, x, "I", "b", nil), newInvocation(2, x, "I", "b", nil)}

	merged := MergeInvocations(a, b)
	methods := make([]string, len(merged))
	for i, inv := range merged {
		methods[i] = inv.Method()
	}
	assert.Equal(t, []string{"a", "b", "b", "a"}, methods)
	assert.Empty(t, MergeInvocations(nil, nil))
}

// TestRPCHandlers tests server RPC handler registration
func TestRPCHandlers(t *testing.T) {
	a := newLeaf("a")
	_, ok := a.RPCHandler("Click")
	assert.False(t, ok)

	var got string
	a.RegisterRPC("Click", func(method string, _ []value.Value) error {
		got = method
		return nil
	})
	h, ok := a.RPCHandler("Click")
	require.True(t, ok)
	require.NoError(t, h("click", nil))
	assert.Equal(t, "click", got)
}
