package connector

import "sort"

// DirtyTracker is the insertion-ordered set of connectors with changes the
// client has not seen yet.
type DirtyTracker struct {
	root  *Root
	order []Connector
	set   map[Connector]struct{}
}

func newDirtyTracker(root *Root) *DirtyTracker {
	return &DirtyTracker{
		root: root,
		set:  make(map[Connector]struct{}),
	}
}

// MarkDirty adds c to the set. Marking twice keeps the first position.
func (t *DirtyTracker) MarkDirty(c Connector) {
	if _, ok := t.set[c]; ok {
		return
	}
	t.set[c] = struct{}{}
	t.order = append(t.order, c)
}

// MarkClean removes c from the set.
func (t *DirtyTracker) MarkClean(c Connector) {
	if _, ok := t.set[c]; !ok {
		return
	}
	delete(t.set, c)
	for i, o := range t.order {
		if o == c {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// IsDirty reports whether c is in the set.
func (t *DirtyTracker) IsDirty(c Connector) bool {
	_, ok := t.set[c]
	return ok
}

// MarkAllDirty marks every connector below root, root included.
func (t *DirtyTracker) MarkAllDirty(root Connector) {
	Walk(root, t.MarkDirty)
}

// Dirty returns the dirty connectors that still hang under the tracker's
// root, parents before children. Entries that were detached in the
// meantime are dropped from the set.
func (t *DirtyTracker) Dirty() []Connector {
	kept := t.order[:0]
	for _, c := range t.order {
		if RootOf(c) != t.root {
			delete(t.set, c)
			continue
		}
		kept = append(kept, c)
	}
	t.order = kept
	return SortByHierarchy(t.order)
}

// Len returns the number of entries, detached ones included.
func (t *DirtyTracker) Len() int { return len(t.order) }

// Clear empties the set.
func (t *DirtyTracker) Clear() {
	t.order = nil
	t.set = make(map[Connector]struct{})
}

// SortByHierarchy returns a copy of cs ordered by ascending depth. Connectors
// at the same depth keep their relative order.
func SortByHierarchy(cs []Connector) []Connector {
	type entry struct {
		c     Connector
		depth int
	}
	entries := make([]entry, len(cs))
	for i, c := range cs {
		entries[i] = entry{c: c, depth: Depth(c)}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].depth < entries[j].depth
	})

	out := make([]Connector, len(entries))
	for i, e := range entries {
		out[i] = e.c
	}
	return out
}
