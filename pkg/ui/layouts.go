package ui

import (
	"github.com/cuemby/canopy/pkg/connector"
	"github.com/cuemby/canopy/pkg/value"
)

type orderedLayout struct {
	connector.Base
	Sized
	container
}

func (l *orderedLayout) setup(self connector.Connector, children []connector.Connector) {
	l.Init(self)
	l.Sized = Sized{base: &l.Base}
	l.container = container{self: self}
	for _, c := range children {
		l.add(c)
	}
}

// AddComponent appends c, taking it from its previous parent
func (l *orderedLayout) AddComponent(c connector.Connector) { l.add(c) }

// RemoveComponent detaches c and reports whether it was a child
func (l *orderedLayout) RemoveComponent(c connector.Connector) bool { return l.remove(c) }

func (l *orderedLayout) Children() []connector.Connector { return l.children }

// SetSpacing turns spacing between children on or off
func (l *orderedLayout) SetSpacing(spacing bool) { l.SetState("spacing", value.Bool(spacing)) }

// VerticalLayout stacks its children top to bottom
type VerticalLayout struct {
	orderedLayout
}

func NewVerticalLayout(children ...connector.Connector) *VerticalLayout {
	l := &VerticalLayout{}
	l.setup(l, children)
	return l
}

// HorizontalLayout places its children left to right
type HorizontalLayout struct {
	orderedLayout
}

func NewHorizontalLayout(children ...connector.Connector) *HorizontalLayout {
	l := &HorizontalLayout{}
	l.setup(l, children)
	return l
}
