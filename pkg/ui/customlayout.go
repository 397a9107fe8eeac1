package ui

import (
	"sort"

	"github.com/cuemby/canopy/pkg/connector"
	"github.com/cuemby/canopy/pkg/paint"
)

// CustomLayout places children into the named locations of an HTML
// template. The template text is sent to the client once per session
// through the resources section.
type CustomLayout struct {
	connector.Base
	Sized

	template  string
	locations map[string]connector.Connector
}

// NewCustomLayout creates a layout using the template called name
func NewCustomLayout(name string) *CustomLayout {
	l := &CustomLayout{template: name, locations: make(map[string]connector.Connector)}
	l.Init(l)
	l.Sized = Sized{base: &l.Base}
	return l
}

// LayoutTemplate implements paint.TemplateUser
func (l *CustomLayout) LayoutTemplate() string { return l.template }

// SetTemplate switches to another template
func (l *CustomLayout) SetTemplate(name string) {
	l.template = name
	l.MarkAsDirty()
}

// AddComponentAt puts c into location, replacing the previous occupant
func (l *CustomLayout) AddComponentAt(c connector.Connector, location string) {
	if existing, ok := l.locations[location]; ok && existing == c {
		return
	}
	connector.Adopt(l, c)
	if old, ok := l.locations[location]; ok {
		connector.SetParent(old, nil)
	}
	l.locations[location] = c
	connector.SetParent(c, l)
	l.MarkAsDirty()
}

// RemoveComponent implements connector.Remover
func (l *CustomLayout) RemoveComponent(c connector.Connector) bool {
	for loc, existing := range l.locations {
		if existing == c {
			delete(l.locations, loc)
			connector.SetParent(c, nil)
			l.MarkAsDirty()
			return true
		}
	}
	return false
}

// Component returns the occupant of location
func (l *CustomLayout) Component(location string) (connector.Connector, bool) {
	c, ok := l.locations[location]
	return c, ok
}

func (l *CustomLayout) sortedLocations() []string {
	locs := make([]string, 0, len(l.locations))
	for loc := range l.locations {
		locs = append(locs, loc)
	}
	sort.Strings(locs)
	return locs
}

// Children implements connector.Container, ordered by location name
func (l *CustomLayout) Children() []connector.Connector {
	out := make([]connector.Connector, 0, len(l.locations))
	for _, loc := range l.sortedLocations() {
		out = append(out, l.locations[loc])
	}
	return out
}

// PaintContent implements paint.Paintable
func (l *CustomLayout) PaintContent(t *paint.Target) error {
	if err := t.AddAttribute("template", l.template); err != nil {
		return err
	}
	locations := make(map[string]any, len(l.locations))
	for loc, c := range l.locations {
		if connector.IsVisible(c) {
			locations[loc] = c
		}
	}
	return t.AddAttribute("locations", locations)
}
