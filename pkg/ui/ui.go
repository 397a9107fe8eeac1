// Package ui contains the stock connectors: labels, buttons, text fields,
// ordered and custom layouts, and windows. Constructors register nothing
// with a root; add the connector to a layout or root to attach it.
package ui

import (
	"github.com/cuemby/canopy/pkg/connector"
	"github.com/cuemby/canopy/pkg/value"
)

// Client type names of the stock connectors
const (
	TypeLabel            = "canopy.ui.Label"
	TypeButton           = "canopy.ui.Button"
	TypeTextField        = "canopy.ui.TextField"
	TypeVerticalLayout   = "canopy.ui.VerticalLayout"
	TypeHorizontalLayout = "canopy.ui.HorizontalLayout"
	TypeCustomLayout     = "canopy.ui.CustomLayout"
	TypeWindow           = "canopy.ui.Window"
)

func init() {
	connector.RegisterType(&Label{}, TypeLabel)
	connector.RegisterType(&Button{}, TypeButton)
	connector.RegisterType(&TextField{}, TypeTextField)
	connector.RegisterType(&VerticalLayout{}, TypeVerticalLayout)
	connector.RegisterType(&HorizontalLayout{}, TypeHorizontalLayout)
	connector.RegisterType(&CustomLayout{}, TypeCustomLayout)
	connector.RegisterType(&Window{}, TypeWindow)
}

// Sized holds a width and height kept in shared state. An empty size is
// undefined, so the connector takes the size of its content.
type Sized struct {
	base *connector.Base
}

func (s Sized) Width() string  { return stateString(s.base, "width") }
func (s Sized) Height() string { return stateString(s.base, "height") }

// SetWidth sets the width, e.g. "100%" or "300px"
func (s Sized) SetWidth(width string) { s.base.SetState("width", value.String(width)) }

// SetHeight sets the height
func (s Sized) SetHeight(height string) { s.base.SetState("height", value.String(height)) }

// SetSizeFull makes the connector fill its parent
func (s Sized) SetSizeFull() {
	s.SetWidth("100%")
	s.SetHeight("100%")
}

func stateString(b *connector.Base, field string) string {
	str, _ := value.AsString(b.State()[field])
	return str
}

// container is the child list shared by the layouts
type container struct {
	self     connector.Connector
	children []connector.Connector
}

func (c *container) add(child connector.Connector) {
	for _, existing := range c.children {
		if existing == child {
			return
		}
	}
	connector.Adopt(c.self, child)
	c.children = append(c.children, child)
	connector.SetParent(child, c.self)
	c.self.ConnectorBase().MarkAsDirty()
}

func (c *container) remove(child connector.Connector) bool {
	for i, existing := range c.children {
		if existing == child {
			c.children = append(c.children[:i:i], c.children[i+1:]...)
			connector.SetParent(child, nil)
			c.self.ConnectorBase().MarkAsDirty()
			return true
		}
	}
	return false
}
