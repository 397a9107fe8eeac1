package ui

import (
	"github.com/cuemby/canopy/pkg/connector"
	"github.com/cuemby/canopy/pkg/value"
)

// Label shows a line of text
type Label struct {
	connector.Base
	Sized
}

// NewLabel creates a label
func NewLabel(text string) *Label {
	l := &Label{}
	l.Init(l)
	l.Sized = Sized{base: &l.Base}
	l.State()["text"] = value.String(text)
	return l
}

func (l *Label) Text() string { return stateString(&l.Base, "text") }

func (l *Label) SetText(text string) { l.SetState("text", value.String(text)) }
