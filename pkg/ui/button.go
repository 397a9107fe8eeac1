package ui

import (
	"fmt"

	"github.com/cuemby/canopy/pkg/connector"
	"github.com/cuemby/canopy/pkg/value"
)

// ClickListener is called when a button is clicked
type ClickListener func(b *Button)

// Button sends a click to the server through the canopy.ui.Button RPC
// interface
type Button struct {
	connector.Base
	Sized
	listeners []ClickListener
}

// NewButton creates a button with an optional click listener
func NewButton(caption string, onClick ClickListener) *Button {
	b := &Button{}
	b.Init(b)
	b.Sized = Sized{base: &b.Base}
	b.State()["caption"] = value.String(caption)
	if onClick != nil {
		b.listeners = append(b.listeners, onClick)
	}
	b.RegisterRPC(TypeButton, b.handleRPC)
	return b
}

func (b *Button) Caption() string { return stateString(&b.Base, "caption") }

func (b *Button) SetCaption(caption string) { b.SetState("caption", value.String(caption)) }

// AddClickListener registers another listener
func (b *Button) AddClickListener(l ClickListener) {
	b.listeners = append(b.listeners, l)
}

// Click runs the listeners as if the button was clicked on the client
func (b *Button) Click() {
	for _, l := range b.listeners {
		l(b)
	}
}

func (b *Button) handleRPC(method string, _ []value.Value) error {
	if method != "click" {
		return fmt.Errorf("button: unknown method %q", method)
	}
	b.Click()
	return nil
}
