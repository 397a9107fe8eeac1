package ui

import (
	"github.com/cuemby/canopy/pkg/connector"
	"github.com/cuemby/canopy/pkg/value"
)

// CloseListener is called after a window was closed
type CloseListener func(w *Window)

// Window is a sub-window shown on top of a root's content
type Window struct {
	connector.Base
	Sized

	content   connector.Connector
	listeners []CloseListener
}

// NewWindow creates a window
func NewWindow(caption string, content connector.Connector) *Window {
	w := &Window{}
	w.Init(w)
	w.Sized = Sized{base: &w.Base}
	w.State()["caption"] = value.String(caption)
	w.State()["closable"] = value.Bool(true)
	if content != nil {
		w.SetContent(content)
	}
	return w
}

func (w *Window) Caption() string { return stateString(&w.Base, "caption") }

func (w *Window) SetCaption(caption string) { w.SetState("caption", value.String(caption)) }

func (w *Window) Content() connector.Connector { return w.content }

// SetContent replaces the window's content
func (w *Window) SetContent(c connector.Connector) {
	if w.content == c {
		return
	}
	if c != nil {
		connector.Adopt(w, c)
	}
	if w.content != nil {
		connector.SetParent(w.content, nil)
	}
	w.content = c
	if c != nil {
		connector.SetParent(c, w)
	}
	w.MarkAsDirty()
}

// RemoveComponent implements connector.Remover
func (w *Window) RemoveComponent(c connector.Connector) bool {
	if c == nil || w.content != c {
		return false
	}
	w.content = nil
	connector.SetParent(c, nil)
	w.MarkAsDirty()
	return true
}

// Children implements connector.Container
func (w *Window) Children() []connector.Connector {
	if w.content == nil {
		return nil
	}
	return []connector.Connector{w.content}
}

func (w *Window) AddCloseListener(l CloseListener) {
	w.listeners = append(w.listeners, l)
}

// Close removes the window from its root
func (w *Window) Close() {
	root, ok := w.Parent().(*connector.Root)
	if !ok || !root.RemoveWindow(w) {
		return
	}
	for _, l := range w.listeners {
		l(w)
	}
}

// ChangeVariables implements connector.VariableOwner. The client sends
// close=true when the user closes the window.
func (w *Window) ChangeVariables(vars map[string]value.Value) error {
	if closed, ok := value.AsBool(vars["close"]); ok && closed {
		w.Close()
	}
	return nil
}
