package ui

import (
	"fmt"

	"github.com/cuemby/canopy/pkg/connector"
	"github.com/cuemby/canopy/pkg/paint"
	"github.com/cuemby/canopy/pkg/value"
)

// ValueChangeListener is called after the client changed a field
type ValueChangeListener func(f *TextField)

// TextField is an editable text input. It is painted through the legacy
// paint channel and receives edits as variable changes.
type TextField struct {
	connector.Base
	Sized

	caption   string
	text      string
	maxLength int
	immediate bool
	listeners []ValueChangeListener
}

// NewTextField creates an empty text field
func NewTextField(caption string) *TextField {
	f := &TextField{caption: caption, maxLength: -1}
	f.Init(f)
	f.Sized = Sized{base: &f.Base}
	return f
}

func (f *TextField) Text() string { return f.text }

// SetText changes the value and sends it to the client
func (f *TextField) SetText(text string) {
	if f.text == text {
		return
	}
	f.text = text
	f.MarkAsDirty()
}

// SetMaxLength limits the length of the value; negative means unlimited
func (f *TextField) SetMaxLength(n int) {
	f.maxLength = n
	f.MarkAsDirty()
}

// SetImmediate makes the client send edits right away instead of with the
// next request
func (f *TextField) SetImmediate(immediate bool) {
	f.immediate = immediate
	f.MarkAsDirty()
}

func (f *TextField) AddValueChangeListener(l ValueChangeListener) {
	f.listeners = append(f.listeners, l)
}

// PaintContent implements paint.Paintable
func (f *TextField) PaintContent(t *paint.Target) error {
	if f.caption != "" {
		if err := t.AddAttribute("caption", f.caption); err != nil {
			return err
		}
	}
	if f.immediate {
		if err := t.AddAttribute("immediate", true); err != nil {
			return err
		}
	}
	if f.maxLength >= 0 {
		if err := t.AddAttribute("maxLength", f.maxLength); err != nil {
			return err
		}
	}
	return t.AddVariable(f, "text", f.text)
}

// ChangeVariables implements connector.VariableOwner. The client already
// shows the new value, so the field is not marked dirty.
func (f *TextField) ChangeVariables(vars map[string]value.Value) error {
	v, ok := vars["text"]
	if !ok {
		return nil
	}
	text, ok := value.AsString(v)
	if !ok {
		return fmt.Errorf("text field: text must be a string, got %s", v.Tag())
	}
	if f.maxLength >= 0 && len([]rune(text)) > f.maxLength {
		return fmt.Errorf("text field: value longer than %d", f.maxLength)
	}
	if text == f.text {
		return nil
	}
	f.text = text
	for _, l := range f.listeners {
		l(f)
	}
	return nil
}
