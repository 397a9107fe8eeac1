/*
Package paint implements the legacy paint channel: connectors that
implement Paintable describe themselves as a tree of tags, attributes and
variables that the writer emits as a UIDL change entry.

	func (f *TextField) PaintContent(t *paint.Target) error {
		if err := t.AddAttribute("caption", f.caption); err != nil {
			return err
		}
		return t.AddVariable(f, "text", f.text)
	}

Tags must be closed in order; a mismatched EndTag fails with
ErrInvalidUIDL and a closed Target with ErrClosed. Attribute values may be
connectors, which are written as their identifiers.

The Target also collects what the response needs beyond the change
itself: layout templates used by TemplateUser connectors and locales
requested while painting.
*/
package paint
