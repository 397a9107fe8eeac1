package paint

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/cuemby/canopy/pkg/connector"
	"github.com/cuemby/canopy/pkg/value"
)

var (
	// ErrInvalidUIDL is returned when tags are not closed in the order they
	// were opened
	ErrInvalidUIDL = errors.New("paint: invalid UIDL structure")

	// ErrClosed is returned when a closed target is written to
	ErrClosed = errors.New("paint: target already closed")
)

// Status tells a paintable whether to paint its content now.
type Status int

const (
	// StatusPainting means the connector is the top-level paintable and must
	// paint its content
	StatusPainting Status = iota
	// StatusDeferred means the connector is nested inside another paintable
	// and is painted on its own if it is dirty
	StatusDeferred
)

func (s Status) String() string {
	switch s {
	case StatusPainting:
		return "painting"
	case StatusDeferred:
		return "deferred"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Paintable is a connector that uses the legacy paint channel.
type Paintable interface {
	connector.Connector
	PaintContent(t *Target) error
}

// TemplateUser is a connector that renders a named layout template.
type TemplateUser interface {
	LayoutTemplate() string
}

// Resolver supplies what the target needs to know about connectors.
type Resolver interface {
	IDFor(c connector.Connector) (string, error)
	TypeKey(c connector.Connector) (string, error)
}

// frame is an open tag. Once closed it is rendered and never touched again.
type frame struct {
	name     string
	attrs    bytes.Buffer
	vars     bytes.Buffer
	children bytes.Buffer
}

func (f *frame) render(dst *bytes.Buffer) {
	dst.WriteString(`["`)
	dst.WriteString(value.EscapeJSON(f.name))
	dst.WriteString(`",{`)
	dst.Write(f.attrs.Bytes())
	if f.vars.Len() > 0 {
		if f.attrs.Len() > 0 {
			dst.WriteByte(',')
		}
		dst.WriteString(`"v":{`)
		dst.Write(f.vars.Bytes())
		dst.WriteByte('}')
	}
	dst.WriteByte('}')
	dst.Write(f.children.Bytes())
	dst.WriteByte(']')
}

// Target serializes legacy paint data as nested JSON arrays of the form
// ["tag",{attributes,"v":{variables}},children...]. Outermost tags are
// written to the output separated by commas.
type Target struct {
	out      *bytes.Buffer
	resolver Resolver

	stack      []*frame
	paintables []connector.Connector
	errorDepth int
	written    int
	closed     bool

	templates []string
	locales   []string
}

// NewTarget creates a target writing to out.
func NewTarget(out *bytes.Buffer, resolver Resolver) *Target {
	return &Target{out: out, resolver: resolver}
}

// StartTag opens a new tag.
func (t *Target) StartTag(name string) error {
	if t.closed {
		return ErrClosed
	}
	if name == "error" {
		t.errorDepth++
	}
	t.stack = append(t.stack, &frame{name: name})
	return nil
}

// EndTag closes the open tag, which must be called name. The rendered tag
// becomes the last child of its parent. An outermost "error" tag is
// instead attached to its parent as the "error" attribute.
func (t *Target) EndTag(name string) error {
	if t.closed {
		return ErrClosed
	}
	if len(t.stack) == 0 {
		return fmt.Errorf("%w: end of %q without an open tag", ErrInvalidUIDL, name)
	}
	top := t.stack[len(t.stack)-1]
	if top.name != name {
		return fmt.Errorf("%w: expected end of %q, got %q", ErrInvalidUIDL, top.name, name)
	}
	t.stack = t.stack[:len(t.stack)-1]

	if len(t.stack) == 0 {
		if name == "error" {
			t.errorDepth--
		}
		if t.written > 0 {
			t.out.WriteByte(',')
		}
		top.render(t.out)
		t.written++
		return nil
	}

	parent := t.stack[len(t.stack)-1]
	if name == "error" {
		if t.errorDepth == 1 {
			attr := t.startAttribute(parent, "error")
			attr.WriteString(`["error",{}`)
			attr.Write(top.children.Bytes())
			attr.WriteByte(']')
			t.errorDepth--
			return nil
		}
		t.errorDepth--
	}
	parent.children.WriteByte(',')
	top.render(&parent.children)
	return nil
}

func (t *Target) current() (*frame, error) {
	if t.closed {
		return nil, ErrClosed
	}
	if len(t.stack) == 0 {
		return nil, fmt.Errorf("%w: no open tag", ErrInvalidUIDL)
	}
	return t.stack[len(t.stack)-1], nil
}

// startAttribute writes the separator and quoted name of a new attribute
// and returns the buffer to write its value into.
func (t *Target) startAttribute(f *frame, name string) *bytes.Buffer {
	if f.attrs.Len() > 0 {
		f.attrs.WriteByte(',')
	}
	value.WriteQuoted(&f.attrs, name)
	f.attrs.WriteByte(':')
	return &f.attrs
}

// AddAttribute adds a named attribute to the open tag. Supported values are
// strings, booleans, integers, floats, Resource, connectors, []string,
// []any and map[string]any.
func (t *Target) AddAttribute(name string, v any) error {
	f, err := t.current()
	if err != nil {
		return err
	}
	var enc bytes.Buffer
	if err := t.encodeAttribute(&enc, v); err != nil {
		return fmt.Errorf("attribute %q: %w", name, err)
	}
	t.startAttribute(f, name).Write(enc.Bytes())
	return nil
}

func (t *Target) encodeAttribute(buf *bytes.Buffer, v any) error {
	switch x := v.(type) {
	case Resource:
		value.WriteQuoted(buf, x.URI())
	case connector.Connector:
		id, err := t.resolver.IDFor(x)
		if err != nil {
			return err
		}
		value.WriteQuoted(buf, id)
	case []string:
		writeStrings(buf, x)
	case []any:
		buf.WriteByte('[')
		for i, e := range x {
			if i > 0 {
				buf.WriteByte(',')
			}
			value.WriteQuoted(buf, fmt.Sprint(e))
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			value.WriteQuoted(buf, k)
			buf.WriteByte(':')
			if err := t.encodeAttribute(buf, x[k]); err != nil {
				return fmt.Errorf("key %q: %w", k, err)
			}
		}
		buf.WriteByte('}')
	default:
		return writeScalar(buf, v)
	}
	return nil
}

// AddVariable queues a legacy variable for the open tag. owner must be the
// paintable currently being painted.
func (t *Target) AddVariable(owner connector.Connector, name string, v any) error {
	f, err := t.current()
	if err != nil {
		return err
	}
	if n := len(t.paintables); n > 0 && t.paintables[n-1] != owner {
		return fmt.Errorf("%w: variable %q added for a connector that is not being painted", ErrInvalidUIDL, name)
	}

	var enc bytes.Buffer
	switch x := v.(type) {
	case []string:
		writeStrings(&enc, x)
	case connector.Connector:
		id, err := t.resolver.IDFor(x)
		if err != nil {
			return fmt.Errorf("variable %q: %w", name, err)
		}
		value.WriteQuoted(&enc, id)
	default:
		if err := writeScalar(&enc, v); err != nil {
			return fmt.Errorf("variable %q: %w", name, err)
		}
	}

	if f.vars.Len() > 0 {
		f.vars.WriteByte(',')
	}
	value.WriteQuoted(&f.vars, name)
	f.vars.WriteByte(':')
	f.vars.Write(enc.Bytes())
	return nil
}

// AddText adds escaped text as a child of the open tag.
func (t *Target) AddText(text string) error {
	f, err := t.current()
	if err != nil {
		return err
	}
	f.children.WriteByte(',')
	value.WriteQuoted(&f.children, text)
	return nil
}

// AddUIDL adds a raw UIDL fragment. It is escaped like text.
func (t *Target) AddUIDL(uidl string) error {
	return t.AddText(uidl)
}

// AddSection adds a {"name":"text"} child to the open tag.
func (t *Target) AddSection(name, text string) error {
	f, err := t.current()
	if err != nil {
		return err
	}
	f.children.WriteString(",{")
	value.WriteQuoted(&f.children, name)
	f.children.WriteByte(':')
	value.WriteQuoted(&f.children, text)
	f.children.WriteByte('}')
	return nil
}

// AddXMLSection adds an XML fragment as a named section. A namespace, when
// given, is recorded as an xmlns attribute on the open tag.
func (t *Target) AddXMLSection(name, xml, namespace string) error {
	if namespace != "" {
		if err := t.AddAttribute("xmlns", namespace); err != nil {
			return err
		}
	}
	return t.AddSection(name, xml)
}

// StartPaintable opens the tag for c, named after its client type key, and
// records its id. Only the outermost paintable paints its content; nested
// ones get StatusDeferred.
func (t *Target) StartPaintable(c connector.Connector) (Status, error) {
	key, err := t.resolver.TypeKey(c)
	if err != nil {
		return StatusDeferred, err
	}
	id, err := t.resolver.IDFor(c)
	if err != nil {
		return StatusDeferred, err
	}

	topLevel := len(t.paintables) == 0
	t.paintables = append(t.paintables, c)
	if err := t.StartTag(key); err != nil {
		return StatusDeferred, err
	}
	if err := t.AddAttribute("id", id); err != nil {
		return StatusDeferred, err
	}
	if tu, ok := c.(TemplateUser); ok {
		if name := tu.LayoutTemplate(); name != "" {
			t.useTemplate(name)
		}
	}
	if topLevel {
		return StatusPainting, nil
	}
	return StatusDeferred, nil
}

// EndPaintable closes the tag opened by StartPaintable for c.
func (t *Target) EndPaintable(c connector.Connector) error {
	n := len(t.paintables)
	if n == 0 || t.paintables[n-1] != c {
		return fmt.Errorf("%w: end of paintable %T that is not open", ErrInvalidUIDL, c)
	}
	t.paintables = t.paintables[:n-1]

	top, err := t.current()
	if err != nil {
		return err
	}
	return t.EndTag(top.name)
}

// Paint runs the full paint of p: open, content when painting, close.
func Paint(t *Target, p Paintable) error {
	status, err := t.StartPaintable(p)
	if err != nil {
		return err
	}
	if status == StatusPainting {
		if err := p.PaintContent(t); err != nil {
			return err
		}
	}
	return t.EndPaintable(p)
}

// RequireLocale records a locale the client needs definitions for.
func (t *Target) RequireLocale(locale string) {
	for _, l := range t.locales {
		if l == locale {
			return
		}
	}
	t.locales = append(t.locales, locale)
}

func (t *Target) useTemplate(name string) {
	for _, n := range t.templates {
		if n == name {
			return
		}
	}
	t.templates = append(t.templates, name)
}

// Templates returns the layout template names used so far, in first-use
// order.
func (t *Target) Templates() []string { return append([]string(nil), t.templates...) }

// Locales returns the locales requested so far.
func (t *Target) Locales() []string { return append([]string(nil), t.locales...) }

// Written returns the number of outermost tags written to the output.
func (t *Target) Written() int { return t.written }

// Close finishes the target. Every tag must have been closed.
func (t *Target) Close() error {
	if t.closed {
		return ErrClosed
	}
	t.closed = true
	if len(t.stack) > 0 {
		return fmt.Errorf("%w: %d tags left open, innermost %q", ErrInvalidUIDL, len(t.stack), t.stack[len(t.stack)-1].name)
	}
	return nil
}

func writeStrings(buf *bytes.Buffer, ss []string) {
	buf.WriteByte('[')
	for i, s := range ss {
		if i > 0 {
			buf.WriteByte(',')
		}
		value.WriteQuoted(buf, s)
	}
	buf.WriteByte(']')
}

func writeScalar(buf *bytes.Buffer, v any) error {
	switch x := v.(type) {
	case string:
		value.WriteQuoted(buf, x)
	case bool:
		if x {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case int:
		fmt.Fprintf(buf, "%d", x)
	case int32:
		fmt.Fprintf(buf, "%d", x)
	case int64:
		fmt.Fprintf(buf, "%d", x)
	case float32:
		s, err := value.FormatFloat(float64(x), 32)
		if err != nil {
			return err
		}
		buf.WriteString(s)
	case float64:
		s, err := value.FormatFloat(x, 64)
		if err != nil {
			return err
		}
		buf.WriteString(s)
	case value.Value:
		return value.EncodeContents(buf, x)
	default:
		return fmt.Errorf("%w: %T", value.ErrUnsupported, v)
	}
	return nil
}
