package uidl

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/cuemby/canopy/pkg/connector"
	"github.com/cuemby/canopy/pkg/value"
)

// Sizeable is a connector with a declared width and height. An empty size
// is undefined; a size ending in "%" is relative to the parent.
type Sizeable interface {
	Width() string
	Height() string
}

// LayoutProblem is a relative-size connector placed inside a parent whose
// size in that direction is undefined, so the relative size resolves to
// nothing on the client
type LayoutProblem struct {
	Connector connector.Connector
	WidthMsg  string
	HeightMsg string
}

func isRelative(size string) bool { return strings.HasSuffix(size, "%") }

// AnalyzeLayouts walks the visible tree under root and reports every
// layout problem
func AnalyzeLayouts(root connector.Connector) []LayoutProblem {
	var problems []LayoutProblem
	var visit func(c connector.Connector)
	visit = func(c connector.Connector) {
		ct, ok := c.(connector.Container)
		if !ok {
			return
		}
		parent, parentSized := c.(Sizeable)
		for _, child := range connector.VisibleChildren(ct) {
			if s, ok := child.(Sizeable); ok && parentSized {
				var p LayoutProblem
				if isRelative(s.Width()) && parent.Width() == "" {
					p.WidthMsg = fmt.Sprintf("Relative width %s inside a %T with undefined width", s.Width(), c)
				}
				if isRelative(s.Height()) && parent.Height() == "" {
					p.HeightMsg = fmt.Sprintf("Relative height %s inside a %T with undefined height", s.Height(), c)
				}
				if p.WidthMsg != "" || p.HeightMsg != "" {
					p.Connector = child
					problems = append(problems, p)
				}
			}
			visit(child)
		}
	}
	visit(root)
	return problems
}

func writeProblems(out *bytes.Buffer, problems []LayoutProblem, idFor func(connector.Connector) (string, error)) error {
	out.WriteByte('[')
	for i, p := range problems {
		id, err := idFor(p.Connector)
		if err != nil {
			return err
		}
		if i > 0 {
			out.WriteByte(',')
		}
		out.WriteString(`{"id":`)
		value.WriteQuoted(out, id)
		if p.WidthMsg != "" {
			out.WriteString(`,"widthMsg":`)
			value.WriteQuoted(out, p.WidthMsg)
		}
		if p.HeightMsg != "" {
			out.WriteString(`,"heightMsg":`)
			value.WriteQuoted(out, p.HeightMsg)
		}
		out.WriteByte('}')
	}
	out.WriteByte(']')
	return nil
}
