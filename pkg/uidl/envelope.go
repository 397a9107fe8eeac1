package uidl

import (
	"bytes"

	"github.com/cuemby/canopy/pkg/types"
	"github.com/cuemby/canopy/pkg/value"
)

// WriteEnded writes the message sent to a client whose application has
// ended: a bare redirect to url.
func WriteEnded(out *bytes.Buffer, url string) {
	out.WriteString(Prefix)
	out.WriteString(`[{"redirect":{"url":`)
	value.WriteQuoted(out, url)
	out.WriteString(`}}]`)
}

// WriteCriticalNotification writes a self-contained message that makes the
// client show n and stop. Unset caption, message, url or details are
// written as null.
func WriteCriticalNotification(out *bytes.Buffer, n types.Notification, details string) {
	out.WriteString(Prefix)
	out.WriteString(`[{"changes":[],"meta":{"appError":{"caption":`)
	writeOptional(out, n.Caption)
	out.WriteString(`,"message":`)
	writeOptional(out, n.Message)
	out.WriteString(`,"url":`)
	writeNonEmpty(out, n.URL)
	out.WriteString(`,"details":`)
	writeNonEmpty(out, details)
	out.WriteString(`}},"resources":{},"locales":[]}]`)
}

func writeOptional(out *bytes.Buffer, s *string) {
	if s == nil {
		out.WriteString("null")
		return
	}
	value.WriteQuoted(out, *s)
}

func writeNonEmpty(out *bytes.Buffer, s string) {
	if s == "" {
		out.WriteString("null")
		return
	}
	value.WriteQuoted(out, s)
}
