package value

import (
	"bytes"
	"strings"
	"unicode/utf8"
)

const hexDigits = "0123456789ABCDEF"

// EscapeJSON escapes s for use inside a JSON string literal. Forward slashes
// are escaped too so that "</script>" never appears in a response embedded in
// an HTML page. Invalid UTF-8 bytes become \ufffd.
func EscapeJSON(s string) string {
	if !needsEscape(s) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 8)
	writeEscaped(&b, s)
	return b.String()
}

// Quote returns s escaped and wrapped in double quotes.
func Quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	writeEscaped(&b, s)
	b.WriteByte('"')
	return b.String()
}

// WriteQuoted appends the quoted form of s to buf.
func WriteQuoted(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	writeEscaped(buf, s)
	buf.WriteByte('"')
}

type byteWriter interface {
	WriteByte(c byte) error
	WriteString(s string) (int, error)
}

func writeEscaped(w byteWriter, s string) {
	start := 0
	for i := 0; i < len(s); {
		c := s[i]
		if c >= utf8.RuneSelf {
			r, size := utf8.DecodeRuneInString(s[i:])
			if r == utf8.RuneError && size == 1 {
				w.WriteString(s[start:i])
				w.WriteString(`\ufffd`)
				i++
				start = i
				continue
			}
			i += size
			continue
		}
		var esc string
		switch c {
		case '"':
			esc = `\"`
		case '\\':
			esc = `\\`
		case '/':
			esc = `\/`
		case '\b':
			esc = `\b`
		case '\f':
			esc = `\f`
		case '\n':
			esc = `\n`
		case '\r':
			esc = `\r`
		case '\t':
			esc = `\t`
		default:
			if c >= 0x20 {
				i++
				continue
			}
		}
		w.WriteString(s[start:i])
		if esc != "" {
			w.WriteString(esc)
		} else {
			w.WriteString(`\u00`)
			w.WriteByte(hexDigits[c>>4])
			w.WriteByte(hexDigits[c&0xF])
		}
		i++
		start = i
	}
	w.WriteString(s[start:])
}

func needsEscape(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < 0x20 || c == '"' || c == '\\' || c == '/' {
			return true
		}
	}
	return !utf8.ValidString(s)
}
