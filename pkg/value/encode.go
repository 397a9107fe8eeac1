package value

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
)

// Marshal encodes v as a two element [tag, value] JSON array.
func Marshal(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Encode writes the tagged encoding of v to buf. On error buf may hold a
// partial encoding; callers are expected to discard it.
func Encode(buf *bytes.Buffer, v Value) error {
	return encode(buf, v, 0)
}

// EncodeContents writes only the value half of the encoding (no tag).
func EncodeContents(buf *bytes.Buffer, v Value) error {
	return encodeContents(buf, v, 0)
}

func encode(buf *bytes.Buffer, v Value, depth int) error {
	if v == nil {
		v = Undefined{}
	}
	buf.WriteString(`["`)
	buf.WriteString(string(v.Tag()))
	buf.WriteString(`",`)
	if err := encodeContents(buf, v, depth); err != nil {
		return err
	}
	buf.WriteByte(']')
	return nil
}

func encodeContents(buf *bytes.Buffer, v Value, depth int) error {
	if depth > MaxDepth {
		return ErrTooDeep
	}
	switch x := v.(type) {
	case nil, Undefined:
		buf.WriteString("null")
	case String:
		WriteQuoted(buf, string(x))
	case ConnectorRef:
		WriteQuoted(buf, string(x))
	case Bool:
		buf.WriteString(strconv.FormatBool(bool(x)))
	case Int:
		buf.WriteString(strconv.FormatInt(int64(x), 10))
	case Long:
		buf.WriteString(strconv.FormatInt(int64(x), 10))
	case Float:
		s, err := FormatFloat(float64(x), 32)
		if err != nil {
			return err
		}
		buf.WriteString(s)
	case Double:
		s, err := FormatFloat(float64(x), 64)
		if err != nil {
			return err
		}
		buf.WriteString(s)
	case StringArray:
		buf.WriteByte('[')
		for i, s := range x {
			if i > 0 {
				buf.WriteByte(',')
			}
			WriteQuoted(buf, s)
		}
		buf.WriteByte(']')
	case Array:
		buf.WriteByte('[')
		for i, e := range x {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encode(buf, e, depth+1); err != nil {
				return fmt.Errorf("index %d: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case Map:
		return encodeFields(buf, x, depth)
	case SharedState:
		return encodeFields(buf, x, depth)
	default:
		return fmt.Errorf("%w: %T", ErrUnsupported, v)
	}
	return nil
}

// encodeFields writes an object whose members are tagged values. Keys are
// sorted so identical states always produce identical bytes.
func encodeFields[M ~map[string]Value](buf *bytes.Buffer, m M, depth int) error {
	buf.WriteByte('{')
	for i, k := range sortedKeys(map[string]Value(m)) {
		if i > 0 {
			buf.WriteByte(',')
		}
		WriteQuoted(buf, k)
		buf.WriteByte(':')
		if err := encode(buf, m[k], depth+1); err != nil {
			return fmt.Errorf("field %q: %w", k, err)
		}
	}
	buf.WriteByte('}')
	return nil
}

// FormatFloat renders f the way JSON numbers are written. NaN and infinities
// have no JSON form and yield ErrNotFinite.
func FormatFloat(f float64, bits int) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", ErrNotFinite
	}
	return strconv.FormatFloat(f, 'g', -1, bits), nil
}
