package value

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Tag is the single-character wire discriminator sent in front of every value
type Tag string

const (
	TagArray       Tag = "a"
	TagMap         Tag = "m"
	TagStringArray Tag = "S"
	TagString      Tag = "s"
	TagInt         Tag = "i"
	TagLong        Tag = "l"
	TagFloat       Tag = "f"
	TagDouble      Tag = "d"
	TagBoolean     Tag = "b"
	TagConnector   Tag = "c"
	TagSharedState Tag = "t"
	TagUndefined   Tag = "u"
)

var (
	// ErrNotFinite is returned when a NaN or infinite number is encoded
	ErrNotFinite = errors.New("value: non-finite number cannot be encoded")

	// ErrTooDeep is returned when nesting exceeds MaxDepth, which is how
	// cyclic maps and arrays surface
	ErrTooDeep = errors.New("value: nesting too deep (cyclic value?)")

	// ErrUnsupported is returned for Go values with no wire representation
	ErrUnsupported = errors.New("value: unsupported type")
)

// MaxDepth bounds nested arrays, maps and states during encoding
const MaxDepth = 64

// Value is a closed sum type with one case per wire type.
type Value interface {
	Tag() Tag
	sealed()
}

type (
	String      string
	Int         int32
	Long        int64
	Float       float32
	Double      float64
	Bool        bool
	Array       []Value
	Map         map[string]Value
	StringArray []string
	// ConnectorRef refers to a connector by its identifier.
	ConnectorRef string
	// SharedState is the field set of a connector's shared state.
	SharedState map[string]Value
	Undefined   struct{}
)

func (String) Tag() Tag       { return TagString }
func (Int) Tag() Tag          { return TagInt }
func (Long) Tag() Tag         { return TagLong }
func (Float) Tag() Tag        { return TagFloat }
func (Double) Tag() Tag       { return TagDouble }
func (Bool) Tag() Tag         { return TagBoolean }
func (Array) Tag() Tag        { return TagArray }
func (Map) Tag() Tag          { return TagMap }
func (StringArray) Tag() Tag  { return TagStringArray }
func (ConnectorRef) Tag() Tag { return TagConnector }
func (SharedState) Tag() Tag  { return TagSharedState }
func (Undefined) Tag() Tag    { return TagUndefined }

func (String) sealed()       {}
func (Int) sealed()          {}
func (Long) sealed()         {}
func (Float) sealed()        {}
func (Double) sealed()       {}
func (Bool) sealed()         {}
func (Array) sealed()        {}
func (Map) sealed()          {}
func (StringArray) sealed()  {}
func (ConnectorRef) sealed() {}
func (SharedState) sealed()  {}
func (Undefined) sealed()    {}

// Null is the encoded form of a missing value
var Null Value = Undefined{}

// From converts a native Go value into its wire variant. Integers that fit in
// 32 bits become Int, wider ones Long.
func From(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Undefined{}, nil
	case Value:
		return x, nil
	case string:
		return String(x), nil
	case bool:
		return Bool(x), nil
	case int:
		if x >= math.MinInt32 && x <= math.MaxInt32 {
			return Int(x), nil
		}
		return Long(x), nil
	case int32:
		return Int(x), nil
	case int64:
		return Long(x), nil
	case float32:
		return Float(x), nil
	case float64:
		return Double(x), nil
	case []string:
		return StringArray(x), nil
	case []any:
		arr := make(Array, 0, len(x))
		for i, e := range x {
			ev, err := From(e)
			if err != nil {
				return nil, fmt.Errorf("array element %d: %w", i, err)
			}
			arr = append(arr, ev)
		}
		return arr, nil
	case map[string]any:
		m := make(Map, len(x))
		for k, e := range x {
			ev, err := From(e)
			if err != nil {
				return nil, fmt.Errorf("map key %q: %w", k, err)
			}
			m[k] = ev
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupported, v)
	}
}

// MustFrom is From for values known to be convertible.
func MustFrom(v any) Value {
	out, err := From(v)
	if err != nil {
		panic(err)
	}
	return out
}

// Native converts a wire value back into plain Go values. Connector references
// come back as ConnectorRef so callers can resolve them.
func Native(v Value) any {
	switch x := v.(type) {
	case nil, Undefined:
		return nil
	case String:
		return string(x)
	case Int:
		return int32(x)
	case Long:
		return int64(x)
	case Float:
		return float32(x)
	case Double:
		return float64(x)
	case Bool:
		return bool(x)
	case StringArray:
		return []string(x)
	case ConnectorRef:
		return x
	case Array:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = Native(e)
		}
		return out
	case Map:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = Native(e)
		}
		return out
	case SharedState:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = Native(e)
		}
		return out
	}
	return nil
}

// AsString returns the string held by v.
func AsString(v Value) (string, bool) {
	s, ok := v.(String)
	return string(s), ok
}

// AsBool accepts booleans and the legacy "true"/"false" strings.
func AsBool(v Value) (bool, bool) {
	switch x := v.(type) {
	case Bool:
		return bool(x), true
	case String:
		switch x {
		case "true":
			return true, true
		case "false":
			return false, true
		}
	}
	return false, false
}

// AsInt64 widens any integer variant.
func AsInt64(v Value) (int64, bool) {
	switch x := v.(type) {
	case Int:
		return int64(x), true
	case Long:
		return int64(x), true
	}
	return 0, false
}

// AsFloat64 widens any numeric variant.
func AsFloat64(v Value) (float64, bool) {
	switch x := v.(type) {
	case Int:
		return float64(x), true
	case Long:
		return float64(x), true
	case Float:
		return float64(x), true
	case Double:
		return float64(x), true
	}
	return 0, false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
