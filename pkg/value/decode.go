package value

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	jsoniter "github.com/json-iterator/go"
)

// ErrMalformed is returned when a client-sent value does not follow the
// [tag, value] encoding
var ErrMalformed = errors.New("value: malformed tagged value")

// JSON is the decoder configuration shared by everything that reads client
// payloads. Numbers are kept as json.Number so the tag decides their width.
var JSON = jsoniter.Config{
	UseNumber:              true,
	ValidateJsonRawMessage: true,
}.Froze()

// Unmarshal decodes one tagged value from raw JSON.
func Unmarshal(data []byte) (Value, error) {
	var raw any
	if err := JSON.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return FromJSON(raw)
}

// FromJSON converts an already decoded [tag, value] pair into a Value.
func FromJSON(raw any) (Value, error) {
	pair, ok := raw.([]any)
	if !ok || len(pair) != 2 {
		return nil, fmt.Errorf("%w: expected [tag, value], got %T", ErrMalformed, raw)
	}
	tag, ok := pair[0].(string)
	if !ok {
		return nil, fmt.Errorf("%w: tag is %T, not a string", ErrMalformed, pair[0])
	}
	return decodeContents(Tag(tag), pair[1])
}

func decodeContents(tag Tag, x any) (Value, error) {
	switch tag {
	case TagUndefined, "n":
		return Undefined{}, nil
	case TagString:
		s, ok := x.(string)
		if !ok {
			return nil, mismatch(tag, x)
		}
		return String(s), nil
	case TagConnector:
		if x == nil {
			return Undefined{}, nil
		}
		s, ok := x.(string)
		if !ok {
			return nil, mismatch(tag, x)
		}
		return ConnectorRef(s), nil
	case TagBoolean:
		switch b := x.(type) {
		case bool:
			return Bool(b), nil
		case string:
			return Bool(b == "true"), nil
		}
		return nil, mismatch(tag, x)
	case TagInt:
		n, err := parseInt(x, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return Int(n), nil
	case TagLong:
		n, err := parseInt(x, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return Long(n), nil
	case TagFloat:
		f, err := parseFloat(x, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return Float(f), nil
	case TagDouble:
		f, err := parseFloat(x, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return Double(f), nil
	case TagStringArray:
		items, ok := x.([]any)
		if !ok {
			return nil, mismatch(tag, x)
		}
		out := make(StringArray, 0, len(items))
		for _, item := range items {
			s, ok := item.(string)
			if !ok {
				return nil, mismatch(tag, item)
			}
			out = append(out, s)
		}
		return out, nil
	case TagArray:
		items, ok := x.([]any)
		if !ok {
			return nil, mismatch(tag, x)
		}
		out := make(Array, 0, len(items))
		for i, item := range items {
			v, err := FromJSON(item)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			out = append(out, v)
		}
		return out, nil
	case TagMap, TagSharedState:
		fields, ok := x.(map[string]any)
		if !ok {
			return nil, mismatch(tag, x)
		}
		out := make(map[string]Value, len(fields))
		for k, item := range fields {
			v, err := FromJSON(item)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", k, err)
			}
			out[k] = v
		}
		if tag == TagSharedState {
			return SharedState(out), nil
		}
		return Map(out), nil
	}
	return nil, fmt.Errorf("%w: unknown tag %q", ErrMalformed, tag)
}

func mismatch(tag Tag, x any) error {
	return fmt.Errorf("%w: tag %q cannot hold %T", ErrMalformed, tag, x)
}

func numberText(x any) (string, error) {
	switch n := x.(type) {
	case json.Number:
		return n.String(), nil
	case string:
		return n, nil
	case float64:
		return strconv.FormatFloat(n, 'g', -1, 64), nil
	}
	return "", fmt.Errorf("not a number: %T", x)
}

func parseInt(x any, bits int) (int64, error) {
	s, err := numberText(x)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(s, 10, bits)
}

func parseFloat(x any, bits int) (float64, error) {
	s, err := numberText(x)
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(s, bits)
}
