package burst

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/cuemby/canopy/pkg/value"
)

const (
	// Separator splits a request payload into bursts
	Separator = '\u001d'

	// Escape starts a two character escape sequence inside a burst
	Escape = '\u001b'

	// escapeOffset is added to an escaped control character to keep the
	// sequence itself free of control characters: ESC K stands for ESC and
	// ESC M for the separator. Payloads are split before they are
	// unescaped, so a raw separator may never follow ESC.
	escapeOffset = 0x30

	// InitToken is sent as the whole payload by a client asking for its
	// security key
	InitToken = "init"

	// VariableInterface and VariableMethod identify legacy variable changes
	VariableInterface = "v"
	VariableMethod    = "v"
)

var (
	// ErrInvalidEscape is returned for escape sequences this server does not
	// know, which means client and server versions disagree
	ErrInvalidEscape = errors.New("burst: invalid escape sequence")

	// ErrMalformed is returned when a burst does not decode to invocations
	ErrMalformed = errors.New("burst: malformed invocation list")
)

// Split cuts a payload into bursts. An empty payload has no bursts.
func Split(payload string) []string {
	if payload == "" {
		return nil
	}
	return strings.Split(payload, string(Separator))
}

// Join is the inverse of Split for already escaped bursts.
func Join(bursts []string) string {
	return strings.Join(bursts, string(Separator))
}

// EscapeString encodes s so that it contains neither the separator nor a bare
// escape character.
func EscapeString(s string) string {
	if !strings.ContainsAny(s, string([]rune{Separator, Escape})) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 4)
	for _, r := range s {
		switch r {
		case Escape, Separator:
			b.WriteRune(Escape)
			b.WriteRune(r + escapeOffset)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Unescape reverses EscapeString.
func Unescape(s string) (string, error) {
	if !strings.ContainsRune(s, Escape) {
		return s, nil
	}
	var b strings.Builder
	b.Grow(len(s))
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != Escape {
			b.WriteRune(r)
			continue
		}
		if i+1 == len(runes) {
			return "", fmt.Errorf("%w: escape at end of burst", ErrInvalidEscape)
		}
		i++
		switch next := runes[i]; next {
		case Escape + escapeOffset:
			b.WriteRune(Escape)
		case Separator + escapeOffset:
			b.WriteRune(Separator)
		default:
			return "", fmt.Errorf("%w: %U after escape at offset %d", ErrInvalidEscape, next, i)
		}
	}
	return b.String(), nil
}

// Call is one decoded client invocation. Legacy variable changes have
// Variables set and carry the merged changes of consecutive calls to the
// same connector.
type Call struct {
	ConnectorID string
	Interface   string
	Method      string
	Params      []value.Value
	Variables   map[string]value.Value
}

// IsVariableChange reports whether c uses the legacy variable channel.
func (c Call) IsVariableChange() bool {
	return c.Interface == VariableInterface && c.Method == VariableMethod
}

// IsLoneClose reports whether c is a variable change consisting only of
// close=true, which is sent for windows that may already be gone.
func (c Call) IsLoneClose() bool {
	if !c.IsVariableChange() || len(c.Variables) != 1 {
		return false
	}
	closed, ok := value.AsBool(c.Variables["close"])
	return ok && closed
}

// Parse decodes an unescaped burst of the form
// [[connectorId, interface, method, [[tag,value]...]]...]. Consecutive
// variable changes to the same connector are merged into one Call.
func Parse(burst string) ([]Call, error) {
	if strings.TrimSpace(burst) == "" {
		return nil, nil
	}
	var raw [][]any
	if err := value.JSON.UnmarshalFromString(burst, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	calls := make([]Call, 0, len(raw))
	for i, entry := range raw {
		call, err := decodeCall(entry)
		if err != nil {
			return nil, fmt.Errorf("invocation %d: %w", i, err)
		}
		if call.IsVariableChange() {
			name, v, err := decodeVariable(call.Params)
			if err != nil {
				return nil, fmt.Errorf("invocation %d: %w", i, err)
			}
			if n := len(calls); n > 0 && calls[n-1].IsVariableChange() && calls[n-1].ConnectorID == call.ConnectorID {
				calls[n-1].Variables[name] = v
				continue
			}
			call.Params = nil
			call.Variables = map[string]value.Value{name: v}
		}
		calls = append(calls, call)
	}
	return calls, nil
}

func decodeCall(entry []any) (Call, error) {
	if len(entry) != 4 {
		return Call{}, fmt.Errorf("%w: expected 4 fields, got %d", ErrMalformed, len(entry))
	}
	var names [3]string
	for i := range names {
		s, ok := entry[i].(string)
		if !ok {
			return Call{}, fmt.Errorf("%w: field %d is %T, not a string", ErrMalformed, i, entry[i])
		}
		names[i] = s
	}
	rawParams, ok := entry[3].([]any)
	if !ok {
		return Call{}, fmt.Errorf("%w: parameters are %T, not an array", ErrMalformed, entry[3])
	}
	params := make([]value.Value, 0, len(rawParams))
	for i, p := range rawParams {
		v, err := value.FromJSON(p)
		if err != nil {
			return Call{}, fmt.Errorf("%w: parameter %d: %v", ErrMalformed, i, err)
		}
		params = append(params, v)
	}
	return Call{
		ConnectorID: names[0],
		Interface:   names[1],
		Method:      names[2],
		Params:      params,
	}, nil
}

func decodeVariable(params []value.Value) (string, value.Value, error) {
	if len(params) != 2 {
		return "", nil, fmt.Errorf("%w: variable change needs [name, value], got %d parameters", ErrMalformed, len(params))
	}
	name, ok := value.AsString(params[0])
	if !ok || name == "" {
		return "", nil, fmt.Errorf("%w: variable name is %T", ErrMalformed, params[0])
	}
	return name, params[1], nil
}

// Encode renders calls in wire form, one invocation per call. Variable
// changes expand to one invocation per variable, sorted by name. It is
// used by tests and tooling that play the client's part.
func Encode(calls []Call) (string, error) {
	var b strings.Builder
	b.WriteByte('[')
	n := 0
	write := func(id, iface, method string, params []value.Value) error {
		if n > 0 {
			b.WriteByte(',')
		}
		n++
		b.WriteByte('[')
		b.WriteString(value.Quote(id))
		b.WriteByte(',')
		b.WriteString(value.Quote(iface))
		b.WriteByte(',')
		b.WriteString(value.Quote(method))
		b.WriteString(",[")
		for i, p := range params {
			if i > 0 {
				b.WriteByte(',')
			}
			enc, err := value.Marshal(p)
			if err != nil {
				return err
			}
			b.Write(enc)
		}
		b.WriteString("]]")
		return nil
	}
	for _, c := range calls {
		if c.Variables == nil {
			if err := write(c.ConnectorID, c.Interface, c.Method, c.Params); err != nil {
				return "", err
			}
			continue
		}
		for _, name := range sortedNames(c.Variables) {
			params := []value.Value{value.String(name), c.Variables[name]}
			if err := write(c.ConnectorID, VariableInterface, VariableMethod, params); err != nil {
				return "", err
			}
		}
	}
	b.WriteByte(']')
	return b.String(), nil
}

func sortedNames(vars map[string]value.Value) []string {
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
