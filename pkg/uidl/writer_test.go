package uidl

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/canopy/pkg/connector"
	"github.com/cuemby/canopy/pkg/paint"
	"github.com/cuemby/canopy/pkg/types"
	"github.com/cuemby/canopy/pkg/value"
)

type testOwner struct {
	counters connector.Counters
}

func (o *testOwner) IsRunning() bool               { return true }
func (o *testOwner) Counters() *connector.Counters { return &o.counters }

// label is a state-only connector
type label struct {
	connector.Base
}

func newLabel(text string) *label {
	l := &label{}
	l.Init(l)
	l.State()["text"] = value.String(text)
	return l
}

// panel is a sizeable container
type panel struct {
	connector.Base
	width, height string
	children      []connector.Connector
}

func newPanel(children ...connector.Connector) *panel {
	p := &panel{}
	p.Init(p)
	for _, c := range children {
		p.children = append(p.children, c)
		connector.SetParent(c, p)
	}
	return p
}

func (p *panel) Children() []connector.Connector { return p.children }
func (p *panel) Width() string                   { return p.width }
func (p *panel) Height() string                  { return p.height }

// legacy paints through the paint target and uses a layout template
type legacy struct {
	connector.Base
	caption  string
	template string
	locale   string
	width    string
}

func newLegacy(caption string) *legacy {
	l := &legacy{caption: caption}
	l.Init(l)
	return l
}

func (l *legacy) PaintContent(t *paint.Target) error {
	if l.locale != "" {
		t.RequireLocale(l.locale)
	}
	return t.AddAttribute("caption", l.caption)
}

func (l *legacy) LayoutTemplate() string { return l.template }
func (l *legacy) Width() string          { return l.width }
func (l *legacy) Height() string         { return "" }

type mapTemplates map[string]string

func (m mapTemplates) Template(name string) (string, error) {
	text, ok := m[name]
	if !ok {
		return "", errors.New("no such template")
	}
	return text, nil
}

func testTypes() *connector.TypeRegistry {
	reg := connector.NewTypeRegistry()
	reg.Register(&label{}, "test.Label")
	reg.Register(&panel{}, "test.Panel")
	reg.Register(&legacy{}, "test.Legacy")
	return reg
}

func newTestWriter(cfg Config) *Writer {
	if cfg.Types == nil {
		cfg.Types = testTypes()
	}
	return NewWriter(cfg)
}

func write(t *testing.T, w *Writer, root *connector.Root, opts Options) string {
	t.Helper()
	var buf bytes.Buffer
	_, err := w.Write(&buf, root, opts)
	require.NoError(t, err)
	return buf.String()
}

// decode strips the framing and returns the single message object
func decode(t *testing.T, msg string) map[string]json.RawMessage {
	t.Helper()
	require.True(t, strings.HasPrefix(msg, Prefix), "missing prefix: %s", msg)
	var out []map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(msg, Prefix)), &out), msg)
	require.Len(t, out, 1)
	return out[0]
}

// TestWriteKeyOrder tests the order of the top-level entries
func TestWriteKeyOrder(t *testing.T) {
	root := connector.NewRoot(0, &testOwner{})
	l := newLabel("hello")
	root.SetContent(newPanel(l))
	require.NoError(t, l.Invoke("test.Client", "ping"))

	w := newTestWriter(Config{Messages: types.DefaultSystemMessages()})
	msg := write(t, w, root, Options{SecurityKey: "key", Timings: &Timings{Session: time.Second}})

	keys := []string{`"securityKey"`, `"changes"`, `"state"`, `"types"`, `"hierarchy"`,
		`"rpc"`, `"meta"`, `"resources"`, `"typeMappings"`, `"locales"`, `"timings"`}
	last := -1
	for _, k := range keys {
		idx := strings.Index(msg, k)
		require.Greater(t, idx, last, "%s out of order in %s", k, msg)
		last = idx
	}
	assert.True(t, strings.HasPrefix(msg, `for(;;);[{"securityKey":"key","changes":[]`))
	assert.True(t, strings.HasSuffix(msg, "}]"))
}

// TestWriteInitialContents tests state, types and hierarchy of a first response
func TestWriteInitialContents(t *testing.T) {
	root := connector.NewRoot(0, &testOwner{})
	l := newLabel("hello")
	p := newPanel(l)
	root.SetContent(p)

	w := newTestWriter(Config{})
	m := decode(t, write(t, w, root, Options{}))

	rootID, lID, pID := root.ID(), l.ID(), p.ID()
	require.NotEmpty(t, lID)

	var state map[string][]any
	require.NoError(t, json.Unmarshal(m["state"], &state))
	assert.Equal(t, []any{"t", map[string]any{"text": []any{"s", "hello"}}}, state[lID])
	assert.Len(t, state, 3)

	var hierarchy map[string][]string
	require.NoError(t, json.Unmarshal(m["hierarchy"], &hierarchy))
	assert.Equal(t, []string{pID}, hierarchy[rootID])
	assert.Equal(t, []string{lID}, hierarchy[pID])
	_, ok := hierarchy[lID]
	assert.False(t, ok, "leaves have no hierarchy entry")

	var typesOf map[string]string
	require.NoError(t, json.Unmarshal(m["types"], &typesOf))
	var mappings map[string]int
	require.NoError(t, json.Unmarshal(m["typeMappings"], &mappings))
	assert.Len(t, mappings, 3)
	assert.Equal(t, typesOf[lID], itoa(mappings["test.Label"]))
	assert.Equal(t, typesOf[rootID], itoa(mappings["canopy.Root"]))

	_, ok = m["rpc"]
	assert.False(t, ok, "rpc is omitted when empty")
	assert.Zero(t, root.Tracker().Len(), "dirty set is cleared")
}

func itoa(i int) string {
	b, _ := json.Marshal(i)
	return string(b)
}

// TestClientCacheMonotonic tests that type mappings are sent once until a full repaint
func TestClientCacheMonotonic(t *testing.T) {
	root := connector.NewRoot(0, &testOwner{})
	l := newLabel("a")
	root.SetContent(newPanel(l))
	w := newTestWriter(Config{})

	first := decode(t, write(t, w, root, Options{}))
	assert.Contains(t, first, "typeMappings")

	l.SetState("text", value.String("b"))
	second := decode(t, write(t, w, root, Options{}))
	assert.NotContains(t, second, "typeMappings")
	assert.Contains(t, string(second["state"]), `"b"`)

	third := decode(t, write(t, w, root, Options{RepaintAll: true}))
	assert.Contains(t, third, "typeMappings")
	assert.Contains(t, string(third["meta"]), `"repaintAll":true`)
	assert.Contains(t, string(third["state"]), root.ID())
}

// TestNothingDirty tests the empty response
func TestNothingDirty(t *testing.T) {
	root := connector.NewRoot(0, &testOwner{})
	w := newTestWriter(Config{})
	write(t, w, root, Options{})

	msg := write(t, w, root, Options{})
	assert.Equal(t, `for(;;);[{"changes":[],"state":{},"types":{},"hierarchy":{},"meta":{},"resources":{},"locales":[]}]`, msg)
}

// TestHiddenConnectorsSkipped tests that invisible connectors are not sent
func TestHiddenConnectorsSkipped(t *testing.T) {
	root := connector.NewRoot(0, &testOwner{})
	shown, hidden := newLabel("shown"), newLabel("hidden")
	p := newPanel(shown, hidden)
	root.SetContent(p)
	hidden.SetVisible(false)

	w := newTestWriter(Config{})
	m := decode(t, write(t, w, root, Options{}))

	var hierarchy map[string][]string
	require.NoError(t, json.Unmarshal(m["hierarchy"], &hierarchy))
	assert.Equal(t, []string{shown.ID()}, hierarchy[p.ID()])
	assert.Empty(t, hidden.ID())
}

// TestRPCOrdering tests that queued calls are merged by sequence number
func TestRPCOrdering(t *testing.T) {
	root := connector.NewRoot(0, &testOwner{})
	a, b := newLabel("a"), newLabel("b")
	root.SetContent(newPanel(a, b))
	w := newTestWriter(Config{})
	write(t, w, root, Options{})

	require.NoError(t, b.Invoke("test.Client", "first"))
	require.NoError(t, a.Invoke("test.Client", "second", value.Int(2)))
	require.NoError(t, b.Invoke("test.Client", "third"))

	m := decode(t, write(t, w, root, Options{}))
	var calls [][]any
	require.NoError(t, json.Unmarshal(m["rpc"], &calls))
	require.Len(t, calls, 3)
	assert.Equal(t, []any{b.ID(), "test.Client", "first", []any{}}, calls[0])
	assert.Equal(t, []any{a.ID(), "test.Client", "second", []any{[]any{"i", float64(2)}}}, calls[1])
	assert.Equal(t, "third", calls[2][2])

	assert.Zero(t, a.Pending())
	assert.Zero(t, b.Pending())
}

// TestLegacyChanges tests painting, resources and locales
func TestLegacyChanges(t *testing.T) {
	root := connector.NewRoot(0, &testOwner{})
	l := newLegacy("Title")
	l.template = "main"
	l.locale = "de_DE"
	root.SetContent(newPanel(l))

	w := newTestWriter(Config{Templates: mapTemplates{"main": `<div location="body"></div>`}})
	m := decode(t, write(t, w, root, Options{}))

	var changes [][]any
	require.NoError(t, json.Unmarshal(m["changes"], &changes))
	require.Len(t, changes, 1)
	assert.Equal(t, "change", changes[0][0])
	assert.Equal(t, map[string]any{"pid": l.ID()}, changes[0][1])
	painted := changes[0][2].([]any)
	assert.Equal(t, map[string]any{"id": l.ID(), "caption": "Title"}, painted[1])

	var resources map[string]string
	require.NoError(t, json.Unmarshal(m["resources"], &resources))
	assert.Equal(t, `<div location="body"></div>`, resources["layouts/main.html"])

	var locales []map[string]any
	require.NoError(t, json.Unmarshal(m["locales"], &locales))
	require.Len(t, locales, 1)
	assert.Equal(t, "de_DE", locales[0]["name"])
	assert.Equal(t, "dd.MM.yy", locales[0]["df"])
	assert.Equal(t, false, locales[0]["thc"])
	assert.NotContains(t, locales[0], "ampm")

	l.caption = "Changed"
	l.MarkAsDirty()
	m = decode(t, write(t, w, root, Options{}))
	assert.Equal(t, "{}", string(m["resources"]), "template is cached")
	assert.Equal(t, "[]", string(m["locales"]), "locale was already sent")
	assert.Contains(t, string(m["changes"]), "Changed")
}

// TestRepaintAllAnnouncesLocale tests that a full repaint re-sends the application locale
func TestRepaintAllAnnouncesLocale(t *testing.T) {
	root := connector.NewRoot(0, &testOwner{})
	w := newTestWriter(Config{})

	for i := 0; i < 2; i++ {
		m := decode(t, write(t, w, root, Options{RepaintAll: true, Locale: "en_US"}))
		var locales []map[string]any
		require.NoError(t, json.Unmarshal(m["locales"], &locales))
		require.Len(t, locales, 1)
		assert.Equal(t, "en_US", locales[0]["name"])
		assert.Equal(t, true, locales[0]["thc"])
		assert.Equal(t, []any{"AM", "PM"}, locales[0]["ampm"])
		assert.Equal(t, float64(0), locales[0]["fdow"])
	}
}

// TestLookupLocale tests locale matching
func TestLookupLocale(t *testing.T) {
	tests := []struct {
		name   string
		wantDF string
	}{
		{"en_US", "M/d/yy"},
		{"en-GB", "dd/MM/yy"},
		{"fi_FI", "d.M.yyyy"},
		{"sv", "yyyy-MM-dd"},
		{"not a locale!", "M/d/yy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantDF, lookupLocale(tt.name).dateFormat)
		})
	}
}

// TestTimedRedirect tests when the session timeout redirect is announced
func TestTimedRedirect(t *testing.T) {
	silent := types.DefaultSystemMessages()
	silent.SessionExpired = types.Notification{Enabled: true, URL: "/expired"}

	root := connector.NewRoot(0, &testOwner{})
	w := newTestWriter(Config{Messages: silent})

	m := decode(t, write(t, w, root, Options{SessionTimeout: 30 * time.Minute}))
	assert.Contains(t, string(m["meta"]), `"timedRedirect":{"interval":1815,"url":"\/expired"}`)

	m = decode(t, write(t, w, root, Options{SessionTimeout: 30 * time.Minute}))
	assert.NotContains(t, string(m["meta"]), "timedRedirect")

	m = decode(t, write(t, w, root, Options{SessionTimeout: time.Minute}))
	assert.Contains(t, string(m["meta"]), `"interval":75`)

	m = decode(t, write(t, w, root, Options{SessionTimeout: time.Minute, RepaintAll: true}))
	assert.Contains(t, string(m["meta"]), "timedRedirect")

	// Not silent: the client shows a notification instead
	w = newTestWriter(Config{Messages: types.DefaultSystemMessages()})
	m = decode(t, write(t, w, root, Options{SessionTimeout: time.Minute}))
	assert.NotContains(t, string(m["meta"]), "timedRedirect")
}

// TestDebugOutput tests layout analysis, highlighting and timings
func TestDebugOutput(t *testing.T) {
	root := connector.NewRoot(0, &testOwner{})
	child := newLegacy("wide")
	child.width = "100%"
	p := newPanel(child)
	root.SetContent(p)

	opts := Options{
		RepaintAll:     true,
		AnalyzeLayouts: true,
		Highlight:      "PID0",
		Timings:        &Timings{Session: 1500 * time.Millisecond, LastRequest: 20 * time.Millisecond},
	}

	w := newTestWriter(Config{})
	m := decode(t, write(t, w, root, opts))
	var meta struct {
		InvalidLayouts []map[string]string `json:"invalidLayouts"`
		HL             string              `json:"hl"`
	}
	require.NoError(t, json.Unmarshal(m["meta"], &meta))
	require.Len(t, meta.InvalidLayouts, 1)
	assert.Equal(t, child.ID(), meta.InvalidLayouts[0]["id"])
	assert.Contains(t, meta.InvalidLayouts[0]["widthMsg"], "100%")
	assert.NotContains(t, meta.InvalidLayouts[0], "heightMsg")
	assert.Equal(t, "PID0", meta.HL)
	assert.Equal(t, "[1500,20]", string(m["timings"]))

	prod := newTestWriter(Config{ProductionMode: true})
	m = decode(t, write(t, prod, root, opts))
	assert.Equal(t, `{"repaintAll":true}`, string(m["meta"]))
	assert.NotContains(t, m, "timings")

	p.width = "400px"
	assert.Empty(t, AnalyzeLayouts(root))
}

// TestWriteUnknownType tests that a connector without a client type fails the write
func TestWriteUnknownType(t *testing.T) {
	root := connector.NewRoot(0, &testOwner{})
	root.SetContent(newLabel("x"))

	w := NewWriter(Config{Types: connector.NewTypeRegistry()})
	var buf bytes.Buffer
	_, err := w.Write(&buf, root, Options{})
	assert.ErrorIs(t, err, connector.ErrNoClientType)
}

// TestWriteStats tests the returned statistics
func TestWriteStats(t *testing.T) {
	root := connector.NewRoot(0, &testOwner{})
	l := newLabel("x")
	root.SetContent(l)
	require.NoError(t, l.Invoke("test.Client", "ping"))

	var buf bytes.Buffer
	stats, err := newTestWriter(Config{}).Write(&buf, root, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Painted)
	assert.Equal(t, 1, stats.Invocations)
	assert.Equal(t, buf.Len(), stats.Bytes)
}

func TestForgetRoot(t *testing.T) {
	w := newTestWriter(Config{})
	first := connector.NewRoot(0, &testOwner{})
	second := connector.NewRoot(1, &testOwner{})
	write(t, w, first, Options{})
	write(t, w, second, Options{})
	assert.Equal(t, 2, w.TrackedRoots())

	w.Forget(0)
	w.Forget(7)
	assert.Equal(t, 1, w.TrackedRoots())
}

// TestTypeKeysStable tests key allocation
func TestTypeKeysStable(t *testing.T) {
	keys := NewTypeKeys()
	assert.Equal(t, 0, keys.KeyFor("a"))
	assert.Equal(t, 1, keys.KeyFor("b"))
	assert.Equal(t, 0, keys.KeyFor("a"))
	assert.Equal(t, 2, keys.Len())
}

func TestEnvelopes(t *testing.T) {
	var buf bytes.Buffer
	WriteEnded(&buf, "/logout")
	assert.Equal(t, `for(;;);[{"redirect":{"url":"\/logout"}}]`, buf.String())

	buf.Reset()
	WriteCriticalNotification(&buf, types.Notification{
		Enabled: true,
		Caption: types.Text("Out of sync"),
	}, "")
	assert.Equal(t,
		`for(;;);[{"changes":[],"meta":{"appError":{"caption":"Out of sync","message":null,"url":null,"details":null}},"resources":{},"locales":[]}]`,
		buf.String())

	buf.Reset()
	WriteCriticalNotification(&buf, types.Notification{Message: types.Text(`say "hi"`), URL: "/x"}, "trace")
	assert.Contains(t, buf.String(), `"caption":null,"message":"say \"hi\"","url":"\/x","details":"trace"`)
}
