package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/canopy/pkg/app"
	"github.com/cuemby/canopy/pkg/connector"
	"github.com/cuemby/canopy/pkg/events"
	"github.com/cuemby/canopy/pkg/manager"
	"github.com/cuemby/canopy/pkg/ui"
	"github.com/cuemby/canopy/pkg/uidl"
)

type fixture struct {
	mgr    *manager.Manager
	srv    *Server
	broker *events.Broker
	label  *ui.Label
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{broker: events.NewBroker()}
	f.broker.Start()
	f.mgr = manager.NewManager(manager.Config{
		Builder: func(root *connector.Root) error {
			f.label = ui.NewLabel("hello")
			root.SetContent(ui.NewVerticalLayout(f.label))
			return nil
		},
		Events: f.broker,
	})
	f.srv = NewServer(f.mgr, cfg)
	t.Cleanup(func() {
		f.mgr.Stop()
		f.broker.Stop()
	})
	return f
}

func (f *fixture) do(t *testing.T, method, target, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	return w
}

// start runs /init and returns the session cookie and root id
func (f *fixture) start(t *testing.T) (*http.Cookie, int) {
	t.Helper()
	w := f.do(t, http.MethodPost, "/init", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp initResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == SessionCookie {
			cookie = c
		}
	}
	require.NotNil(t, cookie, "session cookie not set")
	assert.True(t, cookie.HttpOnly)
	return cookie, resp.RootID
}

func decodeMessage(t *testing.T, body string) map[string]json.RawMessage {
	t.Helper()
	require.True(t, strings.HasPrefix(body, uidl.Prefix), body)
	var msgs []map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(body, uidl.Prefix)), &msgs), body)
	require.Len(t, msgs, 1)
	return msgs[0]
}

func TestInitReusesSession(t *testing.T) {
	f := newFixture(t, Config{})
	cookie, rootID := f.start(t)
	assert.Equal(t, 0, rootID)

	w := f.do(t, http.MethodPost, "/init", "", cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"rootId":1}`, w.Body.String())
	assert.Empty(t, w.Result().Cookies(), "existing session must not get a new cookie")
	assert.Equal(t, 1, f.mgr.SessionCount())
}

func TestUIDLRoundTrip(t *testing.T) {
	f := newFixture(t, Config{})
	cookie, rootID := f.start(t)

	w := f.do(t, http.MethodPost, "/UIDL?rootId=0&repaintAll=1", "init", cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json; charset=UTF-8", w.Header().Get("Content-Type"))

	msg := decodeMessage(t, w.Body.String())
	var key string
	require.NoError(t, json.Unmarshal(msg["securityKey"], &key))
	assert.NotEmpty(t, key)
	assert.Contains(t, string(msg["state"]), `"hello"`)
	assert.JSONEq(t, `{"repaintAll":true}`, string(msg["meta"]))
	assert.Equal(t, 0, rootID)

	// Nothing changed since the first response
	w = f.do(t, http.MethodPost, "/UIDL?rootId=0", key, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	msg = decodeMessage(t, w.Body.String())
	assert.JSONEq(t, `{}`, string(msg["state"]))
	_, hasKey := msg["securityKey"]
	assert.False(t, hasKey)
}

func TestUIDLErrors(t *testing.T) {
	f := newFixture(t, Config{})
	cookie, _ := f.start(t)

	tests := []struct {
		name     string
		target   string
		body     string
		cookie   bool
		wantCode int
		wantBody string
	}{
		{
			name:     "missing root id",
			target:   "/UIDL",
			cookie:   true,
			wantCode: http.StatusBadRequest,
			wantBody: "invalid rootId",
		},
		{
			name:     "no session",
			target:   "/UIDL?rootId=0",
			body:     "init",
			wantCode: http.StatusOK,
			wantBody: `"caption":"Session Expired"`,
		},
		{
			name:     "wrong security key",
			target:   "/UIDL?rootId=0",
			body:     "not-the-key",
			cookie:   true,
			wantCode: http.StatusOK,
			wantBody: `"caption":"Communication problem"`,
		},
		{
			name:     "unknown root",
			target:   "/UIDL?rootId=7",
			body:     "init",
			cookie:   true,
			wantCode: http.StatusOK,
			wantBody: `"caption":"Out of sync"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cookies []*http.Cookie
			if tt.cookie {
				cookies = append(cookies, cookie)
			}
			w := f.do(t, http.MethodPost, tt.target, tt.body, cookies...)
			assert.Equal(t, tt.wantCode, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
		})
	}
}

func TestUIDLRateLimit(t *testing.T) {
	f := newFixture(t, Config{RequestsPerSecond: 0.001, Burst: 2})
	cookie, _ := f.start(t)

	for i := 0; i < 2; i++ {
		w := f.do(t, http.MethodPost, "/UIDL?rootId=0", "", cookie)
		assert.Equal(t, http.StatusOK, w.Code)
	}
	w := f.do(t, http.MethodPost, "/UIDL?rootId=0", "", cookie)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	// Other sessions have their own bucket
	other, _ := f.start(t)
	w = f.do(t, http.MethodPost, "/UIDL?rootId=0", "", other)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))
	assert.Equal(t, 2, rl.Len())

	assert.Equal(t, 2, rl.Cleanup(time.Now().Add(time.Second)))
	assert.Zero(t, rl.Len())
}

func TestFlag(t *testing.T) {
	for in, want := range map[string]bool{"1": true, "true": true, "": false, "0": false, "yes": false} {
		assert.Equal(t, want, flag(in), in)
	}
}

func TestPushChannel(t *testing.T) {
	f := newFixture(t, Config{})
	sub := f.broker.Subscribe(events.OfType(events.EventPushConnected, events.EventPushDisconnected))
	defer f.broker.Unsubscribe(sub)

	cookie, _ := f.start(t)
	ts := httptest.NewServer(f.srv.Handler())
	defer ts.Close()

	header := http.Header{}
	header.Add("Cookie", SessionCookie+"="+cookie.Value)
	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/PUSH?rootId=0", header)
	require.NoError(t, err)
	defer conn.Close()
	defer resp.Body.Close()

	waitFor(t, sub, events.EventPushConnected)

	require.NoError(t, f.mgr.Access(cookie.Value, func(*app.Application) error {
		f.label.SetText("pushed")
		return nil
	}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	msg := decodeMessage(t, string(data))
	assert.Contains(t, string(msg["state"]), `"pushed"`)
}

func TestPushRejectsUnknownSession(t *testing.T) {
	f := newFixture(t, Config{})
	w := f.do(t, http.MethodGet, "/PUSH?rootId=0", "", &http.Cookie{Name: SessionCookie, Value: "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodGet, "/PUSH?rootId=x", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthRoutes(t *testing.T) {
	f := newFixture(t, Config{})
	for _, path := range []string{"/live", "/metrics"} {
		w := f.do(t, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
	w := f.do(t, http.MethodGet, "/health", "")
	assert.Contains(t, []int{http.StatusOK, http.StatusServiceUnavailable}, w.Code)
}

func waitFor(t *testing.T, sub events.Subscriber, typ events.EventType) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-sub:
			if ev.Type == typ {
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", typ)
		}
	}
}
