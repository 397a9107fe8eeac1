package manager

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/canopy/pkg/app"
	"github.com/cuemby/canopy/pkg/burst"
	"github.com/cuemby/canopy/pkg/connector"
	"github.com/cuemby/canopy/pkg/events"
	"github.com/cuemby/canopy/pkg/log"
	"github.com/cuemby/canopy/pkg/metrics"
	"github.com/cuemby/canopy/pkg/storage"
	"github.com/cuemby/canopy/pkg/types"
	"github.com/cuemby/canopy/pkg/uidl"
)

var (
	// ErrSecurityKeyMismatch is returned when a payload does not start with
	// the session's security key
	ErrSecurityKeyMismatch = errors.New("manager: security key mismatch")

	// ErrRootNotFound is returned for requests addressed to an unknown root
	ErrRootNotFound = errors.New("manager: root not found")

	// ErrProtocol wraps payloads that cannot be decoded
	ErrProtocol = errors.New("manager: protocol error")

	// ErrSerialization wraps failures to write the response
	ErrSerialization = errors.New("manager: serialization error")

	errOutOfSync = errors.New("manager: client out of sync")
)

// Config holds configuration for creating a Manager
type Config struct {
	// Builder fills every new root with the application's UI
	Builder      app.Builder
	ErrorHandler app.ErrorHandler
	Locale       string
	LogoutURL    string

	ProductionMode bool
	DisableXSRF    bool

	SessionTimeout  time.Duration
	SweepInterval   time.Duration
	RecordRetention time.Duration

	Messages  *types.SystemMessages
	Templates uidl.TemplateSource
	Types     *connector.TypeRegistry

	// Store records sessions; optional
	Store storage.Store

	// Events receives lifecycle events; optional
	Events *events.Broker
}

// Manager owns every session of the server and turns client requests into
// UIDL responses
type Manager struct {
	cfg      Config
	store    storage.Store
	events   *events.Broker
	tokens   *TokenManager
	sessions map[string]*Session
	mu       sync.RWMutex

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	logger   zerolog.Logger
}

// NewManager creates a new Manager instance
func NewManager(cfg Config) *Manager {
	if cfg.Messages == nil {
		cfg.Messages = types.DefaultSystemMessages()
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	if cfg.Types == nil {
		cfg.Types = connector.DefaultTypes
	}
	return &Manager{
		cfg:      cfg,
		store:    cfg.Store,
		events:   cfg.Events,
		tokens:   NewTokenManager(),
		sessions: make(map[string]*Session),
		stopCh:   make(chan struct{}),
		logger:   log.WithComponent("manager"),
	}
}

// Start launches the idle-session sweeper
func (m *Manager) Start() {
	m.wg.Add(1)
	go m.sweep()
	m.logger.Info().
		Dur("session_timeout", m.cfg.SessionTimeout).
		Bool("production_mode", m.cfg.ProductionMode).
		Msg("Session manager started")
}

// Stop ends the sweeper and closes every session
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
	for _, s := range m.Sessions() {
		m.endSession(s, types.SessionStatusClosed)
	}
}

// RegisterHealthChecks adds the session registry and the store to the
// health report
func (m *Manager) RegisterHealthChecks() {
	metrics.RegisterCheck("sessions", func() error {
		select {
		case <-m.stopCh:
			return errors.New("session manager stopped")
		default:
			return nil
		}
	})
	if m.store != nil {
		metrics.RegisterCheck("store", m.store.Ping)
	}
}

// Tokens exposes the security keys
func (m *Manager) Tokens() *TokenManager { return m.tokens }

// Store returns the session store, nil when none is configured
func (m *Manager) Store() storage.Store { return m.store }

// CreateRoot opens a new root in the session and returns its id
func (m *Manager) CreateRoot(ctx context.Context, sessionID string) (int, error) {
	s, err := m.Session(sessionID)
	if err != nil {
		return 0, err
	}
	s.touch(time.Now())

	var id int
	err = s.app.Access(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		root, err := s.app.CreateRoot()
		if err != nil {
			return err
		}
		id = root.RootID()
		return nil
	})
	if err != nil {
		return 0, err
	}
	m.publish(events.EventRootCreated, sessionID, fmt.Sprintf("root %d created", id))
	return id, nil
}

// Request is one UIDL request
type Request struct {
	SessionID string
	RootID    int
	Payload   string

	RepaintAll     bool
	AnalyzeLayouts bool

	// Highlight is a connector id whose hierarchy is logged and echoed back
	Highlight string
}

// HandleUIDLRequest applies the client changes in req and writes the
// response to w. The response is buffered, so w receives either a complete
// UIDL message or a critical notification. The returned error describes
// what went wrong; a notification has already been written for it.
func (m *Manager) HandleUIDLRequest(ctx context.Context, req *Request, w io.Writer) error {
	timer := metrics.NewTimer()
	kind := "update"
	if req.RepaintAll {
		kind = "repaint"
	}
	defer timer.ObserveDurationVec(metrics.UIDLRequestDuration, kind)

	var buf bytes.Buffer
	s, err := m.Session(req.SessionID)
	if err != nil {
		uidl.WriteCriticalNotification(&buf, m.cfg.Messages.SessionExpired, "")
		metrics.UIDLRequestsTotal.WithLabelValues("expired").Inc()
		return m.flush(w, &buf, err)
	}
	s.touch(time.Now())

	err = s.app.Access(func() error {
		start := time.Now()
		defer func() {
			s.lastRequest = time.Since(start)
			s.busy += s.lastRequest
		}()
		if err := ctx.Err(); err != nil {
			return err
		}
		return m.handle(s, req, &buf)
	})
	if err != nil {
		buf.Reset()
		uidl.WriteCriticalNotification(&buf, m.notificationFor(err), m.details(err))
		metrics.UIDLRequestsTotal.WithLabelValues(outcome(err)).Inc()
		m.logRequestError(s, req, err)
	} else {
		metrics.UIDLRequestsTotal.WithLabelValues("ok").Inc()
		metrics.ResponseBytes.Observe(float64(buf.Len()))
	}

	if !s.app.IsRunning() {
		m.endSession(s, types.SessionStatusClosed)
	}
	if errors.Is(err, errOutOfSync) {
		err = nil
	}
	return m.flush(w, &buf, err)
}

func (m *Manager) flush(w io.Writer, buf *bytes.Buffer, err error) error {
	if _, werr := buf.WriteTo(w); werr != nil {
		return errors.Join(err, fmt.Errorf("write response: %w", werr))
	}
	return err
}

// handle runs under the application lock
func (m *Manager) handle(s *Session, req *Request, out *bytes.Buffer) error {
	a := s.app
	if !a.IsRunning() {
		uidl.WriteEnded(out, a.LogoutURL())
		return nil
	}
	root, ok := a.Root(req.RootID)
	if !ok {
		return fmt.Errorf("%w: %d", ErrRootNotFound, req.RootID)
	}
	logger := log.WithRootID(s.id, req.RootID)

	res, err := m.handleVariables(s, root, req.Payload, logger)
	if err != nil {
		return err
	}

	if !a.IsRunning() {
		// The application was closed by one of the calls
		uidl.WriteEnded(out, a.LogoutURL())
		return nil
	}

	// A discarded response cleared the client cache state, so the client
	// needs everything again
	repaintAll := req.RepaintAll || res.discarded
	if !res.consistent {
		m.publish(events.EventOutOfSync, s.id, fmt.Sprintf("root %d", req.RootID))
		if n := m.cfg.Messages.OutOfSync; n.Enabled && !n.Silent() {
			return errOutOfSync
		}
		logger.Warn().Msg("Client out of sync, repainting everything")
		repaintAll = true
	}

	opts := uidl.Options{
		RepaintAll:     repaintAll,
		AnalyzeLayouts: req.AnalyzeLayouts,
		Locale:         a.Locale(),
		SessionTimeout: m.cfg.SessionTimeout,
	}
	if res.writeKey {
		opts.SecurityKey, _ = m.tokens.Token(s.id)
	}
	if !m.cfg.ProductionMode {
		opts.Timings = &uidl.Timings{Session: s.busy, LastRequest: s.lastRequest}
		if req.Highlight != "" {
			opts.Highlight = m.highlight(root, req.Highlight, logger)
		}
	}

	stats, err := s.writer.Write(out, root, opts)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSerialization, err)
	}
	metrics.ConnectorsPainted.Add(float64(stats.Painted))
	metrics.RPCInvocations.WithLabelValues("client").Add(float64(stats.Invocations))
	return nil
}

// variableResult is the outcome of applying a payload
type variableResult struct {
	writeKey   bool
	consistent bool
	discarded  bool
}

// handleVariables checks the security key and applies every burst. Each
// burst but the last is followed by a full repaint whose output is thrown
// away, so the client only sees the state after the final burst.
func (m *Manager) handleVariables(s *Session, root *connector.Root, payload string, logger zerolog.Logger) (variableResult, error) {
	res := variableResult{consistent: true}
	bursts := burst.Split(payload)
	if len(bursts) == 0 {
		return res, nil
	}

	if bursts[0] == burst.InitToken {
		// The first request of a root carries no changes
		res.writeKey = !m.cfg.DisableXSRF
		return res, nil
	}
	if !m.cfg.DisableXSRF {
		if err := m.tokens.ValidateToken(s.id, bursts[0]); err != nil {
			metrics.SecurityFailures.Inc()
			m.publish(events.EventSecurityFailure, s.id, "security key mismatch")
			return res, err
		}
	}

	for i := 1; i < len(bursts); i++ {
		text, err := burst.Unescape(bursts[i])
		if err != nil {
			return res, fmt.Errorf("%w: burst %d: %w", ErrProtocol, i, err)
		}
		calls, err := burst.Parse(text)
		if err != nil {
			return res, fmt.Errorf("%w: burst %d: %w", ErrProtocol, i, err)
		}
		if !m.dispatch(s.app, root, calls, logger) {
			res.consistent = false
		}

		if i < len(bursts)-1 {
			var discard bytes.Buffer
			if _, err := s.writer.Write(&discard, root, uidl.Options{RepaintAll: true, Locale: s.app.Locale()}); err != nil {
				return res, fmt.Errorf("%w: %w", ErrSerialization, err)
			}
			res.discarded = true
		}
	}
	return res, nil
}

// dispatch applies calls in order and reports whether every target was
// found
func (m *Manager) dispatch(a *app.Application, root *connector.Root, calls []burst.Call, logger zerolog.Logger) bool {
	consistent := true
	for _, call := range calls {
		c, ok := root.Registry().Connector(call.ConnectorID)
		if !ok || connector.RootOf(c) != root || !connector.IsConnectorEnabled(c) {
			if call.IsLoneClose() {
				continue
			}
			reason := "missing"
			if ok {
				reason = "disabled"
			}
			metrics.VariableChangeErrors.WithLabelValues(reason).Inc()
			logger.Warn().
				Str("connector_id", call.ConnectorID).
				Str("interface", call.Interface).
				Str("method", call.Method).
				Str("reason", reason).
				Msg("Dropping call for unavailable connector")
			consistent = false
			continue
		}

		metrics.RPCInvocations.WithLabelValues("server").Inc()
		if err := invoke(c, call); err != nil {
			metrics.VariableChangeErrors.WithLabelValues("handler").Inc()
			a.HandleError(err, c)
		}
	}
	return consistent
}

func invoke(c connector.Connector, call burst.Call) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = app.PanicError(r)
		}
	}()

	if call.IsVariableChange() {
		owner, ok := c.(connector.VariableOwner)
		if !ok {
			return fmt.Errorf("%T does not accept variable changes", c)
		}
		return owner.ChangeVariables(call.Variables)
	}
	h, ok := c.ConnectorBase().RPCHandler(call.Interface)
	if !ok {
		return fmt.Errorf("%T has no handler for %s", c, call.Interface)
	}
	return h(call.Method, call.Params)
}

// highlight logs the path from the root to the connector with the given id
// and returns the id when the connector exists
func (m *Manager) highlight(root *connector.Root, id string, logger zerolog.Logger) string {
	c, ok := root.Registry().Connector(id)
	if !ok {
		return ""
	}
	var path []string
	for p := c; p != nil; p = p.ConnectorBase().Parent() {
		path = append([]string{fmt.Sprintf("%T(%s)", p, p.ConnectorBase().ID())}, path...)
	}
	logger.Info().Str("connector_id", id).Msg("Highlighting " + strings.Join(path, " > "))
	return id
}

func (m *Manager) notificationFor(err error) types.Notification {
	msgs := m.cfg.Messages
	switch {
	case errors.Is(err, errOutOfSync), errors.Is(err, ErrRootNotFound):
		return msgs.OutOfSync
	case errors.Is(err, ErrSecurityKeyMismatch), errors.Is(err, ErrProtocol),
		errors.Is(err, ErrSerialization), errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return msgs.CommunicationError
	default:
		return msgs.InternalError
	}
}

// details are only shown outside production mode
func (m *Manager) details(err error) string {
	if m.cfg.ProductionMode || errors.Is(err, errOutOfSync) {
		return ""
	}
	return err.Error()
}

func outcome(err error) string {
	switch {
	case errors.Is(err, errOutOfSync), errors.Is(err, ErrRootNotFound):
		return "out_of_sync"
	case errors.Is(err, ErrSecurityKeyMismatch):
		return "security"
	case errors.Is(err, ErrProtocol):
		return "protocol"
	case errors.Is(err, ErrSerialization):
		return "serialization"
	default:
		return "error"
	}
}

func (m *Manager) logRequestError(s *Session, req *Request, err error) {
	var ev *zerolog.Event
	switch {
	case errors.Is(err, errOutOfSync), errors.Is(err, ErrSecurityKeyMismatch), errors.Is(err, ErrRootNotFound):
		ev = m.logger.Warn()
	default:
		ev = m.logger.Error()
	}
	ev.Err(err).
		Str("session_id", s.id).
		Int("root_id", req.RootID).
		Msg("UIDL request failed")
}
