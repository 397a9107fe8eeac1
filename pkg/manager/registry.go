package manager

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/canopy/pkg/app"
	"github.com/cuemby/canopy/pkg/events"
	"github.com/cuemby/canopy/pkg/metrics"
	"github.com/cuemby/canopy/pkg/storage"
	"github.com/cuemby/canopy/pkg/types"
	"github.com/cuemby/canopy/pkg/uidl"
)

var (
	// ErrSessionNotFound is returned for session ids this server never issued
	ErrSessionNotFound = errors.New("manager: session not found")

	// ErrSessionExpired is returned for sessions that timed out or were closed
	ErrSessionExpired = errors.New("manager: session expired")
)

// Session is one user session and the application serving it
type Session struct {
	id         string
	app        *app.Application
	writer     *uidl.Writer
	createdAt  time.Time
	lastAccess atomic.Int64
	remoteAddr string
	userAgent  string

	// Guarded by the application lock
	busy        time.Duration
	lastRequest time.Duration

	pushMu sync.Mutex
	push   map[int]PushConnection
}

func (s *Session) ID() string                       { return s.id }
func (s *Session) App() *app.Application            { return s.app }
func (s *Session) CreatedAt() time.Time             { return s.createdAt }
func (s *Session) LastAccess() time.Time            { return time.Unix(0, s.lastAccess.Load()) }
func (s *Session) touch(now time.Time)              { s.lastAccess.Store(now.UnixNano()) }
func (s *Session) idle(now time.Time) time.Duration { return now.Sub(s.LastAccess()) }

func (s *Session) record(status types.SessionStatus) *types.Session {
	rec := &types.Session{
		ID:         s.id,
		Status:     status,
		RemoteAddr: s.remoteAddr,
		UserAgent:  s.userAgent,
		Roots:      s.app.RootCount(),
		CreatedAt:  s.createdAt,
		LastAccess: s.LastAccess(),
	}
	if status != types.SessionStatusActive {
		rec.EndedAt = time.Now()
	}
	return rec
}

// CreateSession starts a new session with a fresh application
func (m *Manager) CreateSession(remoteAddr, userAgent string) *Session {
	now := time.Now()
	s := &Session{
		id:         uuid.NewString(),
		app:        app.New(m.appConfig()),
		createdAt:  now,
		remoteAddr: remoteAddr,
		userAgent:  userAgent,
		push:       make(map[int]PushConnection),
	}
	s.touch(now)
	s.writer = uidl.NewWriter(uidl.Config{
		Types:          m.cfg.Types,
		Templates:      m.cfg.Templates,
		ProductionMode: m.cfg.ProductionMode,
		Messages:       m.cfg.Messages,
	})
	s.app.OnRootRemoved(s.writer.Forget)
	m.tokens.GenerateToken(s.id)

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()

	m.save(s.record(types.SessionStatusActive))
	m.publish(events.EventSessionCreated, s.id, "session created")
	m.logger.Info().
		Str("session_id", s.id).
		Str("remote_addr", remoteAddr).
		Msg("Session created")
	return s
}

func (m *Manager) appConfig() app.Config {
	return app.Config{
		Builder:      m.cfg.Builder,
		ErrorHandler: m.cfg.ErrorHandler,
		Locale:       m.cfg.Locale,
		LogoutURL:    m.cfg.LogoutURL,
	}
}

// Session returns a live session. A session idle for longer than the
// timeout is expired on the spot. Ids that are unknown in memory but
// recorded in the store report ErrSessionExpired, so a restarted server
// tells its clients their session is gone.
func (m *Manager) Session(id string) (*Session, error) {
	if id == "" {
		return nil, ErrSessionNotFound
	}
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()

	if ok {
		if m.cfg.SessionTimeout > 0 && s.idle(time.Now()) > m.cfg.SessionTimeout {
			m.endSession(s, types.SessionStatusExpired)
			return nil, ErrSessionExpired
		}
		return s, nil
	}

	if m.store != nil {
		if _, err := m.store.GetSession(id); err == nil {
			return nil, ErrSessionExpired
		} else if !errors.Is(err, storage.ErrNotFound) {
			m.logger.Warn().Err(err).Str("session_id", id).Msg("Session lookup failed")
		}
	}
	return nil, ErrSessionNotFound
}

// GetOrCreate returns the live session id, or a new one when id is unknown
// or ended. created reports which.
func (m *Manager) GetOrCreate(id, remoteAddr, userAgent string) (s *Session, created bool) {
	if s, err := m.Session(id); err == nil {
		return s, false
	}
	return m.CreateSession(remoteAddr, userAgent), true
}

// CloseSession ends a session at the user's request
func (m *Manager) CloseSession(id string) error {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
	}
	m.endSession(s, types.SessionStatusClosed)
	return nil
}

// endSession removes s from the registry, stops its application and
// records how it ended. Only the first call for a session has an effect.
func (m *Manager) endSession(s *Session, status types.SessionStatus) {
	m.mu.Lock()
	if m.sessions[s.id] != s {
		m.mu.Unlock()
		return
	}
	delete(m.sessions, s.id)
	m.mu.Unlock()

	m.tokens.RevokeToken(s.id)
	rec := s.record(status)
	_ = s.app.Access(func() error {
		s.app.Close()
		return nil
	})
	s.closePush()
	m.save(rec)

	logger := m.logger.Info().Str("session_id", s.id).Str("status", string(status))
	if status == types.SessionStatusExpired {
		metrics.SessionsExpired.Inc()
		m.publish(events.EventSessionExpired, s.id, "session expired")
		logger.Dur("idle", s.idle(time.Now())).Msg("Session expired")
		return
	}
	m.publish(events.EventSessionClosed, s.id, "session closed")
	logger.Msg("Session closed")
}

// ExpireIdle ends every session idle for longer than the timeout and
// returns how many were ended
func (m *Manager) ExpireIdle(now time.Time) int {
	if m.cfg.SessionTimeout <= 0 {
		return 0
	}
	m.mu.RLock()
	var idle []*Session
	for _, s := range m.sessions {
		if s.idle(now) > m.cfg.SessionTimeout {
			idle = append(idle, s)
		}
	}
	m.mu.RUnlock()

	for _, s := range idle {
		m.endSession(s, types.SessionStatusExpired)
	}
	return len(idle)
}

// Sessions returns the live sessions, oldest first
func (m *Manager) Sessions() []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].createdAt.Before(out[j].createdAt) })
	return out
}

// SessionCount implements metrics.SessionSource
func (m *Manager) SessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// RootCount implements metrics.SessionSource
func (m *Manager) RootCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, s := range m.sessions {
		n += s.app.RootCount()
	}
	return n
}

// PushCount implements metrics.SessionSource
func (m *Manager) PushCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, s := range m.sessions {
		s.pushMu.Lock()
		n += len(s.push)
		s.pushMu.Unlock()
	}
	return n
}

func (m *Manager) sweep() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			if n := m.ExpireIdle(now); n > 0 {
				m.logger.Debug().Int("expired", n).Msg("Swept idle sessions")
			}
			if m.store != nil && m.cfg.RecordRetention > 0 {
				removed, err := m.store.PruneSessions(now.Add(-m.cfg.RecordRetention))
				if err != nil {
					m.logger.Warn().Err(err).Msg("Failed to prune session records")
				} else if removed > 0 {
					m.logger.Debug().Int("removed", removed).Msg("Pruned session records")
				}
			}
		case <-m.stopCh:
			return
		}
	}
}

func (m *Manager) save(rec *types.Session) {
	if m.store == nil {
		return
	}
	if err := m.store.SaveSession(rec); err != nil {
		m.logger.Warn().Err(err).Str("session_id", rec.ID).Msg("Failed to save session record")
	}
}

func (m *Manager) publish(t events.EventType, sessionID, msg string) {
	if m.events == nil {
		return
	}
	m.events.Publish(&events.Event{Type: t, SessionID: sessionID, Message: msg})
}
