package manager

import (
	"bytes"
	"fmt"

	"github.com/cuemby/canopy/pkg/app"
	"github.com/cuemby/canopy/pkg/events"
	"github.com/cuemby/canopy/pkg/metrics"
	"github.com/cuemby/canopy/pkg/types"
	"github.com/cuemby/canopy/pkg/uidl"
)

// PushConnection delivers server-initiated UIDL messages to one root
type PushConnection interface {
	Push(msg []byte) error
	Close() error
}

// AttachPush registers the push channel of a root, replacing and closing
// any earlier one
func (m *Manager) AttachPush(sessionID string, rootID int, pc PushConnection) error {
	s, err := m.Session(sessionID)
	if err != nil {
		return err
	}
	var found bool
	_ = s.app.Access(func() error {
		_, found = s.app.Root(rootID)
		return nil
	})
	if !found {
		return fmt.Errorf("%w: %d", ErrRootNotFound, rootID)
	}

	s.pushMu.Lock()
	old := s.push[rootID]
	s.push[rootID] = pc
	s.pushMu.Unlock()
	if old != nil && old != pc {
		_ = old.Close()
	}

	m.publish(events.EventPushConnected, sessionID, fmt.Sprintf("root %d", rootID))
	m.logger.Debug().Str("session_id", sessionID).Int("root_id", rootID).Msg("Push channel attached")
	return nil
}

// DetachPush removes pc if it is still the push channel of the root
func (m *Manager) DetachPush(sessionID string, rootID int, pc PushConnection) {
	m.mu.RLock()
	s, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return
	}

	s.pushMu.Lock()
	current := s.push[rootID]
	if current == pc {
		delete(s.push, rootID)
	}
	s.pushMu.Unlock()

	if current == pc {
		m.publish(events.EventPushDisconnected, sessionID, fmt.Sprintf("root %d", rootID))
	}
}

func (s *Session) closePush() {
	s.pushMu.Lock()
	conns := s.push
	s.push = make(map[int]PushConnection)
	s.pushMu.Unlock()
	for _, pc := range conns {
		_ = pc.Close()
	}
}

// Access runs fn under the lock of the session's application, then sends
// the resulting changes to every root with a push channel. Background
// goroutines use it to change the UI outside of a client request.
func (m *Manager) Access(sessionID string, fn func(a *app.Application) error) error {
	s, err := m.Session(sessionID)
	if err != nil {
		return err
	}

	type pending struct {
		pc  PushConnection
		msg []byte
	}
	var out []pending

	err = s.app.Access(func() error {
		if err := fn(s.app); err != nil {
			return err
		}
		s.pushMu.Lock()
		conns := make(map[int]PushConnection, len(s.push))
		for id, pc := range s.push {
			conns[id] = pc
		}
		s.pushMu.Unlock()

		for id, pc := range conns {
			if !s.app.IsRunning() {
				var buf bytes.Buffer
				uidl.WriteEnded(&buf, s.app.LogoutURL())
				out = append(out, pending{pc, buf.Bytes()})
				continue
			}
			root, ok := s.app.Root(id)
			if !ok || root.Tracker().Len() == 0 {
				continue
			}
			var buf bytes.Buffer
			if _, err := s.writer.Write(&buf, root, uidl.Options{
				Locale:         s.app.Locale(),
				SessionTimeout: m.cfg.SessionTimeout,
			}); err != nil {
				return fmt.Errorf("%w: push to root %d: %w", ErrSerialization, id, err)
			}
			out = append(out, pending{pc, buf.Bytes()})
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, p := range out {
		if err := p.pc.Push(p.msg); err != nil {
			m.logger.Warn().Err(err).Str("session_id", sessionID).Msg("Push failed")
			continue
		}
		metrics.PushMessages.Inc()
	}
	if !s.app.IsRunning() {
		m.endSession(s, types.SessionStatusClosed)
	}
	return nil
}
