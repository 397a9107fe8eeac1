package api

import (
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/cuemby/canopy/pkg/manager"
)

const (
	pushWriteWait  = 10 * time.Second
	pushPongWait   = 60 * time.Second
	pushPingPeriod = 30 * time.Second
)

var pushUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// wsPush is a manager.PushConnection over a WebSocket
type wsPush struct {
	conn      *websocket.Conn
	mu        sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

func newWSPush(conn *websocket.Conn) *wsPush {
	return &wsPush{conn: conn, done: make(chan struct{})}
}

// Push implements manager.PushConnection
func (p *wsPush) Push(msg []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(pushWriteWait))
	return p.conn.WriteMessage(websocket.TextMessage, msg)
}

func (p *wsPush) ping() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(pushWriteWait))
}

// Close implements manager.PushConnection
func (p *wsPush) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.done)
		p.mu.Lock()
		_ = p.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(pushWriteWait))
		p.mu.Unlock()
		err = p.conn.Close()
	})
	return err
}

// handlePush upgrades to a WebSocket and registers it as the push channel
// of the requested root until the client goes away
func (s *Server) handlePush(c *gin.Context) {
	rootID, err := strconv.Atoi(c.Query("rootId"))
	if err != nil {
		c.String(http.StatusBadRequest, "invalid rootId")
		return
	}
	id, _ := c.Cookie(SessionCookie)
	if _, err := s.manager.Session(id); err != nil {
		status := http.StatusUnauthorized
		if errors.Is(err, manager.ErrSessionExpired) {
			status = http.StatusGone
		}
		c.String(status, err.Error())
		return
	}

	conn, err := pushUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade push connection")
		return
	}
	pc := newWSPush(conn)
	defer pc.Close()

	if err := s.manager.AttachPush(id, rootID, pc); err != nil {
		s.logger.Warn().Err(err).Str("session_id", id).Int("root_id", rootID).Msg("Push channel refused")
		return
	}
	defer s.manager.DetachPush(id, rootID, pc)

	go func() {
		ticker := time.NewTicker(pushPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := pc.ping(); err != nil {
					s.logger.Warn().Err(err).Str("session_id", id).Msg("Failed to send ping")
					_ = pc.Close()
					return
				}
			case <-pc.done:
				return
			}
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(pushPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pushPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn().Err(err).Str("session_id", id).Msg("Push channel closed unexpectedly")
			}
			return
		}
	}
}
