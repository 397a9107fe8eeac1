package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/cuemby/canopy/pkg/log"
	"github.com/cuemby/canopy/pkg/manager"
	"github.com/cuemby/canopy/pkg/metrics"
)

// SessionCookie carries the session id between requests
const SessionCookie = "CANOPYSESSION"

// maxPayload bounds the size of a UIDL request body
const maxPayload = 1 << 20

// Config holds configuration for the HTTP server
type Config struct {
	// RequestsPerSecond limits UIDL requests per session; zero disables
	RequestsPerSecond float64
	Burst             int

	// SecureCookie marks the session cookie as HTTPS only
	SecureCookie bool
}

// Server serves the client runtime over HTTP and WebSocket
type Server struct {
	manager *manager.Manager
	cfg     Config
	engine  *gin.Engine
	limiter *RateLimiter
	http    *http.Server
	logger  zerolog.Logger
}

// NewServer creates a new API server
func NewServer(mgr *manager.Manager, cfg Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		manager: mgr,
		cfg:     cfg,
		engine:  gin.New(),
		logger:  log.WithComponent("api"),
	}
	if cfg.RequestsPerSecond > 0 {
		s.limiter = NewRateLimiter(cfg.RequestsPerSecond, cfg.Burst)
	}

	s.engine.Use(gin.Recovery(), requestLogger(s.logger))

	s.engine.POST("/init", s.handleInit)
	uidlRoute := s.engine.Group("/")
	if s.limiter != nil {
		uidlRoute.Use(s.limiter.Middleware(sessionKey))
	}
	uidlRoute.POST("/UIDL", s.handleUIDL)
	s.engine.GET("/PUSH", s.handlePush)

	s.engine.GET("/health", gin.WrapF(metrics.HealthHandler()))
	s.engine.GET("/ready", gin.WrapF(metrics.ReadyHandler()))
	s.engine.GET("/live", gin.WrapF(metrics.LivenessHandler()))
	s.engine.GET("/metrics", gin.WrapH(metrics.Handler()))

	return s
}

// Handler returns the HTTP handler for embedding in other servers
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start listens on addr and serves until Shutdown is called
func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(lis)
}

// Serve serves on an existing listener
func (s *Server) Serve(lis net.Listener) error {
	s.http = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if s.limiter != nil {
		s.limiter.StartCleanup(10 * time.Minute)
	}

	metrics.RegisterComponent("api", true, "listening on "+lis.Addr().String())
	s.logger.Info().Str("addr", lis.Addr().String()).Msg("HTTP API listening")

	err := s.http.Serve(lis)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	metrics.UpdateComponent("api", false, "shutting down")
	if s.limiter != nil {
		s.limiter.Stop()
	}
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

type initResponse struct {
	RootID int `json:"rootId"`
}

// handleInit opens a root in the caller's session, starting a session
// first when the cookie is missing or stale
func (s *Server) handleInit(c *gin.Context) {
	id, _ := c.Cookie(SessionCookie)
	sess, created := s.manager.GetOrCreate(id, c.ClientIP(), c.Request.UserAgent())
	if created {
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(SessionCookie, sess.ID(), 0, "/", "", s.cfg.SecureCookie, true)
	}

	rootID, err := s.manager.CreateRoot(c.Request.Context(), sess.ID())
	if err != nil {
		s.logger.Error().Err(err).Str("session_id", sess.ID()).Msg("Failed to create root")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create root"})
		return
	}
	c.JSON(http.StatusOK, initResponse{RootID: rootID})
}

// handleUIDL runs one UIDL round trip. Failures inside the round trip are
// reported to the client as critical notifications with status 200, so
// only malformed HTTP requests get an error status.
func (s *Server) handleUIDL(c *gin.Context) {
	rootID, err := strconv.Atoi(c.Query("rootId"))
	if err != nil {
		c.String(http.StatusBadRequest, "invalid rootId")
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxPayload))
	if err != nil {
		c.String(http.StatusRequestEntityTooLarge, "payload too large")
		return
	}
	id, _ := c.Cookie(SessionCookie)

	req := &manager.Request{
		SessionID:      id,
		RootID:         rootID,
		Payload:        string(body),
		RepaintAll:     flag(c.Query("repaintAll")),
		AnalyzeLayouts: flag(c.Query("analyzeLayouts")),
		Highlight:      c.Query("highlightConnector"),
	}

	c.Header("Content-Type", "application/json; charset=UTF-8")
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)
	if err := s.manager.HandleUIDLRequest(c.Request.Context(), req, c.Writer); err != nil {
		s.logger.Debug().Err(err).Str("session_id", id).Int("root_id", rootID).Msg("UIDL request failed")
	}
}

func flag(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

// sessionKey limits by session, falling back to the client address for
// requests without a cookie
func sessionKey(c *gin.Context) string {
	if id, err := c.Cookie(SessionCookie); err == nil && id != "" {
		return "session:" + id
	}
	return "ip:" + c.ClientIP()
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	}
}
