// Package server exposes the chat channel surface: a gin HTTP server for
// webhook events and card callbacks, and a websocket channel client for
// outbound pushes.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/Clukay-Fun/OmniAgent-sub000/internal/cache"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/config"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/logging"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/orchestrator"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/render"
)

// Agent is the message pipeline the server dispatches into.
type Agent interface {
	HandleEvent(ctx context.Context, in orchestrator.Inbound) *render.RenderedResponse
	HandleCallback(ctx context.Context, userID, action string, value map[string]any) *render.RenderedResponse
}

// Server is the webhook/callback HTTP front.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	agent      Agent
	events     *cache.IdempotencyStore
	cfg        config.ServerConfig
	// queue bounds concurrent in-flight requests; full queue rejects with 429.
	queue     chan struct{}
	logger    logging.Logger
	startTime time.Time
}

// New builds the server. events deduplicates webhook redeliveries by event id.
func New(cfg config.ServerConfig, agent Agent, events *cache.IdempotencyStore, logger logging.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	engine.Use(cors.New(corsConfig))

	depth := cfg.MaxQueueDepth
	if depth <= 0 {
		depth = 256
	}

	s := &Server{
		engine:    engine,
		agent:     agent,
		events:    events,
		cfg:       cfg,
		queue:     make(chan struct{}, depth),
		logger:    logging.OrNop(logger),
		startTime: time.Now(),
	}
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      engine,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/health", s.handleHealth)
	webhook := s.engine.Group("/webhook")
	webhook.POST("/event", s.handleEvent)
	webhook.POST("/callback", s.handleCallback)
}

// Start serves until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("serve http: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
	})
}

type eventRequest struct {
	EventID   string `json:"event_id"`
	Type      string `json:"type"`
	Challenge string `json:"challenge"`
	UserID    string `json:"user_id"`
	OpenID    string `json:"open_id"`
	ChatID    string `json:"chat_id"`
	ChatType  string `json:"chat_type"`
	UserName  string `json:"user_name"`
	Text      string `json:"text"`
}

type callbackRequest struct {
	EventID string         `json:"event_id"`
	UserID  string         `json:"user_id"`
	Action  string         `json:"callback_action"`
	Value   map[string]any `json:"value"`
}

// tryAcquire takes a queue slot without blocking.
func (s *Server) tryAcquire() bool {
	select {
	case s.queue <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Server) release() { <-s.queue }

func (s *Server) verify(c *gin.Context) bool {
	if s.cfg.VerifyToken == "" {
		return true
	}
	if c.GetHeader("X-Verify-Token") == s.cfg.VerifyToken {
		return true
	}
	c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid verify token"})
	return false
}

func (s *Server) handleEvent(c *gin.Context) {
	if !s.verify(c) {
		return
	}
	var req eventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed event"})
		return
	}

	// channel endpoint verification handshake
	if req.Challenge != "" {
		c.JSON(http.StatusOK, gin.H{"challenge": req.Challenge})
		return
	}
	// older channel payloads carry user_id only
	if req.OpenID == "" {
		req.OpenID = req.UserID
	}
	if req.OpenID == "" || req.Text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing open_id or text"})
		return
	}

	if s.events != nil && req.EventID != "" {
		if s.events.IsDuplicate(req.EventID) {
			c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
			return
		}
		s.events.Mark(req.EventID)
	}

	if !s.tryAcquire() {
		// redelivery will retry; the core never buffers unbounded work
		if s.events != nil && req.EventID != "" {
			s.events.Remove(req.EventID)
		}
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "server busy, retry later"})
		return
	}
	defer s.release()

	resp := s.agent.HandleEvent(c.Request.Context(), orchestrator.Inbound{
		OpenID:   req.OpenID,
		ChatID:   req.ChatID,
		ChatType: req.ChatType,
		UserName: req.UserName,
		Text:     req.Text,
	})
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleCallback(c *gin.Context) {
	if !s.verify(c) {
		return
	}
	var req callbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed callback"})
		return
	}
	if req.UserID == "" || req.Action == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing user_id or callback_action"})
		return
	}

	if !s.tryAcquire() {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "server busy, retry later"})
		return
	}
	defer s.release()

	resp := s.agent.HandleCallback(c.Request.Context(), req.UserID, req.Action, req.Value)
	c.JSON(http.StatusOK, resp)
}
