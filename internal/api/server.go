package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"duel-arena/internal/combat"
)

// ServerConfig wires a Server.
type ServerConfig struct {
	Hub            HubConfig
	Rules          *combat.RuleTable
	RateLimit      RateLimitConfig
	CORSOrigins    []string
	DisableLogging bool
	Log            *zap.Logger
}

// Server is the HTTP API server with the websocket hub mounted at /ws.
type Server struct {
	router      *chi.Mux
	hub         *Hub
	rateLimiter *IPRateLimiter
	log         *zap.Logger

	mu  sync.Mutex
	srv *http.Server
}

// NewServer builds the router and hub.
//
// Background workers do not start until Start is called, so the server
// can be constructed in tests and driven through Router().
func NewServer(cfg ServerConfig) *Server {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.Hub.Log == nil {
		cfg.Hub.Log = cfg.Log
	}

	s := &Server{
		hub:         NewHub(cfg.Hub),
		rateLimiter: NewIPRateLimiter(cfg.RateLimit),
		log:         cfg.Log,
	}
	s.router = NewRouter(RouterConfig{
		Matches:        cfg.Hub.Matches,
		Weapons:        cfg.Hub.Weapons,
		Rules:          cfg.Rules,
		Leaderboard:    cfg.Hub.Profiles.Leaderboard(),
		WebSocket:      s.hub,
		RateLimiter:    s.rateLimiter,
		CORSOrigins:    cfg.CORSOrigins,
		DisableLogging: cfg.DisableLogging,
		Log:            cfg.Log,
	})
	return s
}

// Start serves on addr and blocks until Shutdown.
// This is the only method that starts goroutines or opens listeners.
func (s *Server) Start(addr string) error {
	s.rateLimiter.StartCleanup()

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.mu.Lock()
	s.srv = srv
	s.mu.Unlock()

	s.log.Info("api server starting", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Router returns the HTTP handler for use with httptest.
func (s *Server) Router() http.Handler {
	return s.router
}

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Shutdown stops accepting requests, then closes every websocket session.
// Hijacked websocket connections are not tracked by http.Server, so the
// hub closes them itself.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}
	s.hub.Close()
	s.rateLimiter.Stop()
	return err
}
