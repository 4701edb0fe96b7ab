package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"duel-arena/internal/combat"
	"duel-arena/internal/match"
	"duel-arena/internal/profile"
)

// MatchSource is the part of the match registry the REST routes read.
// *match.Manager satisfies it.
type MatchSource interface {
	Get(id string) (*match.Match, error)
	List() []*match.Match
	Count() int
}

// RouterConfig lists what the REST routes read from.
//
// Example usage in tests:
//
//	router := api.NewRouter(api.RouterConfig{
//	    Matches: manager,
//	    Weapons: registry,
//	    Rules:   rules,
//	    RateLimitConfig: &api.RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000},
//	})
//	ts := httptest.NewServer(router)
type RouterConfig struct {
	Matches MatchSource            // required
	Weapons *combat.WeaponRegistry // required
	Rules   *combat.RuleTable      // required

	// Leaderboard backs /api/leaderboard and /api/profiles. Optional.
	Leaderboard *profile.Leaderboard

	// WebSocket is mounted at /ws when set.
	WebSocket http.Handler

	// RateLimiter is shared with the Server so Start can run its cleanup.
	// When nil one is built from RateLimitConfig, or the defaults.
	RateLimiter     *IPRateLimiter
	RateLimitConfig *RateLimitConfig

	// CORSOrigins defaults to any origin.
	CORSOrigins []string

	// DisableLogging drops the per-request log line.
	DisableLogging bool

	Log *zap.Logger
}

type routerHandlers struct {
	matches MatchSource
	weapons *combat.WeaponRegistry
	rules   *combat.RuleTable
	board   *profile.Leaderboard
	log     *zap.Logger
}

// NewRouter builds the chi mux for the REST API and the websocket endpoint.
//
// It is pure: no goroutines are started and no listeners are opened, so
// it is safe to use with httptest.NewServer.
func NewRouter(cfg RouterConfig) *chi.Mux {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	r := chi.NewRouter()

	// Middleware - order matters
	if !cfg.DisableLogging {
		r.Use(requestLogger(cfg.Log))
	}
	r.Use(middleware.Recoverer)
	r.Use(requestMetrics)

	// Rate limiting before CORS to reject early
	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil {
		rateLimitCfg := DefaultRateLimitConfig()
		if cfg.RateLimitConfig != nil {
			rateLimitCfg = *cfg.RateLimitConfig
		}
		rateLimiter = NewIPRateLimiter(rateLimitCfg)
	}
	r.Use(rateLimiter.Middleware)

	corsOrigins := cfg.CORSOrigins
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))

	h := &routerHandlers{
		matches: cfg.Matches,
		weapons: cfg.Weapons,
		rules:   cfg.Rules,
		board:   cfg.Leaderboard,
		log:     cfg.Log,
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.handleHealth)

		// Static combat data
		r.Get("/weapons", h.handleGetWeapons)
		r.Get("/rules", h.handleGetRules)

		// Live matches
		r.Get("/matches", h.handleListMatches)
		r.Get("/matches/{id}", h.handleGetMatch)
		r.Get("/matches/{id}/frame.png", h.handleMatchFrame)

		// Rankings
		r.Get("/leaderboard", h.handleGetLeaderboard)
		r.Get("/profiles/{name}", h.handleGetProfile)
	})

	if cfg.WebSocket != nil {
		r.Handle("/ws", cfg.WebSocket)
	}

	return r
}

// requestLogger logs each request through zap, in place of chi's stdlib logger.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.String("ip", GetClientIP(r)),
				zap.Duration("took", time.Since(start)))
		})
	}
}

// requestMetrics records latency and status per route pattern.
func requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		endpoint := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				endpoint = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		RecordRequest(r.Method, endpoint, status, time.Since(start))
	})
}
