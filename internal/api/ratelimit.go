package api

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures the per-IP HTTP limiter
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
	CleanupInterval   time.Duration // how often idle limiters are dropped
}

// DefaultRateLimitConfig returns production defaults
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 10,
		Burst:             20,
		CleanupInterval:   5 * time.Minute,
	}
}

type ipLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix nanos
}

// LimiterStats counts limiter decisions.
type LimiterStats struct {
	Allowed  uint64 `json:"allowed"`
	Rejected uint64 `json:"rejected"`
	Tracked  int    `json:"tracked"`
}

// IPRateLimiter rate limits HTTP requests per client IP.
type IPRateLimiter struct {
	limiters sync.Map // map[string]*ipLimiterEntry
	config   RateLimitConfig
	stopChan chan struct{}
	stopOnce sync.Once
	started  atomic.Bool

	allowed  atomic.Uint64
	rejected atomic.Uint64
}

// NewIPRateLimiter creates a limiter. Call StartCleanup to evict idle IPs.
func NewIPRateLimiter(cfg RateLimitConfig) *IPRateLimiter {
	def := DefaultRateLimitConfig()
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = def.RequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}
	return &IPRateLimiter{
		config:   cfg,
		stopChan: make(chan struct{}),
	}
}

// StartCleanup runs the eviction loop until Stop. Safe to call once or more.
func (rl *IPRateLimiter) StartCleanup() {
	if rl.started.CompareAndSwap(false, true) {
		go rl.cleanupLoop()
	}
}

// Stop ends the eviction loop.
func (rl *IPRateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopChan)
	})
}

func (rl *IPRateLimiter) getLimiter(ip string, now time.Time) *rate.Limiter {
	if v, ok := rl.limiters.Load(ip); ok {
		e := v.(*ipLimiterEntry)
		e.lastSeen.Store(now.UnixNano())
		return e.limiter
	}

	e := &ipLimiterEntry{
		limiter: rate.NewLimiter(rate.Limit(rl.config.RequestsPerSecond), rl.config.Burst),
	}
	e.lastSeen.Store(now.UnixNano())
	actual, _ := rl.limiters.LoadOrStore(ip, e)
	return actual.(*ipLimiterEntry).limiter
}

func (rl *IPRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopChan:
			return
		case now := <-ticker.C:
			rl.cleanup(now.Add(-2 * rl.config.CleanupInterval))
		}
	}
}

// cleanup drops limiters not used since cutoff
func (rl *IPRateLimiter) cleanup(cutoff time.Time) {
	rl.limiters.Range(func(key, value any) bool {
		if value.(*ipLimiterEntry).lastSeen.Load() < cutoff.UnixNano() {
			rl.limiters.Delete(key)
		}
		return true
	})
}

// Allow reports whether ip may make another request now.
func (rl *IPRateLimiter) Allow(ip string) bool {
	if rl.getLimiter(ip, time.Now()).Allow() {
		rl.allowed.Add(1)
		return true
	}
	rl.rejected.Add(1)
	return false
}

// Middleware rejects requests over the limit with 429.
func (rl *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(GetClientIP(r)) {
			RecordConnectionRejected("rate_limit")
			w.Header().Set("Retry-After", "1")
			writeError(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Stats returns the limiter counters.
func (rl *IPRateLimiter) Stats() LimiterStats {
	s := LimiterStats{
		Allowed:  rl.allowed.Load(),
		Rejected: rl.rejected.Load(),
	}
	rl.limiters.Range(func(_, _ any) bool {
		s.Tracked++
		return true
	})
	return s
}

// GetClientIP extracts the client IP, honouring proxy headers.
// CAUTION: X-Forwarded-For can be spoofed when not behind a trusted proxy.
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx >= 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// ConnLimiter caps concurrent websocket connections, in total and per IP.
type ConnLimiter struct {
	mu       sync.Mutex
	perIP    map[string]int
	total    int
	maxTotal int
	maxPerIP int
}

// NewConnLimiter creates a limiter. Zero limits are unlimited.
func NewConnLimiter(maxTotal, maxPerIP int) *ConnLimiter {
	return &ConnLimiter{
		perIP:    make(map[string]int),
		maxTotal: maxTotal,
		maxPerIP: maxPerIP,
	}
}

// Acquire reserves a slot for ip. On refusal it returns the metric reason.
func (cl *ConnLimiter) Acquire(ip string) (string, bool) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.maxTotal > 0 && cl.total >= cl.maxTotal {
		return "ws_total_limit", false
	}
	if cl.maxPerIP > 0 && cl.perIP[ip] >= cl.maxPerIP {
		return "ws_ip_limit", false
	}
	cl.total++
	cl.perIP[ip]++
	return "", true
}

// Release frees a slot taken by Acquire.
func (cl *ConnLimiter) Release(ip string) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.perIP[ip] <= 1 {
		delete(cl.perIP, ip)
	} else {
		cl.perIP[ip]--
	}
	if cl.total > 0 {
		cl.total--
	}
}

// Count returns the number of held slots.
func (cl *ConnLimiter) Count() int {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.total
}

// OriginChecker matches websocket origins against an allow list.
// Entries may be "*", an exact origin, or contain one "*" wildcard
// such as "https://*.example.com" or "http://localhost:*".
type OriginChecker struct {
	allowAll bool
	patterns []string
}

// NewOriginChecker builds a checker from the configured origins.
func NewOriginChecker(origins []string) *OriginChecker {
	oc := &OriginChecker{}
	for _, o := range origins {
		o = strings.TrimSpace(o)
		switch o {
		case "":
		case "*":
			oc.allowAll = true
		default:
			oc.patterns = append(oc.patterns, o)
		}
	}
	return oc
}

// Allowed reports whether origin may connect. Requests without an
// Origin header (non-browser clients) are allowed.
func (oc *OriginChecker) Allowed(origin string) bool {
	if origin == "" || oc.allowAll {
		return true
	}
	for _, p := range oc.patterns {
		if matchOrigin(p, origin) {
			return true
		}
	}
	return false
}

// CheckOrigin adapts Allowed to websocket.Upgrader.CheckOrigin.
func (oc *OriginChecker) CheckOrigin(r *http.Request) bool {
	if oc.Allowed(r.Header.Get("Origin")) {
		return true
	}
	RecordConnectionRejected("origin")
	return false
}

func matchOrigin(pattern, origin string) bool {
	prefix, suffix, wild := strings.Cut(pattern, "*")
	if !wild {
		return pattern == origin
	}
	return len(origin) >= len(prefix)+len(suffix) &&
		strings.HasPrefix(origin, prefix) &&
		strings.HasSuffix(origin, suffix)
}
