package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics with bounded cardinality (no per-player or per-match labels)
var (
	actionsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "duel_actions_total",
		Help: "Actions resolved, by action and outcome",
	}, []string{"action", "outcome"}) // outcome: ok, cancelled, parry_cooldown, dash_cooldown

	hitsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "duel_hits_total",
		Help: "Hit attempts, by result",
	}, []string{"kind"}) // kind: miss, hit, parried, guarded

	sweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "duel_sweep_duration_seconds",
		Help:    "Time spent clearing expired hitboxes across all matches",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
	})

	hitboxesExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "duel_hitboxes_expired_total",
		Help: "Hitboxes cleared by the sweeper",
	})

	liveMatches = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "duel_live_matches",
		Help: "Matches currently in progress",
	})

	eventLogTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "event_log_total",
		Help: "Match events accepted by the event log",
	})

	eventLogDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "event_log_dropped_total",
		Help: "Match events dropped by the event log limiters or a full buffer",
	})

	// Bounded: "rate_limit", "origin", "ws_total_limit", "ws_ip_limit"
	connectionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connection_rejected_total",
		Help: "Requests and websocket upgrades refused, by reason",
	}, []string{"reason"})

	requestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "REST request latency by route pattern",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint"}) // endpoint is the route pattern, not the URL

	requestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "REST requests by route pattern and status",
	}, []string{"method", "endpoint", "status"})

	wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "websocket_connections_active",
		Help: "Open player websocket sessions",
	})

	wsMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "websocket_messages_total",
		Help: "WebSocket messages, by direction",
	}, []string{"direction"}) // in, out
)

// ObservabilityConfig configures the pprof and metrics listener.
type ObservabilityConfig struct {
	Enabled       bool
	ListenAddr    string // must stay on loopback in production
	BasicAuthUser string // basic auth is off when empty
	BasicAuthPass string
}

// DefaultObservabilityConfig serves on loopback only.
func DefaultObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		Enabled:    true,
		ListenAddr: "127.0.0.1:6060",
	}
}

// DebugServer serves pprof and /metrics on a loopback address.
type DebugServer struct {
	srv *http.Server
	log *zap.Logger
}

// StartDebugServer starts the internal observability server.
// It returns nil when disabled.
func StartDebugServer(cfg ObservabilityConfig, log *zap.Logger) *DebugServer {
	if log == nil {
		log = zap.NewNop()
	}
	if !cfg.Enabled {
		log.Info("debug server disabled")
		return nil
	}

	if !isLoopback(cfg.ListenAddr) && os.Getenv("ALLOW_DEBUG_EXTERNAL") != "true" {
		log.Warn("debug server forced to localhost", zap.String("requested", cfg.ListenAddr))
		cfg.ListenAddr = "127.0.0.1:6060"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	var handler http.Handler = mux
	if cfg.BasicAuthUser != "" {
		handler = basicAuthMiddleware(cfg.BasicAuthUser, cfg.BasicAuthPass, mux)
	}

	d := &DebugServer{
		srv: &http.Server{Addr: cfg.ListenAddr, Handler: handler, ReadHeaderTimeout: 5 * time.Second},
		log: log,
	}
	go func() {
		log.Info("debug server starting",
			zap.String("pprof", "http://"+cfg.ListenAddr+"/debug/pprof/"),
			zap.String("metrics", "http://"+cfg.ListenAddr+"/metrics"))
		if err := d.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("debug server error", zap.Error(err))
		}
	}()
	return d
}

// Shutdown stops the debug listener.
func (d *DebugServer) Shutdown(ctx context.Context) error {
	if d == nil {
		return nil
	}
	return d.srv.Shutdown(ctx)
}

func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// basicAuthMiddleware guards the debug mux with one fixed credential.
func basicAuthMiddleware(user, pass string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || u != user || p != pass {
			w.Header().Set("WWW-Authenticate", `Basic realm="debug"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RecordAction counts a resolved action.
func RecordAction(action, outcome string) {
	actionsResolved.WithLabelValues(action, outcome).Inc()
}

// RecordHit counts a hit attempt. kind is miss, hit, parried or guarded.
func RecordHit(kind string) {
	hitsResolved.WithLabelValues(kind).Inc()
}

// RecordSweep records one sweeper pass.
func RecordSweep(d time.Duration, cleared int) {
	sweepDuration.Observe(d.Seconds())
	if cleared > 0 {
		hitboxesExpired.Add(float64(cleared))
	}
}

// UpdateLiveMatches sets the live match gauge.
func UpdateLiveMatches(count int) {
	liveMatches.Set(float64(count))
}

var eventLogSeen struct {
	sync.Mutex
	total, dropped uint64
}

// UpdateEventLogStats folds the event log's cumulative counters into the
// metrics. Counters only move forward, so only the delta since the last
// call is added.
func UpdateEventLogStats(total, dropped uint64) {
	eventLogSeen.Lock()
	defer eventLogSeen.Unlock()
	if total > eventLogSeen.total {
		eventLogTotal.Add(float64(total - eventLogSeen.total))
		eventLogSeen.total = total
	}
	if dropped > eventLogSeen.dropped {
		eventLogDropped.Add(float64(dropped - eventLogSeen.dropped))
		eventLogSeen.dropped = dropped
	}
}

// RecordConnectionRejected increments the rejection counter
// reason must be one of: "rate_limit", "origin", "ws_total_limit", "ws_ip_limit"
func RecordConnectionRejected(reason string) {
	connectionRejected.WithLabelValues(reason).Inc()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, endpoint string, status int, duration time.Duration) {
	requestLatency.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	requestTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
}

// UpdateWSConnections updates WebSocket connection count
func UpdateWSConnections(count int) {
	wsConnectionsActive.Set(float64(count))
}

// IncrementWSMessages counts one websocket message. direction is in or out.
func IncrementWSMessages(direction string) {
	wsMessagesTotal.WithLabelValues(direction).Inc()
}
