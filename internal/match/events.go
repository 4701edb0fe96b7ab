package match

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// EventType classifies combat log entries.
type EventType string

const (
	EventMatchStart EventType = "match_start"
	EventAction     EventType = "action"
	EventHit        EventType = "hit"
	EventSweep      EventType = "sweep"
	EventMatchEnd   EventType = "match_end"
)

// Event is one JSONL line of the combat log.
type Event struct {
	Seq      uint64          `json:"seq"`
	Time     int64           `json:"time"` // unix ms
	Type     EventType       `json:"type"`
	MatchID  string          `json:"matchId"`
	PlayerID string          `json:"playerId,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// EventLogConfig bounds the log.
type EventLogConfig struct {
	BufferSize      int           // ring capacity; oldest entries drop when full
	MaxPerSec       float64       // global rate
	MaxPerPlayerSec float64       // per-player rate
	FlushInterval   time.Duration // writer cadence
	LimiterIdle     time.Duration // per-player limiters idle this long are dropped
}

// DefaultEventLogConfig returns production bounds.
func DefaultEventLogConfig() EventLogConfig {
	return EventLogConfig{
		BufferSize:      1024,
		MaxPerSec:       10000,
		MaxPerPlayerSec: 100,
		FlushInterval:   100 * time.Millisecond,
		LimiterIdle:     5 * time.Minute,
	}
}

type playerLimiter struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// EventLog is a bounded, rate-limited combat event sink that appends
// newline-delimited JSON to a file. Emit never blocks on I/O.
type EventLog struct {
	cfg EventLogConfig
	log *zap.Logger

	global *rate.Limiter

	mu       sync.Mutex
	ring     []Event
	head     int // next read
	size     int
	seq      uint64
	players  map[string]*playerLimiter
	stopCh   chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
	running  atomic.Bool

	file *os.File
	w    *bufio.Writer

	total   atomic.Uint64
	dropped atomic.Uint64
	written atomic.Uint64
}

// NewEventLog creates a stopped log.
func NewEventLog(cfg EventLogConfig, log *zap.Logger) *EventLog {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultEventLogConfig().BufferSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &EventLog{
		cfg:     cfg,
		log:     log,
		global:  rate.NewLimiter(rate.Limit(cfg.MaxPerSec), burst(cfg.MaxPerSec)),
		ring:    make([]Event, cfg.BufferSize),
		players: make(map[string]*playerLimiter),
		stopCh:  make(chan struct{}),
	}
}

func burst(perSec float64) int {
	b := int(perSec / 10)
	if b < 1 {
		b = 1
	}
	return b
}

// Start opens path for append and launches the writer. An empty path
// keeps events in memory only (still counted, never written).
func (l *EventLog) Start(path string) error {
	if l.running.Load() {
		return nil
	}
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open event log %s: %w", path, err)
		}
		l.file = f
		l.w = bufio.NewWriter(f)
	}

	l.running.Store(true)
	l.wg.Add(1)
	go l.writerLoop()
	return nil
}

// Stop flushes pending events and closes the file.
func (l *EventLog) Stop() {
	l.stopOnce.Do(func() {
		l.running.Store(false)
		close(l.stopCh)
		l.wg.Wait()
		if l.file != nil {
			if err := l.file.Close(); err != nil {
				l.log.Warn("event log close failed", zap.Error(err))
			}
		}
	})
}

// Emit records an event. It returns false when the log is stopped or the
// event was rate limited.
func (l *EventLog) Emit(typ EventType, matchID, playerID string, payload any) bool {
	if !l.running.Load() {
		return false
	}
	if !l.global.Allow() {
		l.dropped.Add(1)
		return false
	}

	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			l.log.Warn("event payload encode failed", zap.String("type", string(typ)), zap.Error(err))
			return false
		}
		raw = b
	}

	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if playerID != "" && !l.playerLimiterLocked(playerID, now).Allow() {
		l.dropped.Add(1)
		return false
	}

	if l.size == len(l.ring) {
		// full: drop the oldest
		l.head = (l.head + 1) % len(l.ring)
		l.size--
		l.dropped.Add(1)
	}
	l.seq++
	l.ring[(l.head+l.size)%len(l.ring)] = Event{
		Seq:      l.seq,
		Time:     now.UnixMilli(),
		Type:     typ,
		MatchID:  matchID,
		PlayerID: playerID,
		Payload:  raw,
	}
	l.size++
	l.total.Add(1)
	return true
}

func (l *EventLog) playerLimiterLocked(id string, now time.Time) *rate.Limiter {
	pl, ok := l.players[id]
	if !ok {
		pl = &playerLimiter{
			limiter: rate.NewLimiter(rate.Limit(l.cfg.MaxPerPlayerSec), burst(l.cfg.MaxPerPlayerSec)),
		}
		l.players[id] = pl
	}
	pl.lastUsed = now
	return pl.limiter
}

func (l *EventLog) writerLoop() {
	defer l.wg.Done()

	flush := time.NewTicker(l.cfg.FlushInterval)
	defer flush.Stop()
	cleanup := time.NewTicker(l.cfg.LimiterIdle)
	defer cleanup.Stop()

	for {
		select {
		case <-l.stopCh:
			l.flush()
			return
		case <-flush.C:
			l.flush()
		case <-cleanup.C:
			l.pruneLimiters(time.Now().Add(-l.cfg.LimiterIdle))
		}
	}
}

// Drain removes and returns every buffered event.
func (l *EventLog) Drain() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Event, 0, l.size)
	for l.size > 0 {
		out = append(out, l.ring[l.head])
		l.ring[l.head] = Event{}
		l.head = (l.head + 1) % len(l.ring)
		l.size--
	}
	return out
}

func (l *EventLog) flush() {
	batch := l.Drain()
	if len(batch) == 0 || l.w == nil {
		return
	}

	enc := json.NewEncoder(l.w)
	for _, e := range batch {
		if err := enc.Encode(e); err != nil {
			l.log.Warn("event log write failed", zap.Error(err))
			return
		}
	}
	if err := l.w.Flush(); err != nil {
		l.log.Warn("event log flush failed", zap.Error(err))
		return
	}
	l.written.Add(uint64(len(batch)))
}

func (l *EventLog) pruneLimiters(cutoff time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, pl := range l.players {
		if pl.lastUsed.Before(cutoff) {
			delete(l.players, id)
		}
	}
}

// EventLogStats are counters for monitoring.
type EventLogStats struct {
	Total   uint64 `json:"total"`
	Dropped uint64 `json:"dropped"`
	Written uint64 `json:"written"`
	Pending int    `json:"pending"`
	Running bool   `json:"running"`
}

// Stats returns the current counters.
func (l *EventLog) Stats() EventLogStats {
	l.mu.Lock()
	pending := l.size
	l.mu.Unlock()
	return EventLogStats{
		Total:   l.total.Load(),
		Dropped: l.dropped.Load(),
		Written: l.written.Load(),
		Pending: pending,
		Running: l.running.Load(),
	}
}
