package match

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"duel-arena/internal/combat"
)

// ManagerConfig wires a Manager.
type ManagerConfig struct {
	Resolver   *combat.Resolver
	Arena      Arena
	MaxMatches int // 0 means unlimited
	Events     *EventLog
	Log        *zap.Logger
}

// Manager is the registry of live matches. Its lock guards only the map;
// each Match serializes its own state.
type Manager struct {
	mu      sync.RWMutex
	matches map[string]*Match

	resolver   *combat.Resolver
	arena      Arena
	maxMatches int
	events     *EventLog
	log        *zap.Logger
	nextID     atomic.Uint64

	onEndMu sync.RWMutex
	onEnd   []func(Summary)
}

// NewManager creates an empty registry.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.Arena == (Arena{}) {
		cfg.Arena = DefaultArena()
	}
	return &Manager{
		matches:    make(map[string]*Match),
		resolver:   cfg.Resolver,
		arena:      cfg.Arena,
		maxMatches: cfg.MaxMatches,
		events:     cfg.Events,
		log:        cfg.Log,
	}
}

// OnEnd registers a callback invoked once per finished match, outside
// any match lock.
func (mg *Manager) OnEnd(fn func(Summary)) {
	mg.onEndMu.Lock()
	mg.onEnd = append(mg.onEnd, fn)
	mg.onEndMu.Unlock()
}

// Resolver returns the shared resolver.
func (mg *Manager) Resolver() *combat.Resolver { return mg.resolver }

// Create starts a match between a and b with the given weapons.
func (mg *Manager) Create(mode Mode, a, b Participant, wa, wb combat.Weapon) (*Match, error) {
	if a.ID == b.ID {
		return nil, fmt.Errorf("%w: both sides are %s", ErrWrongTarget, a.ID)
	}

	id := "m" + strconv.FormatUint(mg.nextID.Add(1), 10)
	m := newMatch(id, mode, mg.resolver, mg.arena, [2]Participant{a, b}, [2]combat.Weapon{wa, wb})
	m.onFinish = mg.finished

	mg.mu.Lock()
	if mg.maxMatches > 0 && len(mg.matches) >= mg.maxMatches {
		mg.mu.Unlock()
		return nil, ErrTooManyMatches
	}
	mg.matches[id] = m
	mg.mu.Unlock()

	mg.log.Info("match started",
		zap.String("match", id),
		zap.String("mode", string(mode)),
		zap.String("a", a.Name),
		zap.String("b", b.Name))
	mg.emit(EventMatchStart, id, "", m.Players())
	return m, nil
}

// Get returns a live match.
func (mg *Manager) Get(id string) (*Match, error) {
	mg.mu.RLock()
	m, ok := mg.matches[id]
	mg.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMatch, id)
	}
	return m, nil
}

// End finishes a live match.
func (mg *Manager) End(id string, reason EndReason, winner string) (Summary, error) {
	m, err := mg.Get(id)
	if err != nil {
		return Summary{}, err
	}
	s, _ := m.Finish(reason, winner)
	return s, nil
}

// List returns live matches ordered by creation.
func (mg *Manager) List() []*Match {
	mg.mu.RLock()
	out := make([]*Match, 0, len(mg.matches))
	for _, m := range mg.matches {
		out = append(out, m)
	}
	mg.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return matchSeq(out[i].id) < matchSeq(out[j].id) })
	return out
}

func matchSeq(id string) uint64 {
	n, _ := strconv.ParseUint(id[1:], 10, 64)
	return n
}

// ForEach calls fn for every live match without holding the registry lock.
func (mg *Manager) ForEach(fn func(*Match)) {
	for _, m := range mg.List() {
		fn(m)
	}
}

// Count returns the number of live matches.
func (mg *Manager) Count() int {
	mg.mu.RLock()
	defer mg.mu.RUnlock()
	return len(mg.matches)
}

// Shutdown finishes every live match as a draw.
func (mg *Manager) Shutdown() {
	mg.ForEach(func(m *Match) {
		m.Finish(EndShutdown, "")
	})
}

func (mg *Manager) finished(s Summary) {
	mg.mu.Lock()
	delete(mg.matches, s.MatchID)
	mg.mu.Unlock()

	mg.log.Info("match ended",
		zap.String("match", s.MatchID),
		zap.String("reason", string(s.Reason)),
		zap.String("winner", s.Winner),
		zap.Duration("duration", s.Duration))
	mg.emit(EventMatchEnd, s.MatchID, "", s)

	mg.onEndMu.RLock()
	hooks := append([]func(Summary){}, mg.onEnd...)
	mg.onEndMu.RUnlock()
	for _, fn := range hooks {
		fn(s)
	}
}

// ActionPayload is the event log payload for a resolved action.
type ActionPayload struct {
	Action       combat.Action `json:"action"`
	OK           bool          `json:"ok"`
	Reason       combat.Reason `json:"reason,omitempty"`
	RetryAfterMs int64         `json:"retryAfterMs,omitempty"`
	Cancelled    bool          `json:"cancelled,omitempty"`
	Hitbox       *combat.Box   `json:"hitbox,omitempty"`
}

// HitPayload is the event log payload for a hit attempt.
type HitPayload struct {
	Target  string `json:"target"`
	Damage  int    `json:"damage"`
	Hit     bool   `json:"hit"`
	Parried bool   `json:"parried,omitempty"`
	Guarded bool   `json:"guarded,omitempty"`
	HP      *int   `json:"hp,omitempty"`
	Gauge   *int   `json:"gauge,omitempty"`
}

// RecordAction logs an action outcome to the event log.
func (mg *Manager) RecordAction(matchID, playerID string, a combat.Action, out combat.Outcome) {
	mg.emit(EventAction, matchID, playerID, ActionPayload{
		Action:       a,
		OK:           out.OK,
		Reason:       out.Reason,
		RetryAfterMs: out.RetryAfter.Milliseconds(),
		Cancelled:    out.Cancelled,
		Hitbox:       out.Hitbox.Ptr(),
	})
}

// RecordHit logs a hit attempt to the event log.
func (mg *Manager) RecordHit(matchID, attackerID, targetID string, damage int, res combat.HitResult) {
	mg.emit(EventHit, matchID, attackerID, HitPayload{
		Target:  targetID,
		Damage:  damage,
		Hit:     res.Hit,
		Parried: res.Parried,
		Guarded: res.Guarded,
		HP:      res.HP.Ptr(),
		Gauge:   res.Gauge.Ptr(),
	})
}

func (mg *Manager) emit(typ EventType, matchID, playerID string, payload any) {
	if mg.events != nil {
		mg.events.Emit(typ, matchID, playerID, payload)
	}
}
