// Package match hosts live duels. A Match owns both combat states
// exclusively and serializes every resolver call behind its own mutex.
package match

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"duel-arena/internal/combat"
)

var (
	ErrNotParticipant = errors.New("not a participant of this match")
	ErrWrongTarget    = errors.New("target is not the opponent")
	ErrMatchOver      = errors.New("match is over")
	ErrUnknownMatch   = errors.New("unknown match")
	ErrTooManyMatches = errors.New("too many live matches")
)

// Mode distinguishes ranked pairings from practice against a bot.
type Mode string

const (
	ModeRanked   Mode = "ranked"
	ModePractice Mode = "practice"
)

// EndReason records why a match finished.
type EndReason string

const (
	EndKO         EndReason = "ko"
	EndForfeit    EndReason = "forfeit"
	EndDisconnect EndReason = "disconnect"
	EndShutdown   EndReason = "shutdown"
)

// Arena bounds positions. Hurtboxes are clamped inside it.
type Arena struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// DefaultArena matches the 1280x720 render surface.
func DefaultArena() Arena {
	return Arena{Width: 1280, Height: 720}
}

// Strikes only extend to the right, so a side pinned against the left wall
// cannot be hit. The first side starts at SpawnX and the second
// OpponentSpawnX further right, inside light-strike reach of the first.
const (
	SpawnX         = 100
	OpponentSpawnX = 50
)

// Participant is one side of a match.
type Participant struct {
	ID        string `json:"id"` // session id, unique per connection
	ProfileID int64  `json:"profileId,omitempty"`
	Name      string `json:"name"`
	Bot       bool   `json:"bot,omitempty"`
}

// SideStats accumulates per-side counters for the summary.
type SideStats struct {
	Actions     int `json:"actions"`
	Rejected    int `json:"rejected"`
	Hits        int `json:"hits"`
	Parried     int `json:"parried"` // hits this side parried
	Guarded     int `json:"guarded"` // hits this side guarded
	DamageDealt int `json:"damageDealt"`
	DamageTaken int `json:"damageTaken"`
}

// Summary is produced exactly once, when the match finishes.
type Summary struct {
	MatchID  string         `json:"matchId"`
	Mode     Mode           `json:"mode"`
	Players  [2]Participant `json:"players"`
	Stats    [2]SideStats   `json:"stats"`
	Winner   string         `json:"winner,omitempty"` // participant id, empty on draw
	Reason   EndReason      `json:"reason"`
	Duration time.Duration  `json:"-"`
}

// ResultFor reports win, loss or draw from id's point of view.
func (s Summary) ResultFor(id string) string {
	switch s.Winner {
	case "":
		return "draw"
	case id:
		return "win"
	}
	return "loss"
}

// Match is a live duel between two participants.
type Match struct {
	mu sync.Mutex

	id       string
	mode     Mode
	resolver *combat.Resolver
	arena    Arena

	players [2]Participant
	states  [2]*combat.CombatState
	stats   [2]SideStats
	// connected[i] is set when side i's last strike landed; it unlocks
	// on-hit cancel rules for that side's next action only.
	connected [2]bool

	startedAt time.Time
	over      bool
	summary   Summary

	onFinish func(Summary)
}

func newMatch(id string, mode Mode, r *combat.Resolver, arena Arena, players [2]Participant, weapons [2]combat.Weapon) *Match {
	m := &Match{
		id:        id,
		mode:      mode,
		resolver:  r,
		arena:     arena,
		players:   players,
		startedAt: r.Now(),
	}
	for i := range m.states {
		m.states[i] = combat.NewCombatState(weapons[i], r.Tuning())
	}
	hb := m.states[0].Hurtbox
	m.states[0].SetPosition(hb.X+SpawnX, hb.Y)
	m.states[1].SetPosition(hb.X+SpawnX+OpponentSpawnX, hb.Y)
	return m
}

// ID returns the match id.
func (m *Match) ID() string { return m.id }

// Mode returns the match mode.
func (m *Match) Mode() Mode { return m.mode }

// Players returns both participants.
func (m *Match) Players() [2]Participant { return m.players }

// Opponent returns the other side of id.
func (m *Match) Opponent(id string) (Participant, error) {
	i, err := m.side(id)
	if err != nil {
		return Participant{}, err
	}
	return m.players[1-i], nil
}

func (m *Match) side(id string) (int, error) {
	for i, p := range m.players {
		if p.ID == id {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrNotParticipant, id)
}

// Act resolves an action for player id.
func (m *Match) Act(id string, action combat.Action) (combat.Outcome, error) {
	i, err := m.side(id)
	if err != nil {
		return combat.Outcome{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.over {
		return combat.Outcome{}, ErrMatchOver
	}

	ctx := combat.ActionContext{OnHit: m.connected[i]}
	m.connected[i] = false

	out := m.resolver.Resolve(m.states[i], action, ctx)
	m.stats[i].Actions++
	if !out.OK {
		m.stats[i].Rejected++
	}
	return out, nil
}

// Attack tests attacker's live hitbox against target. A hit that takes
// the target to 0 hp finishes the match.
func (m *Match) Attack(attackerID, targetID string, damage int) (combat.HitResult, error) {
	a, err := m.side(attackerID)
	if err != nil {
		return combat.HitResult{}, err
	}
	d, err := m.side(targetID)
	if err != nil {
		return combat.HitResult{}, err
	}
	if a == d {
		return combat.HitResult{}, fmt.Errorf("%w: %s", ErrWrongTarget, targetID)
	}

	m.mu.Lock()
	if m.over {
		m.mu.Unlock()
		return combat.HitResult{}, ErrMatchOver
	}

	res := m.resolver.AttemptHit(m.states[a], m.states[d], damage)
	if res.Hit {
		m.stats[a].Hits++
		// a parried strike never counts as connecting for on-hit cancels
		switch {
		case res.Parried:
			m.stats[d].Parried++
		case res.Guarded:
			m.connected[a] = true
			m.stats[d].Guarded++
		default:
			m.connected[a] = true
			m.stats[a].DamageDealt += res.Applied
			m.stats[d].DamageTaken += res.Applied
		}
	}

	var finished *Summary
	if hp, ok := res.HP.Get(); ok && hp == 0 {
		s := m.finishLocked(EndKO, m.players[a].ID)
		finished = &s
	}
	m.mu.Unlock()

	if finished != nil {
		m.notify(*finished)
	}
	return res, nil
}

// Move places player id's hurtbox, clamped to the arena.
func (m *Match) Move(id string, x, y float64) error {
	i, err := m.side(id)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.over {
		return ErrMatchOver
	}
	hb := m.states[i].Hurtbox
	m.states[i].SetPosition(clamp(x, 0, m.arena.Width-hb.W), clamp(y, 0, m.arena.Height-hb.H))
	return nil
}

// Equip swaps player id's weapon. Takes effect on the next strike.
func (m *Match) Equip(id string, w combat.Weapon) error {
	i, err := m.side(id)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.over {
		return ErrMatchOver
	}
	m.states[i].SetWeapon(w)
	return nil
}

// Sweep clears expired hitboxes on both sides.
func (m *Match) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.over {
		return 0
	}
	return m.resolver.Sweep(m.states[0], m.states[1])
}

// Finish ends the match. winner is a participant id or empty for a draw.
// It returns false if the match had already finished.
func (m *Match) Finish(reason EndReason, winner string) (Summary, bool) {
	m.mu.Lock()
	if m.over {
		s := m.summary
		m.mu.Unlock()
		return s, false
	}
	s := m.finishLocked(reason, winner)
	m.mu.Unlock()

	m.notify(s)
	return s, true
}

// Forfeit ends the match in favour of id's opponent.
func (m *Match) Forfeit(id string, reason EndReason) (Summary, bool, error) {
	opp, err := m.Opponent(id)
	if err != nil {
		return Summary{}, false, err
	}
	s, ok := m.Finish(reason, opp.ID)
	return s, ok, nil
}

// Over reports whether the match has finished.
func (m *Match) Over() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.over
}

func (m *Match) finishLocked(reason EndReason, winner string) Summary {
	m.over = true
	m.summary = Summary{
		MatchID:  m.id,
		Mode:     m.mode,
		Players:  m.players,
		Stats:    m.stats,
		Winner:   winner,
		Reason:   reason,
		Duration: m.resolver.Now().Sub(m.startedAt),
	}
	return m.summary
}

func (m *Match) notify(s Summary) {
	if m.onFinish != nil {
		m.onFinish(s)
	}
}

// SideView is the serializable state of one side.
type SideView struct {
	Participant
	State combat.StateView `json:"state"`
	Stats SideStats        `json:"stats"`
}

// View is a point-in-time copy of the match.
type View struct {
	ID        string      `json:"id"`
	Mode      Mode        `json:"mode"`
	Sides     [2]SideView `json:"sides"`
	StartedAt int64       `json:"startedAt"`
	Over      bool        `json:"over"`
	Arena     Arena       `json:"arena"`
}

// Snapshot copies the match state under the lock.
func (m *Match) Snapshot() View {
	m.mu.Lock()
	defer m.mu.Unlock()

	v := View{
		ID:        m.id,
		Mode:      m.mode,
		StartedAt: m.startedAt.UnixMilli(),
		Over:      m.over,
		Arena:     m.arena,
	}
	for i := range m.states {
		v.Sides[i] = SideView{
			Participant: m.players[i],
			State:       m.states[i].Snapshot(),
			Stats:       m.stats[i],
		}
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
