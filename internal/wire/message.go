// Package wire defines the websocket message envelope and its codecs.
package wire

import (
	"errors"
	"fmt"

	"duel-arena/internal/combat"
	"duel-arena/internal/loadout"
	"duel-arena/internal/match"
	"duel-arena/internal/profile"
)

// Type names a message.
type Type string

// Client to server.
const (
	TypePing       Type = "ping"
	TypeLogin      Type = "login"
	TypeQueue      Type = "queue"
	TypePractice   Type = "practice"
	TypeSetLoadout Type = "set_loadout"
	TypeUseSkill   Type = "use_skill"
	TypeAction     Type = "action"
	TypeAttack     Type = "attack"
	TypeMove       Type = "move"
	TypeLeave      Type = "leave"
)

// Server to client.
const (
	TypeWelcome       Type = "welcome"
	TypePong          Type = "pong"
	TypeLoginOK       Type = "login_ok"
	TypeQueued        Type = "queued"
	TypeMatchStart    Type = "match_start"
	TypeActionResult  Type = "action_result"
	TypeHitResult     Type = "hit_result"
	TypeState         Type = "state"
	TypeMatchEnd      Type = "match_end"
	TypeProfile       Type = "profile"
	TypeLoadoutOK     Type = "loadout_ok"
	TypeSkillExecuted Type = "skill_executed"
	TypeError         Type = "error"
)

var clientTypes = map[Type]struct{}{
	TypePing: {}, TypeLogin: {}, TypeQueue: {}, TypePractice: {},
	TypeSetLoadout: {}, TypeUseSkill: {}, TypeAction: {}, TypeAttack: {},
	TypeMove: {}, TypeLeave: {},
}

var (
	ErrUnknownType  = errors.New("unknown message type")
	ErrMissingField = errors.New("missing field")
)

// Error codes carried in TypeError messages.
const (
	CodeBadMessage     = "bad_message"
	CodeNotLoggedIn    = "not_logged_in"
	CodeNotInMatch     = "not_in_match"
	CodeAlreadyInMatch = "already_in_match"
	CodeInvalidAction  = "invalid_action"
	CodeInvalidSkill   = "invalid_skill"
	CodeInvalidLoadout = "invalid_loadout"
	CodeNoLoadout      = "no_loadout"
	CodeSkillCooldown  = "skill_cooldown"
	CodeRateLimited    = "rate_limited"
	CodeServerBusy     = "server_busy"
	CodeInternal       = "internal"
)

// Message is the single envelope for both directions. Only the fields
// relevant to Type are set.
type Message struct {
	Type Type `json:"type"`

	// login
	Name string `json:"name,omitempty"`
	// practice
	Difficulty string `json:"difficulty,omitempty"`
	// queue, practice, set_loadout
	Weapon string `json:"weapon,omitempty"`
	// set_loadout
	Skills []loadout.SkillDef `json:"skills,omitempty"`
	// use_skill, skill_executed
	Index *int `json:"index,omitempty"`
	// action
	Action string `json:"action,omitempty"`
	// attack
	Target string `json:"target,omitempty"`
	Damage int    `json:"damage,omitempty"`
	// move
	X *float64 `json:"x,omitempty"`
	Y *float64 `json:"y,omitempty"`

	ID       string           `json:"id,omitempty"`   // welcome: session id
	Time     int64            `json:"time,omitempty"` // pong: server unix ms
	User     *profile.Profile `json:"user,omitempty"`
	MatchID  string           `json:"matchId,omitempty"`
	Opponent string           `json:"opponent,omitempty"`
	Result   *ActionResult    `json:"result,omitempty"`
	Hit      *HitReport       `json:"hit,omitempty"`
	State    *match.View      `json:"state,omitempty"`
	Summary  *match.Summary   `json:"summary,omitempty"`
	LengthMs int64            `json:"lengthMs,omitempty"`
	Skill    *SkillView       `json:"skill,omitempty"`

	Code         string `json:"code,omitempty"`
	Error        string `json:"message,omitempty"`
	RetryAfterMs int64  `json:"retryAfterMs,omitempty"`
}

// Validate checks that a client message carries what its type needs.
func (m *Message) Validate() error {
	if _, ok := clientTypes[m.Type]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownType, m.Type)
	}
	switch m.Type {
	case TypeLogin:
		if m.Name == "" {
			return fmt.Errorf("%w: name", ErrMissingField)
		}
	case TypeUseSkill:
		if m.Index == nil {
			return fmt.Errorf("%w: index", ErrMissingField)
		}
	case TypeAction:
		if m.Action == "" {
			return fmt.Errorf("%w: action", ErrMissingField)
		}
	case TypeMove:
		if m.X == nil || m.Y == nil {
			return fmt.Errorf("%w: x, y", ErrMissingField)
		}
	case TypeSetLoadout:
		if m.Weapon == "" {
			return fmt.Errorf("%w: weapon", ErrMissingField)
		}
	}
	return nil
}

// Errorf builds a TypeError message.
func Errorf(code, format string, args ...any) *Message {
	return &Message{Type: TypeError, Code: code, Error: fmt.Sprintf(format, args...)}
}

// ComboView is the serializable combo progress.
type ComboView struct {
	Chain []string `json:"chain"`
	Index int      `json:"index"`
}

// ActionResult is the wire form of a resolved action.
type ActionResult struct {
	Player       string        `json:"player"`
	Action       combat.Action `json:"action"`
	OK           bool          `json:"ok"`
	Reason       combat.Reason `json:"reason,omitempty"`
	RetryAfterMs int64         `json:"retryAfterMs,omitempty"`
	Cancelled    bool          `json:"cancelled,omitempty"`
	Combo        *ComboView    `json:"combo,omitempty"`
	Hitbox       *combat.Box   `json:"hitbox,omitempty"`
}

// NewActionResult converts a resolver outcome.
func NewActionResult(player string, a combat.Action, out combat.Outcome) *ActionResult {
	r := &ActionResult{
		Player:       player,
		Action:       a,
		OK:           out.OK,
		Reason:       out.Reason,
		RetryAfterMs: out.RetryAfter.Milliseconds(),
		Cancelled:    out.Cancelled,
		Hitbox:       out.Hitbox.Ptr(),
	}
	if p, ok := out.Combo.Get(); ok {
		r.Combo = &ComboView{Chain: p.Chain.Strings(), Index: p.Index}
	}
	return r
}

// HitReport is the wire form of a hit attempt.
type HitReport struct {
	Attacker string `json:"attacker"`
	Target   string `json:"target"`
	Damage   int    `json:"damage"`
	Hit      bool   `json:"hit"`
	Parried  bool   `json:"parried,omitempty"`
	Guarded  bool   `json:"guarded,omitempty"`
	HP       *int   `json:"hp,omitempty"`
	Gauge    *int   `json:"gauge,omitempty"`
}

// NewHitReport converts a hit resolver result.
func NewHitReport(attacker, target string, damage int, res combat.HitResult) *HitReport {
	return &HitReport{
		Attacker: attacker,
		Target:   target,
		Damage:   damage,
		Hit:      res.Hit,
		Parried:  res.Parried,
		Guarded:  res.Guarded,
		HP:       res.HP.Ptr(),
		Gauge:    res.Gauge.Ptr(),
	}
}

// SkillView is an executed skill.
type SkillView struct {
	loadout.SkillDef
	Cost       int   `json:"cost"`
	CooldownMs int64 `json:"cooldownMs"`
}

// NewSkillView converts a loadout skill.
func NewSkillView(s loadout.Skill) *SkillView {
	return &SkillView{SkillDef: s.SkillDef, Cost: s.Cost, CooldownMs: s.CooldownMs()}
}

// IntPtr and FloatPtr help build optional fields.
func IntPtr(v int) *int { return &v }

func FloatPtr(v float64) *float64 { return &v }
