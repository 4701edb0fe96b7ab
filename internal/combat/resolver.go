// Package combat is the authoritative melee resolution core: the action
// state machine (cooldown gates, cancel rules, combo chains, hitbox
// generation), hit detection with parry/guard precedence, and the expiry
// sweep for transient hitboxes.
//
// Every function here is a synchronous transform over caller-owned state.
// Callers must serialize all access to the states of one match.
package combat

import (
	"math"
	"time"
)

// Reason explains a rejected action.
type Reason string

const (
	ReasonParryCooldown Reason = "parry_cooldown"
	ReasonDashCooldown  Reason = "dash_cooldown"
)

// ActionContext carries caller-supplied facts about the resolution.
type ActionContext struct {
	OnHit bool // the previous strike connected; unlocks on-hit cancel rules
}

// Outcome is the result of resolving one action.
// OK is false only for cooldown violations, in which case RetryAfter
// is the remaining wait.
type Outcome struct {
	OK         bool
	Reason     Reason
	RetryAfter time.Duration
	Cancelled  bool // accepted through a cancel rule
	Combo      Option[ComboProgress]
	Hitbox     Option[Box] // hitbox produced by this call, if any
}

// Resolver applies actions and hits to combat states.
// It holds only immutable configuration and is safe to share between matches.
type Resolver struct {
	rules  *RuleTable
	clock  Clock
	tuning Tuning
}

// NewResolver builds a resolver around an injected rule table and clock.
// A nil clock falls back to wall-clock time.
func NewResolver(rules *RuleTable, clock Clock, tuning Tuning) *Resolver {
	if clock == nil {
		clock = SystemClock{}
	}
	if rules == nil {
		rules = &RuleTable{}
	}
	return &Resolver{rules: rules, clock: clock, tuning: tuning}
}

// Rules returns the rule table in use.
func (r *Resolver) Rules() *RuleTable { return r.rules }

// Tuning returns the balance constants in use.
func (r *Resolver) Tuning() Tuning { return r.tuning }

// Now reads the shared clock.
func (r *Resolver) Now() time.Time { return r.clock.Now() }

// Resolve applies action to s.
func (r *Resolver) Resolve(s *CombatState, action Action, ctx ActionContext) Outcome {
	now := r.clock.Now()

	switch action {
	case ActionParry:
		if now.Before(s.ParryRecoverUntil) {
			return Outcome{Reason: ReasonParryCooldown, RetryAfter: s.ParryRecoverUntil.Sub(now)}
		}
		s.ParryWindowUntil = now.Add(r.tuning.ParryWindow)
		s.ParryRecoverUntil = now.Add(r.tuning.ParryRecover)
		return r.special(s, action)

	case ActionDash:
		if now.Before(s.DashReadyAt) {
			return Outcome{Reason: ReasonDashCooldown, RetryAfter: s.DashReadyAt.Sub(now)}
		}
		s.DashReadyAt = now.Add(r.tuning.DashCooldown)
		return r.special(s, action)

	case ActionGuard:
		return r.special(s, action)

	case ActionJump:
		s.Airborne = true
		return r.special(s, action)
	}

	// A cancel short-circuits the combo path and spawns no hitbox.
	if last, ok := s.LastAction.Get(); ok {
		if _, live := r.rules.Cancel(last, action, ctx.OnHit); live {
			s.resetCombo()
			s.LastAction = Some(action)
			return Outcome{OK: true, Cancelled: true}
		}
	}

	r.advanceCombo(s, action)
	s.LastAction = Some(action)

	out := Outcome{OK: true, Combo: s.Combo}
	if action.IsStrike() {
		out.Hitbox = Some(r.spawnHitbox(s, action, now))
	}
	return out
}

// special finishes parry/dash/guard/jump: combo state never survives them.
func (r *Resolver) special(s *CombatState, action Action) Outcome {
	s.resetCombo()
	s.LastAction = Some(action)
	return Outcome{OK: true}
}

func (r *Resolver) advanceCombo(s *CombatState, action Action) {
	if p, ok := s.Combo.Get(); ok && p.Index < len(p.Chain) && p.Chain[p.Index] == action {
		p.Index++
		if p.Index >= len(p.Chain) {
			s.resetCombo()
			return
		}
		s.Combo = Some(p)
		return
	}

	// No chain, or the input broke the current one: a wrong input may
	// immediately open a different chain.
	// A single-element chain completes on its opener instead of being
	// adopted at index 1, so progress never sits at index == len(chain).
	if chain, ok := r.rules.Opener(action); ok && len(chain) > 1 {
		s.Combo = Some(ComboProgress{Chain: chain, Index: 1})
		return
	}
	s.resetCombo()
}

func (r *Resolver) spawnHitbox(s *CombatState, action Action, now time.Time) Box {
	width := r.tuning.LightWidth
	if action == ActionHeavy {
		width = r.tuning.HeavyWidth
	}

	box := Box{
		X: s.Hurtbox.Right(),
		Y: s.Hurtbox.Y,
		W: width * s.Weapon.Reach,
		H: r.tuning.HitboxHeight,
	}
	s.Hitbox = Some(box)
	s.HitboxActiveUntil = now.Add(r.activeFor(s.Weapon))
	return box
}

// activeFor returns round(BaseActive / attackSpeed) in whole milliseconds.
func (r *Resolver) activeFor(w Weapon) time.Duration {
	speed := w.AttackSpeed
	if speed <= 0 {
		speed = 1
	}
	ms := math.Round(float64(r.tuning.BaseActive.Milliseconds()) / speed)
	return time.Duration(ms) * time.Millisecond
}
