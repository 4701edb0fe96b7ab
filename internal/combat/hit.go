package combat

import "time"

// HitResult describes one hit attempt. Exactly one of Parried, Guarded
// or a populated HP holds when Hit is true.
type HitResult struct {
	Hit     bool
	Parried bool
	Guarded bool
	Gauge   Option[int] // defender gauge after a guard
	HP      Option[int] // defender hp after a clean hit
	Applied int         // hp actually removed
}

// AttemptHit resolves attacker's active hitbox against defender's hurtbox.
//
// Precedence once the boxes overlap: parry window, then guard with
// gauge remaining, then hp damage. Any connecting hit consumes the
// attacker's hitbox so a strike lands at most once. Negative damage is
// treated as zero.
func (r *Resolver) AttemptHit(attacker, defender *CombatState, damage int) HitResult {
	now := r.clock.Now()

	box, ok := attacker.Hitbox.Get()
	if !ok || now.After(attacker.HitboxActiveUntil) {
		return HitResult{}
	}
	if !box.Intersects(defender.Hurtbox) {
		return HitResult{}
	}

	attacker.Hitbox = None[Box]()
	if damage < 0 {
		damage = 0
	}

	if now.Before(defender.ParryWindowUntil) {
		// one parry window absorbs one hit
		defender.ParryWindowUntil = time.Time{}
		return HitResult{Hit: true, Parried: true}
	}

	if last, ok := defender.LastAction.Get(); ok && last == ActionGuard && defender.Gauge > 0 {
		defender.Gauge = max(0, defender.Gauge-damage)
		return HitResult{Hit: true, Guarded: true, Gauge: Some(defender.Gauge)}
	}

	before := defender.HP
	defender.HP = max(0, defender.HP-damage)
	return HitResult{Hit: true, HP: Some(defender.HP), Applied: before - defender.HP}
}
