package combat

// Sweep clears every hitbox whose active window has passed and returns
// how many were cleared. A hitbox is still live at exactly its expiry instant.
func (r *Resolver) Sweep(states ...*CombatState) int {
	now := r.clock.Now()
	cleared := 0
	for _, s := range states {
		if s == nil || s.Hitbox.IsNone() {
			continue
		}
		if now.After(s.HitboxActiveUntil) {
			s.Hitbox = None[Box]()
			cleared++
		}
	}
	return cleared
}
