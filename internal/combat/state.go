package combat

import "time"

// Tuning holds the balance constants of the resolver.
// These are server-authoritative and cannot be modified by clients.
type Tuning struct {
	ParryWindow  time.Duration // Parry nullifies hits for this long
	ParryRecover time.Duration // Lockout before the next parry
	DashCooldown time.Duration
	BaseActive   time.Duration // Hitbox lifetime at attackSpeed 1.0
	LightWidth   float64       // Base width for light/air/ground strikes
	HeavyWidth   float64       // Base width for heavy
	HitboxHeight float64
	MaxHP        int
	MaxGauge     int
	StartGauge   int
	SpawnHurtbox Box
}

// DefaultTuning returns the reference balance values.
func DefaultTuning() Tuning {
	return Tuning{
		ParryWindow:  200 * time.Millisecond,
		ParryRecover: 1000 * time.Millisecond,
		DashCooldown: 500 * time.Millisecond,
		BaseActive:   150 * time.Millisecond,
		LightWidth:   20,
		HeavyWidth:   30, // 3:2 against light
		HitboxHeight: 10,
		MaxHP:        100,
		MaxGauge:     100,
		StartGauge:   50,
		SpawnHurtbox: Box{X: 0, Y: 0, W: 40, H: 80},
	}
}

// ComboProgress tracks a chain in flight. Index is the next expected element.
type ComboProgress struct {
	Chain ComboRule
	Index int
}

// CombatState is the mutable record of one combatant in one match.
// It is owned by the match that created it and is never persisted.
type CombatState struct {
	Hurtbox           Box
	Hitbox            Option[Box]
	HitboxActiveUntil time.Time

	Combo      Option[ComboProgress]
	LastAction Option[Action]

	DashReadyAt       time.Time
	ParryWindowUntil  time.Time
	ParryRecoverUntil time.Time

	HP       int
	Gauge    int
	Airborne bool // set by jump; nothing in the core clears it

	Weapon Weapon
}

// NewCombatState creates a fresh combatant at the spawn hurtbox.
func NewCombatState(weapon Weapon, tuning Tuning) *CombatState {
	gauge := tuning.StartGauge
	if gauge > tuning.MaxGauge {
		gauge = tuning.MaxGauge
	}
	return &CombatState{
		Hurtbox: tuning.SpawnHurtbox,
		HP:      tuning.MaxHP,
		Gauge:   gauge,
		Weapon:  weapon,
	}
}

// SetPosition moves the hurtbox. An active hitbox stays where it was spawned.
func (s *CombatState) SetPosition(x, y float64) {
	s.Hurtbox.X = x
	s.Hurtbox.Y = y
}

// SetWeapon swaps the equipped weapon. It affects the next strike only.
func (s *CombatState) SetWeapon(w Weapon) {
	s.Weapon = w
}

func (s *CombatState) resetCombo() {
	s.Combo = None[ComboProgress]()
}

// StateView is the serializable form of a CombatState.
// Timestamps are unix milliseconds, 0 meaning "never set".
type StateView struct {
	Hurtbox           Box      `json:"hurtbox"`
	Hitbox            *Box     `json:"hitbox,omitempty"`
	HitboxActiveUntil int64    `json:"hitboxActiveUntil,omitempty"`
	ComboChain        []string `json:"comboChain,omitempty"`
	ComboIndex        int      `json:"comboIndex"`
	LastAction        string   `json:"lastAction,omitempty"`
	DashReadyAt       int64    `json:"dashReadyAt"`
	ParryWindowUntil  int64    `json:"parryWindowUntil"`
	ParryRecoverUntil int64    `json:"parryRecoverUntil"`
	HP                int      `json:"hp"`
	Gauge             int      `json:"gauge"`
	Airborne          bool     `json:"airborne"`
	Weapon            Weapon   `json:"weapon"`
}

// Snapshot copies the state into a StateView.
func (s *CombatState) Snapshot() StateView {
	v := StateView{
		Hurtbox:           s.Hurtbox,
		Hitbox:            s.Hitbox.Ptr(),
		DashReadyAt:       unixMillis(s.DashReadyAt),
		ParryWindowUntil:  unixMillis(s.ParryWindowUntil),
		ParryRecoverUntil: unixMillis(s.ParryRecoverUntil),
		HP:                s.HP,
		Gauge:             s.Gauge,
		Airborne:          s.Airborne,
		Weapon:            s.Weapon,
	}
	if s.Hitbox.IsSome() {
		v.HitboxActiveUntil = unixMillis(s.HitboxActiveUntil)
	}
	if p, ok := s.Combo.Get(); ok {
		v.ComboChain = p.Chain.Strings()
		v.ComboIndex = p.Index
	}
	if a, ok := s.LastAction.Get(); ok {
		v.LastAction = string(a)
	}
	return v
}

func unixMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
