package combat

import (
	"errors"
	"fmt"
	"sort"

	"duel-arena/internal/data"
)

// Weapon holds the stats the resolver uses for hitbox sizing and timing.
// Reach scales hitbox width, AttackSpeed divides hitbox active time.
type Weapon struct {
	ID          string  `json:"id" yaml:"id"`
	Name        string  `json:"name" yaml:"name"`
	Reach       float64 `json:"reach" yaml:"reach"`
	AttackSpeed float64 `json:"attackSpeed" yaml:"attackSpeed"`
}

// DefaultWeaponID is equipped when a combatant has not chosen a weapon.
const DefaultWeaponID = "sword"

// ErrInvalidWeapon marks weapon data the resolver cannot use.
var ErrInvalidWeapon = errors.New("invalid weapon")

// ErrUnknownWeapon is returned for ids missing from the registry.
var ErrUnknownWeapon = errors.New("unknown weapon")

// Validate checks the stats are usable as a multiplier and divisor.
func (w Weapon) Validate() error {
	if w.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidWeapon)
	}
	if w.Reach <= 0 {
		return fmt.Errorf("%w: %s reach must be positive, got %v", ErrInvalidWeapon, w.ID, w.Reach)
	}
	if w.AttackSpeed <= 0 {
		return fmt.Errorf("%w: %s attackSpeed must be positive, got %v", ErrInvalidWeapon, w.ID, w.AttackSpeed)
	}
	return nil
}

type weaponFile struct {
	Weapons []Weapon `json:"weapons" yaml:"weapons"`
}

// WeaponRegistry is the immutable weapon table.
type WeaponRegistry struct {
	byID  map[string]Weapon
	order []string
}

// NewWeaponRegistry validates the weapons and indexes them by id.
func NewWeaponRegistry(weapons []Weapon) (*WeaponRegistry, error) {
	if len(weapons) == 0 {
		return nil, fmt.Errorf("%w: registry is empty", ErrInvalidWeapon)
	}
	r := &WeaponRegistry{byID: make(map[string]Weapon, len(weapons))}
	for _, w := range weapons {
		if err := w.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.byID[w.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %s", ErrInvalidWeapon, w.ID)
		}
		r.byID[w.ID] = w
		r.order = append(r.order, w.ID)
	}
	return r, nil
}

// LoadWeapons reads `{weapons: [...]}` from a JSON or YAML file.
func LoadWeapons(path string) (*WeaponRegistry, error) {
	var f weaponFile
	if err := data.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("load weapons: %w", err)
	}
	return NewWeaponRegistry(f.Weapons)
}

// Get looks a weapon up by id.
func (r *WeaponRegistry) Get(id string) (Weapon, error) {
	w, ok := r.byID[id]
	if !ok {
		return Weapon{}, fmt.Errorf("%w: %q", ErrUnknownWeapon, id)
	}
	return w, nil
}

// Default returns the sword if registered, otherwise the first weapon loaded.
func (r *WeaponRegistry) Default() Weapon {
	if w, ok := r.byID[DefaultWeaponID]; ok {
		return w
	}
	return r.byID[r.order[0]]
}

// All returns every weapon sorted by id.
func (r *WeaponRegistry) All() []Weapon {
	out := make([]Weapon, 0, len(r.byID))
	for _, w := range r.byID {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
