// Package loadout validates player skill choices against the skill catalog.
package loadout

import (
	"errors"
	"fmt"
	"time"

	"duel-arena/internal/combat"
	"duel-arena/internal/data"
)

// SkillsPerLoadout is the fixed number of skill slots.
const SkillsPerLoadout = 2

// CooldownPerCost is the cooldown charged for each point of skill cost.
const CooldownPerCost = time.Second

var (
	ErrInvalidSkill   = errors.New("invalid skill")
	ErrInvalidLoadout = errors.New("invalid loadout")
	ErrInvalidCatalog = errors.New("invalid skill catalog")
)

// SkillDef is a player-authored skill: a trigger, an action and optional modifiers.
type SkillDef struct {
	Trigger   string   `json:"trigger" yaml:"trigger"`
	Action    string   `json:"action" yaml:"action"`
	Modifiers []string `json:"modifiers" yaml:"modifiers"`
}

// Skill is a validated SkillDef with its derived cost.
type Skill struct {
	SkillDef
	Cost     int           `json:"cost"`
	Cooldown time.Duration `json:"-"`
}

// CooldownMs is the cooldown in milliseconds for payloads.
func (s Skill) CooldownMs() int64 { return s.Cooldown.Milliseconds() }

// Loadout is a weapon plus exactly two skills.
type Loadout struct {
	Weapon combat.Weapon `json:"weapon"`
	Skills []Skill       `json:"skills"`
}

type catalogFile struct {
	Triggers  []string `json:"triggers" yaml:"triggers"`
	Actions   []string `json:"actions" yaml:"actions"`
	Modifiers []string `json:"modifiers" yaml:"modifiers"`
}

// Catalog is the immutable set of allowed skill building blocks.
type Catalog struct {
	triggers  map[string]struct{}
	actions   map[string]struct{}
	modifiers map[string]struct{}
}

// NewCatalog builds a catalog from the three vocabularies.
func NewCatalog(triggers, actions, modifiers []string) (*Catalog, error) {
	if len(triggers) == 0 || len(actions) == 0 {
		return nil, fmt.Errorf("%w: triggers and actions are required", ErrInvalidCatalog)
	}
	return &Catalog{
		triggers:  toSet(triggers),
		actions:   toSet(actions),
		modifiers: toSet(modifiers),
	}, nil
}

// LoadCatalog reads `{triggers, actions, modifiers}` from JSON or YAML.
func LoadCatalog(path string) (*Catalog, error) {
	var f catalogFile
	if err := data.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("load skill catalog: %w", err)
	}
	return NewCatalog(f.Triggers, f.Actions, f.Modifiers)
}

func toSet(values []string) map[string]struct{} {
	m := make(map[string]struct{}, len(values))
	for _, v := range values {
		m[v] = struct{}{}
	}
	return m
}

// Build validates def and derives cost = 1 + modifiers and cooldown = cost seconds.
func (c *Catalog) Build(def SkillDef) (Skill, error) {
	if _, ok := c.triggers[def.Trigger]; !ok {
		return Skill{}, fmt.Errorf("%w: unknown trigger %q", ErrInvalidSkill, def.Trigger)
	}
	if _, ok := c.actions[def.Action]; !ok {
		return Skill{}, fmt.Errorf("%w: unknown action %q", ErrInvalidSkill, def.Action)
	}
	for _, m := range def.Modifiers {
		if _, ok := c.modifiers[m]; !ok {
			return Skill{}, fmt.Errorf("%w: unknown modifier %q", ErrInvalidSkill, m)
		}
	}

	cost := 1 + len(def.Modifiers)
	def.Modifiers = append([]string(nil), def.Modifiers...)
	return Skill{
		SkillDef: def,
		Cost:     cost,
		Cooldown: time.Duration(cost) * CooldownPerCost,
	}, nil
}

// WeaponSource resolves weapon ids. *combat.WeaponRegistry satisfies it.
type WeaponSource interface {
	Get(id string) (combat.Weapon, error)
}

// Validate builds a full loadout. The weapon must exist and exactly two
// skills must build cleanly.
func (c *Catalog) Validate(weaponID string, defs []SkillDef, weapons WeaponSource) (Loadout, error) {
	if len(defs) != SkillsPerLoadout {
		return Loadout{}, fmt.Errorf("%w: need %d skills, got %d", ErrInvalidLoadout, SkillsPerLoadout, len(defs))
	}

	w, err := weapons.Get(weaponID)
	if err != nil {
		return Loadout{}, fmt.Errorf("%w: %w", ErrInvalidLoadout, err)
	}

	skills := make([]Skill, 0, len(defs))
	for i, def := range defs {
		s, err := c.Build(def)
		if err != nil {
			return Loadout{}, fmt.Errorf("skill %d: %w", i, err)
		}
		skills = append(skills, s)
	}
	return Loadout{Weapon: w, Skills: skills}, nil
}

// Skill returns the skill in slot i.
func (l Loadout) Skill(i int) (Skill, bool) {
	if i < 0 || i >= len(l.Skills) {
		return Skill{}, false
	}
	return l.Skills[i], true
}

// Cooldowns tracks when each loadout slot can fire again.
// Not safe for concurrent use; the owning session serializes access.
type Cooldowns struct {
	readyAt [SkillsPerLoadout]time.Time
}

// Use fires slot at now if it is ready. When it is not, it returns the
// remaining wait and false.
func (c *Cooldowns) Use(slot int, s Skill, now time.Time) (time.Duration, bool) {
	if slot < 0 || slot >= len(c.readyAt) {
		return 0, false
	}
	if now.Before(c.readyAt[slot]) {
		return c.readyAt[slot].Sub(now), false
	}
	c.readyAt[slot] = now.Add(s.Cooldown)
	return 0, true
}

// Reset makes every slot ready.
func (c *Cooldowns) Reset() {
	c.readyAt = [SkillsPerLoadout]time.Time{}
}
