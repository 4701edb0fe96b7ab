package loadout

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duel-arena/internal/combat"
)

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := NewCatalog(
		[]string{"on_hit", "on_parry"},
		[]string{"heal", "shield"},
		[]string{"quick", "extended"},
	)
	require.NoError(t, err)
	return c
}

func testWeapons(t *testing.T) *combat.WeaponRegistry {
	t.Helper()
	reg, err := combat.NewWeaponRegistry([]combat.Weapon{
		{ID: "sword", Name: "Sword", Reach: 1, AttackSpeed: 1},
	})
	require.NoError(t, err)
	return reg
}

// TestBuildSkillCost checks cost and cooldown derivation
func TestBuildSkillCost(t *testing.T) {
	c := testCatalog(t)

	tests := []struct {
		name         string
		modifiers    []string
		wantCost     int
		wantCooldown time.Duration
	}{
		{"bare", nil, 1, time.Second},
		{"one modifier", []string{"quick"}, 2, 2 * time.Second},
		{"two modifiers", []string{"quick", "extended"}, 3, 3 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := c.Build(SkillDef{Trigger: "on_hit", Action: "heal", Modifiers: tt.modifiers})
			require.NoError(t, err)
			assert.Equal(t, tt.wantCost, s.Cost)
			assert.Equal(t, tt.wantCooldown, s.Cooldown)
			assert.Equal(t, tt.wantCooldown.Milliseconds(), s.CooldownMs())
		})
	}
}

// TestBuildSkillRejectsUnknown checks each vocabulary
func TestBuildSkillRejectsUnknown(t *testing.T) {
	c := testCatalog(t)

	tests := []struct {
		name string
		def  SkillDef
	}{
		{"trigger", SkillDef{Trigger: "on_jump", Action: "heal"}},
		{"action", SkillDef{Trigger: "on_hit", Action: "explode"}},
		{"modifier", SkillDef{Trigger: "on_hit", Action: "heal", Modifiers: []string{"quick", "huge"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Build(tt.def)
			assert.ErrorIs(t, err, ErrInvalidSkill)
		})
	}
}

// TestValidateLoadout covers slot count, weapon lookup and skill validity
func TestValidateLoadout(t *testing.T) {
	c := testCatalog(t)
	weapons := testWeapons(t)
	good := SkillDef{Trigger: "on_hit", Action: "heal"}
	bad := SkillDef{Trigger: "nope", Action: "heal"}

	l, err := c.Validate("sword", []SkillDef{good, good}, weapons)
	require.NoError(t, err)
	assert.Equal(t, "sword", l.Weapon.ID)
	assert.Len(t, l.Skills, 2)

	_, err = c.Validate("sword", []SkillDef{good}, weapons)
	assert.ErrorIs(t, err, ErrInvalidLoadout)

	_, err = c.Validate("sword", []SkillDef{good, good, good}, weapons)
	assert.ErrorIs(t, err, ErrInvalidLoadout)

	_, err = c.Validate("lance", []SkillDef{good, good}, weapons)
	assert.ErrorIs(t, err, ErrInvalidLoadout)
	assert.ErrorIs(t, err, combat.ErrUnknownWeapon)

	_, err = c.Validate("sword", []SkillDef{good, bad}, weapons)
	assert.ErrorIs(t, err, ErrInvalidSkill)
}

// TestLoadoutSkillSlot checks slot bounds
func TestLoadoutSkillSlot(t *testing.T) {
	c := testCatalog(t)
	l, err := c.Validate("sword", []SkillDef{
		{Trigger: "on_hit", Action: "heal"},
		{Trigger: "on_parry", Action: "shield", Modifiers: []string{"quick"}},
	}, testWeapons(t))
	require.NoError(t, err)

	s, ok := l.Skill(1)
	require.True(t, ok)
	assert.Equal(t, "shield", s.Action)

	_, ok = l.Skill(2)
	assert.False(t, ok)
	_, ok = l.Skill(-1)
	assert.False(t, ok)
}

// TestCooldowns checks per-slot readiness
func TestCooldowns(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	skill := Skill{Cost: 2, Cooldown: 2 * time.Second}
	var cd Cooldowns

	_, ok := cd.Use(0, skill, now)
	require.True(t, ok)

	wait, ok := cd.Use(0, skill, now.Add(500*time.Millisecond))
	assert.False(t, ok)
	assert.Equal(t, 1500*time.Millisecond, wait)

	_, ok = cd.Use(1, skill, now.Add(500*time.Millisecond))
	assert.True(t, ok, "slots are independent")

	_, ok = cd.Use(0, skill, now.Add(2*time.Second))
	assert.True(t, ok)

	_, ok = cd.Use(5, skill, now)
	assert.False(t, ok)

	cd.Reset()
	_, ok = cd.Use(0, skill, now)
	assert.True(t, ok)
}

// TestLoadCatalogYAML reads the on-disk shape
func TestLoadCatalogYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "skills.yaml")
	body := "triggers: [on_hit]\nactions: [heal]\nmodifiers: [quick]\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	c, err := LoadCatalog(path)
	require.NoError(t, err)
	_, err = c.Build(SkillDef{Trigger: "on_hit", Action: "heal", Modifiers: []string{"quick"}})
	assert.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("triggers: []\nactions: [heal]\n"), 0o644))
	_, err = LoadCatalog(path)
	assert.ErrorIs(t, err, ErrInvalidCatalog)
}
