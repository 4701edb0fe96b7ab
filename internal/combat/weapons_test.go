package combat

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testWeapons() []Weapon {
	return []Weapon{
		{ID: "sword", Name: "Sword", Reach: 1.0, AttackSpeed: 1.0},
		{ID: "spear", Name: "Spear", Reach: 1.5, AttackSpeed: 0.8},
		{ID: "dagger", Name: "Dagger", Reach: 0.6, AttackSpeed: 1.6},
	}
}

// TestWeaponRegistryGet tests lookup by id
func TestWeaponRegistryGet(t *testing.T) {
	reg, err := NewWeaponRegistry(testWeapons())
	require.NoError(t, err)

	w, err := reg.Get("spear")
	require.NoError(t, err)
	assert.Equal(t, 1.5, w.Reach)

	_, err = reg.Get("halberd")
	assert.ErrorIs(t, err, ErrUnknownWeapon)
}

// TestWeaponRegistryDefault prefers the sword
func TestWeaponRegistryDefault(t *testing.T) {
	reg, err := NewWeaponRegistry(testWeapons())
	require.NoError(t, err)
	assert.Equal(t, "sword", reg.Default().ID)

	reg, err = NewWeaponRegistry([]Weapon{{ID: "club", Reach: 1, AttackSpeed: 1}})
	require.NoError(t, err)
	assert.Equal(t, "club", reg.Default().ID)
}

// TestWeaponRegistryAllSorted tests listing order
func TestWeaponRegistryAllSorted(t *testing.T) {
	reg, err := NewWeaponRegistry(testWeapons())
	require.NoError(t, err)

	var ids []string
	for _, w := range reg.All() {
		ids = append(ids, w.ID)
	}
	assert.Equal(t, []string{"dagger", "spear", "sword"}, ids)
}

// TestWeaponValidation rejects stats the resolver cannot divide by
func TestWeaponValidation(t *testing.T) {
	tests := []struct {
		name    string
		weapons []Weapon
	}{
		{"empty", nil},
		{"missing id", []Weapon{{Reach: 1, AttackSpeed: 1}}},
		{"zero reach", []Weapon{{ID: "a", Reach: 0, AttackSpeed: 1}}},
		{"zero speed", []Weapon{{ID: "a", Reach: 1, AttackSpeed: 0}}},
		{"duplicate", []Weapon{{ID: "a", Reach: 1, AttackSpeed: 1}, {ID: "a", Reach: 2, AttackSpeed: 1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewWeaponRegistry(tt.weapons)
			assert.ErrorIs(t, err, ErrInvalidWeapon)
		})
	}
}

// TestLoadWeaponsJSON loads the JSON form
func TestLoadWeaponsJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weapons.json")
	body := `{"weapons":[{"id":"sword","name":"Sword","reach":1,"attackSpeed":1},{"id":"axe","name":"Axe","reach":1.2,"attackSpeed":0.75}]}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	reg, err := LoadWeapons(path)
	require.NoError(t, err)

	axe, err := reg.Get("axe")
	require.NoError(t, err)
	assert.Equal(t, 0.75, axe.AttackSpeed)
}
