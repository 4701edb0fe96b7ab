package combat

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRules(t *testing.T) *RuleTable {
	t.Helper()
	rules, err := NewRuleTable(RuleConfig{
		ComboChains: []ComboRule{
			{ActionLight, ActionLight, ActionHeavy},
			{ActionHeavy, ActionLight},
			{ActionLight, ActionAirLight}, // shadowed by the first chain
		},
		CancelRules: []CancelRule{
			{From: ActionLight, To: ActionHeavy, OnHit: true},
			{From: ActionDash, To: ActionAirLight},
		},
	})
	require.NoError(t, err)
	return rules
}

// TestRuleTableOpenerPicksFirstChain verifies table order decides ties
func TestRuleTableOpenerPicksFirstChain(t *testing.T) {
	rules := testRules(t)

	chain, ok := rules.Opener(ActionLight)
	require.True(t, ok)
	assert.Equal(t, ComboRule{ActionLight, ActionLight, ActionHeavy}, chain)

	_, ok = rules.Opener(ActionGroundLight)
	assert.False(t, ok)
}

// TestRuleTableCancel checks on-hit gating
func TestRuleTableCancel(t *testing.T) {
	rules := testRules(t)

	_, ok := rules.Cancel(ActionLight, ActionHeavy, false)
	assert.False(t, ok, "on-hit rule must not apply without on-hit context")

	rule, ok := rules.Cancel(ActionLight, ActionHeavy, true)
	require.True(t, ok)
	assert.True(t, rule.OnHit)

	_, ok = rules.Cancel(ActionDash, ActionAirLight, false)
	assert.True(t, ok)
	_, ok = rules.Cancel(ActionDash, ActionAirLight, true)
	assert.True(t, ok, "unconditional rule applies in on-hit context too")
}

// TestNewRuleTableRejectsMalformed covers structural validation
func TestNewRuleTableRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		cfg  RuleConfig
	}{
		{"empty chain", RuleConfig{ComboChains: []ComboRule{{}}}},
		{"blank action", RuleConfig{ComboChains: []ComboRule{{ActionLight, ""}}}},
		{"cancel without target", RuleConfig{CancelRules: []CancelRule{{From: ActionLight}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRuleTable(tt.cfg)
			assert.ErrorIs(t, err, ErrInvalidRules)
		})
	}
}

// TestRuleTableIsImmutable ensures the table does not alias caller slices
func TestRuleTableIsImmutable(t *testing.T) {
	cfg := RuleConfig{ComboChains: []ComboRule{{ActionLight, ActionHeavy}}}
	rules, err := NewRuleTable(cfg)
	require.NoError(t, err)

	cfg.ComboChains[0][0] = ActionJump
	_, ok := rules.Opener(ActionLight)
	assert.True(t, ok)

	out := rules.Config()
	out.ComboChains[0][1] = ActionJump
	chain, _ := rules.Opener(ActionLight)
	assert.Equal(t, ActionHeavy, chain[1])
}

// TestLoadRuleTableYAML loads the on-disk shape
func TestLoadRuleTableYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	body := `comboChains:
  - [light, light, heavy]
  - [heavy, launcher]
cancelRules:
  - from: light
    to: dash
  - from: heavy
    to: light
    onHit: true
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	rules, err := LoadRuleTable(path)
	require.NoError(t, err)

	chain, ok := rules.Opener(ActionHeavy)
	require.True(t, ok)
	assert.Equal(t, []string{"heavy", "launcher"}, chain.Strings())

	_, ok = rules.Cancel(ActionHeavy, ActionLight, true)
	assert.True(t, ok)
}

// TestLoadRuleTableMissingFile surfaces the underlying error
func TestLoadRuleTableMissingFile(t *testing.T) {
	_, err := LoadRuleTable(filepath.Join(t.TempDir(), "nope.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
