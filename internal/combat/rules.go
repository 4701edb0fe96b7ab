package combat

import (
	"errors"
	"fmt"

	"duel-arena/internal/data"
)

// ComboRule is an ordered chain of actions. Matching always starts at element 0.
// Elements may be chain-internal labels that are not part of the action vocabulary.
type ComboRule []Action

// CancelRule lets To follow From outside normal combo sequencing.
// When OnHit is set the rule only applies if the caller reports an on-hit context.
type CancelRule struct {
	From  Action `json:"from" yaml:"from"`
	To    Action `json:"to" yaml:"to"`
	OnHit bool   `json:"onHit,omitempty" yaml:"onHit,omitempty"`
}

// RuleConfig is the on-disk shape of the rule table.
type RuleConfig struct {
	ComboChains []ComboRule  `json:"comboChains" yaml:"comboChains"`
	CancelRules []CancelRule `json:"cancelRules" yaml:"cancelRules"`
}

// ErrInvalidRules marks a structurally invalid rule table.
var ErrInvalidRules = errors.New("invalid rule table")

// RuleTable is the immutable combo/cancel table consulted by the resolver.
// It is built once and shared read-only across all matches.
type RuleTable struct {
	chains  []ComboRule
	cancels []CancelRule
}

// NewRuleTable validates and copies the given rules.
func NewRuleTable(cfg RuleConfig) (*RuleTable, error) {
	t := &RuleTable{
		chains:  make([]ComboRule, 0, len(cfg.ComboChains)),
		cancels: make([]CancelRule, 0, len(cfg.CancelRules)),
	}

	for i, chain := range cfg.ComboChains {
		if len(chain) == 0 {
			return nil, fmt.Errorf("%w: combo chain %d is empty", ErrInvalidRules, i)
		}
		for j, a := range chain {
			if a == "" {
				return nil, fmt.Errorf("%w: combo chain %d has empty action at %d", ErrInvalidRules, i, j)
			}
		}
		t.chains = append(t.chains, append(ComboRule(nil), chain...))
	}

	for i, r := range cfg.CancelRules {
		if r.From == "" || r.To == "" {
			return nil, fmt.Errorf("%w: cancel rule %d needs from and to", ErrInvalidRules, i)
		}
		t.cancels = append(t.cancels, r)
	}

	return t, nil
}

// LoadRuleTable reads a rule table from a JSON or YAML file.
func LoadRuleTable(path string) (*RuleTable, error) {
	var cfg RuleConfig
	if err := data.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("load rule table: %w", err)
	}
	return NewRuleTable(cfg)
}

// Opener returns the first chain (in table order) that starts with a.
func (t *RuleTable) Opener(a Action) (ComboRule, bool) {
	for _, c := range t.chains {
		if c[0] == a {
			return c, true
		}
	}
	return nil, false
}

// Cancel returns the first live cancel rule for the from -> to transition.
func (t *RuleTable) Cancel(from, to Action, onHit bool) (CancelRule, bool) {
	for _, r := range t.cancels {
		if r.From == from && r.To == to && (!r.OnHit || onHit) {
			return r, true
		}
	}
	return CancelRule{}, false
}

// Config returns a copy of the table in its on-disk shape.
func (t *RuleTable) Config() RuleConfig {
	cfg := RuleConfig{
		ComboChains: make([]ComboRule, len(t.chains)),
		CancelRules: append([]CancelRule(nil), t.cancels...),
	}
	for i, c := range t.chains {
		cfg.ComboChains[i] = append(ComboRule(nil), c...)
	}
	return cfg
}

// Strings converts the chain to plain identifiers for payloads.
func (c ComboRule) Strings() []string {
	out := make([]string, len(c))
	for i, a := range c {
		out[i] = string(a)
	}
	return out
}
