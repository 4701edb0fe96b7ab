package combat

import (
	"errors"
	"fmt"
)

// Action identifies a combat input.
type Action string

// Closed action vocabulary accepted from clients.
const (
	ActionLight       Action = "light"
	ActionHeavy       Action = "heavy"
	ActionAirLight    Action = "air_light"
	ActionGroundLight Action = "ground_light"
	ActionDash        Action = "dash"
	ActionGuard       Action = "guard"
	ActionParry       Action = "parry"
	ActionJump        Action = "jump"
)

// ErrUnknownAction is returned by ParseAction for identifiers outside the vocabulary.
var ErrUnknownAction = errors.New("unknown action")

var knownActions = map[Action]struct{}{
	ActionLight:       {},
	ActionHeavy:       {},
	ActionAirLight:    {},
	ActionGroundLight: {},
	ActionDash:        {},
	ActionGuard:       {},
	ActionParry:       {},
	ActionJump:        {},
}

// ParseAction validates a raw identifier at the system boundary.
// The resolver itself assumes well-formed input.
func ParseAction(s string) (Action, error) {
	a := Action(s)
	if _, ok := knownActions[a]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
	}
	return a, nil
}

// Actions returns the full vocabulary in a stable order.
func Actions() []Action {
	return []Action{
		ActionLight, ActionHeavy, ActionAirLight, ActionGroundLight,
		ActionDash, ActionGuard, ActionParry, ActionJump,
	}
}

// IsStrike reports whether the action spawns a hitbox on the combo path.
func (a Action) IsStrike() bool {
	switch a {
	case ActionLight, ActionHeavy, ActionAirLight, ActionGroundLight:
		return true
	}
	return false
}

// IsSpecial reports whether the action bypasses combo resolution.
func (a Action) IsSpecial() bool {
	switch a {
	case ActionParry, ActionDash, ActionGuard, ActionJump:
		return true
	}
	return false
}

func (a Action) String() string { return string(a) }
