// Package profile persists player records and ranks them.
package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Experience awards per finished match.
const (
	WinXP      = 100
	LossXP     = 50
	XPPerLevel = 1000 // level n needs n*XPPerLevel to advance
)

var (
	ErrNotFound      = errors.New("profile not found")
	ErrInvalidName   = errors.New("invalid profile name")
	ErrInvalidResult = errors.New("invalid match result")
)

// MaxNameLength bounds login names.
const MaxNameLength = 32

// Result is the outcome of a match from one side's point of view.
type Result string

const (
	ResultWin  Result = "win"
	ResultLoss Result = "loss"
	ResultDraw Result = "draw"
)

// ParseResult validates a result string.
func ParseResult(s string) (Result, error) {
	switch r := Result(s); r {
	case ResultWin, ResultLoss, ResultDraw:
		return r, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidResult, s)
}

// Profile is a persistent player record.
type Profile struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Level  int    `json:"level"`
	XP     int    `json:"xp"`
	Wins   int    `json:"wins"`
	Losses int    `json:"losses"`
}

// New returns a level 1 profile.
func New(id int64, name string) Profile {
	return Profile{ID: id, Name: name, Level: 1}
}

// MatchRecord is one side's summary of a finished match.
type MatchRecord struct {
	UserID      int64         `json:"userId"`
	OpponentID  int64         `json:"opponentId"` // 0 for bots
	Result      Result        `json:"result"`
	DamageDealt int           `json:"damageDealt"`
	DamageTaken int           `json:"damageTaken"`
	Length      time.Duration `json:"length"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// ApplyResult folds one match result into p: win/loss counters, then
// experience with carry-over level ups.
func ApplyResult(p Profile, r Result) Profile {
	switch r {
	case ResultWin:
		p.Wins++
	case ResultLoss:
		p.Losses++
	}

	gained := LossXP
	if r == ResultWin {
		gained = WinXP
	}
	if p.Level < 1 {
		p.Level = 1
	}

	p.XP += gained
	for p.XP >= p.Level*XPPerLevel {
		p.XP -= p.Level * XPPerLevel
		p.Level++
	}
	return p
}

// NormalizeName trims and validates a login name.
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > MaxNameLength {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return name, nil
}

// Store persists profiles and match history.
type Store interface {
	GetOrCreate(ctx context.Context, name string) (Profile, error)
	Get(ctx context.Context, id int64) (Profile, error)
	RecordMatch(ctx context.Context, rec MatchRecord) (Profile, error)
	All(ctx context.Context) ([]Profile, error)
	Close() error
}
