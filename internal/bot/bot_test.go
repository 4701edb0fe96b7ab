package bot

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duel-arena/internal/combat"
	"duel-arena/internal/match"
)

// fixedSource makes rand.Float64 return v/(1<<63) forever.
type fixedSource int64

func (s fixedSource) Int63() int64 { return int64(s) }
func (fixedSource) Seed(int64) {}

const (
	alwaysGuard fixedSource = 0
	neverGuard  fixedSource = 7 << 60 // 0.875
)

var (
	human = match.Participant{ID: "s1", Name: "alice"}
	robot = match.Participant{ID: "bot-s1", Name: "bot", Bot: true}
)

func practice(t *testing.T) (*match.Manager, *match.Match, *combat.ManualClock) {
	t.Helper()
	rules, err := combat.NewRuleTable(combat.RuleConfig{})
	require.NoError(t, err)
	clock := combat.NewManualClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	mg := match.NewManager(match.ManagerConfig{Resolver: combat.NewResolver(rules, clock, combat.DefaultTuning())})
	sword := combat.Weapon{ID: "sword", Reach: 1, AttackSpeed: 1}
	m, err := mg.Create(match.ModePractice, human, robot, sword, sword)
	require.NoError(t, err)
	return mg, m, clock
}

func newBot(m *match.Match, d Difficulty, src rand.Source) *Bot {
	return New(m, Config{
		ID:         robot.ID,
		OpponentID: human.ID,
		Difficulty: d,
		Damage:     25,
		Rand:       rand.New(src),
	})
}

func side(m *match.Match, id string) combat.StateView {
	for _, s := range m.Snapshot().Sides {
		if s.ID == id {
			return s.State
		}
	}
	return combat.StateView{}
}

// TestDifficultyTable checks reaction delays and guard odds
func TestDifficultyTable(t *testing.T) {
	tests := []struct {
		in    string
		want  Difficulty
		delay time.Duration
		guard float64
	}{
		{"", Easy, 600 * time.Millisecond, 0.1},
		{"easy", Easy, 600 * time.Millisecond, 0.1},
		{"normal", Normal, 400 * time.Millisecond, 0.3},
		{"hard", Hard, 250 * time.Millisecond, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			d, err := ParseDifficulty(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, d)
			assert.Equal(t, tt.delay, d.ReactionDelay())
			assert.Equal(t, tt.guard, d.GuardChance())
		})
	}

	_, err := ParseDifficulty("nightmare")
	assert.ErrorIs(t, err, ErrUnknownDifficulty)
}

// TestBotCycleWithGuard walks the full decision cycle
func TestBotCycleWithGuard(t *testing.T) {
	_, m, clock := practice(t)
	require.NoError(t, m.Move(human.ID, 300, 100))
	b := newBot(m, Hard, alwaysGuard)

	turn, err := b.Step()
	require.NoError(t, err)
	assert.Equal(t, MoveTowards, turn.Decision)
	assert.Equal(t, StateApproach, b.State())
	assert.Equal(t, combat.Box{X: 250, Y: 100, W: 40, H: 80}, side(m, robot.ID).Hurtbox)

	turn, err = b.Step()
	require.NoError(t, err)
	assert.Equal(t, Strike, turn.Decision)
	assert.True(t, turn.Outcome.OK)
	res, ok := turn.Hit.Get()
	require.True(t, ok)
	assert.True(t, res.Hit)
	assert.Equal(t, 75, side(m, human.ID).HP)

	clock.Advance(time.Second)
	turn, err = b.Step()
	require.NoError(t, err)
	assert.Equal(t, MoveAway, turn.Decision)
	assert.Equal(t, 150.0, side(m, robot.ID).Hurtbox.X)

	turn, err = b.Step()
	require.NoError(t, err)
	assert.Equal(t, Guard, turn.Decision)
	assert.Equal(t, StateGuard, b.State())
	assert.Equal(t, "guard", side(m, robot.ID).LastAction)

	turn, err = b.Step()
	require.NoError(t, err)
	assert.Equal(t, Wait, turn.Decision)
	assert.Equal(t, StateIdle, b.State())
}

// TestBotRetreatWithoutGuard goes straight back to idle
func TestBotRetreatWithoutGuard(t *testing.T) {
	_, m, _ := practice(t)
	b := newBot(m, Easy, neverGuard)

	for i := 0; i < 3; i++ {
		_, err := b.Step()
		require.NoError(t, err)
	}
	turn, err := b.Step()
	require.NoError(t, err)
	assert.Equal(t, Wait, turn.Decision)
	assert.Equal(t, StateIdle, b.State())
}

// TestBotHitsFromSpawn lands a strike on a player who never moves
func TestBotHitsFromSpawn(t *testing.T) {
	_, m, clock := practice(t)
	b := newBot(m, Easy, neverGuard)
	spawn := side(m, human.ID).Hurtbox

	_, err := b.Step()
	require.NoError(t, err)
	assert.Equal(t, spawn.X-40-approachGap, side(m, robot.ID).Hurtbox.X)

	turn, err := b.Step()
	require.NoError(t, err)
	res, ok := turn.Hit.Get()
	require.True(t, ok)
	assert.True(t, res.Hit)
	assert.Equal(t, 75, side(m, human.ID).HP)

	// a second cycle connects again
	for i := 0; i < 3; i++ {
		clock.Advance(time.Second)
		_, err = b.Step()
		require.NoError(t, err)
	}
	clock.Advance(time.Second)
	turn, err = b.Step()
	require.NoError(t, err)
	assert.Equal(t, Strike, turn.Decision)
	assert.Equal(t, 50, side(m, human.ID).HP)
	assert.Equal(t, spawn, side(m, human.ID).Hurtbox)
}

// TestBotStopsAfterKO reports the finished match
func TestBotStopsAfterKO(t *testing.T) {
	_, m, clock := practice(t)
	require.NoError(t, m.Move(human.ID, 300, 0))
	b := newBot(m, Hard, neverGuard)

	var err error
	for i := 0; i < 40 && err == nil; i++ {
		_, err = b.Step()
		clock.Advance(time.Second)
	}
	assert.ErrorIs(t, err, match.ErrMatchOver)
	assert.True(t, m.Over())
	assert.Equal(t, 0, side(m, human.ID).HP)
}

// TestBotLoop runs the timer loop until Stop
func TestBotLoop(t *testing.T) {
	_, m, _ := practice(t)
	require.NoError(t, m.Move(human.ID, 300, 0))

	turns := make(chan Turn, 16)
	b := New(m, Config{
		ID:         robot.ID,
		OpponentID: human.ID,
		Difficulty: Hard,
		Rand:       rand.New(neverGuard),
		OnTurn: func(t Turn) {
			select {
			case turns <- t:
			default:
			}
		},
	})
	b.Start()
	b.Start()

	select {
	case turn := <-turns:
		assert.Equal(t, MoveTowards, turn.Decision)
	case <-time.After(2 * time.Second):
		t.Fatal("bot never stepped")
	}

	b.Stop()
	b.Stop()
}
