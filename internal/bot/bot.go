// Package bot is the scripted practice opponent. It drives its side of a
// match through the same entry points a connected player uses.
package bot

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"duel-arena/internal/combat"
	"duel-arena/internal/match"
)

// Difficulty sets how fast the bot reacts and how often it guards.
type Difficulty string

const (
	Easy   Difficulty = "easy"
	Normal Difficulty = "normal"
	Hard   Difficulty = "hard"
)

var ErrUnknownDifficulty = errors.New("unknown difficulty")

// ParseDifficulty accepts easy, normal or hard. Empty means easy.
func ParseDifficulty(s string) (Difficulty, error) {
	switch d := Difficulty(s); d {
	case "":
		return Easy, nil
	case Easy, Normal, Hard:
		return d, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDifficulty, s)
}

// ReactionDelay is the pause between two decisions.
func (d Difficulty) ReactionDelay() time.Duration {
	switch d {
	case Normal:
		return 400 * time.Millisecond
	case Hard:
		return 250 * time.Millisecond
	}
	return 600 * time.Millisecond
}

// GuardChance is the probability of guarding after a retreat.
func (d Difficulty) GuardChance() float64 {
	switch d {
	case Normal:
		return 0.3
	case Hard:
		return 0.5
	}
	return 0.1
}

// State is the bot's position in its decision cycle.
type State string

const (
	StateIdle     State = "idle"
	StateApproach State = "approach"
	StateAttack   State = "attack"
	StateRetreat  State = "retreat"
	StateGuard    State = "guard"
)

// Decision is what the bot did on one step.
type Decision string

const (
	MoveTowards Decision = "move_towards"
	Strike      Decision = "attack"
	MoveAway    Decision = "move_away"
	Guard       Decision = "guard"
	Wait        Decision = "idle"
)

const (
	// approachGap leaves the light hitbox overlapping the target's left edge.
	approachGap   = 10
	retreatDist   = 100
	defaultDamage = 10
)

// Driver is the part of a match the bot plays through.
type Driver interface {
	Snapshot() match.View
	Move(id string, x, y float64) error
	Act(id string, action combat.Action) (combat.Outcome, error)
	Attack(attackerID, targetID string, damage int) (combat.HitResult, error)
}

// Turn reports one step.
type Turn struct {
	Decision Decision
	Action   combat.Action // empty when no action was resolved
	Outcome  combat.Outcome
	Hit      combat.Option[combat.HitResult]
}

// Config wires a Bot.
type Config struct {
	ID         string // the bot's participant id
	OpponentID string
	Difficulty Difficulty
	Damage     int
	Rand       *rand.Rand
	Log        *zap.Logger
	OnTurn     func(Turn) // called from the loop after every step
}

// Bot plays one side of a practice match.
type Bot struct {
	driver Driver
	cfg    Config
	log    *zap.Logger

	mu    sync.Mutex
	state State
	rng   *rand.Rand

	startOnce sync.Once
	stopOnce  sync.Once
	quit      chan struct{}
	wg        sync.WaitGroup
}

// New creates an idle bot. Call Start to run it on a timer.
func New(d Driver, cfg Config) *Bot {
	if cfg.Difficulty == "" {
		cfg.Difficulty = Easy
	}
	if cfg.Damage <= 0 {
		cfg.Damage = defaultDamage
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Bot{
		driver: d,
		cfg:    cfg,
		log:    log.With(zap.String("bot", cfg.ID), zap.String("difficulty", string(cfg.Difficulty))),
		state:  StateIdle,
		rng:    cfg.Rand,
		quit:   make(chan struct{}),
	}
}

// State returns the current cycle state.
func (b *Bot) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Step makes one decision and plays it. It returns match.ErrMatchOver once
// the match has finished.
func (b *Bot) Step() (Turn, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var (
		turn Turn
		err  error
	)
	switch b.state {
	case StateIdle:
		turn.Decision = MoveTowards
		err = b.approach()
		b.state = StateApproach
	case StateApproach:
		turn, err = b.strike()
		b.state = StateAttack
	case StateAttack:
		turn.Decision = MoveAway
		err = b.retreat()
		b.state = StateRetreat
	case StateRetreat:
		if b.rng.Float64() < b.cfg.Difficulty.GuardChance() {
			turn.Decision = Guard
			turn.Action = combat.ActionGuard
			turn.Outcome, err = b.driver.Act(b.cfg.ID, combat.ActionGuard)
			b.state = StateGuard
		} else {
			turn.Decision = Wait
			b.state = StateIdle
		}
	case StateGuard:
		turn.Decision = Wait
		b.state = StateIdle
	}
	return turn, err
}

func (b *Bot) sides() (self, opp combat.StateView, err error) {
	v := b.driver.Snapshot()
	if v.Over {
		return self, opp, match.ErrMatchOver
	}
	found := 0
	for _, s := range v.Sides {
		switch s.ID {
		case b.cfg.ID:
			self = s.State
			found++
		case b.cfg.OpponentID:
			opp = s.State
			found++
		}
	}
	if found != 2 {
		return self, opp, match.ErrNotParticipant
	}
	return self, opp, nil
}

// Strikes only extend to the right, so the bot lines up on the
// opponent's left.
func (b *Bot) approach() error {
	self, opp, err := b.sides()
	if err != nil {
		return err
	}
	return b.driver.Move(b.cfg.ID, opp.Hurtbox.X-self.Hurtbox.W-approachGap, opp.Hurtbox.Y)
}

func (b *Bot) retreat() error {
	self, _, err := b.sides()
	if err != nil {
		return err
	}
	return b.driver.Move(b.cfg.ID, self.Hurtbox.X-retreatDist, self.Hurtbox.Y)
}

func (b *Bot) strike() (Turn, error) {
	turn := Turn{Decision: Strike, Action: combat.ActionLight}
	out, err := b.driver.Act(b.cfg.ID, combat.ActionLight)
	if err != nil {
		return turn, err
	}
	turn.Outcome = out
	if !out.OK || out.Hitbox.IsNone() {
		return turn, nil
	}
	res, err := b.driver.Attack(b.cfg.ID, b.cfg.OpponentID, b.cfg.Damage)
	if err != nil {
		return turn, err
	}
	turn.Hit = combat.Some(res)
	return turn, nil
}

// Start runs Step every reaction delay until Stop or the match ends.
func (b *Bot) Start() {
	b.startOnce.Do(func() {
		b.wg.Add(1)
		go b.loop()
		b.log.Debug("bot started")
	})
}

// Stop halts the loop and waits for it to exit. Safe to call repeatedly,
// but not from the bot's own goroutine (OnTurn or a match end hook fired
// by one of its strikes).
func (b *Bot) Stop() {
	b.stopOnce.Do(func() {
		close(b.quit)
	})
	b.wg.Wait()
}

func (b *Bot) loop() {
	defer b.wg.Done()

	timer := time.NewTimer(b.cfg.Difficulty.ReactionDelay())
	defer timer.Stop()

	for {
		select {
		case <-b.quit:
			return
		case <-timer.C:
		}

		turn, err := b.Step()
		if errors.Is(err, match.ErrMatchOver) {
			b.log.Debug("bot stopped, match over")
			return
		}
		if err != nil {
			b.log.Warn("bot step failed", zap.Error(err))
		} else if b.cfg.OnTurn != nil {
			b.cfg.OnTurn(turn)
		}
		timer.Reset(b.cfg.Difficulty.ReactionDelay())
	}
}
