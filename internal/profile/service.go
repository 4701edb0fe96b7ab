package profile

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Service fronts a Store and keeps the leaderboard in step with it.
type Service struct {
	store Store
	board *Leaderboard
	log   *zap.Logger
}

// NewService wires a store to a fresh leaderboard.
func NewService(store Store, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, board: NewLeaderboard(), log: log}
}

// Warm seeds the leaderboard from every stored profile.
func (s *Service) Warm(ctx context.Context) error {
	all, err := s.store.All(ctx)
	if err != nil {
		return fmt.Errorf("warm leaderboard: %w", err)
	}
	s.board.Load(all)
	s.log.Info("leaderboard warmed", zap.Int("profiles", len(all)))
	return nil
}

// Login returns the profile for name, creating it on first use.
func (s *Service) Login(ctx context.Context, name string) (Profile, error) {
	p, err := s.store.GetOrCreate(ctx, name)
	if err != nil {
		return Profile{}, err
	}
	s.board.Update(p)
	return p, nil
}

// Get loads a profile by id.
func (s *Service) Get(ctx context.Context, id int64) (Profile, error) {
	return s.store.Get(ctx, id)
}

// Record stores one side of a finished match and re-ranks the player.
func (s *Service) Record(ctx context.Context, rec MatchRecord) (Profile, error) {
	p, err := s.store.RecordMatch(ctx, rec)
	if err != nil {
		s.log.Error("record match failed",
			zap.Int64("user", rec.UserID),
			zap.String("result", string(rec.Result)),
			zap.Error(err))
		return Profile{}, err
	}
	s.board.Update(p)
	s.log.Debug("match recorded",
		zap.String("name", p.Name),
		zap.String("result", string(rec.Result)),
		zap.Int("level", p.Level),
		zap.Int("xp", p.XP))
	return p, nil
}

// Leaderboard exposes the ranking.
func (s *Service) Leaderboard() *Leaderboard { return s.board }

// Close closes the underlying store.
func (s *Service) Close() error { return s.store.Close() }
