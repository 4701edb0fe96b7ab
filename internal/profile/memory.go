package profile

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore keeps everything in process memory.
// Used for tests and when no database is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	nextID  int64
	byID    map[int64]Profile
	byName  map[string]int64
	matches []MatchRecord
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[int64]Profile),
		byName: make(map[string]int64),
	}
}

func (s *MemoryStore) GetOrCreate(_ context.Context, name string) (Profile, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return Profile{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byName[name]; ok {
		return s.byID[id], nil
	}
	s.nextID++
	p := New(s.nextID, name)
	s.byID[p.ID] = p
	s.byName[name] = p.ID
	return p, nil
}

func (s *MemoryStore) Get(_ context.Context, id int64) (Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.byID[id]
	if !ok {
		return Profile{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return p, nil
}

func (s *MemoryStore) RecordMatch(_ context.Context, rec MatchRecord) (Profile, error) {
	if _, err := ParseResult(string(rec.Result)); err != nil {
		return Profile{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[rec.UserID]
	if !ok {
		return Profile{}, fmt.Errorf("%w: id %d", ErrNotFound, rec.UserID)
	}
	p = ApplyResult(p, rec.Result)
	s.byID[p.ID] = p
	s.matches = append(s.matches, rec)
	return p, nil
}

func (s *MemoryStore) All(_ context.Context) ([]Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Profile, 0, len(s.byID))
	for _, p := range s.byID {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Matches returns the recorded match history for a user.
func (s *MemoryStore) Matches(userID int64) []MatchRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []MatchRecord
	for _, m := range s.matches {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	return out
}

func (s *MemoryStore) Close() error { return nil }
