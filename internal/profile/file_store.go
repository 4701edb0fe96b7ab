package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/quasilyte/gdata"
)

// MaxHistoryPerUser bounds the match history kept per profile on disk.
const MaxHistoryPerUser = 50

const indexKey = "profiles_index"

// blobStore is the subset of *gdata.Manager the file store needs.
type blobStore interface {
	LoadItem(key string) ([]byte, error)
	SaveItem(key string, data []byte) error
}

type fileIndex struct {
	NextID int64            `json:"nextId"`
	Names  map[string]int64 `json:"names"`
}

// FileStore keeps profiles as JSON blobs in the per-user application data
// directory managed by gdata. Suitable for single-node deployments.
type FileStore struct {
	mu    sync.Mutex
	blobs blobStore
	index fileIndex
}

// OpenFileStore opens (or initializes) the store for appName.
func OpenFileStore(appName string) (*FileStore, error) {
	m, err := gdata.Open(gdata.Config{AppName: appName})
	if err != nil {
		return nil, fmt.Errorf("open gdata %s: %w", appName, err)
	}
	return newFileStore(m)
}

func newFileStore(blobs blobStore) (*FileStore, error) {
	s := &FileStore{
		blobs: blobs,
		index: fileIndex{Names: make(map[string]int64)},
	}
	raw, err := blobs.LoadItem(indexKey)
	if err != nil {
		return nil, fmt.Errorf("load profile index: %w", err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &s.index); err != nil {
			return nil, fmt.Errorf("parse profile index: %w", err)
		}
		if s.index.Names == nil {
			s.index.Names = make(map[string]int64)
		}
	}
	return s, nil
}

func profileKey(id int64) string { return "profile_" + strconv.FormatInt(id, 10) }
func historyKey(id int64) string { return "history_" + strconv.FormatInt(id, 10) }

func (s *FileStore) GetOrCreate(_ context.Context, name string) (Profile, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return Profile{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.index.Names[name]; ok {
		return s.load(id)
	}

	s.index.NextID++
	p := New(s.index.NextID, name)
	if err := s.save(p); err != nil {
		s.index.NextID--
		return Profile{}, err
	}
	s.index.Names[name] = p.ID
	if err := s.saveJSON(indexKey, s.index); err != nil {
		return Profile{}, err
	}
	return p, nil
}

func (s *FileStore) Get(_ context.Context, id int64) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(id)
}

func (s *FileStore) RecordMatch(_ context.Context, rec MatchRecord) (Profile, error) {
	if _, err := ParseResult(string(rec.Result)); err != nil {
		return Profile{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.load(rec.UserID)
	if err != nil {
		return Profile{}, err
	}

	var history []MatchRecord
	if err := s.loadJSON(historyKey(p.ID), &history); err != nil {
		return Profile{}, err
	}
	history = append(history, rec)
	if len(history) > MaxHistoryPerUser {
		history = history[len(history)-MaxHistoryPerUser:]
	}
	if err := s.saveJSON(historyKey(p.ID), history); err != nil {
		return Profile{}, err
	}

	p = ApplyResult(p, rec.Result)
	if err := s.save(p); err != nil {
		return Profile{}, err
	}
	return p, nil
}

func (s *FileStore) All(_ context.Context) ([]Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Profile, 0, len(s.index.Names))
	for _, id := range s.index.Names {
		p, err := s.load(id)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// History returns the most recent matches recorded for a user.
func (s *FileStore) History(id int64) ([]MatchRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var history []MatchRecord
	if err := s.loadJSON(historyKey(id), &history); err != nil {
		return nil, err
	}
	return history, nil
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) load(id int64) (Profile, error) {
	var p Profile
	raw, err := s.blobs.LoadItem(profileKey(id))
	if err != nil {
		return Profile{}, fmt.Errorf("load profile %d: %w", id, err)
	}
	if len(raw) == 0 {
		return Profile{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return Profile{}, fmt.Errorf("parse profile %d: %w", id, err)
	}
	return p, nil
}

func (s *FileStore) save(p Profile) error {
	return s.saveJSON(profileKey(p.ID), p)
}

// loadJSON leaves v untouched when the item does not exist yet.
func (s *FileStore) loadJSON(key string, v any) error {
	raw, err := s.blobs.LoadItem(key)
	if err != nil {
		return fmt.Errorf("load %s: %w", key, err)
	}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	return nil
}

func (s *FileStore) saveJSON(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.blobs.SaveItem(key, raw); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}
