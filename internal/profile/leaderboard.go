package profile

import (
	"math/rand"
	"sync"
	"time"
)

// Leaderboard ranks profiles by wins, then level, then xp.
//
// Operations:
//   - Update: O(log n)
//   - Rank: O(log n)
//   - Top: O(log n + k)
type Leaderboard struct {
	mu   sync.RWMutex
	list *skipList
}

// LeaderboardEntry is one ranked row.
type LeaderboardEntry struct {
	Rank  int    `json:"rank"`
	Name  string `json:"name"`
	Wins  int    `json:"wins"`
	Level int    `json:"level"`
	XP    int    `json:"xp"`
}

// NewLeaderboard creates an empty leaderboard.
func NewLeaderboard() *Leaderboard {
	return &Leaderboard{
		list: newSkipList(rand.New(rand.NewSource(time.Now().UnixNano()))),
	}
}

// Update inserts or repositions a profile.
func (lb *Leaderboard) Update(p Profile) {
	lb.mu.Lock()
	lb.list.upsert(p.Name, StandingOf(p))
	lb.mu.Unlock()
}

// Load upserts every profile. Used at startup to seed the ranking.
func (lb *Leaderboard) Load(profiles []Profile) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	for _, p := range profiles {
		lb.list.upsert(p.Name, StandingOf(p))
	}
}

// Remove drops a profile from the ranking.
func (lb *Leaderboard) Remove(name string) bool {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.list.remove(name)
}

// Rank returns the 1-based rank of name, or 0 if unranked.
func (lb *Leaderboard) Rank(name string) int {
	lb.mu.RLock()
	defer lb.mu.RUnlock()
	return lb.list.rankOf(name)
}

// Lookup returns name's ranked row.
func (lb *Leaderboard) Lookup(name string) (LeaderboardEntry, bool) {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	st, ok := lb.list.index[name]
	if !ok {
		return LeaderboardEntry{}, false
	}
	return LeaderboardEntry{
		Rank:  lb.list.rankOf(name),
		Name:  name,
		Wins:  st.Wins,
		Level: st.Level,
		XP:    st.XP,
	}, true
}

// Top returns the best n entries.
func (lb *Leaderboard) Top(n int) []LeaderboardEntry {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	entries := lb.list.rangeOf(1, n)
	out := make([]LeaderboardEntry, len(entries))
	for i, e := range entries {
		out[i] = LeaderboardEntry{
			Rank:  i + 1,
			Name:  e.Name,
			Wins:  e.Standing.Wins,
			Level: e.Standing.Level,
			XP:    e.Standing.XP,
		}
	}
	return out
}

// Len returns the number of ranked profiles.
func (lb *Leaderboard) Len() int {
	lb.mu.RLock()
	defer lb.mu.RUnlock()
	return lb.list.length
}
