package profile

import "math/rand"

// Rank skip list with span counts for O(log n) rank queries, the same
// layout Redis uses for sorted sets. Entries are ordered by standing
// (best first) and then by name.

const (
	maxLevel         = 32
	levelProbability = 0.25
)

// Standing is the ranking key: wins, then level, then xp.
type Standing struct {
	Wins  int `json:"wins"`
	Level int `json:"level"`
	XP    int `json:"xp"`
}

// StandingOf extracts the ranking key of a profile.
func StandingOf(p Profile) Standing {
	return Standing{Wins: p.Wins, Level: p.Level, XP: p.XP}
}

func (a Standing) better(b Standing) bool {
	if a.Wins != b.Wins {
		return a.Wins > b.Wins
	}
	if a.Level != b.Level {
		return a.Level > b.Level
	}
	return a.XP > b.XP
}

type rankEntry struct {
	Name     string
	Standing Standing
}

// before reports whether a sorts ahead of b.
func (a rankEntry) before(b rankEntry) bool {
	if a.Standing != b.Standing {
		return a.Standing.better(b.Standing)
	}
	return a.Name < b.Name
}

type skipNode struct {
	entry rankEntry
	next  []*skipNode
	span  []int // distance to next[i]
}

// skipList is not safe for concurrent use; Leaderboard serializes it.
type skipList struct {
	head   *skipNode
	level  int
	length int
	index  map[string]Standing
	rng    *rand.Rand
}

func newSkipList(rng *rand.Rand) *skipList {
	return &skipList{
		head: &skipNode{
			next: make([]*skipNode, maxLevel),
			span: make([]int, maxLevel),
		},
		level: 1,
		index: make(map[string]Standing),
		rng:   rng,
	}
}

func (sl *skipList) randomLevel() int {
	level := 1
	for level < maxLevel && sl.rng.Float64() < levelProbability {
		level++
	}
	return level
}

// upsert inserts name or moves it to its new standing.
func (sl *skipList) upsert(name string, st Standing) {
	if old, ok := sl.index[name]; ok {
		if old == st {
			return
		}
		sl.remove(name)
	}

	e := rankEntry{Name: name, Standing: st}
	update := make([]*skipNode, maxLevel)
	rank := make([]int, maxLevel)

	x := sl.head
	for i := sl.level - 1; i >= 0; i-- {
		if i < sl.level-1 {
			rank[i] = rank[i+1]
		}
		for x.next[i] != nil && x.next[i].entry.before(e) {
			rank[i] += x.span[i]
			x = x.next[i]
		}
		update[i] = x
	}

	level := sl.randomLevel()
	if level > sl.level {
		for i := sl.level; i < level; i++ {
			rank[i] = 0
			update[i] = sl.head
			update[i].span[i] = sl.length
		}
		sl.level = level
	}

	node := &skipNode{
		entry: e,
		next:  make([]*skipNode, level),
		span:  make([]int, level),
	}
	for i := 0; i < level; i++ {
		node.next[i] = update[i].next[i]
		update[i].next[i] = node
		node.span[i] = update[i].span[i] - (rank[0] - rank[i])
		update[i].span[i] = rank[0] - rank[i] + 1
	}
	for i := level; i < sl.level; i++ {
		update[i].span[i]++
	}

	sl.length++
	sl.index[name] = st
}

func (sl *skipList) remove(name string) bool {
	st, ok := sl.index[name]
	if !ok {
		return false
	}
	e := rankEntry{Name: name, Standing: st}

	update := make([]*skipNode, maxLevel)
	x := sl.head
	for i := sl.level - 1; i >= 0; i-- {
		for x.next[i] != nil && x.next[i].entry.before(e) {
			x = x.next[i]
		}
		update[i] = x
	}

	node := x.next[0]
	if node == nil || node.entry.Name != name {
		return false
	}
	for i := 0; i < sl.level; i++ {
		if update[i].next[i] == node {
			update[i].span[i] += node.span[i] - 1
			update[i].next[i] = node.next[i]
		} else {
			update[i].span[i]--
		}
	}
	for sl.level > 1 && sl.head.next[sl.level-1] == nil {
		sl.level--
	}

	sl.length--
	delete(sl.index, name)
	return true
}

// rankOf returns the 1-based rank of name, 0 when absent.
func (sl *skipList) rankOf(name string) int {
	st, ok := sl.index[name]
	if !ok {
		return 0
	}
	e := rankEntry{Name: name, Standing: st}

	rank := 0
	x := sl.head
	for i := sl.level - 1; i >= 0; i-- {
		for x.next[i] != nil && (x.next[i].entry.before(e) || x.next[i].entry == e) {
			rank += x.span[i]
			x = x.next[i]
		}
		if x != sl.head && x.entry == e {
			return rank
		}
	}
	return 0
}

// rangeOf returns entries with ranks in [start, end], 1-based inclusive.
func (sl *skipList) rangeOf(start, end int) []rankEntry {
	if start < 1 {
		start = 1
	}
	if end > sl.length {
		end = sl.length
	}
	if start > end {
		return nil
	}

	traversed := 0
	x := sl.head
	for i := sl.level - 1; i >= 0; i-- {
		for x.next[i] != nil && traversed+x.span[i] < start {
			traversed += x.span[i]
			x = x.next[i]
		}
	}

	out := make([]rankEntry, 0, end-start+1)
	for x = x.next[0]; x != nil && traversed < end; x = x.next[0] {
		traversed++
		out = append(out, x.entry)
	}
	return out
}
