package match

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duel-arena/internal/combat"
)

// TestManagerCreateGetList checks registry bookkeeping
func TestManagerCreateGetList(t *testing.T) {
	mg, _ := testManager(t)

	m1, err := mg.Create(ModeRanked, alice, bob, sword, sword)
	require.NoError(t, err)
	m2, err := mg.Create(ModePractice, Participant{ID: "s3", Name: "carol"}, Participant{ID: "bot-s3", Name: "bot", Bot: true}, sword, sword)
	require.NoError(t, err)
	assert.NotEqual(t, m1.ID(), m2.ID())

	got, err := mg.Get(m1.ID())
	require.NoError(t, err)
	assert.Same(t, m1, got)

	list := mg.List()
	require.Len(t, list, 2)
	assert.Equal(t, m1.ID(), list[0].ID())
	assert.Equal(t, 2, mg.Count())

	_, err = mg.Get("m999")
	assert.ErrorIs(t, err, ErrUnknownMatch)

	_, err = mg.Create(ModeRanked, alice, alice, sword, sword)
	assert.ErrorIs(t, err, ErrWrongTarget)
}

// TestManagerMaxMatches enforces the live match cap
func TestManagerMaxMatches(t *testing.T) {
	r, _ := testResolver(t)
	mg := NewManager(ManagerConfig{Resolver: r, MaxMatches: 1})

	_, err := mg.Create(ModeRanked, alice, bob, sword, sword)
	require.NoError(t, err)
	_, err = mg.Create(ModeRanked, Participant{ID: "x"}, Participant{ID: "y"}, sword, sword)
	assert.ErrorIs(t, err, ErrTooManyMatches)
}

// TestManagerEndAndShutdown checks explicit endings reach OnEnd
func TestManagerEndAndShutdown(t *testing.T) {
	mg, _ := testManager(t)

	var mu sync.Mutex
	reasons := map[string]EndReason{}
	mg.OnEnd(func(s Summary) {
		mu.Lock()
		reasons[s.MatchID] = s.Reason
		mu.Unlock()
	})

	m1, _ := mg.Create(ModeRanked, alice, bob, sword, sword)
	m2, _ := mg.Create(ModeRanked, Participant{ID: "x"}, Participant{ID: "y"}, sword, sword)

	s, err := mg.End(m1.ID(), EndForfeit, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, bob.ID, s.Winner)

	_, err = mg.End(m1.ID(), EndForfeit, bob.ID)
	assert.ErrorIs(t, err, ErrUnknownMatch)

	mg.Shutdown()
	assert.Equal(t, 0, mg.Count())
	assert.Equal(t, EndForfeit, reasons[m1.ID()])
	assert.Equal(t, EndShutdown, reasons[m2.ID()])
}

// TestManagerEventsToFile checks the JSONL combat log
func TestManagerEventsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	events := NewEventLog(DefaultEventLogConfig(), nil)
	require.NoError(t, events.Start(path))

	r, _ := testResolver(t)
	mg := NewManager(ManagerConfig{Resolver: r, Events: events})
	m, err := mg.Create(ModeRanked, alice, bob, sword, sword)
	require.NoError(t, err)

	out, _ := m.Act(alice.ID, combat.ActionLight)
	mg.RecordAction(m.ID(), alice.ID, combat.ActionLight, out)
	res, _ := m.Attack(alice.ID, bob.ID, 10)
	mg.RecordHit(m.ID(), alice.ID, bob.ID, 10, res)
	mg.End(m.ID(), EndForfeit, alice.ID)

	events.Stop()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var types []EventType
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e Event
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		assert.Equal(t, m.ID(), e.MatchID)
		types = append(types, e.Type)
	}
	assert.Equal(t, []EventType{EventMatchStart, EventAction, EventHit, EventMatchEnd}, types)
	assert.Equal(t, uint64(4), events.Stats().Written)
}

// TestQueuePairsFIFO checks pairing order and idempotent enqueue
func TestQueuePairsFIFO(t *testing.T) {
	var pairs [][2]string
	q := NewQueue(func(a, b Ticket) {
		pairs = append(pairs, [2]string{a.ID, b.ID})
	})

	assert.True(t, q.Enqueue(Ticket{Participant: Participant{ID: "a"}}))
	assert.False(t, q.Enqueue(Ticket{Participant: Participant{ID: "a"}}), "duplicate enqueue")
	assert.Equal(t, 1, q.Len())

	q.Enqueue(Ticket{Participant: Participant{ID: "b"}})
	q.Enqueue(Ticket{Participant: Participant{ID: "c"}})
	assert.True(t, q.Remove("c"))
	assert.False(t, q.Remove("c"))
	q.Enqueue(Ticket{Participant: Participant{ID: "d"}})
	q.Enqueue(Ticket{Participant: Participant{ID: "e"}})

	assert.Equal(t, [][2]string{{"a", "b"}, {"d", "e"}}, pairs)
	assert.Equal(t, 0, q.Len())
}

// TestSweeperLoop runs the ticker against a manual clock
func TestSweeperLoop(t *testing.T) {
	mg, m, clock := newDuel(t)

	var mu sync.Mutex
	total := 0
	sw := NewSweeper(mg, 5*time.Millisecond, nil, func(_ time.Duration, cleared int) {
		mu.Lock()
		total += cleared
		mu.Unlock()
	})

	m.Act(alice.ID, combat.ActionLight)
	clock.Advance(200 * time.Millisecond)

	sw.Start()
	sw.Start()
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return total == 1
	}, time.Second, 5*time.Millisecond)
	sw.Stop()
	sw.Stop()

	assert.Nil(t, m.Snapshot().Sides[0].State.Hitbox)
}

// TestSweepOnce returns the cleared count directly
func TestSweepOnce(t *testing.T) {
	mg, m, clock := newDuel(t)
	sw := NewSweeper(mg, 0, nil, nil)

	m.Act(alice.ID, combat.ActionLight)
	m.Act(bob.ID, combat.ActionHeavy)
	assert.Equal(t, 0, sw.SweepOnce())

	clock.Advance(time.Second)
	assert.Equal(t, 2, sw.SweepOnce())
}
