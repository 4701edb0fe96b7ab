package match

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryLog(t *testing.T, cfg EventLogConfig) *EventLog {
	t.Helper()
	cfg.FlushInterval = time.Hour // keep events buffered for Drain
	l := NewEventLog(cfg, nil)
	require.NoError(t, l.Start(""))
	t.Cleanup(l.Stop)
	return l
}

// TestEventLogStopped drops everything before Start
func TestEventLogStopped(t *testing.T) {
	l := NewEventLog(DefaultEventLogConfig(), nil)
	assert.False(t, l.Emit(EventHit, "m1", "p1", nil))
}

// TestEventLogRingDropsOldest checks backpressure keeps the newest entries
func TestEventLogRingDropsOldest(t *testing.T) {
	cfg := DefaultEventLogConfig()
	cfg.BufferSize = 4
	l := memoryLog(t, cfg)

	for i := 0; i < 6; i++ {
		require.True(t, l.Emit(EventAction, "m1", "", map[string]int{"i": i}))
	}

	got := l.Drain()
	require.Len(t, got, 4)
	assert.Equal(t, uint64(3), got[0].Seq)
	assert.Equal(t, uint64(6), got[3].Seq)
	assert.JSONEq(t, `{"i":5}`, string(got[3].Payload))

	st := l.Stats()
	assert.Equal(t, uint64(6), st.Total)
	assert.Equal(t, uint64(2), st.Dropped)
	assert.Equal(t, 0, st.Pending)
}

// TestEventLogPerPlayerLimit stops a single flooding player
func TestEventLogPerPlayerLimit(t *testing.T) {
	cfg := DefaultEventLogConfig()
	cfg.MaxPerPlayerSec = 10 // burst 1
	l := memoryLog(t, cfg)

	assert.True(t, l.Emit(EventAction, "m1", "flooder", nil))
	assert.False(t, l.Emit(EventAction, "m1", "flooder", nil))
	assert.True(t, l.Emit(EventAction, "m1", "other", nil))
	assert.True(t, l.Emit(EventSweep, "m1", "", nil), "system events skip the player limiter")
}

// TestEventLogPruneLimiters forgets idle players
func TestEventLogPruneLimiters(t *testing.T) {
	l := memoryLog(t, DefaultEventLogConfig())
	l.Emit(EventAction, "m1", "p1", nil)

	l.pruneLimiters(time.Now().Add(time.Minute))
	l.mu.Lock()
	n := len(l.players)
	l.mu.Unlock()
	assert.Equal(t, 0, n)
}
