package profile

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPostgresStore needs a live database: DUEL_TEST_POSTGRES_DSN=postgres://...
func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("DUEL_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("DUEL_TEST_POSTGRES_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := OpenPostgres(ctx, dsn)
	require.NoError(t, err)
	defer s.Close()

	name := fmt.Sprintf("it_%d", time.Now().UnixNano())
	p, err := s.GetOrCreate(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Level)

	again, err := s.GetOrCreate(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, p.ID, again.ID)

	updated, err := s.RecordMatch(ctx, MatchRecord{
		UserID: p.ID, Result: ResultWin, DamageDealt: 100, Length: 42 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, updated.Wins)
	assert.Equal(t, 100, updated.XP)

	got, err := s.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, updated, got)

	_, err = s.Get(ctx, -1)
	assert.ErrorIs(t, err, ErrNotFound)
}
