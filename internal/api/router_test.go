package api

import (
	"context"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duel-arena/internal/combat"
	"duel-arena/internal/loadout"
	"duel-arena/internal/match"
	"duel-arena/internal/profile"
)

var epoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	clock    *combat.ManualClock
	rules    *combat.RuleTable
	weapons  *combat.WeaponRegistry
	manager  *match.Manager
	profiles *profile.Service
	server   *Server
}

// newTestEnv builds a server over in-memory dependencies. tweak may
// adjust the hub config before the server is built.
func newTestEnv(t *testing.T, tweak func(*HubConfig)) *testEnv {
	t.Helper()

	rules, err := combat.NewRuleTable(combat.RuleConfig{
		ComboChains: []combat.ComboRule{{combat.ActionLight, combat.ActionLight, combat.ActionHeavy}},
		CancelRules: []combat.CancelRule{{From: combat.ActionLight, To: combat.ActionDash}},
	})
	require.NoError(t, err)
	weapons, err := combat.NewWeaponRegistry([]combat.Weapon{
		{ID: "sword", Name: "Sword", Reach: 1, AttackSpeed: 1},
		{ID: "dagger", Name: "Dagger", Reach: 0.6, AttackSpeed: 1.5},
	})
	require.NoError(t, err)
	catalog, err := loadout.NewCatalog(
		[]string{"on_hit", "low_hp"},
		[]string{"heal", "shield"},
		[]string{"quick", "amplified"},
	)
	require.NoError(t, err)

	clock := combat.NewManualClock(epoch)
	manager := match.NewManager(match.ManagerConfig{
		Resolver: combat.NewResolver(rules, clock, combat.DefaultTuning()),
	})
	profiles := profile.NewService(profile.NewMemoryStore(), nil)

	hub := HubConfig{
		Matches:          manager,
		Weapons:          weapons,
		Catalog:          catalog,
		Profiles:         profiles,
		ActionsPerSecond: 1000,
		ActionBurst:      1000,
		MaxDamage:        50,
		BotDifficulty:    "hard",
	}
	if tweak != nil {
		tweak(&hub)
	}

	server := NewServer(ServerConfig{
		Hub:            hub,
		Rules:          rules,
		RateLimit:      RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000},
		DisableLogging: true,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		server.Shutdown(ctx)
	})

	return &testEnv{
		clock:    clock,
		rules:    rules,
		weapons:  weapons,
		manager:  manager,
		profiles: profiles,
		server:   server,
	}
}

func (e *testEnv) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v))
}

var (
	alice = match.Participant{ID: "p1", Name: "alice"}
	bob   = match.Participant{ID: "p2", Name: "bob"}
)

func (e *testEnv) duel(t *testing.T) *match.Match {
	t.Helper()
	w := e.weapons.Default()
	m, err := e.manager.Create(match.ModeRanked, alice, bob, w, w)
	require.NoError(t, err)
	return m
}

// TestHealth reports live matches
func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)
	env.duel(t)

	rec := env.get(t, "/api/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	decode(t, rec, &body)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(1), body["matches"])
}

// TestStaticCombatData serves weapons and rules
func TestStaticCombatData(t *testing.T) {
	env := newTestEnv(t, nil)

	var weapons []combat.Weapon
	decode(t, env.get(t, "/api/weapons"), &weapons)
	require.Len(t, weapons, 2)
	assert.Equal(t, "dagger", weapons[0].ID, "weapons are listed by id")
	assert.Equal(t, "sword", weapons[1].ID)

	var rules combat.RuleConfig
	decode(t, env.get(t, "/api/rules"), &rules)
	assert.Equal(t, env.rules.Config(), rules)
}

// TestMatchRoutes lists, fetches and renders live matches
func TestMatchRoutes(t *testing.T) {
	env := newTestEnv(t, nil)
	m := env.duel(t)

	var list []match.View
	decode(t, env.get(t, "/api/matches"), &list)
	require.Len(t, list, 1)
	assert.Equal(t, m.ID(), list[0].ID)
	assert.Equal(t, "alice", list[0].Sides[0].Name)

	var view match.View
	decode(t, env.get(t, "/api/matches/"+m.ID()), &view)
	assert.Equal(t, 150.0, view.Sides[1].State.Hurtbox.X)

	assert.Equal(t, http.StatusNotFound, env.get(t, "/api/matches/m999").Code)

	rec := env.get(t, "/api/matches/"+m.ID()+"/frame.png?scale=0.5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	cfg, err := png.DecodeConfig(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 640, cfg.Width)
	assert.Equal(t, 360, cfg.Height)

	tests := []struct {
		name string
		path string
		code int
	}{
		{"scale too small", "/frame.png?scale=0.01", http.StatusBadRequest},
		{"scale too large", "/frame.png?scale=2", http.StatusBadRequest},
		{"scale not a number", "/frame.png?scale=big", http.StatusBadRequest},
		{"default scale", "/frame.png", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, env.get(t, "/api/matches/"+m.ID()+tt.path).Code)
		})
	}

	assert.Equal(t, http.StatusNotFound, env.get(t, "/api/matches/m999/frame.png").Code)
}

// TestLeaderboardAndProfiles reads the ranking after recorded matches
func TestLeaderboardAndProfiles(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	a, err := env.profiles.Login(ctx, "alice")
	require.NoError(t, err)
	b, err := env.profiles.Login(ctx, "bob")
	require.NoError(t, err)
	_, err = env.profiles.Record(ctx, profile.MatchRecord{UserID: a.ID, OpponentID: b.ID, Result: profile.ResultWin})
	require.NoError(t, err)
	_, err = env.profiles.Record(ctx, profile.MatchRecord{UserID: b.ID, OpponentID: a.ID, Result: profile.ResultLoss})
	require.NoError(t, err)

	var board struct {
		Total   int                        `json:"total"`
		Entries []profile.LeaderboardEntry `json:"entries"`
	}
	decode(t, env.get(t, "/api/leaderboard?limit=1"), &board)
	assert.Equal(t, 2, board.Total)
	require.Len(t, board.Entries, 1)
	assert.Equal(t, "alice", board.Entries[0].Name)
	assert.Equal(t, 1, board.Entries[0].Wins)

	assert.Equal(t, http.StatusBadRequest, env.get(t, "/api/leaderboard?limit=zero").Code)
	assert.Equal(t, http.StatusBadRequest, env.get(t, "/api/leaderboard?limit=0").Code)

	var entry profile.LeaderboardEntry
	decode(t, env.get(t, "/api/profiles/bob"), &entry)
	assert.Equal(t, 2, entry.Rank)
	assert.Equal(t, 0, entry.Wins)

	assert.Equal(t, http.StatusNotFound, env.get(t, "/api/profiles/nobody").Code)
}

// TestRouterRateLimit rejects bursts from one IP
func TestRouterRateLimit(t *testing.T) {
	env := newTestEnv(t, nil)
	router := NewRouter(RouterConfig{
		Matches:         env.manager,
		Weapons:         env.weapons,
		Rules:           env.rules,
		RateLimitConfig: &RateLimitConfig{RequestsPerSecond: 0.001, Burst: 2},
		DisableLogging:  true,
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.RemoteAddr = "203.0.113.9:4000"
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	req := httptest.NewRequest(http.MethodGet, "/api/leaderboard", nil)
	req.RemoteAddr = "203.0.113.9:4000"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code, "same IP is still limited")

	// without a leaderboard the ranking routes are unavailable
	req = httptest.NewRequest(http.MethodGet, "/api/leaderboard", nil)
	req.RemoteAddr = "203.0.113.10:4000"
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
