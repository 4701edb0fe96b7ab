package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"duel-arena/internal/api"
	"duel-arena/internal/bot"
	"duel-arena/internal/combat"
	"duel-arena/internal/config"
	"duel-arena/internal/loadout"
	"duel-arena/internal/match"
	"duel-arena/internal/profile"
)

func main() {
	// .env from the parent directory, then the current one
	envErr := godotenv.Load("../.env")
	if envErr != nil {
		envErr = godotenv.Load(".env")
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	if envErr != nil {
		logger.Info("no .env file found, using environment variables only")
	}

	// Combat data is required; a bad file aborts startup
	rules, err := combat.LoadRuleTable(cfg.Combat.RulesPath)
	if err != nil {
		logger.Fatal("load rules", zap.Error(err))
	}
	weapons, err := combat.LoadWeapons(cfg.Combat.WeaponsPath)
	if err != nil {
		logger.Fatal("load weapons", zap.Error(err))
	}
	catalog, err := loadout.LoadCatalog(cfg.Combat.SkillsPath)
	if err != nil {
		logger.Fatal("load skill catalog", zap.Error(err))
	}
	difficulty, err := bot.ParseDifficulty(cfg.Bot.Difficulty)
	if err != nil {
		logger.Fatal("bot config", zap.Error(err))
	}
	logger.Info("combat data loaded",
		zap.Int("weapons", len(weapons.All())),
		zap.Int("combos", len(rules.Config().ComboChains)),
		zap.Int("cancels", len(rules.Config().CancelRules)))

	store, err := openStore(cfg.Database)
	if err != nil {
		logger.Fatal("open profile store", zap.String("kind", cfg.Database.Kind()), zap.Error(err))
	}
	profiles := profile.NewService(store, logger.Named("profile"))
	defer profiles.Close()

	warmCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := profiles.Warm(warmCtx); err != nil {
		logger.Warn("leaderboard starts empty", zap.Error(err))
	}
	cancel()

	// Event log (JSONL); memory only when no path is set
	evCfg := match.DefaultEventLogConfig()
	evCfg.BufferSize = cfg.EventLog.BufferSize
	evCfg.MaxPerSec = cfg.EventLog.MaxPerSec
	evCfg.MaxPerPlayerSec = cfg.EventLog.MaxPerPlayerSec
	events := match.NewEventLog(evCfg, logger.Named("events"))
	if err := events.Start(cfg.EventLog.Path); err != nil {
		logger.Warn("event log disabled", zap.Error(err))
	} else if cfg.EventLog.Path != "" {
		logger.Info("event log", zap.String("path", cfg.EventLog.Path))
	}

	resolver := combat.NewResolver(rules, combat.SystemClock{}, cfg.Combat.Tuning())
	manager := match.NewManager(match.ManagerConfig{
		Resolver:   resolver,
		MaxMatches: cfg.Limits.MaxMatches,
		Events:     events,
		Log:        logger.Named("match"),
	})

	sweeper := match.NewSweeper(manager, cfg.Server.SweepInterval, logger.Named("sweeper"),
		func(d time.Duration, cleared int) {
			api.RecordSweep(d, cleared)
			api.UpdateLiveMatches(manager.Count())
			stats := events.Stats()
			api.UpdateEventLogStats(stats.Total, stats.Dropped)
		})

	server := api.NewServer(api.ServerConfig{
		Hub: api.HubConfig{
			Matches:          manager,
			Weapons:          weapons,
			Catalog:          catalog,
			Profiles:         profiles,
			Origins:          cfg.Server.AllowedOrigins,
			MaxConnections:   cfg.Limits.MaxConnections,
			ActionsPerSecond: cfg.Limits.ActionsPerSecond,
			ActionBurst:      cfg.Limits.ActionBurst,
			MaxDamage:        cfg.Limits.MaxDamage,
			BotDifficulty:    difficulty,
			BotDamage:        cfg.Bot.Damage,
		},
		Rules: rules,
		RateLimit: api.RateLimitConfig{
			RequestsPerSecond: cfg.Limits.RequestsPerSecond,
			Burst:             cfg.Limits.RequestBurst,
		},
		CORSOrigins: cfg.Server.AllowedOrigins,
		Log:         logger.Named("api"),
	})

	debug := api.StartDebugServer(api.ObservabilityConfig{
		Enabled:       cfg.Debug.Enabled,
		ListenAddr:    cfg.Debug.Addr,
		BasicAuthUser: os.Getenv("DEBUG_USER"),
		BasicAuthPass: os.Getenv("DEBUG_PASS"),
	}, logger.Named("debug"))

	sweeper.Start()

	addr := ":" + strconv.Itoa(cfg.Server.Port)
	go func() {
		if err := server.Start(addr); err != nil {
			logger.Fatal("api server failed", zap.Error(err))
		}
	}()
	logger.Info("server ready",
		zap.String("addr", addr),
		zap.String("store", cfg.Database.Kind()),
		zap.Duration("sweep", cfg.Server.SweepInterval))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("shutting down", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Finish matches first so players receive match_end before the sockets close
	manager.Shutdown()
	sweeper.Stop()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("api shutdown", zap.Error(err))
	}
	if err := debug.Shutdown(ctx); err != nil {
		logger.Warn("debug shutdown", zap.Error(err))
	}
	events.Stop()
	logger.Info("goodbye")
}

func newLogger(c config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if c.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

func openStore(c config.DatabaseConfig) (profile.Store, error) {
	switch c.Kind() {
	case config.StorePostgres:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return profile.OpenPostgres(ctx, c.DSN)
	case config.StoreFile:
		return profile.OpenFileStore(c.AppName)
	}
	return profile.NewMemoryStore(), nil
}
