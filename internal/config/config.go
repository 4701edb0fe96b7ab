// Package config provides centralized configuration management.
//
// Every section has a DefaultX constructor and an XFromEnv variant. Load
// layers them: defaults, then the optional TOML file named by CONFIG_FILE,
// then environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"duel-arena/internal/combat"
)

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `toml:"port"`
	SweepInterval   time.Duration `toml:"sweep_interval"`
	AllowedOrigins  []string      `toml:"allowed_origins"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port:            8080,
		SweepInterval:   50 * time.Millisecond,
		AllowedOrigins:  []string{"*"},
		ShutdownTimeout: 10 * time.Second,
	}
}

// ServerFromEnv returns server configuration with environment variable overrides.
func ServerFromEnv() ServerConfig {
	return DefaultServer().withEnv()
}

func (c ServerConfig) withEnv() ServerConfig {
	if p := getEnvInt("PORT", 0); p > 0 {
		c.Port = p
	}
	if d := getEnvDuration("SWEEP_INTERVAL", 0); d > 0 {
		c.SweepInterval = d
	}
	if o := getEnvList("ALLOWED_ORIGINS"); len(o) > 0 {
		c.AllowedOrigins = o
	}
	if d := getEnvDuration("SHUTDOWN_TIMEOUT", 0); d > 0 {
		c.ShutdownTimeout = d
	}
	return c
}

// =============================================================================
// COMBAT CONFIGURATION
// =============================================================================

// CombatConfig points at the data files and optionally overrides timing.
// Zero overrides keep the built-in tuning.
type CombatConfig struct {
	RulesPath   string `toml:"rules_path"`
	WeaponsPath string `toml:"weapons_path"`
	SkillsPath  string `toml:"skills_path"`

	ParryWindow  time.Duration `toml:"parry_window"`
	ParryRecover time.Duration `toml:"parry_recover"`
	DashCooldown time.Duration `toml:"dash_cooldown"`
	BaseActive   time.Duration `toml:"base_active"`
}

// DefaultCombat returns the default combat configuration.
func DefaultCombat() CombatConfig {
	return CombatConfig{
		RulesPath:   "data/combat_rules.yaml",
		WeaponsPath: "data/weapons.yaml",
		SkillsPath:  "data/skills.yaml",
	}
}

// CombatFromEnv returns combat configuration with environment variable overrides.
func CombatFromEnv() CombatConfig {
	return DefaultCombat().withEnv()
}

func (c CombatConfig) withEnv() CombatConfig {
	if v := os.Getenv("RULES_PATH"); v != "" {
		c.RulesPath = v
	}
	if v := os.Getenv("WEAPONS_PATH"); v != "" {
		c.WeaponsPath = v
	}
	if v := os.Getenv("SKILLS_PATH"); v != "" {
		c.SkillsPath = v
	}
	if d := getEnvDuration("PARRY_WINDOW", 0); d > 0 {
		c.ParryWindow = d
	}
	if d := getEnvDuration("PARRY_RECOVER", 0); d > 0 {
		c.ParryRecover = d
	}
	if d := getEnvDuration("DASH_COOLDOWN", 0); d > 0 {
		c.DashCooldown = d
	}
	if d := getEnvDuration("BASE_ACTIVE", 0); d > 0 {
		c.BaseActive = d
	}
	return c
}

// Tuning applies the overrides to combat.DefaultTuning.
func (c CombatConfig) Tuning() combat.Tuning {
	t := combat.DefaultTuning()
	if c.ParryWindow > 0 {
		t.ParryWindow = c.ParryWindow
	}
	if c.ParryRecover > 0 {
		t.ParryRecover = c.ParryRecover
	}
	if c.DashCooldown > 0 {
		t.DashCooldown = c.DashCooldown
	}
	if c.BaseActive > 0 {
		t.BaseActive = c.BaseActive
	}
	return t
}

// =============================================================================
// RESOURCE LIMITS
// =============================================================================

// ResourceLimits controls DoS protection.
type ResourceLimits struct {
	MaxMatches        int     `toml:"max_matches"`        // live matches
	MaxConnections    int     `toml:"max_connections"`    // websocket sessions
	ActionsPerSecond  float64 `toml:"actions_per_second"` // per session
	ActionBurst       int     `toml:"action_burst"`
	RequestsPerSecond float64 `toml:"requests_per_second"` // per IP, REST
	RequestBurst      int     `toml:"request_burst"`
	MaxDamage         int     `toml:"max_damage"` // per attack message
}

// DefaultLimits returns the default resource limits.
func DefaultLimits() ResourceLimits {
	return ResourceLimits{
		MaxMatches:        500,
		MaxConnections:    1000,
		ActionsPerSecond:  20,
		ActionBurst:       10,
		RequestsPerSecond: 10,
		RequestBurst:      20,
		MaxDamage:         50,
	}
}

// LimitsFromEnv returns resource limits with environment variable overrides.
func LimitsFromEnv() ResourceLimits {
	return DefaultLimits().withEnv()
}

func (c ResourceLimits) withEnv() ResourceLimits {
	if v := getEnvInt("MAX_MATCHES", 0); v > 0 {
		c.MaxMatches = v
	}
	if v := getEnvInt("MAX_CONNECTIONS", 0); v > 0 {
		c.MaxConnections = v
	}
	if v := getEnvFloat("ACTIONS_PER_SECOND", 0); v > 0 {
		c.ActionsPerSecond = v
	}
	if v := getEnvInt("ACTION_BURST", 0); v > 0 {
		c.ActionBurst = v
	}
	if v := getEnvFloat("REQUESTS_PER_SECOND", 0); v > 0 {
		c.RequestsPerSecond = v
	}
	if v := getEnvInt("REQUEST_BURST", 0); v > 0 {
		c.RequestBurst = v
	}
	if v := getEnvInt("MAX_DAMAGE", 0); v > 0 {
		c.MaxDamage = v
	}
	return c
}

// =============================================================================
// STORAGE CONFIGURATION
// =============================================================================

// Store kinds.
const (
	StorePostgres = "postgres"
	StoreFile     = "file"
	StoreMemory   = "memory"
)

// DatabaseConfig selects where profiles live. A DSN implies postgres.
type DatabaseConfig struct {
	Store   string `toml:"store"`
	DSN     string `toml:"dsn"`
	AppName string `toml:"app_name"` // file store directory name
}

// DefaultDatabase returns the default storage configuration.
func DefaultDatabase() DatabaseConfig {
	return DatabaseConfig{
		Store:   StoreFile,
		AppName: "duel-arena",
	}
}

// DatabaseFromEnv returns storage configuration with environment variable overrides.
func DatabaseFromEnv() DatabaseConfig {
	return DefaultDatabase().withEnv()
}

func (c DatabaseConfig) withEnv() DatabaseConfig {
	if v := os.Getenv("STORE"); v != "" {
		c.Store = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.DSN = v
	}
	if v := os.Getenv("DATA_APP_NAME"); v != "" {
		c.AppName = v
	}
	return c
}

// Kind resolves the store to open.
func (c DatabaseConfig) Kind() string {
	if c.DSN != "" {
		return StorePostgres
	}
	switch c.Store {
	case StoreFile, StoreMemory:
		return c.Store
	}
	return StoreMemory
}

// =============================================================================
// DEBUG, LOGGING & EVENT LOG
// =============================================================================

// DebugConfig controls the pprof/metrics listener.
type DebugConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

// DefaultDebug returns the default debug configuration.
func DefaultDebug() DebugConfig {
	return DebugConfig{Enabled: true, Addr: "localhost:6060"}
}

// DebugFromEnv returns debug configuration with environment variable overrides.
func DebugFromEnv() DebugConfig {
	return DefaultDebug().withEnv()
}

func (c DebugConfig) withEnv() DebugConfig {
	if os.Getenv("DEBUG_SERVER") == "false" {
		c.Enabled = false
	}
	if v := os.Getenv("DEBUG_ADDR"); v != "" {
		c.Addr = v
	}
	return c
}

// LoggingConfig selects the zap logger.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

// DefaultLogging returns the default logging configuration.
func DefaultLogging() LoggingConfig {
	return LoggingConfig{Level: "info", Format: "json"}
}

// LoggingFromEnv returns logging configuration with environment variable overrides.
func LoggingFromEnv() LoggingConfig {
	return DefaultLogging().withEnv()
}

func (c LoggingConfig) withEnv() LoggingConfig {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Format = v
	}
	return c
}

// EventLogConfig controls the JSONL combat log. An empty path keeps it off.
type EventLogConfig struct {
	Path            string  `toml:"path"`
	BufferSize      int     `toml:"buffer_size"`
	MaxPerSec       float64 `toml:"max_per_sec"`
	MaxPerPlayerSec float64 `toml:"max_per_player_sec"`
}

// DefaultEventLog returns the default event log configuration.
func DefaultEventLog() EventLogConfig {
	return EventLogConfig{
		BufferSize:      1024,
		MaxPerSec:       10000,
		MaxPerPlayerSec: 100,
	}
}

// EventLogFromEnv returns event log configuration with environment variable overrides.
func EventLogFromEnv() EventLogConfig {
	return DefaultEventLog().withEnv()
}

func (c EventLogConfig) withEnv() EventLogConfig {
	if v := os.Getenv("EVENT_LOG_PATH"); v != "" {
		c.Path = v
	}
	if v := getEnvInt("EVENT_LOG_BUFFER", 0); v > 0 {
		c.BufferSize = v
	}
	return c
}

// =============================================================================
// BOT CONFIGURATION
// =============================================================================

// BotConfig holds practice opponent defaults.
type BotConfig struct {
	Difficulty string `toml:"difficulty"`
	Damage     int    `toml:"damage"`
}

// DefaultBot returns the default bot configuration.
func DefaultBot() BotConfig {
	return BotConfig{Difficulty: "easy", Damage: 10}
}

// BotFromEnv returns bot configuration with environment variable overrides.
func BotFromEnv() BotConfig {
	return DefaultBot().withEnv()
}

func (c BotConfig) withEnv() BotConfig {
	if v := os.Getenv("BOT_DIFFICULTY"); v != "" {
		c.Difficulty = v
	}
	if v := getEnvInt("BOT_DAMAGE", 0); v > 0 {
		c.Damage = v
	}
	return c
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Server   ServerConfig   `toml:"server"`
	Combat   CombatConfig   `toml:"combat"`
	Limits   ResourceLimits `toml:"limits"`
	Database DatabaseConfig `toml:"database"`
	Debug    DebugConfig    `toml:"debug"`
	Logging  LoggingConfig  `toml:"logging"`
	EventLog EventLogConfig `toml:"event_log"`
	Bot      BotConfig      `toml:"bot"`
}

// Default returns every section's defaults.
func Default() AppConfig {
	return AppConfig{
		Server:   DefaultServer(),
		Combat:   DefaultCombat(),
		Limits:   DefaultLimits(),
		Database: DefaultDatabase(),
		Debug:    DefaultDebug(),
		Logging:  DefaultLogging(),
		EventLog: DefaultEventLog(),
		Bot:      DefaultBot(),
	}
}

// Load returns the complete configuration: defaults, then the TOML file
// named by CONFIG_FILE (if set), then environment overrides.
func Load() (AppConfig, error) {
	return LoadFile(os.Getenv("CONFIG_FILE"))
}

// LoadFile is Load with an explicit file path. An empty path skips the file.
func LoadFile(path string) (AppConfig, error) {
	cfg := Default()
	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return AppConfig{}, fmt.Errorf("parse config %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return AppConfig{}, fmt.Errorf("parse config %s: unknown keys %v", path, undecoded)
		}
	}

	cfg.Server = cfg.Server.withEnv()
	cfg.Combat = cfg.Combat.withEnv()
	cfg.Limits = cfg.Limits.withEnv()
	cfg.Database = cfg.Database.withEnv()
	cfg.Debug = cfg.Debug.withEnv()
	cfg.Logging = cfg.Logging.withEnv()
	cfg.EventLog = cfg.EventLog.withEnv()
	cfg.Bot = cfg.Bot.withEnv()
	return cfg, nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
