package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"RiskArena/internal/auth"
	"RiskArena/internal/engine"
	"RiskArena/internal/game"
	"RiskArena/internal/logging"
	"RiskArena/internal/notifier"
	"RiskArena/internal/scheduler"
)

// DefaultPath is used when CONFIG_PATH is unset.
const DefaultPath = "configs/config.yaml"

const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Game      GameConfig       `yaml:"game"`
	Engine    EngineConfig     `yaml:"engine"`
	Database  DatabaseConfig   `yaml:"database"`
	Scheduler scheduler.Config `yaml:"scheduler"`
	Telegram  notifier.Config  `yaml:"telegram"`
	Auth      auth.Config      `yaml:"auth"`
	Log       logging.Config   `yaml:"log"`
}

type ServerConfig struct {
	Addr           string        `yaml:"addr" env:"SERVER_ADDR"`
	AllowedOrigins []string      `yaml:"allowed_origins" env:"SERVER_ALLOWED_ORIGINS" envSeparator:","`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"SERVER_REQUEST_TIMEOUT"`
	DevMode        bool          `yaml:"dev_mode" env:"DEV_MODE"`
}

// GameConfig holds session defaults.
type GameConfig struct {
	TotalRounds    int           `yaml:"total_rounds" env:"GAME_TOTAL_ROUNDS"`
	RoundDuration  time.Duration `yaml:"round_duration" env:"GAME_ROUND_DURATION"`
	InitialCapital float64       `yaml:"initial_capital" env:"GAME_INITIAL_CAPITAL"`
	MaxRetries     uint64        `yaml:"max_retries" env:"GAME_MAX_RETRIES"`
	Workers        int           `yaml:"workers" env:"GAME_WORKERS"`
}

// EngineConfig selects the outcome model. An empty catalog path uses the
// embedded country list.
type EngineConfig struct {
	Weights     string `yaml:"weights" env:"ENGINE_WEIGHTS"` // default or legacy
	Source      string `yaml:"source" env:"ENGINE_SOURCE"`   // sine or xorshift
	Locale      string `yaml:"locale" env:"ENGINE_LOCALE"`
	CatalogPath string `yaml:"catalog_path" env:"ENGINE_CATALOG_PATH"`
}

// DatabaseConfig selects the game store. An empty history path disables the
// outcome history.
type DatabaseConfig struct {
	Driver      string `yaml:"driver" env:"DB_DRIVER"`
	StorePath   string `yaml:"store_path" env:"DB_STORE_PATH"`
	HistoryPath string `yaml:"history_path" env:"DB_HISTORY_PATH"`
}

// Path returns CONFIG_PATH or DefaultPath.
func Path() string {
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		return v
	}
	return DefaultPath
}

// Load reads config from a YAML file, then applies .env and environment
// variable overrides, then defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// .env never overrides variables already set in the environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.RequestTimeout == 0 {
		c.Server.RequestTimeout = 30 * time.Second
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"*"}
	}
	if c.Game.TotalRounds == 0 {
		c.Game.TotalRounds = game.DefaultTotalRounds
	}
	if c.Game.RoundDuration == 0 {
		c.Game.RoundDuration = game.DefaultRoundDuration
	}
	if c.Game.InitialCapital == 0 {
		c.Game.InitialCapital = game.DefaultInitialCapital
	}
	if c.Game.MaxRetries == 0 {
		c.Game.MaxRetries = game.DefaultMaxRetries
	}
	if c.Engine.Weights == "" {
		c.Engine.Weights = "default"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverSQLite
	}
	if c.Database.Driver == DriverSQLite && c.Database.StorePath == "" {
		c.Database.StorePath = "data/riskarena.db"
	}
	if c.Scheduler.SweepCron == "" {
		c.Scheduler.SweepCron = "*/5 * * * * *"
	}
	if c.Scheduler.CleanupCron == "" {
		c.Scheduler.CleanupCron = "0 0 4 * * *"
	}
	if c.Scheduler.Retention == 0 {
		c.Scheduler.Retention = 7 * 24 * time.Hour
	}
	if c.Telegram.MaxRetries == 0 {
		c.Telegram.MaxRetries = 3
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks that all required fields are set and consistent.
func (c *Config) Validate() error {
	if c.Game.TotalRounds < 1 {
		return fmt.Errorf("game.total_rounds must be at least 1")
	}
	if c.Game.RoundDuration <= 0 {
		return fmt.Errorf("game.round_duration must be positive")
	}
	if c.Game.InitialCapital <= 0 {
		return fmt.Errorf("game.initial_capital must be positive")
	}
	if c.Game.Workers < 0 {
		return fmt.Errorf("game.workers must not be negative")
	}
	if _, err := c.Engine.Config(); err != nil {
		return err
	}
	switch c.Database.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Database.StorePath == "" {
			return fmt.Errorf("database.store_path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverMemory, DriverSQLite, c.Database.Driver)
	}
	if c.Auth.Secret == "" {
		return fmt.Errorf("auth.secret is required")
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id must be set together")
	}
	return nil
}

// Service converts the game section into service settings.
func (g GameConfig) Service() game.Config {
	return game.Config{
		TotalRounds:    g.TotalRounds,
		RoundDuration:  g.RoundDuration,
		InitialCapital: g.InitialCapital,
		MaxRetries:     g.MaxRetries,
		Workers:        g.Workers,
	}
}

// Config resolves the named weights and draw source.
func (e EngineConfig) Config() (engine.Config, error) {
	var w engine.Weights
	switch strings.ToLower(e.Weights) {
	case "", "default":
		w = engine.DefaultWeights
	case "legacy":
		w = engine.LegacyWeights
	default:
		return engine.Config{}, fmt.Errorf("engine.weights must be default or legacy, got %q", e.Weights)
	}
	src, err := engine.ParseSource(e.Source)
	if err != nil {
		return engine.Config{}, fmt.Errorf("engine.source: %w", err)
	}
	return engine.Config{Weights: w, Source: src, Locale: e.Locale}, nil
}
