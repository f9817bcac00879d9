// Package config loads process settings from the environment and game tuning
// from an optional YAML file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/mcdev12/colorclash/go/internal/dbconfig"
	"github.com/mcdev12/colorclash/go/internal/game"
	"github.com/mcdev12/colorclash/go/internal/presence"
	"github.com/mcdev12/colorclash/go/internal/round"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Store backends selectable with STORE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

type Config struct {
	HTTPAddr       string        `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel       zerolog.Level `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat      string        `env:"LOG_FORMAT" envDefault:"json"`
	StoreBackend   string        `env:"STORE_BACKEND" envDefault:"sqlite"`
	RedisURL       string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	SQLitePath     string        `env:"SQLITE_PATH" envDefault:"colorclash.db"`
	NATSURL        string        `env:"NATS_URL"`
	ArchiveEnabled bool          `env:"ARCHIVE_ENABLED" envDefault:"false"`
	GameConfig     string        `env:"GAME_CONFIG"`
	Database       dbconfig.Config

	// Tuning is filled from GAME_CONFIG, not the environment.
	Tuning Tuning
}

// Load reads .env (if present), the environment and the tuning file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	switch cfg.StoreBackend {
	case BackendMemory, BackendRedis, BackendPostgres, BackendSQLite:
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	cfg.Tuning = DefaultTuning()
	if cfg.GameConfig != "" {
		t, err := LoadTuning(cfg.GameConfig)
		if err != nil {
			return nil, err
		}
		cfg.Tuning = t
	}
	return &cfg, nil
}

// Tuning is the game balance file.
type Tuning struct {
	Round struct {
		Duration     time.Duration `yaml:"duration"`
		TickInterval time.Duration `yaml:"tick_interval"`
		ResultPause  time.Duration `yaml:"result_pause"`
		SaveEvery    int           `yaml:"save_every"`
	} `yaml:"round"`
	Game struct {
		InitialBalance decimal.Decimal   `yaml:"initial_balance"`
		FeeRate        decimal.Decimal   `yaml:"fee_rate"`
		HistoryWindow  int               `yaml:"history_window"`
		AllowedStakes  []decimal.Decimal `yaml:"allowed_stakes"`
	} `yaml:"game"`
	Presence struct {
		HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
		StaleAfter        time.Duration `yaml:"stale_after"`
	} `yaml:"presence"`
}

// DefaultTuning mirrors the package defaults of round, game and presence.
func DefaultTuning() Tuning {
	var t Tuning
	rc := round.DefaultConfig()
	t.Round.Duration = rc.RoundDuration
	t.Round.TickInterval = rc.TickInterval
	t.Round.ResultPause = rc.ResultPause
	t.Round.SaveEvery = rc.SaveEvery

	gc := game.DefaultConfig()
	t.Game.InitialBalance = gc.InitialBalance
	t.Game.FeeRate = gc.FeeRate
	t.Game.HistoryWindow = gc.HistoryWindow
	t.Game.AllowedStakes = gc.AllowedStakes

	pc := presence.DefaultConfig()
	t.Presence.HeartbeatInterval = pc.HeartbeatInterval
	t.Presence.StaleAfter = pc.StaleAfter
	return t
}

// LoadTuning reads a YAML tuning file over the defaults; keys missing from the
// file keep their default values.
func LoadTuning(path string) (Tuning, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Tuning{}, fmt.Errorf("failed to read config file: %w", err)
	}

	t := DefaultTuning()
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Tuning{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := t.Validate(); err != nil {
		return Tuning{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return t, nil
}

// Validate rejects tunings the engine cannot run with.
func (t Tuning) Validate() error {
	switch {
	case t.Round.Duration < time.Second:
		return fmt.Errorf("round.duration must be at least 1s")
	case t.Round.TickInterval <= 0:
		return fmt.Errorf("round.tick_interval must be positive")
	case t.Round.ResultPause < 0:
		return fmt.Errorf("round.result_pause must not be negative")
	case t.Round.SaveEvery <= 0:
		return fmt.Errorf("round.save_every must be positive")
	case t.Game.InitialBalance.IsNegative():
		return fmt.Errorf("game.initial_balance must not be negative")
	case t.Game.FeeRate.IsNegative() || t.Game.FeeRate.GreaterThan(decimal.NewFromInt(1)):
		return fmt.Errorf("game.fee_rate must be within [0, 1]")
	case t.Game.HistoryWindow <= 0:
		return fmt.Errorf("game.history_window must be positive")
	case t.Presence.HeartbeatInterval <= 0:
		return fmt.Errorf("presence.heartbeat_interval must be positive")
	case t.Presence.StaleAfter <= t.Presence.HeartbeatInterval:
		return fmt.Errorf("presence.stale_after must exceed the heartbeat interval")
	}
	for _, s := range t.Game.AllowedStakes {
		if !s.IsPositive() {
			return fmt.Errorf("game.allowed_stakes must be positive, got %s", s)
		}
	}
	return nil
}

func (t Tuning) RoundConfig() round.Config {
	return round.Config{
		RoundDuration: t.Round.Duration,
		TickInterval:  t.Round.TickInterval,
		ResultPause:   t.Round.ResultPause,
		SaveEvery:     t.Round.SaveEvery,
	}
}

func (t Tuning) GameConfig() game.Config {
	return game.Config{
		InitialBalance: t.Game.InitialBalance,
		FeeRate:        t.Game.FeeRate,
		HistoryWindow:  t.Game.HistoryWindow,
		AllowedStakes:  t.Game.AllowedStakes,
	}
}

func (t Tuning) PresenceConfig() presence.Config {
	return presence.Config{
		HeartbeatInterval: t.Presence.HeartbeatInterval,
		StaleAfter:        t.Presence.StaleAfter,
	}
}
