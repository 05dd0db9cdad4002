package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"engine-arena/arena/game"
	"engine-arena/arena/match"
	"engine-arena/arena/openings"
	"engine-arena/arena/stats"
	"engine-arena/arena/uci"
)

// ConfigError is a bad run parameter. It is fatal and reported before any
// game starts.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "config: " + e.Err.Error()
	}
	return fmt.Sprintf("config: %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// EngineConfig describes one side of the match.
type EngineConfig struct {
	Name    string            `yaml:"name" env:"NAME" validate:"required"`
	Path    string            `yaml:"path" env:"PATH" validate:"required"`
	Args    []string          `yaml:"args" env:"ARGS" envSeparator:" "`
	Env     []string          `yaml:"env" env:"ENV" envSeparator:","`
	Dir     string            `yaml:"dir" env:"DIR"`
	Options map[string]string `yaml:"options" env:"OPTIONS"`
}

func (e EngineConfig) Engine() uci.Engine {
	return uci.Engine{Name: e.Name, Path: e.Path, Args: e.Args, Env: e.Env, Dir: e.Dir, Options: e.Options}
}

// Config holds every run parameter. Sources, later ones winning: defaults,
// .env, the YAML file, ARENA_* environment, command-line flags.
type Config struct {
	New  EngineConfig `yaml:"new" envPrefix:"ARENA_NEW_"`
	Base EngineConfig `yaml:"base" envPrefix:"ARENA_BASE_"`

	Openings     string `yaml:"openings" env:"ARENA_OPENINGS" validate:"required"`
	OpeningOrder string `yaml:"opening_order" env:"ARENA_OPENING_ORDER" validate:"oneof=sequential random"`
	OpeningStart int    `yaml:"opening_start" env:"ARENA_OPENING_START" validate:"gte=0"`
	Seed         uint64 `yaml:"seed" env:"ARENA_SEED"`
	Repeat       int    `yaml:"repeat" env:"ARENA_REPEAT" validate:"gte=1"`

	Concurrency   int `yaml:"concurrency" env:"ARENA_CONCURRENCY" validate:"gte=1"`
	MaxGames      int `yaml:"max_games" env:"ARENA_MAX_GAMES" validate:"gte=0"`
	ScheduleLimit int `yaml:"schedule_limit" env:"ARENA_SCHEDULE_LIMIT" validate:"gte=0"`

	TimeControl    string        `yaml:"tc" env:"ARENA_TC" validate:"required"`
	Margin         time.Duration `yaml:"margin" env:"ARENA_MARGIN" validate:"gte=0"`
	MaxPlies       int           `yaml:"max_plies" env:"ARENA_MAX_PLIES" validate:"gte=0"`
	MoveLimit      string        `yaml:"move_limit" env:"ARENA_MOVE_LIMIT" validate:"oneof=draw discard"`
	GameTimeout    time.Duration `yaml:"game_timeout" env:"ARENA_GAME_TIMEOUT" validate:"gte=0"`
	StartupTimeout time.Duration `yaml:"startup_timeout" env:"ARENA_STARTUP_TIMEOUT" validate:"gt=0"`

	Elo0  float64 `yaml:"elo0" env:"ARENA_ELO0"`
	Elo1  float64 `yaml:"elo1" env:"ARENA_ELO1"`
	Alpha float64 `yaml:"alpha" env:"ARENA_ALPHA" validate:"gt=0,lt=1"`
	Beta  float64 `yaml:"beta" env:"ARENA_BETA" validate:"gt=0,lt=1"`
	Model string  `yaml:"model" env:"ARENA_SPRT_MODEL" validate:"oneof=logistic bayesian"`

	GamesOut    string `yaml:"games_out" env:"ARENA_GAMES_OUT"`
	DatabaseURL string `yaml:"database_url" env:"DATABASE_URL"`
	AutoMigrate bool   `yaml:"auto_migrate" env:"AUTO_MIGRATE"`
	Listen      string `yaml:"listen" env:"ARENA_LISTEN"`
	LogLevel    string `yaml:"log_level" env:"ARENA_LOG_LEVEL" validate:"oneof=trace debug info warn error"`

	StopImmediate bool   `yaml:"stop_immediate" env:"STOP_IMMEDIATE"`
	MaxSeconds    int    `yaml:"max_seconds" env:"MAX_SECONDS" validate:"gte=0"`
	StopFile      string `yaml:"stop_file" env:"STOP_FILE"`
}

func defaultConfig() Config {
	return Config{
		OpeningOrder:   string(openings.Sequential),
		Repeat:         2,
		Concurrency:    1,
		TimeControl:    "10+0.1",
		Margin:         100 * time.Millisecond,
		MaxPlies:       400,
		MoveLimit:      string(game.ScoreDraw),
		StartupTimeout: 10 * time.Second,
		Elo0:           0,
		Elo1:           5,
		Alpha:          0.05,
		Beta:           0.05,
		Model:          string(stats.Logistic),
		LogLevel:       "info",
	}
}

// ParseEnv overlays the process environment onto target.
func ParseEnv(target *Config) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// loadConfig layers .env, the optional YAML file and the environment over
// the defaults. Flags are applied by the caller.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, &ConfigError{Field: ".env", Err: err}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, &ConfigError{Field: "config", Err: err}
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, &ConfigError{Field: "config", Err: fmt.Errorf("%s: %w", path, err)}
		}
	}
	if err := ParseEnv(&cfg); err != nil {
		return cfg, &ConfigError{Err: err}
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks field constraints and the cross-field rules the individual
// packages impose, reporting the first problem found.
func (c *Config) Validate() error {
	c.OpeningOrder = strings.ToLower(strings.TrimSpace(c.OpeningOrder))
	c.Model = strings.ToLower(strings.TrimSpace(c.Model))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))

	if err := validate.Struct(c); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			f := ve[0]
			return &ConfigError{
				Field: f.Namespace(),
				Err:   fmt.Errorf("failed %q check (got %v)", f.Tag(), f.Value()),
			}
		}
		return &ConfigError{Err: err}
	}
	if c.New.Name == c.Base.Name {
		return &ConfigError{Field: "Config.Base.Name", Err: fmt.Errorf("engines need distinct names, both are %q", c.New.Name)}
	}
	if _, err := c.GameConfig(); err != nil {
		return err
	}
	if _, err := c.Params(); err != nil {
		return err
	}
	return nil
}

// Params returns the SPRT hypotheses.
func (c *Config) Params() (stats.Params, error) {
	m, err := stats.ParseModel(c.Model)
	if err != nil {
		return stats.Params{}, &ConfigError{Field: "model", Err: err}
	}
	p := stats.Params{Elo0: c.Elo0, Elo1: c.Elo1, Alpha: c.Alpha, Beta: c.Beta, Model: m}
	if err := p.Validate(); err != nil {
		return p, &ConfigError{Field: "sprt", Err: err}
	}
	return p, nil
}

// GameConfig returns the per-game settings for the runner.
func (c *Config) GameConfig() (game.Config, error) {
	tc, err := game.ParseTimeControl(c.TimeControl)
	if err != nil {
		return game.Config{}, &ConfigError{Field: "tc", Err: err}
	}
	tc.Margin = c.Margin
	if err := tc.Validate(); err != nil {
		return game.Config{}, &ConfigError{Field: "tc", Err: err}
	}
	return game.Config{
		TimeControl:    tc,
		MaxPlies:       c.MaxPlies,
		MoveLimit:      game.MoveLimitPolicy(c.MoveLimit),
		GameTimeout:    c.GameTimeout,
		StartupTimeout: c.StartupTimeout,
	}, nil
}

func (c *Config) SourceOptions() openings.Options {
	return openings.Options{
		Policy: openings.Policy(c.OpeningOrder),
		Repeat: c.Repeat,
		Start:  c.OpeningStart,
		Seed:   c.Seed,
	}
}

// SchedulerOptions bounds the pool. ScheduleLimit counts dispatched games,
// discarded ones included; MaxGames is enforced by the controller instead.
func (c *Config) SchedulerOptions() match.Options {
	return match.Options{Concurrency: c.Concurrency, GamesLimit: c.ScheduleLimit}
}

func (c *Config) Pair() match.Pair {
	return match.Pair{New: c.New.Engine(), Base: c.Base.Engine()}
}
