// Package config loads the server configuration from TOWER_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full server configuration.
type Config struct {
	Addr             string        `env:"TOWER_ADDR"            envDefault:":8080"`
	Store            string        `env:"TOWER_STORE"           envDefault:"sqlite"`
	DBPath           string        `env:"TOWER_DB_PATH"         envDefault:"data/tower.db"`
	BoltPath         string        `env:"TOWER_BOLT_PATH"       envDefault:"data/tower.bolt"`
	TickRate         time.Duration `env:"TOWER_TICK_RATE"       envDefault:"50ms"`
	AutosaveInterval time.Duration `env:"TOWER_AUTOSAVE"        envDefault:"30s"`
	DifficultyName   string        `env:"TOWER_DIFFICULTY"      envDefault:"normal"`
	Layout           string        `env:"TOWER_LAYOUT"          envDefault:"frontier"`
	Floors           int           `env:"TOWER_FLOORS"          envDefault:"16"`
	Seed             uint64        `env:"TOWER_SEED"`
	Profile          string        `env:"TOWER_PROFILE"         envDefault:"default"`
	Restore          bool          `env:"TOWER_RESTORE"         envDefault:"true"`

	AssetTimeout     time.Duration `env:"TOWER_ASSET_TIMEOUT"   envDefault:"20s"`
	AssetCacheSize   int           `env:"TOWER_ASSET_CACHE"     envDefault:"256"`
	OpenAIKey        string        `env:"OPENAI_API_KEY"`
	AnthropicKey     string        `env:"ANTHROPIC_API_KEY"`
	DailyBudgetUSD   float64       `env:"TOWER_AI_DAILY_BUDGET"   envDefault:"2"`
	MonthlyBudgetUSD float64       `env:"TOWER_AI_MONTHLY_BUDGET" envDefault:"20"`
}

// Load parses the environment, applies defaults and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every unusable setting at once.
func (c Config) Validate() error {
	var problems []string
	if c.Store != "sqlite" && c.Store != "bolt" {
		problems = append(problems, "TOWER_STORE must be sqlite or bolt")
	}
	if c.TickRate <= 0 {
		problems = append(problems, "TOWER_TICK_RATE must be positive")
	}
	if c.Layout != "frontier" && c.Layout != "uniform" {
		problems = append(problems, "TOWER_LAYOUT must be frontier or uniform")
	}
	if c.Layout == "uniform" && c.Floors < 2 {
		problems = append(problems, "TOWER_FLOORS must be at least 2")
	}
	if _, err := DifficultyByName(c.DifficultyName); err != nil {
		problems = append(problems, err.Error())
	}
	if _, err := TuningByName(c.Profile); err != nil {
		problems = append(problems, err.Error())
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Difficulty returns the selected difficulty preset.
func (c Config) Difficulty() Difficulty {
	d, err := DifficultyByName(c.DifficultyName)
	if err != nil {
		return NormalDifficulty()
	}
	return d
}

// Tuning returns the selected runtime tuning profile.
func (c Config) Tuning() *Tuning {
	t, err := TuningByName(c.Profile)
	if err != nil {
		return DefaultTuning()
	}
	return t
}
