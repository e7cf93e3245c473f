package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
	"pickside-quiz-service/internal/app"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Deck struct {
		ID  string `yaml:"id"`
		TTL string `yaml:"ttl"`
	} `yaml:"deck"`
	Game struct {
		RoundDuration   string `yaml:"round_duration"`
		EvalBuffer      string `yaml:"eval_buffer"`
		GracePeriod     string `yaml:"grace_period"`
		BasePoints      int    `yaml:"base_points"`
		FastestBonus    int    `yaml:"fastest_bonus"`
		StreakBonus     int    `yaml:"streak_bonus"`
		StreakLength    int    `yaml:"streak_length"`
		LeaderboardSize int    `yaml:"leaderboard_size"`
		CheckpointEvery int    `yaml:"checkpoint_every"`
		CheckpointDelay string `yaml:"checkpoint_delay"`
	} `yaml:"game"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Rules maps the game section onto session rules, keeping the defaults
// for anything left unset.
func (c Config) Rules() app.Rules {
	rules := app.DefaultRules()
	rules.RoundDuration = TTLDuration(c.Game.RoundDuration, rules.RoundDuration)
	rules.EvalBuffer = TTLDuration(c.Game.EvalBuffer, rules.EvalBuffer)
	rules.GracePeriod = TTLDuration(c.Game.GracePeriod, rules.GracePeriod)
	rules.CheckpointDelay = TTLDuration(c.Game.CheckpointDelay, rules.CheckpointDelay)
	if c.Game.BasePoints > 0 {
		rules.BasePoints = c.Game.BasePoints
	}
	if c.Game.FastestBonus > 0 {
		rules.FastestBonus = c.Game.FastestBonus
	}
	if c.Game.StreakBonus > 0 {
		rules.StreakBonus = c.Game.StreakBonus
	}
	if c.Game.StreakLength > 0 {
		rules.StreakLength = c.Game.StreakLength
	}
	if c.Game.LeaderboardSize > 0 {
		rules.LeaderboardSize = c.Game.LeaderboardSize
	}
	if c.Game.CheckpointEvery > 0 {
		rules.CheckpointEvery = c.Game.CheckpointEvery
	}
	return rules
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
