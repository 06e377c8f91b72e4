// Package config loads the engine configuration from a yaml file with
// environment overrides for secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/postpulse/engage/internal/cache"
	"github.com/postpulse/engage/internal/engine"
	"github.com/postpulse/engage/internal/engine/estimator"
	"github.com/postpulse/engage/internal/signals"
	"github.com/postpulse/engage/internal/timing"
)

// Config is the root configuration for the engine and its surfaces.
type Config struct {
	Server    ServerConfig             `yaml:"server"`
	Storage   StorageConfig            `yaml:"storage"`
	Cache     cache.Config             `yaml:"cache"`
	Estimator EstimatorConfig          `yaml:"estimator"`
	Predictor engine.Config            `yaml:"predictor"`
	Timing    timing.RecommenderConfig `yaml:"timing"`
	Signals   SignalsConfig            `yaml:"signals"`
	Scheduler SchedulerConfig          `yaml:"scheduler"`
	LogLevel  string                   `yaml:"log_level"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver string `yaml:"driver"`
	// DSN is the postgres connection string, or the sqlite file path.
	DSN     string        `yaml:"dsn"`
	Timeout time.Duration `yaml:"timeout"`
}

// EstimatorConfig toggles and configures the AI estimate.
type EstimatorConfig struct {
	Enabled bool                 `yaml:"enabled"`
	HTTP    estimator.HTTPConfig `yaml:"http"`
}

// SignalsConfig toggles the external signal sources. A source without an
// API key stays disabled; that is configuration, not an error.
type SignalsConfig struct {
	Market     signals.MarketConfig     `yaml:"market"`
	News       signals.NewsConfig       `yaml:"news"`
	Aggregator signals.AggregatorConfig `yaml:"aggregator"`
}

// SchedulerConfig configures maintenance jobs (cron syntax).
type SchedulerConfig struct {
	Enabled              bool   `yaml:"enabled"`
	SignalRefreshSpec    string `yaml:"signal_refresh"`          // default */10 * * * *
	HistoryPruneSpec     string `yaml:"history_prune"`           // default 30 3 * * *
	HistoryRetainPerUser int    `yaml:"history_retain_per_user"` // default 300
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:         "127.0.0.1",
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Storage: StorageConfig{
			Driver:  "sqlite",
			DSN:     "engage.db",
			Timeout: 5 * time.Second,
		},
		Estimator: EstimatorConfig{
			Enabled: false,
			HTTP:    estimator.DefaultHTTPConfig(),
		},
		Predictor: engine.DefaultConfig(),
		Timing:    timing.DefaultRecommenderConfig(),
		Signals: SignalsConfig{
			Aggregator: signals.DefaultAggregatorConfig(),
		},
		Scheduler: SchedulerConfig{
			Enabled:              true,
			SignalRefreshSpec:    "*/10 * * * *",
			HistoryPruneSpec:     "30 3 * * *",
			HistoryRetainPerUser: 300,
		},
		LogLevel: "info",
	}
}

// Load reads path (optional) over the defaults, then applies env
// overrides for secrets.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

// applyEnv lets secrets live outside the config file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("ENGAGE_ESTIMATOR_API_KEY"); v != "" {
		cfg.Estimator.HTTP.APIKey = v
	}
	if v := os.Getenv("ENGAGE_MARKET_API_KEY"); v != "" {
		cfg.Signals.Market.APIKey = v
	}
	if v := os.Getenv("ENGAGE_NEWS_API_KEY"); v != "" {
		cfg.Signals.News.APIKey = v
	}
	if v := os.Getenv("ENGAGE_DB_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("ENGAGE_REDIS_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
}
