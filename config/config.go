package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full ledger configuration.
type Config struct {
	API       APIConfig       `yaml:"api"`
	Quotes    QuotesConfig    `yaml:"quotes"`
	Storage   StorageConfig   `yaml:"storage"`
	Repricer  RepricerConfig  `yaml:"repricer"`
	Snapshots SnapshotsConfig `yaml:"snapshots"`
	Server    ServerConfig    `yaml:"server"`
	Lock      LockConfig      `yaml:"lock"`
	Log       LogConfig       `yaml:"log"`
}

// APIConfig holds API base URLs.
type APIConfig struct {
	GammaBase string `yaml:"gamma_base"`
}

// QuotesConfig controls how prices are requested from Gamma.
type QuotesConfig struct {
	BatchSize      int     `yaml:"batch_size"`       // ids per request
	BatchDelayMS   int     `yaml:"batch_delay_ms"`   // fixed pause between batches
	RatePerSecond  float64 `yaml:"rate_per_second"`  // token bucket across all requests
	TimeoutSeconds int     `yaml:"timeout_seconds"`
}

// StorageConfig controls where data is persisted.
type StorageConfig struct {
	Driver string `yaml:"driver"` // sqlite | postgres
	DSN    string `yaml:"dsn"`    // SQLite path (":memory:" works) or postgres URL
}

// RepricerConfig controls scheduled mark-to-market.
type RepricerConfig struct {
	Disabled                   bool   `yaml:"disabled"`
	Schedule                   string `yaml:"schedule"` // 5-field cron or "@every 5m"
	Workers                    int    `yaml:"workers"`  // 0 = NumCPU
	TimeoutSeconds             int    `yaml:"timeout_seconds"`
	RequireClosedForSettlement bool   `yaml:"require_closed_for_settlement"`
}

// SnapshotsConfig controls the daily portfolio snapshot.
type SnapshotsConfig struct {
	Disabled bool   `yaml:"disabled"`
	Schedule string `yaml:"schedule"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Addr                  string   `yaml:"addr"`
	AllowedOrigins        []string `yaml:"allowed_origins"`
	RequestTimeoutSeconds int      `yaml:"request_timeout_seconds"`
}

// LockConfig enables the distributed lock for scheduled jobs.
// Without RedisURL every instance runs its own jobs.
type LockConfig struct {
	RedisURL   string `yaml:"redis_url"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

// LogConfig controls log format and level.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load reads the YAML file and the .env file if present.
// Environment variables override YAML values.
// An empty path starts from env + defaults only.
func Load(path string) (*Config, error) {
	// load .env if present (no file is not an error)
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// BatchDelay returns the pause between batches.
func (c *Config) BatchDelay() time.Duration {
	return time.Duration(c.Quotes.BatchDelayMS) * time.Millisecond
}

// QuoteTimeout is the HTTP timeout per Gamma request.
func (c *Config) QuoteTimeout() time.Duration {
	return time.Duration(c.Quotes.TimeoutSeconds) * time.Second
}

// RepriceTimeout bounds one repricing pass.
func (c *Config) RepriceTimeout() time.Duration {
	return time.Duration(c.Repricer.TimeoutSeconds) * time.Second
}

// LockTTL is the maximum lifetime of a job lock.
func (c *Config) LockTTL() time.Duration {
	return time.Duration(c.Lock.TTLSeconds) * time.Second
}

// RequestTimeout is the per-request HTTP timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// applyEnvOverrides overrides values with environment variables when set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("STORAGE_DRIVER"); v != "" {
		cfg.Storage.Driver = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Storage.DSN = v
		// a postgres URL implies the driver unless one was set
		if cfg.Storage.Driver == "" && (strings.HasPrefix(v, "postgres://") || strings.HasPrefix(v, "postgresql://")) {
			cfg.Storage.Driver = "postgres"
		}
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Lock.RedisURL = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("GAMMA_BASE"); v != "" {
		cfg.API.GammaBase = v
	}
}

// setDefaults fills required values with sane defaults.
func setDefaults(cfg *Config) {
	if cfg.API.GammaBase == "" {
		cfg.API.GammaBase = "https://gamma-api.polymarket.com"
	}
	if cfg.Quotes.BatchSize <= 0 {
		cfg.Quotes.BatchSize = 10
	}
	if cfg.Quotes.BatchDelayMS <= 0 {
		cfg.Quotes.BatchDelayMS = 500
	}
	if cfg.Quotes.RatePerSecond <= 0 {
		cfg.Quotes.RatePerSecond = 18 // below Gamma's public limit
	}
	if cfg.Quotes.TimeoutSeconds <= 0 {
		cfg.Quotes.TimeoutSeconds = 10
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "polyledger.db"
	}
	if cfg.Repricer.Schedule == "" {
		cfg.Repricer.Schedule = "@every 5m"
	}
	if cfg.Repricer.TimeoutSeconds <= 0 {
		cfg.Repricer.TimeoutSeconds = 120
	}
	if cfg.Snapshots.Schedule == "" {
		cfg.Snapshots.Schedule = "5 0 * * *"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.RequestTimeoutSeconds <= 0 {
		cfg.Server.RequestTimeoutSeconds = 60
	}
	if cfg.Lock.TTLSeconds <= 0 {
		cfg.Lock.TTLSeconds = 600
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("storage.driver must be sqlite or postgres, got %q", c.Storage.Driver)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}
