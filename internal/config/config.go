package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all runtime settings of the merge service.
type Config struct {
	Server struct {
		Host           string `yaml:"host"`
		Port           string `yaml:"port"`
		Prefork        bool   `yaml:"prefork"`
		BodyLimitBytes int    `yaml:"body_limit_bytes"`
	} `yaml:"server"`

	Logger struct {
		File       string `yaml:"file"`
		Level      string `yaml:"level"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"logger"`

	Cache struct {
		RedisHost         string        `yaml:"redis_host"`
		RateLimitDB       int           `yaml:"redis_rate_db"`
		MergeCacheDB      int           `yaml:"redis_merge_db"`
		MergeCacheEnabled bool          `yaml:"merge_cache_enabled"`
		MergeCacheTTL     time.Duration `yaml:"merge_cache_ttl"`
	} `yaml:"cache"`

	RateLimiter struct {
		Interval          time.Duration `yaml:"interval"`
		UserLimit         int           `yaml:"user_limit"`
		EnableUserLimiter bool          `yaml:"enable_user_limiter"`
	} `yaml:"rate_limiter"`

	Auth struct {
		Postgres            PostgresConfig `yaml:"postgres"`
		TokenReloadInterval time.Duration  `yaml:"token_reload_interval"`
	} `yaml:"auth"`

	Limits struct {
		MaxDocuments   int `yaml:"max_documents"`
		MaxMergedBytes int `yaml:"max_merged_bytes"`
	} `yaml:"limits"`

	Merge MergeConfig `yaml:"merge"`
}

// PostgresConfig describes the API token database. Host may also carry a
// full postgres:// URL, in which case the other fields are ignored.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

// Enabled reports whether token auth against Postgres is configured.
func (p PostgresConfig) Enabled() bool {
	return p.Host != ""
}

// MergeConfig controls the PDF engine and the session store.
type MergeConfig struct {
	ValidationMode       string        `yaml:"validation_mode"`
	DividerPage          bool          `yaml:"divider_page"`
	DefaultFilename      string        `yaml:"default_filename"`
	SessionTTL           time.Duration `yaml:"session_ttl"`
	SessionSweepInterval time.Duration `yaml:"session_sweep_interval"`
}

const (
	defaultConfigPath     = "config.yaml"
	defaultFilename       = "merged_document.pdf"
	defaultSessionTTL     = 30 * time.Minute
	defaultSweepInterval  = time.Minute
	defaultReloadInterval = time.Minute
	defaultMaxDocuments   = 50
	defaultMaxMergedBytes = 256 << 20
	defaultBodyLimitBytes = 128 << 20
	validationModeRelaxed = "relaxed"
	validationModeStrict  = "strict"
)

// Load reads the configuration from CONFIG_PATH, or config.yaml when unset.
func Load() Config {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = defaultConfigPath
	}
	return LoadFrom(path)
}

// LoadFrom reads, defaults and validates the YAML file at path. It panics on
// unreadable files and invalid values, since the service cannot start without
// a usable configuration.
func LoadFrom(path string) Config {
	raw, err := os.ReadFile(path)
	if err != nil {
		panic(fmt.Sprintf("config: cannot read %s: %v", path, err))
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		panic(fmt.Sprintf("config: cannot parse %s: %v", path, err))
	}

	if v := os.Getenv("REDIS_HOST"); v != "" {
		cfg.Cache.RedisHost = v
	}

	applyDefaults(&cfg)
	if err := validate(cfg); err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}

	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = ":8080"
	}
	if cfg.Server.BodyLimitBytes == 0 {
		cfg.Server.BodyLimitBytes = defaultBodyLimitBytes
	}
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "info"
	}
	if cfg.RateLimiter.Interval == 0 {
		cfg.RateLimiter.Interval = time.Minute
	}
	if cfg.Auth.TokenReloadInterval == 0 {
		cfg.Auth.TokenReloadInterval = defaultReloadInterval
	}
	if cfg.Limits.MaxDocuments == 0 {
		cfg.Limits.MaxDocuments = defaultMaxDocuments
	}
	if cfg.Limits.MaxMergedBytes == 0 {
		cfg.Limits.MaxMergedBytes = defaultMaxMergedBytes
	}
	if cfg.Merge.ValidationMode == "" {
		cfg.Merge.ValidationMode = validationModeRelaxed
	}
	if cfg.Merge.DefaultFilename == "" {
		cfg.Merge.DefaultFilename = defaultFilename
	}
	if cfg.Merge.SessionTTL == 0 {
		cfg.Merge.SessionTTL = defaultSessionTTL
	}
	if cfg.Merge.SessionSweepInterval == 0 {
		cfg.Merge.SessionSweepInterval = defaultSweepInterval
	}
}

func validate(cfg Config) error {
	if cfg.Server.BodyLimitBytes < 0 {
		return fmt.Errorf("server.body_limit_bytes must not be negative")
	}
	if cfg.RateLimiter.Interval < 0 {
		return fmt.Errorf("rate_limiter.interval must not be negative")
	}
	if cfg.RateLimiter.UserLimit < 0 {
		return fmt.Errorf("rate_limiter.user_limit must not be negative")
	}
	if cfg.Auth.TokenReloadInterval < 0 {
		return fmt.Errorf("auth.token_reload_interval must not be negative")
	}
	if cfg.Limits.MaxDocuments < 0 {
		return fmt.Errorf("limits.max_documents must not be negative")
	}
	if cfg.Limits.MaxMergedBytes < 0 {
		return fmt.Errorf("limits.max_merged_bytes must not be negative")
	}
	switch cfg.Merge.ValidationMode {
	case validationModeRelaxed, validationModeStrict:
	default:
		return fmt.Errorf("merge.validation_mode must be %q or %q, got %q",
			validationModeRelaxed, validationModeStrict, cfg.Merge.ValidationMode)
	}
	if cfg.Merge.SessionTTL < 0 {
		return fmt.Errorf("merge.session_ttl must not be negative")
	}
	if cfg.Merge.SessionSweepInterval < 0 {
		return fmt.Errorf("merge.session_sweep_interval must not be negative")
	}
	return nil
}
