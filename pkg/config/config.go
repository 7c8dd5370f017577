// Package config loads harvester configuration from defaults, an optional
// YAML file, a .env file and HARVESTER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Sternrassler/catalog-harvester/pkg/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. HARVESTER_CATALOG_API_KEY.
const EnvPrefix = "HARVESTER"

// Config is the full harvester configuration.
type Config struct {
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Harvest  HarvestConfig  `mapstructure:"harvest"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// CatalogConfig configures the catalog API client and discover filter.
type CatalogConfig struct {
	BaseURL              string        `mapstructure:"base_url"`
	APIKey               string        `mapstructure:"api_key"`
	BearerToken          string        `mapstructure:"bearer_token"`
	UserAgent            string        `mapstructure:"user_agent"`
	Timeout              time.Duration `mapstructure:"timeout"`
	Language             string        `mapstructure:"language"`
	IncludeAdult         bool          `mapstructure:"include_adult"`
	MinRuntime           int           `mapstructure:"min_runtime"`
	CertificationCountry string        `mapstructure:"certification_country"`
	CertificationLTE     string        `mapstructure:"certification_lte"`
	MemoSize             int           `mapstructure:"memo_size"`
	Retry                RetryConfig   `mapstructure:"retry"`
}

// RetryConfig overrides the per-error-class retry policies when MaxAttempts
// is positive.
type RetryConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	Multiplier     float64       `mapstructure:"multiplier"`
}

// HarvestConfig tunes the pipeline.
type HarvestConfig struct {
	Workers              int           `mapstructure:"workers"`
	PartitionConcurrency int           `mapstructure:"partition_concurrency"`
	UnitTimeout          time.Duration `mapstructure:"unit_timeout"`
	ReconcilePasses      int           `mapstructure:"reconcile_passes"`
	MaxPages             int           `mapstructure:"max_pages"`
}

// RedisConfig enables the response cache and shared rate limit state when
// Addr is set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// StorageConfig selects where artifacts live. BucketURL wins over LocalDir.
type StorageConfig struct {
	LocalDir     string `mapstructure:"local_dir"`
	BucketURL    string `mapstructure:"bucket_url"`
	MirrorURL    string `mapstructure:"mirror_url"`
	MirrorPrefix string `mapstructure:"mirror_prefix"`
}

// DatabaseConfig configures the relational store.
type DatabaseConfig struct {
	DSN     string `mapstructure:"dsn"`
	Migrate bool   `mapstructure:"migrate"`
}

// LoggingConfig configures zerolog.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// MetricsConfig configures the metrics listener. Empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load reads configuration. An empty path looks for ./config.yaml and
// ./config/config.yaml and tolerates their absence; an explicit path must
// exist.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.BindEnv("catalog.api_key", EnvPrefix+"_CATALOG_API_KEY", "TMDB_API_KEY"); err != nil {
		return nil, fmt.Errorf("bind api key env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("catalog.base_url", "https://api.themoviedb.org/3")
	v.SetDefault("catalog.api_key", "")
	v.SetDefault("catalog.bearer_token", "")
	v.SetDefault("catalog.user_agent", "catalog-harvester/0.1.0")
	v.SetDefault("catalog.timeout", 30*time.Second)
	v.SetDefault("catalog.language", "")
	v.SetDefault("catalog.include_adult", false)
	v.SetDefault("catalog.min_runtime", 40)
	v.SetDefault("catalog.certification_country", "")
	v.SetDefault("catalog.certification_lte", "")
	v.SetDefault("catalog.memo_size", 4096)
	v.SetDefault("catalog.retry.max_attempts", 0)
	v.SetDefault("catalog.retry.initial_backoff", 700*time.Millisecond)
	v.SetDefault("catalog.retry.max_backoff", 30*time.Second)
	v.SetDefault("catalog.retry.multiplier", 2.0)

	v.SetDefault("harvest.workers", 8)
	v.SetDefault("harvest.partition_concurrency", 1)
	v.SetDefault("harvest.unit_timeout", 2*time.Minute)
	v.SetDefault("harvest.reconcile_passes", 1)
	v.SetDefault("harvest.max_pages", 500)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("storage.local_dir", "./data")
	v.SetDefault("storage.bucket_url", "")
	v.SetDefault("storage.mirror_url", "")
	v.SetDefault("storage.mirror_prefix", "")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.migrate", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.pretty", false)

	v.SetDefault("metrics.addr", "")
}

// Validate checks that the configuration is coherent.
func (c *Config) Validate() error {
	if c.Catalog.BaseURL == "" {
		return fmt.Errorf("catalog base URL cannot be empty")
	}
	u, err := url.Parse(c.Catalog.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid catalog base URL: %w", err)
	}
	if u.Host == "" {
		return fmt.Errorf("catalog base URL must include a host")
	}
	if c.Catalog.APIKey == "" && c.Catalog.BearerToken == "" {
		return fmt.Errorf("catalog api key or bearer token is required")
	}
	if c.Catalog.Timeout <= 0 {
		return fmt.Errorf("catalog timeout must be positive")
	}
	if c.Catalog.MinRuntime < 0 {
		return fmt.Errorf("min runtime cannot be negative")
	}
	if c.Catalog.MemoSize < 0 {
		return fmt.Errorf("memo size cannot be negative")
	}
	if c.Catalog.Retry.MaxAttempts < 0 {
		return fmt.Errorf("retry max attempts cannot be negative")
	}
	if c.Catalog.Retry.MaxAttempts > 0 && c.Catalog.Retry.Multiplier < 1 {
		return fmt.Errorf("retry multiplier must be at least 1")
	}

	if c.Harvest.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if c.Harvest.PartitionConcurrency <= 0 {
		return fmt.Errorf("partition concurrency must be positive")
	}
	if c.Harvest.UnitTimeout < 0 {
		return fmt.Errorf("unit timeout cannot be negative")
	}
	if c.Harvest.ReconcilePasses < 0 {
		return fmt.Errorf("reconcile passes cannot be negative")
	}
	if c.Harvest.MaxPages <= 0 || c.Harvest.MaxPages > 500 {
		return fmt.Errorf("max pages must be between 1 and 500")
	}

	if c.Storage.LocalDir == "" && c.Storage.BucketURL == "" {
		return fmt.Errorf("storage local dir or bucket URL is required")
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return err
	}

	return nil
}
