// Package config loads and validates run configuration for the backfill
// pipeline from YAML files and BACKFILL_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/aager/image-backfill/pkg/limits"
)

// Config is the full run configuration. Values come from defaults, then
// the optional YAML file, then environment overrides.
type Config struct {
	Concurrency int              `mapstructure:"concurrency"`
	BatchSize   int              `mapstructure:"batch_size"`
	Rate        RateConfig       `mapstructure:"rate"`
	Retry       RetryConfig      `mapstructure:"retry"`
	Timeouts    TimeoutConfig    `mapstructure:"timeouts"`
	Download    DownloadConfig   `mapstructure:"download"`
	Drain       DrainConfig      `mapstructure:"drain"`
	Catalog     CatalogConfig    `mapstructure:"catalog"`
	Checkpoint  CheckpointConfig `mapstructure:"checkpoint"`
	Search      SearchConfig     `mapstructure:"search"`
	Removal     RemovalConfig    `mapstructure:"removal"`
	Storage     StorageConfig    `mapstructure:"storage"`
	Report      ReportConfig     `mapstructure:"report"`
}

// RateConfig is the shared budget for calls to external services.
type RateConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// RetryConfig is the per-item retry budget for transient failures.
type RetryConfig struct {
	MaxAttempts       int           `mapstructure:"max_attempts"`
	InitialBackoff    time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff        time.Duration `mapstructure:"max_backoff"`
	BackoffMultiplier float64       `mapstructure:"multiplier"`
	JitterFraction    float64       `mapstructure:"jitter"`
}

// TimeoutConfig bounds each processing stage.
type TimeoutConfig struct {
	Resolve   time.Duration `mapstructure:"resolve"`
	Download  time.Duration `mapstructure:"download"`
	Transform time.Duration `mapstructure:"transform"`
	Upload    time.Duration `mapstructure:"upload"`
	WriteBack time.Duration `mapstructure:"writeback"`
}

// DownloadConfig bounds candidate image downloads.
type DownloadConfig struct {
	MaxBytes int64 `mapstructure:"max_bytes"`
}

// DrainConfig controls cancellation behavior.
type DrainConfig struct {
	// Grace is how long in-flight items may keep running after a
	// cancellation before they are abandoned.
	Grace time.Duration `mapstructure:"grace"`
}

// CatalogConfig selects and addresses the catalog database.
type CatalogConfig struct {
	Driver string `mapstructure:"driver"` // sqlite or postgres
	DSN    string `mapstructure:"dsn"`
}

// CheckpointConfig addresses the durable checkpoint database.
type CheckpointConfig struct {
	Path string `mapstructure:"path"`
}

// SearchConfig addresses the image search service.
type SearchConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// RemovalConfig addresses the background removal service. Disabled means
// images pass through unmodified.
type RemovalConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// StorageConfig selects and addresses the blob store.
type StorageConfig struct {
	Provider      string `mapstructure:"provider"` // minio or fs
	Endpoint      string `mapstructure:"endpoint"`
	Bucket        string `mapstructure:"bucket"`
	AccessKey     string `mapstructure:"access_key"`
	SecretKey     string `mapstructure:"secret_key"`
	UseSSL        bool   `mapstructure:"use_ssl"`
	Prefix        string `mapstructure:"prefix"`
	PublicBaseURL string `mapstructure:"public_base_url"`
	Dir           string `mapstructure:"dir"` // fs provider root
}

// ReportConfig controls run report output.
type ReportConfig struct {
	XLSXPath string `mapstructure:"xlsx_path"`
}

// Load reads configuration from the optional YAML file at path, applies
// environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("backfill")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Every key needs a registered default, even an empty one: Unmarshal
// only visits keys viper knows about, so a BACKFILL_* override for an
// unregistered key would be dropped.
func setDefaults(v *viper.Viper) {
	v.SetDefault("concurrency", 4)
	v.SetDefault("batch_size", 500)
	v.SetDefault("rate.rps", 5.0)
	v.SetDefault("rate.burst", 10)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff", "1s")
	v.SetDefault("retry.max_backoff", "1m")
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter", 0.1)
	v.SetDefault("timeouts.resolve", "10s")
	v.SetDefault("timeouts.download", "30s")
	v.SetDefault("timeouts.transform", "60s")
	v.SetDefault("timeouts.upload", "30s")
	v.SetDefault("timeouts.writeback", "10s")
	v.SetDefault("download.max_bytes", 8<<20)
	v.SetDefault("drain.grace", "30s")
	v.SetDefault("catalog.driver", "sqlite")
	v.SetDefault("catalog.dsn", "catalog.db")
	v.SetDefault("checkpoint.path", "backfill-checkpoint.db")
	v.SetDefault("search.base_url", "")
	v.SetDefault("search.api_key", "")
	v.SetDefault("search.timeout", "10s")
	v.SetDefault("removal.enabled", false)
	v.SetDefault("removal.base_url", "")
	v.SetDefault("removal.api_key", "")
	v.SetDefault("removal.timeout", "60s")
	v.SetDefault("storage.provider", "fs")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.access_key", "")
	v.SetDefault("storage.secret_key", "")
	v.SetDefault("storage.use_ssl", false)
	v.SetDefault("storage.public_base_url", "")
	v.SetDefault("storage.dir", "images")
	v.SetDefault("storage.bucket", "product-images")
	v.SetDefault("storage.prefix", "products")
	v.SetDefault("report.xlsx_path", "")
}

// Validate clamps tunables to safe bounds and rejects impossible values.
func (c *Config) Validate() error {
	c.Concurrency = limits.ClampConcurrency(c.Concurrency)
	c.BatchSize = limits.ClampBatchSize(c.BatchSize)
	c.Rate.RPS = limits.ClampRPS(c.Rate.RPS)
	c.Rate.Burst = limits.ClampBurst(c.Rate.Burst)
	c.Retry.MaxAttempts = limits.ClampAttempts(c.Retry.MaxAttempts)
	c.Download.MaxBytes = limits.ClampDownloadBytes(c.Download.MaxBytes)

	if c.Retry.InitialBackoff <= 0 {
		c.Retry.InitialBackoff = time.Second
	}
	if c.Retry.MaxBackoff < c.Retry.InitialBackoff {
		c.Retry.MaxBackoff = c.Retry.InitialBackoff
	}
	if c.Retry.BackoffMultiplier < 1 {
		c.Retry.BackoffMultiplier = 2
	}
	if c.Retry.JitterFraction < 0 || c.Retry.JitterFraction > 1 {
		c.Retry.JitterFraction = 0.1
	}
	if c.Drain.Grace <= 0 {
		c.Drain.Grace = 30 * time.Second
	}

	switch c.Catalog.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("config: unknown catalog driver %q", c.Catalog.Driver)
	}
	if c.Catalog.DSN == "" {
		return fmt.Errorf("config: catalog.dsn is required")
	}
	if c.Checkpoint.Path == "" {
		return fmt.Errorf("config: checkpoint.path is required")
	}
	if c.Search.BaseURL == "" {
		return fmt.Errorf("config: search.base_url is required")
	}

	switch c.Storage.Provider {
	case "fs":
		if c.Storage.Dir == "" {
			return fmt.Errorf("config: storage.dir is required for the fs provider")
		}
	case "minio":
		if c.Storage.Endpoint == "" || c.Storage.Bucket == "" {
			return fmt.Errorf("config: storage.endpoint and storage.bucket are required for the minio provider")
		}
	default:
		return fmt.Errorf("config: unknown storage provider %q", c.Storage.Provider)
	}

	if c.Removal.Enabled && c.Removal.BaseURL == "" {
		return fmt.Errorf("config: removal.base_url is required when removal is enabled")
	}
	return nil
}
