package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// DefaultPath is read when no config path is given. A missing default file
// is not an error; environment variables and defaults apply.
const DefaultPath = "config.yaml"

// Config holds all configuration for ekaya-lineqa.
// Values come from config.yaml with environment overrides. Secrets come
// only from the environment (or .env).
type Config struct {
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8085"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Version  string `yaml:"-"`

	// SourcesFile lists the production line databases (databases.yaml).
	SourcesFile string `yaml:"sources_file" env:"LINEQA_SOURCES_FILE" env-default:"databases.yaml"`
	// PasswordsFile maps password_ref entries to passwords.
	PasswordsFile string `yaml:"passwords_file" env:"LINEQA_PASSWORDS_FILE" env-default:"passwords.yaml"`

	Storage     StorageConfig     `yaml:"storage"`
	Fetch       FetchConfig       `yaml:"fetch"`
	Combination CombinationConfig `yaml:"combination"`
	Analysis    AnalysisConfig    `yaml:"analysis"`
	Filters     FiltersConfig     `yaml:"filters"`
	Quality     QualityConfig     `yaml:"quality"`
	Metrics     MetricsConfig     `yaml:"metrics"`

	// CredentialsKey decrypts "enc:" values in the passwords file.
	CredentialsKey string `yaml:"-" env:"LINEQA_CREDENTIALS_KEY"`
}

type StorageConfig struct {
	DataDir    string `yaml:"data_dir" env:"LINEQA_DATA_DIR" env-default:"data"`
	MetadataDB string `yaml:"metadata_db" env:"LINEQA_METADATA_DB" env-default:"data/lineqa.db"`
}

// FetchConfig controls the concurrent fetch across sources.
type FetchConfig struct {
	// Workers bounds concurrent source fetches. 0 means runtime.NumCPU().
	Workers              int           `yaml:"workers" env:"LINEQA_FETCH_WORKERS" env-default:"0"`
	SourceTimeout        time.Duration `yaml:"source_timeout" env:"LINEQA_SOURCE_TIMEOUT" env-default:"60s"`
	OrderColumn          string        `yaml:"order_column" env:"LINEQA_ORDER_COLUMN" env-default:"Date"`
	PoolMaxConns         int32         `yaml:"pool_max_conns" env:"LINEQA_POOL_MAX_CONNS" env-default:"10"`
	PoolMinConns         int32         `yaml:"pool_min_conns" env:"LINEQA_POOL_MIN_CONNS" env-default:"1"`
	ConnectionTTLMinutes int           `yaml:"connection_ttl_minutes" env:"LINEQA_CONNECTION_TTL_MINUTES" env-default:"5"`
}

// CombinationConfig holds the defaults for combining line datasets.
type CombinationConfig struct {
	UniqueIdentifier     string `yaml:"unique_identifier" env:"LINEQA_UNIQUE_IDENTIFIER" env-default:"TraceCode"`
	TimestampColumn      string `yaml:"timestamp_column" env:"LINEQA_TIMESTAMP_COLUMN" env-default:"timestamp"`
	MergeStrategy        string `yaml:"merge_strategy" env:"LINEQA_MERGE_STRATEGY" env-default:"latest_wins"`
	ProductionLineColumn string `yaml:"production_line_column" env:"LINEQA_PRODUCTION_LINE_COLUMN" env-default:"production_line"`
	ProductNameColumn    string `yaml:"product_name_column" env:"LINEQA_PRODUCT_NAME_COLUMN" env-default:"RefName"`
	SourceTagColumn      string `yaml:"source_tag_column" env:"LINEQA_SOURCE_TAG_COLUMN" env-default:"source_id"`
	DefaultName          string `yaml:"default_name" env:"LINEQA_DEFAULT_DATASET" env-default:"combined_production_data"`
}

type AnalysisConfig struct {
	OutlierMethod string  `yaml:"outlier_method" env:"LINEQA_OUTLIER_METHOD" env-default:"iqr"`
	OutlierFactor float64 `yaml:"outlier_factor" env:"LINEQA_OUTLIER_FACTOR" env-default:"1.5"`
}

type FiltersConfig struct {
	// DefaultDateRangeDays keeps only the last N days when no date bound is
	// given. 0 or -1 keeps everything.
	DefaultDateRangeDays int  `yaml:"default_date_range_days" env:"LINEQA_DEFAULT_DATE_RANGE_DAYS" env-default:"0"`
	CaseSensitive        bool `yaml:"case_sensitive" env:"LINEQA_CASE_SENSITIVE_FILTERS" env-default:"false"`
}

// QualityConfig holds the RSD thresholds, in percent, for process stability.
type QualityConfig struct {
	StableThreshold   float64 `yaml:"stable_threshold" env:"LINEQA_STABLE_THRESHOLD" env-default:"10"`
	UnstableThreshold float64 `yaml:"unstable_threshold" env:"LINEQA_UNSTABLE_THRESHOLD" env-default:"25"`
}

type MetricsConfig struct {
	DatadogEnabled bool          `yaml:"datadog_enabled" env:"LINEQA_DATADOG_ENABLED" env-default:"false"`
	JobName        string        `yaml:"job_name" env:"LINEQA_METRICS_JOB" env-default:"lineqa"`
	FlushEvery     time.Duration `yaml:"flush_every" env:"LINEQA_METRICS_FLUSH_EVERY" env-default:"10s"`
}

// Load reads .env (if present) and then the YAML config at path with
// environment overrides. An empty path means DefaultPath, which may be absent.
func Load(path, version string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	cfg := &Config{Version: version}

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	_, statErr := os.Stat(path)
	switch {
	case statErr == nil:
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	case explicit || !errors.Is(statErr, fs.ErrNotExist):
		return nil, fmt.Errorf("failed to read %s: %w", path, statErr)
	default:
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks values that cannot be expressed as defaults.
func (c *Config) Validate() error {
	switch c.Combination.MergeStrategy {
	case "latest_wins", "first_occurrence":
	default:
		return fmt.Errorf("combination.merge_strategy must be latest_wins or first_occurrence, got %q", c.Combination.MergeStrategy)
	}
	switch c.Analysis.OutlierMethod {
	case "iqr", "zscore":
	default:
		return fmt.Errorf("analysis.outlier_method must be iqr or zscore, got %q", c.Analysis.OutlierMethod)
	}
	if c.Analysis.OutlierFactor <= 0 {
		return fmt.Errorf("analysis.outlier_factor must be positive, got %v", c.Analysis.OutlierFactor)
	}
	if c.Quality.StableThreshold > c.Quality.UnstableThreshold {
		return fmt.Errorf("quality.stable_threshold (%v) exceeds unstable_threshold (%v)",
			c.Quality.StableThreshold, c.Quality.UnstableThreshold)
	}
	if c.Fetch.Workers < 0 {
		return fmt.Errorf("fetch.workers must not be negative, got %d", c.Fetch.Workers)
	}
	if c.Fetch.SourceTimeout <= 0 {
		return fmt.Errorf("fetch.source_timeout must be positive, got %v", c.Fetch.SourceTimeout)
	}
	return nil
}

// ConnectionTTL is the idle lifetime of cached source pools.
func (c *FetchConfig) ConnectionTTL() time.Duration {
	return time.Duration(c.ConnectionTTLMinutes) * time.Minute
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return c.BindAddr + ":" + c.Port
}
