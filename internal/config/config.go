// Package config loads process configuration from an optional YAML file,
// an optional .env file, and the environment. Environment variables always
// win; secrets (API keys) are read from the environment only.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the ingest pipeline.
type Config struct {
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`

	Storage StorageConfig `yaml:"storage"`
	Oracle  OracleConfig  `yaml:"oracle"`
	Ingest  IngestConfig  `yaml:"ingest"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	// Kind is one of sqlite, postgres, mssql.
	Kind string `yaml:"kind" env:"STORAGE_KIND" env-default:"sqlite"`
	DSN  string `yaml:"-" env:"DATABASE_URL" env-default:"water.db"`
}

// OracleConfig configures the language-model collaborators.
type OracleConfig struct {
	// Provider is openai (any OpenAI-compatible endpoint), anthropic or none.
	Provider string        `yaml:"provider" env:"ORACLE_PROVIDER" env-default:"none"`
	APIKey   string        `yaml:"-" env:"ORACLE_API_KEY"`
	BaseURL  string        `yaml:"base_url" env:"ORACLE_BASE_URL" env-default:"https://api.groq.com/openai/v1"`
	Model    string        `yaml:"model" env:"ORACLE_MODEL" env-default:"llama-3.1-8b-instant"`
	Timeout  time.Duration `yaml:"timeout" env:"ORACLE_TIMEOUT" env-default:"30s"`
}

// IngestConfig holds request defaults the CLI can override per call.
type IngestConfig struct {
	Mode           string `yaml:"mode" env:"INGEST_MODE" env-default:"new"`
	UseFingerprint bool   `yaml:"use_fingerprint" env:"INGEST_USE_FINGERPRINT" env-default:"true"`
	RequireSite    bool   `yaml:"require_site" env:"INGEST_REQUIRE_SITE" env-default:"false"`
}

// MetricsConfig selects a metrics backend.
type MetricsConfig struct {
	// Backend is none, datadog or pushgateway.
	Backend        string        `yaml:"backend" env:"METRICS_BACKEND" env-default:"none"`
	PushgatewayURL string        `yaml:"pushgateway_url" env:"PUSHGATEWAY_URL" env-default:"http://localhost:9091"`
	Job            string        `yaml:"job" env:"METRICS_JOB" env-default:"water_ingest"`
	Tags           string        `yaml:"tags" env:"METRICS_TAGS" env-default:""`
	FlushEvery     time.Duration `yaml:"flush_every" env:"METRICS_FLUSH_EVERY" env-default:"60s"`
}

// Load reads path (YAML) when non-empty, otherwise the environment only.
// A .env file in the working directory is loaded first if present; it never
// overrides variables that are already set. Without DATABASE_URL the DSN is
// assembled from DSN_* variables when any is set (see ComponentDSN).
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if path != "" {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	if strings.TrimSpace(os.Getenv("DATABASE_URL")) == "" {
		dsn, ok, err := ComponentDSN(cfg.Storage.Kind)
		if err != nil {
			return nil, err
		}
		if ok {
			cfg.Storage.DSN = dsn
		}
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.Storage.Kind = strings.ToLower(strings.TrimSpace(c.Storage.Kind))
	c.Oracle.Provider = strings.ToLower(strings.TrimSpace(c.Oracle.Provider))
	c.Ingest.Mode = strings.ToLower(strings.TrimSpace(c.Ingest.Mode))
	c.Metrics.Backend = strings.ToLower(strings.TrimSpace(c.Metrics.Backend))
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level %q: want debug|info|warn|error", c.LogLevel))
	}

	switch c.Storage.Kind {
	case "sqlite", "postgres", "mssql":
	default:
		errs = append(errs, fmt.Errorf("storage.kind %q: want sqlite|postgres|mssql", c.Storage.Kind))
	}
	if strings.TrimSpace(c.Storage.DSN) == "" {
		errs = append(errs, errors.New("storage dsn (DATABASE_URL) is required"))
	}

	switch c.Oracle.Provider {
	case "none", "":
	case "openai", "anthropic":
		if c.Oracle.APIKey == "" {
			errs = append(errs, fmt.Errorf("oracle provider %s needs ORACLE_API_KEY", c.Oracle.Provider))
		}
		if c.Oracle.Model == "" {
			errs = append(errs, errors.New("oracle.model is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("oracle.provider %q: want openai|anthropic|none", c.Oracle.Provider))
	}
	if c.Oracle.Timeout <= 0 {
		errs = append(errs, errors.New("oracle.timeout must be positive"))
	}

	switch c.Ingest.Mode {
	case "new", "append_auto", "append_to":
	default:
		errs = append(errs, fmt.Errorf("ingest.mode %q: want new|append_auto|append_to", c.Ingest.Mode))
	}

	switch c.Metrics.Backend {
	case "none", "", "datadog":
	case "pushgateway":
		if c.Metrics.PushgatewayURL == "" {
			errs = append(errs, errors.New("metrics.pushgateway_url is required for pushgateway"))
		}
	default:
		errs = append(errs, fmt.Errorf("metrics.backend %q: want none|datadog|pushgateway", c.Metrics.Backend))
	}

	return errors.Join(errs...)
}

// Exists reports whether path names a readable file; used by the CLI to
// pick up ./config.yaml when no -config flag is given.
func Exists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}
