package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for adpilot-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, tokens) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8080"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// MigrationsPath points at the SQL migration directory.
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"./migrations"`

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Redis configuration (optional entity snapshot cache)
	Redis RedisConfig `yaml:"redis"`

	// Meta Marketing API client configuration
	Meta MetaConfig `yaml:"meta"`

	// Automation sweep configuration
	Automation AutomationConfig `yaml:"automation"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"adpilot"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"adpilot_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// RedisConfig holds the optional Redis cache configuration. An empty Host
// disables caching entirely.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	// SnapshotTTLSeconds bounds how stale a cached entity snapshot may be
	// before a remote refresh is forced.
	SnapshotTTLSeconds int `yaml:"snapshot_ttl_seconds" env:"REDIS_SNAPSHOT_TTL_SECONDS" env-default:"300"`
}

// MetaConfig holds Meta Marketing API client configuration.
type MetaConfig struct {
	BaseURL     string `yaml:"base_url" env:"META_BASE_URL" env-default:"https://graph.facebook.com/v19.0"`
	AppID       string `yaml:"app_id" env:"META_APP_ID" env-default:""`
	AppSecret   string `yaml:"-" env:"META_APP_SECRET"`   // Secret - not in YAML
	AccessToken string `yaml:"-" env:"META_ACCESS_TOKEN"` // Secret - not in YAML

	// Retry policy for transient upstream errors.
	MaxRetries         int     `yaml:"max_retries" env:"META_MAX_RETRIES" env-default:"3"`
	RetryBaseDelayMS   int     `yaml:"retry_base_delay_ms" env:"META_RETRY_BASE_DELAY_MS" env-default:"500"`
	RetryMaxDelayMS    int     `yaml:"retry_max_delay_ms" env:"META_RETRY_MAX_DELAY_MS" env-default:"30000"`
	RetryMultiplier    float64 `yaml:"retry_multiplier" env:"META_RETRY_MULTIPLIER" env-default:"2.0"`
	CallTimeoutSeconds int     `yaml:"call_timeout_seconds" env:"META_CALL_TIMEOUT_SECONDS" env-default:"30"`
}

// AutomationConfig holds sweep and execution defaults.
type AutomationConfig struct {
	// Level is the default automation level for sweeps that don't specify one.
	Level string `yaml:"level" env:"AUTOMATION_LEVEL" env-default:"hybrid"`
	// SweepConcurrency bounds how many ad sets one sweep processes at once.
	SweepConcurrency int `yaml:"sweep_concurrency" env:"AUTOMATION_SWEEP_CONCURRENCY" env-default:"4"`
	// SweepTimeoutSeconds bounds a whole background sweep.
	SweepTimeoutSeconds int `yaml:"sweep_timeout_seconds" env:"AUTOMATION_SWEEP_TIMEOUT_SECONDS" env-default:"300"`
	// MetricsWindowDays is the lookback window for metric aggregation.
	MetricsWindowDays int `yaml:"metrics_window_days" env:"AUTOMATION_METRICS_WINDOW_DAYS" env-default:"7"`
	// DefaultCampaignBudget is the daily budget assigned to campaigns the
	// engine creates (account currency units).
	DefaultCampaignBudget float64 `yaml:"default_campaign_budget" env:"AUTOMATION_DEFAULT_CAMPAIGN_BUDGET" env-default:"50.0"`
	// SeedRulesPath optionally points at a YAML rule set loaded at startup.
	SeedRulesPath string `yaml:"seed_rules_path" env:"AUTOMATION_SEED_RULES_PATH" env-default:""`
	// SeedUserID is the user the seed rules are created under. Required
	// when SeedRulesPath is set.
	SeedUserID string `yaml:"seed_user_id" env:"AUTOMATION_SEED_USER_ID" env-default:""`
}

// Load reads configuration from config.yaml with environment variable
// overrides. The version parameter is injected at build time and set on the
// returned Config. Secrets (PGPASSWORD, META_APP_SECRET, META_ACCESS_TOKEN)
// must come from environment variables (yaml:"-" fields).
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Meta.MaxRetries < 1 {
		return fmt.Errorf("meta.max_retries must be at least 1, got %d", c.Meta.MaxRetries)
	}
	if c.Automation.SweepConcurrency < 1 {
		return fmt.Errorf("automation.sweep_concurrency must be at least 1, got %d", c.Automation.SweepConcurrency)
	}
	switch c.Automation.Level {
	case "autonomous", "approval_required", "hybrid":
	default:
		return fmt.Errorf("automation.level must be one of autonomous, approval_required, hybrid; got %q", c.Automation.Level)
	}
	return nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// CallTimeout returns the per-call timeout as a duration.
func (c *MetaConfig) CallTimeout() time.Duration {
	return time.Duration(c.CallTimeoutSeconds) * time.Second
}

// RetryBaseDelay returns the initial backoff delay as a duration.
func (c *MetaConfig) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMS) * time.Millisecond
}

// RetryMaxDelay returns the backoff cap as a duration.
func (c *MetaConfig) RetryMaxDelay() time.Duration {
	return time.Duration(c.RetryMaxDelayMS) * time.Millisecond
}

// SnapshotTTL returns the cache TTL as a duration.
func (c *RedisConfig) SnapshotTTL() time.Duration {
	return time.Duration(c.SnapshotTTLSeconds) * time.Second
}

// SweepTimeout returns the sweep deadline as a duration.
func (c *AutomationConfig) SweepTimeout() time.Duration {
	return time.Duration(c.SweepTimeoutSeconds) * time.Second
}

// MetricsWindow returns the aggregation lookback as a duration.
func (c *AutomationConfig) MetricsWindow() time.Duration {
	return time.Duration(c.MetricsWindowDays) * 24 * time.Hour
}
