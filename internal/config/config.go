// Package config provides configuration management for the submission service.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the submission service.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Store       StoreConfig       `mapstructure:"store"`
	Ledger      LedgerConfig      `mapstructure:"ledger"`
	Retry       RetryConfig       `mapstructure:"retry"`
	RateLimiter RateLimiterConfig `mapstructure:"rate_limiter"`
	CORS        CORSConfig        `mapstructure:"cors"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Tracing     TracingConfig     `mapstructure:"tracing"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StoreConfig selects and configures the versioned file store.
type StoreConfig struct {
	Backend  string         `mapstructure:"backend"`
	Timeout  time.Duration  `mapstructure:"timeout"`
	GitHub   GitHubConfig   `mapstructure:"github"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// GitHubConfig identifies the repository holding the ledger.
type GitHubConfig struct {
	Token   string `mapstructure:"token"`
	Owner   string `mapstructure:"owner"`
	Repo    string `mapstructure:"repo"`
	Branch  string `mapstructure:"branch"`
	BaseURL string `mapstructure:"base_url"`
}

type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

// LedgerConfig describes the ledger file.
type LedgerConfig struct {
	Path         string `mapstructure:"path"`
	EscapeFields bool   `mapstructure:"escape_fields"`
}

// RetryConfig bounds retries of conflicting appends. MaxAttempts of 1
// disables retrying.
type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

// RateLimiterConfig holds rate limiter configuration.
type RateLimiterConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	BurstSize         int     `mapstructure:"burst_size"`
}

type CORSConfig struct {
	AllowedOrigin string `mapstructure:"allowed_origin"`
}

// MetricsConfig holds Prometheus metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TracingConfig enables OTLP/HTTP trace export when Endpoint is set.
type TracingConfig struct {
	Endpoint    string `mapstructure:"endpoint"`
	Insecure    bool   `mapstructure:"insecure"`
	ServiceName string `mapstructure:"service_name"`
}

// legacyEnv maps the unprefixed variable names of older deployments onto keys.
var legacyEnv = map[string]string{
	"store.github.token": "GITHUB_TOKEN",
	"store.github.owner": "REPO_OWNER",
	"store.github.repo":  "REPO_NAME",
}

// Load reads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/memberledger/")
	}

	v.SetEnvPrefix("MEMBERLEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Prefixed variables and the config file win over the legacy names.
	for key, env := range legacyEnv {
		val, ok := os.LookupEnv(env)
		if !ok || v.InConfig(key) {
			continue
		}
		if _, prefixed := os.LookupEnv(envName(key)); prefixed {
			continue
		}
		v.Set(key, val)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func envName(key string) string {
	return "MEMBERLEDGER_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "20s")

	v.SetDefault("store.backend", "github")
	v.SetDefault("store.timeout", "10s")
	v.SetDefault("store.github.token", "")
	v.SetDefault("store.github.owner", "")
	v.SetDefault("store.github.repo", "member-list")
	v.SetDefault("store.github.branch", "")
	v.SetDefault("store.github.base_url", "")
	v.SetDefault("store.postgres.dsn", "")

	v.SetDefault("ledger.path", "members.csv")
	v.SetDefault("ledger.escape_fields", false)

	v.SetDefault("retry.max_attempts", 1)
	v.SetDefault("retry.initial_interval", "200ms")
	v.SetDefault("retry.max_interval", "2s")

	v.SetDefault("rate_limiter.enabled", true)
	v.SetDefault("rate_limiter.requests_per_second", 5.0)
	v.SetDefault("rate_limiter.burst_size", 10)

	v.SetDefault("cors.allowed_origin", "*")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.insecure", false)
	v.SetDefault("tracing.service_name", "memberledger")
}

// Validate checks settings that make the process unable to run at all.
// Missing store credentials are reported by StoreProblems instead, so the
// service can still start and answer every submission with an error.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Store.Backend {
	case "github", "postgres", "memory":
	default:
		return fmt.Errorf("unknown store backend: %q", c.Store.Backend)
	}

	if c.Store.Timeout < 0 {
		return fmt.Errorf("store timeout must not be negative")
	}

	if c.Ledger.Path == "" {
		return fmt.Errorf("ledger path is required")
	}

	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry max attempts must be at least 1")
	}

	if c.RateLimiter.Enabled {
		if c.RateLimiter.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate limiter requests per second must be positive")
		}
		if c.RateLimiter.BurstSize <= 0 {
			return fmt.Errorf("rate limiter burst size must be positive")
		}
	}

	return nil
}

// StoreProblems lists the store settings required by the selected backend
// that are missing.
func (c *Config) StoreProblems() []string {
	var missing []string
	switch c.Store.Backend {
	case "github":
		if c.Store.GitHub.Token == "" {
			missing = append(missing, "store.github.token")
		}
		if c.Store.GitHub.Owner == "" {
			missing = append(missing, "store.github.owner")
		}
		if c.Store.GitHub.Repo == "" {
			missing = append(missing, "store.github.repo")
		}
	case "postgres":
		if c.Store.Postgres.DSN == "" {
			missing = append(missing, "store.postgres.dsn")
		}
	}
	return missing
}

// Secrets returns configured values that must never reach a client.
func (c *Config) Secrets() []string {
	var out []string
	if c.Store.GitHub.Token != "" {
		out = append(out, c.Store.GitHub.Token)
	}
	if c.Store.Postgres.DSN != "" {
		out = append(out, c.Store.Postgres.DSN)
	}
	return out
}
