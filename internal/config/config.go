// Package config loads and validates application configuration from YAML
// files and environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Identity      IdentityConfig      `yaml:"identity"`
	Database      DatabaseConfig      `yaml:"database"`
	Drafts        DraftConfig         `yaml:"drafts"`
	Verification  VerificationConfig  `yaml:"verification"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig describes HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	HandlerTimeout  time.Duration `yaml:"handler_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORS            CORSConfig    `yaml:"cors"`
}

// CORSConfig describes Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
	MaxAge         int      `yaml:"max_age"`
}

// IdentityConfig describes JWT and identity provider settings.
type IdentityConfig struct {
	Issuer       string        `yaml:"issuer"`
	Audience     string        `yaml:"audience"`
	JWKSURL      string        `yaml:"jwks_url"`
	JWKSCacheTTL time.Duration `yaml:"jwks_cache_ttl"`
	Algorithms   []string      `yaml:"algorithms"`
}

// DatabaseConfig describes PostgreSQL settings. The DSN is read from the
// named environment variable so credentials stay out of config files. An
// empty DSN selects the in-memory stores.
type DatabaseConfig struct {
	DSNEnv          string        `yaml:"dsn_env"`
	MaxConns        int           `yaml:"max_conns"`
	MinConns        int           `yaml:"min_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// DSN resolves the connection string from the environment.
func (d DatabaseConfig) DSN() string {
	if d.DSNEnv == "" {
		return ""
	}
	return os.Getenv(d.DSNEnv)
}

// DraftConfig describes the working-draft cache.
type DraftConfig struct {
	// Driver is "memory" or "redis".
	Driver    string        `yaml:"driver"`
	AddrEnv   string        `yaml:"addr_env"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"key_prefix"`
	TTL       time.Duration `yaml:"ttl"`
	Staleness time.Duration `yaml:"staleness"`
}

// Addr resolves the Redis address from the environment.
func (d DraftConfig) Addr() string {
	if d.AddrEnv == "" {
		return ""
	}
	return os.Getenv(d.AddrEnv)
}

// VerificationConfig describes the step verification gateway.
type VerificationConfig struct {
	Timeout        time.Duration        `yaml:"timeout"`
	Retry          RetryConfig          `yaml:"retry"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// RetryConfig describes retry settings for verification calls.
type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	BackoffInitial time.Duration `yaml:"backoff_initial"`
	BackoffMax     time.Duration `yaml:"backoff_max"`
}

// CircuitBreakerConfig describes circuit breaker settings.
type CircuitBreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold"`
	Timeout          time.Duration `yaml:"timeout"`
}

// ObservabilityConfig describes logging, tracing, and metrics settings.
type ObservabilityConfig struct {
	LogLevel string        `yaml:"log_level"`
	Tracing  TracingConfig `yaml:"tracing"`
	Metrics  MetricsConfig `yaml:"metrics"`
}

// TracingConfig describes OpenTelemetry tracing settings.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// MetricsConfig describes Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Defaults returns a configuration with sensible development defaults.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			HandlerTimeout:  25 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			CORS: CORSConfig{
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Authorization", "Content-Type", "X-Correlation-Id"},
				MaxAge:         300,
			},
		},
		Identity: IdentityConfig{
			JWKSCacheTTL: time.Hour,
			Algorithms:   []string{"RS256"},
		},
		Database: DatabaseConfig{
			DSNEnv:          "FORMWEAVE_DATABASE_DSN",
			MaxConns:        25,
			MinConns:        2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Drafts: DraftConfig{
			Driver:    "memory",
			AddrEnv:   "FORMWEAVE_REDIS_ADDR",
			KeyPrefix: "form-builder-draft",
			TTL:       24 * time.Hour,
			Staleness: 24 * time.Hour,
		},
		Verification: VerificationConfig{
			Timeout: 10 * time.Second,
			Retry: RetryConfig{
				MaxAttempts:    3,
				BackoffInitial: 200 * time.Millisecond,
				BackoffMax:     2 * time.Second,
			},
			CircuitBreaker: CircuitBreakerConfig{
				FailureThreshold: 5,
				SuccessThreshold: 2,
				Timeout:          30 * time.Second,
			},
		},
		Observability: ObservabilityConfig{
			LogLevel: "info",
			Tracing: TracingConfig{
				Exporter:     "otlp",
				SamplingRate: 0.1,
			},
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}

// Load reads a YAML config file, applies environment variable overrides,
// and validates required fields. An empty path skips the file and uses
// defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required fields are present and valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	switch c.Drafts.Driver {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Sprintf("drafts.driver %q must be memory or redis", c.Drafts.Driver))
	}
	if c.Drafts.Driver == "redis" && c.Drafts.AddrEnv == "" {
		errs = append(errs, "drafts.addr_env is required for the redis driver")
	}
	if c.Identity.JWKSURL != "" && c.Identity.Issuer == "" {
		errs = append(errs, "identity.issuer is required when identity.jwks_url is set")
	}
	if r := c.Observability.Tracing.SamplingRate; r < 0 || r > 1 {
		errs = append(errs, "observability.tracing.sampling_rate must be between 0 and 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// applyEnvOverrides reads FORMWEAVE_* environment variables and overrides
// config values. Only the most commonly overridden fields are supported.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FORMWEAVE_SERVER_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("FORMWEAVE_IDENTITY_ISSUER"); v != "" {
		cfg.Identity.Issuer = v
	}
	if v := os.Getenv("FORMWEAVE_IDENTITY_JWKS_URL"); v != "" {
		cfg.Identity.JWKSURL = v
	}
	if v := os.Getenv("FORMWEAVE_IDENTITY_AUDIENCE"); v != "" {
		cfg.Identity.Audience = v
	}
	if v := os.Getenv("FORMWEAVE_DRAFTS_DRIVER"); v != "" {
		cfg.Drafts.Driver = v
	}
	if v := os.Getenv("FORMWEAVE_LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
	if v := os.Getenv("FORMWEAVE_TRACING_ENABLED"); v != "" {
		cfg.Observability.Tracing.Enabled = v == "true" || v == "1"
	}
}
