package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Drafts.Driver != "memory" {
		t.Errorf("drafts driver = %q", cfg.Drafts.Driver)
	}
	if cfg.Verification.Retry.MaxAttempts != 3 {
		t.Errorf("retry attempts = %d", cfg.Verification.Retry.MaxAttempts)
	}
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
server:
  port: 9090
drafts:
  driver: redis
  addr_env: FORMWEAVE_REDIS_ADDR
  staleness: 1h
verification:
  timeout: 3s
observability:
  log_level: debug
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Drafts.Driver != "redis" || cfg.Drafts.Staleness != time.Hour {
		t.Errorf("drafts = %+v", cfg.Drafts)
	}
	if cfg.Verification.Timeout != 3*time.Second {
		t.Errorf("verification timeout = %v", cfg.Verification.Timeout)
	}
	// untouched settings keep their defaults
	if cfg.Server.ShutdownTimeout != 15*time.Second {
		t.Errorf("shutdown timeout = %v", cfg.Server.ShutdownTimeout)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("FORMWEAVE_SERVER_PORT", "7070")
	t.Setenv("FORMWEAVE_LOG_LEVEL", "warn")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Observability.LogLevel != "warn" {
		t.Errorf("log level = %q", cfg.Observability.LogLevel)
	}
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"bad draft driver", func(c *Config) { c.Drafts.Driver = "etcd" }},
		{"redis without addr_env", func(c *Config) { c.Drafts.Driver = "redis"; c.Drafts.AddrEnv = "" }},
		{"jwks without issuer", func(c *Config) { c.Identity.JWKSURL = "https://idp/jwks"; c.Identity.Issuer = "" }},
		{"bad sampling rate", func(c *Config) { c.Observability.Tracing.SamplingRate = 2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

func TestDatabaseDSN_FromEnv(t *testing.T) {
	t.Setenv("FORMWEAVE_DATABASE_DSN", "postgres://u:p@localhost/formweave")
	cfg := Defaults()
	if got := cfg.Database.DSN(); got != "postgres://u:p@localhost/formweave" {
		t.Errorf("DSN = %q", got)
	}
	cfg.Database.DSNEnv = ""
	if got := cfg.Database.DSN(); got != "" {
		t.Errorf("DSN without env = %q", got)
	}
}
