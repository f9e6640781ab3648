package config

import (
	"testing"
)

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if _, err := Load(); err == nil {
		t.Error("expected an error without DATABASE_URL")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/nasreco")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8000" {
		t.Errorf("Port = %q, want 8000", cfg.Port)
	}
	if !cfg.IsDev() {
		t.Error("default env should be development")
	}
	if cfg.DBMaxConns != 20 || cfg.DBMinConns != 5 {
		t.Errorf("pool defaults wrong: max=%d min=%d", cfg.DBMaxConns, cfg.DBMinConns)
	}
	if cfg.MigrationsDir != "./migrations" {
		t.Errorf("MigrationsDir = %q", cfg.MigrationsDir)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/nasreco")
	t.Setenv("PORT", "9100")
	t.Setenv("ENV", "production")
	t.Setenv("CORS_ORIGINS", "https://app.example.com,https://admin.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9100" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.IsDev() {
		t.Error("production env reported as development")
	}
	if len(cfg.CORSOrigins) != 2 {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{DBMaxConns: 5, DBMinConns: 10}
	if err := cfg.Validate(); err == nil {
		t.Error("max conns below min conns should not validate")
	}

	cfg = &Config{DBMaxConns: 10, DBMinConns: 5, RateLimitRPS: -1}
	if err := cfg.Validate(); err == nil {
		t.Error("negative rate limit should not validate")
	}

	cfg = &Config{DBMaxConns: 10, DBMinConns: 5, RateLimitRPS: 100}
	if err := cfg.Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}
