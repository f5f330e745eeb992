package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadRequiresToken(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("DISCORD_TOKEN", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected validation failure without a token")
	}
}

func TestLoadDefaultsAndEnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("DISCORD_TOKEN", "tok")
	t.Setenv("RETENTION_DAYS", "30")
	t.Setenv("MODE", "AUDIT")
	t.Setenv("HEALTH_ENABLED", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DiscordToken != "tok" {
		t.Fatalf("unexpected token %q", cfg.DiscordToken)
	}
	if cfg.RetentionDays != 30 {
		t.Fatalf("env override lost, got %d", cfg.RetentionDays)
	}
	if cfg.Mode != "audit" {
		t.Fatalf("mode must normalize, got %q", cfg.Mode)
	}
	if !cfg.Health.Enabled || cfg.Health.Addr != ":8080" {
		t.Fatalf("unexpected health config %+v", cfg.Health)
	}
	if cfg.DatabasePath != "/data/praetor.db" || cfg.LogLevel != "info" {
		t.Fatalf("defaults lost: %q %q", cfg.DatabasePath, cfg.LogLevel)
	}
	if cfg.Lockdown.Minutes != 10 {
		t.Fatalf("unexpected lockdown default %d", cfg.Lockdown.Minutes)
	}
}

func TestLoadReadsYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("discord_token: from-file\nlog_level: debug\nretention_days: 7\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("DISCORD_TOKEN", "")
	t.Setenv("RETENTION_DAYS", "")
	t.Setenv("LOG_LEVEL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DiscordToken != "from-file" || cfg.LogLevel != "debug" || cfg.RetentionDays != 7 {
		t.Fatalf("file values lost: %+v", cfg)
	}
}

func TestNormalizeMode(t *testing.T) {
	if normalizeMode("Audit") != "audit" {
		t.Fatal("audit must normalize")
	}
	if normalizeMode("anything") != "normal" {
		t.Fatal("unknown modes fall back to normal")
	}
}
