package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"slotbot-go/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "slotbot.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigBuildsLogger(t *testing.T) {
	t.Setenv(config.EnvDatabaseURL, "")
	t.Setenv(config.EnvLogLevel, "debug")
	path := writeConfig(t, "app:\n  name: slotbot\n  log_level: info\nstore:\n  driver: memory\ndiscovery:\n  timezone: America/New_York\n")

	cfg, log, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig returned error: %v", err)
	}
	if cfg.App.LogLevel != "debug" {
		t.Fatalf("expected env log level override, got %q", cfg.App.LogLevel)
	}
	if log.GetLevel().String() != "debug" {
		t.Fatalf("expected debug logger, got %s", log.GetLevel())
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	t.Setenv(config.EnvDatabaseURL, "")
	path := writeConfig(t, "store:\n  driver: sqlite\n")
	if _, _, err := loadConfig(path); err == nil || !strings.Contains(err.Error(), "invalid config") {
		t.Fatalf("expected invalid config error, got %v", err)
	}
	if _, _, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for a missing file")
	}
}
