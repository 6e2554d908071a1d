package config

import (
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	path := filepath.Join("testdata", "config.yaml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.App.Name != "slotbot-test" {
		t.Fatalf("unexpected App.Name: %s", cfg.App.Name)
	}
	if cfg.Trading.TradeAmountUSD != 25 {
		t.Fatalf("unexpected trade amount: %.2f", cfg.Trading.TradeAmountUSD)
	}
	if cfg.Trading.LimitOffset != 0.04 {
		t.Fatalf("unexpected limit offset: %.2f", cfg.Trading.LimitOffset)
	}
	if cfg.Trading.WindowSize != 3 {
		t.Fatalf("unexpected window size: %d", cfg.Trading.WindowSize)
	}
	if cfg.Trading.SweepIntervalMs != 2000 {
		t.Fatalf("unexpected sweep interval: %d", cfg.Trading.SweepIntervalMs)
	}
	if cfg.Quote.BaseURL != "https://clob.example.test" {
		t.Fatalf("unexpected quote base url: %s", cfg.Quote.BaseURL)
	}
	if cfg.Quote.Workers != 4 {
		t.Fatalf("unexpected quote workers: %d", cfg.Quote.Workers)
	}
	if cfg.Stream.ReconnectDelayMs != 500 {
		t.Fatalf("unexpected reconnect delay: %d", cfg.Stream.ReconnectDelayMs)
	}
	if !cfg.Discovery.Enabled || cfg.Discovery.Count != 6 {
		t.Fatalf("unexpected discovery: %+v", cfg.Discovery)
	}
	if cfg.Paper.StartingEquity != 500 {
		t.Fatalf("expected starting equity 500, got %.2f", cfg.Paper.StartingEquity)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "config.yaml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Trading.ErrorPauseMs != 5000 {
		t.Fatalf("expected default error pause, got %d", cfg.Trading.ErrorPauseMs)
	}
	if cfg.Stream.PingIntervalMs != 10000 {
		t.Fatalf("expected default ping interval, got %d", cfg.Stream.PingIntervalMs)
	}
	if cfg.Discovery.Timezone != "America/New_York" {
		t.Fatalf("expected default timezone, got %s", cfg.Discovery.Timezone)
	}
	if cfg.Store.RetryAttempts != 5 || cfg.Store.RetryBackoffMs != 1000 {
		t.Fatalf("unexpected retry defaults: %+v", cfg.Store)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestValidateRejectsPostgresWithoutDSN(t *testing.T) {
	cfg := Default()
	cfg.Store.Driver = "postgres"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected dsn error")
	}
	cfg.Store.Driver = "sqlite"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv(EnvDatabaseURL, "postgres://bot@localhost/slotbot")
	t.Setenv(EnvTelegramToken, "token")
	t.Setenv(EnvTelegramChatID, "4242")

	cfg := Default()
	cfg.ApplyEnv(filepath.Join(t.TempDir(), "absent.env"))

	if cfg.Store.Driver != "postgres" || cfg.Store.DSN != "postgres://bot@localhost/slotbot" {
		t.Fatalf("unexpected store config: %+v", cfg.Store)
	}
	if !cfg.Alerts.Enabled || cfg.Alerts.BotToken != "token" || cfg.Alerts.ChatID != 4242 {
		t.Fatalf("unexpected alerts config: %+v", cfg.Alerts)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := Default()
	cfg.Trading.WindowSize = 7
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if loaded.Trading.WindowSize != 7 {
		t.Fatalf("expected window size 7, got %d", loaded.Trading.WindowSize)
	}
}
