package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variables that override file settings. Secrets should live here, not in YAML.
const (
	EnvDatabaseURL    = "SLOTBOT_DATABASE_URL"
	EnvTelegramToken  = "SLOTBOT_TELEGRAM_TOKEN"
	EnvTelegramChatID = "SLOTBOT_TELEGRAM_CHAT_ID"
	EnvLogLevel       = "SLOTBOT_LOG_LEVEL"
	EnvMetricsAddr    = "SLOTBOT_METRICS_ADDR"
)

// ApplyEnv loads an optional .env file and lets environment variables override the config.
func (c *Config) ApplyEnv(files ...string) {
	_ = godotenv.Load(files...) // best-effort

	if v := os.Getenv(EnvDatabaseURL); v != "" {
		c.Store.DSN = v
		if c.Store.Driver == "memory" {
			c.Store.Driver = "postgres"
		}
	}
	if v := os.Getenv(EnvTelegramToken); v != "" {
		c.Alerts.BotToken = v
		c.Alerts.Enabled = true
	}
	if v := os.Getenv(EnvTelegramChatID); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Alerts.ChatID = id
		}
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.App.LogLevel = v
	}
	if v := os.Getenv(EnvMetricsAddr); v != "" {
		c.App.MetricsAddr = v
	}
}
