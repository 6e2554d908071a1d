// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// App captures process-wide runtime settings such as name, metrics address and logging.
type App struct {
	Name        string `yaml:"name"`
	Env         string `yaml:"env"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
	PrettyLog   bool   `yaml:"pretty_log"`
}

// Trading holds the position sizing and slot rotation knobs.
type Trading struct {
	TradeAmountUSD     float64 `yaml:"trade_amount_usd"`
	LimitOffset        float64 `yaml:"limit_offset"`
	WindowSize         int     `yaml:"window_size"`
	MaxConcurrentSlots int     `yaml:"max_concurrent_slots"`
	SweepIntervalMs    int     `yaml:"sweep_interval_ms"`
	ErrorPauseMs       int     `yaml:"error_pause_ms"`
	TickLogIntervalMs  int     `yaml:"tick_log_interval_ms"`
	MaxNotionalUSD     float64 `yaml:"max_notional_usd"`
}

// Quote configures the REST price endpoint used for side selection.
type Quote struct {
	BaseURL   string `yaml:"base_url"`
	TimeoutMs int    `yaml:"timeout_ms"`
	Workers   int    `yaml:"workers"`
}

// Stream configures the market websocket.
type Stream struct {
	URL              string `yaml:"url"`
	ReconnectDelayMs int    `yaml:"reconnect_delay_ms"`
	PingIntervalMs   int    `yaml:"ping_interval_ms"`
	WriteBuffer      int    `yaml:"write_buffer"`
}

// Discovery configures automatic slot discovery against the Gamma API.
type Discovery struct {
	Enabled         bool   `yaml:"enabled"`
	GammaBaseURL    string `yaml:"gamma_base_url"`
	EventBaseURL    string `yaml:"event_base_url"`
	Count           int    `yaml:"count"`
	Workers         int    `yaml:"workers"`
	TimeoutMs       int    `yaml:"timeout_ms"`
	RefreshInterval int    `yaml:"refresh_interval_ms"`
	MarketsFile     string `yaml:"markets_file"`
	Timezone        string `yaml:"timezone"`
}

// Store selects and tunes the persistence backend.
type Store struct {
	Driver         string `yaml:"driver"` // memory|postgres
	DSN            string `yaml:"dsn"`
	RetryAttempts  int    `yaml:"retry_attempts"`
	RetryBackoffMs int    `yaml:"retry_backoff_ms"`
}

// Alerts configures the Telegram notifier.
type Alerts struct {
	Enabled     bool   `yaml:"enabled"`
	APIBaseURL  string `yaml:"api_base_url"`
	BotToken    string `yaml:"bot_token"`
	ChatID      int64  `yaml:"chat_id"`
	QueueSize   int    `yaml:"queue_size"`
	PollCommand bool   `yaml:"poll_commands"`
}

// Paper captures paper-trading account settings.
type Paper struct {
	StartingEquity float64 `yaml:"starting_equity"`
	JournalPath    string  `yaml:"journal_path"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App       App       `yaml:"app"`
	Trading   Trading   `yaml:"trading"`
	Quote     Quote     `yaml:"quote"`
	Stream    Stream    `yaml:"stream"`
	Discovery Discovery `yaml:"discovery"`
	Store     Store     `yaml:"store"`
	Alerts    Alerts    `yaml:"alerts"`
	Paper     Paper     `yaml:"paper"`
}

// Load reads a YAML file from disk, hydrates a Config struct and fills defaults.
// Callers apply environment overrides and then Validate.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	config.ApplyDefaults()
	return &config, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero values with the production defaults.
func (c *Config) ApplyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "slotbot"
	}
	if c.App.MetricsAddr == "" {
		c.App.MetricsAddr = ":9102"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}

	t := &c.Trading
	if t.TradeAmountUSD <= 0 {
		t.TradeAmountUSD = 30
	}
	if t.LimitOffset <= 0 {
		t.LimitOffset = 0.05
	}
	if t.WindowSize <= 0 {
		t.WindowSize = 5
	}
	if t.MaxConcurrentSlots <= 0 {
		t.MaxConcurrentSlots = 2
	}
	if t.SweepIntervalMs <= 0 {
		t.SweepIntervalMs = 5000
	}
	if t.ErrorPauseMs <= 0 {
		t.ErrorPauseMs = 5000
	}
	if t.TickLogIntervalMs <= 0 {
		t.TickLogIntervalMs = 5000
	}

	if c.Quote.BaseURL == "" {
		c.Quote.BaseURL = "https://clob.polymarket.com"
	}
	if c.Quote.TimeoutMs <= 0 {
		c.Quote.TimeoutMs = 5000
	}
	if c.Quote.Workers <= 0 {
		c.Quote.Workers = 8
	}

	if c.Stream.URL == "" {
		c.Stream.URL = "wss://ws-subscriptions-clob.polymarket.com/ws/market"
	}
	if c.Stream.ReconnectDelayMs <= 0 {
		c.Stream.ReconnectDelayMs = 3000
	}
	if c.Stream.PingIntervalMs <= 0 {
		c.Stream.PingIntervalMs = 10000
	}
	if c.Stream.WriteBuffer <= 0 {
		c.Stream.WriteBuffer = 64
	}

	d := &c.Discovery
	if d.GammaBaseURL == "" {
		d.GammaBaseURL = "https://gamma-api.polymarket.com"
	}
	if d.EventBaseURL == "" {
		d.EventBaseURL = "https://polymarket.com/event"
	}
	if d.Count <= 0 {
		d.Count = 10
	}
	if d.Workers <= 0 {
		d.Workers = 20
	}
	if d.TimeoutMs <= 0 {
		d.TimeoutMs = 10000
	}
	if d.RefreshInterval <= 0 {
		d.RefreshInterval = 3600000
	}
	if d.MarketsFile == "" {
		d.MarketsFile = "upcoming_markets.txt"
	}
	if d.Timezone == "" {
		d.Timezone = "America/New_York"
	}

	if c.Store.Driver == "" {
		c.Store.Driver = "memory"
	}
	if c.Store.RetryAttempts <= 0 {
		c.Store.RetryAttempts = 5
	}
	if c.Store.RetryBackoffMs <= 0 {
		c.Store.RetryBackoffMs = 1000
	}

	if c.Alerts.APIBaseURL == "" {
		c.Alerts.APIBaseURL = "https://api.telegram.org"
	}
	if c.Alerts.QueueSize <= 0 {
		c.Alerts.QueueSize = 128
	}

	if c.Paper.StartingEquity <= 0 {
		c.Paper.StartingEquity = 1000
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "memory":
	case "postgres":
		if c.Store.DSN == "" {
			return errors.New("config: store.dsn required for postgres driver")
		}
	default:
		return fmt.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if _, err := time.LoadLocation(c.Discovery.Timezone); err != nil {
		return fmt.Errorf("config: discovery.timezone: %w", err)
	}
	return nil
}

// Millis converts a millisecond config knob to a duration.
func Millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
