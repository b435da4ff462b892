package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/rewired-gh/oeewatch/internal/models"
)

// Config represents the complete application configuration
type Config struct {
	Factory  FactoryConfig  `mapstructure:"factory"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Web      WebConfig      `mapstructure:"web"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// FactoryConfig holds factory API configuration
type FactoryConfig struct {
	APIBaseURL          string        `mapstructure:"api_base_url"`
	PollInterval        time.Duration `mapstructure:"poll_interval"`
	Timeout             time.Duration `mapstructure:"timeout"`
	Lines               []string      `mapstructure:"lines"` // empty = every line the API reports
	MaxRetries          int           `mapstructure:"max_retries"`
	RetryDelayBase      time.Duration `mapstructure:"retry_delay_base"`
	MaxIdleConns        int           `mapstructure:"max_idle_conns"`
	MaxIdleConnsPerHost int           `mapstructure:"max_idle_conns_per_host"`
	IdleConnTimeout     time.Duration `mapstructure:"idle_conn_timeout"`
}

// MonitorConfig holds monitoring behavior configuration
type MonitorConfig struct {
	TopN           int           `mapstructure:"top_n"`
	Metric         string        `mapstructure:"metric"` // "count" or "recovery"
	NotifyCooldown time.Duration `mapstructure:"notify_cooldown"`
	Downtime       bool          `mapstructure:"downtime"` // build per-machine monthly downtime reports
}

// ParsedMetric returns the configured ranking metric.
func (m MonitorConfig) ParsedMetric() models.Metric {
	metric, err := models.ParseMetric(m.Metric)
	if err != nil {
		return models.MetricCount
	}
	return metric
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// StorageConfig holds storage and persistence configuration
type StorageConfig struct {
	DBPath             string `mapstructure:"db_path"`
	MaxReportsPerScope int    `mapstructure:"max_reports_per_scope"`
}

// WebConfig holds the HTTP server configuration
type WebConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
// A .env file in the working directory is loaded first when present.
// An empty path skips the config file and uses defaults plus environment.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()

	setDefaults(v)

	// Enable environment variable override
	v.SetEnvPrefix("OEEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Factory API defaults
	v.SetDefault("factory.api_base_url", "http://127.0.0.1:5000")
	v.SetDefault("factory.poll_interval", "5m")
	v.SetDefault("factory.timeout", "30s")
	v.SetDefault("factory.lines", []string{})
	v.SetDefault("factory.max_retries", 3)
	v.SetDefault("factory.retry_delay_base", "1s")
	v.SetDefault("factory.max_idle_conns", 10)
	v.SetDefault("factory.max_idle_conns_per_host", 5)
	v.SetDefault("factory.idle_conn_timeout", "90s")

	// Monitor defaults
	v.SetDefault("monitor.top_n", 20)
	v.SetDefault("monitor.metric", "count")
	v.SetDefault("monitor.notify_cooldown", "1h")
	v.SetDefault("monitor.downtime", true)

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	// Storage defaults
	v.SetDefault("storage.db_path", "./data/oeewatch.db")
	v.SetDefault("storage.max_reports_per_scope", 50)

	// Web defaults
	v.SetDefault("web.enabled", true)
	v.SetDefault("web.addr", ":8080")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Factory config
	if c.Factory.APIBaseURL == "" {
		return fmt.Errorf("factory.api_base_url is required")
	}
	if c.Factory.PollInterval < 10*time.Second {
		return fmt.Errorf("factory.poll_interval must be at least 10 seconds")
	}
	if c.Factory.Timeout <= 0 {
		return fmt.Errorf("factory.timeout must be positive")
	}
	if c.Factory.MaxRetries < 1 {
		return fmt.Errorf("factory.max_retries must be at least 1")
	}

	// Validate Monitor config
	if c.Monitor.TopN < 1 {
		return fmt.Errorf("monitor.top_n must be at least 1")
	}
	if _, err := models.ParseMetric(c.Monitor.Metric); err != nil {
		return fmt.Errorf("monitor.metric: %w", err)
	}
	if c.Monitor.NotifyCooldown < 0 {
		return fmt.Errorf("monitor.notify_cooldown must not be negative")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	// Validate Storage config
	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}
	if c.Storage.MaxReportsPerScope < 1 {
		return fmt.Errorf("storage.max_reports_per_scope must be at least 1")
	}

	// Validate Web config
	if c.Web.Enabled && c.Web.Addr == "" {
		return fmt.Errorf("web.addr is required when web is enabled")
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
