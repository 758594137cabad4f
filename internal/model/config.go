package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	// Addr is the listen address (e.g., ":8080").
	Addr string `mapstructure:"addr" yaml:"addr"`

	// HeartbeatSec is how long an idle stream waits before emitting a
	// keep-alive comment.
	HeartbeatSec int `mapstructure:"heartbeat_sec" yaml:"heartbeat_sec"`

	// AllowedOrigins lists extra host patterns accepted on WebSocket
	// upgrades. Same-origin requests are always accepted.
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// DatabaseConfig holds the SQLite file location.
type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// JiraConfig holds settings for the external issue source.
type JiraConfig struct {
	// BaseURL is the root URL of the Jira instance. Empty disables sync.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// TokenRef is either a literal token or "keyring:<key>".
	TokenRef string `mapstructure:"token_ref" yaml:"token_ref"`

	// ProxyURL is used when ProxyMode is "proxy" or "auto".
	ProxyURL string `mapstructure:"proxy_url" yaml:"proxy_url"`

	// ProxyMode is one of "direct", "proxy", "auto".
	ProxyMode string `mapstructure:"proxy_mode" yaml:"proxy_mode"`

	// JQLExtra is appended to the per-user assignee query.
	JQLExtra string `mapstructure:"jql_extra" yaml:"jql_extra"`
}

// SchedulerConfig holds background job cadences.
type SchedulerConfig struct {
	SyncIntervalMin int `mapstructure:"sync_interval_min" yaml:"sync_interval_min"`
	RetentionDays   int `mapstructure:"retention_days" yaml:"retention_days"`
	RetentionHour   int `mapstructure:"retention_hour" yaml:"retention_hour"`
	CompactWeekday  int `mapstructure:"compact_weekday" yaml:"compact_weekday"`
	CompactHour     int `mapstructure:"compact_hour" yaml:"compact_hour"`
}

// LoggingConfig controls where log output goes. An empty File logs to
// stderr only.
type LoggingConfig struct {
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Jira      JiraConfig      `mapstructure:"jira" yaml:"jira"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" yaml:"scheduler"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
}

// HeartbeatInterval returns the stream keep-alive interval.
func (c *AppConfig) HeartbeatInterval() time.Duration {
	return time.Duration(c.Server.HeartbeatSec) * time.Second
}

// SyncInterval returns the issue-sync cadence.
func (c *AppConfig) SyncInterval() time.Duration {
	return time.Duration(c.Scheduler.SyncIntervalMin) * time.Minute
}

// Retention returns the audit-log retention window.
func (c *AppConfig) Retention() time.Duration {
	return time.Duration(c.Scheduler.RetentionDays) * 24 * time.Hour
}

// configDir returns ~/.config/taskhub, falling back to the working directory.
func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "taskhub")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/taskhub/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

// setDefaults registers every default on v so that missing keys resolve
// to sensible values and env overrides can bind to them.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.heartbeat_sec", 30)
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("database.path", filepath.Join(configDir(), "taskhub.db"))
	v.SetDefault("jira.base_url", "")
	v.SetDefault("jira.token_ref", "keyring:jira-token")
	v.SetDefault("jira.proxy_url", "")
	v.SetDefault("jira.proxy_mode", "direct")
	v.SetDefault("jira.jql_extra", "")
	v.SetDefault("scheduler.sync_interval_min", 15)
	v.SetDefault("scheduler.retention_days", 90)
	v.SetDefault("scheduler.retention_hour", 3)
	v.SetDefault("scheduler.compact_weekday", int(time.Sunday))
	v.SetDefault("scheduler.compact_hour", 4)
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 28)
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// Environment variables prefixed with TASKHUB_ override file values
// (e.g., TASKHUB_SERVER_ADDR). A missing file yields the defaults.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("taskhub")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		var pathErr *os.PathError
		if !errors.As(err, &notFound) && !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks value ranges that viper cannot express.
func (c *AppConfig) Validate() error {
	switch c.Jira.ProxyMode {
	case "direct", "proxy", "auto":
	default:
		return fmt.Errorf("jira.proxy_mode must be direct, proxy or auto, got %q", c.Jira.ProxyMode)
	}
	if c.Jira.ProxyMode != "direct" && c.Jira.ProxyURL == "" {
		return fmt.Errorf("jira.proxy_url is required when proxy_mode is %q", c.Jira.ProxyMode)
	}
	if c.Server.HeartbeatSec <= 0 {
		return fmt.Errorf("server.heartbeat_sec must be positive")
	}
	if c.Scheduler.SyncIntervalMin <= 0 {
		return fmt.Errorf("scheduler.sync_interval_min must be positive")
	}
	if c.Scheduler.RetentionDays <= 0 {
		return fmt.Errorf("scheduler.retention_days must be positive")
	}
	if c.Scheduler.RetentionHour < 0 || c.Scheduler.RetentionHour > 23 {
		return fmt.Errorf("scheduler.retention_hour must be 0-23")
	}
	if c.Scheduler.CompactHour < 0 || c.Scheduler.CompactHour > 23 {
		return fmt.Errorf("scheduler.compact_hour must be 0-23")
	}
	if c.Scheduler.CompactWeekday < 0 || c.Scheduler.CompactWeekday > 6 {
		return fmt.Errorf("scheduler.compact_weekday must be 0-6")
	}
	return nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("server", cfg.Server)
	v.Set("database", cfg.Database)
	v.Set("jira", cfg.Jira)
	v.Set("scheduler", cfg.Scheduler)
	v.Set("logging", cfg.Logging)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
