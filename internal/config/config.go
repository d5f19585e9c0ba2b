// Package config loads chatsync settings.
//
// Settings come from, in increasing precedence: built-in defaults, a config
// file (chatsync.yaml, .yml, .toml or .json in the working directory or
// $HOME/.config/chatsync), a .env file, and CHATSYNC_* environment
// variables. GITHUB_TOKEN is honored as a fallback for github.token.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. CHATSYNC_GITHUB_REPO.
const EnvPrefix = "CHATSYNC"

// Config holds all chatsync settings.
type Config struct {
	GitHub    GitHubConfig    `mapstructure:"github" yaml:"github" toml:"github"`
	AutoLoad  bool            `mapstructure:"auto_load" yaml:"auto_load" toml:"auto_load"`
	Refresh   int             `mapstructure:"refresh_interval" yaml:"refresh_interval" toml:"refresh_interval"`
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database" toml:"database"`
	Dashboard DashboardConfig `mapstructure:"dashboard" yaml:"dashboard" toml:"dashboard"`
	Backup    BackupConfig    `mapstructure:"backup" yaml:"backup" toml:"backup"`
	Log       LogConfig       `mapstructure:"log" yaml:"log" toml:"log"`

	// source is the config file that was read, if any.
	source string
}

// GitHubConfig identifies the chat repository.
type GitHubConfig struct {
	Username string `mapstructure:"username" yaml:"username" toml:"username"`
	Repo     string `mapstructure:"repo" yaml:"repo" toml:"repo"`
	Branch   string `mapstructure:"branch" yaml:"branch" toml:"branch"`
	Token    string `mapstructure:"token" yaml:"token,omitempty" toml:"token,omitempty"`
}

// DatabaseConfig locates the local chat database.
type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path" toml:"path"`
}

// DashboardConfig configures the viewer server.
type DashboardConfig struct {
	Port int `mapstructure:"port" yaml:"port" toml:"port"`
}

// BackupConfig configures the local chats to GitHub push.
type BackupConfig struct {
	ChatsPath   string `mapstructure:"chats_path" yaml:"chats_path" toml:"chats_path"`
	RepoPath    string `mapstructure:"repo_path" yaml:"repo_path" toml:"repo_path"`
	RemoteURL   string `mapstructure:"remote_url" yaml:"remote_url" toml:"remote_url"`
	Interval    int    `mapstructure:"interval" yaml:"interval" toml:"interval"`
	SettleDelay int    `mapstructure:"settle_delay" yaml:"settle_delay" toml:"settle_delay"`
}

// LogConfig configures the optional rotating log file.
type LogConfig struct {
	File       string `mapstructure:"file" yaml:"file,omitempty" toml:"file,omitempty"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days" toml:"max_age_days"`
}

// DefaultDatabasePath returns $HOME/.local/share/chatsync/chats.db.
func DefaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".chatsync", "chats.db")
	}
	return filepath.Join(home, ".local", "share", "chatsync", "chats.db")
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		GitHub:    GitHubConfig{Branch: "main"},
		AutoLoad:  true,
		Refresh:   60000,
		Database:  DatabaseConfig{Path: DefaultDatabasePath()},
		Dashboard: DashboardConfig{Port: 8080},
		Backup: BackupConfig{
			Interval:    300,
			SettleDelay: 2000,
		},
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("github.username", d.GitHub.Username)
	v.SetDefault("github.repo", d.GitHub.Repo)
	v.SetDefault("github.branch", d.GitHub.Branch)
	v.SetDefault("github.token", d.GitHub.Token)
	v.SetDefault("auto_load", d.AutoLoad)
	v.SetDefault("refresh_interval", d.Refresh)
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("dashboard.port", d.Dashboard.Port)
	v.SetDefault("backup.chats_path", d.Backup.ChatsPath)
	v.SetDefault("backup.repo_path", d.Backup.RepoPath)
	v.SetDefault("backup.remote_url", d.Backup.RemoteURL)
	v.SetDefault("backup.interval", d.Backup.Interval)
	v.SetDefault("backup.settle_delay", d.Backup.SettleDelay)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
}

// Load reads the configuration. An empty path searches the default
// locations; a missing file there is not an error.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("github.token", EnvPrefix+"_GITHUB_TOKEN", "GITHUB_TOKEN"); err != nil {
		return nil, fmt.Errorf("failed to bind token env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("chatsync")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "chatsync"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.source = v.ConfigFileUsed()

	if strings.HasPrefix(cfg.Database.Path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.Database.Path = filepath.Join(home, cfg.Database.Path[2:])
		}
	}

	return &cfg, nil
}

// loadDotEnv loads ./.env when present. Existing variables win.
func loadDotEnv() error {
	if _, err := os.Stat(".env"); err != nil {
		return nil
	}
	if err := godotenv.Load(".env"); err != nil {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// Source returns the config file that was read, or "" for none.
func (c *Config) Source() string {
	return c.source
}

// Validate checks the settings needed to sync from GitHub.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.GitHub.Username) == "" {
		return fmt.Errorf("github.username is required")
	}
	if strings.TrimSpace(c.GitHub.Repo) == "" {
		return fmt.Errorf("github.repo is required")
	}
	if c.Refresh < 0 {
		return fmt.Errorf("refresh_interval must be >= 0, got %d", c.Refresh)
	}
	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("dashboard.port must be 0-65535, got %d", c.Dashboard.Port)
	}
	return nil
}

// ValidateBackup checks the settings needed by the backup command.
func (c *Config) ValidateBackup() error {
	if strings.TrimSpace(c.Backup.ChatsPath) == "" {
		return fmt.Errorf("backup.chats_path is required")
	}
	if strings.TrimSpace(c.Backup.RepoPath) == "" {
		return fmt.Errorf("backup.repo_path is required")
	}
	if c.Backup.Interval < 0 {
		return fmt.Errorf("backup.interval must be >= 0, got %d", c.Backup.Interval)
	}
	if c.Backup.SettleDelay < 0 {
		return fmt.Errorf("backup.settle_delay must be >= 0, got %d", c.Backup.SettleDelay)
	}
	return nil
}

// RefreshInterval returns refresh_interval as a duration. Zero disables the timer.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.Refresh) * time.Millisecond
}

// BackupInterval returns the minimum time between write-triggered backups.
func (c *Config) BackupInterval() time.Duration {
	return time.Duration(c.Backup.Interval) * time.Second
}

// SettleDelay returns how long to wait after a chat file is created.
func (c *Config) SettleDelay() time.Duration {
	return time.Duration(c.Backup.SettleDelay) * time.Millisecond
}

// MaskedToken returns the token with all but its edges hidden.
func (c *Config) MaskedToken() string {
	t := c.GitHub.Token
	switch {
	case t == "":
		return "(not set)"
	case len(t) <= 8:
		return "****"
	default:
		return t[:4] + "****" + t[len(t)-4:]
	}
}
