// Package config loads habitsync configuration from file, environment
// and defaults, in that order of increasing precedence for env vars.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full habitsync configuration.
type Config struct {
	// API is the base URL of the remote row-store backend.
	APIBaseURL string `mapstructure:"api_base_url"`

	// TokenFile is the bearer token file kept fresh by an external
	// refresher. Empty means tokens come from HABITSYNC_TOKEN only.
	TokenFile string `mapstructure:"token_file"`

	// DBPath is the local sqlite cache database.
	DBPath string `mapstructure:"db_path"`

	// SchemaVersion busts the cache when bumped.
	SchemaVersion string `mapstructure:"schema_version"`

	// RootFolder and SubFolder name the remote folder hierarchy.
	RootFolder string `mapstructure:"root_folder"`
	SubFolder  string `mapstructure:"sub_folder"`

	// RequestDelay is the fixed pacing delay before each sheet call.
	RequestDelay time.Duration `mapstructure:"request_delay"`

	// Scheduler intervals.
	ActiveInterval     time.Duration `mapstructure:"active_interval"`
	BackgroundInterval time.Duration `mapstructure:"background_interval"`
	IdleInterval       time.Duration `mapstructure:"idle_interval"`
	MinSyncGap         time.Duration `mapstructure:"min_sync_gap"`

	// DashboardPort is the WebSocket dashboard port (0 picks a free one).
	DashboardPort int `mapstructure:"dashboard_port"`

	// LogFile receives rotated daemon logs; empty logs to stderr only.
	LogFile string `mapstructure:"log_file"`

	// Token is a direct token override, normally from HABITSYNC_TOKEN.
	Token string `mapstructure:"token"`
}

// Load reads habitsync.yaml from the given directory (or the default
// config dir when empty), applies HABITSYNC_* environment overrides and
// fills the rest with defaults. A missing config file is not an error.
func Load(dir string) (*Config, error) {
	v := viper.New()

	v.SetDefault("api_base_url", "https://www.googleapis.com")
	v.SetDefault("schema_version", "1.0.0")
	v.SetDefault("root_folder", "HabitTracker")
	v.SetDefault("sub_folder", "Habits")
	v.SetDefault("request_delay", 200*time.Millisecond)
	v.SetDefault("active_interval", 5*time.Minute)
	v.SetDefault("background_interval", 30*time.Minute)
	v.SetDefault("idle_interval", 2*time.Hour)
	v.SetDefault("min_sync_gap", 30*time.Second)
	v.SetDefault("dashboard_port", 8099)
	// Registered so HABITSYNC_TOKEN is visible to Unmarshal.
	v.SetDefault("token", "")

	if dir == "" {
		dir = DefaultDir()
	}
	v.SetDefault("db_path", filepath.Join(dir, "cache.db"))
	v.SetDefault("token_file", filepath.Join(dir, "token"))
	v.SetDefault("log_file", filepath.Join(dir, "habitsync.log"))

	v.SetConfigName("habitsync")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	v.SetEnvPrefix("HABITSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// DefaultDir returns the per-user habitsync directory.
func DefaultDir() string {
	if env := os.Getenv("HABITSYNC_DIR"); env != "" {
		return env
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".habitsync"
	}
	return filepath.Join(home, ".habitsync")
}
