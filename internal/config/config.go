// Package config loads settings from a config file, environment
// variables and defaults, in that order of increasing precedence for
// the environment.
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

// Config holds all settings for the bookshelf service.
type Config struct {
	// DataDir is the root for everything this system owns on disk.
	DataDir string `mapstructure:"data_dir"`

	// DatabasePath is the SQLite file location. Defaults to
	// DataDir/bookshelf.db.
	DatabasePath string `mapstructure:"database_path"`

	// LibraryDir holds downloaded and imported files. Defaults to
	// DataDir/library.
	LibraryDir string `mapstructure:"library_dir"`

	// RemoteURL is the base URL of the drive API.
	RemoteURL string `mapstructure:"remote_url"`

	// RemoteToken is the bearer token for the drive API, if any.
	RemoteToken string `mapstructure:"remote_token"`

	// DashboardPort serves the live status dashboard.
	DashboardPort int `mapstructure:"dashboard_port"`

	// PollInterval is the period between automatic sync passes in
	// serve mode.
	PollInterval time.Duration `mapstructure:"poll_interval"`

	// LogFile, when set, routes serve-mode logs to a rotated file
	// instead of stderr.
	LogFile       string `mapstructure:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups"`
}

// Load reads configuration from the given file (or the default search
// path when empty), HONDANA_* environment variables, and built-in
// defaults.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	defaultDataDir := filepath.Join(home, ".hondana")

	v.SetDefault("data_dir", defaultDataDir)
	v.SetDefault("dashboard_port", 8372)
	v.SetDefault("poll_interval", 5*time.Minute)
	v.SetDefault("log_max_size_mb", 10)
	v.SetDefault("log_max_backups", 3)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(defaultDataDir)
	}

	v.SetEnvPrefix("HONDANA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing default config file is fine, defaults and env
		// cover it. An explicitly named file must be readable.
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" {
			return nil, fmt.Errorf("reading config %s: %w", cfgFile, err)
		}
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.DatabasePath == "" {
		cfg.DatabasePath = filepath.Join(cfg.DataDir, "bookshelf.db")
	}
	if cfg.LibraryDir == "" {
		cfg.LibraryDir = filepath.Join(cfg.DataDir, "library")
	}
	return &cfg, nil
}
