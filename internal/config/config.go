package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Paths   PathsConfig   `mapstructure:"paths"`
	Scan    ScanConfig    `mapstructure:"scan"`
	Load    LoadConfig    `mapstructure:"load"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// PathsConfig contains path-related configuration
type PathsConfig struct {
	DataDir string `mapstructure:"data_dir"`
	DBFile  string `mapstructure:"db_file"`
	LogFile string `mapstructure:"log_file"`
}

// ScanConfig tunes discovery. Roots overrides the scan universe (empty means
// the platform's fixed drives); ExtraSkipDirs extends the built-in deny list.
type ScanConfig struct {
	Roots         []string `mapstructure:"roots"`
	ExtraSkipDirs []string `mapstructure:"extra_skip_dirs"`
	FastOnly      bool     `mapstructure:"fast_only"`
}

// LoadConfig tunes load orchestration.
type LoadConfig struct {
	Locales     []string `mapstructure:"locales"`      // override locale subfolder names
	StripSuffix string   `mapstructure:"strip_suffix"` // override the PATH conflict suffix
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	Color string `mapstructure:"color"`
}

// Load loads configuration from file and environment
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("toml")

	homeDir, err := os.UserHomeDir()
	if err == nil {
		viper.AddConfigPath(filepath.Join(homeDir, ".config", "tialoc"))
	}
	viper.AddConfigPath(".")

	setDefaults()

	// Environment variable overrides
	viper.SetEnvPrefix("TIALOC")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file not found - use defaults
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Paths.DataDir = expandPath(cfg.Paths.DataDir)
	cfg.Paths.DBFile = expandPath(cfg.Paths.DBFile)
	cfg.Paths.LogFile = expandPath(cfg.Paths.LogFile)
	for i, root := range cfg.Scan.Roots {
		cfg.Scan.Roots[i] = expandPath(root)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	homeDir, err := os.UserHomeDir()
	if err != nil || homeDir == "" {
		homeDir = os.Getenv("HOME")
	}
	if homeDir == "" {
		homeDir = "."
	}

	viper.SetDefault("paths.data_dir", filepath.Join(homeDir, ".local", "share", "tialoc"))
	viper.SetDefault("paths.db_file", filepath.Join(homeDir, ".local", "share", "tialoc", "profiles.db"))
	viper.SetDefault("paths.log_file", filepath.Join(homeDir, ".local", "share", "tialoc", "tialoc.log"))

	viper.SetDefault("scan.roots", []string{})
	viper.SetDefault("scan.extra_skip_dirs", []string{})
	viper.SetDefault("scan.fast_only", false)

	viper.SetDefault("load.locales", []string{})
	viper.SetDefault("load.strip_suffix", "")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.color", "auto")
}

// expandPath expands ~ and environment variables in paths
func expandPath(path string) string {
	if path == "" {
		return path
	}

	if len(path) > 0 && path[0] == '~' {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(homeDir, path[1:])
		}
	}

	path = os.ExpandEnv(path)

	return path
}
