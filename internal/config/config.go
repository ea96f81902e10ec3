// SPDX-License-Identifier: MPL-2.0

// Package config loads tool configuration: defaults, then an optional
// config.toml from the platform config directory (or the working directory),
// then PLUMB_* environment overrides, in that precedence order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	"plumb-cli/pkg/cache"
)

const (
	// AppName is the application name.
	AppName = "plumb"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "toml"
	// EnvPrefix prefixes environment variable overrides (PLUMB_FETCH_TIMEOUT).
	EnvPrefix = "PLUMB"
)

type (
	// Config holds the tool's runtime settings.
	Config struct {
		// CacheRoot is the package cache directory.
		CacheRoot string `mapstructure:"cache_root"`

		// FetchTimeout bounds each remote VCS operation.
		FetchTimeout time.Duration `mapstructure:"fetch_timeout"`

		// DiscoveryConcurrency bounds parallel manifest reads when scanning
		// a repository for packages.
		DiscoveryConcurrency int `mapstructure:"discovery_concurrency"`

		// Verbose enables debug logging.
		Verbose bool `mapstructure:"verbose"`
	}

	// LoadOptions override where configuration is read from.
	LoadOptions struct {
		// ConfigFilePath, when set, is used exclusively; a missing file is
		// an error rather than a silent fallback.
		ConfigFilePath string

		// ConfigDirPath overrides the platform config directory.
		ConfigDirPath string
	}
)

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	root, err := cache.DefaultRoot()
	if err != nil {
		root = ""
	}
	return &Config{
		CacheRoot:            root,
		FetchTimeout:         30 * time.Second,
		DiscoveryConcurrency: 4,
	}
}

// ConfigDir returns the plumb configuration directory using platform
// conventions: %APPDATA% on Windows, ~/Library/Application Support on macOS,
// $XDG_CONFIG_HOME (defaulting to ~/.config) elsewhere.
func ConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "windows":
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support")
	default:
		configDir = os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			configDir = filepath.Join(home, ".config")
		}
	}

	return filepath.Join(configDir, AppName), nil
}

// Load reads configuration with default options.
func Load() (*Config, string, error) {
	return LoadWithOptions(LoadOptions{})
}

// LoadWithOptions reads configuration, returning the parsed config and the
// path of the file it came from (empty when only defaults and environment
// applied).
func LoadWithOptions(opts LoadOptions) (*Config, string, error) {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("cache_root", defaults.CacheRoot)
	v.SetDefault("fetch_timeout", defaults.FetchTimeout)
	v.SetDefault("discovery_concurrency", defaults.DiscoveryConcurrency)
	v.SetDefault("verbose", defaults.Verbose)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	resolvedPath := ""
	switch {
	case opts.ConfigFilePath != "":
		if !fileExists(opts.ConfigFilePath) {
			return nil, "", fmt.Errorf("config file not found: %s", opts.ConfigFilePath)
		}
		v.SetConfigFile(opts.ConfigFilePath)
		if err := v.ReadInConfig(); err != nil {
			return nil, "", fmt.Errorf("failed to read config %s: %w", opts.ConfigFilePath, err)
		}
		resolvedPath = opts.ConfigFilePath
	default:
		cfgDir, err := configDirWithOverride(opts.ConfigDirPath)
		if err != nil {
			return nil, "", err
		}
		for _, candidate := range []string{
			filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt),
			ConfigFileName + "." + ConfigFileExt,
		} {
			if !fileExists(candidate) {
				continue
			}
			v.SetConfigFile(candidate)
			if err := v.ReadInConfig(); err != nil {
				return nil, "", fmt.Errorf("failed to read config %s: %w", candidate, err)
			}
			resolvedPath = candidate
			break
		}
		// no config file found: defaults plus environment apply
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.DiscoveryConcurrency <= 0 {
		return nil, "", fmt.Errorf("discovery_concurrency must be positive, got %d", cfg.DiscoveryConcurrency)
	}
	if cfg.FetchTimeout <= 0 {
		return nil, "", fmt.Errorf("fetch_timeout must be positive, got %s", cfg.FetchTimeout)
	}
	return &cfg, resolvedPath, nil
}

// configDirWithOverride resolves the configuration directory, honoring
// explicit options before platform defaults.
func configDirWithOverride(configDirPath string) (string, error) {
	if configDirPath != "" {
		return configDirPath, nil
	}
	return ConfigDir()
}

// EnsureConfigDir creates the config directory if it doesn't exist.
func EnsureConfigDir() error {
	cfgDir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(cfgDir, 0o755)
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}
