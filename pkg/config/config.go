// Package config resolves tool configuration with Viper precedence:
// CLI flags > pkgfetch.local.toml (project-local) > ~/.pkgfetch/config.toml
// (global).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// LocalConfigFile is the project-local config filename. It is meant for
// per-checkout overrides and is not committed to version control.
const LocalConfigFile = "pkgfetch.local.toml"

const globalConfigFile = "config.toml"

type Config struct {
	// CacheDir is the shared package cache root. Defaults to
	// ~/.pkgfetch/cache.
	CacheDir string `toml:"cache_dir" mapstructure:"cache_dir"`

	// RegistryURL overrides the default registry index.
	RegistryURL string `toml:"registry_url" mapstructure:"registry_url"`

	// Parallelism bounds concurrent fetches in batch operations. Zero
	// picks a machine-dependent default.
	Parallelism int `toml:"parallelism" mapstructure:"parallelism"`

	// Timeout bounds each individual fetch. Zero means no limit.
	Timeout time.Duration `toml:"timeout" mapstructure:"timeout"`
}

// Overrides carries flag-level settings, which take precedence over every
// config file. Zero fields are ignored.
type Overrides struct {
	CacheDir    string
	RegistryURL string
	Parallelism int
	Timeout     time.Duration
}

// Load resolves configuration using Viper's merge semantics.
func Load(flags Overrides) (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("determining home directory: %w", err)
	}
	globalPath := filepath.Join(home, ".pkgfetch", globalConfigFile)
	cfg, err := load(flags, globalPath, LocalConfigFile)
	if err != nil {
		return nil, err
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir, err = DefaultCacheDir()
		if err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// DefaultCacheDir returns ~/.pkgfetch/cache, the cache root used when no
// config file or flag overrides it.
func DefaultCacheDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}
	return filepath.Join(home, ".pkgfetch", "cache"), nil
}

// load is the internal implementation that accepts explicit paths, making
// it testable without touching the real home directory.
func load(flags Overrides, globalPath, localPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")

	// Lowest priority: global config. Ignore if missing.
	v.SetConfigFile(globalPath)
	_ = v.ReadInConfig()

	// Higher priority: project-local config.
	if _, err := os.Stat(localPath); err == nil {
		v.SetConfigFile(localPath)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("reading %s: %w", localPath, err)
		}
	}

	// Highest priority: CLI flags.
	if flags.CacheDir != "" {
		v.Set("cache_dir", flags.CacheDir)
	}
	if flags.RegistryURL != "" {
		v.Set("registry_url", flags.RegistryURL)
	}
	if flags.Parallelism > 0 {
		v.Set("parallelism", flags.Parallelism)
	}
	if flags.Timeout > 0 {
		v.Set("timeout", flags.Timeout.String())
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return cfg, nil
}
