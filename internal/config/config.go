// Copyright 2025 The Outline Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads proxyswitch settings from defaults, an optional YAML file, PROXYSWITCH_*
// environment variables and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	appName   = "proxyswitch"
	envPrefix = "PROXYSWITCH"

	BackendRegistry = "registry"
	BackendFile     = "file"
)

// Config is the resolved configuration.
type Config struct {
	Presets struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"presets"`
	Settings struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"settings"`
	Store struct {
		// Backend is "registry" or "file".
		Backend string `mapstructure:"backend"`
		// Path is the file backend's document.
		Path string `mapstructure:"path"`
	} `mapstructure:"store"`
	Watchdog struct {
		Enabled  bool          `mapstructure:"enabled"`
		Interval time.Duration `mapstructure:"interval"`
	} `mapstructure:"watchdog"`
	IPCheck struct {
		Enabled bool          `mapstructure:"enabled"`
		URL     string        `mapstructure:"url"`
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"ipcheck"`
	Bypass struct {
		// Fallback is the bypass list written on reset. Empty means the list captured at startup.
		Fallback string `mapstructure:"fallback"`
	} `mapstructure:"bypass"`
	Logging struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"logging"`

	// File is the configuration file that was read, if any.
	File string `mapstructure:"-"`
}

// Dir returns the directory holding the default configuration and data files.
func Dir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		base = "."
	}
	return filepath.Join(base, appName)
}

func defaultBackend() string {
	if runtime.GOOS == "windows" {
		return BackendRegistry
	}
	return BackendFile
}

func setDefaults(v *viper.Viper) {
	dir := Dir()
	v.SetDefault("presets.path", filepath.Join(dir, "proxies.json"))
	v.SetDefault("settings.path", filepath.Join(dir, "settings.json"))
	v.SetDefault("store.backend", defaultBackend())
	v.SetDefault("store.path", filepath.Join(dir, "internet-settings.yaml"))
	v.SetDefault("watchdog.enabled", true)
	v.SetDefault("watchdog.interval", 5*time.Second)
	v.SetDefault("ipcheck.enabled", true)
	v.SetDefault("ipcheck.url", "http://ip-api.com/json/")
	v.SetDefault("ipcheck.timeout", 10*time.Second)
	v.SetDefault("bypass.fallback", "")
	v.SetDefault("logging.level", "info")
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"log-level": "logging.level",
	"presets":   "presets.path",
	"store":     "store.backend",
	"watchdog":  "watchdog.enabled",
}

func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

// Load resolves the configuration. cfgFile may be empty, in which case config.yaml is looked up in
// [Dir] and the working directory, and its absence is not an error. flags may be nil; only flags
// that were set on the command line override other sources.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(expandTilde(cfgFile))
	} else {
		v.AddConfigPath(Dir())
		v.AddConfigPath(".")
		v.SetConfigName("config")
	}
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %v: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	cfg.Presets.Path = expandTilde(cfg.Presets.Path)
	cfg.Settings.Path = expandTilde(cfg.Settings.Path)
	cfg.Store.Path = expandTilde(cfg.Store.Path)
	cfg.Store.Backend = strings.ToLower(strings.TrimSpace(cfg.Store.Backend))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that cannot be fixed up silently.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendRegistry, BackendFile:
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Watchdog.Interval <= 0 {
		return fmt.Errorf("watchdog interval must be positive, got %v", c.Watchdog.Interval)
	}
	if c.IPCheck.Timeout <= 0 {
		return fmt.Errorf("IP check timeout must be positive, got %v", c.IPCheck.Timeout)
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	return nil
}

// ParseLevel converts a level name such as "debug" or "WARN" to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", name, err)
	}
	return level, nil
}
