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

package main

import (
	"fmt"
	"log/slog"

	"github.com/Jigsaw-Code/proxyswitch/defaultproxy"
	"github.com/Jigsaw-Code/proxyswitch/internal/config"
	"github.com/Jigsaw-Code/proxyswitch/ipcheck"
	"github.com/Jigsaw-Code/proxyswitch/preset"
	"github.com/Jigsaw-Code/proxyswitch/reconcile"
	"github.com/Jigsaw-Code/proxyswitch/sysproxy"
	"github.com/spf13/cobra"
)

// app holds what every command needs once the configuration is loaded.
type app struct {
	cfg      *config.Config
	level    slog.Level
	logger   *slog.Logger
	store    sysproxy.Store
	presets  *preset.Repository
	defaults *defaultproxy.Store
	// capturedBypass is the bypass list found at startup, before anything was written.
	capturedBypass string
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	a := &app{}
	root := &cobra.Command{
		Use:          "proxyswitch",
		Short:        "Switch the system proxy between saved presets",
		Long:         "proxyswitch applies named proxy presets to the system settings, resets to a saved default,\nand can watch the settings to restore the applied proxy when something else changes it.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd, cfgFile)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is <user config dir>/proxyswitch/config.yaml or ./config.yaml)")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.String("presets", "", "preset file (overrides presets.path)")
	flags.String("store", "", "proxy settings backend: registry or file (overrides store.backend)")
	flags.Bool("watchdog", true, "restore the applied proxy when something else changes it")

	root.AddCommand(
		newListCmd(a),
		newStatusCmd(a),
		newApplyCmd(a),
		newResetCmd(a),
		newDisableCmd(a),
		newWatchCmd(a),
		newCheckIPCmd(a),
		newImportVBSCmd(a),
		newDefaultCmd(a),
		newPresetCmd(a),
		newUICmd(a),
	)
	return root
}

func (a *app) init(cmd *cobra.Command, cfgFile string) error {
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.level, _ = config.ParseLevel(cfg.Logging.Level)
	a.logger = newConsoleLogger(cmd.ErrOrStderr(), a.level)
	slog.SetDefault(a.logger)
	if cfg.File != "" {
		a.logger.Debug("Using config file", "path", cfg.File)
	}

	switch cfg.Store.Backend {
	case config.BackendRegistry:
		if a.store, err = sysproxy.NewRegistryStore(); err != nil {
			return fmt.Errorf("could not open the proxy settings: %w", err)
		}
	case config.BackendFile:
		a.store = sysproxy.NewFileStore(cfg.Store.Path)
		a.logger.Debug("Using file store", "path", cfg.Store.Path)
	}
	a.presets = preset.NewRepository(cfg.Presets.Path)
	a.defaults = defaultproxy.NewStore(cfg.Settings.Path)

	if a.capturedBypass, err = a.store.BypassList(); err != nil {
		a.logger.Warn("Could not read the bypass list", "error", err)
	}
	return nil
}

// fallbackBypass is the bypass list written when resetting to a default proxy address.
func (a *app) fallbackBypass() string {
	if a.cfg.Bypass.Fallback != "" {
		return a.cfg.Bypass.Fallback
	}
	return a.capturedBypass
}

func (a *app) checker() *ipcheck.Checker {
	return &ipcheck.Checker{URL: a.cfg.IPCheck.URL, Timeout: a.cfg.IPCheck.Timeout}
}

// newMonitor returns nil when IP checks are disabled.
func (a *app) newMonitor(observe func(ipcheck.Result)) *ipcheck.Monitor {
	if !a.cfg.IPCheck.Enabled {
		return nil
	}
	return ipcheck.NewMonitor(a.checker(), a.logger, observe)
}

func (a *app) newController(monitor *ipcheck.Monitor) *reconcile.Controller {
	opts := []reconcile.Option{
		reconcile.WithLogger(a.logger),
		reconcile.WithWatchdog(a.cfg.Watchdog.Enabled),
	}
	if monitor != nil {
		opts = append(opts, reconcile.WithVerifier(monitor))
	}
	return reconcile.New(a.store, opts...)
}

// selectable loads the presets that can be applied, sorted by name.
func (a *app) selectable() []preset.Preset {
	return preset.Selectable(a.presets.Load())
}
