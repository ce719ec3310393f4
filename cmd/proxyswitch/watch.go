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
	"errors"
	"log/slog"
	"strings"

	"github.com/Jigsaw-Code/proxyswitch/preset"
	"github.com/Jigsaw-Code/proxyswitch/reconcile"
	"github.com/Jigsaw-Code/proxyswitch/sysproxy"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// watchTarget picks the preset to keep in place: the named one, or the proxy that is on now.
func (a *app) watchTarget(args []string) (preset.Preset, error) {
	if len(args) == 1 {
		return preset.Find(a.selectable(), args[0])
	}
	state, err := sysproxy.Read(a.store)
	if err != nil {
		return preset.Preset{}, err
	}
	if !state.Enabled || state.Address == "" {
		return preset.Preset{}, errors.New("the proxy is off: name a preset to watch")
	}
	for _, p := range a.selectable() {
		if strings.EqualFold(p.Address, state.Address) {
			return p, nil
		}
	}
	return preset.New("current", state.Address), nil
}

// followPreset returns a preset file observer that re-applies target when its address was edited.
// The returned function is not safe for concurrent use.
func followPreset(controller *reconcile.Controller, target preset.Preset, logger *slog.Logger) func([]preset.Preset) {
	return func(presets []preset.Preset) {
		p, err := preset.Find(preset.Selectable(presets), target.Name)
		if err != nil {
			logger.Debug("Watched preset is not in the preset file, keeping its address", "name", target.Name)
			return
		}
		if strings.EqualFold(strings.TrimSpace(p.Address), strings.TrimSpace(target.Address)) {
			return
		}
		if err := controller.ApplyPreset(p); err != nil {
			logger.Warn("Failed to apply the edited preset", "name", p.Name, "error", err)
			return
		}
		logger.Info("Watched preset changed, applied its new address", "name", p.Name, "address", p.Address)
		target = p
	}
}

func newWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [preset]",
		Short: "Apply a preset and keep restoring it until interrupted",
		Long: `Apply a preset and keep restoring it until interrupted. Without a name, the proxy that is
on now is kept. Every watchdog interval the system settings are read again; if the proxy
was turned off or points elsewhere, the preset's address is written back. When the preset's
address is edited in the preset file, the new address is applied.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := a.watchTarget(args)
			if err != nil {
				return err
			}
			monitor := a.newMonitor(printResults(cmd.OutOrStdout()))
			if monitor != nil {
				defer monitor.Close()
			}
			controller := a.newController(monitor)
			if err := controller.ApplyPreset(target); err != nil {
				return err
			}
			if !controller.Watchdog() {
				a.logger.Warn("Watchdog is disabled, changes will not be restored")
			}

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				return controller.Run(ctx, a.cfg.Watchdog.Interval)
			})
			g.Go(func() error {
				return a.presets.Watch(ctx, followPreset(controller, target, a.logger))
			})
			a.logger.Info("Watching proxy settings", "address", target.Address, "interval", a.cfg.Watchdog.Interval)
			return g.Wait()
		},
	}
}
