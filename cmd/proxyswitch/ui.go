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
	"context"
	"errors"
	"log/slog"

	"github.com/Jigsaw-Code/proxyswitch/internal/tui"
	"github.com/Jigsaw-Code/proxyswitch/ipcheck"
	"github.com/Jigsaw-Code/proxyswitch/preset"
	"github.com/Jigsaw-Code/proxyswitch/reconcile"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newUICmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ui",
		Short: "Open the interactive terminal interface",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Logs go to the log pane while the interface owns the terminal.
			logs := tui.NewLogWriter(256)
			a.logger = slog.New(tui.NewLogHandler(logs, a.level))
			slog.SetDefault(a.logger)

			results := make(chan ipcheck.Result, 4)
			monitor := a.newMonitor(func(r ipcheck.Result) {
				select {
				case results <- r:
				default:
				}
			})
			var verifier reconcile.Verifier
			if monitor != nil {
				defer monitor.Close()
				verifier = monitor
			}
			controller := a.newController(monitor)

			model := tui.New(tui.Options{
				Controller:     controller,
				Store:          a.store,
				Defaults:       a.defaults,
				Presets:        a.presets.Load(),
				Repository:     a.presets,
				FallbackBypass: a.fallbackBypass(),
				Interval:       a.cfg.Watchdog.Interval,
				Verifier:       verifier,
				Logs:           logs.Lines(),
				Results:        results,
			})

			g, ctx := errgroup.WithContext(cmd.Context())
			ctx, cancel := context.WithCancel(ctx)
			program := tea.NewProgram(model, tea.WithContext(ctx), tea.WithInput(cmd.InOrStdin()), tea.WithOutput(cmd.OutOrStdout()))
			g.Go(func() error {
				defer cancel()
				_, err := program.Run()
				if errors.Is(err, tea.ErrProgramKilled) && cmd.Context().Err() != nil {
					return nil
				}
				return err
			})
			g.Go(func() error {
				return a.presets.Watch(ctx, func(presets []preset.Preset) {
					program.Send(tui.PresetsMsg(presets))
				})
			})
			return g.Wait()
		},
	}
}
