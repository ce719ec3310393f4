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

	"github.com/Jigsaw-Code/proxyswitch/preset"
	"github.com/spf13/cobra"
)

func newPresetCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preset",
		Short: "Edit the preset file",
	}

	var category string
	add := &cobra.Command{
		Use:   "add <name> <host:port>",
		Short: "Add a preset",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := preset.New(args[0], args[1])
			if category != "" {
				p.Category = category
			}
			if err := a.presets.Edit(func(presets []preset.Preset) ([]preset.Preset, error) {
				return preset.Add(presets, p)
			}); err != nil {
				return err
			}
			a.logger.Info("Preset added", "name", p.Name, "address", p.Address)
			return nil
		},
	}
	add.Flags().StringVar(&category, "category", preset.DefaultCategory, "category to file the preset under")
	cmd.AddCommand(add)

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a preset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.presets.Edit(func(presets []preset.Preset) ([]preset.Preset, error) {
				return preset.Remove(presets, args[0])
			}); err != nil {
				return err
			}
			a.logger.Info("Preset removed", "name", args[0])
			return nil
		},
	})

	var format string
	export := &cobra.Command{
		Use:   "export",
		Short: "Write the presets to standard output",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeEncoded(cmd.OutOrStdout(), format, a.presets.Load())
		},
	}
	export.Flags().StringVar(&format, "format", "json", "output format: json or yaml")
	cmd.AddCommand(export)
	return cmd
}

func newImportVBSCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import-vbs <dir>",
		Short: "Import presets from a folder of legacy .vbs proxy scripts",
		Long: `Import presets from a folder of legacy .vbs proxy scripts. Each script becomes a preset
named after the file, filed under the folder name, with the first ip:port it mentions.
Presets whose name is already taken are skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			imported, err := preset.ImportVBS(args[0], a.logger)
			if err != nil {
				return err
			}
			var skipped []preset.Preset
			if err := a.presets.Edit(func(presets []preset.Preset) ([]preset.Preset, error) {
				var merged []preset.Preset
				merged, skipped = preset.Merge(presets, imported)
				return merged, nil
			}); err != nil {
				return err
			}
			for _, p := range skipped {
				a.logger.Info("Skipping existing preset", "name", p.Name)
			}
			added := len(imported) - len(skipped)
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d of %d presets into %v\n", added, len(imported), a.presets.Path())
			return nil
		},
	}
}
