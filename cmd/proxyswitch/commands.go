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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/Jigsaw-Code/proxyswitch/defaultproxy"
	"github.com/Jigsaw-Code/proxyswitch/ipcheck"
	"github.com/Jigsaw-Code/proxyswitch/preset"
	"github.com/Jigsaw-Code/proxyswitch/reconcile"
	"github.com/Jigsaw-Code/proxyswitch/sysproxy"
	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
)

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the presets that can be applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			presets := a.selectable()
			if len(presets) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No presets in %v\n", a.presets.Path())
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tADDRESS\tCATEGORY")
			for _, p := range presets {
				fmt.Fprintf(w, "%v\t%v\t%v\n", p.Name, p.Address, p.Category)
			}
			return w.Flush()
		},
	}
}

type statusReport struct {
	Proxy sysproxy.State `json:"proxy" yaml:"proxy"`
	// Preset names the preset whose address is in use, if any.
	Preset  string `json:"preset,omitempty" yaml:"preset,omitempty"`
	Default string `json:"default" yaml:"default"`
}

func writeEncoded(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		data, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}

func newStatusCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current system proxy settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := sysproxy.Read(a.store)
			if err != nil {
				return err
			}
			report := statusReport{Proxy: state, Default: a.defaults.Load().String()}
			if state.Enabled {
				for _, p := range a.selectable() {
					if strings.EqualFold(p.Address, state.Address) {
						report.Preset = p.Name
						break
					}
				}
			}
			if output != "text" {
				return writeEncoded(cmd.OutOrStdout(), output, report)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			if state.Enabled {
				fmt.Fprintln(w, "Proxy:\ton")
				fmt.Fprintf(w, "Address:\t%v\n", state.Address)
				if report.Preset != "" {
					fmt.Fprintf(w, "Preset:\t%v\n", report.Preset)
				}
			} else {
				fmt.Fprintln(w, "Proxy:\toff (direct)")
			}
			fmt.Fprintf(w, "Bypass:\t%v\n", state.BypassList)
			fmt.Fprintf(w, "Default:\t%v\n", report.Default)
			return w.Flush()
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text, json or yaml")
	return cmd
}

// printResults returns an IP check observer that writes each result to w.
func printResults(w io.Writer) func(ipcheck.Result) {
	return func(r ipcheck.Result) {
		fmt.Fprintln(w, r.String())
	}
}

// runTransition runs one controller operation and waits for the IP check it triggers.
func (a *app) runTransition(cmd *cobra.Command, op func(*reconcile.Controller) error) error {
	monitor := a.newMonitor(printResults(cmd.OutOrStdout()))
	controller := a.newController(monitor)
	err := op(controller)
	if monitor != nil {
		monitor.Wait()
		monitor.Close()
	}
	return err
}

func newApplyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "apply <preset>",
		Short: "Turn the proxy on with a preset's address",
		Long:  "Turn the proxy on with a preset's address. The name is matched without regard to case.\nThe bypass list is left as it is.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := preset.Find(a.selectable(), args[0])
			if err != nil {
				return err
			}
			return a.runTransition(cmd, func(c *reconcile.Controller) error {
				return c.ApplyPreset(p)
			})
		},
	}
}

func newResetCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Reset the proxy to the saved default",
		Long: `Reset the proxy to the saved default: either a direct connection or a proxy address.

If no default is saved, the current settings are offered as the default. Declining
turns the proxy off without saving anything.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			confirm := promptDecision(cmd.InOrStdin(), cmd.OutOrStdout())
			if yes {
				confirm = acceptAll
			}
			pref, decision, err := a.defaults.Resolve(a.store, confirm)
			if err != nil {
				return err
			}
			switch decision {
			case defaultproxy.Cancel:
				fmt.Fprintln(cmd.OutOrStdout(), "Cancelled")
				return nil
			case defaultproxy.Decline:
				return a.runTransition(cmd, func(c *reconcile.Controller) error {
					return c.ResetToDirect()
				})
			}
			return a.runTransition(cmd, func(c *reconcile.Controller) error {
				return c.ResetToDefault(pref, a.fallbackBypass())
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "save the current settings as the default without asking")
	return cmd
}

func newDisableCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "disable",
		Short: "Turn the proxy off, keeping its address and bypass list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runTransition(cmd, func(c *reconcile.Controller) error {
				return c.Disable()
			})
		},
	}
}

func newCheckIPCmd(a *app) *cobra.Command {
	var proxyAddress string
	var direct bool
	cmd := &cobra.Command{
		Use:   "check-ip",
		Short: "Show the public IP address, location and hostname seen through the proxy",
		Long:  "Show the public IP address, location and hostname seen through the proxy. By default the\nlookup goes through the system proxy when it is on, and directly otherwise.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if direct && proxyAddress != "" {
				return errors.New("--direct and --proxy are mutually exclusive")
			}
			address := proxyAddress
			if !direct && address == "" {
				state, err := sysproxy.Read(a.store)
				if err != nil {
					return err
				}
				if state.Enabled {
					address = state.Address
				}
			}
			result := a.checker().Check(cmd.Context(), address)
			if result.Err != nil {
				a.logger.Warn("Could not get IP information", "proxy", address, "error", result.Err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), result.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&proxyAddress, "proxy", "", "check through this proxy address instead of the system proxy")
	cmd.Flags().BoolVar(&direct, "direct", false, "check without a proxy")
	return cmd
}

func newDefaultCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "default",
		Short: "Manage the default that reset returns to",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the saved default",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), a.defaults.Load().String())
			return nil
		},
	})

	var yes bool
	save := &cobra.Command{
		Use:   "save",
		Short: "Save the current system settings as the default",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			candidate, err := defaultproxy.Propose(a.store)
			if err != nil {
				return err
			}
			decision := defaultproxy.Accept
			if !yes {
				if decision, err = promptDecision(cmd.InOrStdin(), cmd.OutOrStdout())(candidate); err != nil {
					return err
				}
			}
			if decision != defaultproxy.Accept {
				fmt.Fprintln(cmd.OutOrStdout(), "Default not saved")
				return nil
			}
			if err := a.defaults.Save(candidate); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Default saved: %v\n", candidate)
			return nil
		},
	}
	save.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	cmd.AddCommand(save)

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Forget the default, so the next reset asks again",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.defaults.Clear(); err != nil {
				return err
			}
			a.logger.Info("Default proxy cleared")
			return nil
		},
	})
	return cmd
}
