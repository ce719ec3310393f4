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

package tui

import (
	"time"

	"github.com/Jigsaw-Code/proxyswitch/defaultproxy"
	"github.com/Jigsaw-Code/proxyswitch/ipcheck"
	"github.com/Jigsaw-Code/proxyswitch/preset"
	"github.com/Jigsaw-Code/proxyswitch/sysproxy"
	tea "github.com/charmbracelet/bubbletea"
)

// PresetsMsg replaces the preset list, for example after the file changed on disk.
type PresetsMsg []preset.Preset

// startupMsg carries what the UI checks once when it starts.
type startupMsg struct {
	defaults defaultproxy.Preference
	// firstRun is set when there is no preset file yet.
	firstRun bool
}

type defaultsMsg defaultproxy.Preference

type importedMsg struct {
	presets []preset.Preset
	added   int
	err     error
}

type logMsg string

type resultMsg ipcheck.Result

type tickMsg time.Time

type stateMsg struct {
	state sysproxy.State
	err   error
}

// actionMsg reports a finished transition. verified is set when the controller started an IP
// check for it.
type actionMsg struct {
	action   string
	verified bool
	err      error
}

type reconcileMsg struct {
	repaired bool
	err      error
}

// proposalMsg asks the user to confirm a default preference.
type proposalMsg struct {
	candidate defaultproxy.Preference
	forReset  bool
	err       error
}

func waitForLog(lines <-chan string) tea.Cmd {
	if lines == nil {
		return nil
	}
	return func() tea.Msg {
		line, ok := <-lines
		if !ok {
			return nil
		}
		return logMsg(line)
	}
}

func waitForResult(results <-chan ipcheck.Result) tea.Cmd {
	if results == nil {
		return nil
	}
	return func() tea.Msg {
		result, ok := <-results
		if !ok {
			return nil
		}
		return resultMsg(result)
	}
}

func tick(interval time.Duration) tea.Cmd {
	if interval <= 0 {
		return nil
	}
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) readState() tea.Msg {
	state, err := sysproxy.Read(m.opts.Store)
	return stateMsg{state: state, err: err}
}

func (m Model) reconcileCmd() tea.Msg {
	repaired, err := m.opts.Controller.Reconcile()
	return reconcileMsg{repaired: repaired, err: err}
}

func (m Model) applyCmd(p preset.Preset) tea.Cmd {
	return func() tea.Msg {
		err := m.opts.Controller.ApplyPreset(p)
		return actionMsg{action: "apply " + p.Name, verified: true, err: err}
	}
}

func (m Model) disableCmd() tea.Msg {
	return actionMsg{action: "disable", err: m.opts.Controller.Disable()}
}

// resetDirectCmd finishes a reset whose proposed default was declined.
func (m Model) resetDirectCmd() tea.Msg {
	return actionMsg{action: "reset", verified: true, err: m.opts.Controller.ResetToDirect()}
}

func (m Model) startup() tea.Msg {
	return startupMsg{
		defaults: m.opts.Defaults.Load(),
		firstRun: m.opts.Repository != nil && !m.opts.Repository.Exists(),
	}
}

func (m Model) loadDefaults() tea.Msg {
	return defaultsMsg(m.opts.Defaults.Load())
}

// resetCmd resets to the stored default, or asks for one first.
func (m Model) resetCmd() tea.Msg {
	pref := m.opts.Defaults.Load()
	if !pref.IsConfigured {
		return m.propose(true)
	}
	return m.resetTo(pref)
}

func (m Model) resetTo(pref defaultproxy.Preference) actionMsg {
	err := m.opts.Controller.ResetToDefault(pref, m.opts.FallbackBypass)
	return actionMsg{action: "reset", verified: true, err: err}
}

func (m Model) propose(forReset bool) proposalMsg {
	candidate, err := defaultproxy.Propose(m.opts.Store)
	return proposalMsg{candidate: candidate, forReset: forReset, err: err}
}

// proposeIfUnconfigured asks for a default preference at startup when none is loaded.
func (m Model) proposeIfUnconfigured() tea.Cmd {
	if m.defaults.IsConfigured {
		return nil
	}
	return func() tea.Msg {
		return m.propose(false)
	}
}

// importCmd imports the VBS scripts in dir and adds them to the preset file.
func (m Model) importCmd(dir string) tea.Cmd {
	return func() tea.Msg {
		imported, err := preset.ImportVBS(dir, nil)
		if err != nil {
			return importedMsg{err: err}
		}
		var merged, skipped []preset.Preset
		err = m.opts.Repository.Edit(func(presets []preset.Preset) ([]preset.Preset, error) {
			merged, skipped = preset.Merge(presets, imported)
			return merged, nil
		})
		return importedMsg{presets: merged, added: len(imported) - len(skipped), err: err}
	}
}

// confirmCmd stores the accepted candidate and, for a pending reset, applies it.
func (m Model) confirmCmd(candidate defaultproxy.Preference, forReset bool) tea.Cmd {
	return func() tea.Msg {
		if err := m.opts.Defaults.Save(candidate); err != nil {
			return actionMsg{action: "save default", err: err}
		}
		if !forReset {
			return actionMsg{action: "save default"}
		}
		return m.resetTo(candidate)
	}
}
