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

// Package tui is the interactive terminal front end: a preset picker, the live proxy status,
// the watchdog toggle, IP verification results and a log pane.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/Jigsaw-Code/proxyswitch/defaultproxy"
	"github.com/Jigsaw-Code/proxyswitch/ipcheck"
	"github.com/Jigsaw-Code/proxyswitch/preset"
	"github.com/Jigsaw-Code/proxyswitch/reconcile"
	"github.com/Jigsaw-Code/proxyswitch/sysproxy"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	maxLogLines  = 200
	logPaneLines = 8
)

// Options wires the model to the rest of the program.
type Options struct {
	Controller *reconcile.Controller
	Store      sysproxy.Store
	Defaults   *defaultproxy.Store
	Presets    []preset.Preset
	// Repository is where imported presets are saved. When its file is missing at startup, the
	// UI offers to import legacy VBS scripts. Nil disables the offer.
	Repository *preset.Repository
	// FallbackBypass is the bypass list written when resetting to a default proxy address.
	FallbackBypass string
	// Interval is the watchdog period. Zero means no watchdog ticks.
	Interval time.Duration
	// Verifier runs IP checks on demand. Nil disables the check key.
	Verifier reconcile.Verifier
	// Logs feeds the log pane, see [LogWriter].
	Logs <-chan string
	// Results delivers IP check results.
	Results <-chan ipcheck.Result
}

type mode int

const (
	modeBrowse mode = iota
	modeFind
	modeConfirm
	modeImportConfirm
	modeImportDir
)

// Model is the bubbletea model of the UI.
type Model struct {
	opts    Options
	presets []preset.Preset
	cursor  int
	mode    mode

	find      textinput.Model
	dir       textinput.Model
	defaults  defaultproxy.Preference
	candidate defaultproxy.Preference
	forReset  bool

	spinner  spinner.Model
	checking bool
	ip       *ipcheck.Result

	state    sysproxy.State
	stateErr error
	message  string
	logs     []string
}

// New creates the model.
func New(opts Options) Model {
	find := textinput.New()
	find.Placeholder = "preset name"
	find.CharLimit = 0
	find.Width = 40

	dir := textinput.New()
	dir.Placeholder = "folder with .vbs scripts"
	dir.CharLimit = 0
	dir.Width = 60

	return Model{
		opts:    opts,
		presets: preset.Selectable(opts.Presets),
		find:    find,
		dir:     dir,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.readState,
		m.startup,
		waitForLog(m.opts.Logs),
		waitForResult(m.opts.Results),
		tick(m.opts.Interval),
	)
}

func (m *Model) setPresets(presets []preset.Preset) {
	m.presets = preset.Selectable(presets)
	if m.cursor >= len(m.presets) {
		m.cursor = max(len(m.presets)-1, 0)
	}
}

func (m Model) selected() (preset.Preset, bool) {
	if m.cursor < 0 || m.cursor >= len(m.presets) {
		return preset.Preset{}, false
	}
	return m.presets[m.cursor], true
}

func (m *Model) appendLog(line string) {
	m.logs = append(m.logs, line)
	if len(m.logs) > maxLogLines {
		m.logs = m.logs[len(m.logs)-maxLogLines:]
	}
}

// startChecking shows the spinner until the next IP check result arrives.
func (m *Model) startChecking() tea.Cmd {
	if m.opts.Verifier == nil || m.opts.Results == nil {
		return nil
	}
	m.checking = true
	return m.spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case logMsg:
		m.appendLog(string(msg))
		return m, waitForLog(m.opts.Logs)

	case resultMsg:
		result := ipcheck.Result(msg)
		m.ip = &result
		m.checking = false
		return m, waitForResult(m.opts.Results)

	case PresetsMsg:
		m.setPresets(msg)
		m.message = fmt.Sprintf("Reloaded %d presets", len(m.presets))
		return m, nil

	case startupMsg:
		m.defaults = msg.defaults
		if msg.firstRun {
			m.mode = modeImportConfirm
			return m, nil
		}
		return m, m.proposeIfUnconfigured()

	case defaultsMsg:
		m.defaults = defaultproxy.Preference(msg)
		return m, nil

	case importedMsg:
		if msg.err != nil {
			m.message = fmt.Sprintf("Import failed: %v", msg.err)
		} else {
			m.setPresets(msg.presets)
			m.message = fmt.Sprintf("Imported %d presets", msg.added)
		}
		return m, m.proposeIfUnconfigured()

	case stateMsg:
		m.state, m.stateErr = msg.state, msg.err
		return m, nil

	case tickMsg:
		return m, tea.Sequence(m.reconcileCmd, tick(m.opts.Interval))

	case reconcileMsg:
		if msg.repaired {
			m.message = "Watchdog restored the proxy settings"
		}
		return m, m.readState

	case actionMsg:
		if msg.err != nil {
			m.message = fmt.Sprintf("%s failed: %v", msg.action, msg.err)
			return m, tea.Batch(m.readState, m.loadDefaults)
		}
		m.message = msg.action + " done"
		var cmd tea.Cmd
		if msg.verified {
			cmd = m.startChecking()
		}
		return m, tea.Batch(m.readState, m.loadDefaults, cmd)

	case proposalMsg:
		if msg.err != nil {
			m.message = fmt.Sprintf("Could not read the current proxy settings: %v", msg.err)
			return m, nil
		}
		m.mode = modeConfirm
		m.candidate = msg.candidate
		m.forReset = msg.forReset
		return m, nil

	case spinner.TickMsg:
		if !m.checking {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		switch m.mode {
		case modeConfirm:
			return m.updateConfirm(msg)
		case modeImportConfirm:
			return m.updateImportConfirm(msg)
		case modeImportDir:
			return m.updateImportDir(msg)
		case modeFind:
			return m.updateFind(msg)
		default:
			return m.updateBrowse(msg)
		}
	}
	return m, nil
}

func (m Model) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.presets)-1 {
			m.cursor++
		}
	case "enter", "a":
		p, ok := m.selected()
		if !ok {
			m.message = "No preset selected"
			return m, nil
		}
		return m, m.applyCmd(p)
	case "/":
		m.mode = modeFind
		m.find.SetValue("")
		return m, m.find.Focus()
	case "r":
		return m, m.resetCmd
	case "d":
		return m, m.disableCmd
	case "w":
		enabled := !m.opts.Controller.Watchdog()
		m.opts.Controller.SetWatchdog(enabled)
		m.message = "Watchdog " + onOff(enabled)
	case "i":
		if m.opts.Verifier == nil {
			m.message = "IP check is disabled"
			return m, nil
		}
		address := ""
		if m.state.Enabled {
			address = m.state.Address
		}
		m.opts.Verifier.Verify(address)
		return m, m.startChecking()
	case "ctrl+l":
		m.logs = nil
	}
	return m, nil
}

func (m Model) updateFind(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mode = modeBrowse
		m.find.Blur()
		return m, nil
	case "enter":
		m.mode = modeBrowse
		m.find.Blur()
		name := strings.TrimSpace(m.find.Value())
		p, err := preset.Find(m.presets, name)
		if err != nil {
			m.message = fmt.Sprintf("Preset %q not found", name)
			return m, nil
		}
		return m, m.applyCmd(p)
	}
	var cmd tea.Cmd
	m.find, cmd = m.find.Update(msg)
	return m, cmd
}

func (m Model) updateConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch strings.ToLower(msg.String()) {
	case "y", "enter":
		m.mode = modeBrowse
		return m, m.confirmCmd(m.candidate, m.forReset)
	case "n":
		m.mode = modeBrowse
		if m.forReset {
			return m, m.resetDirectCmd
		}
		m.message = "Default proxy not saved"
	case "c", "esc":
		m.mode = modeBrowse
		m.message = "Cancelled"
	}
	return m, nil
}

func (m Model) updateImportConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch strings.ToLower(msg.String()) {
	case "y", "enter":
		m.mode = modeImportDir
		m.dir.SetValue("")
		return m, m.dir.Focus()
	case "n", "c", "esc":
		m.mode = modeBrowse
		m.message = "Import skipped, the preset list is empty"
		return m, m.proposeIfUnconfigured()
	}
	return m, nil
}

func (m Model) updateImportDir(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mode = modeBrowse
		m.dir.Blur()
		m.message = "Import skipped, the preset list is empty"
		return m, m.proposeIfUnconfigured()
	case "enter":
		dir := strings.TrimSpace(m.dir.Value())
		if dir == "" {
			m.message = "Enter a folder"
			return m, nil
		}
		m.mode = modeBrowse
		m.dir.Blur()
		return m, m.importCmd(dir)
	}
	var cmd tea.Cmd
	m.dir, cmd = m.dir.Update(msg)
	return m, cmd
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1).
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("240")).
			BorderBottom(true)

	cellStyle     = lipgloss.NewStyle().Padding(0, 1)
	selectedStyle = cellStyle.Foreground(lipgloss.Color("212")).Bold(true)
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	promptStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
)

func (m Model) statusView() string {
	var b strings.Builder
	if m.stateErr != nil {
		fmt.Fprintf(&b, "Proxy: unreadable (%v)\n", m.stateErr)
	} else if m.state.Enabled {
		fmt.Fprintf(&b, "Proxy: on %v  Bypass: %v\n", m.state.Address, m.state.BypassList)
	} else {
		b.WriteString("Proxy: off (direct)\n")
	}

	target, ok := m.opts.Controller.Target()
	if !ok {
		target = "none"
	}
	fmt.Fprintf(&b, "Target: %v  Watchdog: %v  Default: %v\n", target, onOff(m.opts.Controller.Watchdog()), m.defaults)

	switch {
	case m.checking:
		b.WriteString("IP: checking " + m.spinner.View())
	case m.ip != nil:
		b.WriteString(m.ip.String())
	default:
		b.WriteString("IP: " + ipcheck.Unknown)
	}
	return b.String()
}

func (m Model) presetsView() string {
	if len(m.presets) == 0 {
		return dimStyle.Render("No presets. Add some with `proxyswitch preset add` or `proxyswitch import-vbs`.")
	}
	nameWidth, addressWidth, categoryWidth := 24, 24, 16
	header := lipgloss.JoinHorizontal(lipgloss.Top,
		headerStyle.Width(nameWidth).Render("Name"),
		headerStyle.Width(addressWidth).Render("Address"),
		headerStyle.Width(categoryWidth).Render("Category"),
	)
	rows := []string{header}
	for i, p := range m.presets {
		style := cellStyle
		name := "  " + p.Name
		if i == m.cursor {
			style = selectedStyle
			name = "> " + p.Name
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top,
			style.Width(nameWidth).Render(name),
			style.Width(addressWidth).Render(p.Address),
			style.Width(categoryWidth).Render(p.Category),
		))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("proxyswitch"))
	b.WriteString("\n")
	b.WriteString(m.statusView())
	b.WriteString("\n\n")
	b.WriteString(m.presetsView())
	b.WriteString("\n\n")

	switch m.mode {
	case modeFind:
		b.WriteString("Apply preset: ")
		b.WriteString(m.find.View())
		b.WriteString("\n")
	case modeConfirm:
		question := "Save the current settings (%v) as the default?"
		if m.forReset {
			question = "No default is saved. Use the current settings (%v) as the default and reset to it?"
		}
		b.WriteString(promptStyle.Render(fmt.Sprintf(question, m.candidate)))
		b.WriteString(" [y]es / [n]o / [c]ancel\n")
	case modeImportConfirm:
		b.WriteString(promptStyle.Render("No preset file found. Import presets from legacy VBS scripts?"))
		b.WriteString(" [y]es / [n]o\n")
	case modeImportDir:
		b.WriteString("Import from: ")
		b.WriteString(m.dir.View())
		b.WriteString("\n")
	}
	if m.message != "" {
		b.WriteString(m.message)
		b.WriteString("\n")
	}

	b.WriteString(dimStyle.Render(strings.Repeat("─", 60)))
	b.WriteString("\n")
	logs := m.logs
	if len(logs) > logPaneLines {
		logs = logs[len(logs)-logPaneLines:]
	}
	for _, line := range logs {
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString(dimStyle.Render("\n(enter apply, / find, r reset, d disable, w watchdog, i check IP, ctrl+l clear log, q quit)\n"))
	return b.String()
}
