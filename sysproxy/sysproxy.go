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

package sysproxy

import (
	"errors"
	"fmt"
	"strings"
)

// Names of the values in the proxy settings registry.
const (
	ValueProxyEnable   = "ProxyEnable"
	ValueProxyServer   = "ProxyServer"
	ValueProxyOverride = "ProxyOverride"
)

// LocalToken is the bypass entry that excludes intranet (dotless) hosts from the proxy.
const LocalToken = "<local>"

// DefaultBypass is the minimal bypass list used when none was captured from the system.
const DefaultBypass = "localhost;127.0.0.1"

// ErrNotSupported is returned when a backend is not available on this platform.
var ErrNotSupported = errors.New("system proxy settings are not supported on this platform")

// Store gives access to the system proxy settings. Every method may fail, for example when the
// settings key is missing or access is denied.
type Store interface {
	// Enabled reports whether the proxy is in use. A missing value reads as false.
	Enabled() (bool, error)
	// Address returns the proxy address, or "" when none is set.
	Address() (string, error)
	// BypassList returns the bypass list, or "" when none is set.
	BypassList() (string, error)
	SetEnabled(enabled bool) error
	SetAddress(address string) error
	SetBypassList(list string) error
	// NotifyChanged tells the system that the settings were written.
	NotifyChanged() error
}

// State is a snapshot of the proxy settings.
type State struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	Address    string `json:"address,omitempty" yaml:"address,omitempty"`
	BypassList string `json:"bypassList,omitempty" yaml:"bypassList,omitempty"`
}

// Read takes a snapshot of the current settings.
func Read(s Store) (State, error) {
	var state State
	var err error
	if state.Enabled, err = s.Enabled(); err != nil {
		return State{}, fmt.Errorf("failed to read %v: %w", ValueProxyEnable, err)
	}
	if state.Address, err = s.Address(); err != nil {
		return State{}, fmt.Errorf("failed to read %v: %w", ValueProxyServer, err)
	}
	if state.BypassList, err = s.BypassList(); err != nil {
		return State{}, fmt.Errorf("failed to read %v: %w", ValueProxyOverride, err)
	}
	return state, nil
}

// Bypass selects what a write does with the bypass list.
type Bypass struct {
	list     string
	explicit bool
}

// PreserveBypass leaves the bypass list in the store untouched.
var PreserveBypass = Bypass{}

// ExplicitBypass replaces the bypass list with list, plus [LocalToken] if it is missing.
func ExplicitBypass(list string) Bypass {
	return Bypass{list: list, explicit: true}
}

// Preserve reports whether the policy leaves the stored list alone.
func (b Bypass) Preserve() bool {
	return !b.explicit
}

// List returns the bypass list that will be written. It is empty for [PreserveBypass].
func (b Bypass) List() string {
	if !b.explicit {
		return ""
	}
	return WithLocal(b.list)
}

func (b Bypass) String() string {
	if !b.explicit {
		return "preserve"
	}
	return b.List()
}

// Enable points the system at address and turns the proxy on.
func Enable(s Store, address string, bypass Bypass) error {
	if err := s.SetEnabled(true); err != nil {
		return fmt.Errorf("failed to enable proxy: %w", err)
	}
	if err := s.SetAddress(address); err != nil {
		return fmt.Errorf("failed to set proxy address: %w", err)
	}
	if !bypass.Preserve() {
		if err := s.SetBypassList(bypass.List()); err != nil {
			return fmt.Errorf("failed to set bypass list: %w", err)
		}
	}
	return notify(s)
}

// Disable turns the proxy off. The address and bypass list are kept.
func Disable(s Store) error {
	if err := s.SetEnabled(false); err != nil {
		return fmt.Errorf("failed to disable proxy: %w", err)
	}
	return notify(s)
}

func notify(s Store) error {
	if err := s.NotifyChanged(); err != nil {
		return fmt.Errorf("failed to notify settings change: %w", err)
	}
	return nil
}

// WithLocal returns list with [LocalToken] appended, unless it is already one of its entries.
func WithLocal(list string) string {
	for _, entry := range strings.Split(list, ";") {
		if strings.EqualFold(strings.TrimSpace(entry), LocalToken) {
			return list
		}
	}
	trimmed := strings.TrimRight(strings.TrimSpace(list), ";")
	if trimmed == "" {
		return LocalToken
	}
	return trimmed + ";" + LocalToken
}

// FallbackBypass returns captured, or [DefaultBypass] if nothing was captured.
func FallbackBypass(captured string) string {
	if strings.TrimSpace(captured) == "" {
		return DefaultBypass
	}
	return captured
}
