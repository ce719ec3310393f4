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

// Package preset manages the list of named proxy presets: the JSON file that stores them, the
// edits a user can make, and the import of legacy VBS proxy scripts.
package preset

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"slices"
	"strconv"
	"strings"
)

// Values a preset field takes when the stored object omits it.
const (
	DefaultCategory = "General"
	DefaultName     = "Unknown"
	DefaultPort     = 8080
)

var (
	ErrNotFound       = errors.New("preset not found")
	ErrMissingAddress = errors.New("preset has no address")
	ErrMissingName    = errors.New("preset has no name")
	ErrDuplicateName  = errors.New("duplicate preset name")
)

// Preset is a named proxy configuration. Address is the "host:port" string written verbatim to
// the system settings. Port is informational.
type Preset struct {
	Category string `json:"category" yaml:"category"`
	Name     string `json:"name" yaml:"name"`
	Address  string `json:"address" yaml:"address"`
	Port     int    `json:"port" yaml:"port"`
}

// New creates a preset in the default category. The port is taken from address when it has one.
func New(name, address string) Preset {
	p := Preset{Category: DefaultCategory, Name: name, Address: address, Port: DefaultPort}
	if _, portStr, err := net.SplitHostPort(address); err == nil {
		if port, err := strconv.Atoi(portStr); err == nil {
			p.Port = port
		}
	}
	return p
}

// UnmarshalJSON fills fields missing from data with their defaults.
func (p *Preset) UnmarshalJSON(data []byte) error {
	type plain Preset
	v := plain{Category: DefaultCategory, Name: DefaultName, Port: DefaultPort}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*p = Preset(v)
	return nil
}

func (p Preset) String() string {
	return fmt.Sprintf("%v (%v)", p.Name, p.Address)
}

func (p Preset) usable() bool {
	return strings.TrimSpace(p.Name) != "" && strings.TrimSpace(p.Address) != ""
}

// Selectable returns the presets that have both a name and an address, sorted by name.
func Selectable(presets []Preset) []Preset {
	result := make([]Preset, 0, len(presets))
	for _, p := range presets {
		if p.usable() {
			result = append(result, p)
		}
	}
	slices.SortStableFunc(result, func(a, b Preset) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return result
}

// Find returns the first preset whose name matches name, ignoring case.
func Find(presets []Preset, name string) (Preset, error) {
	i := indexOf(presets, name)
	if i < 0 {
		return Preset{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return presets[i], nil
}

func indexOf(presets []Preset, name string) int {
	name = strings.TrimSpace(name)
	return slices.IndexFunc(presets, func(p Preset) bool {
		return strings.EqualFold(strings.TrimSpace(p.Name), name)
	})
}

// Validate checks what a saved list must satisfy: every preset has an address, and names are
// unique regardless of case.
func Validate(presets []Preset) error {
	seen := make(map[string]bool, len(presets))
	for _, p := range presets {
		if strings.TrimSpace(p.Address) == "" {
			return fmt.Errorf("%w: %q", ErrMissingAddress, p.Name)
		}
		key := strings.ToLower(strings.TrimSpace(p.Name))
		if key == "" {
			continue
		}
		if seen[key] {
			return fmt.Errorf("%w: %q", ErrDuplicateName, p.Name)
		}
		seen[key] = true
	}
	return nil
}

// Add returns a copy of presets with p appended.
func Add(presets []Preset, p Preset) ([]Preset, error) {
	if strings.TrimSpace(p.Name) == "" {
		return nil, ErrMissingName
	}
	if strings.TrimSpace(p.Address) == "" {
		return nil, fmt.Errorf("%w: %q", ErrMissingAddress, p.Name)
	}
	if indexOf(presets, p.Name) >= 0 {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateName, p.Name)
	}
	if p.Category == "" {
		p.Category = DefaultCategory
	}
	return append(slices.Clone(presets), p), nil
}

// Remove returns a copy of presets without the one named name.
func Remove(presets []Preset, name string) ([]Preset, error) {
	i := indexOf(presets, name)
	if i < 0 {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return slices.Delete(slices.Clone(presets), i, i+1), nil
}

// Merge adds each imported preset to presets with [Add]. Presets that Add rejects, such as a
// name that is already taken, are returned in skipped.
func Merge(presets, imported []Preset) (merged, skipped []Preset) {
	merged = slices.Clone(presets)
	for _, p := range imported {
		next, err := Add(merged, p)
		if err != nil {
			skipped = append(skipped, p)
			continue
		}
		merged = next
	}
	return merged, skipped
}
