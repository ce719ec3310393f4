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

package preset

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tidwall/gjson"
)

var errMalformed = errors.New("malformed preset file")

var utf8BOM = []byte("\xef\xbb\xbf")

// Repository stores the preset list in a JSON file.
//
// Two layouts are read: a bare array of presets, and the legacy object that wraps the array in
// a "proxies" field. Save always writes the bare array.
type Repository struct {
	path string
	// Logger receives load problems. Nil means slog.Default().
	Logger *slog.Logger
}

// NewRepository returns a Repository for the file at path.
func NewRepository(path string) *Repository {
	return &Repository{path: path}
}

func (r *Repository) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// Path returns the location of the preset file.
func (r *Repository) Path() string {
	return r.path
}

// Exists reports whether the preset file is present.
func (r *Repository) Exists() bool {
	_, err := os.Stat(r.path)
	return err == nil
}

// Load returns the stored presets in file order. A missing, unreadable or malformed file yields
// an empty list.
func (r *Repository) Load() []Preset {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []Preset{}
	}
	if err != nil {
		r.logger().Warn("Failed to read presets", "path", r.path, "error", err)
		return []Preset{}
	}
	presets, err := Decode(data)
	if err != nil {
		r.logger().Warn("Ignoring unreadable presets", "path", r.path, "error", err)
		return []Preset{}
	}
	return presets
}

// Decode parses either preset file layout. A leading UTF-8 byte order mark is ignored.
func Decode(data []byte) ([]Preset, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !gjson.ValidBytes(data) {
		return nil, errMalformed
	}
	doc := gjson.ParseBytes(data)
	var raw string
	switch {
	case doc.IsArray():
		raw = doc.Raw
	case doc.IsObject():
		proxies := doc.Get("proxies")
		if !proxies.Exists() {
			return []Preset{}, nil
		}
		raw = proxies.Raw
	default:
		return []Preset{}, nil
	}

	var presets []Preset
	if err := json.Unmarshal([]byte(raw), &presets); err != nil {
		return nil, fmt.Errorf("%w: %w", errMalformed, err)
	}
	if presets == nil {
		presets = []Preset{}
	}
	return presets, nil
}

// Save validates presets and replaces the file with them.
func (r *Repository) Save(presets []Preset) error {
	if err := Validate(presets); err != nil {
		return err
	}
	return r.write(presets)
}

// Edit applies fn to the stored presets and writes the result. Only fn checks what it changes:
// entries hidden from [Selectable] are written back as they were.
func (r *Repository) Edit(fn func([]Preset) ([]Preset, error)) error {
	presets, err := fn(r.Load())
	if err != nil {
		return err
	}
	return r.write(presets)
}

func (r *Repository) write(presets []Preset) error {
	if presets == nil {
		presets = []Preset{}
	}
	data, err := json.MarshalIndent(presets, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode presets: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o750); err != nil {
		return fmt.Errorf("failed to create preset directory: %w", err)
	}
	if err := os.WriteFile(r.path, data, 0o640); err != nil {
		return fmt.Errorf("failed to write presets: %w", err)
	}
	return nil
}
