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

package defaultproxy

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Jigsaw-Code/proxyswitch/sysproxy"
)

// Store persists the [Preference] as a JSON object.
type Store struct {
	path string
	// Logger receives load problems. Nil means slog.Default().
	Logger *slog.Logger
}

// NewStore returns a Store for the file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Path returns the location of the settings file.
func (s *Store) Path() string {
	return s.path
}

// Load returns the stored preference. A missing or damaged file reads as unconfigured. A leading
// UTF-8 byte order mark is ignored.
func (s *Store) Load() Preference {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Preference{}
	}
	if err != nil {
		s.logger().Warn("Failed to read default proxy settings", "path", s.path, "error", err)
		return Preference{}
	}
	var p Preference
	if err := json.Unmarshal(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf")), &p); err != nil {
		s.logger().Warn("Ignoring damaged default proxy settings", "path", s.path, "error", err)
		return Preference{}
	}
	return p
}

// Save replaces the stored preference with p.
func (s *Store) Save(p Preference) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o640); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return nil
}

// Clear forgets the preference, so the next reset asks again.
func (s *Store) Clear() error {
	return s.Save(Preference{})
}

// Resolve returns the stored preference if it is configured. Otherwise it proposes the live
// settings of sys, asks confirm, and stores the candidate only on [Accept]. The returned
// preference is unconfigured unless it was stored.
func (s *Store) Resolve(sys sysproxy.Store, confirm ConfirmFunc) (Preference, Decision, error) {
	if p := s.Load(); p.IsConfigured {
		return p, Accept, nil
	}
	candidate, err := Propose(sys)
	if err != nil {
		return Preference{}, Cancel, err
	}
	decision, err := confirm(candidate)
	if err != nil {
		return Preference{}, Cancel, err
	}
	if decision != Accept {
		return Preference{}, decision, nil
	}
	if err := s.Save(candidate); err != nil {
		return Preference{}, Cancel, err
	}
	s.logger().Info("Saved default proxy", "default", candidate.String())
	return candidate, Accept, nil
}
