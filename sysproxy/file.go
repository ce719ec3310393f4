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
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-yaml"
)

// fileValues mirrors the registry values. ProxyEnable keeps its DWORD meaning.
type fileValues struct {
	ProxyEnable   uint32 `yaml:"ProxyEnable"`
	ProxyServer   string `yaml:"ProxyServer,omitempty"`
	ProxyOverride string `yaml:"ProxyOverride,omitempty"`
}

// FileStore is a [Store] that keeps the proxy values in a YAML file. A missing file reads as a
// fresh registry with the proxy disabled. Every call reads the file again, so changes made by
// other processes are observed.
type FileStore struct {
	path string
	// mu serializes read-modify-write cycles within this process.
	mu sync.Mutex
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a [FileStore] at path. The file is created on the first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the location of the backing file.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) load() (fileValues, error) {
	var values fileValues
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return values, nil
	}
	if err != nil {
		return values, fmt.Errorf("failed to read %v: %w", s.path, err)
	}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return values, fmt.Errorf("failed to parse %v: %w", s.path, err)
	}
	return values, nil
}

func (s *FileStore) update(change func(*fileValues)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		return err
	}
	change(&values)
	data, err := yaml.Marshal(values)
	if err != nil {
		return fmt.Errorf("failed to encode proxy values: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create directory %v: %w", dir, err)
		}
	}
	if err := os.WriteFile(s.path, data, 0o640); err != nil {
		return fmt.Errorf("failed to write %v: %w", s.path, err)
	}
	return nil
}

func (s *FileStore) read() (fileValues, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *FileStore) Enabled() (bool, error) {
	values, err := s.read()
	return values.ProxyEnable == 1, err
}

func (s *FileStore) Address() (string, error) {
	values, err := s.read()
	return values.ProxyServer, err
}

func (s *FileStore) BypassList() (string, error) {
	values, err := s.read()
	return values.ProxyOverride, err
}

func (s *FileStore) SetEnabled(enabled bool) error {
	return s.update(func(v *fileValues) {
		v.ProxyEnable = 0
		if enabled {
			v.ProxyEnable = 1
		}
	})
}

func (s *FileStore) SetAddress(address string) error {
	return s.update(func(v *fileValues) { v.ProxyServer = address })
}

func (s *FileStore) SetBypassList(list string) error {
	return s.update(func(v *fileValues) { v.ProxyOverride = list })
}

// NotifyChanged does nothing. Readers of the file always see the latest values.
func (s *FileStore) NotifyChanged() error {
	return nil
}
