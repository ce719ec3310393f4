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
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var vbsAddressPattern = regexp.MustCompile(`(\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}):(\d+)`)

// ImportVBS builds presets from the legacy *.vbs proxy scripts in dir. Each script contributes
// the first IPv4 "ip:port" it mentions, named after the file and filed under the folder name.
// Scripts without an address, or that cannot be read, are skipped.
func ImportVBS(dir string, logger *slog.Logger) ([]Preset, error) {
	if logger == nil {
		logger = slog.Default()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %v: %w", dir, err)
	}
	category := filepath.Base(filepath.Clean(dir))

	presets := []Preset{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".vbs") {
			continue
		}
		file := filepath.Join(dir, entry.Name())
		content, err := os.ReadFile(file)
		if err != nil {
			logger.Debug("Skipping unreadable script", "file", file, "error", err)
			continue
		}
		match := vbsAddressPattern.FindSubmatch(content)
		if match == nil {
			logger.Debug("No proxy address in script", "file", file)
			continue
		}
		port, err := strconv.Atoi(string(match[2]))
		if err != nil {
			logger.Debug("Invalid port in script", "file", file, "error", err)
			continue
		}
		presets = append(presets, Preset{
			Category: category,
			Name:     strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name())),
			Address:  fmt.Sprintf("%s:%d", match[1], port),
			Port:     port,
		})
	}
	return presets, nil
}
