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
	"log/slog"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// LogWriter queues written log lines for the log pane. Lines are dropped while the queue is full,
// so logging never blocks on the UI.
type LogWriter struct {
	lines chan string
}

// NewLogWriter creates a LogWriter that buffers up to size lines.
func NewLogWriter(size int) *LogWriter {
	return &LogWriter{lines: make(chan string, size)}
}

func (w *LogWriter) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		select {
		case w.lines <- line:
		default:
		}
	}
	return len(p), nil
}

// Lines returns the queued lines, for [Options.Logs].
func (w *LogWriter) Lines() <-chan string {
	return w.lines
}

// NewLogHandler returns a handler that formats records like the console logger, without
// colours, into w.
func NewLogHandler(w *LogWriter, level slog.Leveler) slog.Handler {
	return tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
		NoColor:    true,
	})
}
