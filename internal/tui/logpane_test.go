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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogWriter_SplitsAndDrops(t *testing.T) {
	w := NewLogWriter(2)
	n, err := w.Write([]byte("one\ntwo\nthree\n"))
	require.NoError(t, err)
	assert.Equal(t, 14, n)

	assert.Equal(t, "one", <-w.Lines())
	assert.Equal(t, "two", <-w.Lines())
	assert.Empty(t, w.Lines())
}

func TestNewLogHandler(t *testing.T) {
	w := NewLogWriter(4)
	logger := slog.New(NewLogHandler(w, slog.LevelInfo))

	logger.Debug("hidden")
	logger.Warn("Proxy settings drifted", "target", "10.0.0.1:8080")

	line := <-w.Lines()
	assert.Contains(t, line, "WRN Proxy settings drifted")
	assert.Contains(t, line, "target=10.0.0.1:8080")
	assert.NotContains(t, line, "\x1b[")
	assert.Empty(t, w.Lines())
}

func TestWaitForLog(t *testing.T) {
	assert.Nil(t, waitForLog(nil))

	lines := make(chan string, 1)
	lines <- "hello"
	assert.Equal(t, logMsg("hello"), waitForLog(lines)())

	close(lines)
	assert.Nil(t, waitForLog(lines)())
}
