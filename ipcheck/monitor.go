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

package ipcheck

import (
	"context"
	"log/slog"
	"sync"
)

// Monitor runs checks in the background and reports each [Result] to an observer. A slow or
// failing lookup never blocks the caller of [Monitor.Verify].
type Monitor struct {
	checker *Checker
	logger  *slog.Logger
	observe func(Result)

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewMonitor creates a Monitor. observe may be nil, in which case results are only logged.
func NewMonitor(checker *Checker, logger *slog.Logger, observe func(Result)) *Monitor {
	if checker == nil {
		checker = &Checker{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Monitor{checker: checker, logger: logger, observe: observe, ctx: ctx, cancel: cancel}
}

// Verify starts a check through proxyAddress and returns immediately.
func (m *Monitor) Verify(proxyAddress string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.logger.Info("Checking IP address", "proxy", proxyAddress)
		result := m.checker.Check(m.ctx, proxyAddress)
		if result.Err != nil {
			m.logger.Warn("Could not get IP information", "proxy", proxyAddress, "error", result.Err)
		} else {
			m.logger.Info("IP checked", "ip", result.IP(), "location", result.Location(), "hostname", result.Hostname)
		}
		if m.observe != nil {
			m.observe(result)
		}
	}()
}

// Close cancels outstanding checks and waits for them to finish.
func (m *Monitor) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cancel()
	m.wg.Wait()
}

// Wait blocks until every started check has reported.
func (m *Monitor) Wait() {
	m.wg.Wait()
}
