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

/*
Package reconcile keeps the system proxy configuration in line with the user's last explicit
choice.

A [Controller] remembers the intended target, the address last applied through it. The user
transitions ([Controller.ApplyPreset], [Controller.ResetToDefault] and [Controller.Disable])
write the settings and move the target. [Controller.Reconcile] re-reads the live settings and,
if another process turned the proxy off or pointed it elsewhere, writes the target back.
[Controller.Run] calls it on a fixed interval.

All operations on one Controller are serialized, so the watchdog never interleaves its writes
with a user transition.
*/
package reconcile

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/Jigsaw-Code/proxyswitch/defaultproxy"
	"github.com/Jigsaw-Code/proxyswitch/preset"
	"github.com/Jigsaw-Code/proxyswitch/sysproxy"
)

var (
	// ErrEmptyAddress is returned when a preset has no address to apply.
	ErrEmptyAddress = errors.New("preset has no address")
	// ErrDefaultNotConfigured is returned by a reset before a default preference was stored.
	ErrDefaultNotConfigured = errors.New("default proxy is not configured")
	// ErrNoUsableDefault is returned by a reset when the stored default is neither direct nor
	// has an address. Nothing is written.
	ErrNoUsableDefault = errors.New("default proxy has no address")
)

// Verifier observes the effect of a transition, typically by checking the external IP address.
// Verify must not block.
type Verifier interface {
	Verify(proxyAddress string)
}

// VerifierFunc adapts a function to a [Verifier].
type VerifierFunc func(proxyAddress string)

func (f VerifierFunc) Verify(proxyAddress string) {
	f(proxyAddress)
}

// Controller owns the intended proxy target.
type Controller struct {
	store    sysproxy.Store
	logger   *slog.Logger
	verifier Verifier

	mu       sync.Mutex
	target   string
	watchdog bool
}

// Option configures a [Controller].
type Option func(*Controller)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithVerifier sets what is called after a successful apply or reset.
func WithVerifier(v Verifier) Option {
	return func(c *Controller) {
		c.verifier = v
	}
}

// WithWatchdog sets the initial watchdog state. The watchdog is on by default.
func WithWatchdog(enabled bool) Option {
	return func(c *Controller) {
		c.watchdog = enabled
	}
}

// New creates a Controller over store with no intended target.
func New(store sysproxy.Store, opts ...Option) *Controller {
	c := &Controller{store: store, logger: slog.Default(), watchdog: true}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Target returns the intended target, if any.
func (c *Controller) Target() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target, c.target != ""
}

// Watchdog reports whether [Controller.Reconcile] repairs drift.
func (c *Controller) Watchdog() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.watchdog
}

// SetWatchdog turns drift repair on or off. The intended target is kept either way.
func (c *Controller) SetWatchdog(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.watchdog != enabled {
		c.logger.Info("Watchdog toggled", "enabled", enabled)
	}
	c.watchdog = enabled
}

func (c *Controller) verify(address string) {
	if c.verifier != nil {
		c.verifier.Verify(address)
	}
}

// ApplyPreset turns the proxy on with p's address and makes it the intended target. The bypass
// list is left as it is. On failure the previous target stays in place.
func (c *Controller) ApplyPreset(p preset.Preset) error {
	address := strings.TrimSpace(p.Address)
	if address == "" {
		return fmt.Errorf("cannot apply %q: %w", p.Name, ErrEmptyAddress)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := sysproxy.Enable(c.store, address, sysproxy.PreserveBypass); err != nil {
		c.logger.Error("Failed to apply preset", "preset", p.Name, "address", address, "error", err)
		return err
	}
	c.target = address
	c.logger.Info("Applied preset", "preset", p.Name, "address", address)
	c.verify(address)
	return nil
}

// ResetToDefault applies the stored default preference. A direct default disables the proxy. An
// address default turns the proxy on with fallbackBypass as the bypass list. An unconfigured
// preference returns [ErrDefaultNotConfigured] without touching the store, so the caller can
// resolve one first.
func (c *Controller) ResetToDefault(pref defaultproxy.Preference, fallbackBypass string) error {
	if !pref.IsConfigured {
		return ErrDefaultNotConfigured
	}
	if pref.IsDirect {
		return c.ResetToDirect()
	}
	address := strings.TrimSpace(pref.Address)
	if address == "" {
		c.logger.Warn("Default proxy is not set, nothing to reset to")
		return ErrNoUsableDefault
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	bypass := sysproxy.ExplicitBypass(sysproxy.FallbackBypass(fallbackBypass))
	if err := sysproxy.Enable(c.store, address, bypass); err != nil {
		c.logger.Error("Failed to reset to default proxy", "address", address, "error", err)
		return err
	}
	c.target = address
	c.logger.Info("Reset to default proxy", "address", address, "bypass", bypass.String())
	c.verify(address)
	return nil
}

// ResetToDirect resets to a direct connection: it disables the proxy and checks the IP seen
// without one. A reset whose proposed default was declined ends here too.
func (c *Controller) ResetToDirect() error {
	if err := c.Disable(); err != nil {
		return err
	}
	c.verify("")
	return nil
}

// Disable turns the proxy off and clears the intended target. The stored address and bypass
// list are kept.
func (c *Controller) Disable() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := sysproxy.Disable(c.store); err != nil {
		c.logger.Error("Failed to disable proxy", "error", err)
		return err
	}
	c.target = ""
	c.logger.Info("Proxy disabled")
	return nil
}

// Reconcile re-reads the live settings and restores the intended target if they drifted from
// it. It does nothing when there is no target or the watchdog is off. repaired reports whether
// the settings were written.
func (c *Controller) Reconcile() (repaired bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.target == "" || !c.watchdog {
		return false, nil
	}

	enabled, err := c.store.Enabled()
	if err != nil {
		c.logger.Warn("Watchdog could not read proxy state", "error", err)
		return false, fmt.Errorf("failed to read proxy state: %w", err)
	}
	address, err := c.store.Address()
	if err != nil {
		c.logger.Warn("Watchdog could not read proxy address", "error", err)
		return false, fmt.Errorf("failed to read proxy address: %w", err)
	}
	if enabled && strings.EqualFold(address, c.target) {
		return false, nil
	}

	c.logger.Warn("Proxy settings drifted, restoring", "enabled", enabled, "address", address, "target", c.target)
	if err := sysproxy.Enable(c.store, c.target, sysproxy.PreserveBypass); err != nil {
		c.logger.Error("Watchdog failed to restore proxy", "target", c.target, "error", err)
		return false, err
	}
	c.logger.Info("Watchdog restored proxy", "address", c.target)
	return true, nil
}
