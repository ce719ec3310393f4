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

package reconcile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Jigsaw-Code/proxyswitch/defaultproxy"
	"github.com/Jigsaw-Code/proxyswitch/preset"
	"github.com/Jigsaw-Code/proxyswitch/sysproxy"
	"github.com/Jigsaw-Code/proxyswitch/sysproxy/sysproxytest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingVerifier struct {
	mu        sync.Mutex
	addresses []string
}

func (v *recordingVerifier) Verify(address string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.addresses = append(v.addresses, address)
}

func (v *recordingVerifier) calls() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.addresses...)
}

func newTestController(store sysproxy.Store, opts ...Option) *Controller {
	return New(store, append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)...)
}

func TestApplyPreset(t *testing.T) {
	store := sysproxytest.New(sysproxy.State{Address: "old.example:1", BypassList: "*.corp;<local>"})
	verifier := &recordingVerifier{}
	c := newTestController(store, WithVerifier(verifier))

	require.NoError(t, c.ApplyPreset(preset.New("Office", "10.0.0.1:8080")))

	assert.Equal(t, sysproxy.State{Enabled: true, Address: "10.0.0.1:8080", BypassList: "*.corp;<local>"}, store.State())
	assert.Equal(t, 1, store.Notifies())
	target, ok := c.Target()
	assert.True(t, ok)
	assert.Equal(t, "10.0.0.1:8080", target)
	assert.Equal(t, []string{"10.0.0.1:8080"}, verifier.calls())
}

func TestApplyPreset_EmptyAddress(t *testing.T) {
	store := sysproxytest.New(sysproxy.State{})
	verifier := &recordingVerifier{}
	c := newTestController(store, WithVerifier(verifier))

	err := c.ApplyPreset(preset.Preset{Name: "Blank", Address: "  "})
	require.ErrorIs(t, err, ErrEmptyAddress)
	assert.Zero(t, store.Writes())
	assert.Zero(t, store.Notifies())
	_, ok := c.Target()
	assert.False(t, ok)
	assert.Empty(t, verifier.calls())
}

func TestApplyPreset_FailureKeepsTarget(t *testing.T) {
	store := sysproxytest.New(sysproxy.State{})
	c := newTestController(store)
	require.NoError(t, c.ApplyPreset(preset.New("A", "10.0.0.1:8080")))

	store.SetErr(errors.New("access denied"))
	require.Error(t, c.ApplyPreset(preset.New("B", "10.0.0.2:8080")))

	target, _ := c.Target()
	assert.Equal(t, "10.0.0.1:8080", target)
}

func TestDisable(t *testing.T) {
	store := sysproxytest.New(sysproxy.State{BypassList: "localhost"})
	c := newTestController(store)
	require.NoError(t, c.ApplyPreset(preset.New("A", "10.0.0.1:8080")))

	require.NoError(t, c.Disable())
	assert.Equal(t, sysproxy.State{Enabled: false, Address: "10.0.0.1:8080", BypassList: "localhost"}, store.State())
	_, ok := c.Target()
	assert.False(t, ok)

	writes := store.Writes()
	repaired, err := c.Reconcile()
	require.NoError(t, err)
	assert.False(t, repaired)
	assert.Equal(t, writes, store.Writes())
	assert.False(t, store.State().Enabled)
}

func TestResetToDirect(t *testing.T) {
	store := sysproxytest.New(sysproxy.State{BypassList: "localhost"})
	verifier := &recordingVerifier{}
	c := newTestController(store, WithVerifier(verifier))
	require.NoError(t, c.ApplyPreset(preset.New("A", "10.0.0.1:8080")))

	require.NoError(t, c.ResetToDirect())
	assert.Equal(t, sysproxy.State{Enabled: false, Address: "10.0.0.1:8080", BypassList: "localhost"}, store.State())
	_, ok := c.Target()
	assert.False(t, ok)
	assert.Equal(t, []string{"10.0.0.1:8080", ""}, verifier.calls())

	store.SetErr(errors.New("access denied"))
	require.Error(t, c.ResetToDirect())
	assert.Equal(t, []string{"10.0.0.1:8080", ""}, verifier.calls())
}

func TestDisable_FailureKeepsTarget(t *testing.T) {
	store := sysproxytest.New(sysproxy.State{})
	c := newTestController(store)
	require.NoError(t, c.ApplyPreset(preset.New("A", "10.0.0.1:8080")))

	store.SetErr(errors.New("access denied"))
	require.Error(t, c.Disable())
	_, ok := c.Target()
	assert.True(t, ok)
}

func TestReconcile_RepairsDrift(t *testing.T) {
	for _, tc := range []struct {
		name  string
		drift sysproxy.State
	}{
		{name: "disabled", drift: sysproxy.State{Enabled: false, Address: "10.0.0.1:8080", BypassList: "corp"}},
		{name: "address changed", drift: sysproxy.State{Enabled: true, Address: "6.6.6.6:80", BypassList: "corp"}},
		{name: "address cleared", drift: sysproxy.State{Enabled: true, BypassList: "corp"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			store := sysproxytest.New(sysproxy.State{BypassList: "corp"})
			c := newTestController(store)
			require.NoError(t, c.ApplyPreset(preset.New("A", "10.0.0.1:8080")))

			store.Put(tc.drift)
			repaired, err := c.Reconcile()
			require.NoError(t, err)
			assert.True(t, repaired)
			assert.Equal(t, sysproxy.State{Enabled: true, Address: "10.0.0.1:8080", BypassList: "corp"}, store.State())
			assert.Equal(t, 2, store.Notifies())
		})
	}
}

func TestReconcile_RepairsEveryTime(t *testing.T) {
	store := sysproxytest.New(sysproxy.State{})
	c := newTestController(store)
	require.NoError(t, c.ApplyPreset(preset.New("A", "10.0.0.1:8080")))

	for i := 0; i < 3; i++ {
		store.Put(sysproxy.State{Enabled: false})
		repaired, err := c.Reconcile()
		require.NoError(t, err)
		assert.True(t, repaired)
	}
	assert.Equal(t, 4, store.Notifies())
}

func TestReconcile_NoDrift(t *testing.T) {
	store := sysproxytest.New(sysproxy.State{})
	c := newTestController(store)
	require.NoError(t, c.ApplyPreset(preset.New("A", "proxy.example:8080")))
	store.Put(sysproxy.State{Enabled: true, Address: "PROXY.Example:8080"})

	writes := store.Writes()
	repaired, err := c.Reconcile()
	require.NoError(t, err)
	assert.False(t, repaired)
	assert.Equal(t, writes, store.Writes())
}

func TestReconcile_NoTarget(t *testing.T) {
	store := sysproxytest.New(sysproxy.State{Enabled: true, Address: "10.0.0.1:8080"})
	c := newTestController(store)

	store.Put(sysproxy.State{})
	repaired, err := c.Reconcile()
	require.NoError(t, err)
	assert.False(t, repaired)
	assert.Zero(t, store.Writes())
}

func TestReconcile_WatchdogOff(t *testing.T) {
	store := sysproxytest.New(sysproxy.State{})
	c := newTestController(store, WithWatchdog(false))
	assert.False(t, c.Watchdog())
	require.NoError(t, c.ApplyPreset(preset.New("A", "10.0.0.1:8080")))

	store.Put(sysproxy.State{})
	repaired, err := c.Reconcile()
	require.NoError(t, err)
	assert.False(t, repaired)
	assert.Equal(t, sysproxy.State{}, store.State())

	c.SetWatchdog(true)
	repaired, err = c.Reconcile()
	require.NoError(t, err)
	assert.True(t, repaired)
	assert.True(t, store.State().Enabled)
}

func TestReconcile_StoreFailure(t *testing.T) {
	store := sysproxytest.New(sysproxy.State{})
	c := newTestController(store)
	require.NoError(t, c.ApplyPreset(preset.New("A", "10.0.0.1:8080")))
	store.Put(sysproxy.State{})

	store.SetErr(errors.New("key not found"))
	repaired, err := c.Reconcile()
	require.Error(t, err)
	assert.False(t, repaired)
	target, _ := c.Target()
	assert.Equal(t, "10.0.0.1:8080", target)

	store.SetErr(nil)
	repaired, err = c.Reconcile()
	require.NoError(t, err)
	assert.True(t, repaired)
	assert.Equal(t, "10.0.0.1:8080", store.State().Address)
}

func TestResetToDefault_NotConfigured(t *testing.T) {
	store := sysproxytest.New(sysproxy.State{Enabled: true, Address: "10.0.0.1:8080"})
	c := newTestController(store)

	err := c.ResetToDefault(defaultproxy.Preference{IsDirect: true}, "")
	require.ErrorIs(t, err, ErrDefaultNotConfigured)
	assert.Zero(t, store.Writes())
	assert.Zero(t, store.Notifies())
}

func TestResetToDefault_Direct(t *testing.T) {
	store := sysproxytest.New(sysproxy.State{Enabled: true, Address: "10.0.0.1:8080", BypassList: "corp"})
	verifier := &recordingVerifier{}
	c := newTestController(store, WithVerifier(verifier))
	require.NoError(t, c.ApplyPreset(preset.New("A", "10.0.0.1:8080")))

	require.NoError(t, c.ResetToDefault(defaultproxy.Preference{IsConfigured: true, IsDirect: true}, "ignored"))
	assert.Equal(t, sysproxy.State{Enabled: false, Address: "10.0.0.1:8080", BypassList: "corp"}, store.State())
	_, ok := c.Target()
	assert.False(t, ok)
	assert.Equal(t, []string{"10.0.0.1:8080", ""}, verifier.calls())
}

func TestResetToDefault_Address(t *testing.T) {
	for _, tc := range []struct {
		name     string
		fallback string
		bypass   string
	}{
		{name: "captured", fallback: "*.corp;10.*", bypass: "*.corp;10.*;<local>"},
		{name: "captured with local", fallback: "<LOCAL>;*.corp", bypass: "<LOCAL>;*.corp"},
		{name: "nothing captured", fallback: "", bypass: "localhost;127.0.0.1;<local>"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			store := sysproxytest.New(sysproxy.State{BypassList: "old"})
			verifier := &recordingVerifier{}
			c := newTestController(store, WithVerifier(verifier))

			pref := defaultproxy.Preference{IsConfigured: true, Address: "1.2.3.4:3128"}
			require.NoError(t, c.ResetToDefault(pref, tc.fallback))
			assert.Equal(t, sysproxy.State{Enabled: true, Address: "1.2.3.4:3128", BypassList: tc.bypass}, store.State())
			assert.Equal(t, 1, store.Notifies())
			target, _ := c.Target()
			assert.Equal(t, "1.2.3.4:3128", target)
			assert.Equal(t, []string{"1.2.3.4:3128"}, verifier.calls())
		})
	}
}

func TestResetToDefault_NoUsableDefault(t *testing.T) {
	store := sysproxytest.New(sysproxy.State{Enabled: true, Address: "10.0.0.1:8080"})
	c := newTestController(store)

	err := c.ResetToDefault(defaultproxy.Preference{IsConfigured: true}, "corp")
	require.ErrorIs(t, err, ErrNoUsableDefault)
	assert.Zero(t, store.Writes())
}

func TestRun(t *testing.T) {
	store := sysproxytest.New(sysproxy.State{})
	c := newTestController(store)
	require.NoError(t, c.ApplyPreset(preset.New("A", "10.0.0.1:8080")))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- c.Run(ctx, 10*time.Millisecond)
	}()

	store.Put(sysproxy.State{Enabled: false, Address: "6.6.6.6:80"})
	require.Eventually(t, func() bool {
		return store.State() == sysproxy.State{Enabled: true, Address: "10.0.0.1:8080"}
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestVerifierFunc(t *testing.T) {
	var got string
	c := newTestController(sysproxytest.New(sysproxy.State{}), WithVerifier(VerifierFunc(func(address string) {
		got = address
	})))
	require.NoError(t, c.ApplyPreset(preset.New("A", "10.0.0.1:8080")))
	assert.Equal(t, "10.0.0.1:8080", got)
}
