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
	"math/rand"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestFileStore(t *testing.T) *FileStore {
	return NewFileStore(filepath.Join(t.TempDir(), "registry.yaml"))
}

func TestFileStore_MissingFileIsDisabled(t *testing.T) {
	store := newTestFileStore(t)

	state, err := Read(store)
	require.NoError(t, err)
	require.Equal(t, State{}, state)
}

func TestEnable_IP(t *testing.T) {
	store := newTestFileStore(t)
	host := net.IPv4(byte(rand.Intn(256)), byte(rand.Intn(256)), byte(rand.Intn(256)), byte(rand.Intn(256)))
	address := net.JoinHostPort(host.String(), strconv.Itoa(rand.Intn(65536)))

	require.NoError(t, Enable(store, address, PreserveBypass))

	state, err := Read(store)
	require.NoError(t, err)
	require.True(t, state.Enabled)
	require.Equal(t, address, state.Address)
	require.Empty(t, state.BypassList)
}

func TestEnable_Domain(t *testing.T) {
	store := newTestFileStore(t)
	address := net.JoinHostPort(generateRandomDomain(), strconv.Itoa(rand.Intn(65536)))

	require.NoError(t, Enable(store, address, ExplicitBypass("*.corp")))

	state, err := Read(store)
	require.NoError(t, err)
	require.True(t, state.Enabled)
	require.Equal(t, address, state.Address)
	require.Equal(t, "*.corp;<local>", state.BypassList)
}

func TestEnable_PreserveKeepsBypass(t *testing.T) {
	store := newTestFileStore(t)
	require.NoError(t, store.SetBypassList("intranet;*.example.com"))

	require.NoError(t, Enable(store, "10.0.0.1:8080", PreserveBypass))

	bypass, err := store.BypassList()
	require.NoError(t, err)
	require.Equal(t, "intranet;*.example.com", bypass)
}

func TestDisable_KeepsAddressAndBypass(t *testing.T) {
	store := newTestFileStore(t)
	require.NoError(t, Enable(store, "10.0.0.1:8080", ExplicitBypass("localhost")))

	require.NoError(t, Disable(store))

	state, err := Read(store)
	require.NoError(t, err)
	require.Equal(t, State{Enabled: false, Address: "10.0.0.1:8080", BypassList: "localhost;<local>"}, state)
}

func TestFileStore_SharedBetweenInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "registry.yaml")
	ours := NewFileStore(path)
	theirs := NewFileStore(path)

	require.NoError(t, Enable(ours, "10.0.0.1:8080", PreserveBypass))
	require.NoError(t, theirs.SetEnabled(false))

	enabled, err := ours.Enabled()
	require.NoError(t, err)
	require.False(t, enabled)
}

func TestFileStore_Malformed(t *testing.T) {
	store := newTestFileStore(t)
	require.NoError(t, os.WriteFile(store.Path(), []byte("ProxyEnable: [not a number"), 0o600))

	_, err := store.Enabled()
	require.Error(t, err)
	require.Error(t, store.SetAddress("10.0.0.1:8080"))
}

func TestWithLocal(t *testing.T) {
	for _, tc := range []struct {
		in, want string
	}{
		{"", "<local>"},
		{"localhost;127.0.0.1", "localhost;127.0.0.1;<local>"},
		{"localhost;", "localhost;<local>"},
		{"localhost;<local>", "localhost;<local>"},
		{"<LOCAL>;localhost", "<LOCAL>;localhost"},
		{"*.local", "*.local;<local>"},
	} {
		t.Run(tc.in, func(t *testing.T) {
			require.Equal(t, tc.want, WithLocal(tc.in))
		})
	}
}

func TestFallbackBypass(t *testing.T) {
	require.Equal(t, DefaultBypass, FallbackBypass(""))
	require.Equal(t, DefaultBypass, FallbackBypass("  "))
	require.Equal(t, "*.corp", FallbackBypass("*.corp"))
}

func TestBypassPolicy(t *testing.T) {
	require.True(t, PreserveBypass.Preserve())
	require.Equal(t, "preserve", PreserveBypass.String())
	require.Empty(t, PreserveBypass.List())

	explicit := ExplicitBypass("localhost")
	require.False(t, explicit.Preserve())
	require.Equal(t, "localhost;<local>", explicit.List())
}

func generateRandomDomain() string {
	// Define the characters allowed in the domain name
	chars := "abcdefghijklmnopqrstuvwxyz0123456789"

	// Generate a random length for the domain name (between 5 and 15 characters)
	length := rand.Intn(11) + 5

	var builder strings.Builder
	for i := 0; i < length; i++ {
		builder.WriteByte(chars[rand.Intn(len(chars))])
	}
	builder.WriteString(".com")

	return builder.String()
}
