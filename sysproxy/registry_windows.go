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

//go:build windows

package sysproxy

import (
	"errors"
	"fmt"

	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/registry"
)

const internetSettingsPath = `Software\Microsoft\Windows\CurrentVersion\Internet Settings`

var (
	modwininet            = windows.NewLazySystemDLL("wininet.dll")
	procInternetSetOption = modwininet.NewProc("InternetSetOptionW")
)

// https://learn.microsoft.com/en-us/windows/win32/wininet/option-flags
// INTERNET_OPTION_SETTINGS_CHANGED: 39
// Notifies the system that the registry settings have been changed so that it verifies the settings on the next call to InternetConnect.
// INTERNET_OPTION_REFRESH: 37
// Causes the proxy data to be reread from the registry for a handle. No buffer is required.
const (
	INTERNET_OPTION_SETTINGS_CHANGED = 39
	INTERNET_OPTION_REFRESH          = 37
)

type registryStore struct {
	root registry.Key
	path string
}

var _ Store = (*registryStore)(nil)

// NewRegistryStore returns a [Store] backed by the current user's Internet Settings key.
func NewRegistryStore() (Store, error) {
	return &registryStore{root: registry.CURRENT_USER, path: internetSettingsPath}, nil
}

// Every call opens the key again, so the values are never cached.
func (s *registryStore) open(access uint32) (registry.Key, error) {
	key, err := registry.OpenKey(s.root, s.path, access)
	if err != nil {
		return 0, fmt.Errorf("failed to open registry key %v: %w", s.path, err)
	}
	return key, nil
}

func (s *registryStore) Enabled() (bool, error) {
	key, err := s.open(registry.QUERY_VALUE)
	if err != nil {
		return false, err
	}
	defer key.Close()

	value, _, err := key.GetIntegerValue(ValueProxyEnable)
	if errors.Is(err, registry.ErrNotExist) || errors.Is(err, registry.ErrUnexpectedType) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return value == 1, nil
}

func (s *registryStore) getString(name string) (string, error) {
	key, err := s.open(registry.QUERY_VALUE)
	if err != nil {
		return "", err
	}
	defer key.Close()

	value, _, err := key.GetStringValue(name)
	if errors.Is(err, registry.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (s *registryStore) Address() (string, error) {
	return s.getString(ValueProxyServer)
}

func (s *registryStore) BypassList() (string, error) {
	return s.getString(ValueProxyOverride)
}

func (s *registryStore) SetEnabled(enabled bool) error {
	key, err := s.open(registry.SET_VALUE)
	if err != nil {
		return err
	}
	defer key.Close()

	var value uint32
	if enabled {
		value = 1
	}
	return key.SetDWordValue(ValueProxyEnable, value)
}

func (s *registryStore) setString(name, value string) error {
	key, err := s.open(registry.SET_VALUE)
	if err != nil {
		return err
	}
	defer key.Close()
	return key.SetStringValue(name, value)
}

func (s *registryStore) SetAddress(address string) error {
	return s.setString(ValueProxyServer, address)
}

func (s *registryStore) SetBypassList(list string) error {
	return s.setString(ValueProxyOverride, list)
}

func (s *registryStore) NotifyChanged() error {
	return notifyWinInetProxySettingsChanged()
}

// https://learn.microsoft.com/en-us/windows/win32/api/wininet/nf-wininet-internetsetoptionw
// internetSetOption sets an Internet option. It returns FALSE on failure.
func internetSetOption(hInternet uintptr, dwOption int, lpBuffer uintptr, dwBufferLength uint32) error {
	ret, _, lastErr := procInternetSetOption.Call(
		hInternet,
		uintptr(dwOption),
		lpBuffer,
		uintptr(dwBufferLength),
	)
	if ret == 0 {
		return lastErr
	}
	return nil
}

func notifyWinInetProxySettingsChanged() error {
	if err := internetSetOption(0, INTERNET_OPTION_SETTINGS_CHANGED, 0, 0); err != nil {
		return fmt.Errorf("failed to notify the system that the registry settings have been changed: %w", err)
	}

	if err := internetSetOption(0, INTERNET_OPTION_REFRESH, 0, 0); err != nil {
		return fmt.Errorf("failed to refresh the proxy data from the registry: %w", err)
	}

	return nil
}
