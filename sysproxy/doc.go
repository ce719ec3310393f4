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
Package sysproxy reads and writes the system-wide proxy settings.

The settings live in a flat key-value registry with three values:

  - ProxyEnable: 1 when the proxy is in use, 0 for a direct connection.
  - ProxyServer: the proxy address in "host:port" form.
  - ProxyOverride: the semicolon-separated bypass list.

A [Store] exposes get/set primitives over those values. The registry is shared with the rest of
the system, so callers must re-read it instead of caching values, and must call
[Store.NotifyChanged] after writing so running applications pick up the change.

# Backends

  - [NewRegistryStore] uses the current user's Internet Settings key on Windows.
  - [NewFileStore] keeps the same values in a YAML file. It is used on other platforms and for
    dry runs.

# Usage

[Enable] and [Disable] perform the complete write sequences:

	store, err := sysproxy.NewRegistryStore()
	if err != nil {
		return err
	}
	// Point the system at the proxy, leaving the bypass list as it is.
	err = sysproxy.Enable(store, "10.0.0.1:8080", sysproxy.PreserveBypass)
*/
package sysproxy
