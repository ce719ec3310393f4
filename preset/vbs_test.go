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
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const vbsScript = `Set WshShell = CreateObject("WScript.Shell")
WshShell.RegWrite "HKCU\Software\Microsoft\Windows\CurrentVersion\Internet Settings\ProxyEnable", 1, "REG_DWORD"
WshShell.RegWrite "HKCU\Software\Microsoft\Windows\CurrentVersion\Internet Settings\ProxyServer", "%s", "REG_SZ"
' fallback 192.168.0.1:9999
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestImportVBS(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "Branches")
	require.NoError(t, os.Mkdir(dir, 0o750))
	writeFile(t, filepath.Join(dir, "Berlin.vbs"), `ProxyServer = "10.1.2.3:8080"`+"\n"+vbsScript)
	writeFile(t, filepath.Join(dir, "Paris.VBS"), "server = \"172.16.0.10:3128\"")
	writeFile(t, filepath.Join(dir, "Empty.vbs"), "MsgBox \"no proxy here\"")
	writeFile(t, filepath.Join(dir, "notes.txt"), "10.9.9.9:80")
	writeFile(t, filepath.Join(dir, "Huge.vbs"), "1.2.3.4:99999999999999999999")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.vbs"), 0o750))

	presets, err := ImportVBS(dir, nil)
	require.NoError(t, err)

	want := []Preset{
		{Category: "Branches", Name: "Berlin", Address: "10.1.2.3:8080", Port: 8080},
		{Category: "Branches", Name: "Paris", Address: "172.16.0.10:3128", Port: 3128},
	}
	if diff := cmp.Diff(want, presets, sortByName); diff != "" {
		t.Errorf("imported presets mismatch (-want +got):\n%s", diff)
	}
}

func TestImportVBS_NormalizesPort(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "Leading.vbs"), "10.0.0.1:03128")

	presets, err := ImportVBS(dir, nil)
	require.NoError(t, err)
	require.Len(t, presets, 1)
	require.Equal(t, "10.0.0.1:3128", presets[0].Address)
	require.Equal(t, 3128, presets[0].Port)
}

func TestImportVBS_MissingDir(t *testing.T) {
	_, err := ImportVBS(filepath.Join(t.TempDir(), "missing"), nil)
	require.Error(t, err)
}
