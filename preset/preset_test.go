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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	assert.Equal(t, Preset{Category: DefaultCategory, Name: "Squid", Address: "10.0.0.1:3128", Port: 3128}, New("Squid", "10.0.0.1:3128"))
	assert.Equal(t, DefaultPort, New("NoPort", "proxy.lan").Port)
}

func TestSelectable(t *testing.T) {
	presets := []Preset{
		New("Zurich", "10.0.0.9:8080"),
		{Name: "  ", Address: "10.0.0.5:8080"},
		New("Amsterdam", "10.0.0.2:8080"),
		{Name: "Blank", Address: "\t"},
		New("Berlin", "10.0.0.1:8080"),
	}

	selectable := Selectable(presets)
	var names []string
	for _, p := range selectable {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"Amsterdam", "Berlin", "Zurich"}, names)
	// The input keeps its order.
	assert.Equal(t, "Zurich", presets[0].Name)
}

func TestFind(t *testing.T) {
	presets := []Preset{New("Berlin", "10.0.0.1:8080"), New("Paris", "10.0.0.3:3128")}

	p, err := Find(presets, "PARIS")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.3:3128", p.Address)

	p, err = Find(presets, " berlin ")
	require.NoError(t, err)
	assert.Equal(t, "Berlin", p.Name)

	_, err = Find(presets, "Rome")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAddRemove(t *testing.T) {
	presets := []Preset{New("Berlin", "10.0.0.1:8080")}

	added, err := Add(presets, Preset{Name: "Paris", Address: "10.0.0.3:3128", Port: 3128})
	require.NoError(t, err)
	require.Len(t, added, 2)
	assert.Equal(t, DefaultCategory, added[1].Category)
	assert.Len(t, presets, 1)

	_, err = Add(added, New("paris", "10.0.0.4:3128"))
	require.ErrorIs(t, err, ErrDuplicateName)
	_, err = Add(added, New("Rome", ""))
	require.ErrorIs(t, err, ErrMissingAddress)
	_, err = Add(added, New(" ", "10.0.0.4:3128"))
	require.ErrorIs(t, err, ErrMissingName)

	removed, err := Remove(added, "BERLIN")
	require.NoError(t, err)
	require.Equal(t, []Preset{{Category: DefaultCategory, Name: "Paris", Address: "10.0.0.3:3128", Port: 3128}}, removed)
	assert.Len(t, added, 2)

	_, err = Remove(removed, "Berlin")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate(nil))
	require.NoError(t, Validate([]Preset{New("", "10.0.0.1:8080"), New("", "10.0.0.2:8080")}))
	require.ErrorIs(t, Validate([]Preset{New("A", "")}), ErrMissingAddress)
	require.ErrorIs(t, Validate([]Preset{New("A", "1.1.1.1:80"), New(" a ", "1.1.1.2:80")}), ErrDuplicateName)
}

func TestMerge(t *testing.T) {
	presets := []Preset{New("Berlin", "10.0.0.1:8080")}
	imported := []Preset{New("berlin", "91.200.1.1:3128"), New("Fast", "91.200.1.2:3128")}

	merged, skipped := Merge(presets, imported)
	assert.Equal(t, []Preset{New("Berlin", "10.0.0.1:8080"), New("Fast", "91.200.1.2:3128")}, merged)
	assert.Equal(t, []Preset{New("berlin", "91.200.1.1:3128")}, skipped)
	assert.Len(t, presets, 1)
}
