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
Package defaultproxy keeps the user's choice of what "reset" means: a direct connection or a
specific proxy address.

The choice is made once, in two phases. [Propose] turns the live system settings into a
candidate without storing anything. The caller shows the candidate to the user, and only an
affirmative answer is persisted with [Store.Save]. [Store.Resolve] runs both phases around a
[ConfirmFunc].
*/
package defaultproxy

import (
	"encoding/json"
	"fmt"

	"github.com/Jigsaw-Code/proxyswitch/sysproxy"
)

// Preference is the reset target. When IsConfigured is false the other fields carry no meaning.
type Preference struct {
	IsConfigured bool
	// IsDirect selects a direct connection on reset.
	IsDirect bool
	// Address is the proxy to restore when IsDirect is false. Empty means none.
	Address string
}

type preferenceJSON struct {
	IsConfigured    bool    `json:"isConfigured"`
	IsDefaultDirect bool    `json:"isDefaultDirect"`
	DefaultAddress  *string `json:"defaultProxyAddress"`
}

func (p Preference) MarshalJSON() ([]byte, error) {
	v := preferenceJSON{IsConfigured: p.IsConfigured, IsDefaultDirect: p.IsDirect}
	if p.Address != "" {
		v.DefaultAddress = &p.Address
	}
	return json.Marshal(v)
}

func (p *Preference) UnmarshalJSON(data []byte) error {
	var v preferenceJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*p = Preference{IsConfigured: v.IsConfigured, IsDirect: v.IsDefaultDirect}
	if v.DefaultAddress != nil {
		p.Address = *v.DefaultAddress
	}
	return nil
}

func (p Preference) String() string {
	switch {
	case !p.IsConfigured:
		return "not configured"
	case p.IsDirect:
		return "direct connection"
	case p.Address != "":
		return "proxy " + p.Address
	default:
		return "proxy with no address"
	}
}

// Propose captures the current system settings as a candidate preference. Nothing is stored.
func Propose(s sysproxy.Store) (Preference, error) {
	enabled, err := s.Enabled()
	if err != nil {
		return Preference{}, fmt.Errorf("failed to read proxy state: %w", err)
	}
	if !enabled {
		return Preference{IsConfigured: true, IsDirect: true}, nil
	}
	address, err := s.Address()
	if err != nil {
		return Preference{}, fmt.Errorf("failed to read proxy address: %w", err)
	}
	return Preference{IsConfigured: true, Address: address}, nil
}

// Decision is the user's answer to a proposed preference.
type Decision int

const (
	// Accept stores the candidate.
	Accept Decision = iota
	// Decline stores nothing. The question comes back next time.
	Decline
	// Cancel stores nothing and abandons the operation that asked.
	Cancel
)

func (d Decision) String() string {
	switch d {
	case Accept:
		return "accept"
	case Decline:
		return "decline"
	case Cancel:
		return "cancel"
	default:
		return fmt.Sprintf("Decision(%d)", int(d))
	}
}

// ConfirmFunc presents candidate to the user and returns the answer.
type ConfirmFunc func(candidate Preference) (Decision, error)
