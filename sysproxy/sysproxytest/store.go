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

// Package sysproxytest provides an in-memory [sysproxy.Store] for tests.
package sysproxytest

import (
	"sync"

	"github.com/Jigsaw-Code/proxyswitch/sysproxy"
)

// Store is an in-memory [sysproxy.Store]. It counts writes and notifications, and can be made to
// fail every call with [Store.SetErr].
type Store struct {
	mu       sync.Mutex
	state    sysproxy.State
	err      error
	writes   int
	notifies int
}

var _ sysproxy.Store = (*Store)(nil)

// New returns a Store holding state.
func New(state sysproxy.State) *Store {
	return &Store{state: state}
}

// SetErr makes every following call return err. Pass nil to recover.
func (s *Store) SetErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// State returns the current values without counting as a read.
func (s *Store) State() sysproxy.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Put replaces the values the way an external process would: no write is counted.
func (s *Store) Put(state sysproxy.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// Writes returns the number of successful Set* calls.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// Notifies returns the number of successful NotifyChanged calls.
func (s *Store) Notifies() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notifies
}

func (s *Store) Enabled() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Enabled, s.err
}

func (s *Store) Address() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Address, s.err
}

func (s *Store) BypassList() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.BypassList, s.err
}

func (s *Store) write(change func(*sysproxy.State)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	change(&s.state)
	s.writes++
	return nil
}

func (s *Store) SetEnabled(enabled bool) error {
	return s.write(func(st *sysproxy.State) { st.Enabled = enabled })
}

func (s *Store) SetAddress(address string) error {
	return s.write(func(st *sysproxy.State) { st.Address = address })
}

func (s *Store) SetBypassList(list string) error {
	return s.write(func(st *sysproxy.State) { st.BypassList = list })
}

func (s *Store) NotifyChanged() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.notifies++
	return nil
}
