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

package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Jigsaw-Code/proxyswitch/defaultproxy"
)

func acceptAll(defaultproxy.Preference) (defaultproxy.Decision, error) {
	return defaultproxy.Accept, nil
}

// promptDecision asks on out and reads the answer from in. Anything other than yes or no,
// including end of input, cancels.
func promptDecision(in io.Reader, out io.Writer) defaultproxy.ConfirmFunc {
	reader := bufio.NewReader(in)
	return func(candidate defaultproxy.Preference) (defaultproxy.Decision, error) {
		fmt.Fprintf(out, "Use the current settings (%v) as the default? [y]es/[n]o/[c]ancel: ", candidate)
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return defaultproxy.Cancel, fmt.Errorf("failed to read answer: %w", err)
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return defaultproxy.Accept, nil
		case "n", "no":
			return defaultproxy.Decline, nil
		default:
			return defaultproxy.Cancel, nil
		}
	}
}
