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
	"time"
)

// DefaultInterval is the watchdog period.
const DefaultInterval = 5 * time.Second

// Run calls [Controller.Reconcile] every interval until ctx is done, and then returns nil.
// Failures are logged and retried on the next tick. A non-positive interval means
// [DefaultInterval].
func (c *Controller) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	c.logger.Debug("Watchdog started", "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("Watchdog stopped")
			return nil
		case <-ticker.C:
			// Errors are already logged.
			_, _ = c.Reconcile()
		}
	}
}
