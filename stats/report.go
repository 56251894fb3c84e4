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

package stats

import (
	"context"
	"log/slog"
	"time"
)

// ReportTunnel logs the counters of a finished tunnel next to the global ones, then
// resets the tunnel counters. It must be called once per tunnel, after both relay
// directions are done.
func ReportTunnel(logger *slog.Logger, t *Tunnel) {
	logger.Info("Tunnel stats", "tunnel", t.Snapshot(), "global", t.global.Snapshot())
	t.Reset()
}

// RunReporter logs the global counters every interval until ctx is done.
func RunReporter(ctx context.Context, logger *slog.Logger, g *Global, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logger.Info("Global stats", "global", g.Snapshot())
		}
	}
}
