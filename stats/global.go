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

// Package stats keeps the proxy counters: one [Tunnel] per established tunnel, and a
// process-wide [Global] that every tunnel feeds.
//
// All counters are atomic, so tunnels running in parallel can update them without
// additional locking.
package stats

import (
	"log/slog"
	"sync/atomic"
	"time"
)

// Snapshot is a point-in-time copy of a set of counters.
type Snapshot struct {
	Connections        int64
	InspectedPayloads  int64
	FragmentedPayloads int64
	Chunks             int64
	BytesUp            int64
	BytesDown          int64
	// Only set for global snapshots.
	ActiveTunnels int64
	PeakBodyLen   int64
	PeakChunkLen  int64
	// Time since the counters started.
	Elapsed time.Duration
}

var _ slog.LogValuer = Snapshot{}

// LogValue implements [slog.LogValuer].
func (s Snapshot) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Duration("elapsed", s.Elapsed.Round(time.Millisecond)),
		slog.Int64("conns", s.Connections),
		slog.Int64("inspected", s.InspectedPayloads),
		slog.Int64("fragmented", s.FragmentedPayloads),
		slog.Int64("chunks", s.Chunks),
		slog.Int64("up", s.BytesUp),
		slog.Int64("down", s.BytesDown),
	}
	if s.ActiveTunnels != 0 || s.PeakBodyLen != 0 || s.PeakChunkLen != 0 {
		attrs = append(attrs,
			slog.Int64("active", s.ActiveTunnels),
			slog.Int64("peak_body", s.PeakBodyLen),
			slog.Int64("peak_chunk", s.PeakChunkLen),
		)
	}
	return slog.GroupValue(attrs...)
}

// Global aggregates the counters of all tunnels for the lifetime of the process.
// Its counters only grow, except for the number of active tunnels.
type Global struct {
	start time.Time

	connections  atomic.Int64
	inspected    atomic.Int64
	fragmented   atomic.Int64
	chunks       atomic.Int64
	bytesUp      atomic.Int64
	bytesDown    atomic.Int64
	active       atomic.Int64
	peakBodyLen  atomic.Int64
	peakChunkLen atomic.Int64
}

// NewGlobal creates a [Global] whose clock starts now.
func NewGlobal() *Global {
	return &Global{start: time.Now()}
}

// Snapshot returns the current value of the counters.
func (g *Global) Snapshot() Snapshot {
	return Snapshot{
		Connections:        g.connections.Load(),
		InspectedPayloads:  g.inspected.Load(),
		FragmentedPayloads: g.fragmented.Load(),
		Chunks:             g.chunks.Load(),
		BytesUp:            g.bytesUp.Load(),
		BytesDown:          g.bytesDown.Load(),
		ActiveTunnels:      g.active.Load(),
		PeakBodyLen:        g.peakBodyLen.Load(),
		PeakChunkLen:       g.peakChunkLen.Load(),
		Elapsed:            time.Since(g.start),
	}
}

// BufferSize returns the read size to use: the configured minimum, or the largest
// handshake body observed so far if that is larger. It never decreases.
func (g *Global) BufferSize(minSize int) int {
	return max(minSize, int(g.peakBodyLen.Load()))
}

// NewTunnel creates the counters for a new tunnel, linked to g.
func (g *Global) NewTunnel() *Tunnel {
	t := &Tunnel{global: g}
	t.start.Store(time.Now().UnixNano())
	return t
}

// storeMax sets v to n if n is larger than the current value.
func storeMax(v *atomic.Int64, n int64) {
	for {
		cur := v.Load()
		if n <= cur || v.CompareAndSwap(cur, n) {
			return
		}
	}
}
