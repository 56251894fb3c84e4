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
	"sync/atomic"
	"time"
)

// Tunnel holds the counters of one tunnel. Both relay directions update the same
// Tunnel, and every update is also applied to the [Global] it came from.
type Tunnel struct {
	global *Global
	start  atomic.Int64 // UnixNano
	active atomic.Bool

	connections atomic.Int64
	inspected   atomic.Int64
	fragmented  atomic.Int64
	chunks      atomic.Int64
	bytesUp     atomic.Int64
	bytesDown   atomic.Int64
}

// AddConnection records an established tunnel and marks it active until [Tunnel.Close].
func (t *Tunnel) AddConnection() {
	t.connections.Add(1)
	t.global.connections.Add(1)
	if t.active.CompareAndSwap(false, true) {
		t.global.active.Add(1)
	}
}

// AddInspected records a first payload of bodyLen bytes checked against the blocklist.
func (t *Tunnel) AddInspected(bodyLen int) {
	t.inspected.Add(1)
	t.global.inspected.Add(1)
	storeMax(&t.global.peakBodyLen, int64(bodyLen))
}

// AddFragmented records a payload that was split into chunks records, the largest
// carrying maxChunkLen bytes.
func (t *Tunnel) AddFragmented(chunks, maxChunkLen int) {
	t.fragmented.Add(1)
	t.global.fragmented.Add(1)
	t.chunks.Add(int64(chunks))
	t.global.chunks.Add(int64(chunks))
	storeMax(&t.global.peakChunkLen, int64(maxChunkLen))
}

// AddBytesUp records n bytes relayed from the client to the remote.
func (t *Tunnel) AddBytesUp(n int64) {
	t.bytesUp.Add(n)
	t.global.bytesUp.Add(n)
}

// AddBytesDown records n bytes relayed from the remote to the client.
func (t *Tunnel) AddBytesDown(n int64) {
	t.bytesDown.Add(n)
	t.global.bytesDown.Add(n)
}

// Snapshot returns the current value of the tunnel counters.
func (t *Tunnel) Snapshot() Snapshot {
	return Snapshot{
		Connections:        t.connections.Load(),
		InspectedPayloads:  t.inspected.Load(),
		FragmentedPayloads: t.fragmented.Load(),
		Chunks:             t.chunks.Load(),
		BytesUp:            t.bytesUp.Load(),
		BytesDown:          t.bytesDown.Load(),
		Elapsed:            time.Since(time.Unix(0, t.start.Load())),
	}
}

// Close marks the tunnel as no longer active. It's safe to call more than once.
func (t *Tunnel) Close() {
	if t.active.CompareAndSwap(true, false) {
		t.global.active.Add(-1)
	}
}

// Reset zeroes the tunnel counters and restarts its clock. The global counters are
// not affected.
func (t *Tunnel) Reset() {
	t.connections.Store(0)
	t.inspected.Store(0)
	t.fragmented.Store(0)
	t.chunks.Store(0)
	t.bytesUp.Store(0)
	t.bytesDown.Store(0)
	t.start.Store(time.Now().UnixNano())
}
