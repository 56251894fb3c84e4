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

package proxy

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nodpi-proxy/nodpi/transport"
)

// State is the stage a tunnel is in.
type State int32

const (
	StateNegotiating State = iota
	StateEstablished
	StateFragmenting
	StateRelaying
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNegotiating:
		return "negotiating"
	case StateEstablished:
		return "established"
	case StateFragmenting:
		return "fragmenting"
	case StateRelaying:
		return "relaying"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// TunnelInfo describes a live tunnel.
type TunnelInfo struct {
	ID     uint64
	Client string
	// Target is empty until the CONNECT request has been parsed.
	Target string
	State  State
	Since  time.Time
}

// tunnel owns the client connection and, once dialed, the remote connection.
type tunnel struct {
	id     uint64
	client net.Conn
	start  time.Time
	state  atomic.Int32

	mu     sync.Mutex
	target string
	remote transport.StreamConn
	closed bool
}

func newTunnel(id uint64, client net.Conn) *tunnel {
	return &tunnel{id: id, client: client, start: time.Now()}
}

func (t *tunnel) setState(s State) {
	t.state.Store(int32(s))
}

// attachRemote hands remote over to the tunnel. It returns false if the tunnel was
// closed in the meantime, in which case the caller still owns remote.
func (t *tunnel) attachRemote(target string, remote transport.StreamConn) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	t.target = target
	t.remote = remote
	return true
}

// close closes both connections. It's safe to call more than once.
func (t *tunnel) close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	t.setState(StateClosed)
	t.client.Close()
	if t.remote != nil {
		t.remote.Close()
	}
}

func (t *tunnel) info() TunnelInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TunnelInfo{
		ID:     t.id,
		Client: t.client.RemoteAddr().String(),
		Target: t.target,
		State:  State(t.state.Load()),
		Since:  t.start,
	}
}
