// Copyright 2019 Jigsaw Operations LLC
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

// Package transport has the outbound side of the proxy: the connections to tunnel
// targets, and the dialers that create them.
package transport

import (
	"context"
	"net"
)

// StreamConn is a stream connection whose directions can be closed independently.
// The relay closes the write end when the other side of the tunnel finishes sending,
// and keeps reading until the target finishes too.
type StreamConn interface {
	net.Conn
	// CloseRead stops reading. No more reads should happen.
	CloseRead() error
	// CloseWrite sends EOF to the peer. Reads may continue.
	CloseWrite() error
}

// StreamDialer connects to tunnel targets.
type StreamDialer interface {
	// DialStream connects to raddr, in "host:port" form. The host may be a domain
	// name or an IP address.
	DialStream(ctx context.Context, raddr string) (StreamConn, error)
}

// FuncStreamDialer adapts a function to the [StreamDialer] interface.
type FuncStreamDialer func(ctx context.Context, raddr string) (StreamConn, error)

var _ StreamDialer = (*FuncStreamDialer)(nil)

// DialStream implements [StreamDialer].
func (f FuncStreamDialer) DialStream(ctx context.Context, raddr string) (StreamConn, error) {
	return f(ctx, raddr)
}

// TCPDialer dials TCP connections with a [net.Dialer]. The zero value is ready to use.
type TCPDialer struct {
	Dialer net.Dialer
}

var _ StreamDialer = (*TCPDialer)(nil)

// DialStream implements [StreamDialer].
func (d *TCPDialer) DialStream(ctx context.Context, raddr string) (StreamConn, error) {
	conn, err := d.Dialer.DialContext(ctx, "tcp", raddr)
	if err != nil {
		return nil, err
	}
	return conn.(*net.TCPConn), nil
}
