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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/nodpi-proxy/nodpi/stats"
	"github.com/nodpi-proxy/nodpi/transport"
	"golang.org/x/sync/errgroup"
)

// relay copies bytes in both directions until both directions are done. The counters
// of both directions go to the same st.
//
// When the client finishes sending, the remote only gets EOF and can still answer.
// When the remote finishes, the client is closed, which also ends the client to remote
// direction.
func (s *Server) relay(client net.Conn, remote transport.StreamConn, st *stats.Tunnel, logger *slog.Logger) {
	var g errgroup.Group
	g.Go(func() error {
		if err := s.pump(remote, client, st.AddBytesUp, remote.CloseWrite); err != nil {
			return fmt.Errorf("client to remote: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := s.pump(client, remote, st.AddBytesDown, client.Close); err != nil {
			return fmt.Errorf("remote to client: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		logger.Debug("Relay stopped", "error", err)
	}
}

// pump copies src to dst one read at a time, with no buffering beyond the read in
// flight. When src ends, onEOF is called. On any error dst is closed.
func (s *Server) pump(dst, src net.Conn, count func(int64), onEOF func() error) error {
	buf := make([]byte, s.bufferSize())
	for {
		if size := s.bufferSize(); size > len(buf) {
			buf = make([]byte, size)
		}
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				dst.Close()
				return fmt.Errorf("write failed: %w", werr)
			}
			count(int64(n))
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				if cerr := onEOF(); cerr != nil {
					dst.Close()
				}
				return nil
			}
			dst.Close()
			return fmt.Errorf("read failed: %w", err)
		}
	}
}
