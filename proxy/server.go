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
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nodpi-proxy/nodpi/blocklist"
	"github.com/nodpi-proxy/nodpi/stats"
	"github.com/nodpi-proxy/nodpi/transport"
	"github.com/nodpi-proxy/nodpi/transport/tlsfrag"
	"golang.org/x/net/netutil"
)

// ErrServerClosed is returned by [Server.Serve] and [Server.ListenAndServe] after
// [Server.Shutdown] has been called.
var ErrServerClosed = errors.New("proxy: Server closed")

// DefaultBufferSize is the read size used when [Server].BufferSize is not set.
const DefaultBufferSize = 4096

// Tunnels to this port get their first client payload fragmented.
const tlsPort = 443

// Server accepts CONNECT requests and relays the tunnels. The first client payload of
// tunnels to port 443 goes through [tlsfrag.WriteFirstPayload].
//
// The zero value is ready to use. Fields must not be modified after Serve is called.
type Server struct {
	// Addr is the "host:port" address ListenAndServe listens on. An empty host means
	// all interfaces.
	Addr string
	// Dialer connects to the tunnel targets. Defaults to a [transport.TCPDialer].
	Dialer transport.StreamDialer
	// Blocklist provides the patterns that trigger fragmentation. If nil, first
	// payloads are never fragmented.
	Blocklist blocklist.Source
	// BufferSize is the size of each read. Defaults to [DefaultBufferSize]. Reads use
	// the largest first payload recorded in Stats if that is larger, which only
	// happens when Stats is shared with a server using a larger size.
	BufferSize int
	// HandshakeTimeout limits the wait for the CONNECT request. Zero means no limit.
	HandshakeTimeout time.Duration
	// DialTimeout limits the connection to the target. Zero means no limit.
	DialTimeout time.Duration
	// MaxConnections caps the number of simultaneously accepted connections. Zero
	// means no limit.
	MaxConnections int
	// Debug logs every change to the set of live tunnels.
	Debug bool
	// ShowStats logs the counters of each tunnel when it closes, and the global
	// counters every StatsInterval, if set.
	ShowStats     bool
	StatsInterval time.Duration
	// Stats receives the counters. Created on first use if nil.
	Stats *stats.Global
	// Logger defaults to [slog.Default].
	Logger *slog.Logger

	initOnce sync.Once
	ctx      context.Context
	cancel   context.CancelFunc

	mu         sync.Mutex
	listener   net.Listener
	tunnels    map[uint64]*tunnel
	nextID     uint64
	inShutdown atomic.Bool
	handlers   sync.WaitGroup
}

func (s *Server) init() {
	s.initOnce.Do(func() {
		s.ctx, s.cancel = context.WithCancel(context.Background())
		s.tunnels = make(map[uint64]*tunnel)
		if s.Stats == nil {
			s.Stats = stats.NewGlobal()
		}
	})
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Server) dialer() transport.StreamDialer {
	if s.Dialer != nil {
		return s.Dialer
	}
	return &transport.TCPDialer{}
}

func (s *Server) bufferSize() int {
	size := s.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}
	return min(s.Stats.BufferSize(size), tlsfrag.MaxPayloadLen)
}

// ListenAndServe listens on s.Addr and calls [Server.Serve].
func (s *Server) ListenAndServe() error {
	if s.inShutdown.Load() {
		return ErrServerClosed
	}
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln and handles each of them in its own goroutine.
// It always closes ln, and returns [ErrServerClosed] after [Server.Shutdown].
func (s *Server) Serve(ln net.Listener) error {
	s.init()
	if s.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.MaxConnections)
	}
	defer ln.Close()

	s.mu.Lock()
	if s.inShutdown.Load() {
		s.mu.Unlock()
		return ErrServerClosed
	}
	s.listener = ln
	s.mu.Unlock()

	if s.ShowStats && s.StatsInterval > 0 {
		go stats.RunReporter(s.ctx, s.logger(), s.Stats, s.StatsInterval)
	}

	var tempDelay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.inShutdown.Load() {
				return ErrServerClosed
			}
			if te, ok := err.(interface{ Temporary() bool }); ok && te.Temporary() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay = min(2*tempDelay, time.Second)
				}
				s.logger().Warn("Accept failed, retrying", "error", err, "delay", tempDelay)
				time.Sleep(tempDelay)
				continue
			}
			return err
		}
		tempDelay = 0

		t, ok := s.register(conn)
		if !ok {
			conn.Close()
			return ErrServerClosed
		}
		go func() {
			defer s.handlers.Done()
			defer s.unregister(t)
			s.handleConn(t)
		}()
	}
}

// Shutdown stops accepting connections, closes all live tunnels and waits for their
// handlers to return, or for ctx to be done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.init()
	s.mu.Lock()
	s.inShutdown.Store(true)
	var err error
	if s.listener != nil {
		if cerr := s.listener.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = cerr
		}
	}
	for _, t := range s.tunnels {
		t.close()
	}
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.handlers.Wait()
		close(done)
	}()
	select {
	case <-done:
		return err
	case <-ctx.Done():
		return errors.Join(err, ctx.Err())
	}
}

// ActiveTunnels returns the live tunnels, ordered by ID.
func (s *Server) ActiveTunnels() []TunnelInfo {
	s.mu.Lock()
	infos := make([]TunnelInfo, 0, len(s.tunnels))
	for _, t := range s.tunnels {
		infos = append(infos, t.info())
	}
	s.mu.Unlock()
	slices.SortFunc(infos, func(a, b TunnelInfo) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return infos
}

// register adds a tunnel for conn and accounts for its handler. It fails once
// Shutdown has started.
func (s *Server) register(conn net.Conn) (*tunnel, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inShutdown.Load() {
		return nil, false
	}
	s.nextID++
	t := newTunnel(s.nextID, conn)
	s.tunnels[t.id] = t
	s.handlers.Add(1)
	if s.Debug {
		s.logger().Info("Tunnel registered", "id", t.id, "tunnels", len(s.tunnels))
	}
	return t, true
}

func (s *Server) unregister(t *tunnel) {
	t.close()
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tunnels, t.id)
	if s.Debug {
		s.logger().Info("Tunnel unregistered", "id", t.id, "tunnels", len(s.tunnels))
	}
}

func (s *Server) setState(t *tunnel, state State, logger *slog.Logger) {
	t.setState(state)
	if s.Debug {
		logger.Debug("Tunnel state", "state", state)
	}
}

// handleConn drives one tunnel from the CONNECT request until both relay directions
// are done. Failures only affect this tunnel.
func (s *Server) handleConn(t *tunnel) {
	logger := s.logger().With("id", t.id, "client", t.client.RemoteAddr().String())
	st := s.Stats.NewTunnel()
	defer st.Close()

	req, remote, err := s.negotiate(t.client, st, logger)
	if err != nil {
		logger.Debug("Tunnel not established", "error", err)
		return
	}
	if !t.attachRemote(req.Address(), remote) {
		remote.Close()
		return
	}
	s.setState(t, StateEstablished, logger)

	if req.Port == tlsPort {
		s.setState(t, StateFragmenting, logger)
		if err := s.fragmentFirstPayload(t.client, remote, st, logger); err != nil {
			logger.Warn("Failed to forward first payload", "target", req.Address(), "error", err)
			return
		}
	}

	s.setState(t, StateRelaying, logger)
	s.relay(t.client, remote, st, logger)
	s.setState(t, StateClosed, logger)
	st.Close()
	if s.ShowStats {
		stats.ReportTunnel(logger, st)
	} else {
		st.Reset()
	}
}

// negotiate reads the CONNECT request from client, dials the target and sends the
// established reply. On error nothing has been written to client, and the caller
// closes it.
func (s *Server) negotiate(client net.Conn, st *stats.Tunnel, logger *slog.Logger) (TunnelRequest, transport.StreamConn, error) {
	buf := make([]byte, s.bufferSize())
	if s.HandshakeTimeout > 0 {
		client.SetReadDeadline(time.Now().Add(s.HandshakeTimeout))
	}
	n, err := client.Read(buf)
	if n == 0 {
		if err == nil {
			err = io.ErrNoProgress
		}
		return TunnelRequest{}, nil, fmt.Errorf("failed to read request: %w", err)
	}
	client.SetReadDeadline(time.Time{})
	logger.Debug("New connection", "len", n, "request", string(buf[:n]))

	req, err := ParseRequest(buf[:n])
	if err != nil {
		return TunnelRequest{}, nil, err
	}

	logger.Info("Connecting", "target", req.Address())
	ctx := s.ctx
	if s.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.DialTimeout)
		defer cancel()
	}
	remote, err := s.dialer().DialStream(ctx, req.Address())
	if err != nil {
		return TunnelRequest{}, nil, &ConnectError{Address: req.Address(), Err: err}
	}

	if _, err := client.Write(establishedReply); err != nil {
		remote.Close()
		return TunnelRequest{}, nil, fmt.Errorf("failed to send reply: %w", err)
	}
	st.AddConnection()
	return req, remote, nil
}

// fragmentFirstPayload reads the first TLS record header and the bytes after it from
// client, and forwards them to remote, fragmented if they match the blocklist.
func (s *Server) fragmentFirstPayload(client net.Conn, remote transport.StreamConn, st *stats.Tunnel, logger *slog.Logger) error {
	head := make([]byte, tlsfrag.RecordHeaderLen)
	if _, err := io.ReadFull(client, head); err != nil {
		return fmt.Errorf("failed to read record header: %w", err)
	}
	body := make([]byte, s.bufferSize())
	n, err := client.Read(body)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to read handshake payload: %w", err)
	}
	body = body[:n]
	logger.Debug("First payload", "header", fmt.Sprintf("%x", head), "len", n)

	var matcher tlsfrag.Matcher
	if s.Blocklist != nil {
		patterns, err := s.Blocklist.Load()
		if err != nil {
			return fmt.Errorf("failed to load blocklist: %w", err)
		}
		matcher = patterns
	}
	st.AddInspected(n)

	res, err := tlsfrag.WriteFirstPayload(remote, head, body, matcher, nil)
	if err != nil {
		return fmt.Errorf("failed to write first payload: %w", err)
	}
	if res.Fragmented {
		st.AddFragmented(res.Chunks, res.MaxChunkLen)
		logger.Debug("Fragmented first payload", "chunks", res.Chunks, "max_chunk", res.MaxChunkLen)
	}
	return nil
}
