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
	"bytes"
	"errors"
	"fmt"
	"net"
	"strconv"
)

// ErrInvalidRequest is wrapped by every [ParseError].
var ErrInvalidRequest = errors.New("invalid tunnel request")

// establishedReply is sent to the client once the remote connection is up. Clients of
// this proxy depend on these exact bytes, which are not a well-formed HTTP response.
var establishedReply = []byte("HTTP/1.1 200 OK\n\n")

// ParseError is returned when the client request is not a valid CONNECT request.
type ParseError struct {
	// Why the request was rejected.
	Reason string
	// The offending request line.
	Line string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%v: %v (request line %q)", ErrInvalidRequest, e.Reason, e.Line)
}

func (e *ParseError) Unwrap() error {
	return ErrInvalidRequest
}

// ConnectError is returned when the connection to the tunnel target can't be established.
type ConnectError struct {
	Address string
	Err     error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("failed to connect to %v: %v", e.Address, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// TunnelRequest is a parsed CONNECT request.
type TunnelRequest struct {
	Method string
	Host   string
	Port   uint16
}

// Address returns the host:port address of the tunnel target.
func (r TunnelRequest) Address() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(int(r.Port)))
}

// ParseRequest parses the first line of data as `CONNECT host:port ...`. Anything after
// the first CRLF, including the request headers, is ignored.
func ParseRequest(data []byte) (TunnelRequest, error) {
	line, _, _ := bytes.Cut(data, []byte("\r\n"))
	tokens := bytes.Split(line, []byte(" "))
	if len(tokens) < 2 {
		return TunnelRequest{}, &ParseError{Reason: "expected method and target", Line: string(line)}
	}
	req := TunnelRequest{Method: string(tokens[0])}
	if req.Method != "CONNECT" {
		return TunnelRequest{}, &ParseError{Reason: fmt.Sprintf("method %q is not supported", req.Method), Line: string(line)}
	}
	host, portStr, err := net.SplitHostPort(string(tokens[1]))
	if err != nil {
		return TunnelRequest{}, &ParseError{Reason: "target is not a valid host:port", Line: string(line)}
	}
	if host == "" {
		return TunnelRequest{}, &ParseError{Reason: "target host is empty", Line: string(line)}
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil || port == 0 {
		return TunnelRequest{}, &ParseError{Reason: fmt.Sprintf("invalid target port %q", portStr), Line: string(line)}
	}
	req.Host = host
	req.Port = uint16(port)
	return req, nil
}
