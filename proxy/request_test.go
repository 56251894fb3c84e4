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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRequest(t *testing.T) {
	cases := []struct {
		name     string
		data     string
		expected TunnelRequest
	}{
		{
			name:     "Basic",
			data:     "CONNECT example.com:443 HTTP/1.1\r\nHost: example.com:443\r\n\r\n",
			expected: TunnelRequest{Method: "CONNECT", Host: "example.com", Port: 443},
		},
		{
			name:     "NoVersion",
			data:     "CONNECT example.com:80\r\n\r\n",
			expected: TunnelRequest{Method: "CONNECT", Host: "example.com", Port: 80},
		},
		{
			name:     "NoCRLF",
			data:     "CONNECT 127.0.0.1:8080 HTTP/1.1",
			expected: TunnelRequest{Method: "CONNECT", Host: "127.0.0.1", Port: 8080},
		},
		{
			name:     "IPv6",
			data:     "CONNECT [2001:db8::1]:443 HTTP/1.1\r\n\r\n",
			expected: TunnelRequest{Method: "CONNECT", Host: "2001:db8::1", Port: 443},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req, err := ParseRequest([]byte(tc.data))
			require.NoError(t, err)
			require.Equal(t, tc.expected, req)
		})
	}
}

func TestParseRequestInvalid(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"Empty", ""},
		{"MethodOnly", "CONNECT\r\n\r\n"},
		{"Get", "GET http://x HTTP/1.1\r\n\r\n"},
		{"LowercaseMethod", "connect example.com:443 HTTP/1.1\r\n\r\n"},
		{"NoPort", "CONNECT example.com HTTP/1.1\r\n\r\n"},
		{"EmptyPort", "CONNECT example.com: HTTP/1.1\r\n\r\n"},
		{"EmptyHost", "CONNECT :443 HTTP/1.1\r\n\r\n"},
		{"PortOutOfRange", "CONNECT example.com:65536 HTTP/1.1\r\n\r\n"},
		{"PortZero", "CONNECT example.com:0 HTTP/1.1\r\n\r\n"},
		{"NamedPort", "CONNECT example.com:https HTTP/1.1\r\n\r\n"},
		{"TooManyColons", "CONNECT a:b:443 HTTP/1.1\r\n\r\n"},
		{"DoubleSpace", "CONNECT  example.com:443 HTTP/1.1\r\n\r\n"},
		{"TargetOnSecondLine", "CONNECT\r\nexample.com:443\r\n\r\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseRequest([]byte(tc.data))
			require.ErrorIs(t, err, ErrInvalidRequest)
			var parseErr *ParseError
			require.True(t, errors.As(err, &parseErr))
		})
	}
}

func TestTunnelRequestAddress(t *testing.T) {
	require.Equal(t, "example.com:443", TunnelRequest{Host: "example.com", Port: 443}.Address())
	require.Equal(t, "[::1]:80", TunnelRequest{Host: "::1", Port: 80}.Address())
}

func TestConnectErrorUnwrap(t *testing.T) {
	inner := errors.New("connection refused")
	err := error(&ConnectError{Address: "example.com:443", Err: inner})
	require.ErrorIs(t, err, inner)
	require.Contains(t, err.Error(), "example.com:443")
}
