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

package tlsfrag

import (
	"bytes"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
)

// Example TLS Client Hello packet copied from https://tls13.xargs.org/#client-hello
// Total Len = 253, ContentLen = 253 - 5 = 248
var exampleTLS13ClientHello = []byte{
	0x16, 0x03, 0x01, 0x00, 0xf8, 0x01, 0x00, 0x00, 0xf4, 0x03, 0x03, 0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08,
	0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10, 0x11, 0x12, 0x13, 0x14, 0x15, 0x16, 0x17, 0x18, 0x19, 0x1a, 0x1b, 0x1c,
	0x1d, 0x1e, 0x1f, 0x20, 0xe0, 0xe1, 0xe2, 0xe3, 0xe4, 0xe5, 0xe6, 0xe7, 0xe8, 0xe9, 0xea, 0xeb, 0xec, 0xed, 0xee, 0xef,
	0xf0, 0xf1, 0xf2, 0xf3, 0xf4, 0xf5, 0xf6, 0xf7, 0xf8, 0xf9, 0xfa, 0xfb, 0xfc, 0xfd, 0xfe, 0xff, 0x00, 0x08, 0x13, 0x02,
	0x13, 0x03, 0x13, 0x01, 0x00, 0xff, 0x01, 0x00, 0x00, 0xa3, 0x00, 0x00, 0x00, 0x18, 0x00, 0x16, 0x00, 0x00, 0x13, 0x65,
	0x78, 0x61, 0x6d, 0x70, 0x6c, 0x65, 0x2e, 0x75, 0x6c, 0x66, 0x68, 0x65, 0x69, 0x6d, 0x2e, 0x6e, 0x65, 0x74, 0x00, 0x0b,
	0x00, 0x04, 0x03, 0x00, 0x01, 0x02, 0x00, 0x0a, 0x00, 0x16, 0x00, 0x14, 0x00, 0x1d, 0x00, 0x17, 0x00, 0x1e, 0x00, 0x19,
	0x00, 0x18, 0x01, 0x00, 0x01, 0x01, 0x01, 0x02, 0x01, 0x03, 0x01, 0x04, 0x00, 0x23, 0x00, 0x00, 0x00, 0x16, 0x00, 0x00,
	0x00, 0x17, 0x00, 0x00, 0x00, 0x0d, 0x00, 0x1e, 0x00, 0x1c, 0x04, 0x03, 0x05, 0x03, 0x06, 0x03, 0x08, 0x07, 0x08, 0x08,
	0x08, 0x09, 0x08, 0x0a, 0x08, 0x0b, 0x08, 0x04, 0x08, 0x05, 0x08, 0x06, 0x04, 0x01, 0x05, 0x01, 0x06, 0x01, 0x00, 0x2b,
	0x00, 0x03, 0x02, 0x03, 0x04, 0x00, 0x2d, 0x00, 0x02, 0x01, 0x01, 0x00, 0x33, 0x00, 0x26, 0x00, 0x24, 0x00, 0x1d, 0x00,
	0x20, 0x35, 0x80, 0x72, 0xd6, 0x36, 0x58, 0x80, 0xd1, 0xae, 0xea, 0x32, 0x9a, 0xdf, 0x91, 0x21, 0x38, 0x38, 0x51, 0xed,
	0x21, 0xa2, 0x8e, 0x3b, 0x75, 0xe9, 0x65, 0xd0, 0xd2, 0xcd, 0x16, 0x62, 0x54,
}

func joinPayloads(records []Record) []byte {
	var out []byte
	for _, r := range records {
		out = append(out, r.Payload...)
	}
	return out
}

func requireValidRecords(t *testing.T, records []Record) {
	for k, r := range records {
		require.True(t, r.Header.IsHandshake(), "record-%d", k)
		require.Equal(t, []byte{0x16, 0x03}, r.Header[:2], "record-%d", k)
		require.Equal(t, len(r.Payload), int(r.Header.PayloadLen()), "record-%d", k)
		require.NotEmpty(t, r.Payload, "record-%d", k)
	}
}

func randomBody(rng *rand.Rand, size int, withNUL bool) []byte {
	body := make([]byte, size)
	for i := range body {
		// Avoid NUL bytes unless requested, so the test controls where they are.
		body[i] = byte(1 + rng.IntN(255))
	}
	if withNUL {
		body[rng.IntN(size)] = 0
	}
	return body
}

func TestSplitRoundTrip(t *testing.T) {
	for seed := uint64(0); seed < 200; seed++ {
		rng := rand.New(rand.NewPCG(seed, 42))
		size := 1 + rng.IntN(1024)
		body := randomBody(rng, size, seed%2 == 0)

		records, err := Split(body, rng)
		require.NoError(t, err, "seed %d", seed)
		require.NotEmpty(t, records, "seed %d", seed)
		requireValidRecords(t, records)
		require.Equal(t, body, joinPayloads(records), "seed %d", seed)
	}
}

func TestSplitIsolatesFirstNUL(t *testing.T) {
	body := []byte("\x01\x02blocked.example\x00\x05\x06\x07\x00\x08")
	for seed := uint64(0); seed < 50; seed++ {
		records, err := Split(body, rand.New(rand.NewPCG(seed, seed)))
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(records), 2)
		require.Equal(t, []byte("\x01\x02blocked.example\x00"), records[0].Payload)
		require.Equal(t, body, joinPayloads(records))
	}
}

func TestSplitNULAtEnd(t *testing.T) {
	body := []byte("blocked.example\x00")
	records, err := Split(body, rand.New(rand.NewPCG(1, 2)))
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, body, records[0].Payload)
	require.Equal(t, uint16(len(body)), records[0].Header.PayloadLen())
}

func TestSplitWithoutNUL(t *testing.T) {
	body := []byte("no terminator in blocked.example payload")
	records, err := Split(body, rand.New(rand.NewPCG(7, 7)))
	require.NoError(t, err)
	requireValidRecords(t, records)
	require.Equal(t, body, joinPayloads(records))
}

func TestSplitClientHello(t *testing.T) {
	body := exampleTLS13ClientHello[RecordHeaderLen:]
	records, err := Split(body, nil)
	require.NoError(t, err)
	requireValidRecords(t, records)
	// The first NUL of the handshake is the high byte of the message length.
	require.Equal(t, []byte{0x01, 0x00}, records[0].Payload)
	require.Equal(t, body, joinPayloads(records))
}

func TestSplitSameSeedSameRecords(t *testing.T) {
	body := randomBody(rand.New(rand.NewPCG(3, 3)), 300, false)
	r1, err := Split(body, rand.New(rand.NewPCG(9, 9)))
	require.NoError(t, err)
	r2, err := Split(body, rand.New(rand.NewPCG(9, 9)))
	require.NoError(t, err)
	require.Equal(t, r1, r2)
}

func TestSplitEmpty(t *testing.T) {
	records, err := Split(nil, nil)
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestSplitTooLarge(t *testing.T) {
	_, err := Split(make([]byte, MaxPayloadLen+1), nil)
	require.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestAppendAndReadRecords(t *testing.T) {
	body := []byte("abc\x00defghij")
	records, err := Split(body, rand.New(rand.NewPCG(5, 6)))
	require.NoError(t, err)

	r := bytes.NewReader(AppendRecords(nil, records))
	for k, expected := range records {
		got, err := ReadRecord(r)
		require.NoError(t, err, "record-%d", k)
		require.Equal(t, expected, got, "record-%d", k)
	}
	require.Zero(t, r.Len())
}
