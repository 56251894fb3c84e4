// Copyright 2023 Jigsaw Operations LLC
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
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	// RecordHeaderLen is the size of the header in front of every record.
	RecordHeaderLen = 5

	// MaxPayloadLen is the largest payload the 16-bit length field can describe.
	MaxPayloadLen = math.MaxUint16

	recordTypeHandshake byte = 22
	versionMajor        byte = 3
)

// ErrPayloadTooLarge is returned when a payload can't be described by a single record header.
var ErrPayloadTooLarge = errors.New("payload too large for a TLS record")

// RecordHeader is the 5-byte header of a TLS record: content type, major and minor
// version, and the big-endian payload length.
type RecordHeader [RecordHeaderLen]byte

// newRecordHeader creates a handshake record header with the given minor version
// byte, describing a payload of payloadLen bytes.
func newRecordHeader(minor byte, payloadLen int) (RecordHeader, error) {
	var h RecordHeader
	if payloadLen < 0 || payloadLen > MaxPayloadLen {
		return h, fmt.Errorf("payload length %d out of range: %w", payloadLen, ErrPayloadTooLarge)
	}
	h[0] = recordTypeHandshake
	h[1] = versionMajor
	h[2] = minor
	binary.BigEndian.PutUint16(h[3:5], uint16(payloadLen))
	return h, nil
}

// Type returns the record content type.
func (h RecordHeader) Type() byte {
	return h[0]
}

// MinorVersion returns the minor protocol version byte.
func (h RecordHeader) MinorVersion() byte {
	return h[2]
}

// PayloadLen returns the payload length carried in the header.
func (h RecordHeader) PayloadLen() uint16 {
	return binary.BigEndian.Uint16(h[3:5])
}

// IsHandshake reports whether the header starts with the handshake content type
// followed by major version 3.
func (h RecordHeader) IsHandshake() bool {
	return h[0] == recordTypeHandshake && h[1] == versionMajor
}
