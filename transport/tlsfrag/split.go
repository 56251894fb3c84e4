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
)

// Split partitions body into records. If body contains a NUL byte, the first record
// ends right after it. The remaining bytes are cut into records of random length
// between 1 and the number of bytes left.
//
// Concatenating the payloads of the returned records, in order, yields body. The
// payloads alias body. If rng is nil, the global generator of [math/rand/v2] is used.
func Split(body []byte, rng *rand.Rand) ([]Record, error) {
	if len(body) > MaxPayloadLen {
		return nil, ErrPayloadTooLarge
	}
	var records []Record
	if i := bytes.IndexByte(body, 0); i >= 0 {
		rec, err := newRecord(rng, body[:i+1])
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
		body = body[i+1:]
	}
	for len(body) > 0 {
		n := 1 + intN(rng, len(body))
		rec, err := newRecord(rng, body[:n])
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
		body = body[n:]
	}
	return records, nil
}

func newRecord(rng *rand.Rand, payload []byte) (Record, error) {
	hdr, err := newRecordHeader(byte(intN(rng, 256)), len(payload))
	if err != nil {
		return Record{}, err
	}
	return Record{Header: hdr, Payload: payload}, nil
}

// intN returns a uniform integer in [0, n).
func intN(rng *rand.Rand, n int) int {
	if rng == nil {
		return rand.IntN(n)
	}
	return rng.IntN(n)
}
