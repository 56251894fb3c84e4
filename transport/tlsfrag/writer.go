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
	"errors"
	"io"
	"math/rand/v2"
)

// Matcher reports whether a payload contains something that must be hidden from censors.
type Matcher interface {
	Match(sample []byte) bool
}

// Result describes what [WriteFirstPayload] sent.
type Result struct {
	// Fragmented is true if the payload was split into records, false if it was passed through.
	Fragmented bool
	// Chunks is the number of records written. It's zero on pass-through.
	Chunks int
	// MaxChunkLen is the largest record payload written.
	MaxChunkLen int
}

// WriteFirstPayload writes the first payload of a TLS connection to w. head is the
// original 5-byte record header and body the bytes read right after it.
//
// If m is nil or doesn't match body, head and body are written unchanged in a single
// write. Otherwise body is [Split] into records, and the records replace head. They are
// serialized into one buffer and written at once.
func WriteFirstPayload(w io.Writer, head, body []byte, m Matcher, rng *rand.Rand) (Result, error) {
	if w == nil {
		return Result{}, errors.New("writer must not be nil")
	}
	if m == nil || !m.Match(body) {
		return Result{}, writePassThrough(w, head, body)
	}
	records, err := Split(body, rng)
	if err != nil {
		return Result{}, err
	}
	if len(records) == 0 {
		return Result{}, writePassThrough(w, head, body)
	}

	res := Result{Fragmented: true, Chunks: len(records)}
	size := 0
	for _, r := range records {
		size += r.Len()
		res.MaxChunkLen = max(res.MaxChunkLen, len(r.Payload))
	}
	if _, err := w.Write(AppendRecords(make([]byte, 0, size), records)); err != nil {
		return res, err
	}
	return res, nil
}

func writePassThrough(w io.Writer, head, body []byte) error {
	buf := make([]byte, 0, len(head)+len(body))
	buf = append(buf, head...)
	buf = append(buf, body...)
	_, err := w.Write(buf)
	return err
}
