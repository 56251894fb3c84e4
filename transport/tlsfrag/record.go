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
	"fmt"
	"io"
)

// Record is a synthetic TLS record: a header followed by a slice of the original payload.
type Record struct {
	Header  RecordHeader
	Payload []byte
}

// Len returns the serialized size of the record, header included.
func (r Record) Len() int {
	return RecordHeaderLen + len(r.Payload)
}

// AppendRecords appends the serialization of records to dst and returns the extended buffer.
func AppendRecords(dst []byte, records []Record) []byte {
	for _, r := range records {
		dst = append(dst, r.Header[:]...)
		dst = append(dst, r.Payload...)
	}
	return dst
}

// ReadRecord reads one record from r. It's the inverse of [AppendRecords] for a single record.
func ReadRecord(r io.Reader) (Record, error) {
	var rec Record
	if _, err := io.ReadFull(r, rec.Header[:]); err != nil {
		return rec, err
	}
	rec.Payload = make([]byte, rec.Header.PayloadLen())
	if _, err := io.ReadFull(r, rec.Payload); err != nil {
		return rec, fmt.Errorf("failed to read record payload: %w", err)
	}
	return rec, nil
}
