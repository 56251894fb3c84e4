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

// Package blocklist holds the set of byte patterns that identify blocked destinations,
// and the sources they are loaded from.
//
// Matching is plain substring containment, case-sensitive and unanchored. A host name
// shows up as ASCII inside an unencrypted Client Hello, which is all the matcher relies on.
package blocklist

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode"
)

// PatternSet is an ordered, immutable set of byte patterns.
// The zero value is an empty set that matches nothing.
type PatternSet struct {
	patterns [][]byte
}

// NewPatternSet creates a set with the given patterns, in order. Empty patterns are
// ignored, since they would match any sample.
func NewPatternSet(patterns ...string) PatternSet {
	var s PatternSet
	for _, p := range patterns {
		if p == "" {
			continue
		}
		s.patterns = append(s.patterns, []byte(p))
	}
	return s
}

// Match reports whether any pattern is a contiguous substring of sample.
func (s PatternSet) Match(sample []byte) bool {
	for _, p := range s.patterns {
		if bytes.Contains(sample, p) {
			return true
		}
	}
	return false
}

// Len returns the number of patterns in the set.
func (s PatternSet) Len() int {
	return len(s.patterns)
}

// Patterns returns a copy of the patterns, in order.
func (s PatternSet) Patterns() []string {
	out := make([]string, len(s.patterns))
	for i, p := range s.patterns {
		out[i] = string(p)
	}
	return out
}

// Parse reads one pattern per line from r. Trailing whitespace is stripped from each
// line. Blank lines and lines starting with '#' are skipped.
func Parse(r io.Reader) (PatternSet, error) {
	var patterns []string
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimRightFunc(scanner.Text(), unicode.IsSpace)
		if line == "" || strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	if err := scanner.Err(); err != nil {
		return PatternSet{}, fmt.Errorf("failed to read pattern at line %d: %w", lineNum+1, err)
	}
	return NewPatternSet(patterns...), nil
}
