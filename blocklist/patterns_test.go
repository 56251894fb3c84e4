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

package blocklist

import (
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/require"
)

func TestPatternSetMatch(t *testing.T) {
	set := NewPatternSet("blocked.example", "other.test")

	cases := []struct {
		name   string
		sample string
		match  bool
	}{
		{"Exact", "blocked.example", true},
		{"Embedded", "\x00\x13blocked.example\x00\x0b", true},
		{"SecondPattern", "xxother.testxx", true},
		{"Partial", "blocked.exampl", false},
		{"CaseSensitive", "BLOCKED.EXAMPLE", false},
		{"Empty", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.match, set.Match([]byte(tc.sample)))
		})
	}
}

func TestZeroPatternSet(t *testing.T) {
	var set PatternSet
	require.Zero(t, set.Len())
	require.False(t, set.Match([]byte("anything")))
	require.False(t, set.Match(nil))
}

func TestNewPatternSetSkipsEmpty(t *testing.T) {
	set := NewPatternSet("", "a.test", "")
	require.Equal(t, []string{"a.test"}, set.Patterns())
	require.False(t, set.Match([]byte("b.test")))
}

func TestParse(t *testing.T) {
	input := "blocked.example\n" +
		"trailing.test  \t\r\n" +
		"\n" +
		"   \n" +
		"# comment.test\n" +
		"  # indented comment\n" +
		" leading.test\n" +
		"last.test"
	set, err := Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Equal(t, []string{"blocked.example", "trailing.test", " leading.test", "last.test"}, set.Patterns())
	require.True(t, set.Match([]byte("xx trailing.test xx")))
	require.False(t, set.Match([]byte("comment.test")))
}

func TestParseReadError(t *testing.T) {
	_, err := Parse(iotest.ErrReader(iotest.ErrTimeout))
	require.ErrorIs(t, err, iotest.ErrTimeout)
}
