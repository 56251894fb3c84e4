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
	"fmt"
	"os"
	"sync"
	"time"
)

// Source provides the current [PatternSet]. Implementations must be safe for
// concurrent use.
type Source interface {
	Load() (PatternSet, error)
}

// FuncSource is a [Source] that uses the given function to load the patterns.
type FuncSource func() (PatternSet, error)

var _ Source = (*FuncSource)(nil)

// Load implements [Source].
func (f FuncSource) Load() (PatternSet, error) {
	return f()
}

// StaticSource returns a [Source] that always provides set.
func StaticSource(set PatternSet) Source {
	return FuncSource(func() (PatternSet, error) {
		return set, nil
	})
}

// FileSource loads patterns from a text file, one per line (see [Parse]).
//
// The file is read on the first Load, and read again whenever its size or
// modification time changes, so edits are picked up without restarting the proxy.
type FileSource struct {
	Path string

	mu      sync.Mutex
	loaded  bool
	size    int64
	modTime time.Time
	set     PatternSet
}

var _ Source = (*FileSource)(nil)

// NewFileSource creates a [FileSource] for the file at path.
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

// Load implements [Source].
func (s *FileSource) Load() (PatternSet, error) {
	info, err := os.Stat(s.Path)
	if err != nil {
		return PatternSet{}, fmt.Errorf("failed to stat blocklist: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded && info.Size() == s.size && info.ModTime().Equal(s.modTime) {
		return s.set, nil
	}

	f, err := os.Open(s.Path)
	if err != nil {
		return PatternSet{}, fmt.Errorf("failed to open blocklist: %w", err)
	}
	defer f.Close()
	set, err := Parse(f)
	if err != nil {
		return PatternSet{}, fmt.Errorf("failed to parse blocklist %v: %w", s.Path, err)
	}
	s.set, s.size, s.modTime, s.loaded = set, info.Size(), info.ModTime(), true
	return set, nil
}
