// Copyright 2026 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rd

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// Sink receives capture sections.
type Sink interface {
	// WriteSection appends one section.
	WriteSection(kind Kind, data []byte) error
}

// Writer appends sections to a capture file.
//
// Several processes may share a capture, e.g. a traced program and the
// children it forks. Each section is written with a single append while
// holding an exclusive advisory lock on the file, so sections from different
// processes never interleave.
type Writer struct {
	mu   sync.Mutex
	f    *os.File
	lock *flock.Flock
}

// Create opens the capture at path for appending, creating it if needed, and
// writes a CMD section holding cmdline.
func Create(path, cmdline string) (*Writer, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating capture directory %q: %w", dir, err)
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening capture %q: %w", path, err)
	}
	w := &Writer{f: f, lock: flock.NewFlock(path)}
	if err := w.WriteSection(KindCmd, []byte(cmdline)); err != nil {
		w.Close()
		return nil, err
	}
	return w, nil
}

// Name returns the capture file name.
func (w *Writer) Name() string {
	return w.f.Name()
}

// WriteSection implements Sink.WriteSection.
func (w *Writer) WriteSection(kind Kind, data []byte) error {
	b, err := Section{Kind: kind, Data: data}.MarshalBinary()
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return fmt.Errorf("capture is closed")
	}
	if err := w.lock.Lock(); err != nil {
		return fmt.Errorf("locking capture %q: %w", w.f.Name(), err)
	}
	defer w.lock.Unlock()
	if _, err := w.f.Write(b); err != nil {
		return fmt.Errorf("writing %v section to %q: %w", kind, w.f.Name(), err)
	}
	return nil
}

// Close closes the capture.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	w.lock.Close()
	err := w.f.Close()
	w.f = nil
	return err
}

// Discard is a Sink that drops all sections.
type Discard struct{}

// WriteSection implements Sink.WriteSection.
func (Discard) WriteSection(Kind, []byte) error { return nil }

// Buffer is a Sink that keeps sections in memory.
type Buffer struct {
	Sections []Section
}

// WriteSection implements Sink.WriteSection.
func (b *Buffer) WriteSection(kind Kind, data []byte) error {
	b.Sections = append(b.Sections, Section{Kind: kind, Data: append([]byte(nil), data...)})
	return nil
}
