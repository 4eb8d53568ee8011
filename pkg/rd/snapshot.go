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
)

// Snapshotter writes buffer contents to individual files named
// NNNN-GGGGGGGG.dat, where NNNN counts snapshots and GGGGGGGG is the GPU
// address of the buffer.
type Snapshotter struct {
	// Dir is where snapshots are written. Empty means the working
	// directory.
	Dir string

	mu    sync.Mutex
	count int
}

// SnapshotName returns the file name of snapshot number n.
func SnapshotName(n int, gpuaddr uint64) string {
	return fmt.Sprintf("%04d-%08x.dat", n, gpuaddr)
}

// WriteSnapshot writes data to the next snapshot file and returns its path.
// The counter advances even if the write fails, so names are never reused
// within a process.
func (s *Snapshotter) WriteSnapshot(gpuaddr uint64, data []byte) (string, error) {
	s.mu.Lock()
	n := s.count
	s.count++
	s.mu.Unlock()

	path := filepath.Join(s.Dir, SnapshotName(n, gpuaddr))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return path, fmt.Errorf("writing snapshot: %w", err)
	}
	return path, nil
}

// Count returns the number of snapshots taken so far.
func (s *Snapshotter) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}
