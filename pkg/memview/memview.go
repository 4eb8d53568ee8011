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

// Package memview provides fault-free access to the memory of the calling
// process.
//
// Pointers found in ioctl arguments and command streams are supplied by an
// uninstrumented application and may be stale or bogus. Dereferencing them
// directly could crash the traced process, so all reads go through
// process_vm_readv(2), which reports EFAULT instead.
package memview

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"golang.org/x/sys/unix"
)

// ErrFault is returned when some of the requested range is not mapped.
var ErrFault = errors.New("bad address")

// Memory reads the address space of the traced process.
type Memory interface {
	// ReadAt reads len(dst) bytes at addr. It returns the number of bytes
	// read; n < len(dst) only with a non-nil error.
	ReadAt(dst []byte, addr uint64) (int, error)
}

// Read reads n bytes at addr from m.
func Read(m Memory, addr uint64, n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("negative read length %d", n)
	}
	b := make([]byte, n)
	got, err := m.ReadAt(b, addr)
	return b[:got], err
}

// Process reads the memory of a live process. The zero value is not valid;
// use Self.
type Process struct {
	pid int
}

// Self returns a Process that reads the memory of the calling process.
func Self() *Process {
	return &Process{pid: os.Getpid()}
}

// maxIov bounds a single process_vm_readv call, which may return a short
// count on large transfers.
const maxIov = 1 << 20

// ReadAt implements Memory.ReadAt.
func (p *Process) ReadAt(dst []byte, addr uint64) (int, error) {
	done := 0
	for done < len(dst) {
		chunk := dst[done:]
		if len(chunk) > maxIov {
			chunk = chunk[:maxIov]
		}
		local := []unix.Iovec{{Base: &chunk[0]}}
		local[0].SetLen(len(chunk))
		remote := []unix.RemoteIovec{{Base: uintptr(addr) + uintptr(done), Len: len(chunk)}}
		n, err := unix.ProcessVMReadv(p.pid, local, remote, 0)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			if err == unix.EFAULT {
				err = ErrFault
			}
			return done, fmt.Errorf("reading %d bytes at %#x: %w", len(dst)-done, addr+uint64(done), err)
		}
		if n == 0 {
			return done, fmt.Errorf("reading %d bytes at %#x: %w", len(dst)-done, addr+uint64(done), ErrFault)
		}
		done += n
	}
	return done, nil
}

// Fake is an in-memory address space for tests. Unpopulated addresses fault.
//
// Fake is not synchronized.
type Fake struct {
	regions []fakeRegion // sorted by start
}

type fakeRegion struct {
	start uint64
	data  []byte
}

// Map makes data readable at addr. The region aliases data. Regions must not
// overlap.
func (f *Fake) Map(addr uint64, data []byte) {
	i := sort.Search(len(f.regions), func(i int) bool { return f.regions[i].start > addr })
	f.regions = append(f.regions, fakeRegion{})
	copy(f.regions[i+1:], f.regions[i:])
	f.regions[i] = fakeRegion{start: addr, data: data}
}

// ReadAt implements Memory.ReadAt.
func (f *Fake) ReadAt(dst []byte, addr uint64) (int, error) {
	done := 0
	for done < len(dst) {
		cur := addr + uint64(done)
		i := sort.Search(len(f.regions), func(i int) bool { return f.regions[i].start > cur }) - 1
		if i < 0 || cur-f.regions[i].start >= uint64(len(f.regions[i].data)) {
			return done, fmt.Errorf("reading %d bytes at %#x: %w", len(dst)-done, cur, ErrFault)
		}
		r := f.regions[i]
		done += copy(dst[done:], r.data[cur-r.start:])
	}
	return done, nil
}
