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

package kgslwrap

import (
	"fmt"
	"path"
	"strings"

	"golang.org/x/sys/unix"
)

// OpenArgs are the arguments of open(2).
type OpenArgs struct {
	Path  string
	Flags int32

	// Mode is only passed by the caller, and must only be forwarded, when
	// HasMode is set.
	Mode    uint32
	HasMode bool
}

// OpenNeedsMode returns true if open(2) with flags reads the variadic mode
// argument.
func OpenNeedsMode(flags int32) bool {
	return flags&unix.O_CREAT != 0 || flags&unix.O_TMPFILE == unix.O_TMPFILE
}

// IoctlArgs are the arguments of ioctl(2). All KGSL and PMEM requests take
// a single pointer sized argument.
type IoctlArgs struct {
	FD      int32
	Request uint32
	Arg     uint64
}

// MmapArgs are the arguments of mmap(2).
type MmapArgs struct {
	Addr   uint64
	Length uint64
	Prot   int32
	Flags  int32
	FD     int32
	Offset int64
}

// Open traces open(2). call performs the original call with the caller's
// arguments.
func (w *Wrapper) Open(a OpenArgs, call func() (int32, unix.Errno)) (int32, unix.Errno) {
	fd, errno := call()
	if fd < 0 {
		return fd, errno
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	var tb strings.Builder
	class, missing := LookupNode(a.Path)
	switch {
	case class != ClassNone:
		w.classes.ClassifyOnOpen(a.Path, fd)
		w.syncTracked()
		fmt.Fprintf(&tb, "found %s: %d\n", strings.ReplaceAll(path.Base(a.Path), "-", "_"), fd)
	case missing:
		fmt.Fprintf(&tb, "#### missing device, path: %s: %d\n", a.Path, fd)
		w.missing.Infof("Untraced device node %q opened as fd %d", a.Path, fd)
	}
	w.print(&tb)
	return fd, errno
}

// Ioctl traces ioctl(2). call performs the original call with the caller's
// arguments.
func (w *Wrapper) Ioctl(a IoctlArgs, call func() (int64, unix.Errno)) (int64, unix.Errno) {
	st := w.ioctlPre(a)
	ret, errno := call()
	w.ioctlPost(st, ret, errno)
	return ret, errno
}

// Mmap traces mmap(2). call performs the original call with the caller's
// arguments and returns the mapping address.
func (w *Wrapper) Mmap(a MmapArgs, call func() (uint64, unix.Errno)) (uint64, unix.Errno) {
	w.mu.Lock()
	var tb strings.Builder
	if w.classes.ClassOf(a.FD).IsKGSL() {
		fmt.Fprintf(&tb, "< [%4d]         : mmap: addr=%#x, length=%d, prot=%x, flags=%x, offset=%08x\n",
			a.FD, a.Addr, a.Length, a.Prot, a.Flags, a.Offset)
	}
	w.print(&tb)
	w.mu.Unlock()

	ret, errno := call()

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.classes.ClassOf(a.FD).IsKGSL() {
		return ret, errno
	}
	// The KGSL mmap offset is the GPU address of the buffer to map.
	if errno == 0 {
		if buf := w.bufs.FindByGPU(uint64(a.Offset)); buf != nil {
			w.logRegistryError(w.bufs.SetHostAddr(buf, ret-(uint64(a.Offset)-buf.GPUAddr)))
		}
		fmt.Fprintf(&tb, "< [%4d]         : mmap: -> (%#x)\n", a.FD, ret)
	} else {
		fmt.Fprintf(&tb, "< [%4d]         : mmap: -> (MAP_FAILED) %v\n", a.FD, errno)
	}
	w.print(&tb)
	return ret, errno
}

// Close traces close(2). Descriptors are forgotten only if
// Config.ForgetClosedFDs is set.
func (w *Wrapper) Close(fd int32, call func() (int32, unix.Errno)) (int32, unix.Errno) {
	ret, errno := call()
	if ret != 0 || !w.cfg.ForgetClosedFDs {
		return ret, errno
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.classes.ClassOf(fd) != ClassNone {
		w.classes.Forget(fd)
		w.syncTracked()
	}
	return ret, errno
}
