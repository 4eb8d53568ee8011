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

// Package kgslwrap traces the KGSL GPU driver protocol as seen through a
// process's open(2), ioctl(2) and mmap(2) calls.
//
// A Wrapper is fed every intercepted call together with a function that
// performs the real call. It classifies descriptors opened on GPU device
// nodes, tracks GPU buffer objects through their allocation, mapping and
// release, decodes KGSL ioctls, and extracts submitted command streams into
// an .rd capture and buffer snapshots. The wrapped call itself is never
// altered: the real call always runs with the caller's arguments and its
// result and errno are returned unchanged.
//
// Lock order:
//
//	Wrapper.mu
//	  rd.Writer.mu
package kgslwrap

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/freedreno/kgslwrap/pkg/abi/kgsl"
	"github.com/freedreno/kgslwrap/pkg/gpubuf"
	"github.com/freedreno/kgslwrap/pkg/log"
	"github.com/freedreno/kgslwrap/pkg/memview"
	"github.com/freedreno/kgslwrap/pkg/rd"
	"golang.org/x/sys/unix"
)

// SnapshotWriter writes buffer snapshots. It is implemented by
// *rd.Snapshotter.
type SnapshotWriter interface {
	WriteSnapshot(gpuaddr uint64, data []byte) (string, error)
}

// IoctlEvent describes one completed ioctl on a classified descriptor.
type IoctlEvent struct {
	FD      int32
	Path    string
	Class   DeviceClass
	Request uint32
	Name    string

	// Known is true if the command is in the device's ioctl table.
	Known bool

	Ret   int64
	Errno unix.Errno

	// Arg is the argument block as passed to the driver.
	Arg []byte
}

// EventSink receives ioctl events.
type EventSink interface {
	IoctlEvent(ev *IoctlEvent)
}

// Options configures a Wrapper.
type Options struct {
	// Config is the trace configuration.
	Config Config

	// Arch is the data model of the traced process. The zero value means
	// kgsl.NativeArch.
	Arch kgsl.Arch

	// Memory reads the traced process's memory. Required.
	Memory memview.Memory

	// VMAs looks up mappings of the traced process. If nil, mapping
	// lengths are never known.
	VMAs memview.VMAs

	// Sink receives capture sections. If nil, sections are dropped.
	Sink rd.Sink

	// Snapshots writes buffer snapshots. If nil, no snapshots are taken.
	Snapshots SnapshotWriter

	// Console receives the human readable trace. If nil, os.Stdout.
	Console io.Writer

	// Events receives ioctl events. Optional.
	Events EventSink

	// Logger receives diagnostics. If nil, the global logger.
	Logger log.Logger

	// Fatalf reports an unrecoverable error. It must not return. If nil,
	// the error is logged and the process exits.
	Fatalf func(format string, v ...any)

	// OnTrack is called when a descriptor starts or stops being classified
	// as a KGSL device. The hook uses it to decide which mmap(2) calls to
	// intercept. Optional.
	OnTrack func(fd int32, tracked bool)
}

// Wrapper holds the tracing state of one process.
type Wrapper struct {
	cfg     Config
	arch    kgsl.Arch
	mem     memview.Memory
	vmas    memview.VMAs
	out     io.Writer
	events  EventSink
	log     log.Logger
	missing log.Logger
	fatalf  func(format string, v ...any)
	onTrack func(fd int32, tracked bool)

	// mu protects the fields below. It is held while decoding a call, but
	// never across the real call.
	mu      sync.Mutex
	classes *Classifier
	bufs    *gpubuf.Registry
	sink    rd.Sink
	snaps   SnapshotWriter
	tracked map[int32]bool
}

// New returns a Wrapper.
func New(opts Options) (*Wrapper, error) {
	if opts.Memory == nil {
		return nil, fmt.Errorf("Options.Memory is required")
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	w := &Wrapper{
		cfg:     opts.Config,
		arch:    opts.Arch,
		mem:     opts.Memory,
		vmas:    opts.VMAs,
		out:     opts.Console,
		events:  opts.Events,
		log:     opts.Logger,
		fatalf:  opts.Fatalf,
		onTrack: opts.OnTrack,
		classes: NewClassifier(),
		bufs:    gpubuf.NewRegistry(),
		sink:    opts.Sink,
		snaps:   opts.Snapshots,
		tracked: make(map[int32]bool),
	}
	if w.arch.WordSize == 0 {
		w.arch = kgsl.NativeArch
	}
	if w.vmas == nil {
		w.vmas = memview.FakeVMAs(nil)
	}
	if w.out == nil {
		w.out = os.Stdout
	}
	if w.log == nil {
		w.log = log.Log()
	}
	if w.fatalf == nil {
		w.fatalf = func(format string, v ...any) {
			log.Warningf(format, v...)
			os.Exit(1)
		}
	}
	if w.sink == nil {
		w.sink = rd.Discard{}
	}
	w.missing = log.RateLimitedLogger(w.log, time.Second)
	return w, nil
}

// Registry returns the buffer registry. Callers must not use it concurrently
// with calls into w.
func (w *Wrapper) Registry() *gpubuf.Registry {
	return w.bufs
}

// ClassOf returns the class of fd.
func (w *Wrapper) ClassOf(fd int32) DeviceClass {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.classes.ClassOf(fd)
}

// print writes console text. Each call is one write, so that traces of
// concurrent calls interleave by line group rather than by byte.
//
// Preconditions: w.mu is locked.
func (w *Wrapper) print(tb *strings.Builder) {
	if tb.Len() == 0 {
		return
	}
	io.WriteString(w.out, tb.String())
	tb.Reset()
}

// writeSection appends a section to the capture.
//
// Preconditions: w.mu is locked.
func (w *Wrapper) writeSection(kind rd.Kind, data []byte) {
	if err := w.sink.WriteSection(kind, data); err != nil {
		w.traceError(err)
	}
}

// snapshot writes the contents of buf to a snapshot file.
//
// Preconditions: w.mu is locked.
func (w *Wrapper) snapshot(tb *strings.Builder, buf *gpubuf.Buffer) {
	if w.snaps == nil || !buf.Mapped() || buf.GPUAddr == 0 {
		return
	}
	data, err := memview.Read(w.mem, buf.HostAddr, int(buf.Len))
	if err != nil {
		fmt.Fprintf(tb, "\t\tcannot snapshot %v: %v\n", buf, err)
		return
	}
	path, err := w.snaps.WriteSnapshot(buf.GPUAddr, data)
	if err != nil {
		w.traceError(err)
		return
	}
	fmt.Fprintf(tb, "\t\tdumping: %s\n", path)
}

// traceError handles a failure to write the capture or a snapshot.
//
// Preconditions: w.mu is locked.
func (w *Wrapper) traceError(err error) {
	if w.cfg.TraceErrors == TraceErrorsDegrade {
		w.log.Warningf("Disabling capture and snapshots: %v", err)
		w.sink = rd.Discard{}
		w.snaps = nil
		return
	}
	w.fatalf("Cannot write trace: %v", err)
}

// syncTracked reports changes in the set of KGSL descriptors to OnTrack.
//
// Preconditions: w.mu is locked.
func (w *Wrapper) syncTracked() {
	now := make(map[int32]bool)
	for _, s := range w.classes.slots {
		if s.fd >= 0 && w.classes.ClassOf(s.fd).IsKGSL() {
			now[s.fd] = true
		}
	}
	var changed []int32
	for fd := range w.tracked {
		if !now[fd] {
			changed = append(changed, fd)
		}
	}
	for fd := range now {
		if !w.tracked[fd] {
			changed = append(changed, fd)
		}
	}
	w.tracked = now
	if w.onTrack == nil {
		return
	}
	sort.Slice(changed, func(i, j int) bool { return changed[i] < changed[j] })
	for _, fd := range changed {
		w.onTrack(fd, now[fd])
	}
}

// logRegistryError reports a registry invariant violation.
func (w *Wrapper) logRegistryError(err error) {
	if err != nil {
		w.log.Warningf("Buffer tracking error: %v", err)
	}
}
