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

// Binary hook is the LD_PRELOAD library that traces KGSL GPU calls. It
// replaces open(2), ioctl(2), mmap(2) and close(2) and feeds every call to a
// process-wide kgslwrap.Wrapper. Children created by fork(2) are not traced
// until they exec. Build it with:
//
//	go build -buildmode=c-shared -o libkgslwrap.so ./tools/kgsl_sniffer/hook
package main

/*
#cgo LDFLAGS: -ldl
#include <stdlib.h>
#include "hook.h"
*/
import "C"

import (
	"fmt"
	"os"
	"sync"
	"unsafe"

	"github.com/freedreno/kgslwrap/pkg/kgslwrap"
	"github.com/freedreno/kgslwrap/pkg/log"
	"github.com/freedreno/kgslwrap/pkg/memview"
	"github.com/freedreno/kgslwrap/pkg/rd"
	"github.com/freedreno/kgslwrap/tools/kgsl_sniffer/sniffer"
	"golang.org/x/sys/unix"
)

var (
	syms = kgslwrap.NewSymbols()

	initOnce sync.Once
	wrapper  *kgslwrap.Wrapper
)

func lookupNext(name string) (uintptr, error) {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	addr := C.kgsl_dlsym_next(cname)
	if addr == nil {
		return 0, fmt.Errorf("dlsym(RTLD_NEXT, %q) failed", name)
	}
	return uintptr(addr), nil
}

func fatalf(format string, v ...any) {
	log.Warningf(format, v...)
	os.Exit(1)
}

func setTracked(fd int32, tracked bool) {
	on := 0
	if tracked {
		on = 1
	}
	C.kgsl_set_tracked(C.int(fd), C.int(on))
}

// get returns the process-wide Wrapper, creating it on first use.
func get() *kgslwrap.Wrapper {
	initOnce.Do(func() {
		cfg, err := kgslwrap.LoadConfig(os.Getenv)
		if err != nil {
			log.Warningf("Invalid configuration, using defaults: %v", err)
			cfg = kgslwrap.DefaultConfig()
		}
		pattern := log.ProcessPatternOpts()
		if err := kgslwrap.ConfigureLogging(cfg, pattern); err != nil {
			log.Warningf("Cannot configure logging: %v", err)
		}

		opts := kgslwrap.Options{
			Config:    cfg,
			Memory:    memview.Self(),
			VMAs:      memview.SelfMaps(),
			Snapshots: &rd.Snapshotter{Dir: cfg.SnapshotDir},
			Fatalf:    fatalf,
			OnTrack:   setTracked,
		}
		capture, err := kgslwrap.OpenCapture(cfg, pattern)
		switch {
		case err != nil && cfg.TraceErrors == kgslwrap.TraceErrorsFatal:
			fatalf("Cannot open capture: %v", err)
		case err != nil:
			log.Warningf("Cannot open capture, continuing without: %v", err)
		case capture != nil:
			log.Infof("Writing capture to %s", capture.Name())
			opts.Sink = capture
		}
		if cfg.EventFD >= 0 {
			opts.Events = sniffer.NewEventWriter(os.NewFile(uintptr(cfg.EventFD), "kgslwrap-events"))
		}

		w, err := kgslwrap.New(opts)
		if err != nil {
			fatalf("Cannot start tracing: %v", err)
		}
		wrapper = w
	})
	return wrapper
}

//export kgslwrapOpen
func kgslwrapOpen(path *C.char, flags C.int, mode C.uint, hasMode C.int, errp *C.int) C.int {
	a := kgslwrap.OpenArgs{
		Path:    C.GoString(path),
		Flags:   int32(flags),
		Mode:    uint32(mode),
		HasMode: hasMode != 0,
	}
	fd, errno := get().Open(a, func() (int32, unix.Errno) {
		var e C.int
		fn := syms.Open.Resolve(lookupNext, fatalf)
		ret := C.kgsl_call_open(C.uintptr_t(fn), path, flags, mode, hasMode, &e)
		return int32(ret), unix.Errno(e)
	})
	*errp = C.int(errno)
	return C.int(fd)
}

//export kgslwrapIoctl
func kgslwrapIoctl(fd C.int, request C.ulong, arg C.uintptr_t, errp *C.int) C.long {
	a := kgslwrap.IoctlArgs{
		FD:      int32(fd),
		Request: uint32(request),
		Arg:     uint64(arg),
	}
	ret, errno := get().Ioctl(a, func() (int64, unix.Errno) {
		var e C.int
		fn := syms.Ioctl.Resolve(lookupNext, fatalf)
		ret := C.kgsl_call_ioctl(C.uintptr_t(fn), fd, request, arg, &e)
		return int64(ret), unix.Errno(e)
	})
	*errp = C.int(errno)
	return C.long(ret)
}

//export kgslwrapMmap
func kgslwrapMmap(addr C.uintptr_t, length C.size_t, prot, flags, fd C.int, offset C.long, errp *C.int) C.uintptr_t {
	a := kgslwrap.MmapArgs{
		Addr:   uint64(addr),
		Length: uint64(length),
		Prot:   int32(prot),
		Flags:  int32(flags),
		FD:     int32(fd),
		Offset: int64(offset),
	}
	ret, errno := get().Mmap(a, func() (uint64, unix.Errno) {
		var e C.int
		fn := syms.Mmap.Resolve(lookupNext, fatalf)
		ret := C.kgsl_call_mmap(C.uintptr_t(fn), addr, length, prot, flags, fd, offset, &e)
		return uint64(ret), unix.Errno(e)
	})
	*errp = C.int(errno)
	return C.uintptr_t(ret)
}

//export kgslwrapClose
func kgslwrapClose(fd C.int, errp *C.int) C.int {
	ret, errno := get().Close(int32(fd), func() (int32, unix.Errno) {
		var e C.int
		fn := syms.Close.Resolve(lookupNext, fatalf)
		ret := C.kgsl_call_close(C.uintptr_t(fn), fd, &e)
		return int32(ret), unix.Errno(e)
	})
	*errp = C.int(errno)
	return C.int(ret)
}

func main() {}
