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
	"strings"

	"github.com/freedreno/kgslwrap/pkg/abi/kgsl"
	"github.com/freedreno/kgslwrap/pkg/abi/linux"
	"github.com/freedreno/kgslwrap/pkg/gpubuf"
	"github.com/freedreno/kgslwrap/pkg/memview"
	"golang.org/x/sys/unix"
)

// ioctlState holds the state of one traced ioctl across the real call.
type ioctlState struct {
	w       *Wrapper
	fd      int32
	class   DeviceClass
	info    *kgsl.DeviceInfo
	request uint32
	nr      uint32
	name    string
	known   bool
	arg     uint64

	// argBlock is the argument block before the call, if readable.
	argBlock []byte

	// Set after the real call.
	ret   int64
	errno unix.Errno

	// pending is a buffer registered before the call whose GPU address is
	// filled in after it.
	pending *gpubuf.Buffer

	// tb accumulates console output.
	tb strings.Builder
}

// failed returns true if the real call failed.
func (st *ioctlState) failed() bool {
	return st.ret < 0
}

func (st *ioctlState) printf(format string, v ...any) {
	fmt.Fprintf(&st.tb, format, v...)
}

// ioctlHandler decodes one KGSL command. Either function may be nil.
type ioctlHandler struct {
	pre  func(st *ioctlState)
	post func(st *ioctlState)
}

// decodeArg reads and decodes the argument block of st as a P.
func decodeArg[P any, PP kgsl.ParamsPtr[P]](st *ioctlState) (P, bool) {
	var p P
	b, err := memview.Read(st.w.mem, st.arg, PP(&p).SizeBytes(st.w.arch))
	if err == nil {
		err = PP(&p).UnmarshalBytes(st.w.arch, b)
	}
	if err != nil {
		st.printf("\t\t<cannot decode %s argument: %v>\n", st.name, err)
		return p, false
	}
	return p, true
}

// typed returns an ioctlHandler whose functions receive the argument block
// decoded as a P. The block is read again after the call, so post sees the
// values written by the driver.
func typed[P any, PP kgsl.ParamsPtr[P]](pre, post func(st *ioctlState, p *P)) ioctlHandler {
	var h ioctlHandler
	if pre != nil {
		h.pre = func(st *ioctlState) {
			if p, ok := decodeArg[P, PP](st); ok {
				pre(st, &p)
			}
		}
	}
	if post != nil {
		h.post = func(st *ioctlState) {
			if p, ok := decodeArg[P, PP](st); ok {
				post(st, &p)
			}
		}
	}
	return h
}

// ioctlPre runs before the real ioctl.
func (w *Wrapper) ioctlPre(a IoctlArgs) *ioctlState {
	w.mu.Lock()
	defer w.mu.Unlock()

	st := &ioctlState{
		w:       w,
		fd:      a.FD,
		class:   w.classes.ClassOf(a.FD),
		request: a.Request,
		nr:      linux.IOC_NR(a.Request),
		arg:     a.Arg,
	}
	st.info = st.class.Info()
	if st.info == nil {
		st.printf("> [%4d]         : <unknown> (%08x)\n", st.fd, st.request)
		w.print(&st.tb)
		return st
	}
	st.name = st.info.IoctlName(st.nr)
	st.known = st.name != kgsl.UnknownIoctl
	if size := linux.IOC_SIZE(st.request); size != 0 {
		st.argBlock, _ = memview.Read(w.mem, st.arg, int(size))
	}

	st.dumpIoctl(linux.IOC_WRITE)
	if h, ok := st.handler(); ok && h.pre != nil {
		h.pre(st)
	}
	w.print(&st.tb)
	return st
}

// ioctlPost runs after the real ioctl.
func (w *Wrapper) ioctlPost(st *ioctlState, ret int64, errno unix.Errno) {
	w.mu.Lock()
	defer w.mu.Unlock()

	st.ret, st.errno = ret, errno
	if st.info == nil {
		st.printf("< [%4d]         : <unknown> (%08x) (%d)\n", st.fd, st.request, st.ret)
		w.print(&st.tb)
		return
	}

	st.dumpIoctl(linux.IOC_READ)
	if h, ok := st.handler(); ok && h.post != nil {
		h.post(st)
	}
	w.print(&st.tb)

	if w.events != nil {
		w.events.IoctlEvent(&IoctlEvent{
			FD:      st.fd,
			Path:    w.classes.PathOf(st.fd),
			Class:   st.class,
			Request: st.request,
			Name:    st.name,
			Known:   st.known,
			Ret:     st.ret,
			Errno:   st.errno,
			Arg:     st.argBlock,
		})
	}
}

// handler returns the decoder of a known KGSL command.
func (st *ioctlState) handler() (ioctlHandler, bool) {
	if !st.class.IsKGSL() || !st.known || linux.IOC_TYPE(st.request) != kgsl.KGSL_IOC_TYPE {
		return ioctlHandler{}, false
	}
	h, ok := kgslHandlers[st.nr]
	return h, ok
}

// dumpIoctl prints the request line, followed by the argument block if the
// request transfers data in direction dir.
func (st *ioctlState) dumpIoctl(dir uint32) {
	c := '>'
	if dir == linux.IOC_READ {
		c = '<'
	}
	st.printf("%c [%4d] %8s: %s (%08x)", c, st.fd, st.info.Name, st.name, st.request)
	if dir == linux.IOC_READ {
		st.printf(" => %d", st.ret)
	}
	st.printf("\n")

	size := linux.IOC_SIZE(st.request)
	if dir&linux.IOC_DIR(st.request) == 0 || size == 0 {
		return
	}
	block := st.argBlock
	if dir == linux.IOC_READ {
		var err error
		block, err = memview.Read(st.w.mem, st.arg, int(size))
		if err != nil {
			st.printf("\t\t\t<unreadable argument block at %#x: %v>\n", st.arg, err)
			return
		}
	} else if len(block) != int(size) {
		st.printf("\t\t\t<unreadable argument block at %#x>\n", st.arg)
		return
	}
	hexdump(&st.tb, st.arg, block)
}
