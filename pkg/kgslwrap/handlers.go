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
	"math"

	"github.com/freedreno/kgslwrap/pkg/abi/kgsl"
	"github.com/freedreno/kgslwrap/pkg/memview"
	"github.com/freedreno/kgslwrap/pkg/rd"
)

// maxPropertyDump bounds the DEVICE_GETPROPERTY value dump.
const maxPropertyDump = 4096

// kgslHandlers decode KGSL commands, keyed by IOC_NR. They are shared by the
// 3D and 2D cores.
var kgslHandlers = map[uint32]ioctlHandler{
	kgsl.NR_DEVICE_GETPROPERTY:           typed[kgsl.DeviceGetProperty](nil, getPropertyPost),
	kgsl.NR_DEVICE_WAITTIMESTAMP:         typed[kgsl.DeviceWaitTimestamp](waitTimestampPre, nil),
	kgsl.NR_RINGBUFFER_ISSUEIBCMDS:       typed[kgsl.RingbufferIssueIBCmds](issueIBCmdsPre, issueIBCmdsPost),
	kgsl.NR_CMDSTREAM_READTIMESTAMP:      typed[kgsl.CmdstreamReadTimestamp](readTimestampPre, readTimestampPost),
	kgsl.NR_CMDSTREAM_FREEMEMONTIMESTAMP: typed[kgsl.CmdstreamFreememOnTimestamp](freememOnTimestampPre, nil),
	kgsl.NR_DRAWCTXT_CREATE:              typed[kgsl.DrawctxtCreate](drawctxtCreatePre, drawctxtCreatePost),
	kgsl.NR_DRAWCTXT_DESTROY:             typed[kgsl.DrawctxtDestroy](drawctxtDestroyPre, nil),
	kgsl.NR_MAP_USER_MEM:                 typed[kgsl.MapUserMem](mapUserMemPre, mapUserMemPost),
	kgsl.NR_SHAREDMEM_FROM_PMEM:          typed[kgsl.SharedmemFromPmem](fromPmemPre, fromPmemPost),
	kgsl.NR_SHAREDMEM_FREE:               typed[kgsl.SharedmemFree](sharedmemFreePre, nil),
	kgsl.NR_SHAREDMEM_FROM_VMALLOC:       {pre: fromVmallocPre, post: fromVmallocPost},
	kgsl.NR_GPUMEM_ALLOC:                 {pre: gpumemAllocPre, post: gpumemAllocPost},
}

func getPropertyPost(st *ioctlState, p *kgsl.DeviceGetProperty) {
	st.printf("\t\ttype:\t\t%08x (%s)\n", p.Type, kgsl.PropName(p.Type))
	n := uint64(p.ValueSize)
	if n > maxPropertyDump {
		st.printf("\t\t<value truncated from %d bytes>\n", n)
		n = maxPropertyDump
	}
	value, err := memview.Read(st.w.mem, p.Value, int(n))
	if err != nil {
		st.printf("\t\t<unreadable value at %#x: %v>\n", p.Value, err)
		return
	}
	hexdump(&st.tb, p.Value, value)
}

func waitTimestampPre(st *ioctlState, p *kgsl.DeviceWaitTimestamp) {
	st.printf("\t\ttimestamp:\t%08x\n", p.Timestamp)
	st.printf("\t\ttimeout:\t%08x\n", p.Timeout)
}

func issueIBCmdsPre(st *ioctlState, p *kgsl.RingbufferIssueIBCmds) {
	st.printf("\t\tdrawctxt_id:\t%08x\n", p.DrawctxtID)
	st.printf("\t\tflags:\t\t%08x\n", p.Flags)
	st.printf("\t\tnumibs:\t\t%08x\n", p.NumIBs)
	st.printf("\t\tibdesc_addr:\t%08x\n", p.IBDescAddr)
	st.inspectIBs(p)
}

func issueIBCmdsPost(st *ioctlState, p *kgsl.RingbufferIssueIBCmds) {
	st.printf("\t\ttimestamp:\t%08x\n", p.Timestamp)
}

func readTimestampPre(st *ioctlState, p *kgsl.CmdstreamReadTimestamp) {
	st.printf("\t\ttype:\t\t%08x\n", p.Type)
}

func readTimestampPost(st *ioctlState, p *kgsl.CmdstreamReadTimestamp) {
	st.printf("\t\ttimestamp:\t%08x\n", p.Timestamp)
}

func freememOnTimestampPre(st *ioctlState, p *kgsl.CmdstreamFreememOnTimestamp) {
	st.printf("\t\tgpuaddr:\t%08x\n", p.GPUAddr)
	st.printf("\t\ttype:\t\t%08x\n", p.Type)
	st.printf("\t\ttimestamp:\t%08x\n", p.Timestamp)
}

func drawctxtCreatePre(st *ioctlState, p *kgsl.DrawctxtCreate) {
	st.printf("\t\tflags:\t\t%08x\n", p.Flags)
}

func drawctxtCreatePost(st *ioctlState, p *kgsl.DrawctxtCreate) {
	st.printf("\t\tdrawctxt_id:\t%08x\n", p.DrawctxtID)
}

func drawctxtDestroyPre(st *ioctlState, p *kgsl.DrawctxtDestroy) {
	st.printf("\t\tdrawctxt_id:\t%08x\n", p.DrawctxtID)
}

func mapUserMemPre(st *ioctlState, p *kgsl.MapUserMem) {
	st.printf("\t\tfd:\t\t%d\n", int32(p.FD))
	st.printf("\t\tlen:\t\t%08x\n", p.Len)
	st.printf("\t\toffset:\t\t%08x\n", p.Offset)
	st.printf("\t\thostptr:\t%08x\n", p.HostPtr)
	st.printf("\t\tmemtype:\t%08x\n", p.MemType)
}

func mapUserMemPost(st *ioctlState, p *kgsl.MapUserMem) {
	st.printf("\t\tgpuaddr:\t%08x\n", p.GPUAddr)
}

func fromPmemPre(st *ioctlState, p *kgsl.SharedmemFromPmem) {
	st.printf("\t\tpmem_fd:\t%d\n", int32(p.PmemFD))
	st.printf("\t\tlen:\t\t%08x\n", p.Len)
	st.printf("\t\toffset:\t\t%08x\n", p.Offset)
}

func fromPmemPost(st *ioctlState, p *kgsl.SharedmemFromPmem) {
	st.printf("\t\tgpuaddr:\t%08x\n", p.GPUAddr)
}

func sharedmemFreePre(st *ioctlState, p *kgsl.SharedmemFree) {
	st.printf("\t\tgpuaddr:\t%08x\n", p.GPUAddr)
	st.w.bufs.Unregister(p.GPUAddr)
}

// noVMA is printed as the length of a vmalloc buffer whose mapping was not
// found.
const noVMA = math.MaxUint32

// vmaLength returns the length of the mapping starting at host, or noVMA.
func (st *ioctlState) vmaLength(host uint64) uint64 {
	if n, ok := st.w.vmas.LengthAt(host); ok {
		return n
	}
	return noVMA
}

// fromVmallocPre tracks buffers of interest. For SHAREDMEM_FROM_VMALLOC the
// gpuaddr field is an input holding the length, or 0 to map the whole VMA
// at hostptr.
func fromVmallocPre(st *ioctlState) {
	p, ok := decodeArg[kgsl.SharedmemFromVmalloc](st)
	if !ok {
		return
	}
	st.printf("\t\tflags:\t\t%08x\n", p.Flags)
	st.printf("\t\thostptr:\t%08x\n", p.HostPtr)
	length := p.GPUAddr
	if length == 0 {
		length = st.vmaLength(p.HostPtr)
		if st.w.cfg.isLegacyBufferLength(length) {
			buf, err := st.w.bufs.Register(p.HostPtr, p.Flags, length)
			st.w.logRegistryError(err)
			st.pending = buf
		}
	}
	st.printf("\t\tlen:\t\t%08x\n", length)
}

// fromVmallocPost assigns the GPU address of a buffer registered by
// fromVmallocPre. A buffer whose call failed is dropped.
func fromVmallocPost(st *ioctlState) {
	p, ok := decodeArg[kgsl.SharedmemFromVmalloc](st)
	if st.pending != nil && (!ok || st.failed()) {
		st.w.bufs.Remove(st.pending)
		st.pending = nil
	}
	if !ok {
		return
	}
	if buf := st.w.bufs.FindByHost(p.HostPtr); buf != nil && !st.failed() {
		st.w.logRegistryError(st.w.bufs.SetGPUAddr(buf, p.GPUAddr))
	}
	st.printf("\t\tgpuaddr:\t%08x\n", p.GPUAddr)
	st.w.writeSection(rd.KindGPUAddr, rd.GPUAddr(p.GPUAddr, st.vmaLength(p.HostPtr)))
}

// gpumemAllocPre registers the buffer before the call. Its GPU address, and
// later its host address, are learned from the result and the mmap(2) that
// follows.
func gpumemAllocPre(st *ioctlState) {
	p, ok := decodeArg[kgsl.GPUMemAlloc](st)
	if !ok {
		return
	}
	st.printf("\t\tflags:\t\t%08x\n", p.Flags)
	st.printf("\t\tsize:\t\t%08x\n", p.Size)
	buf, err := st.w.bufs.Register(0, p.Flags, p.Size)
	st.w.logRegistryError(err)
	st.pending = buf
}

func gpumemAllocPost(st *ioctlState) {
	if st.pending == nil {
		return
	}
	p, ok := decodeArg[kgsl.GPUMemAlloc](st)
	if !ok || st.failed() || p.GPUAddr == 0 {
		st.w.bufs.Remove(st.pending)
		return
	}
	st.w.logRegistryError(st.w.bufs.SetGPUAddr(st.pending, p.GPUAddr))
	st.printf("\t\tgpuaddr:\t%08x\n", p.GPUAddr)
	st.w.writeSection(rd.KindGPUAddr, rd.GPUAddr(p.GPUAddr, st.pending.Len))
}
