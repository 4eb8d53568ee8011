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
	"encoding/binary"

	"github.com/freedreno/kgslwrap/pkg/abi/kgsl"
	"github.com/freedreno/kgslwrap/pkg/gpubuf"
	"github.com/freedreno/kgslwrap/pkg/memview"
	"github.com/freedreno/kgslwrap/pkg/rd"
)

// maxIBs bounds the number of descriptors inspected per submission. The
// driver rejects larger counts.
const maxIBs = 1024

const (
	wordSize = 4

	// z180ContextBytes is the size of the Z180 context state region.
	z180ContextBytes = kgsl.Z180_PACKETSIZE_STATESTREAM * wordSize

	// z180HeaderBytes is the command region prefix up to its length word.
	z180HeaderBytes = (kgsl.Z180_CMD_LENGTH_WORD + 1) * wordSize
)

// inspectIBs decodes the IB descriptors of a submission and extracts the
// command streams they point to.
//
// Preconditions: st.w.mu is locked.
func (st *ioctlState) inspectIBs(p *kgsl.RingbufferIssueIBCmds) {
	n := p.NumIBs
	if n > maxIBs {
		st.printf("\t\t<only inspecting %d of %d IBs>\n", maxIBs, n)
		n = maxIBs
	}
	if n == 0 {
		return
	}
	descSize := kgsl.IBDesc{}.SizeBytes(st.w.arch)
	b, err := memview.Read(st.w.mem, p.IBDescAddr, int(n)*descSize)
	if err != nil {
		st.printf("\t\t<unreadable IB descriptors at %#x: %v>\n", p.IBDescAddr, err)
		return
	}
	for i := 0; i < int(n); i++ {
		desc, err := kgsl.Decode[kgsl.IBDesc](st.w.arch, b[i*descSize:])
		if err != nil {
			st.printf("\t\t<cannot decode ibdesc[%d]: %v>\n", i, err)
			return
		}
		st.printf("\t\tibdesc[%d].ctrl:\t\t%08x\n", i, desc.Ctrl)
		st.printf("\t\tibdesc[%d].sizedwords:\t%08x\n", i, desc.SizeDwords)
		st.printf("\t\tibdesc[%d].gpuaddr:\t%08x\n", i, desc.GPUAddr)
		st.printf("\t\tibdesc[%d].hostptr:\t%#x\n", i, desc.HostPtr)
		if st.class == Class2D {
			st.inspectZ180(&desc)
		} else {
			st.inspect3D(&desc)
		}
	}
}

// readDump reads n bytes at addr and hex-dumps them. It returns nil if the
// range is unreadable.
func (st *ioctlState) readDump(addr uint64, n uint64) []byte {
	data, err := memview.Read(st.w.mem, addr, int(n))
	if err != nil {
		st.printf("\t\t<unreadable %d bytes at %#x: %v>\n", n, addr, err)
		return nil
	}
	hexdump(&st.tb, addr, data)
	return data
}

// inspectZ180 extracts a Z180 command stream. The IB starts with the context
// state region, followed by the command region whose third word holds its
// length.
func (st *ioctlState) inspectZ180(desc *kgsl.IBDesc) {
	total := uint64(desc.SizeDwords) * wordSize
	if desc.SizeDwords <= kgsl.Z180_PACKETSIZE_STATESTREAM {
		st.printf("\t\tWARNING: INVALID CONTEXT!\n")
		st.readDump(desc.HostPtr, total)
		return
	}

	st.printf("\t\tcontext:\n")
	ctx := st.readDump(desc.HostPtr, z180ContextBytes)
	if ctx == nil {
		return
	}
	st.w.writeSection(rd.KindContext, ctx)

	st.printf("\t\tcmd:\n")
	cmdAddr := desc.HostPtr + z180ContextBytes
	avail := total - z180ContextBytes
	if avail < z180HeaderBytes {
		st.printf("\t\t<command region of %d bytes has no length word>\n", avail)
		st.readDump(cmdAddr, avail)
		return
	}
	head, err := memview.Read(st.w.mem, cmdAddr, z180HeaderBytes)
	if err != nil {
		st.printf("\t\t<unreadable command header at %#x: %v>\n", cmdAddr, err)
		return
	}
	length := uint64(kgsl.Z180CmdWords(binary.LittleEndian.Uint32(head[kgsl.Z180_CMD_LENGTH_WORD*wordSize:]))) * wordSize
	if length > avail {
		st.printf("\t\t<command length %d bytes clamped to %d>\n", length, avail)
		length = avail
	}
	cmd := st.readDump(cmdAddr, length)
	if cmd == nil {
		return
	}
	st.w.writeSection(rd.KindCmdstream, cmd)

	if st.w.cfg.SnapshotLegacyStreams {
		if buf := st.w.bufs.FindByGPU(desc.GPUAddr); buf != nil {
			st.w.snapshot(&st.tb, buf)
		}
	}
}

// inspect3D extracts a command stream from a tracked, mapped buffer.
// Descriptors pointing elsewhere are skipped.
func (st *ioctlState) inspect3D(desc *kgsl.IBDesc) {
	buf := st.w.bufs.FindByGPU(desc.GPUAddr)
	if buf == nil {
		return
	}
	host, ok := buf.HostFor(desc.GPUAddr)
	if !ok {
		return
	}
	length := uint64(desc.SizeDwords) * wordSize
	if avail := buf.Len - (desc.GPUAddr - buf.GPUAddr); length > avail {
		st.printf("\t\t<command length %d bytes clamped to %d>\n", length, avail)
		length = avail
	}
	st.printf("\t\tcmd:\n")
	cmd := st.readDump(host, length)
	if cmd == nil {
		return
	}
	st.w.writeSection(rd.KindCmdstream, cmd)

	if st.w.cfg.FollowReferences {
		st.dumpReferences(cmd)
		st.w.bufs.ForEach(func(b *gpubuf.Buffer) bool {
			st.w.snapshot(&st.tb, b)
			return true
		})
	}
}

// dumpReferences dumps the start of every tracked buffer that a word of cmd
// points into.
func (st *ioctlState) dumpReferences(cmd []byte) {
	for j := 0; j+wordSize <= len(cmd); j += wordSize {
		dword := binary.LittleEndian.Uint32(cmd[j:])
		ref := st.w.bufs.FindByGPU(uint64(dword))
		if ref == nil {
			continue
		}
		if !ref.Mapped() {
			st.printf("\t\tunmapped referenced buffer: at offset %d: %08x (start=%08x, len=%d)\n",
				j/wordSize, dword, ref.GPUAddr, ref.Len)
			continue
		}
		off := (uint64(dword) - ref.GPUAddr) &^ (wordSize - 1)
		st.printf("\t\treferenced buffer: at offset %d: %08x (start=%08x, len=%d)\n",
			j/wordSize, dword, ref.GPUAddr, ref.Len)
		st.readDump(ref.HostAddr+off, min(ref.Len-off, st.w.cfg.ReferenceDumpLimit))
	}
}
