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

package kgsl

import (
	"encoding/binary"
	"fmt"
	"math/bits"
)

// Arch describes the C data model of the traced process. KGSL argument
// structs mix 32-bit fields with unsigned long, size_t and pointer fields,
// whose width is WordSize.
type Arch struct {
	WordSize int
}

var (
	// Arch32 is the ILP32 data model (ARM, the original KGSL targets).
	Arch32 = Arch{WordSize: 4}

	// Arch64 is the LP64 data model.
	Arch64 = Arch{WordSize: 8}

	// NativeArch is the data model of this process.
	NativeArch = Arch{WordSize: bits.UintSize / 8}
)

// Params is implemented by all ioctl argument structs.
type Params interface {
	// SizeBytes is the size of the struct on the given ABI.
	SizeBytes(a Arch) int
}

// ParamsPtr is implemented by pointers to ioctl argument structs.
type ParamsPtr[T any] interface {
	*T
	Params

	// UnmarshalBytes decodes the struct from b, which must be at least
	// SizeBytes(a) long.
	UnmarshalBytes(a Arch, b []byte) error

	// MarshalBytes encodes the struct.
	MarshalBytes(a Arch) []byte
}

// Decode decodes a T from b.
func Decode[T any, PT ParamsPtr[T]](a Arch, b []byte) (T, error) {
	var v T
	err := PT(&v).UnmarshalBytes(a, b)
	return v, err
}

// field is the C type of one struct member.
type field uint8

const (
	u32  field = iota // unsigned int, int, enums
	word              // unsigned long, size_t, pointers
)

// layout is the ordered list of a struct's members. Offsets follow natural
// alignment; the struct is padded to its largest member.
type layout []field

func (l layout) size(a Arch) int {
	off, align := 0, 4
	for _, f := range l {
		n := l.fieldSize(a, f)
		if n > align {
			align = n
		}
		off = alignUp(off, n) + n
	}
	return alignUp(off, align)
}

func (layout) fieldSize(a Arch, f field) int {
	if f == word {
		return a.WordSize
	}
	return 4
}

// decode returns the members of the struct encoded in b, zero-extended to
// 64 bits.
func (l layout) decode(a Arch, b []byte) ([]uint64, error) {
	if want := l.size(a); len(b) < want {
		return nil, fmt.Errorf("short argument block: got %d bytes, want %d", len(b), want)
	}
	vals := make([]uint64, len(l))
	off := 0
	for i, f := range l {
		n := l.fieldSize(a, f)
		off = alignUp(off, n)
		if n == 8 {
			vals[i] = binary.LittleEndian.Uint64(b[off:])
		} else {
			vals[i] = uint64(binary.LittleEndian.Uint32(b[off:]))
		}
		off += n
	}
	return vals, nil
}

// encode is the inverse of decode. Values that do not fit their member are
// truncated.
func (l layout) encode(a Arch, vals ...uint64) []byte {
	if len(vals) != len(l) {
		panic(fmt.Sprintf("layout has %d members, got %d values", len(l), len(vals)))
	}
	b := make([]byte, l.size(a))
	off := 0
	for i, f := range l {
		n := l.fieldSize(a, f)
		off = alignUp(off, n)
		if n == 8 {
			binary.LittleEndian.PutUint64(b[off:], vals[i])
		} else {
			binary.LittleEndian.PutUint32(b[off:], uint32(vals[i]))
		}
		off += n
	}
	return b
}

func alignUp(off, n int) int {
	return (off + n - 1) &^ (n - 1)
}

// DeviceGetProperty is struct kgsl_device_getproperty.
type DeviceGetProperty struct {
	Type      uint32
	Value     uint64 // void *
	ValueSize uint32 // sizebytes
}

var deviceGetPropertyLayout = layout{u32, word, u32}

// SizeBytes implements Params.SizeBytes.
func (DeviceGetProperty) SizeBytes(a Arch) int { return deviceGetPropertyLayout.size(a) }

// UnmarshalBytes decodes p from b.
func (p *DeviceGetProperty) UnmarshalBytes(a Arch, b []byte) error {
	v, err := deviceGetPropertyLayout.decode(a, b)
	if err != nil {
		return err
	}
	p.Type = uint32(v[0])
	p.Value = v[1]
	p.ValueSize = uint32(v[2])
	return nil
}

// MarshalBytes encodes p.
func (p *DeviceGetProperty) MarshalBytes(a Arch) []byte {
	return deviceGetPropertyLayout.encode(a, uint64(p.Type), p.Value, uint64(p.ValueSize))
}

// DeviceWaitTimestamp is struct kgsl_device_waittimestamp.
type DeviceWaitTimestamp struct {
	Timestamp uint32
	Timeout   uint32 // milliseconds
}

var deviceWaitTimestampLayout = layout{u32, u32}

// SizeBytes implements Params.SizeBytes.
func (DeviceWaitTimestamp) SizeBytes(a Arch) int { return deviceWaitTimestampLayout.size(a) }

// UnmarshalBytes decodes p from b.
func (p *DeviceWaitTimestamp) UnmarshalBytes(a Arch, b []byte) error {
	v, err := deviceWaitTimestampLayout.decode(a, b)
	if err != nil {
		return err
	}
	p.Timestamp = uint32(v[0])
	p.Timeout = uint32(v[1])
	return nil
}

// MarshalBytes encodes p.
func (p *DeviceWaitTimestamp) MarshalBytes(a Arch) []byte {
	return deviceWaitTimestampLayout.encode(a, uint64(p.Timestamp), uint64(p.Timeout))
}

// IBDesc is struct kgsl_ibdesc.
type IBDesc struct {
	GPUAddr    uint64
	HostPtr    uint64 // void *
	SizeDwords uint32
	Ctrl       uint32
}

var ibDescLayout = layout{word, word, u32, u32}

// SizeBytes implements Params.SizeBytes.
func (IBDesc) SizeBytes(a Arch) int { return ibDescLayout.size(a) }

// UnmarshalBytes decodes p from b.
func (p *IBDesc) UnmarshalBytes(a Arch, b []byte) error {
	v, err := ibDescLayout.decode(a, b)
	if err != nil {
		return err
	}
	p.GPUAddr = v[0]
	p.HostPtr = v[1]
	p.SizeDwords = uint32(v[2])
	p.Ctrl = uint32(v[3])
	return nil
}

// MarshalBytes encodes p.
func (p *IBDesc) MarshalBytes(a Arch) []byte {
	return ibDescLayout.encode(a, p.GPUAddr, p.HostPtr, uint64(p.SizeDwords), uint64(p.Ctrl))
}

// RingbufferIssueIBCmds is struct kgsl_ringbuffer_issueibcmds.
type RingbufferIssueIBCmds struct {
	DrawctxtID uint32
	IBDescAddr uint64 // struct kgsl_ibdesc *
	NumIBs     uint32
	Timestamp  uint32 // output
	Flags      uint32
}

var ringbufferIssueIBCmdsLayout = layout{u32, word, u32, u32, u32}

// SizeBytes implements Params.SizeBytes.
func (RingbufferIssueIBCmds) SizeBytes(a Arch) int { return ringbufferIssueIBCmdsLayout.size(a) }

// UnmarshalBytes decodes p from b.
func (p *RingbufferIssueIBCmds) UnmarshalBytes(a Arch, b []byte) error {
	v, err := ringbufferIssueIBCmdsLayout.decode(a, b)
	if err != nil {
		return err
	}
	p.DrawctxtID = uint32(v[0])
	p.IBDescAddr = v[1]
	p.NumIBs = uint32(v[2])
	p.Timestamp = uint32(v[3])
	p.Flags = uint32(v[4])
	return nil
}

// MarshalBytes encodes p.
func (p *RingbufferIssueIBCmds) MarshalBytes(a Arch) []byte {
	return ringbufferIssueIBCmdsLayout.encode(a, uint64(p.DrawctxtID), p.IBDescAddr, uint64(p.NumIBs), uint64(p.Timestamp), uint64(p.Flags))
}

// CmdstreamReadTimestamp is struct kgsl_cmdstream_readtimestamp.
type CmdstreamReadTimestamp struct {
	Type      uint32
	Timestamp uint32 // output
}

var cmdstreamReadTimestampLayout = layout{u32, u32}

// SizeBytes implements Params.SizeBytes.
func (CmdstreamReadTimestamp) SizeBytes(a Arch) int { return cmdstreamReadTimestampLayout.size(a) }

// UnmarshalBytes decodes p from b.
func (p *CmdstreamReadTimestamp) UnmarshalBytes(a Arch, b []byte) error {
	v, err := cmdstreamReadTimestampLayout.decode(a, b)
	if err != nil {
		return err
	}
	p.Type = uint32(v[0])
	p.Timestamp = uint32(v[1])
	return nil
}

// MarshalBytes encodes p.
func (p *CmdstreamReadTimestamp) MarshalBytes(a Arch) []byte {
	return cmdstreamReadTimestampLayout.encode(a, uint64(p.Type), uint64(p.Timestamp))
}

// CmdstreamFreememOnTimestamp is struct kgsl_cmdstream_freememontimestamp.
type CmdstreamFreememOnTimestamp struct {
	GPUAddr   uint64
	Type      uint32
	Timestamp uint32
}

var cmdstreamFreememOnTimestampLayout = layout{word, u32, u32}

// SizeBytes implements Params.SizeBytes.
func (CmdstreamFreememOnTimestamp) SizeBytes(a Arch) int { return cmdstreamFreememOnTimestampLayout.size(a) }

// UnmarshalBytes decodes p from b.
func (p *CmdstreamFreememOnTimestamp) UnmarshalBytes(a Arch, b []byte) error {
	v, err := cmdstreamFreememOnTimestampLayout.decode(a, b)
	if err != nil {
		return err
	}
	p.GPUAddr = v[0]
	p.Type = uint32(v[1])
	p.Timestamp = uint32(v[2])
	return nil
}

// MarshalBytes encodes p.
func (p *CmdstreamFreememOnTimestamp) MarshalBytes(a Arch) []byte {
	return cmdstreamFreememOnTimestampLayout.encode(a, p.GPUAddr, uint64(p.Type), uint64(p.Timestamp))
}

// DrawctxtCreate is struct kgsl_drawctxt_create.
type DrawctxtCreate struct {
	Flags      uint32
	DrawctxtID uint32 // output
}

var drawctxtCreateLayout = layout{u32, u32}

// SizeBytes implements Params.SizeBytes.
func (DrawctxtCreate) SizeBytes(a Arch) int { return drawctxtCreateLayout.size(a) }

// UnmarshalBytes decodes p from b.
func (p *DrawctxtCreate) UnmarshalBytes(a Arch, b []byte) error {
	v, err := drawctxtCreateLayout.decode(a, b)
	if err != nil {
		return err
	}
	p.Flags = uint32(v[0])
	p.DrawctxtID = uint32(v[1])
	return nil
}

// MarshalBytes encodes p.
func (p *DrawctxtCreate) MarshalBytes(a Arch) []byte {
	return drawctxtCreateLayout.encode(a, uint64(p.Flags), uint64(p.DrawctxtID))
}

// DrawctxtDestroy is struct kgsl_drawctxt_destroy.
type DrawctxtDestroy struct {
	DrawctxtID uint32
}

var drawctxtDestroyLayout = layout{u32}

// SizeBytes implements Params.SizeBytes.
func (DrawctxtDestroy) SizeBytes(a Arch) int { return drawctxtDestroyLayout.size(a) }

// UnmarshalBytes decodes p from b.
func (p *DrawctxtDestroy) UnmarshalBytes(a Arch, b []byte) error {
	v, err := drawctxtDestroyLayout.decode(a, b)
	if err != nil {
		return err
	}
	p.DrawctxtID = uint32(v[0])
	return nil
}

// MarshalBytes encodes p.
func (p *DrawctxtDestroy) MarshalBytes(a Arch) []byte {
	return drawctxtDestroyLayout.encode(a, uint64(p.DrawctxtID))
}

// MapUserMem is struct kgsl_map_user_mem.
type MapUserMem struct {
	FD       uint32
	GPUAddr  uint64 // output
	Len      uint64
	Offset   uint64
	HostPtr  uint64
	MemType  uint32
	Reserved uint32
}

var mapUserMemLayout = layout{u32, word, word, word, word, u32, u32}

// SizeBytes implements Params.SizeBytes.
func (MapUserMem) SizeBytes(a Arch) int { return mapUserMemLayout.size(a) }

// UnmarshalBytes decodes p from b.
func (p *MapUserMem) UnmarshalBytes(a Arch, b []byte) error {
	v, err := mapUserMemLayout.decode(a, b)
	if err != nil {
		return err
	}
	p.FD = uint32(v[0])
	p.GPUAddr = v[1]
	p.Len = v[2]
	p.Offset = v[3]
	p.HostPtr = v[4]
	p.MemType = uint32(v[5])
	p.Reserved = uint32(v[6])
	return nil
}

// MarshalBytes encodes p.
func (p *MapUserMem) MarshalBytes(a Arch) []byte {
	return mapUserMemLayout.encode(a, uint64(p.FD), p.GPUAddr, p.Len, p.Offset, p.HostPtr, uint64(p.MemType), uint64(p.Reserved))
}

// SharedmemFromPmem is struct kgsl_sharedmem_from_pmem.
type SharedmemFromPmem struct {
	PmemFD  uint32
	GPUAddr uint64 // output
	Len     uint32
	Offset  uint32
}

var sharedmemFromPmemLayout = layout{u32, word, u32, u32}

// SizeBytes implements Params.SizeBytes.
func (SharedmemFromPmem) SizeBytes(a Arch) int { return sharedmemFromPmemLayout.size(a) }

// UnmarshalBytes decodes p from b.
func (p *SharedmemFromPmem) UnmarshalBytes(a Arch, b []byte) error {
	v, err := sharedmemFromPmemLayout.decode(a, b)
	if err != nil {
		return err
	}
	p.PmemFD = uint32(v[0])
	p.GPUAddr = v[1]
	p.Len = uint32(v[2])
	p.Offset = uint32(v[3])
	return nil
}

// MarshalBytes encodes p.
func (p *SharedmemFromPmem) MarshalBytes(a Arch) []byte {
	return sharedmemFromPmemLayout.encode(a, uint64(p.PmemFD), p.GPUAddr, uint64(p.Len), uint64(p.Offset))
}

// SharedmemFree is struct kgsl_sharedmem_free.
type SharedmemFree struct {
	GPUAddr uint64
}

var sharedmemFreeLayout = layout{word}

// SizeBytes implements Params.SizeBytes.
func (SharedmemFree) SizeBytes(a Arch) int { return sharedmemFreeLayout.size(a) }

// UnmarshalBytes decodes p from b.
func (p *SharedmemFree) UnmarshalBytes(a Arch, b []byte) error {
	v, err := sharedmemFreeLayout.decode(a, b)
	if err != nil {
		return err
	}
	p.GPUAddr = v[0]
	return nil
}

// MarshalBytes encodes p.
func (p *SharedmemFree) MarshalBytes(a Arch) []byte {
	return sharedmemFreeLayout.encode(a, p.GPUAddr)
}

// SharedmemFromVmalloc is struct kgsl_sharedmem_from_vmalloc.
type SharedmemFromVmalloc struct {
	GPUAddr uint64 // length on input, GPU address on output
	HostPtr uint64
	Flags   uint32
}

var sharedmemFromVmallocLayout = layout{word, word, u32}

// SizeBytes implements Params.SizeBytes.
func (SharedmemFromVmalloc) SizeBytes(a Arch) int { return sharedmemFromVmallocLayout.size(a) }

// UnmarshalBytes decodes p from b.
func (p *SharedmemFromVmalloc) UnmarshalBytes(a Arch, b []byte) error {
	v, err := sharedmemFromVmallocLayout.decode(a, b)
	if err != nil {
		return err
	}
	p.GPUAddr = v[0]
	p.HostPtr = v[1]
	p.Flags = uint32(v[2])
	return nil
}

// MarshalBytes encodes p.
func (p *SharedmemFromVmalloc) MarshalBytes(a Arch) []byte {
	return sharedmemFromVmallocLayout.encode(a, p.GPUAddr, p.HostPtr, uint64(p.Flags))
}

// GPUMemAlloc is struct kgsl_gpumem_alloc.
type GPUMemAlloc struct {
	GPUAddr uint64 // output
	Size    uint64 // size_t
	Flags   uint32
}

var gpuMemAllocLayout = layout{word, word, u32}

// SizeBytes implements Params.SizeBytes.
func (GPUMemAlloc) SizeBytes(a Arch) int { return gpuMemAllocLayout.size(a) }

// UnmarshalBytes decodes p from b.
func (p *GPUMemAlloc) UnmarshalBytes(a Arch, b []byte) error {
	v, err := gpuMemAllocLayout.decode(a, b)
	if err != nil {
		return err
	}
	p.GPUAddr = v[0]
	p.Size = v[1]
	p.Flags = uint32(v[2])
	return nil
}

// MarshalBytes encodes p.
func (p *GPUMemAlloc) MarshalBytes(a Arch) []byte {
	return gpuMemAllocLayout.encode(a, p.GPUAddr, p.Size, uint64(p.Flags))
}

// DrawctxtSetBinBaseOffset is struct kgsl_drawctxt_set_bin_base_offset.
type DrawctxtSetBinBaseOffset struct {
	DrawctxtID uint32
	Offset     uint32
}

var drawctxtSetBinBaseOffsetLayout = layout{u32, u32}

// SizeBytes implements Params.SizeBytes.
func (DrawctxtSetBinBaseOffset) SizeBytes(a Arch) int { return drawctxtSetBinBaseOffsetLayout.size(a) }

// UnmarshalBytes decodes p from b.
func (p *DrawctxtSetBinBaseOffset) UnmarshalBytes(a Arch, b []byte) error {
	v, err := drawctxtSetBinBaseOffsetLayout.decode(a, b)
	if err != nil {
		return err
	}
	p.DrawctxtID = uint32(v[0])
	p.Offset = uint32(v[1])
	return nil
}

// MarshalBytes encodes p.
func (p *DrawctxtSetBinBaseOffset) MarshalBytes(a Arch) []byte {
	return drawctxtSetBinBaseOffsetLayout.encode(a, uint64(p.DrawctxtID), uint64(p.Offset))
}

// CFFSyncmem is struct kgsl_cff_syncmem.
type CFFSyncmem struct {
	GPUAddr uint64
	Len     uint64
}

var cffSyncmemLayout = layout{word, word}

// SizeBytes implements Params.SizeBytes.
func (CFFSyncmem) SizeBytes(a Arch) int { return cffSyncmemLayout.size(a) }

// UnmarshalBytes decodes p from b.
func (p *CFFSyncmem) UnmarshalBytes(a Arch, b []byte) error {
	v, err := cffSyncmemLayout.decode(a, b)
	if err != nil {
		return err
	}
	p.GPUAddr = v[0]
	p.Len = v[1]
	return nil
}

// MarshalBytes encodes p.
func (p *CFFSyncmem) MarshalBytes(a Arch) []byte {
	return cffSyncmemLayout.encode(a, p.GPUAddr, p.Len)
}

// CFFUserEvent is struct kgsl_cff_user_event.
type CFFUserEvent struct {
	Opcode uint32 // unsigned char, padded
	Op1    uint32
	Op2    uint32
	Op3    uint32
	Op4    uint32
	Op5    uint32
	Pad0   uint32
	Pad1   uint32
}

var cffUserEventLayout = layout{u32, u32, u32, u32, u32, u32, u32, u32}

// SizeBytes implements Params.SizeBytes.
func (CFFUserEvent) SizeBytes(a Arch) int { return cffUserEventLayout.size(a) }

// UnmarshalBytes decodes p from b.
func (p *CFFUserEvent) UnmarshalBytes(a Arch, b []byte) error {
	v, err := cffUserEventLayout.decode(a, b)
	if err != nil {
		return err
	}
	p.Opcode = uint32(v[0])
	p.Op1 = uint32(v[1])
	p.Op2 = uint32(v[2])
	p.Op3 = uint32(v[3])
	p.Op4 = uint32(v[4])
	p.Op5 = uint32(v[5])
	p.Pad0 = uint32(v[6])
	p.Pad1 = uint32(v[7])
	return nil
}

// MarshalBytes encodes p.
func (p *CFFUserEvent) MarshalBytes(a Arch) []byte {
	return cffUserEventLayout.encode(a, uint64(p.Opcode), uint64(p.Op1), uint64(p.Op2), uint64(p.Op3), uint64(p.Op4), uint64(p.Op5), uint64(p.Pad0), uint64(p.Pad1))
}

// TimestampEvent is struct kgsl_timestamp_event.
type TimestampEvent struct {
	Type      uint32
	Timestamp uint32
	ContextID uint32
	Priv      uint64 // void *
	Len       uint64 // size_t
}

var timestampEventLayout = layout{u32, u32, u32, word, word}

// SizeBytes implements Params.SizeBytes.
func (TimestampEvent) SizeBytes(a Arch) int { return timestampEventLayout.size(a) }

// UnmarshalBytes decodes p from b.
func (p *TimestampEvent) UnmarshalBytes(a Arch, b []byte) error {
	v, err := timestampEventLayout.decode(a, b)
	if err != nil {
		return err
	}
	p.Type = uint32(v[0])
	p.Timestamp = uint32(v[1])
	p.ContextID = uint32(v[2])
	p.Priv = v[3]
	p.Len = v[4]
	return nil
}

// MarshalBytes encodes p.
func (p *TimestampEvent) MarshalBytes(a Arch) []byte {
	return timestampEventLayout.encode(a, uint64(p.Type), uint64(p.Timestamp), uint64(p.ContextID), p.Priv, p.Len)
}
