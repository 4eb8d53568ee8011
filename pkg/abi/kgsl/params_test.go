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
	"testing"

	"github.com/freedreno/kgslwrap/pkg/abi/linux"
	"github.com/google/go-cmp/cmp"
)

func TestSizes(t *testing.T) {
	for _, tc := range []struct {
		name   string
		p      Params
		size32 int
		size64 int
	}{
		{"DeviceGetProperty", DeviceGetProperty{}, 12, 24},
		{"DeviceWaitTimestamp", DeviceWaitTimestamp{}, 8, 8},
		{"IBDesc", IBDesc{}, 16, 24},
		{"RingbufferIssueIBCmds", RingbufferIssueIBCmds{}, 20, 32},
		{"CmdstreamFreememOnTimestamp", CmdstreamFreememOnTimestamp{}, 12, 16},
		{"DrawctxtDestroy", DrawctxtDestroy{}, 4, 4},
		{"MapUserMem", MapUserMem{}, 28, 48},
		{"SharedmemFree", SharedmemFree{}, 4, 8},
		{"SharedmemFromVmalloc", SharedmemFromVmalloc{}, 12, 24},
		{"GPUMemAlloc", GPUMemAlloc{}, 12, 24},
		{"CFFUserEvent", CFFUserEvent{}, 32, 32},
		{"TimestampEvent", TimestampEvent{}, 20, 32},
		{"PmemRegion", PmemRegion{}, 8, 16},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.p.SizeBytes(Arch32); got != tc.size32 {
				t.Errorf("SizeBytes(Arch32) = %d, want %d", got, tc.size32)
			}
			if got := tc.p.SizeBytes(Arch64); got != tc.size64 {
				t.Errorf("SizeBytes(Arch64) = %d, want %d", got, tc.size64)
			}
		})
	}
}

func TestDecodeIBDesc(t *testing.T) {
	b := make([]byte, 16)
	binary.LittleEndian.PutUint32(b[0:], 0x66000000)
	binary.LittleEndian.PutUint32(b[4:], 0x40001000)
	binary.LittleEndian.PutUint32(b[8:], 0x100)
	binary.LittleEndian.PutUint32(b[12:], 0)

	got, err := Decode[IBDesc](Arch32, b)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	want := IBDesc{GPUAddr: 0x66000000, HostPtr: 0x40001000, SizeDwords: 0x100}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Decode returned unexpected result (-want +got):\n%s", diff)
	}
}

func TestDecodeAlignment(t *testing.T) {
	want := RingbufferIssueIBCmds{
		DrawctxtID: 3,
		IBDescAddr: 0x7f0000001000,
		NumIBs:     1,
		Timestamp:  0x55,
		Flags:      2,
	}
	b := want.MarshalBytes(Arch64)
	if len(b) != 32 {
		t.Fatalf("MarshalBytes returned %d bytes, want 32", len(b))
	}
	// The pointer is aligned to 8 bytes on LP64.
	if got := binary.LittleEndian.Uint64(b[8:]); got != want.IBDescAddr {
		t.Errorf("ibdesc_addr at offset 8 = %#x, want %#x", got, want.IBDescAddr)
	}
	got, err := Decode[RingbufferIssueIBCmds](Arch64, b)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Decode returned unexpected result (-want +got):\n%s", diff)
	}
}

func TestDecodeShort(t *testing.T) {
	if _, err := Decode[GPUMemAlloc](Arch32, make([]byte, 8)); err == nil {
		t.Errorf("Decode of a short block succeeded, want error")
	}
}

func TestRequests(t *testing.T) {
	for _, tc := range []struct {
		name string
		dev  *DeviceInfo
		nr   uint32
		arch Arch
		want uint32
	}{
		{"gpumem_alloc", KGSL3DInfo, NR_GPUMEM_ALLOC, Arch32, 0xc00c092f},
		{"sharedmem_free", KGSL3DInfo, NR_SHAREDMEM_FREE, Arch32, 0x40040921},
		{"issueibcmds", KGSL2DInfo, NR_RINGBUFFER_ISSUEIBCMDS, Arch32, 0xc0140910},
		{"pmem_get_size", PMEMInfo, NR_PMEM_GET_SIZE, Arch32, linux.IOW('p', 3, 4)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			info, ok := tc.dev.Lookup(tc.nr)
			if !ok {
				t.Fatalf("Lookup(%#x) failed", tc.nr)
			}
			if got := info.Request(tc.arch); got != tc.want {
				t.Errorf("Request = %#x, want %#x", got, tc.want)
			}
		})
	}
}

func TestNames(t *testing.T) {
	if got, want := KGSL3DInfo.IoctlName(NR_DRAWCTXT_SET_BIN_BASE_OFFSET), "IOCTL_KGSL_DRAWCTXT_SET_BIN_BASE_OFFSET"; got != want {
		t.Errorf("IoctlName = %q, want %q", got, want)
	}
	if got := KGSL2DInfo.IoctlName(NR_DRAWCTXT_SET_BIN_BASE_OFFSET); got != UnknownIoctl {
		t.Errorf("IoctlName on kgsl-2d = %q, want %q", got, UnknownIoctl)
	}
	if got, want := PropName(KGSL_PROP_VERSION), "KGSL_PROP_VERSION"; got != want {
		t.Errorf("PropName = %q, want %q", got, want)
	}
	if got, want := PropName(0x42), "<unknown property 0x42>"; got != want {
		t.Errorf("PropName = %q, want %q", got, want)
	}
}

func TestZ180(t *testing.T) {
	if Z180_PACKETSIZE_STATESTREAM != 0x140 {
		t.Errorf("Z180_PACKETSIZE_STATESTREAM = %#x, want 0x140", Z180_PACKETSIZE_STATESTREAM)
	}
	if got := Z180CmdWords(0x12345003); got != 10 {
		t.Errorf("Z180CmdWords = %d, want 10", got)
	}
}
