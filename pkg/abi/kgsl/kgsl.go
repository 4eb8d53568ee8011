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

// Package kgsl contains definitions for the Qualcomm KGSL GPU driver ABI
// (include/linux/msm_kgsl.h) and the Android PMEM allocator ABI
// (include/linux/android_pmem.h), as used by the Adreno 3D core and the Z180
// 2D/vector core.
package kgsl

import (
	"fmt"

	"github.com/freedreno/kgslwrap/pkg/abi/linux"
)

// KGSL_IOC_TYPE is the ioctl type (magic) of all KGSL ioctls.
const KGSL_IOC_TYPE = 0x09

// KGSL ioctl command numbers, i.e. IOC_NR of the request.
const (
	NR_DEVICE_GETPROPERTY           = 0x02
	NR_DEVICE_WAITTIMESTAMP         = 0x06
	NR_RINGBUFFER_ISSUEIBCMDS       = 0x10
	NR_CMDSTREAM_READTIMESTAMP      = 0x11
	NR_CMDSTREAM_FREEMEMONTIMESTAMP = 0x12
	NR_DRAWCTXT_CREATE              = 0x13
	NR_DRAWCTXT_DESTROY             = 0x14
	NR_MAP_USER_MEM                 = 0x15
	NR_SHAREDMEM_FROM_PMEM          = 0x20
	NR_SHAREDMEM_FREE               = 0x21
	NR_SHAREDMEM_FROM_VMALLOC       = 0x23
	NR_SHAREDMEM_FLUSH_CACHE        = 0x24
	NR_DRAWCTXT_SET_BIN_BASE_OFFSET = 0x25
	NR_GPUMEM_ALLOC                 = 0x2f
	NR_CFF_SYNCMEM                  = 0x30
	NR_CFF_USER_EVENT               = 0x31
	NR_TIMESTAMP_EVENT              = 0x33
)

// KGSL device properties, used by DEVICE_GETPROPERTY.
const (
	KGSL_PROP_DEVICE_INFO     = 0x1
	KGSL_PROP_DEVICE_SHADOW   = 0x2
	KGSL_PROP_DEVICE_POWER    = 0x3
	KGSL_PROP_SHMEM           = 0x4
	KGSL_PROP_SHMEM_APERTURES = 0x5
	KGSL_PROP_MMU_ENABLE      = 0x6
	KGSL_PROP_INTERRUPT_WAITS = 0x7
	KGSL_PROP_VERSION         = 0x8
	KGSL_PROP_GPU_RESET_STAT  = 0x9
)

var propNames = map[uint32]string{
	KGSL_PROP_DEVICE_INFO:     "KGSL_PROP_DEVICE_INFO",
	KGSL_PROP_DEVICE_SHADOW:   "KGSL_PROP_DEVICE_SHADOW",
	KGSL_PROP_DEVICE_POWER:    "KGSL_PROP_DEVICE_POWER",
	KGSL_PROP_SHMEM:           "KGSL_PROP_SHMEM",
	KGSL_PROP_SHMEM_APERTURES: "KGSL_PROP_SHMEM_APERTURES",
	KGSL_PROP_MMU_ENABLE:      "KGSL_PROP_MMU_ENABLE",
	KGSL_PROP_INTERRUPT_WAITS: "KGSL_PROP_INTERRUPT_WAITS",
	KGSL_PROP_VERSION:         "KGSL_PROP_VERSION",
	KGSL_PROP_GPU_RESET_STAT:  "KGSL_PROP_GPU_RESET_STAT",
}

// PropName returns the name of a device property, or a placeholder if the
// property is not known.
func PropName(prop uint32) string {
	if name, ok := propNames[prop]; ok {
		return name
	}
	return fmt.Sprintf("<unknown property %#x>", prop)
}

// UnknownIoctl is the name printed for command numbers missing from a
// DeviceInfo.
const UnknownIoctl = "<unknown>"

// IoctlInfo describes one ioctl of a device.
type IoctlInfo struct {
	// Name is the name of the request macro in the driver headers.
	Name string

	// Type and NR are the request's IOC_TYPE and IOC_NR.
	Type uint32
	NR   uint32

	// Dir is the request's IOC_DIR.
	Dir uint32

	// Params is the argument struct, used to compute the request's size
	// for a given ABI. It may be nil for requests with a scalar argument.
	Params Params

	// ScalarSize is the argument size of requests without a Params struct.
	ScalarSize uint32
}

// Request returns the full ioctl request value on the given ABI.
func (i IoctlInfo) Request(a Arch) uint32 {
	size := i.ScalarSize
	if i.Params != nil {
		size = uint32(i.Params.SizeBytes(a))
	}
	return linux.IOC(i.Dir, i.Type, i.NR, size)
}

// DeviceInfo names a driver device and its ioctls.
type DeviceInfo struct {
	Name   string
	Ioctls map[uint32]IoctlInfo
}

// IoctlName returns the name of the command number nr, or UnknownIoctl.
func (d *DeviceInfo) IoctlName(nr uint32) string {
	if info, ok := d.Ioctls[nr]; ok {
		return info.Name
	}
	return UnknownIoctl
}

// Lookup returns the IoctlInfo for nr.
func (d *DeviceInfo) Lookup(nr uint32) (IoctlInfo, bool) {
	info, ok := d.Ioctls[nr]
	return info, ok
}

func kgslIoctl(name string, dir, nr uint32, p Params) IoctlInfo {
	return IoctlInfo{Name: name, Type: KGSL_IOC_TYPE, NR: nr, Dir: dir, Params: p}
}

// kgslCommon are the ioctls shared by all KGSL devices.
func kgslCommon() map[uint32]IoctlInfo {
	const (
		w  = linux.IOC_WRITE
		r  = linux.IOC_READ
		rw = linux.IOC_READ | linux.IOC_WRITE
	)
	return map[uint32]IoctlInfo{
		NR_DEVICE_GETPROPERTY:           kgslIoctl("IOCTL_KGSL_DEVICE_GETPROPERTY", rw, NR_DEVICE_GETPROPERTY, DeviceGetProperty{}),
		NR_DEVICE_WAITTIMESTAMP:         kgslIoctl("IOCTL_KGSL_DEVICE_WAITTIMESTAMP", w, NR_DEVICE_WAITTIMESTAMP, DeviceWaitTimestamp{}),
		NR_RINGBUFFER_ISSUEIBCMDS:       kgslIoctl("IOCTL_KGSL_RINGBUFFER_ISSUEIBCMDS", rw, NR_RINGBUFFER_ISSUEIBCMDS, RingbufferIssueIBCmds{}),
		NR_CMDSTREAM_READTIMESTAMP:      kgslIoctl("IOCTL_KGSL_CMDSTREAM_READTIMESTAMP", r, NR_CMDSTREAM_READTIMESTAMP, CmdstreamReadTimestamp{}),
		NR_CMDSTREAM_FREEMEMONTIMESTAMP: kgslIoctl("IOCTL_KGSL_CMDSTREAM_FREEMEMONTIMESTAMP", w, NR_CMDSTREAM_FREEMEMONTIMESTAMP, CmdstreamFreememOnTimestamp{}),
		NR_DRAWCTXT_CREATE:              kgslIoctl("IOCTL_KGSL_DRAWCTXT_CREATE", rw, NR_DRAWCTXT_CREATE, DrawctxtCreate{}),
		NR_DRAWCTXT_DESTROY:             kgslIoctl("IOCTL_KGSL_DRAWCTXT_DESTROY", w, NR_DRAWCTXT_DESTROY, DrawctxtDestroy{}),
		NR_MAP_USER_MEM:                 kgslIoctl("IOCTL_KGSL_MAP_USER_MEM", rw, NR_MAP_USER_MEM, MapUserMem{}),
		NR_SHAREDMEM_FROM_PMEM:          kgslIoctl("IOCTL_KGSL_SHAREDMEM_FROM_PMEM", rw, NR_SHAREDMEM_FROM_PMEM, SharedmemFromPmem{}),
		NR_SHAREDMEM_FREE:               kgslIoctl("IOCTL_KGSL_SHAREDMEM_FREE", w, NR_SHAREDMEM_FREE, SharedmemFree{}),
		NR_SHAREDMEM_FROM_VMALLOC:       kgslIoctl("IOCTL_KGSL_SHAREDMEM_FROM_VMALLOC", rw, NR_SHAREDMEM_FROM_VMALLOC, SharedmemFromVmalloc{}),
		NR_SHAREDMEM_FLUSH_CACHE:        kgslIoctl("IOCTL_KGSL_SHAREDMEM_FLUSH_CACHE", w, NR_SHAREDMEM_FLUSH_CACHE, SharedmemFree{}),
		NR_GPUMEM_ALLOC:                 kgslIoctl("IOCTL_KGSL_GPUMEM_ALLOC", rw, NR_GPUMEM_ALLOC, GPUMemAlloc{}),
		NR_CFF_SYNCMEM:                  kgslIoctl("IOCTL_KGSL_CFF_SYNCMEM", w, NR_CFF_SYNCMEM, CFFSyncmem{}),
		NR_CFF_USER_EVENT:               kgslIoctl("IOCTL_KGSL_CFF_USER_EVENT", w, NR_CFF_USER_EVENT, CFFUserEvent{}),
		NR_TIMESTAMP_EVENT:              kgslIoctl("IOCTL_KGSL_TIMESTAMP_EVENT", rw, NR_TIMESTAMP_EVENT, TimestampEvent{}),
	}
}

// KGSL3DInfo describes /dev/kgsl-3d*, the Adreno 3D core.
var KGSL3DInfo = func() *DeviceInfo {
	ioctls := kgslCommon()
	ioctls[NR_DRAWCTXT_SET_BIN_BASE_OFFSET] = kgslIoctl("IOCTL_KGSL_DRAWCTXT_SET_BIN_BASE_OFFSET", linux.IOC_WRITE, NR_DRAWCTXT_SET_BIN_BASE_OFFSET, DrawctxtSetBinBaseOffset{})
	return &DeviceInfo{Name: "kgsl-3d", Ioctls: ioctls}
}()

// KGSL2DInfo describes /dev/kgsl-2d*, the Z180 2D/vector core. It has no
// ioctls of its own.
var KGSL2DInfo = &DeviceInfo{Name: "kgsl-2d", Ioctls: kgslCommon()}
