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

import "github.com/freedreno/kgslwrap/pkg/abi/linux"

// PMEM_IOCTL_MAGIC is the ioctl type of the Android PMEM allocator.
const PMEM_IOCTL_MAGIC = 'p'

// PMEM ioctl command numbers.
const (
	NR_PMEM_GET_PHYS           = 1
	NR_PMEM_MAP                = 2
	NR_PMEM_GET_SIZE           = 3
	NR_PMEM_UNMAP              = 4
	NR_PMEM_ALLOCATE           = 5
	NR_PMEM_CONNECT            = 6
	NR_PMEM_GET_TOTAL_SIZE     = 7
	NR_HW3D_REVOKE_GPU         = 8
	NR_HW3D_GRANT_GPU          = 9
	NR_HW3D_WAIT_FOR_INTERRUPT = 10
	NR_PMEM_CLEAN_INV_CACHES   = 11
	NR_PMEM_CLEAN_CACHES       = 12
	NR_PMEM_INV_CACHES         = 13
	NR_PMEM_GET_FREE_SPACE     = 14
	NR_PMEM_ALLOCATE_ALIGNED   = 15
)

// PmemRegion is struct pmem_region.
type PmemRegion struct {
	Offset uint64
	Len    uint64
}

var pmemRegionLayout = layout{word, word}

// SizeBytes implements Params.SizeBytes.
func (PmemRegion) SizeBytes(a Arch) int { return pmemRegionLayout.size(a) }

// UnmarshalBytes decodes p from b.
func (p *PmemRegion) UnmarshalBytes(a Arch, b []byte) error {
	v, err := pmemRegionLayout.decode(a, b)
	if err != nil {
		return err
	}
	p.Offset = v[0]
	p.Len = v[1]
	return nil
}

// MarshalBytes encodes p.
func (p *PmemRegion) MarshalBytes(a Arch) []byte {
	return pmemRegionLayout.encode(a, p.Offset, p.Len)
}

func pmemIoctl(name string, dir, nr uint32, p Params, scalar uint32) IoctlInfo {
	return IoctlInfo{Name: name, Type: PMEM_IOCTL_MAGIC, NR: nr, Dir: dir, Params: p, ScalarSize: scalar}
}

// PMEMInfo describes /dev/pmem_gpu*, the legacy shared memory device.
var PMEMInfo = func() *DeviceInfo {
	const (
		w = linux.IOC_WRITE
		r = linux.IOC_READ
	)
	return &DeviceInfo{
		Name: "pmem-gpu",
		Ioctls: map[uint32]IoctlInfo{
			NR_PMEM_GET_PHYS:           pmemIoctl("PMEM_GET_PHYS", w, NR_PMEM_GET_PHYS, nil, 4),
			NR_PMEM_MAP:                pmemIoctl("PMEM_MAP", w, NR_PMEM_MAP, nil, 4),
			NR_PMEM_GET_SIZE:           pmemIoctl("PMEM_GET_SIZE", w, NR_PMEM_GET_SIZE, nil, 4),
			NR_PMEM_UNMAP:              pmemIoctl("PMEM_UNMAP", w, NR_PMEM_UNMAP, nil, 4),
			NR_PMEM_ALLOCATE:           pmemIoctl("PMEM_ALLOCATE", w, NR_PMEM_ALLOCATE, nil, 4),
			NR_PMEM_CONNECT:            pmemIoctl("PMEM_CONNECT", w, NR_PMEM_CONNECT, nil, 4),
			NR_PMEM_GET_TOTAL_SIZE:     pmemIoctl("PMEM_GET_TOTAL_SIZE", w, NR_PMEM_GET_TOTAL_SIZE, nil, 4),
			NR_HW3D_REVOKE_GPU:         pmemIoctl("HW3D_REVOKE_GPU", w, NR_HW3D_REVOKE_GPU, nil, 4),
			NR_HW3D_GRANT_GPU:          pmemIoctl("HW3D_GRANT_GPU", w, NR_HW3D_GRANT_GPU, nil, 4),
			NR_HW3D_WAIT_FOR_INTERRUPT: pmemIoctl("HW3D_WAIT_FOR_INTERRUPT", w, NR_HW3D_WAIT_FOR_INTERRUPT, nil, 4),
			NR_PMEM_CLEAN_INV_CACHES:   pmemIoctl("PMEM_CLEAN_INV_CACHES", r, NR_PMEM_CLEAN_INV_CACHES, PmemRegion{}, 0),
			NR_PMEM_CLEAN_CACHES:       pmemIoctl("PMEM_CLEAN_CACHES", r, NR_PMEM_CLEAN_CACHES, PmemRegion{}, 0),
			NR_PMEM_INV_CACHES:         pmemIoctl("PMEM_INV_CACHES", r, NR_PMEM_INV_CACHES, PmemRegion{}, 0),
			NR_PMEM_GET_FREE_SPACE:     pmemIoctl("PMEM_GET_FREE_SPACE", r, NR_PMEM_GET_FREE_SPACE, PmemRegion{}, 0),
			NR_PMEM_ALLOCATE_ALIGNED:   pmemIoctl("PMEM_ALLOCATE_ALIGNED", w, NR_PMEM_ALLOCATE_ALIGNED, nil, 8),
		},
	}
}()
