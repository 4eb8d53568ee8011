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

// Package gpubuf tracks GPU buffer objects observed through driver traffic.
//
// A Buffer is usually learned about in pieces: the allocation request gives
// its length and flags, the ioctl result gives its GPU address, and a later
// mmap(2) gives its host address. Lookups are by containment, since addresses
// found in command streams commonly point into the middle of a buffer.
package gpubuf

import (
	"errors"
	"fmt"
	"math"

	"github.com/google/btree"
)

// ErrOverlap is returned when setting an address makes a buffer overlap
// another live buffer in the same address space. The KGSL driver never hands
// out overlapping ranges, so this indicates a tracking bug.
var ErrOverlap = errors.New("overlapping buffer")

// Buffer is a tracked GPU buffer object.
//
// Zero addresses are unset. Fields must only be modified through the
// Registry that owns the buffer.
type Buffer struct {
	// HostAddr is the start of the buffer's mapping in the traced process.
	HostAddr uint64

	// GPUAddr is the start of the buffer in the GPU address space.
	GPUAddr uint64

	// Len is the length of the buffer in bytes.
	Len uint64

	// Flags are the allocation flags passed to the driver.
	Flags uint32

	// seq orders buffers by registration.
	seq uint64
}

// String implements fmt.Stringer.
func (b *Buffer) String() string {
	return fmt.Sprintf("{gpuaddr=%#x host=%#x len=%#x flags=%#x}", b.GPUAddr, b.HostAddr, b.Len, b.Flags)
}

// ContainsGPU returns true if addr falls within the buffer's GPU range.
func (b *Buffer) ContainsGPU(addr uint64) bool {
	return contains(b.GPUAddr, b.Len, addr)
}

// ContainsHost returns true if addr falls within the buffer's host range.
func (b *Buffer) ContainsHost(addr uint64) bool {
	return contains(b.HostAddr, b.Len, addr)
}

// HostFor translates a GPU address inside the buffer to the matching host
// address. ok is false if the buffer is not mapped or does not contain addr.
func (b *Buffer) HostFor(gpuaddr uint64) (host uint64, ok bool) {
	if b.HostAddr == 0 || !b.ContainsGPU(gpuaddr) {
		return 0, false
	}
	return b.HostAddr + (gpuaddr - b.GPUAddr), true
}

// Mapped returns true if the buffer has a host mapping.
func (b *Buffer) Mapped() bool {
	return b.HostAddr != 0
}

func contains(start, length, addr uint64) bool {
	return start != 0 && start <= addr && addr-start < length
}

// index is an ordered set of buffers keyed by one of their start addresses.
type index struct {
	start func(*Buffer) uint64
	tree  *btree.BTreeG[*Buffer]
}

func newIndex(start func(*Buffer) uint64) *index {
	return &index{
		start: start,
		tree: btree.NewG(8, func(a, b *Buffer) bool {
			as, bs := start(a), start(b)
			if as != bs {
				return as < bs
			}
			return a.seq < b.seq
		}),
	}
}

// find returns the buffer containing addr. Buffers are disjoint, so only the
// buffer with the greatest start <= addr can contain it.
func (x *index) find(addr uint64) *Buffer {
	if addr == 0 {
		return nil
	}
	var found *Buffer
	x.tree.DescendLessOrEqual(x.pivot(addr), func(b *Buffer) bool {
		if b.Len == 0 {
			return true
		}
		if contains(x.start(b), b.Len, addr) {
			found = b
		}
		return false
	})
	return found
}

// pivot returns a key that sorts after every buffer starting at addr.
func (x *index) pivot(addr uint64) *Buffer {
	return &Buffer{HostAddr: addr, GPUAddr: addr, seq: math.MaxUint64}
}

// overlaps returns a live buffer other than b whose range intersects b's.
func (x *index) overlaps(b *Buffer) *Buffer {
	start := x.start(b)
	if start == 0 || b.Len == 0 {
		return nil
	}
	end := start + b.Len
	var found *Buffer
	x.tree.DescendLessOrEqual(x.pivot(end-1), func(o *Buffer) bool {
		if o == b || o.Len == 0 {
			return true
		}
		if x.start(o)+o.Len > start {
			found = o
		}
		return false
	})
	return found
}

func (x *index) insert(b *Buffer) {
	if x.start(b) != 0 {
		x.tree.ReplaceOrInsert(b)
	}
}

func (x *index) remove(b *Buffer) {
	if x.start(b) != 0 {
		x.tree.Delete(b)
	}
}

// Registry is a set of live buffers.
//
// Registry is not synchronized; callers must serialize access.
type Registry struct {
	nextSeq uint64
	order   *btree.BTreeG[*Buffer]
	byHost  *index
	byGPU   *index
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		order:  btree.NewG(8, func(a, b *Buffer) bool { return a.seq < b.seq }),
		byHost: newIndex(func(b *Buffer) uint64 { return b.HostAddr }),
		byGPU:  newIndex(func(b *Buffer) uint64 { return b.GPUAddr }),
	}
}

// Register creates and tracks a buffer. host may be zero if the buffer is not
// mapped yet. The GPU address is left unset.
//
// The returned buffer is always registered; a non-nil error reports that its
// host range overlaps another buffer.
func (r *Registry) Register(host uint64, flags uint32, length uint64) (*Buffer, error) {
	r.nextSeq++
	b := &Buffer{HostAddr: host, Len: length, Flags: flags, seq: r.nextSeq}
	r.order.ReplaceOrInsert(b)
	r.byHost.insert(b)
	return b, r.checkOverlap(r.byHost, b, "host")
}

// SetGPUAddr sets the GPU address of a registered buffer.
//
// The address is always set; a non-nil error reports an overlap.
func (r *Registry) SetGPUAddr(b *Buffer, addr uint64) error {
	if !r.order.Has(b) {
		b.GPUAddr = addr
		return nil
	}
	r.byGPU.remove(b)
	b.GPUAddr = addr
	r.byGPU.insert(b)
	return r.checkOverlap(r.byGPU, b, "gpu")
}

// SetHostAddr sets the host address of a registered buffer.
//
// The address is always set; a non-nil error reports an overlap.
func (r *Registry) SetHostAddr(b *Buffer, addr uint64) error {
	if !r.order.Has(b) {
		b.HostAddr = addr
		return nil
	}
	r.byHost.remove(b)
	b.HostAddr = addr
	r.byHost.insert(b)
	return r.checkOverlap(r.byHost, b, "host")
}

func (r *Registry) checkOverlap(x *index, b *Buffer, space string) error {
	if o := x.overlaps(b); o != nil {
		return fmt.Errorf("%s range of %v intersects %v: %w", space, b, o, ErrOverlap)
	}
	return nil
}

// FindByHost returns the buffer whose host range contains addr, or nil.
func (r *Registry) FindByHost(addr uint64) *Buffer {
	return r.byHost.find(addr)
}

// FindByGPU returns the buffer whose GPU range contains addr, or nil.
func (r *Registry) FindByGPU(addr uint64) *Buffer {
	return r.byGPU.find(addr)
}

// Unregister removes the buffer whose GPU range contains addr. It returns the
// removed buffer, or nil if no buffer contains addr.
func (r *Registry) Unregister(addr uint64) *Buffer {
	b := r.FindByGPU(addr)
	if b != nil {
		r.Remove(b)
	}
	return b
}

// Remove removes b. It is a no-op if b is not registered.
func (r *Registry) Remove(b *Buffer) {
	if _, ok := r.order.Delete(b); !ok {
		return
	}
	r.byHost.remove(b)
	r.byGPU.remove(b)
}

// ForEach calls fn for each buffer in registration order until fn returns
// false.
func (r *Registry) ForEach(fn func(*Buffer) bool) {
	r.order.Ascend(func(b *Buffer) bool {
		return fn(b)
	})
}

// Len returns the number of live buffers.
func (r *Registry) Len() int {
	return r.order.Len()
}
