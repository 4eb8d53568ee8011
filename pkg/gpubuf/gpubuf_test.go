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

package gpubuf

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func mustRegister(t *testing.T, r *Registry, host uint64, length uint64, gpu uint64) *Buffer {
	t.Helper()
	b, err := r.Register(host, 0, length)
	if err != nil {
		t.Fatalf("Register(%#x, 0, %#x) failed: %v", host, length, err)
	}
	if gpu != 0 {
		if err := r.SetGPUAddr(b, gpu); err != nil {
			t.Fatalf("SetGPUAddr(%v, %#x) failed: %v", b, gpu, err)
		}
	}
	return b
}

func TestContainment(t *testing.T) {
	r := NewRegistry()
	a := mustRegister(t, r, 0x40000000, 0x1000, 0x66000000)
	b := mustRegister(t, r, 0x40002000, 0x5000, 0x66001000)

	for _, tc := range []struct {
		name string
		addr uint64
		want *Buffer
	}{
		{"start", 0x66000000, a},
		{"middle", 0x66000abc, a},
		{"last byte", 0x66000fff, a},
		{"end is exclusive", 0x66006000, nil},
		{"second start", 0x66001000, b},
		{"second middle", 0x66004000, b},
		{"before", 0x65ffffff, nil},
		{"zero", 0, nil},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := r.FindByGPU(tc.addr); got != tc.want {
				t.Errorf("FindByGPU(%#x) = %v, want %v", tc.addr, got, tc.want)
			}
		})
	}

	if got := r.FindByHost(0x40002fff); got != b {
		t.Errorf("FindByHost(0x40002fff) = %v, want %v", got, b)
	}
	if got := r.FindByHost(0x40001000); got != nil {
		t.Errorf("FindByHost(0x40001000) = %v, want nil", got)
	}
}

func TestPendingBuffer(t *testing.T) {
	r := NewRegistry()
	b := mustRegister(t, r, 0, 4096, 0)
	if got := r.FindByGPU(0x1000); got != nil {
		t.Errorf("FindByGPU before the address is known = %v, want nil", got)
	}
	if err := r.SetGPUAddr(b, 0x1000); err != nil {
		t.Fatalf("SetGPUAddr failed: %v", err)
	}
	if got := r.FindByGPU(0x1800); got != b {
		t.Errorf("FindByGPU(0x1800) = %v, want %v", got, b)
	}
	if _, ok := b.HostFor(0x1800); ok {
		t.Errorf("HostFor on an unmapped buffer succeeded")
	}
	if err := r.SetHostAddr(b, 0x7f0000000000); err != nil {
		t.Fatalf("SetHostAddr failed: %v", err)
	}
	host, ok := b.HostFor(0x1800)
	if !ok || host != 0x7f0000000800 {
		t.Errorf("HostFor(0x1800) = %#x, %t, want 0x7f0000000800, true", host, ok)
	}
	if got := r.FindByHost(0x7f0000000fff); got != b {
		t.Errorf("FindByHost = %v, want %v", got, b)
	}
}

func TestRegisterUnregisterRoundTrip(t *testing.T) {
	r := NewRegistry()
	keep := mustRegister(t, r, 0x40000000, 0x1000, 0x66000000)

	snapshot := func() []Buffer {
		var bufs []Buffer
		r.ForEach(func(b *Buffer) bool {
			bufs = append(bufs, *b)
			return true
		})
		return bufs
	}
	before := snapshot()

	mustRegister(t, r, 0x50000000, 0x2000, 0x67000000)
	if r.Len() != 2 {
		t.Fatalf("Len = %d, want 2", r.Len())
	}
	if got := r.Unregister(0x67000000); got == nil {
		t.Fatalf("Unregister found nothing")
	}
	if got := r.Unregister(0x67000000); got != nil {
		t.Errorf("second Unregister = %v, want nil", got)
	}

	if diff := cmp.Diff(before, snapshot(), cmp.AllowUnexported(Buffer{})); diff != "" {
		t.Errorf("live set changed (-before +after):\n%s", diff)
	}
	if r.FindByHost(0x50000000) != nil || r.FindByGPU(0x67000000) != nil {
		t.Errorf("removed buffer still found")
	}
	if r.FindByGPU(0x66000000) != keep {
		t.Errorf("remaining buffer not found")
	}
}

func TestUnregisterByInteriorAddress(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, 0, 0x3000, 0x1000)
	if r.Unregister(0x2000) == nil {
		t.Errorf("Unregister(0x2000) found nothing")
	}
	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}
}

func TestForEachOrder(t *testing.T) {
	r := NewRegistry()
	var want []uint64
	for _, gpu := range []uint64{0x9000, 0x1000, 0x5000} {
		mustRegister(t, r, 0, 0x1000, gpu)
		want = append(want, gpu)
	}
	var got []uint64
	r.ForEach(func(b *Buffer) bool {
		got = append(got, b.GPUAddr)
		return true
	})
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ForEach order (-want +got):\n%s", diff)
	}

	n := 0
	r.ForEach(func(*Buffer) bool {
		n++
		return false
	})
	if n != 1 {
		t.Errorf("ForEach visited %d buffers after stop, want 1", n)
	}
}

func TestOverlap(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, 0, 0x2000, 0x1000)
	b, err := r.Register(0, 0, 0x1000)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.SetGPUAddr(b, 0x2800); !errors.Is(err, ErrOverlap) {
		t.Errorf("SetGPUAddr into an existing range = %v, want ErrOverlap", err)
	}
	if b.GPUAddr != 0x2800 {
		t.Errorf("GPUAddr = %#x, want it set despite the overlap", b.GPUAddr)
	}

	if _, err := r.Register(0x10000, 0, 0x1000); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if _, err := r.Register(0xf800, 0, 0x1000); !errors.Is(err, ErrOverlap) {
		t.Errorf("Register below an existing range = %v, want ErrOverlap", err)
	}
	if _, err := r.Register(0x11000, 0, 0x1000); err != nil {
		t.Errorf("Register of an adjacent range failed: %v", err)
	}
}

func TestRemoveUnregistered(t *testing.T) {
	r := NewRegistry()
	b := mustRegister(t, r, 0, 0x1000, 0x1000)
	r.Remove(b)
	r.Remove(b)
	if err := r.SetGPUAddr(b, 0x4000); err != nil {
		t.Errorf("SetGPUAddr on a removed buffer failed: %v", err)
	}
	if r.FindByGPU(0x4000) != nil {
		t.Errorf("removed buffer became visible again")
	}
}
