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

package linux

import "testing"

func TestIOCRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		name string
		cmd  uint32
		want uint32
		dir  uint32
		typ  uint32
		nr   uint32
		size uint32
	}{
		{
			// _IOWR(0x09, 0x2f, struct kgsl_gpumem_alloc) on a 32-bit ABI.
			name: "iowr",
			cmd:  IOWR(0x09, 0x2f, 12),
			want: 0xc00c092f,
			dir:  IOC_READ | IOC_WRITE,
			typ:  0x09,
			nr:   0x2f,
			size: 12,
		},
		{
			name: "iow",
			cmd:  IOW(0x09, 0x21, 4),
			want: 0x40040921,
			dir:  IOC_WRITE,
			typ:  0x09,
			nr:   0x21,
			size: 4,
		},
		{
			name: "ior",
			cmd:  IOR('p', 3, 8),
			want: 0x80087003,
			dir:  IOC_READ,
			typ:  'p',
			nr:   3,
			size: 8,
		},
		{
			name: "io",
			cmd:  IO('p', 8),
			want: 0x00007008,
			dir:  IOC_NONE,
			typ:  'p',
			nr:   8,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if tc.cmd != tc.want {
				t.Errorf("cmd = %#x, want %#x", tc.cmd, tc.want)
			}
			if got := IOC_DIR(tc.cmd); got != tc.dir {
				t.Errorf("IOC_DIR(%#x) = %d, want %d", tc.cmd, got, tc.dir)
			}
			if got := IOC_TYPE(tc.cmd); got != tc.typ {
				t.Errorf("IOC_TYPE(%#x) = %#x, want %#x", tc.cmd, got, tc.typ)
			}
			if got := IOC_NR(tc.cmd); got != tc.nr {
				t.Errorf("IOC_NR(%#x) = %#x, want %#x", tc.cmd, got, tc.nr)
			}
			if got := IOC_SIZE(tc.cmd); got != tc.size {
				t.Errorf("IOC_SIZE(%#x) = %d, want %d", tc.cmd, got, tc.size)
			}
		})
	}
}
