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

import "testing"

func TestLookupNode(t *testing.T) {
	for _, tc := range []struct {
		path        string
		wantClass   DeviceClass
		wantMissing bool
	}{
		{"/dev/kgsl-3d0", Class3D, false},
		{"/dev/kgsl-2d0", Class2D, false},
		{"/dev/kgsl-2d1", Class2D, false},
		{"/dev/pmem_gpu0", ClassPMEM, false},
		{"/dev/pmem_gpu1", ClassPMEM, false},
		{"/dev/kgsl-3d1", ClassNone, true},
		{"/dev/ashmem", ClassNone, true},
		{"/system/lib/libGLESv2.so", ClassNone, false},
		{"kgsl-3d0", ClassNone, false},
	} {
		t.Run(tc.path, func(t *testing.T) {
			class, missing := LookupNode(tc.path)
			if class != tc.wantClass || missing != tc.wantMissing {
				t.Errorf("LookupNode(%q) = %v, %t, want %v, %t", tc.path, class, missing, tc.wantClass, tc.wantMissing)
			}
		})
	}
}

func TestClassifier(t *testing.T) {
	c := NewClassifier()
	if got := c.ClassOf(0); got != ClassNone {
		t.Errorf("ClassOf(0) on a new classifier = %v, want %v", got, ClassNone)
	}
	if got := c.ClassifyOnOpen("/dev/kgsl-3d0", 5); got != Class3D {
		t.Errorf("ClassifyOnOpen(kgsl-3d0) = %v, want %v", got, Class3D)
	}
	if got := c.ClassifyOnOpen("/dev/null", 6); got != ClassNone {
		t.Errorf("ClassifyOnOpen(/dev/null) = %v, want %v", got, ClassNone)
	}
	c.ClassifyOnOpen("/dev/kgsl-2d0", 7)
	c.ClassifyOnOpen("/dev/pmem_gpu0", 8)

	for _, tc := range []struct {
		fd   int32
		want DeviceClass
		path string
	}{
		{5, Class3D, "/dev/kgsl-3d0"},
		{6, ClassNone, ""},
		{7, Class2D, "/dev/kgsl-2d0"},
		{8, ClassPMEM, "/dev/pmem_gpu0"},
		{-1, ClassNone, ""},
	} {
		if got := c.ClassOf(tc.fd); got != tc.want {
			t.Errorf("ClassOf(%d) = %v, want %v", tc.fd, got, tc.want)
		}
		if got := c.PathOf(tc.fd); got != tc.path {
			t.Errorf("PathOf(%d) = %q, want %q", tc.fd, got, tc.path)
		}
	}
}

func TestClassifierReopen(t *testing.T) {
	c := NewClassifier()
	c.ClassifyOnOpen("/dev/kgsl-3d0", 5)

	// A closed descriptor keeps its class, and the newest open of a
	// reused descriptor wins.
	c.ClassifyOnOpen("/dev/kgsl-2d1", 5)
	if got := c.ClassOf(5); got != Class2D {
		t.Errorf("ClassOf(5) after reopen on kgsl-2d1 = %v, want %v", got, Class2D)
	}
	c.ClassifyOnOpen("/dev/kgsl-3d0", 5)
	if got := c.ClassOf(5); got != Class3D {
		t.Errorf("ClassOf(5) after reopen on kgsl-3d0 = %v, want %v", got, Class3D)
	}

	// Reopening a node moves its slot to the new descriptor.
	c.ClassifyOnOpen("/dev/kgsl-3d0", 9)
	if got := c.ClassOf(9); got != Class3D {
		t.Errorf("ClassOf(9) = %v, want %v", got, Class3D)
	}
	if got := c.ClassOf(5); got != Class2D {
		t.Errorf("ClassOf(5) after kgsl-3d0 moved = %v, want %v", got, Class2D)
	}

	c.Forget(5)
	if got := c.ClassOf(5); got != ClassNone {
		t.Errorf("ClassOf(5) after Forget = %v, want %v", got, ClassNone)
	}
	if got := c.ClassOf(9); got != Class3D {
		t.Errorf("ClassOf(9) after Forget(5) = %v, want %v", got, Class3D)
	}
}

func TestDeviceClass(t *testing.T) {
	for _, tc := range []struct {
		class    DeviceClass
		name     string
		kgsl     bool
		infoName string
	}{
		{ClassNone, "none", false, ""},
		{Class3D, "kgsl-3d", true, "kgsl-3d"},
		{Class2D, "kgsl-2d", true, "kgsl-2d"},
		{ClassPMEM, "pmem-gpu", false, "pmem-gpu"},
	} {
		if got := tc.class.String(); got != tc.name {
			t.Errorf("String() = %q, want %q", got, tc.name)
		}
		if got := tc.class.IsKGSL(); got != tc.kgsl {
			t.Errorf("%v.IsKGSL() = %t, want %t", tc.class, got, tc.kgsl)
		}
		info := tc.class.Info()
		if tc.infoName == "" {
			if info != nil {
				t.Errorf("%v.Info() = %v, want nil", tc.class, info)
			}
			continue
		}
		if info == nil || info.Name != tc.infoName {
			t.Errorf("%v.Info() = %v, want %q", tc.class, info, tc.infoName)
		}
	}
}
