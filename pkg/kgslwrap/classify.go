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
	"fmt"
	"strings"

	"github.com/freedreno/kgslwrap/pkg/abi/kgsl"
)

// DeviceClass is the driver family behind a file descriptor.
type DeviceClass uint8

const (
	// ClassNone is any descriptor not opened on a known device node.
	ClassNone DeviceClass = iota

	// Class3D is the Adreno 3D core.
	Class3D

	// Class2D is the Z180 2D/vector core.
	Class2D

	// ClassPMEM is the legacy PMEM shared memory allocator.
	ClassPMEM
)

func (c DeviceClass) String() string {
	switch c {
	case ClassNone:
		return "none"
	case Class3D:
		return "kgsl-3d"
	case Class2D:
		return "kgsl-2d"
	case ClassPMEM:
		return "pmem-gpu"
	default:
		return fmt.Sprintf("DeviceClass(%d)", uint8(c))
	}
}

// Info returns the ioctl table of the class, or nil for ClassNone.
func (c DeviceClass) Info() *kgsl.DeviceInfo {
	switch c {
	case Class3D:
		return kgsl.KGSL3DInfo
	case Class2D:
		return kgsl.KGSL2DInfo
	case ClassPMEM:
		return kgsl.PMEMInfo
	default:
		return nil
	}
}

// IsKGSL returns true for the KGSL GPU cores, whose ioctls are decoded and
// whose mappings are tracked.
func (c DeviceClass) IsKGSL() bool {
	return c == Class3D || c == Class2D
}

// deviceNode is a known device node.
type deviceNode struct {
	path  string
	class DeviceClass
}

// deviceNodes are the device nodes that are traced. Each node has its own
// slot, like the driver's minor numbers.
var deviceNodes = []deviceNode{
	{"/dev/kgsl-3d0", Class3D},
	{"/dev/kgsl-2d0", Class2D},
	{"/dev/kgsl-2d1", Class2D},
	{"/dev/pmem_gpu0", ClassPMEM},
	{"/dev/pmem_gpu1", ClassPMEM},
}

// Classifier maps open file descriptors to device classes.
//
// Each known node remembers the last descriptor it was opened on, so a
// descriptor keeps its class after close until a known node is opened again
// and receives it. If several nodes hold the same descriptor, the most
// recent open wins. Classifier is not synchronized.
type Classifier struct {
	slots []slot // indexed like deviceNodes
	gen   uint64
}

type slot struct {
	fd  int32 // -1 if never opened
	gen uint64
}

// NewClassifier returns a Classifier with no classified descriptors.
func NewClassifier() *Classifier {
	c := &Classifier{slots: make([]slot, len(deviceNodes))}
	for i := range c.slots {
		c.slots[i].fd = -1
	}
	return c
}

// LookupNode returns the class of the device node at path. missing is true
// if the path is not a known node but looks like a device node.
func LookupNode(path string) (class DeviceClass, missing bool) {
	for _, n := range deviceNodes {
		if n.path == path {
			return n.class, false
		}
	}
	return ClassNone, strings.Contains(path, "/dev/")
}

// ClassifyOnOpen records that fd was successfully opened at path, and returns
// the class of fd, which is ClassNone for unknown paths.
func (c *Classifier) ClassifyOnOpen(path string, fd int32) DeviceClass {
	for i, n := range deviceNodes {
		if n.path == path {
			c.gen++
			c.slots[i] = slot{fd: fd, gen: c.gen}
			return n.class
		}
	}
	return ClassNone
}

// lookup returns the index of the newest slot holding fd, or -1.
func (c *Classifier) lookup(fd int32) int {
	found := -1
	if fd < 0 {
		return found
	}
	for i, s := range c.slots {
		if s.fd == fd && (found < 0 || s.gen > c.slots[found].gen) {
			found = i
		}
	}
	return found
}

// ClassOf returns the class of fd.
func (c *Classifier) ClassOf(fd int32) DeviceClass {
	if i := c.lookup(fd); i >= 0 {
		return deviceNodes[i].class
	}
	return ClassNone
}

// PathOf returns the device node fd was classified by, or "".
func (c *Classifier) PathOf(fd int32) string {
	if i := c.lookup(fd); i >= 0 {
		return deviceNodes[i].path
	}
	return ""
}

// Forget clears every classification of fd.
func (c *Classifier) Forget(fd int32) {
	for i := range c.slots {
		if c.slots[i].fd == fd {
			c.slots[i] = slot{fd: -1}
		}
	}
}
