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

// Package sniffer collects the ioctls reported by the kgslwrap hook.
package sniffer

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/freedreno/kgslwrap/pkg/abi/linux"
	"github.com/freedreno/kgslwrap/pkg/log"
)

// ioctlKey identifies one command of one device class.
type ioctlKey struct {
	class   string
	request uint32
}

// ioctlStats counts the calls of one command.
type ioctlStats struct {
	name   string
	calls  int
	failed int

	// last is the most recent call.
	last *Record
}

// Results summarizes the ioctls seen by the hook.
type Results struct {
	known   map[ioctlKey]*ioctlStats
	unknown map[ioctlKey]*ioctlStats
}

// NewResults creates a new Results object.
func NewResults() *Results {
	return &Results{
		known:   make(map[ioctlKey]*ioctlStats),
		unknown: make(map[ioctlKey]*ioctlStats),
	}
}

// Add records one ioctl.
func (r *Results) Add(rec *Record) {
	m := r.known
	if !rec.Known {
		m = r.unknown
	}
	key := ioctlKey{rec.Class, rec.Request}
	s, ok := m[key]
	if !ok {
		s = &ioctlStats{name: rec.Name}
		m[key] = s
	}
	s.calls++
	if rec.Ret < 0 {
		s.failed++
	}
	s.last = rec
}

// HasUnknownIoctl returns true if a command missing from the decoder tables
// was seen.
func (r *Results) HasUnknownIoctl() bool {
	return len(r.unknown) != 0
}

// Calls returns the number of recorded calls of request on class.
func (r *Results) Calls(class string, request uint32) int {
	key := ioctlKey{class, request}
	n := 0
	if s, ok := r.known[key]; ok {
		n += s.calls
	}
	if s, ok := r.unknown[key]; ok {
		n += s.calls
	}
	return n
}

// Merge merges the results from another Results object into this one.
func (r *Results) Merge(other *Results) {
	for _, pair := range []struct{ dst, src map[ioctlKey]*ioctlStats }{
		{r.known, other.known},
		{r.unknown, other.unknown},
	} {
		for key, s := range pair.src {
			d, ok := pair.dst[key]
			if !ok {
				d = &ioctlStats{name: s.name}
				pair.dst[key] = d
			}
			d.calls += s.calls
			d.failed += s.failed
			d.last = s.last
		}
	}
}

func sortedKeys(m map[ioctlKey]*ioctlStats) []ioctlKey {
	keys := make([]ioctlKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].class != keys[j].class {
			return keys[i].class < keys[j].class
		}
		return linux.IOC_NR(keys[i].request) < linux.IOC_NR(keys[j].request) ||
			(linux.IOC_NR(keys[i].request) == linux.IOC_NR(keys[j].request) && keys[i].request < keys[j].request)
	})
	return keys
}

func (r *Results) String() string {
	b := new(strings.Builder)

	fmt.Fprintf(b, "Decoded:\n")
	if len(r.known) == 0 {
		fmt.Fprintf(b, "\tNone\n")
	}
	for _, k := range sortedKeys(r.known) {
		s := r.known[k]
		fmt.Fprintf(b, "\t%s %s: calls=%d failed=%d\n", k.class, s.name, s.calls, s.failed)
	}

	fmt.Fprintf(b, "Unknown:\n")
	if len(r.unknown) == 0 {
		fmt.Fprintf(b, "\tNone\n")
	}
	for _, k := range sortedKeys(r.unknown) {
		s := r.unknown[k]
		fmt.Fprintf(b, "\t%s ioctl: path=%s request=%#x [nr=%#x, size=%d] calls=%d last ret=%d\n",
			k.class, s.last.Path, k.request, linux.IOC_NR(k.request), linux.IOC_SIZE(k.request), s.calls, s.last.Ret)
	}
	return b.String()
}

// ReadHookOutput reads the output of the hook until an EOF is reached.
func ReadHookOutput(r io.Reader) *Results {
	res := NewResults()
	for {
		rec, err := ReadRecord(r)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Warningf("Error reading ioctl record: %v", err)
			}
			break
		}
		log.Debugf("[%4d] %s %s (%08x) => %d", rec.FD, rec.Class, rec.Name, rec.Request, rec.Ret)
		res.Add(rec)
	}
	return res
}
