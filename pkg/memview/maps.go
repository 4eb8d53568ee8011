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

package memview

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
)

// VMAs looks up mappings of the traced process.
type VMAs interface {
	// LengthAt returns the length of the mapping that starts exactly at addr.
	LengthAt(addr uint64) (uint64, bool)
}

// ProcMaps reads mappings from a /proc/[pid]/maps file on every lookup.
type ProcMaps struct {
	// Path is the maps file, usually /proc/self/maps.
	Path string
}

// SelfMaps returns a ProcMaps for the calling process.
func SelfMaps() ProcMaps {
	return ProcMaps{Path: "/proc/self/maps"}
}

// LengthAt implements VMAs.LengthAt.
func (p ProcMaps) LengthAt(addr uint64) (uint64, bool) {
	f, err := os.Open(p.Path)
	if err != nil {
		return 0, false
	}
	defer f.Close()
	return lengthAt(f, addr)
}

func lengthAt(r io.Reader, addr uint64) (uint64, bool) {
	s := bufio.NewScanner(r)
	for s.Scan() {
		start, end, err := parseRange(s.Bytes())
		if err != nil {
			continue
		}
		if start == addr {
			return end - start, true
		}
	}
	return 0, false
}

// parseRange parses the leading "start-end" field of a maps line.
func parseRange(line []byte) (start, end uint64, err error) {
	field, _, _ := bytes.Cut(line, []byte{' '})
	lo, hi, ok := bytes.Cut(field, []byte{'-'})
	if !ok {
		return 0, 0, fmt.Errorf("malformed maps line %q", line)
	}
	if start, err = strconv.ParseUint(string(lo), 16, 64); err != nil {
		return 0, 0, err
	}
	if end, err = strconv.ParseUint(string(hi), 16, 64); err != nil {
		return 0, 0, err
	}
	if end < start {
		return 0, 0, fmt.Errorf("malformed maps range %q", field)
	}
	return start, end, nil
}

// FakeVMAs is a fixed VMA table for tests, keyed by start address.
type FakeVMAs map[uint64]uint64

// LengthAt implements VMAs.LengthAt.
func (f FakeVMAs) LengthAt(addr uint64) (uint64, bool) {
	n, ok := f[addr]
	return n, ok
}
