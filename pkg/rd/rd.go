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

// Package rd reads and writes .rd capture files.
//
// A capture is a sequence of sections, each encoded as:
//   - 4 byte little endian uint32 section kind.
//   - 4 byte little endian uint32 payload length.
//   - The payload.
//
// There is no file header and no index; sections are only meaningful in
// order. The format is a debugging aid consumed by offline command stream
// viewers and is not versioned.
package rd

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// Kind is the type of a section.
type Kind uint32

// Section kinds.
const (
	KindNone Kind = iota
	KindTest
	KindCmd
	KindGPUAddr
	KindContext
	KindCmdstream
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "NONE"
	case KindTest:
		return "TEST"
	case KindCmd:
		return "CMD"
	case KindGPUAddr:
		return "GPUADDR"
	case KindContext:
		return "CONTEXT"
	case KindCmdstream:
		return "CMDSTREAM"
	default:
		return fmt.Sprintf("Kind(%d)", uint32(k))
	}
}

// headerSize is the size of a section header.
const headerSize = 8

// ErrShortSection is returned when a capture ends in the middle of a section.
var ErrShortSection = errors.New("truncated section")

// Section is one record of a capture.
type Section struct {
	Kind Kind
	Data []byte
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (s Section) MarshalBinary() ([]byte, error) {
	if uint64(len(s.Data)) > math.MaxUint32 {
		return nil, fmt.Errorf("%v section of %d bytes is too large", s.Kind, len(s.Data))
	}
	b := make([]byte, headerSize+len(s.Data))
	binary.LittleEndian.PutUint32(b[0:], uint32(s.Kind))
	binary.LittleEndian.PutUint32(b[4:], uint32(len(s.Data)))
	copy(b[headerSize:], s.Data)
	return b, nil
}

// GPUAddr returns a GPUADDR section payload. The viewer expects two 32-bit
// words, so wider values are truncated.
func GPUAddr(gpuaddr, length uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint32(b[0:], uint32(gpuaddr))
	binary.LittleEndian.PutUint32(b[4:], uint32(length))
	return b
}

// ParseGPUAddr decodes a GPUADDR section payload.
func ParseGPUAddr(data []byte) (gpuaddr, length uint32, err error) {
	if len(data) < 8 {
		return 0, 0, fmt.Errorf("GPUADDR payload of %d bytes: %w", len(data), ErrShortSection)
	}
	return binary.LittleEndian.Uint32(data[0:]), binary.LittleEndian.Uint32(data[4:]), nil
}

// Reader reads sections from a capture.
type Reader struct {
	r   io.Reader
	off int64
}

// NewReader returns a Reader for r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Offset returns the file offset of the next section.
func (r *Reader) Offset() int64 {
	return r.off
}

// Next returns the next section. It returns io.EOF at the end of a
// well-formed capture and an error wrapping ErrShortSection if the capture
// ends inside a section.
func (r *Reader) Next() (Section, error) {
	var hdr [headerSize]byte
	n, err := io.ReadFull(r.r, hdr[:])
	switch {
	case err == io.EOF:
		return Section{}, io.EOF
	case err == io.ErrUnexpectedEOF:
		return Section{}, fmt.Errorf("header at offset %d has %d bytes: %w", r.off, n, ErrShortSection)
	case err != nil:
		return Section{}, err
	}
	s := Section{Kind: Kind(binary.LittleEndian.Uint32(hdr[0:]))}
	size := binary.LittleEndian.Uint32(hdr[4:])
	s.Data = make([]byte, size)
	if n, err := io.ReadFull(r.r, s.Data); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return Section{}, fmt.Errorf("%v section at offset %d has %d of %d bytes: %w", s.Kind, r.off, n, size, ErrShortSection)
		}
		return Section{}, err
	}
	r.off += headerSize + int64(size)
	return s, nil
}

// ReadAll reads all sections from r.
func ReadAll(r io.Reader) ([]Section, error) {
	rd := NewReader(r)
	var sections []Section
	for {
		s, err := rd.Next()
		if err == io.EOF {
			return sections, nil
		}
		if err != nil {
			return sections, err
		}
		sections = append(sections, s)
	}
}
