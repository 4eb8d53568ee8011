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

package sniffer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/freedreno/kgslwrap/pkg/kgslwrap"
	"google.golang.org/protobuf/encoding/protowire"
	"golang.org/x/sys/unix"
)

// Record field numbers.
const (
	fieldFD      protowire.Number = 1
	fieldPath    protowire.Number = 2
	fieldClass   protowire.Number = 3
	fieldRequest protowire.Number = 4
	fieldName    protowire.Number = 5
	fieldKnown   protowire.Number = 6
	fieldRet     protowire.Number = 7
	fieldErrno   protowire.Number = 8
	fieldArg     protowire.Number = 9
)

// maxRecordSize bounds a single record. Argument blocks are at most
// IOC_SIZEMASK bytes.
const maxRecordSize = 1 << 20

// Record is one ioctl reported by the hook.
type Record struct {
	FD      int32
	Path    string
	Class   string
	Request uint32
	Name    string
	Known   bool
	Ret     int64
	Errno   uint32
	Arg     []byte
}

// RecordFromEvent converts a hook event to a Record.
func RecordFromEvent(ev *kgslwrap.IoctlEvent) *Record {
	return &Record{
		FD:      ev.FD,
		Path:    ev.Path,
		Class:   ev.Class.String(),
		Request: ev.Request,
		Name:    ev.Name,
		Known:   ev.Known,
		Ret:     ev.Ret,
		Errno:   uint32(ev.Errno),
		Arg:     ev.Arg,
	}
}

// Marshal returns the protobuf wire encoding of r.
func (r *Record) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldFD, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(r.FD)))
	b = appendString(b, fieldPath, r.Path)
	b = appendString(b, fieldClass, r.Class)
	b = protowire.AppendTag(b, fieldRequest, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.Request))
	b = appendString(b, fieldName, r.Name)
	if r.Known {
		b = protowire.AppendTag(b, fieldKnown, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(r.Known))
	}
	b = protowire.AppendTag(b, fieldRet, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(r.Ret))
	if r.Errno != 0 {
		b = protowire.AppendTag(b, fieldErrno, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(r.Errno))
	}
	if len(r.Arg) != 0 {
		b = protowire.AppendTag(b, fieldArg, protowire.BytesType)
		b = protowire.AppendBytes(b, r.Arg)
	}
	return b
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

// Unmarshal decodes r from its protobuf wire encoding. Unknown fields are
// skipped.
func (r *Record) Unmarshal(b []byte) error {
	*r = Record{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("parsing tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		var v uint64
		var s []byte
		switch typ {
		case protowire.VarintType:
			v, n = protowire.ConsumeVarint(b)
		case protowire.BytesType:
			s, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return fmt.Errorf("parsing field %d: %w", num, protowire.ParseError(n))
		}
		b = b[n:]

		switch num {
		case fieldFD:
			r.FD = int32(protowire.DecodeZigZag(v))
		case fieldPath:
			r.Path = string(s)
		case fieldClass:
			r.Class = string(s)
		case fieldRequest:
			r.Request = uint32(v)
		case fieldName:
			r.Name = string(s)
		case fieldKnown:
			r.Known = protowire.DecodeBool(v)
		case fieldRet:
			r.Ret = protowire.DecodeZigZag(v)
		case fieldErrno:
			r.Errno = uint32(v)
		case fieldArg:
			r.Arg = append([]byte(nil), s...)
		}
	}
	return nil
}

// AppendRecord appends the framed encoding of r to b. The framing is:
//   - 8 byte little endian uint64 containing the size of the record.
//   - The record bytes.
func AppendRecord(b []byte, r *Record) []byte {
	data := r.Marshal()
	b = binary.LittleEndian.AppendUint64(b, uint64(len(data)))
	return append(b, data...)
}

// ReadRecord reads a single framed record from r. It returns io.EOF only if
// r is at EOF before the record starts.
func ReadRecord(r io.Reader) (*Record, error) {
	var sizeBuf [8]byte
	if _, err := io.ReadFull(r, sizeBuf[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to read record size: %w", err)
	}
	size := binary.LittleEndian.Uint64(sizeBuf[:])
	if size > maxRecordSize {
		return nil, fmt.Errorf("record size %d exceeds %d", size, maxRecordSize)
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("failed to read record data: %w", err)
	}
	rec := &Record{}
	if err := rec.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return rec, nil
}

// EventWriter streams ioctl events to the launcher. It implements
// kgslwrap.EventSink.
type EventWriter struct {
	mu  sync.Mutex
	w   io.Writer
	err error
	buf []byte
}

// NewEventWriter returns an EventWriter that writes to w.
func NewEventWriter(w io.Writer) *EventWriter {
	return &EventWriter{w: w}
}

// IoctlEvent implements kgslwrap.EventSink.IoctlEvent. After the first write
// error, events are dropped; the error is available from Err.
func (e *EventWriter) IoctlEvent(ev *kgslwrap.IoctlEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return
	}
	e.buf = AppendRecord(e.buf[:0], RecordFromEvent(ev))
	if _, err := e.w.Write(e.buf); err != nil {
		if errors.Is(err, unix.EPIPE) {
			err = fmt.Errorf("launcher went away: %w", err)
		}
		e.err = err
	}
}

// Err returns the first write error.
func (e *EventWriter) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}
