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

package rd

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSectionEncoding(t *testing.T) {
	b, err := Section{Kind: KindGPUAddr, Data: GPUAddr(0x66001000, 0x5000)}.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary failed: %v", err)
	}
	want := []byte{
		3, 0, 0, 0, // kind
		8, 0, 0, 0, // length
		0x00, 0x10, 0x00, 0x66,
		0x00, 0x50, 0x00, 0x00,
	}
	if diff := cmp.Diff(want, b); diff != "" {
		t.Errorf("MarshalBinary returned unexpected bytes (-want +got):\n%s", diff)
	}
}

func TestWriterReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace", "capture.rd")
	w, err := Create(path, "./test-fill")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := w.WriteSection(KindGPUAddr, GPUAddr(0x1000, 4096)); err != nil {
		t.Fatalf("WriteSection failed: %v", err)
	}
	if err := w.WriteSection(KindCmdstream, []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("WriteSection failed: %v", err)
	}
	if err := w.WriteSection(KindContext, nil); err != nil {
		t.Fatalf("WriteSection failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := w.WriteSection(KindTest, nil); err == nil {
		t.Errorf("WriteSection after Close succeeded")
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer f.Close()
	got, err := ReadAll(f)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	want := []Section{
		{Kind: KindCmd, Data: []byte("./test-fill")},
		{Kind: KindGPUAddr, Data: GPUAddr(0x1000, 4096)},
		{Kind: KindCmdstream, Data: []byte{1, 2, 3, 4}},
		{Kind: KindContext, Data: []byte{}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ReadAll returned unexpected sections (-want +got):\n%s", diff)
	}
}

func TestWriterAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.rd")
	for _, cmd := range []string{"first", "second"} {
		w, err := Create(path, cmd)
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		w.Close()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	got, err := ReadAll(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(got) != 2 || string(got[0].Data) != "first" || string(got[1].Data) != "second" {
		t.Errorf("ReadAll = %v, want CMD sections first and second", got)
	}
}

func TestReaderTruncated(t *testing.T) {
	full, err := Section{Kind: KindCmdstream, Data: []byte{1, 2, 3, 4}}.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary failed: %v", err)
	}
	for _, n := range []int{3, 8, 10} {
		r := NewReader(bytes.NewReader(full[:n]))
		if _, err := r.Next(); !errors.Is(err, ErrShortSection) {
			t.Errorf("Next on %d bytes = %v, want ErrShortSection", n, err)
		}
	}
}

func TestReaderOffset(t *testing.T) {
	var buf bytes.Buffer
	for _, s := range []Section{{KindCmd, []byte("abc")}, {KindTest, nil}} {
		b, _ := s.MarshalBinary()
		buf.Write(b)
	}
	r := NewReader(&buf)
	if _, err := r.Next(); err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if got := r.Offset(); got != 11 {
		t.Errorf("Offset = %d, want 11", got)
	}
}

func TestParseGPUAddr(t *testing.T) {
	addr, length, err := ParseGPUAddr(GPUAddr(0x1_66001000, 0x5000))
	if err != nil {
		t.Fatalf("ParseGPUAddr failed: %v", err)
	}
	if addr != 0x66001000 || length != 0x5000 {
		t.Errorf("ParseGPUAddr = %#x, %#x, want 0x66001000, 0x5000", addr, length)
	}
	if _, _, err := ParseGPUAddr([]byte{1}); !errors.Is(err, ErrShortSection) {
		t.Errorf("ParseGPUAddr of a short payload = %v, want ErrShortSection", err)
	}
}

func TestSnapshotter(t *testing.T) {
	dir := t.TempDir()
	s := &Snapshotter{Dir: dir}
	p0, err := s.WriteSnapshot(0x66001000, []byte{0xaa})
	if err != nil {
		t.Fatalf("WriteSnapshot failed: %v", err)
	}
	p1, err := s.WriteSnapshot(0x1000, []byte{0xbb, 0xcc})
	if err != nil {
		t.Fatalf("WriteSnapshot failed: %v", err)
	}
	if want := filepath.Join(dir, "0000-66001000.dat"); p0 != want {
		t.Errorf("first snapshot = %q, want %q", p0, want)
	}
	if want := filepath.Join(dir, "0001-00001000.dat"); p1 != want {
		t.Errorf("second snapshot = %q, want %q", p1, want)
	}
	got, err := os.ReadFile(p1)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if diff := cmp.Diff([]byte{0xbb, 0xcc}, got); diff != "" {
		t.Errorf("snapshot contents (-want +got):\n%s", diff)
	}
	if s.Count() != 2 {
		t.Errorf("Count = %d, want 2", s.Count())
	}
}

func TestBufferSink(t *testing.T) {
	var b Buffer
	data := []byte{1}
	b.WriteSection(KindCmdstream, data)
	data[0] = 2
	if b.Sections[0].Data[0] != 1 {
		t.Errorf("Buffer aliased the caller's data")
	}
}
