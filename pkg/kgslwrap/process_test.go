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
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/freedreno/kgslwrap/pkg/log"
	"github.com/freedreno/kgslwrap/pkg/rd"
	"github.com/google/go-cmp/cmp"
)

var testPattern = log.PatternOpts{PID: 42, Start: time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC)}

func TestNewEmitter(t *testing.T) {
	dir := t.TempDir()
	for _, tc := range []struct {
		format string
		want   string
	}{
		{"text", "] kgslwrap started\n"},
		{"json", "\"msg\":"},
	} {
		t.Run(tc.format, func(t *testing.T) {
			c := DefaultConfig()
			c.LogFormat = tc.format
			c.LogFile = filepath.Join(dir, tc.format, "kgslwrap-%PID%.log")
			e, f, err := c.NewEmitter(testPattern)
			if err != nil {
				t.Fatalf("NewEmitter failed: %v", err)
			}
			defer f.Close()
			if want := filepath.Join(dir, tc.format, "kgslwrap-42.log"); f.Name() != want {
				t.Errorf("log file = %q, want %q", f.Name(), want)
			}
			e.Emit(0, log.Info, time.Now(), "kgslwrap started")
			b, err := os.ReadFile(f.Name())
			if err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(string(b), tc.want) {
				t.Errorf("log file contents %q do not contain %q", b, tc.want)
			}
		})
	}
}

func TestNewEmitterStderr(t *testing.T) {
	c := DefaultConfig()
	e, f, err := c.NewEmitter(testPattern)
	if err != nil {
		t.Fatalf("NewEmitter failed: %v", err)
	}
	if f != nil {
		t.Errorf("NewEmitter opened %q without a log file", f.Name())
	}
	if _, ok := e.(log.GoogleEmitter); !ok {
		t.Errorf("NewEmitter returned %T, want log.GoogleEmitter", e)
	}
}

func TestCommandLine(t *testing.T) {
	got := CommandLine()
	if !strings.Contains(got, filepath.Base(os.Args[0])) {
		t.Errorf("CommandLine() = %q, want it to contain %q", got, filepath.Base(os.Args[0]))
	}
	if strings.ContainsRune(got, 0) {
		t.Errorf("CommandLine() = %q contains NUL", got)
	}
}

func TestOpenCapture(t *testing.T) {
	c := DefaultConfig()
	if w, err := OpenCapture(c, testPattern); w != nil || err != nil {
		t.Errorf("OpenCapture without a capture = %v, %v, want nil, nil", w, err)
	}

	c.Capture = filepath.Join(t.TempDir(), "traces", "trace-%PID%.rd")
	w, err := OpenCapture(c, testPattern)
	if err != nil {
		t.Fatalf("OpenCapture failed: %v", err)
	}
	if err := w.WriteSection(rd.KindGPUAddr, rd.GPUAddr(0x1000, 0x1000)); err != nil {
		t.Fatalf("WriteSection failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	f, err := os.Open(filepath.Join(filepath.Dir(c.Capture), "trace-42.rd"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	sections, err := rd.ReadAll(f)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	want := []rd.Section{
		{Kind: rd.KindCmd, Data: []byte(CommandLine())},
		{Kind: rd.KindGPUAddr, Data: rd.GPUAddr(0x1000, 0x1000)},
	}
	if diff := cmp.Diff(want, sections); diff != "" {
		t.Errorf("capture mismatch (-want +got):\n%s", diff)
	}
}
