// Copyright 2018 The gVisor Authors.
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

package log

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type testWriter struct {
	lines []string
	fail  bool
}

func (w *testWriter) Write(bytes []byte) (int, error) {
	if w.fail {
		return 0, fmt.Errorf("simulated failure")
	}
	w.lines = append(w.lines, string(bytes))
	return len(bytes), nil
}

func TestDropMessages(t *testing.T) {
	tw := &testWriter{}
	w := Writer{Next: tw}
	w.Emit(0, Info, time.Now(), "line 1\n")

	tw.fail = true
	w.Emit(0, Info, time.Now(), "error\n")
	w.Emit(0, Info, time.Now(), "error\n")

	tw.fail = false
	w.Emit(0, Info, time.Now(), "line %d\n", 2)

	want := []string{
		"line 1\n",
		"\n*** Dropped 2 log messages ***\n",
		"line 2\n",
	}
	if diff := cmp.Diff(want, tw.lines); diff != "" {
		t.Errorf("unexpected lines (-want +got):\n%s", diff)
	}
}

func TestGoogleEmitter(t *testing.T) {
	tw := &testWriter{}
	e := GoogleEmitter{&Writer{Next: tw}}
	ts := time.Date(2026, time.March, 4, 5, 6, 7, 8000, time.UTC)
	e.Emit(0, Warning, ts, "value %#x", 0x1000)

	if len(tw.lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(tw.lines), tw.lines)
	}
	re := regexp.MustCompile(`^W0304 05:06:07\.000008 +\d+ log_test\.go:\d+\] value 0x1000\n$`)
	if !re.MatchString(tw.lines[0]) {
		t.Errorf("line %q does not match %v", tw.lines[0], re)
	}
}

func TestLevels(t *testing.T) {
	tw := &testWriter{}
	l := &BasicLogger{Level: Info, Emitter: &Writer{Next: tw}}
	l.Debugf("debug\n")
	l.Infof("info\n")
	l.Warningf("warning\n")
	l.SetLevel(Debug)
	l.Debugf("debug\n")

	want := []string{"info\n", "warning\n", "debug\n"}
	if diff := cmp.Diff(want, tw.lines); diff != "" {
		t.Errorf("unexpected lines (-want +got):\n%s", diff)
	}
}

func TestParseLevel(t *testing.T) {
	for _, tc := range []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{in: "debug", want: Debug},
		{in: "Info", want: Info},
		{in: "", want: Info},
		{in: "warning", want: Warning},
		{in: "verbose", wantErr: true},
	} {
		got, err := ParseLevel(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %t", tc.in, err, tc.wantErr)
			continue
		}
		if err == nil && got != tc.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestMultiEmitter(t *testing.T) {
	a, b := &testWriter{}, &testWriter{}
	m := &MultiEmitter{&Writer{Next: a}, &Writer{Next: b}}
	m.Emit(0, Info, time.Now(), "both\n")
	if len(a.lines) != 1 || len(b.lines) != 1 {
		t.Errorf("got %q and %q, want one line each", a.lines, b.lines)
	}
}

func TestRateLimitedLogger(t *testing.T) {
	tw := &testWriter{}
	l := RateLimitedLogger(&BasicLogger{Level: Debug, Emitter: &Writer{Next: tw}}, time.Hour)
	for i := 0; i < 10; i++ {
		l.Warningf("repeated\n")
	}
	if len(tw.lines) != 1 {
		t.Errorf("got %d lines, want 1", len(tw.lines))
	}
}

func TestRateLimitedLoggerCaller(t *testing.T) {
	tw := &testWriter{}
	var l Logger = RateLimitedLogger(&BasicLogger{Level: Debug, Emitter: GoogleEmitter{&Writer{Next: tw}}}, time.Hour)
	l.Infof("from the test")
	if len(tw.lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(tw.lines))
	}
	if !strings.Contains(tw.lines[0], " log_test.go:") {
		t.Errorf("line %q does not name the calling file", tw.lines[0])
	}
}

func TestPatternOpts(t *testing.T) {
	o := PatternOpts{PID: 42, Start: time.Date(2026, time.January, 2, 3, 4, 5, 6000, time.UTC)}
	got := o.Build("/tmp/trace-%PID%-%TIMESTAMP%.log")
	if want := "/tmp/trace-42-20260102-030405.000006.log"; got != want {
		t.Errorf("Build = %q, want %q", got, want)
	}
}

func TestOpenFile(t *testing.T) {
	dir := t.TempDir()
	f, err := OpenFile(filepath.Join(dir, "sub", "log-%PID%"), os.O_CREATE|os.O_WRONLY, PatternOpts{PID: 7})
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	defer f.Close()
	if !strings.HasSuffix(f.Name(), "log-7") {
		t.Errorf("OpenFile created %q, want suffix log-7", f.Name())
	}

	f, err = OpenFile("", os.O_CREATE|os.O_WRONLY, PatternOpts{})
	if err != nil || f != nil {
		t.Errorf("OpenFile(\"\") = %v, %v, want nil, nil", f, err)
	}
}
