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
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestSymbolResolveOnce(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	lookup := func(name string) (uintptr, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if name != "ioctl" {
			return 0, fmt.Errorf("unexpected symbol %q", name)
		}
		return 0x7f001234, nil
	}
	fatalf := func(format string, v ...any) {
		t.Errorf("fatalf called: "+format, v...)
	}

	syms := NewSymbols()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got := syms.Ioctl.Resolve(lookup, fatalf); got != 0x7f001234 {
				t.Errorf("Resolve() = %#x, want 0x7f001234", got)
			}
		}()
	}
	wg.Wait()
	if calls != 1 {
		t.Errorf("lookup called %d times, want 1", calls)
	}
}

func TestSymbolResolveFailure(t *testing.T) {
	for _, tc := range []struct {
		name   string
		lookup LookupFunc
	}{
		{
			name:   "error",
			lookup: func(string) (uintptr, error) { return 0, errors.New("undefined symbol") },
		},
		{
			name:   "null",
			lookup: func(string) (uintptr, error) { return 0, nil },
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var fatal string
			s := Symbol{Name: "mmap"}
			s.Resolve(tc.lookup, func(format string, v ...any) {
				fatal = fmt.Sprintf(format, v...)
			})
			if fatal == "" {
				t.Errorf("Resolve did not call fatalf")
			}
		})
	}
}

func TestNewSymbols(t *testing.T) {
	s := NewSymbols()
	for _, tc := range []struct {
		sym  *Symbol
		want string
	}{
		{&s.Open, "open"},
		{&s.Ioctl, "ioctl"},
		{&s.Mmap, "mmap"},
		{&s.Close, "close"},
	} {
		if tc.sym.Name != tc.want {
			t.Errorf("symbol name = %q, want %q", tc.sym.Name, tc.want)
		}
	}
}
