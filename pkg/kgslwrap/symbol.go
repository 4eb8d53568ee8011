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

import "sync"

// LookupFunc finds the next definition of a symbol in the dynamic linker's
// search order, i.e. dlsym(RTLD_NEXT, name).
type LookupFunc func(name string) (uintptr, error)

// Symbol is an original libc entry point replaced by the hook. It is resolved
// on first use and cached for the life of the process.
type Symbol struct {
	// Name is the symbol name.
	Name string

	once sync.Once
	addr uintptr
}

// Resolve returns the address of the original entry point, looking it up on
// the first call. If the lookup fails, fatalf is called; the hook has no
// other way to perform the real call, so fatalf must not return.
//
// Resolve is safe to call concurrently.
func (s *Symbol) Resolve(lookup LookupFunc, fatalf func(format string, v ...any)) uintptr {
	s.once.Do(func() {
		addr, err := lookup(s.Name)
		if err == nil && addr == 0 {
			err = errNullSymbol
		}
		if err != nil {
			fatalf("cannot resolve original %s: %v", s.Name, err)
			return
		}
		s.addr = addr
	})
	return s.addr
}

type symbolError string

func (e symbolError) Error() string { return string(e) }

const errNullSymbol = symbolError("symbol resolved to NULL")

// Symbols are the entry points replaced by the hook.
type Symbols struct {
	Open  Symbol
	Ioctl Symbol
	Mmap  Symbol
	Close Symbol
}

// NewSymbols returns unresolved Symbols for the hooked entry points.
func NewSymbols() *Symbols {
	return &Symbols{
		Open:  Symbol{Name: "open"},
		Ioctl: Symbol{Name: "ioctl"},
		Mmap:  Symbol{Name: "mmap"},
		Close: Symbol{Name: "close"},
	}
}
