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
)

// hexdump formats data, which was read from addr in the traced process, 16
// bytes per line:
//
//	\t\t\tAAAAAAAA  XX XX XX XX  XX XX XX XX  ...\t|ascii...........|
//
// Lines are labeled with the traced process's addresses, not offsets, so
// they can be matched against pointers in other dumps.
func hexdump(b *strings.Builder, addr uint64, data []byte) {
	var alpha [16]byte
	for i, c := range data {
		if i%16 == 0 {
			fmt.Fprintf(b, "\t\t\t%08X", addr+uint64(i))
		}
		if i%4 == 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(b, " %02X", c)
		if c >= 0x20 && c < 0x7f {
			alpha[i%16] = c
		} else {
			alpha[i%16] = '.'
		}
		if i%16 == 15 {
			fmt.Fprintf(b, "\t|%s|\n", alpha[:])
		}
	}
	if n := len(data) % 16; n != 0 {
		for i := n; i < 16; i++ {
			b.WriteString("   ")
			alpha[i] = '.'
		}
		fmt.Fprintf(b, "\t|%s|\n", alpha[:])
	}
}
