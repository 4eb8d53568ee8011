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

package main

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/freedreno/kgslwrap/pkg/rd"
	"github.com/google/subcommands"
)

// dumpCmd implements subcommands.Command for the "dump" command.
type dumpCmd struct {
	kinds string
	words bool
}

// Name implements subcommands.Command.
func (*dumpCmd) Name() string {
	return "dump"
}

// Synopsis implements subcommands.Command.
func (*dumpCmd) Synopsis() string {
	return "print the sections of a capture"
}

// Usage implements subcommands.Command.
func (*dumpCmd) Usage() string {
	return `dump [flags] <capture.rd> - print the sections of a capture
`
}

// SetFlags implements subcommands.Command.
func (c *dumpCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.kinds, "kinds", "", "comma separated section kinds to print, e.g. CMDSTREAM,GPUADDR; empty prints all")
	f.BoolVar(&c.words, "words", false, "print CONTEXT and CMDSTREAM payloads as 32-bit words")
}

// Execute implements subcommands.Command.
func (c *dumpCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	in, err := os.Open(f.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening capture: %v\n", err)
		return subcommands.ExitFailure
	}
	defer in.Close()

	filter := make(map[string]bool)
	for _, k := range strings.Split(c.kinds, ",") {
		if k = strings.TrimSpace(k); k != "" {
			filter[strings.ToUpper(k)] = true
		}
	}
	if err := dump(os.Stdout, in, filter, c.words); err != nil {
		fmt.Fprintf(os.Stderr, "error reading capture: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// dump prints the sections read from r whose kind is in filter, or all
// sections if filter is empty.
func dump(w io.Writer, r io.Reader, filter map[string]bool, words bool) error {
	rr := rd.NewReader(r)
	for {
		off := rr.Offset()
		s, err := rr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if len(filter) != 0 && !filter[s.Kind.String()] {
			continue
		}
		fmt.Fprintf(w, "%08x %-9s %d bytes\n", off, s.Kind, len(s.Data))
		switch s.Kind {
		case rd.KindCmd:
			fmt.Fprintf(w, "\t%s\n", s.Data)
		case rd.KindGPUAddr:
			gpuaddr, length, err := rd.ParseGPUAddr(s.Data)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "\tgpuaddr=%08x len=%d\n", gpuaddr, length)
		case rd.KindContext, rd.KindCmdstream:
			if words {
				dumpWords(w, s.Data)
			}
		}
	}
}

func dumpWords(w io.Writer, data []byte) {
	for i := 0; i+4 <= len(data); i += 4 {
		if i%32 == 0 {
			fmt.Fprintf(w, "\t%04x:", i/4)
		}
		fmt.Fprintf(w, " %08x", binary.LittleEndian.Uint32(data[i:]))
		if i%32 == 28 || i+8 > len(data) {
			fmt.Fprintf(w, "\n")
		}
	}
}

// statCmd implements subcommands.Command for the "stat" command.
type statCmd struct{}

// Name implements subcommands.Command.
func (*statCmd) Name() string {
	return "stat"
}

// Synopsis implements subcommands.Command.
func (*statCmd) Synopsis() string {
	return "summarize the sections of captures"
}

// Usage implements subcommands.Command.
func (*statCmd) Usage() string {
	return `stat <capture.rd>... - count the sections of each kind in captures
`
}

// SetFlags implements subcommands.Command.
func (*statCmd) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.
func (*statCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() == 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	status := subcommands.ExitSuccess
	for _, path := range f.Args() {
		in, err := os.Open(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error opening capture: %v\n", err)
			status = subcommands.ExitFailure
			continue
		}
		st, err := stat(in)
		in.Close()
		fmt.Printf("%s:\n%s", path, st)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error reading %s: %v\n", path, err)
			status = subcommands.ExitFailure
		}
	}
	return status
}

// captureStats counts sections per kind.
type captureStats struct {
	count map[rd.Kind]int
	bytes map[rd.Kind]int
}

func stat(r io.Reader) (*captureStats, error) {
	st := &captureStats{count: make(map[rd.Kind]int), bytes: make(map[rd.Kind]int)}
	rr := rd.NewReader(r)
	for {
		s, err := rr.Next()
		if err == io.EOF {
			return st, nil
		}
		if err != nil {
			return st, err
		}
		st.count[s.Kind]++
		st.bytes[s.Kind] += len(s.Data)
	}
}

func (st *captureStats) String() string {
	kinds := make([]rd.Kind, 0, len(st.count))
	for k := range st.count {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	var b strings.Builder
	for _, k := range kinds {
		fmt.Fprintf(&b, "\t%-9s sections=%d bytes=%d\n", k, st.count[k], st.bytes[k])
	}
	return b.String()
}
