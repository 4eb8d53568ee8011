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
	"flag"
	"fmt"
	"os"
	"os/exec"

	"github.com/freedreno/kgslwrap/pkg/kgslwrap"
	"github.com/freedreno/kgslwrap/pkg/log"
	"github.com/freedreno/kgslwrap/tools/kgsl_sniffer/sniffer"
	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"
)

// runCmd implements subcommands.Command for the "run" command.
type runCmd struct {
	preload     string
	config      string
	capture     string
	snapshotDir string
	debug       bool
	strict      bool
}

// Name implements subcommands.Command.
func (*runCmd) Name() string {
	return "run"
}

// Synopsis implements subcommands.Command.
func (*runCmd) Synopsis() string {
	return "run a command under the kgslwrap hook"
}

// Usage implements subcommands.Command.
func (*runCmd) Usage() string {
	return `run [flags] <command> [args...] - run a command with the hook preloaded, and summarize its KGSL ioctls
`
}

// SetFlags implements subcommands.Command.
func (c *runCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.preload, "ld_preload", "./libkgslwrap.so", "path to the hook library")
	f.StringVar(&c.config, "config", "", "path to a TOML configuration file for the hook")
	f.StringVar(&c.capture, "capture", "", "capture file to write; may contain %PID% and %TIMESTAMP%")
	f.StringVar(&c.snapshotDir, "snapshot_dir", "", "directory for buffer snapshots")
	f.BoolVar(&c.debug, "debug", false, "enable debug logging in the hook")
	f.BoolVar(&c.strict, "strict", false, "fail if an unknown KGSL ioctl was seen")
}

// env returns the environment of the traced command. The event pipe is the
// first extra file, so it is descriptor 3 in the child.
func (c *runCmd) env() []string {
	env := append(os.Environ(),
		"LD_PRELOAD="+c.preload,
		kgslwrap.EnvEventFD+"=3",
	)
	for _, kv := range []struct{ key, value string }{
		{kgslwrap.EnvConfig, c.config},
		{kgslwrap.EnvCapture, c.capture},
		{kgslwrap.EnvSnapshotDir, c.snapshotDir},
	} {
		if kv.value != "" {
			env = append(env, kv.key+"="+kv.value)
		}
	}
	if c.debug {
		env = append(env, kgslwrap.EnvDebug+"=true")
	}
	return env
}

// Execute implements subcommands.Command.
func (c *runCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() == 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	results, err := c.run(ctx, f.Args())
	if results != nil {
		log.Infof("%s", results)
	}
	if err != nil {
		log.Warningf("%v", err)
		return subcommands.ExitFailure
	}
	if c.strict && results.HasUnknownIoctl() {
		log.Warningf("Unknown KGSL ioctls were issued")
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (c *runCmd) run(ctx context.Context, args []string) (*sniffer.Results, error) {
	// Create a pipe to read the events of the command.
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	defer r.Close()

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.ExtraFiles = []*os.File{w}
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = c.env()

	if err := cmd.Start(); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to run command: %w", err)
	}
	w.Close()

	var (
		g       errgroup.Group
		results *sniffer.Results
	)
	g.Go(func() error {
		results = sniffer.ReadHookOutput(r)
		return nil
	})
	g.Go(func() error {
		if err := cmd.Wait(); err != nil {
			return fmt.Errorf("command exited with error: %w", err)
		}
		return nil
	})
	err = g.Wait()
	return results, err
}
