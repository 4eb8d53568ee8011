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
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/freedreno/kgslwrap/pkg/log"
	"github.com/freedreno/kgslwrap/pkg/rd"
)

// NewEmitter returns the log emitter selected by c. Logs go to c.LogFile,
// expanded with opts, or to stderr. The returned file, if any, is owned by
// the caller.
func (c *Config) NewEmitter(opts log.FileOpts) (log.Emitter, *os.File, error) {
	var (
		out io.Writer = os.Stderr
		f   *os.File
	)
	if c.LogFile != "" {
		var err error
		f, err = log.OpenFile(c.LogFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, opts)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		out = f
	}
	w := &log.Writer{Next: out}
	switch strings.ToLower(c.LogFormat) {
	case "json":
		return log.JSONEmitter{Writer: w}, f, nil
	default:
		return log.GoogleEmitter{Emitter: w}, f, nil
	}
}

// ConfigureLogging installs the global logger described by c and routes the
// standard library logger to it.
func ConfigureLogging(c Config, opts log.FileOpts) error {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return err
	}
	e, _, err := c.NewEmitter(opts)
	if err != nil {
		return err
	}
	log.SetTarget(e)
	log.SetLevel(level)
	return log.CopyStandardLogTo(log.Info)
}

// CommandLine returns the command line of the calling process, arguments
// separated by spaces.
func CommandLine() string {
	b, err := os.ReadFile("/proc/self/cmdline")
	if err != nil {
		return strings.Join(os.Args, " ")
	}
	b = bytes.TrimRight(b, "\x00")
	return string(bytes.ReplaceAll(b, []byte{0}, []byte{' '}))
}

// OpenCapture opens the capture named by c.Capture, expanded with opts. It
// returns nil if the capture is disabled.
func OpenCapture(c Config, opts log.FileOpts) (*rd.Writer, error) {
	if c.Capture == "" {
		return nil, nil
	}
	return rd.Create(opts.Build(c.Capture), CommandLine())
}
