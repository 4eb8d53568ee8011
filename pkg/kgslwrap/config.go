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
	"slices"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/freedreno/kgslwrap/pkg/log"
)

// Environment variables read by LoadConfig.
const (
	// EnvConfig names a TOML configuration file.
	EnvConfig = "KGSLWRAP_CONFIG"

	// EnvCapture overrides Config.Capture.
	EnvCapture = "KGSLWRAP_CAPTURE"

	// EnvSnapshotDir overrides Config.SnapshotDir.
	EnvSnapshotDir = "KGSLWRAP_SNAPSHOT_DIR"

	// EnvDebug, when set to a true value, sets the log level to debug.
	EnvDebug = "KGSLWRAP_DEBUG"

	// EnvEventFD overrides Config.EventFD. The launcher sets it to the
	// write end of its event pipe.
	EnvEventFD = "KGSLWRAP_EVENT_FD"
)

// TraceErrorPolicy selects what happens when the capture or a snapshot
// cannot be written.
type TraceErrorPolicy string

const (
	// TraceErrorsFatal aborts the traced process.
	TraceErrorsFatal TraceErrorPolicy = "fatal"

	// TraceErrorsDegrade stops writing the capture and snapshots, and
	// keeps tracing to the console.
	TraceErrorsDegrade TraceErrorPolicy = "degrade"
)

// Config configures a Wrapper.
type Config struct {
	// Capture is the .rd capture file. It may contain %PID% and
	// %TIMESTAMP%. Empty disables the capture.
	Capture string `toml:"capture"`

	// SnapshotDir is where buffer snapshots are written.
	SnapshotDir string `toml:"snapshot_dir"`

	// LogLevel is one of "warning", "info" or "debug".
	LogLevel string `toml:"log_level"`

	// LogFormat is "text" or "json".
	LogFormat string `toml:"log_format"`

	// LogFile is where diagnostics go. It may contain %PID% and
	// %TIMESTAMP%. Empty means stderr.
	LogFile string `toml:"log_file"`

	// FollowReferences enables dumping buffers referenced from 3D command
	// streams, followed by a snapshot of every tracked buffer.
	FollowReferences bool `toml:"follow_references"`

	// ReferenceDumpLimit caps the bytes dumped per referenced buffer.
	ReferenceDumpLimit uint64 `toml:"reference_dump_limit"`

	// SnapshotLegacyStreams snapshots the backing buffer of every valid
	// Z180 command stream.
	SnapshotLegacyStreams bool `toml:"snapshot_legacy_streams"`

	// LegacyBufferLengths are the SHAREDMEM_FROM_VMALLOC lengths that are
	// tracked. The Z180 user space driver allocates its command buffers
	// as 0x5000 byte blocks.
	LegacyBufferLengths []uint64 `toml:"legacy_buffer_lengths"`

	// ForgetClosedFDs clears the classification of a descriptor when it is
	// closed. When false, a reused descriptor keeps its old class until it
	// is reopened on a known device.
	ForgetClosedFDs bool `toml:"forget_closed_fds"`

	// TraceErrors is the policy for capture and snapshot write failures.
	TraceErrors TraceErrorPolicy `toml:"trace_errors"`

	// EventFD is a descriptor to stream ioctl events to, or -1.
	EventFD int `toml:"event_fd"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		LogLevel:              "info",
		LogFormat:             "text",
		ReferenceDumpLimit:    2048,
		SnapshotLegacyStreams: true,
		LegacyBufferLengths:   []uint64{0x5000},
		TraceErrors:           TraceErrorsFatal,
		EventFD:               -1,
	}
}

// LoadConfig returns DefaultConfig overridden by the file named in
// KGSLWRAP_CONFIG, if any, and then by the other KGSLWRAP_* variables.
// getenv is usually os.Getenv.
func LoadConfig(getenv func(string) string) (Config, error) {
	c := DefaultConfig()
	if path := getenv(EnvConfig); path != "" {
		if _, err := toml.DecodeFile(path, &c); err != nil {
			return c, fmt.Errorf("decoding config file %q: %w", path, err)
		}
	}
	if v := getenv(EnvCapture); v != "" {
		c.Capture = v
	}
	if v := getenv(EnvSnapshotDir); v != "" {
		c.SnapshotDir = v
	}
	if v := getenv(EnvDebug); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return c, fmt.Errorf("parsing %s=%q: %w", EnvDebug, v, err)
		}
		if debug {
			c.LogLevel = "debug"
		}
	}
	if v := getenv(EnvEventFD); v != "" {
		fd, err := strconv.Atoi(v)
		if err != nil {
			return c, fmt.Errorf("parsing %s=%q: %w", EnvEventFD, v, err)
		}
		c.EventFD = fd
	}
	return c, c.Validate()
}

// Validate checks that c is usable.
func (c *Config) Validate() error {
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.TraceErrors {
	case TraceErrorsFatal, TraceErrorsDegrade:
	default:
		return fmt.Errorf("invalid trace_errors %q, want %q or %q", c.TraceErrors, TraceErrorsFatal, TraceErrorsDegrade)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json", "":
	default:
		return fmt.Errorf("invalid log_format %q", c.LogFormat)
	}
	return nil
}

// isLegacyBufferLength returns true if SHAREDMEM_FROM_VMALLOC allocations of
// length n are tracked.
func (c *Config) isLegacyBufferLength(n uint64) bool {
	return slices.Contains(c.LegacyBufferLengths, n)
}
