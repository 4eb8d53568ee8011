// Copyright 2022 The gVisor Authors.
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
	"time"

	"golang.org/x/time/rate"
)

// DepthLogger is a Logger that can attribute a message to a caller further
// up the stack. BasicLogger implements it.
type DepthLogger interface {
	Logger
	DebugfAtDepth(depth int, format string, v ...any)
	InfofAtDepth(depth int, format string, v ...any)
	WarningfAtDepth(depth int, format string, v ...any)
}

// rateLimitedLogger drops messages that exceed its limit. Messages that pass
// are attributed to the caller of the rateLimitedLogger when the wrapped
// logger is a DepthLogger.
type rateLimitedLogger struct {
	logger Logger
	limit  *rate.Limiter
}

// Debugf implements Logger.Debugf.
func (rl *rateLimitedLogger) Debugf(format string, v ...any) {
	rl.DebugfAtDepth(1, format, v...)
}

// Infof implements Logger.Infof.
func (rl *rateLimitedLogger) Infof(format string, v ...any) {
	rl.InfofAtDepth(1, format, v...)
}

// Warningf implements Logger.Warningf.
func (rl *rateLimitedLogger) Warningf(format string, v ...any) {
	rl.WarningfAtDepth(1, format, v...)
}

// DebugfAtDepth implements DepthLogger.DebugfAtDepth.
func (rl *rateLimitedLogger) DebugfAtDepth(depth int, format string, v ...any) {
	if !rl.limit.Allow() {
		return
	}
	if dl, ok := rl.logger.(DepthLogger); ok {
		dl.DebugfAtDepth(1+depth, format, v...)
		return
	}
	rl.logger.Debugf(format, v...)
}

// InfofAtDepth implements DepthLogger.InfofAtDepth.
func (rl *rateLimitedLogger) InfofAtDepth(depth int, format string, v ...any) {
	if !rl.limit.Allow() {
		return
	}
	if dl, ok := rl.logger.(DepthLogger); ok {
		dl.InfofAtDepth(1+depth, format, v...)
		return
	}
	rl.logger.Infof(format, v...)
}

// WarningfAtDepth implements DepthLogger.WarningfAtDepth.
func (rl *rateLimitedLogger) WarningfAtDepth(depth int, format string, v ...any) {
	if !rl.limit.Allow() {
		return
	}
	if dl, ok := rl.logger.(DepthLogger); ok {
		dl.WarningfAtDepth(1+depth, format, v...)
		return
	}
	rl.logger.Warningf(format, v...)
}

// IsLogging implements Logger.IsLogging.
func (rl *rateLimitedLogger) IsLogging(level Level) bool {
	return rl.logger.IsLogging(level)
}

// RateLimitedLogger returns a Logger that logs to logger no more than once
// per every. Like logger, it reports the file and line of its own caller.
func RateLimitedLogger(logger Logger, every time.Duration) DepthLogger {
	return &rateLimitedLogger{
		logger: logger,
		limit:  rate.NewLimiter(rate.Every(every), 1),
	}
}
