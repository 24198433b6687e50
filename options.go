// Copyright 2015 Google Inc. All Rights Reserved.
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

package ipc

import "log"

// Options configures a Listener (and, via the subset a Connection honors,
// a direct Connect call).
type Options struct {
	Backlog          int
	MaxFDsPerMessage int
	DebugLogger      *log.Logger
	ErrorLogger      *log.Logger
}

func defaultOptions() *Options {
	return &Options{
		Backlog:          0,
		MaxFDsPerMessage: DefaultMaxFDsPerMessage,
	}
}

// ListenerOption mutates a Listener's Options at construction time.
type ListenerOption func(*Options)

// WithBacklog sets the listen backlog. The kernel minimum (0) is used by
// default.
func WithBacklog(n int) ListenerOption {
	return func(o *Options) { o.Backlog = n }
}

// WithMaxFDsPerMessage bounds how many file descriptors a single Message
// may carry. Defaults to DefaultMaxFDsPerMessage.
func WithMaxFDsPerMessage(n int) ListenerOption {
	return func(o *Options) { o.MaxFDsPerMessage = n }
}

// WithDebugLogger enables protocol-level debug logging. Pass
// DefaultDebugLogger() to honor the -ipc.debug flag, or any *log.Logger to
// always log regardless of that flag.
func WithDebugLogger(l *log.Logger) ListenerOption {
	return func(o *Options) { o.DebugLogger = l }
}

// WithErrorLogger sets the logger used for failures that do not abort the
// whole Listener (e.g. per-connection errors swallowed by ErrorHandler).
func WithErrorLogger(l *log.Logger) ListenerOption {
	return func(o *Options) { o.ErrorLogger = l }
}
