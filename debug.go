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

import (
	"flag"
	"io"
	"log"
	"os"
	"sync"
)

var fEnableDebug = flag.Bool(
	"ipc.debug",
	false,
	"Write ipc debugging messages to stderr.")

var gDebugLogger *log.Logger
var gDebugLoggerOnce sync.Once

func initDebugLogger() {
	var writer io.Writer = io.Discard
	if flag.Parsed() && *fEnableDebug {
		writer = os.Stderr
	}

	const flags = log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile
	gDebugLogger = log.New(writer, "ipc: ", flags)
}

// DefaultDebugLogger returns the package-wide logger gated by the -ipc.debug
// flag. Connections and Listeners do not use it unless a caller passes it
// explicitly via WithDebugLogger; by default debug logging is off (nil
// logger), matching the "loggers may be nil" contract.
func DefaultDebugLogger() *log.Logger {
	gDebugLoggerOnce.Do(initDebugLogger)
	return gDebugLogger
}
