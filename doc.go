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

// Package ipc implements a bidirectional message-passing IPC core over
// UNIX-domain SEQPACKET sockets, able to carry both opaque byte payloads and
// kernel file descriptors.
//
// The primary elements of interest are:
//
//  *  Connection, a duplex channel over which either peer may issue
//     requests (expecting a response), notifications (no response), or
//     answer a peer's request.
//
//  *  Listener, which accepts inbound connections and attaches each to its
//     own Connection, isolating per-connection failures.
//
//  *  Codec, the tagged-value wire format used to turn the native Value
//     domain into bytes plus an external file-descriptor list.
//
// This package implements only local UNIX-domain socket transport; it does
// not implement authentication, schema versioning, or encryption.
package ipc
