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

// MessageFlags is a bitmask identifying the role of a Message on the wire:
// a request expecting a response, a response correlated to an earlier
// request, or a notification expecting none.
type MessageFlags uint32

const (
	// FlagRequest marks a message that expects exactly one FlagResponse
	// message carrying the same Num in reply.
	FlagRequest MessageFlags = 1 << iota
	// FlagResponse marks a message that answers an earlier FlagRequest
	// with the same Num.
	FlagResponse
	// FlagNotification marks a message that expects no reply. Its Num is
	// always 0, a value the request counter never issues.
	FlagNotification
)

func (f MessageFlags) String() string {
	switch f {
	case FlagRequest:
		return "request"
	case FlagResponse:
		return "response"
	case FlagNotification:
		return "notification"
	default:
		return "unknown"
	}
}

// Message is one logical unit exchanged over a Connection: an 8-byte header
// (Num, Flags) followed by an opaque Payload and the FDs it carries out of
// band via SCM_RIGHTS. Connection and Transport never interpret Payload;
// encoding it into (and decoding it out of) a structured Value is the
// codec layer's job (see Encode/Decode), applied by callers before Send
// and after it returns.
type Message struct {
	Num     uint32
	Flags   MessageFlags
	Payload []byte
	FDs     []*FD
}
