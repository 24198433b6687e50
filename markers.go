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

// marker is a 32-bit little-endian wire tag identifying the kind of the
// next value in the codec stream. The set is closed and versionless.
type marker uint32

const (
	markerFalse      marker = 0
	markerTrue       marker = 1
	markerNone       marker = 2
	markerInt64      marker = 3
	markerDouble     marker = 4
	markerString     marker = 5
	markerBytes      marker = 6
	markerArrayStart marker = 7
	markerArrayEnd   marker = 8
	markerDictStart  marker = 9
	markerDictEnd    marker = 10
	markerFD         marker = 11
)
