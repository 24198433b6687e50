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

import "math"

// OMap is an insertion-ordered mapping from Value to Value. Keys may be any
// Value the wire permits, including arrays and nested maps; the encoder
// does not constrain key shape.
//
// Go maps cannot be keyed directly by Value (it holds slice/pointer
// fields), so OMap keys entries by a canonical byte encoding of the key
// value and keeps the actual Key/Value pairs in an ordered slice.
type OMap struct {
	entries []omapEntry
	index   map[string]int // canonical key bytes -> index into entries
}

type omapEntry struct {
	key   Value
	value Value
}

// NewOMap returns an empty ordered map.
func NewOMap() *OMap {
	return &OMap{index: make(map[string]int)}
}

// Len returns the number of entries.
func (m *OMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}

// Set inserts or updates the value for key, preserving the position of an
// existing key and appending a new one at the end.
func (m *OMap) Set(key, value Value) {
	canon := canonicalKey(key)
	if i, ok := m.index[canon]; ok {
		m.entries[i].value = value
		return
	}
	m.index[canon] = len(m.entries)
	m.entries = append(m.entries, omapEntry{key: key, value: value})
}

// Get returns the value for key and whether it was present.
func (m *OMap) Get(key Value) (Value, bool) {
	if m == nil {
		return Value{}, false
	}
	i, ok := m.index[canonicalKey(key)]
	if !ok {
		return Value{}, false
	}
	return m.entries[i].value, true
}

// Range calls fn for every entry in insertion order. fn returning false
// stops iteration early.
func (m *OMap) Range(fn func(key, value Value) bool) {
	if m == nil {
		return
	}
	for _, e := range m.entries {
		if !fn(e.key, e.value) {
			return
		}
	}
}

// Equal reports whether two ordered maps have the same entries in the same
// order.
func (m *OMap) Equal(other *OMap) bool {
	if m.Len() != other.Len() {
		return false
	}
	for i, e := range m.entries {
		oe := other.entries[i]
		if !e.key.Equal(oe.key) || !e.value.Equal(oe.value) {
			return false
		}
	}
	return true
}

// canonicalKey produces a byte-comparable encoding of a key Value. Every
// variable-length field (string and bytes content) is length-prefixed, and
// every array or map is prefixed by its element count, so
// that no two distinct keys can canonicalize to the same byte string
// regardless of nesting inside arrays or maps. FD handles are not valid map
// keys in practice (the codec would need to invent an external FD-list
// entry for them); canonicalKey encodes them by their current descriptor
// value only, which is sufficient for map-key identity purposes even though
// it is not a faithful wire round-trip.
func canonicalKey(v Value) string {
	var buf []byte
	appendCanonicalKey(&buf, v)
	return string(buf)
}

func appendCanonicalKey(buf *[]byte, v Value) {
	*buf = append(*buf, byte(v.Kind))
	switch v.Kind {
	case KindNull:
	case KindBool:
		if v.boolVal {
			*buf = append(*buf, 1)
		} else {
			*buf = append(*buf, 0)
		}
	case KindInt64:
		*buf = appendUint64(*buf, uint64(v.intVal))
	case KindFloat64:
		*buf = appendUint64(*buf, math.Float64bits(v.floatVal))
	case KindString:
		*buf = appendUint64(*buf, uint64(len(v.stringVal)))
		*buf = append(*buf, v.stringVal...)
	case KindBytes:
		*buf = appendUint64(*buf, uint64(len(v.bytesVal)))
		*buf = append(*buf, v.bytesVal...)
	case KindArray:
		*buf = appendUint64(*buf, uint64(len(v.arrayVal)))
		for _, item := range v.arrayVal {
			appendCanonicalKey(buf, item)
		}
	case KindMap:
		*buf = appendUint64(*buf, uint64(v.mapVal.Len()))
		v.mapVal.Range(func(k, val Value) bool {
			appendCanonicalKey(buf, k)
			appendCanonicalKey(buf, val)
			return true
		})
	case KindFD:
		*buf = appendUint64(*buf, uint64(v.fdVal.Get()))
	}
}

func appendUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	for i := 0; i < 8; i++ {
		tmp[i] = byte(v >> (8 * i))
	}
	return append(buf, tmp[:]...)
}
