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
	"encoding/binary"
	"math"
	"unicode/utf8"
)

// Encode serializes v into bytes plus the list of FDs referenced by it, in
// the order encountered. FD markers in the byte stream index into this
// list.
//
// Booleans are detected before integers: there is no ambiguity in Go's type
// system the way there is in a dynamically typed original, but the Kind
// switch below preserves that ordering as a documented wire invariant, not
// an accident of implementation.
func Encode(v Value) ([]byte, []*FD, error) {
	var buf []byte
	var fds []*FD
	if err := encodeValue(&buf, &fds, v); err != nil {
		return nil, nil, err
	}
	return buf, fds, nil
}

func encodeValue(buf *[]byte, fds *[]*FD, v Value) error {
	switch v.Kind {
	case KindNull:
		putMarker(buf, markerNone)
	case KindBool:
		if v.boolVal {
			putMarker(buf, markerTrue)
		} else {
			putMarker(buf, markerFalse)
		}
	case KindInt64:
		putMarker(buf, markerInt64)
		putUint64(buf, uint64(v.intVal))
	case KindFloat64:
		putMarker(buf, markerDouble)
		putUint64(buf, math.Float64bits(v.floatVal))
	case KindString:
		putMarker(buf, markerString)
		s := v.stringVal
		putUint32(buf, uint32(len(s)))
		*buf = append(*buf, s...)
	case KindBytes:
		putMarker(buf, markerBytes)
		putUint32(buf, uint32(len(v.bytesVal)))
		*buf = append(*buf, v.bytesVal...)
	case KindArray:
		putMarker(buf, markerArrayStart)
		for _, item := range v.arrayVal {
			if err := encodeValue(buf, fds, item); err != nil {
				return err
			}
		}
		putMarker(buf, markerArrayEnd)
	case KindMap:
		putMarker(buf, markerDictStart)
		var encErr error
		v.mapVal.Range(func(k, val Value) bool {
			if err := encodeValue(buf, fds, k); err != nil {
				encErr = err
				return false
			}
			if err := encodeValue(buf, fds, val); err != nil {
				encErr = err
				return false
			}
			return true
		})
		if encErr != nil {
			return encErr
		}
		putMarker(buf, markerDictEnd)
	case KindFD:
		putMarker(buf, markerFD)
		putUint32(buf, uint32(len(*fds)))
		*fds = append(*fds, v.fdVal)
	default:
		return newEncoderError("unsupported value kind %v", v.Kind)
	}
	return nil
}

func putMarker(buf *[]byte, m marker) { putUint32(buf, uint32(m)) }

func putUint32(buf *[]byte, v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	*buf = append(*buf, tmp[:]...)
}

func putUint64(buf *[]byte, v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	*buf = append(*buf, tmp[:]...)
}

// Decode deserializes data (produced by Encode, or any conformant peer)
// back into a Value, attaching fds to the FD markers encountered by index.
// Ownership of each referenced FD passes to exactly one decoded location;
// the decoder never duplicates.
func Decode(data []byte, fds []*FD) (Value, error) {
	rest, v, err := decodeValue(data, fds)
	if err != nil {
		return Value{}, err
	}
	if len(rest) != 0 {
		return Value{}, newDecoderError("trailing data after top-level value: %d byte(s)", len(rest))
	}
	if v.Kind == kindEndSentinel {
		return Value{}, newDecoderError("unexpected closing marker at top level")
	}
	return v, nil
}

// kindEndSentinel marks an ARRAY_END/DICT_END returned to an immediate
// container; it must never escape to a caller of Decode.
const kindEndSentinel Kind = 255

func endSentinel(m marker) Value {
	return Value{Kind: kindEndSentinel, intVal: int64(m)}
}

func decodeValue(data []byte, fds []*FD) ([]byte, Value, error) {
	if len(data) < 4 {
		return nil, Value{}, newDecoderError("truncated marker: need 4 bytes, have %d", len(data))
	}
	m := marker(binary.LittleEndian.Uint32(data[0:4]))
	data = data[4:]

	switch m {
	case markerNone:
		return data, Null(), nil
	case markerFalse:
		return data, Bool(false), nil
	case markerTrue:
		return data, Bool(true), nil
	case markerFD:
		idx, rest, err := takeUint32(data)
		if err != nil {
			return nil, Value{}, err
		}
		if int(idx) >= len(fds) {
			return nil, Value{}, newDecoderError("fd index %d out of range (have %d)", idx, len(fds))
		}
		return rest, FDValue(fds[idx]), nil
	case markerInt64:
		if len(data) < 8 {
			return nil, Value{}, newDecoderError("truncated int64")
		}
		return data[8:], Int64(int64(binary.LittleEndian.Uint64(data[0:8]))), nil
	case markerDouble:
		if len(data) < 8 {
			return nil, Value{}, newDecoderError("truncated double")
		}
		bits := binary.LittleEndian.Uint64(data[0:8])
		return data[8:], Float64(math.Float64frombits(bits)), nil
	case markerString:
		n, rest, err := takeUint32(data)
		if err != nil {
			return nil, Value{}, err
		}
		if uint64(n) > uint64(len(rest)) {
			return nil, Value{}, newDecoderError("string length %d exceeds remaining %d byte(s)", n, len(rest))
		}
		raw := rest[:n]
		if !utf8.Valid(raw) {
			return nil, Value{}, newDecoderError("invalid UTF-8 in string")
		}
		return rest[n:], String(string(raw)), nil
	case markerBytes:
		n, rest, err := takeUint32(data)
		if err != nil {
			return nil, Value{}, err
		}
		if uint64(n) > uint64(len(rest)) {
			return nil, Value{}, newDecoderError("bytes length %d exceeds remaining %d byte(s)", n, len(rest))
		}
		b := make([]byte, n)
		copy(b, rest[:n])
		return rest[n:], Bytes(b), nil
	case markerArrayStart:
		var result []Value
		for {
			var v Value
			var err error
			data, v, err = decodeValue(data, fds)
			if err != nil {
				return nil, Value{}, err
			}
			if v.Kind == kindEndSentinel {
				if marker(v.intVal) != markerArrayEnd {
					return nil, Value{}, newDecoderError("mismatched closing marker inside array")
				}
				break
			}
			result = append(result, v)
		}
		return data, ArraySlice(result), nil
	case markerDictStart:
		m := NewOMap()
		for {
			var key Value
			var err error
			data, key, err = decodeValue(data, fds)
			if err != nil {
				return nil, Value{}, err
			}
			if key.Kind == kindEndSentinel {
				if marker(key.intVal) != markerDictEnd {
					return nil, Value{}, newDecoderError("mismatched closing marker inside dict")
				}
				break
			}

			var val Value
			data, val, err = decodeValue(data, fds)
			if err != nil {
				return nil, Value{}, err
			}
			if val.Kind == kindEndSentinel {
				return nil, Value{}, newDecoderError("dict ended with a key but no value")
			}
			m.Set(key, val)
		}
		return data, Map(m), nil
	case markerArrayEnd:
		return data, endSentinel(markerArrayEnd), nil
	case markerDictEnd:
		return data, endSentinel(markerDictEnd), nil
	default:
		return nil, Value{}, newDecoderError("unknown marker: %d", m)
	}
}

func takeUint32(data []byte) (uint32, []byte, error) {
	if len(data) < 4 {
		return 0, nil, newDecoderError("truncated length prefix")
	}
	return binary.LittleEndian.Uint32(data[0:4]), data[4:], nil
}
