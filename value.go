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

import "fmt"

// Kind discriminates the variant held by a Value. This is an explicit
// variant-dispatch replacement for a duck-typed isinstance chain, avoiding
// reflection on a dynamically typed union.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt64
	KindFloat64
	KindString
	KindBytes
	KindArray
	KindMap
	KindFD
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt64:
		return "int64"
	case KindFloat64:
		return "float64"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindArray:
		return "array"
	case KindMap:
		return "map"
	case KindFD:
		return "fd"
	default:
		return "unknown"
	}
}

// Value is the recursive native data model this package's codec serializes:
// null, boolean, signed 64-bit integer, IEEE-754 double, UTF-8 text,
// opaque bytes, an ordered array of values, an insertion-ordered mapping
// from value to value, or a file descriptor handle.
//
// Only the fields relevant to Kind are meaningful; zero the rest. Use the
// constructors (Null, Bool, Int64, ...) rather than struct literals.
type Value struct {
	Kind Kind

	boolVal   bool
	intVal    int64
	floatVal  float64
	stringVal string
	bytesVal  []byte
	arrayVal  []Value
	mapVal    *OMap
	fdVal     *FD
}

func Null() Value                { return Value{Kind: KindNull} }
func Bool(v bool) Value          { return Value{Kind: KindBool, boolVal: v} }
func Int64(v int64) Value        { return Value{Kind: KindInt64, intVal: v} }
func Float64(v float64) Value    { return Value{Kind: KindFloat64, floatVal: v} }
func String(v string) Value      { return Value{Kind: KindString, stringVal: v} }
func Bytes(v []byte) Value       { return Value{Kind: KindBytes, bytesVal: v} }
func Array(v ...Value) Value     { return Value{Kind: KindArray, arrayVal: v} }
func Map(m *OMap) Value          { return Value{Kind: KindMap, mapVal: m} }
func FDValue(fd *FD) Value       { return Value{Kind: KindFD, fdVal: fd} }
func ArraySlice(v []Value) Value { return Value{Kind: KindArray, arrayVal: v} }

func (v Value) IsNull() bool { return v.Kind == KindNull }

// AsBool returns the wrapped boolean. Panics if Kind != KindBool; callers
// that accept arbitrary wire input should check Kind first.
func (v Value) AsBool() bool { v.mustBe(KindBool); return v.boolVal }

func (v Value) AsInt64() int64 { v.mustBe(KindInt64); return v.intVal }

func (v Value) AsFloat64() float64 { v.mustBe(KindFloat64); return v.floatVal }

func (v Value) AsString() string { v.mustBe(KindString); return v.stringVal }

func (v Value) AsBytes() []byte { v.mustBe(KindBytes); return v.bytesVal }

func (v Value) AsArray() []Value { v.mustBe(KindArray); return v.arrayVal }

func (v Value) AsMap() *OMap { v.mustBe(KindMap); return v.mapVal }

func (v Value) AsFD() *FD { v.mustBe(KindFD); return v.fdVal }

func (v Value) mustBe(k Kind) {
	if v.Kind != k {
		panic(fmt.Sprintf("ipc: Value is %s, not %s", v.Kind, k))
	}
}

// Equal reports structural equality under the round-trip law: mapping
// insertion order matters, booleans never compare equal to integers, and FD
// handles compare by descriptor value (via FD.Equal).
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}

	switch v.Kind {
	case KindNull:
		return true
	case KindBool:
		return v.boolVal == other.boolVal
	case KindInt64:
		return v.intVal == other.intVal
	case KindFloat64:
		return v.floatVal == other.floatVal || (isNaN(v.floatVal) && isNaN(other.floatVal))
	case KindString:
		return v.stringVal == other.stringVal
	case KindBytes:
		return bytesEqual(v.bytesVal, other.bytesVal)
	case KindArray:
		if len(v.arrayVal) != len(other.arrayVal) {
			return false
		}
		for i := range v.arrayVal {
			if !v.arrayVal[i].Equal(other.arrayVal[i]) {
				return false
			}
		}
		return true
	case KindMap:
		return v.mapVal.Equal(other.mapVal)
	case KindFD:
		return v.fdVal.Equal(other.fdVal)
	default:
		return false
	}
}

func isNaN(f float64) bool { return f != f }

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
