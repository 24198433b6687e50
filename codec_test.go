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

package ipc_test

import (
	"math"
	"testing"

	"github.com/kylelemons/godebug/pretty"

	"github.com/fenryxo/ipc"
)

func roundTrip(t *testing.T, v ipc.Value) ipc.Value {
	t.Helper()
	data, fds, err := ipc.Encode(v)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := ipc.Decode(data, fds)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return got
}

func TestCodec_RoundTrip(t *testing.T) {
	cases := map[string]ipc.Value{
		"null":          ipc.Null(),
		"false":         ipc.Bool(false),
		"true":          ipc.Bool(true),
		"zero":          ipc.Int64(0),
		"negative":      ipc.Int64(-1),
		"int64 min":     ipc.Int64(math.MinInt64),
		"int64 max":     ipc.Int64(math.MaxInt64),
		"double":        ipc.Float64(3.25),
		"double -0":     ipc.Float64(math.Copysign(0, -1)),
		"empty string":  ipc.String(""),
		"ascii string":  ipc.String("hello"),
		"utf8 string":   ipc.String("héllo 漢字 🎉"),
		"empty bytes":   ipc.Bytes(nil),
		"bytes":         ipc.Bytes([]byte{0, 1, 2, 255}),
		"empty array":   ipc.Array(),
		"nested array":  ipc.Array(ipc.Array(ipc.Int64(1)), ipc.Array(ipc.Int64(2))),
		"mixed array":   ipc.Array(ipc.Null(), ipc.Bool(true), ipc.Int64(1), ipc.String("x")),
	}
	for name, v := range cases {
		t.Run(name, func(t *testing.T) {
			got := roundTrip(t, v)
			if !v.Equal(got) {
				t.Errorf("round trip mismatch:\n%s", pretty.Compare(v, got))
			}
		})
	}
}

func TestCodec_DoubleRoundTripIsBitExact(t *testing.T) {
	v := ipc.Float64(math.NaN())
	got := roundTrip(t, v)
	gotBits := math.Float64bits(got.AsFloat64())
	wantBits := math.Float64bits(math.NaN())
	if gotBits != wantBits {
		t.Errorf("NaN round trip changed bit pattern: got %x, want %x", gotBits, wantBits)
	}
}

func TestCodec_MapRoundTrip(t *testing.T) {
	m := ipc.NewOMap()
	m.Set(ipc.String("z"), ipc.Int64(1))
	m.Set(ipc.String("a"), ipc.Int64(2))
	v := ipc.Map(m)

	got := roundTrip(t, v)
	if !v.Equal(got) {
		t.Errorf("map round trip mismatch:\n%s", pretty.Compare(v, got))
	}

	var order []string
	got.AsMap().Range(func(k, val ipc.Value) bool {
		order = append(order, k.AsString())
		return true
	})
	if order[0] != "z" || order[1] != "a" {
		t.Errorf("map round trip lost insertion order: %v", order)
	}
}

func TestCodec_FDRoundTrip(t *testing.T) {
	// These wrap arbitrary small integers, never Take'n or Closed below, so
	// no real descriptor is ever touched; only their numeric identity
	// matters for this test.
	a, err := ipc.NewFD(3, false)
	if err != nil {
		t.Fatalf("NewFD: %v", err)
	}
	b, err := ipc.NewFD(4, false)
	if err != nil {
		t.Fatalf("NewFD: %v", err)
	}

	v := ipc.Array(ipc.FDValue(a), ipc.String("between"), ipc.FDValue(b), ipc.FDValue(a))

	data, fds, err := ipc.Encode(v)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(fds) != 3 {
		t.Fatalf("Encode produced %d fds, want 3 (one per FD marker, duplicates included)", len(fds))
	}

	got, err := ipc.Decode(data, fds)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	arr := got.AsArray()
	if !arr[0].AsFD().Equal(a) || !arr[2].AsFD().Equal(b) || !arr[3].AsFD().Equal(a) {
		t.Error("decoded FD values do not match the originals by descriptor value")
	}
}

func TestCodec_FDNestedAnywhereInTree(t *testing.T) {
	fd, err := ipc.NewFD(5, false)
	if err != nil {
		t.Fatalf("NewFD: %v", err)
	}
	m := ipc.NewOMap()
	m.Set(ipc.String("handle"), ipc.Array(ipc.FDValue(fd)))
	v := ipc.Map(m)

	got := roundTrip(t, v)
	inner := got.AsMap()
	nested, ok := inner.Get(ipc.String("handle"))
	if !ok {
		t.Fatal("decoded map missing key \"handle\"")
	}
	if !nested.AsArray()[0].AsFD().Equal(fd) {
		t.Error("FD nested inside an array inside a map did not round trip")
	}
}

func TestCodec_DecodeErrors(t *testing.T) {
	cases := map[string]struct {
		data []byte
		fds  []*ipc.FD
	}{
		"empty input":               {data: nil},
		"truncated marker":          {data: []byte{1, 2}},
		"unknown marker":            {data: le32(9999)},
		"top-level array end":       {data: le32(8)}, // markerArrayEnd
		"fd index out of range":     {data: append(le32(11), le32(0)...)},
		"truncated int64":           {data: append(le32(3), []byte{1, 2, 3}...)},
		"string length past buffer": {data: append(append(le32(5), le32(10)...), []byte("hi")...)},
		"invalid utf8":              {data: append(append(le32(5), le32(1)...), 0xff)},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ipc.Decode(c.data, c.fds); err == nil {
				t.Error("expected a decode error, got nil")
			}
		})
	}
}

func TestCodec_DecodeRejectsTrailingData(t *testing.T) {
	data, _, err := ipc.Encode(ipc.Int64(1))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	data = append(data, 0, 0, 0, 0)
	if _, err := ipc.Decode(data, nil); err == nil {
		t.Error("expected an error for trailing bytes after the top-level value")
	}
}

func le32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}
