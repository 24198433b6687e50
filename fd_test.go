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
	"os"
	"testing"

	"golang.org/x/sys/unix"
)

func tempFD(t *testing.T) int {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "ipc-fd-test")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return int(f.Fd())
}

func TestFD_TakeTransfersOwnership(t *testing.T) {
	raw := tempFD(t)
	fd, err := NewFD(raw, false)
	if err != nil {
		t.Fatalf("NewFD: %v", err)
	}
	if !fd.Owned() {
		t.Fatal("expected newly constructed FD to be owned")
	}

	got, err := fd.Take()
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	if got != raw {
		t.Fatalf("Take returned %d, want %d", got, raw)
	}
	if fd.Owned() {
		t.Fatal("Take must release ownership")
	}

	// Close after Take must not close the underlying descriptor again.
	if err := fd.Close(); err != nil {
		t.Fatalf("Close after Take: %v", err)
	}
	unix.Close(got)
}

func TestFD_TakeAfterReleaseDuplicates(t *testing.T) {
	raw := tempFD(t)
	fd, err := NewFD(raw, false)
	if err != nil {
		t.Fatalf("NewFD: %v", err)
	}
	first, err := fd.Take()
	if err != nil {
		t.Fatalf("first Take: %v", err)
	}
	defer unix.Close(first)

	second, err := fd.Take()
	if err != nil {
		t.Fatalf("second Take: %v", err)
	}
	defer unix.Close(second)

	if second == first {
		t.Fatal("Take after ownership was already released must duplicate, not return the same value")
	}
}

func TestFD_CloseIsIdempotent(t *testing.T) {
	raw := tempFD(t)
	fd, err := NewFD(raw, false)
	if err != nil {
		t.Fatalf("NewFD: %v", err)
	}
	if err := fd.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := fd.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestFD_GetDoesNotTransferOwnership(t *testing.T) {
	raw := tempFD(t)
	fd, err := NewFD(raw, false)
	if err != nil {
		t.Fatalf("NewFD: %v", err)
	}
	if got := fd.Get(); got != raw {
		t.Fatalf("Get() = %d, want %d", got, raw)
	}
	if !fd.Owned() {
		t.Fatal("Get must not release ownership")
	}
	fd.Close()
}

func TestFD_Equal(t *testing.T) {
	raw := tempFD(t)
	a, _ := NewFD(raw, false)
	b := adoptFD(raw)
	if !a.Equal(b) {
		t.Fatal("two FDs wrapping the same descriptor value must compare equal")
	}
	a.Take() // prevent double-close in cleanup
	b.Close()
}
