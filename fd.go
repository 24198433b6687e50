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
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// FD wraps a non-negative kernel file descriptor, tracking whether this
// handle owns it (and must close it on release) or merely borrows it.
//
// A zero FD is not valid; always construct one with NewFD or adoptFD.
type FD struct {
	mu    sync.Mutex
	value int
	owned bool
}

// NewFD wraps value. If duplicate is true, value is dup'd immediately and
// the new descriptor is owned by the returned FD; value itself is left
// alone. If duplicate is false, ownership of value itself passes to the
// returned FD.
func NewFD(value int, duplicate bool) (*FD, error) {
	if value < 0 {
		return nil, fmt.Errorf("ipc: invalid file descriptor: %d", value)
	}

	if duplicate {
		dup, err := unix.Dup(value)
		if err != nil {
			return nil, wrapf(err, "dup fd %d", value)
		}
		value = dup
	}

	return &FD{value: value, owned: true}, nil
}

// adoptFD wraps an already-owned descriptor, e.g. one just extracted from a
// SCM_RIGHTS control message. The caller must not use value again directly.
func adoptFD(value int) *FD {
	return &FD{value: value, owned: true}
}

// Get returns the descriptor's value without affecting ownership.
func (f *FD) Get() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value
}

// Owned reports whether this handle will close the descriptor when released.
func (f *FD) Owned() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.owned
}

// Take transfers ownership of the descriptor to the caller, who becomes
// responsible for closing it. If this handle currently owns the descriptor,
// Take clears its own ownership flag and returns the same value. Otherwise
// it duplicates the descriptor and returns a brand new, independently-owned
// value; the original is left alone and still belongs to whoever owns it.
func (f *FD) Take() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.owned {
		f.owned = false
		return f.value, nil
	}

	dup, err := unix.Dup(f.value)
	if err != nil {
		return 0, wrapf(err, "dup fd %d", f.value)
	}
	return dup, nil
}

// Close closes the descriptor if this handle still owns it. Close is
// idempotent; it is safe to call more than once and safe to call
// concurrently with Take/Get.
func (f *FD) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.owned {
		return nil
	}
	f.owned = false
	return unix.Close(f.value)
}

func (f *FD) String() string {
	return fmt.Sprintf("fd:%d", f.Get())
}

// Equal compares two FD handles by descriptor value only, ignoring
// ownership, so a borrowed and an owned handle to the same descriptor
// compare equal.
func (f *FD) Equal(other *FD) bool {
	if f == nil || other == nil {
		return f == other
	}
	return f.Get() == other.Get()
}

// closeAll closes every FD in fds, continuing past errors so that one
// failure does not leak the rest, and returns the first error seen.
func closeAll(fds []*FD) error {
	var first error
	for _, fd := range fds {
		if err := fd.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
