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

import "sync"

// result is a oneshot synchronization cell: exactly one of Set or Fail may
// be called, after which every Wait call (including ones already blocked)
// unblocks. A failed result re-raises the same error on every subsequent
// Wait, matching the reference Result.wait's re-raise-on-repeat semantics.
type result struct {
	once    sync.Once
	done    chan struct{}
	payload []byte
	fds     []*FD
	err     error
}

func newResult() *result {
	return &result{done: make(chan struct{})}
}

// Set records a successful payload (and any FDs that arrived with it) and
// wakes every waiter. Calling it more than once (including after Fail) has
// no effect beyond the first call.
func (r *result) Set(payload []byte, fds []*FD) {
	r.once.Do(func() {
		r.payload = payload
		r.fds = fds
		close(r.done)
	})
}

// Fail records a failure and wakes every waiter. Calling it more than once
// (including after Set) has no effect beyond the first call.
func (r *result) Fail(err error) {
	r.once.Do(func() {
		r.err = err
		close(r.done)
	})
}

// Wait blocks until Set or Fail has been called, then returns the recorded
// value or re-raises the recorded error. It may be called any number of
// times, by any number of goroutines, concurrently or sequentially.
func (r *result) Wait() ([]byte, []*FD, error) {
	<-r.done
	if r.err != nil {
		return nil, nil, r.err
	}
	return r.payload, r.fds, nil
}

// Done reports whether Set or Fail has already been called, without
// blocking.
func (r *result) Done() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}
