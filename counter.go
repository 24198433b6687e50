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
	"sync"

	"github.com/pkg/errors"
)

// WrappedCounter produces a strictly increasing sequence of request numbers
// in [start, limit), wrapping back to start once limit is reached. It is
// safe for concurrent use, and never yields a value outside [start, limit).
type WrappedCounter struct {
	mu    sync.Mutex
	start uint32
	limit uint32
	value uint32
}

// NewWrappedCounter returns a counter that starts at start and wraps back to
// start once it would otherwise reach limit. It panics if start >= limit.
func NewWrappedCounter(start, limit uint32) *WrappedCounter {
	if start >= limit {
		panic(errors.Errorf("ipc: start (%d) must be less than limit (%d)", start, limit))
	}
	return &WrappedCounter{start: start, limit: limit, value: start}
}

// Next returns the next value in the sequence.
func (c *WrappedCounter) Next() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.value >= c.limit {
		c.value = c.start
	}
	v := c.value
	c.value++
	return v
}
