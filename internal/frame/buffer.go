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

// Package frame provides a growable byte buffer used to assemble and parse
// the 8-byte (num, flags) wire header plus payload that make up one IPC
// message, and a pool of such buffers so that a busy Connection does not
// allocate one per message.
package frame

import "sync"

const HeaderSize = 8

// Buffer is a []byte that grows by doubling, sized here for an 8-byte
// message header (num, flags) followed by an opaque payload.
type Buffer struct {
	b []byte
}

// NewBuffer returns a Buffer with HeaderSize zeroed bytes already present
// and room to grow by extra more without reallocating.
func NewBuffer(extra int) *Buffer {
	buf := &Buffer{b: make([]byte, HeaderSize, HeaderSize+extra)}
	return buf
}

// Grow extends the buffer by size bytes and returns a slice over the new
// segment for the caller to fill in.
func (b *Buffer) Grow(size int) []byte {
	l := len(b.b)
	if l+size > cap(b.b) {
		grown := make([]byte, l, 2*cap(b.b)+size)
		copy(grown, b.b)
		b.b = grown
	}
	b.b = b.b[:l+size]
	return b.b[l : l+size]
}

// Bytes returns the buffer's current contents, header included.
func (b *Buffer) Bytes() []byte { return b.b }

// Header returns the first HeaderSize bytes, for filling in num/flags.
func (b *Buffer) Header() []byte { return b.b[:HeaderSize] }

// Payload returns everything after the header.
func (b *Buffer) Payload() []byte { return b.b[HeaderSize:] }

// Reset clears the buffer back to a zeroed header with no payload, keeping
// its underlying storage for reuse.
func (b *Buffer) Reset() {
	for i := range b.b[:cap(b.b)] {
		b.b[i] = 0
	}
	b.b = b.b[:HeaderSize]
}

// Pool recycles Buffers across messages on a Connection, avoiding an
// allocation per frame in the steady state.
type Pool struct {
	pool sync.Pool
}

// NewPool returns a Pool that hands out Buffers with extra spare payload
// capacity pre-reserved.
func NewPool(extra int) *Pool {
	p := &Pool{}
	p.pool.New = func() interface{} { return NewBuffer(extra) }
	return p
}

func (p *Pool) Get() *Buffer {
	return p.pool.Get().(*Buffer)
}

func (p *Pool) Put(b *Buffer) {
	b.Reset()
	p.pool.Put(b)
}
