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
	"context"
	"log"
	"sync"

	"github.com/jacobsa/syncutil"
)

// ErrorHandler is invoked when a client connection fails: its Attach or
// Wait returns an error. Returning a non-nil error from ErrorHandler terminates the
// Listener (every other connection is closed too); returning nil leaves
// the rest of the Listener running.
type ErrorHandler func(ctx context.Context, conn *Connection, err error) error

// Listener accepts client connections on a UNIX-domain SEQPACKET socket and
// runs one Connection per accepted peer.
type Listener struct {
	requestHandler      RequestHandler
	notificationHandler NotificationHandler
	errorHandler        ErrorHandler
	backlog             int
	maxFDsPerMessage    int
	debugLogger         *log.Logger
	errorLogger         *log.Logger

	addr Addr
	ln   *unixListener

	counter *WrappedCounter

	mu          syncutil.InvariantMutex
	connections map[int]*Connection // GUARDED_BY(mu)
}

func (l *Listener) checkInvariants() {
	if l.connections == nil {
		panic("connections map must never be nil after construction")
	}
}

// NewListener constructs a Listener that has not yet bound to any address.
// Call Serve to bind and start accepting.
func NewListener(rh RequestHandler, nh NotificationHandler, eh ErrorHandler, opts ...ListenerOption) *Listener {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	l := &Listener{
		requestHandler:      rh,
		notificationHandler: nh,
		errorHandler:        eh,
		backlog:             o.Backlog,
		maxFDsPerMessage:    o.MaxFDsPerMessage,
		debugLogger:         o.DebugLogger,
		errorLogger:         o.ErrorLogger,
		counter:             NewWrappedCounter(1, int32Max),
		connections:         make(map[int]*Connection),
	}
	l.mu = syncutil.NewInvariantMutex(l.checkInvariants)
	return l
}

// Serve binds addr and accepts connections until ctx is cancelled or Close
// is called. Each accepted peer runs on its own goroutine; an accept-loop
// failure (but not a single connection's failure, unless its ErrorHandler
// re-raises) stops Serve and returns the error.
func (l *Listener) Serve(ctx context.Context, addr Addr) error {
	ln, err := listenUnixTransport(addr, l.backlog, l.maxFDsPerMessage)
	if err != nil {
		return err
	}
	l.addr = addr
	l.ln = ln

	go func() {
		<-ctx.Done()
		ln.close()
	}()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		t, err := ln.accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.acceptOne(ctx, t); err != nil {
				l.Close()
			}
		}()
	}
}

// acceptOne runs one accepted connection to completion and routes any
// failure through the configured ErrorHandler. A non-nil return terminates
// the whole Listener. The connection handed to both the handler and Attach
// carries the address the kernel actually reported for the peer.
func (l *Listener) acceptOne(ctx context.Context, t *unixTransport) error {
	l.mu.Lock()
	var num int
	for {
		num = int(l.counter.Next())
		if _, taken := l.connections[num]; !taken {
			break
		}
	}
	conn := newConnection(num, l.requestHandler, l.notificationHandler, l.debugLogger, l.errorLogger)
	conn.maxFDsPerMessage = l.maxFDsPerMessage
	l.connections[num] = conn
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.connections, num)
		l.mu.Unlock()
	}()

	if err := conn.Attach(ctx, t, t.remoteAddr()); err != nil {
		if l.errorHandler == nil {
			return err
		}
		return l.errorHandler(ctx, conn, err)
	}

	err := conn.Wait()
	if err == nil {
		return nil
	}

	if l.errorHandler == nil {
		return err
	}
	return l.errorHandler(ctx, conn, err)
}

// Close stops accepting new connections and closes every connection
// currently being served.
func (l *Listener) Close() error {
	if l.ln != nil {
		l.ln.close()
	}

	l.mu.Lock()
	conns := make([]*Connection, 0, len(l.connections))
	for _, c := range l.connections {
		conns = append(conns, c)
	}
	l.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
	return nil
}

// Addr returns the address the Listener is bound to, or nil before Serve
// has bound a socket.
func (l *Listener) Addr() Addr { return l.addr }
