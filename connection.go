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
	"fmt"
	"log"

	"github.com/jacobsa/reqtrace"
	"github.com/jacobsa/syncutil"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// RequestHandler answers an incoming request, returning the response
// payload and any FDs it carries. Returning an error closes the
// connection; the other side's pending Send never completes successfully.
// A handler owns the fds it is given and is responsible for closing any it
// does not pass on in its response.
type RequestHandler func(ctx context.Context, conn *Connection, payload []byte, fds []*FD) ([]byte, []*FD, error)

// NotificationHandler handles an incoming notification. Returning an error
// closes the connection. A handler owns the fds it is given.
type NotificationHandler func(ctx context.Context, conn *Connection, payload []byte, fds []*FD) error

const int32Max = 1<<31 - 1

type outboxEntry struct {
	msg    Message
	result *result
	// ownsFDs is true for entries whose msg.FDs were handed to the
	// Connection by a RequestHandler's response rather than borrowed from
	// an external Send/Notify caller; writeLoop closes those FDs once they
	// have been written, since nothing else still references them.
	ownsFDs bool
}

// Connection is a duplex client/server channel multiplexing requests,
// responses, and notifications over one underlying socket. Create one by
// calling Connect (client side) or by letting a Listener Attach an accepted
// socket (server side).
type Connection struct {
	Num int

	requestHandler      RequestHandler
	notificationHandler NotificationHandler
	debugLogger         *log.Logger
	errorLogger         *log.Logger
	maxFDsPerMessage    int

	transport transport
	address   Addr

	counter *WrappedCounter

	// mu guards requests, started, done, and err; its invariant check
	// verifies that the requests map is never nil.
	mu       syncutil.InvariantMutex
	requests map[uint32]*result // GUARDED_BY(mu)
	started  bool               // GUARDED_BY(mu)
	done     chan struct{}      // GUARDED_BY(mu); closed when the run loop exits
	err      error              // GUARDED_BY(mu); sticky, first write wins

	outbox chan outboxEntry

	cancel context.CancelFunc
}

func (c *Connection) checkInvariants() {
	if c.requests == nil {
		panic("requests map must never be nil after construction")
	}
}

// newConnection builds a Connection in its pre-attach state. num identifies
// the connection for logging only.
func newConnection(num int, rh RequestHandler, nh NotificationHandler, debugLogger, errorLogger *log.Logger) *Connection {
	c := &Connection{
		Num:                 num,
		requestHandler:      rh,
		notificationHandler: nh,
		debugLogger:         debugLogger,
		errorLogger:         errorLogger,
		maxFDsPerMessage:    DefaultMaxFDsPerMessage,
		counter:             NewWrappedCounter(1, int32Max),
		requests:            make(map[uint32]*result),
	}
	c.mu = syncutil.NewInvariantMutex(c.checkInvariants)
	return c
}

// NewConnection builds a client-side Connection ready for Connect. rh and nh
// answer requests and notifications the peer sends after the handshake;
// either may be nil if this side never expects the corresponding message
// kind.
func NewConnection(rh RequestHandler, nh NotificationHandler, opts ...ListenerOption) *Connection {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	c := newConnection(0, rh, nh, o.DebugLogger, o.ErrorLogger)
	c.maxFDsPerMessage = o.MaxFDsPerMessage
	return c
}

func (c *Connection) String() string {
	return fmt.Sprintf("conn#%d(%s)", c.Num, c.address)
}

// Connect dials addr and attaches to the resulting socket. Like Attach, it
// returns as soon as the duplex run loop is ready to send and receive, not
// once the connection is torn down; call Wait to block for that.
func (c *Connection) Connect(ctx context.Context, addr Addr) error {
	t, err := dialUnixTransport(addr, c.maxFDsPerMessage)
	if err != nil {
		return err
	}
	return c.Attach(ctx, t, addr)
}

// Attach starts driving an already-connected transport in the background
// and returns once its run loop is ready, not once the connection is torn
// down. Server code obtains conn and t from a Listener's accept loop and
// calls Attach directly; client code normally calls Connect instead. Call
// Wait to block until the connection is torn down and learn its final
// error.
func (c *Connection) Attach(ctx context.Context, t transport, addr Addr) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return errors.New("ipc: connection already attached")
	}
	c.started = true
	c.transport = t
	c.address = addr
	c.outbox = make(chan outboxEntry)
	c.done = make(chan struct{})
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.debugf("attached, peer=%s", addr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.readLoop(gctx, g) })
	g.Go(func() error { return c.writeLoop(gctx) })

	// transport.read is a blocking syscall with no context awareness; once
	// either loop above fails (or the caller's ctx is cancelled), closing
	// the socket is what actually unblocks it so the errgroup can settle.
	go func() {
		<-gctx.Done()
		c.transport.close()
	}()

	// The run loop itself proceeds in the background; Attach's job ends
	// once it is launched, not once it finishes.
	go func() {
		defer cancel()

		runErr := g.Wait()
		if runErr != nil {
			c.setError(runErr)
			c.logErrorf("connection loop exited: %v", runErr)
		}

		// Shielded cleanup: always drains the outbox, fails every waiter,
		// and closes the socket, regardless of how the loops above exited.
		c.shutdown()
		close(c.done)
	}()

	return nil
}

// Wait blocks until the connection's run loop has exited — by an I/O
// error, a handler error, a clean peer close, or Close — and returns its
// final error, or nil for an orderly shutdown. Wait may be called any
// number of times once Attach/Connect has been called; called before that,
// it returns an error immediately instead of blocking.
func (c *Connection) Wait() error {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return errors.New("ipc: Wait called before Attach/Connect")
	}
	<-done

	if err := c.getError(); err != nil && !errors.Is(err, ErrClosed) {
		return err
	}
	return nil
}

// Close tears the connection down; Wait unblocks once teardown completes.
// Close is safe to call more than once and from any goroutine.
func (c *Connection) Close() error {
	c.setError(ErrClosed)
	if c.transport != nil {
		c.transport.close()
	}
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

// Send issues a request and blocks for the correlated response. fds is
// borrowed: Send does not take ownership.
func (c *Connection) Send(ctx context.Context, payload []byte, fds []*FD) ([]byte, []*FD, error) {
	if err := c.checkOpen(); err != nil {
		return nil, nil, err
	}

	ctx, report := reqtrace.Trace(ctx, "ipc.Connection.Send")
	defer report(nil)

	res := newResult()

	c.mu.Lock()
	var num uint32
	for {
		num = c.counter.Next()
		if _, taken := c.requests[num]; !taken {
			break
		}
	}
	c.requests[num] = res
	c.mu.Unlock()

	entry := outboxEntry{
		msg:    Message{Num: num, Flags: FlagRequest, Payload: payload, FDs: fds},
		result: newResult(),
	}

	if err := c.submit(ctx, entry); err != nil {
		c.mu.Lock()
		delete(c.requests, num)
		c.mu.Unlock()
		return nil, nil, err
	}

	v, fds, err := res.Wait()
	c.mu.Lock()
	delete(c.requests, num)
	c.mu.Unlock()
	if err != nil {
		return nil, nil, err
	}
	return v, fds, nil
}

// Notify sends a fire-and-forget message. It blocks only until the message
// has been handed to the transport, not for any reply (there is none).
func (c *Connection) Notify(ctx context.Context, payload []byte, fds []*FD) error {
	if err := c.checkOpen(); err != nil {
		return err
	}

	entry := outboxEntry{
		msg:    Message{Num: 0, Flags: FlagNotification, Payload: payload, FDs: fds},
		result: newResult(),
	}
	return c.submit(ctx, entry)
}

func (c *Connection) submit(ctx context.Context, entry outboxEntry) error {
	select {
	case c.outbox <- entry:
	case <-ctx.Done():
		c.releaseUnsent(entry)
		return ctx.Err()
	case <-c.done:
		err := c.getError()
		c.releaseUnsent(entry)
		return err
	}
	_, _, err := entry.result.Wait()
	return err
}

// releaseUnsent closes the FDs of an entry that will never reach writeLoop,
// for the entries (request-handler responses) whose FDs the Connection
// itself owns; a caller-supplied Send/Notify entry's FDs stay the caller's
// to close.
func (c *Connection) releaseUnsent(entry outboxEntry) {
	if !entry.ownsFDs {
		return
	}
	if err := closeAll(entry.msg.FDs); err != nil {
		c.debugf("closing fds for unsent message: %v", err)
	}
}

func (c *Connection) checkOpen() error {
	if err := c.getError(); err != nil {
		return err
	}
	if c.outbox == nil {
		return ErrClosed
	}
	return nil
}

// readLoop pulls messages off the transport and dispatches each to its own
// goroutine via g, so a slow or blocking handler never stalls delivery of
// later messages.
func (c *Connection) readLoop(ctx context.Context, g *errgroup.Group) error {
	for {
		msg, err := c.transport.read()
		if err != nil {
			if errors.Is(err, ErrNoData) {
				return ErrClosed
			}
			return err
		}
		msg := msg
		g.Go(func() error { return c.dispatchMessage(ctx, msg) })
	}
}

func (c *Connection) dispatchMessage(ctx context.Context, msg Message) (err error) {
	ctx, report := reqtrace.Trace(ctx, "ipc.Connection.dispatch")
	defer func() { report(err) }()

	switch {
	case msg.Flags&FlagRequest != 0:
		resp, respFDs, err := c.requestHandler(ctx, c, msg.Payload, msg.FDs)
		if err != nil {
			return err
		}
		entry := outboxEntry{
			msg:     Message{Num: msg.Num, Flags: FlagResponse, Payload: resp, FDs: respFDs},
			result:  newResult(),
			ownsFDs: true,
		}
		return c.submit(ctx, entry)

	case msg.Flags&FlagNotification != 0:
		return c.notificationHandler(ctx, c, msg.Payload, msg.FDs)

	case msg.Flags&FlagResponse != 0:
		c.mu.Lock()
		res, ok := c.requests[msg.Num]
		c.mu.Unlock()
		if !ok {
			c.debugf("response for unknown request #%d dropped", msg.Num)
			return closeAll(msg.FDs)
		}
		res.Set(msg.Payload, msg.FDs)
		return nil

	default:
		return errors.Errorf("ipc: message with unknown flags %d", msg.Flags)
	}
}

// writeLoop serializes every Send/Notify/response onto the wire. The
// unbuffered outbox channel gives callers implicit mutual exclusion and
// guarantees submission order reaches the transport.
func (c *Connection) writeLoop(ctx context.Context) error {
	for {
		var entry outboxEntry
		select {
		case entry = <-c.outbox:
		case <-ctx.Done():
			return nil
		}

		err := c.transport.write(entry.msg)
		if entry.ownsFDs {
			if cerr := closeAll(entry.msg.FDs); cerr != nil {
				c.debugf("closing fds after write: %v", cerr)
			}
		}
		if err != nil {
			entry.result.Fail(err)
			return err
		}
		entry.result.Set(nil, nil)
	}
}

// setError sets err as the connection's sticky error if none is set yet,
// and returns whichever error ends up recorded.
func (c *Connection) setError(err error) error {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	recorded := c.err
	c.mu.Unlock()
	return recorded
}

func (c *Connection) getError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// shutdown fails every pending request and outbox waiter and closes the
// transport. It always runs once Attach's errgroup settles, shielded from
// the context cancellation that likely caused that settling.
func (c *Connection) shutdown() {
	err := c.setError(ErrClosed)

	c.mu.Lock()
	pending := make([]*result, 0, len(c.requests))
	for num, res := range c.requests {
		pending = append(pending, res)
		delete(c.requests, num)
	}
	c.mu.Unlock()

	for _, res := range pending {
		res.Fail(err)
	}

	// writeLoop has already exited by the time shutdown runs, so nobody is
	// receiving from the unbuffered outbox; drain it so senders parked on
	// the rendezvous (Send, Notify, or a request handler's response write)
	// are failed instead of left blocked forever. submit's own select on
	// c.done closes the same window for a sender not yet parked here.
	for {
		select {
		case entry := <-c.outbox:
			entry.result.Fail(err)
			c.releaseUnsent(entry)
		default:
			if c.transport != nil {
				c.transport.close()
			}
			return
		}
	}
}

func (c *Connection) debugf(format string, args ...interface{}) {
	if c.debugLogger != nil {
		c.debugLogger.Printf("conn#%d: "+format, append([]interface{}{c.Num}, args...)...)
	}
}

func (c *Connection) logErrorf(format string, args ...interface{}) {
	if c.errorLogger != nil {
		c.errorLogger.Printf("conn#%d: "+format, append([]interface{}{c.Num}, args...)...)
	}
}
