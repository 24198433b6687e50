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
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/fenryxo/ipc/internal/frame"
)

// unixTransport is the transport implementation backed by a connected
// UNIX-domain SOCK_SEQPACKET descriptor: SCM_RIGHTS FD passing via
// unix.Sendmsg/unix.ParseSocketControlMessage/unix.ParseUnixRights, with
// an EINTR-retry loop around every blocking syscall.
type unixTransport struct {
	fd     int
	peer   Addr
	maxFDs int

	closeOnce sync.Once

	pool *frame.Pool
}

func newUnixSocket() (int, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_SEQPACKET, 0)
	if err != nil {
		return -1, newTransportError("create socket", err)
	}
	return fd, nil
}

func sockaddrFor(addr Addr) *unix.SockaddrUnix {
	return &unix.SockaddrUnix{Name: string(addr)}
}

// dialUnixTransport connects a fresh SEQPACKET socket to addr.
func dialUnixTransport(addr Addr, maxFDs int) (*unixTransport, error) {
	fd, err := newUnixSocket()
	if err != nil {
		return nil, err
	}

	for {
		err = unix.Connect(fd, sockaddrFor(addr))
		if err == unix.EINTR {
			continue
		}
		break
	}
	if err != nil {
		unix.Close(fd)
		return nil, newTransportError("connect", err)
	}

	return newUnixTransport(fd, addr, maxFDs), nil
}

func newUnixTransport(fd int, peer Addr, maxFDs int) *unixTransport {
	if maxFDs <= 0 {
		maxFDs = DefaultMaxFDsPerMessage
	}
	return &unixTransport{
		fd:     fd,
		peer:   peer,
		maxFDs: maxFDs,
		pool:   frame.NewPool(256),
	}
}

func (t *unixTransport) remoteAddr() Addr { return t.peer }

// read blocks for the next Message. FDs extracted from the ancillary
// buffer are wrapped in owned handles immediately, so a later framing
// error never leaks them.
func (t *unixTransport) read() (Message, error) {
	buf := t.pool.Get()
	defer t.pool.Put(buf)

	payload := buf.Grow(64 * 1024)
	oob := make([]byte, unix.CmsgSpace(4*t.maxFDs))

	var n, oobn int
	var err error
	for {
		n, oobn, _, _, err = unix.Recvmsg(t.fd, payload, oob, 0)
		if err == unix.EINTR {
			continue
		}
		break
	}
	if err != nil {
		return Message{}, newTransportError("recvmsg", err)
	}
	if n == 0 && oobn == 0 {
		return Message{}, ErrNoData
	}
	fds, err := extractFDs(oob[:oobn])
	if err != nil {
		return Message{}, err
	}
	if n < frame.HeaderSize {
		closeRawFDs(fds)
		return Message{}, newTransportError("short read", nil)
	}

	header := payload[:frame.HeaderSize]
	body := make([]byte, n-frame.HeaderSize)
	copy(body, payload[frame.HeaderSize:n])

	num := binary.LittleEndian.Uint32(header[0:4])
	flags := binary.LittleEndian.Uint32(header[4:8])

	return Message{Num: num, Flags: MessageFlags(flags), Payload: body, FDs: fds}, nil
}

func extractFDs(oob []byte) ([]*FD, error) {
	if len(oob) == 0 {
		return nil, nil
	}

	scms, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil, newTransportError("parse control message", err)
	}

	var fds []*FD
	for _, scm := range scms {
		raw, err := unix.ParseUnixRights(&scm)
		if err != nil {
			closeRawFDs(fds)
			return nil, newTransportError("parse unix rights", err)
		}
		for _, v := range raw {
			fds = append(fds, adoptFD(v))
		}
	}
	return fds, nil
}

func closeRawFDs(fds []*FD) {
	for _, fd := range fds {
		fd.Close()
	}
}

// write sends msg as a single SEQPACKET datagram. FDs are borrowed: the
// caller retains ownership after write returns.
func (t *unixTransport) write(msg Message) error {
	if len(msg.FDs) > t.maxFDs {
		return newTransportError("too many FDs in one message", nil)
	}

	buf := t.pool.Get()
	defer t.pool.Put(buf)

	binary.LittleEndian.PutUint32(buf.Header()[0:4], msg.Num)
	binary.LittleEndian.PutUint32(buf.Header()[4:8], uint32(msg.Flags))
	copy(buf.Grow(len(msg.Payload)), msg.Payload)

	var oob []byte
	if len(msg.FDs) > 0 {
		raw := make([]int, len(msg.FDs))
		for i, fd := range msg.FDs {
			raw[i] = fd.Get()
		}
		oob = unix.UnixRights(raw...)
	}

	var err error
	for {
		err = unix.Sendmsg(t.fd, buf.Bytes(), oob, nil, 0)
		if err == unix.EINTR {
			continue
		}
		break
	}
	if err != nil {
		return newTransportError("sendmsg", err)
	}
	return nil
}

func (t *unixTransport) close() error {
	var err error
	t.closeOnce.Do(func() {
		err = unix.Close(t.fd)
	})
	if err != nil {
		return newTransportError("close", err)
	}
	return nil
}

// unixListener wraps a bound, listening SEQPACKET socket.
type unixListener struct {
	fd      int
	addr    Addr
	maxFDs  int
	closeMu sync.Once
}

func listenUnixTransport(addr Addr, backlog, maxFDs int) (*unixListener, error) {
	if path, ok := addr.Path(); ok {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, newTransportError("remove dangling socket", err)
		}
	}

	fd, err := newUnixSocket()
	if err != nil {
		return nil, err
	}

	if err := unix.Bind(fd, sockaddrFor(addr)); err != nil {
		unix.Close(fd)
		return nil, newTransportError("bind", err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return nil, newTransportError("listen", err)
	}

	return &unixListener{fd: fd, addr: addr, maxFDs: maxFDs}, nil
}

// accept blocks for the next incoming connection, returning a transport
// attached to it that records the peer's address (see remoteAddr). That
// address is the one the kernel actually reported for the accepted peer,
// not a placeholder.
func (l *unixListener) accept() (*unixTransport, error) {
	for {
		nfd, sa, err := unix.Accept4(l.fd, 0)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return nil, newTransportError("accept", err)
		}

		peer := peerAddr(sa)
		return newUnixTransport(nfd, peer, l.maxFDs), nil
	}
}

func peerAddr(sa unix.Sockaddr) Addr {
	su, ok := sa.(*unix.SockaddrUnix)
	if !ok || su.Name == "" {
		return nil
	}
	return Addr(su.Name)
}

func (l *unixListener) close() error {
	var err error
	l.closeMu.Do(func() {
		err = unix.Close(l.fd)
	})
	if err != nil {
		return newTransportError("close listener", err)
	}
	return nil
}
