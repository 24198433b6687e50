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
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/fenryxo/ipc"
)

func TestEndToEnd_FDPassing(t *testing.T) {
	takeAndWrite := func(ctx context.Context, conn *ipc.Connection, payload []byte, fds []*ipc.FD) ([]byte, []*ipc.FD, error) {
		if len(fds) != 1 {
			return nil, nil, errors.New("expected exactly one fd")
		}
		raw, err := fds[0].Take()
		if err != nil {
			return nil, nil, err
		}
		defer unix.Close(raw)
		if _, err := unix.Write(raw, payload); err != nil {
			return nil, nil, err
		}
		return nil, nil, nil
	}

	addr, _ := serveOnce(t, takeAndWrite, noopNotify)

	conn := ipc.NewConnection(echoHandler, noopNotify)
	ctx := dialForTest(t, conn, addr)

	path := filepath.Join(t.TempDir(), "target")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer f.Close()

	fd, err := ipc.NewFD(int(f.Fd()), true)
	if err != nil {
		t.Fatalf("NewFD: %v", err)
	}

	if _, _, err := conn.Send(ctx, []byte("hi\n"), []*ipc.FD{fd}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	// Send borrows fds; the caller remains responsible for its own handle.
	if err := fd.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "hi\n" {
		t.Errorf("file contents = %q, want %q", got, "hi\n")
	}
}

func TestEndToEnd_QuitHandshake(t *testing.T) {
	serverRH := func(ctx context.Context, conn *ipc.Connection, payload []byte, fds []*ipc.FD) ([]byte, []*ipc.FD, error) {
		if string(payload) != "quit" {
			return payload, fds, nil
		}
		reply, _, err := conn.Send(ctx, []byte("quit?"), nil)
		if err != nil {
			return nil, nil, err
		}
		if string(reply) != "true" {
			return nil, nil, errors.New("peer declined quit")
		}
		return []byte("true"), nil, nil
	}

	clientRH := func(ctx context.Context, conn *ipc.Connection, payload []byte, fds []*ipc.FD) ([]byte, []*ipc.FD, error) {
		if string(payload) == "quit?" {
			return []byte("true"), nil, nil
		}
		return payload, fds, nil
	}

	addr, _ := serveOnce(t, serverRH, noopNotify)

	conn := ipc.NewConnection(clientRH, noopNotify)
	ctx := dialForTest(t, conn, addr)

	got, _, err := conn.Send(ctx, []byte("quit"), nil)
	if err != nil {
		t.Fatalf("Send(quit): %v", err)
	}
	if string(got) != "true" {
		t.Errorf("quit handshake result = %q, want %q", got, "true")
	}
}

func TestEndToEnd_CrashIsolation(t *testing.T) {
	var errHandlerCalls int
	var mu sync.Mutex
	errHandler := func(ctx context.Context, conn *ipc.Connection, err error) error {
		mu.Lock()
		errHandlerCalls++
		mu.Unlock()
		return nil // swallow: only this connection dies
	}

	rh := func(ctx context.Context, conn *ipc.Connection, payload []byte, fds []*ipc.FD) ([]byte, []*ipc.FD, error) {
		if string(payload) == "boom" {
			return nil, nil, errors.New("simulated handler crash")
		}
		return payload, fds, nil
	}

	path := filepath.Join(t.TempDir(), "sock")
	addr := ipc.Addr(path)
	ln := ipc.NewListener(rh, noopNotify, errHandler)
	go ln.Serve(context.Background(), addr)
	waitForSocket(t, path)
	t.Cleanup(func() { ln.Close() })

	connA := ipc.NewConnection(echoHandler, noopNotify)
	ctxA := dialForTest(t, connA, addr)

	connB := ipc.NewConnection(echoHandler, noopNotify)
	ctxB := dialForTest(t, connB, addr)

	if _, _, err := connA.Send(ctxA, []byte("boom"), nil); err == nil {
		t.Error("expected A's request to fail once its connection's handler crashes")
	}

	got, _, err := connB.Send(ctxB, []byte("ping"), nil)
	if err != nil {
		t.Fatalf("B's unrelated Send failed: %v", err)
	}
	if string(got) != "ping" {
		t.Errorf("B's Send() = %q, want %q", got, "ping")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := errHandlerCalls
		mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("error handler called %d times, want 1", n)
		}
		time.Sleep(time.Millisecond)
	}
}
