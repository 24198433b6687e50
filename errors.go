// Copyright 2015 Google Inc. All Rights Reserved.
// Author: jacobsa@google.com (Aaron Jacobs)

package ipc

import (
	"github.com/pkg/errors"
)

// IPCError is implemented by every error type this package returns for a
// protocol-level failure, as opposed to a plain I/O error bubbled up
// unchanged from the kernel.
type IPCError interface {
	error
	ipcError()
}

// baseError gives TransportError and CodecError a shared ipcError marker
// without repeating it on every leaf type.
type baseError struct {
	cause error
	msg   string
}

func (e *baseError) ipcError() {}

func (e *baseError) Error() string {
	if e.cause != nil {
		return e.msg + ": " + e.cause.Error()
	}
	return e.msg
}

func (e *baseError) Cause() error { return e.cause }

func (e *baseError) Unwrap() error { return e.cause }

// TransportError reports a framing or socket-level failure: a short read, a
// malformed header, oversize ancillary data, or an I/O error from the
// underlying socket other than a clean peer close.
type TransportError struct{ baseError }

func newTransportError(msg string, cause error) *TransportError {
	return &TransportError{baseError{cause: cause, msg: msg}}
}

// CodecError is the common type of EncoderError and DecoderError.
type CodecError struct{ baseError }

// EncoderError reports that a Value could not be serialized, because it
// contains a kind the codec does not support.
type EncoderError struct{ CodecError }

func newEncoderError(format string, args ...interface{}) *EncoderError {
	return &EncoderError{CodecError{baseError{msg: errors.Errorf(format, args...).Error()}}}
}

// DecoderError reports malformed wire data: an unknown marker, a length
// that runs past the end of the buffer, non-UTF-8 STRING bytes, an FD index
// out of range, or trailing bytes after the top-level value.
type DecoderError struct{ CodecError }

func newDecoderError(format string, args ...interface{}) *DecoderError {
	return &DecoderError{CodecError{baseError{msg: errors.Errorf(format, args...).Error()}}}
}

// ErrClosed is the sticky error recorded on a Connection that was closed
// with Close or whose peer closed the socket cleanly (a zero-length read).
// Send and Notify on such a Connection return it, but Connection.Wait
// reports that clean shutdown as nil rather than as ErrClosed.
var ErrClosed = errors.New("ipc: use of closed connection")

// ErrNoData is returned by a Transport's Read when the peer has performed an
// orderly shutdown (a zero-length datagram/read). Connection maps this to
// ErrClosed before it ever reaches a caller.
var ErrNoData = errors.New("ipc: no data (peer closed)")

// wrap is a small helper so call sites read like a plain
// fmt.Errorf("doing X: %v", err) while producing github.com/pkg/errors
// causes that callers can unwrap with errors.Cause/errors.Is.
func wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, msg)
}

func wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, format, args...)
}
