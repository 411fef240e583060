// Copyright (c) 2026 Cilo Authors
// SPDX-License-Identifier: MIT
// See LICENSES/MIT.txt for full license text

// Package wsyncerr defines the error taxonomy shared by the daemon and
// monitor: every operation that can fail across a trust boundary (the
// client socket, the registry file, a child process, a remote host) returns
// one of these Kinds paired with a log-side message (full detail) and a
// client-side message (safe to hand back over the wire).
package wsyncerr

import "fmt"

// Kind is the taxonomy of error classes described in the error handling design.
type Kind string

const (
	KindIO           Kind = "Io"
	KindProtocol     Kind = "Protocol"
	KindSerde        Kind = "Serde"
	KindNotFound     Kind = "NotFound"
	KindConflict     Kind = "Conflict"
	KindChildSpawn   Kind = "ChildSpawn"
	KindRemoteSystem Kind = "RemoteSystem"
	KindLocalError   Kind = "LocalError"
	KindPoisoned     Kind = "Poisoned"
)

// Error carries both a detailed log-side message and a short client-facing
// message, so handlers never leak internal detail (file paths, syscall
// errno text) to the socket while still logging it server-side.
type Error struct {
	Kind          Kind
	LogMessage    string
	ClientMessage string
	Err           error
}

func (e *Error) Error() string {
	if e.LogMessage != "" {
		return e.LogMessage
	}
	return e.ClientMessage
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error with both a log-side and client-side message.
func New(kind Kind, logMsg, clientMsg string) *Error {
	return &Error{Kind: kind, LogMessage: logMsg, ClientMessage: clientMsg}
}

// Wrap builds an Error around an underlying error, taking the log-side
// message from err and the client-side message from clientMsg.
func Wrap(kind Kind, err error, clientMsg string) *Error {
	return &Error{Kind: kind, LogMessage: err.Error(), ClientMessage: clientMsg, Err: err}
}

// Newf is a convenience constructor using the same format+args for both messages.
func Newf(kind Kind, format string, args ...any) *Error {
	msg := fmt.Sprintf(format, args...)
	return &Error{Kind: kind, LogMessage: msg, ClientMessage: msg}
}

// Is reports whether err (or something it wraps) is a *Error of the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if ae, ok := err.(*Error); ok {
			e = ae
			break
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return e != nil && e.Kind == kind
}
