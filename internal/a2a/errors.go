package a2a

import (
	"errors"
	"fmt"
)

// ErrorKind classifies protocol failures so callers can branch on type
// rather than on response text.
type ErrorKind string

const (
	// KindUnreachable covers transport failures and non-2xx HTTP statuses.
	KindUnreachable ErrorKind = "unreachable"
	// KindTimeout means polling exhausted its budget without a terminal state.
	KindTimeout ErrorKind = "timeout"
	// KindRemoteFailure means the remote agent reported a failed task or a
	// JSON-RPC error object.
	KindRemoteFailure ErrorKind = "remote_failure"
	// KindMalformed means the response could not be decoded or lacked a result.
	KindMalformed ErrorKind = "malformed"
)

// Error is a typed protocol failure.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("a2a: %s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("a2a: %s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the protocol error kind of err, or "" when err is not an
// a2a error.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}
