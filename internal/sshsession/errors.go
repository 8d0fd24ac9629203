package sshsession

import (
	"errors"
	"fmt"
)

// Kind classifies an orchestrator failure so callers can branch on routine,
// expected outcomes without string matching.
type Kind string

const (
	// KindValidation means the input was rejected before any network activity.
	KindValidation Kind = "validation"
	// KindAuth means the remote host rejected the supplied credentials.
	KindAuth Kind = "auth"
	// KindTransport means a network or protocol failure.
	KindTransport Kind = "transport"
	// KindTimeout means a connect, command, or transfer exceeded its bound.
	KindTimeout Kind = "timeout"
	// KindResourceLimit means output or file size exceeded a configured bound.
	KindResourceLimit Kind = "resource_limit"
	// KindNotConnected means the operation requires an open session.
	KindNotConnected Kind = "not_connected"
)

// Error is the typed failure returned by every orchestrator operation.
// Message is short and human-readable; Err carries the underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func wrapError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the Kind of err, or "" if err is not an orchestrator Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err is an orchestrator Error of the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
