package exchange

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies provider failures into a closed set so callers never
// match on message text.
type ErrorKind string

const (
	KindTimeout   ErrorKind = "timeout"
	KindTransport ErrorKind = "transport"
	KindRemote    ErrorKind = "remote"
	KindMalformed ErrorKind = "malformed"
	KindCanceled  ErrorKind = "canceled"
)

// Error is the normalized failure shape every provider returns.
type Error struct {
	Kind     ErrorKind
	Provider string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Provider, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Recoverable reports whether the turn should degrade to the fallback reply.
// Cancellation is the caller's own signal and must not be masked.
func (e *Error) Recoverable() bool { return e.Kind != KindCanceled }

// wrapTransport classifies a transport-layer failure by its cause.
func wrapTransport(provider, message string, err error) *Error {
	kind := KindTransport
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.Is(err, context.Canceled):
		kind = KindCanceled
	}
	return &Error{Kind: kind, Provider: provider, Message: message, Err: err}
}

func remoteError(provider, message string, err error) *Error {
	return &Error{Kind: KindRemote, Provider: provider, Message: message, Err: err}
}

func malformedError(provider, message string, err error) *Error {
	return &Error{Kind: KindMalformed, Provider: provider, Message: message, Err: err}
}
