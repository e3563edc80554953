// Package wsockerr defines the error taxonomy surfaced across the wiresock
// API. Errors carry a Kind so callers can branch on failure category without
// string-matching, while still composing with errors.Is/errors.As and
// carrying a wrapped cause via github.com/pkg/errors.
package wsockerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind identifies a category of failure. Kinds with "non-fatal" in their
// comment are warnings: they are logged, not returned to a blocked caller.
type Kind int

const (
	// ServerNotRunning: client could not connect, or the server died
	// mid-session.
	ServerNotRunning Kind = iota
	// ClientNotFound: named/addressed client does not exist in the registry.
	ClientNotFound
	// GroupNotFound: send to an empty/unknown group.
	GroupNotFound
	// ClientException: generic protocol violation observed by a client.
	ClientException
	// ServerException: generic protocol violation observed by a server
	// (bad hello, impossible registry state).
	ServerException
	// TypeCoercion: the value codec could not encode or decode as
	// requested.
	TypeCoercion
	// HandlerArity: a caller tried to register a handler of the wrong
	// arity.
	HandlerArity
	// NoHandler: non-fatal. An incoming command had no destination and no
	// waiter.
	NoHandler
	// NoHeader: reading a frame header failed for a reason other than
	// the peer closing (for example a reset or a read deadline); a clean
	// close is reported as PeerClosed instead.
	NoHeader
	// PeerClosed: the remote end closed the connection.
	PeerClosed
	// Protocol: a frame violated the wire protocol (malformed header,
	// unparseable control message).
	Protocol
)

func (k Kind) String() string {
	switch k {
	case ServerNotRunning:
		return "server not running"
	case ClientNotFound:
		return "client not found"
	case GroupNotFound:
		return "group not found"
	case ClientException:
		return "client exception"
	case ServerException:
		return "server exception"
	case TypeCoercion:
		return "type coercion"
	case HandlerArity:
		return "handler arity"
	case NoHandler:
		return "no handler"
	case NoHeader:
		return "no header"
	case PeerClosed:
		return "peer closed"
	case Protocol:
		return "protocol violation"
	default:
		return fmt.Sprintf("wsockerr.Kind(%d)", int(k))
	}
}

// Error is a Kinded, optionally-wrapped error.
type Error struct {
	kind Kind
	err  error
}

func (e *Error) Error() string {
	if e.err == nil {
		return e.kind.String()
	}
	return e.kind.String() + ": " + e.err.Error()
}

func (e *Error) Unwrap() error { return e.err }

// AsKind returns the failure category of err, if it (or something it wraps)
// is a *Error. The second return is false for ordinary errors.
func AsKind(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.kind, true
	}
	return 0, false
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	k, ok := AsKind(err)
	return ok && k == kind
}

// New builds a bare Kinded error with no wrapped cause.
func New(kind Kind, message string) error {
	return &Error{kind: kind, err: errors.New(message)}
}

// Newf builds a Kinded error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) error {
	return &Error{kind: kind, err: errors.Errorf(format, args...)}
}

// Wrap attaches a Kind to an existing error, preserving it as the cause.
func Wrap(kind Kind, err error, message string) error {
	if err == nil {
		return nil
	}
	return &Error{kind: kind, err: errors.Wrap(err, message)}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(kind Kind, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &Error{kind: kind, err: errors.Wrapf(err, format, args...)}
}
