// Package akerrors defines the machine-readable error taxonomy surfaced at
// the cache's API boundary. Every public operation that fails returns (or
// wraps) one of these kinds so callers can switch on Kind instead of
// matching error strings.
package akerrors

import "fmt"

// Kind is a machine-readable error category.
type Kind string

const (
	// ArgumentNull means a required parameter was null/empty.
	ArgumentNull Kind = "argument_null"
	// KeyNotFound means a single-key Get targeted an absent or expired key.
	KeyNotFound Kind = "key_not_found"
	// Serialization means the Serializer failed to encode a value.
	Serialization Kind = "serialization"
	// Deserialization means the Serializer failed to decode stored bytes.
	Deserialization Kind = "deserialization"
	// Disposed means the engine is ShuttingDown or Closed.
	Disposed Kind = "disposed"
	// Storage means the underlying database failed.
	Storage Kind = "storage"
	// Fetch means a caller-supplied fetch function failed.
	Fetch Kind = "fetch"
)

// Error is the concrete error type returned across the cache's API.
type Error struct {
	Kind    Kind
	Message string
	Err     error // optional wrapped cause
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is supports errors.Is(err, akerrors.ErrKeyNotFound)-style comparisons:
// any *Error target matches when its Kind equals e's.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New builds an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error of the given kind, wrapping cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: cause}
}

// KindOf returns the Kind of err if it is (or wraps) an *Error, and ok=false
// otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if ok := asError(err, &e); ok {
		return e.Kind, true
	}
	return "", false
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Sentinel values for use with errors.Is(err, akerrors.ErrKeyNotFound) etc.
var (
	ErrArgumentNull  = &Error{Kind: ArgumentNull}
	ErrKeyNotFound   = &Error{Kind: KeyNotFound}
	ErrSerialization = &Error{Kind: Serialization}
	ErrDeserialized  = &Error{Kind: Deserialization}
	ErrDisposed      = &Error{Kind: Disposed}
	ErrStorage       = &Error{Kind: Storage}
	ErrFetch         = &Error{Kind: Fetch}
)
