// Package dberr defines the error taxonomy shared by every component of
// the sync engine (§7 of the specification). Operations return a tagged
// *Error rather than an ad-hoc error so that adapter layers (internal/api,
// internal/webdav) can map a single kind to the right status code without
// the engine knowing anything about HTTP.
package dberr

import (
	"errors"
	"fmt"
)

// Kind identifies the category of failure.
type Kind int

const (
	// Unknown is the zero value — never returned deliberately.
	Unknown Kind = iota
	// Unauthenticated means no or invalid credentials were presented.
	Unauthenticated
	// Unauthorized means the caller is known but may not perform the operation.
	Unauthorized
	// NotFound means the resource does not exist, or the caller may not see it.
	NotFound
	// Conflict means a precondition failed (duplicate slug, existing destination).
	Conflict
	// Validation means the input was malformed or out of bounds.
	Validation
	// PathTraversal is a dedicated subtype of Validation for unsafe paths.
	PathTraversal
	// Upstream means a database or filesystem transport failure occurred.
	Upstream
)

func (k Kind) String() string {
	switch k {
	case Unauthenticated:
		return "unauthenticated"
	case Unauthorized:
		return "unauthorized"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case Validation:
		return "validation"
	case PathTraversal:
		return "path_traversal"
	case Upstream:
		return "upstream"
	default:
		return "unknown"
	}
}

// Error is the tagged result type returned by every engine operation.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an *Error of the given kind with a static message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf creates an *Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap creates an *Error of the given kind that wraps an underlying cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

// Wrapf creates an *Error of the given kind that wraps an underlying cause
// with a formatted message.
func Wrapf(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: cause}
}

// KindOf returns the Kind of err if it is (or wraps) a *Error, else Unknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Is reports whether err is (or wraps) an *Error of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
