// Package apperr defines the error taxonomy shared by every component of the
// thought/session memory subsystem.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for transport-level mapping, not by name.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindNotFound    Kind = "not_found"
	KindDuplicate   Kind = "duplicate"
	KindRateLimited Kind = "rate_limited"
	KindUpstream    Kind = "upstream"
	KindStore       Kind = "store"
	KindScript      Kind = "script"
	KindInternal    Kind = "internal"
)

// Error wraps an underlying cause with a Kind used for propagation policy.
type Error struct {
	kind    Kind
	msg     string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.cause)
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.cause }

// Kind returns the error's classification.
func (e *Error) Kind() Kind { return e.kind }

func newErr(kind Kind, msg string, cause error) *Error {
	return &Error{kind: kind, msg: msg, cause: cause}
}

func Validation(msg string, cause error) error  { return newErr(KindValidation, msg, cause) }
func NotFound(msg string, cause error) error    { return newErr(KindNotFound, msg, cause) }
func Duplicate(msg string, cause error) error   { return newErr(KindDuplicate, msg, cause) }
func RateLimited(msg string, cause error) error { return newErr(KindRateLimited, msg, cause) }
func Upstream(msg string, cause error) error    { return newErr(KindUpstream, msg, cause) }
func Store(msg string, cause error) error       { return newErr(KindStore, msg, cause) }
func Script(msg string, cause error) error      { return newErr(KindScript, msg, cause) }
func Internal(msg string, cause error) error    { return newErr(KindInternal, msg, cause) }

// KindOf extracts the Kind from err, defaulting to KindInternal for errors
// that didn't originate from this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindInternal
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
