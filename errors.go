package registry

import (
	"errors"
	"strings"
)

// Error is the registry error domain type.
//
// Errors coming from registry components should be able to be inspected as
// ([errors.As]) an *Error at some point in the error chain.
//
// Implementers of registry components should create an Error at the system
// boundary (e.g. when using the database or a storage layer) and
// intermediate layers should not wrap in another Error except to add
// additional [ErrorKind] information. That is to say, use [fmt.Errorf] with a
// "%w" verb in preference to creating a containing Error.
type Error struct {
	Inner   error
	Kind    ErrorKind
	Message string
	Op      string
}

// Assert this implements all the cool features.
var (
	_ error                       = (*Error)(nil)
	_ interface{ Is(error) bool } = (*Error)(nil)
	_ interface{ Unwrap() error } = (*Error)(nil)
)

// Error implements error.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(" ")
	}
	b.WriteString("[")
	b.WriteString(string(e.Kind))
	b.WriteString("]: ")
	if e.Message != "" {
		b.WriteString(e.Message)
	}
	if e.Message != "" && e.Inner != nil {
		b.WriteString(": ")
	}
	if e.Op == "" && e.Message == "" {
		b.Reset()
	}
	if e.Inner != nil {
		b.WriteString(e.Inner.Error())
	}
	return b.String()
}

// Is enables [errors.Is].
//
// It compares the error kind. Callers should compare against a declared
// [ErrorKind] over a specific error.
func (e *Error) Is(kind error) bool {
	return errors.Is(e.Kind, kind)
}

// Unwrap enables [errors.Unwrap].
func (e *Error) Unwrap() error {
	return e.Inner
}

// ErrorKind is the closed set of error classes the publish pipeline and
// identifier resolver may return, per spec §7. Every kind maps to exactly one
// HTTP status in the api/http package.
//
// If a component is unsure which kind to use, ErrInternal should be used.
type ErrorKind string

// Defined error kinds. See spec §7 for the HTTP status each maps to.
var (
	ErrBadRequest           = ErrorKind("bad-request")
	ErrUnauthorized         = ErrorKind("unauthorized")
	ErrNotFound             = ErrorKind("not-found")
	ErrConflict             = ErrorKind("conflict")
	ErrPayloadTooLarge      = ErrorKind("payload-too-large")
	ErrUnsupportedMediaType = ErrorKind("unsupported-media-type")
	ErrIntegrityFailure     = ErrorKind("integrity-failure")
	ErrStorageWriteFailed   = ErrorKind("storage-write-failed")
	ErrStorageReadFailed    = ErrorKind("storage-read-failed")
	ErrInternal             = ErrorKind("internal")
)

// Error implements error.
func (k ErrorKind) Error() string {
	return string(k)
}

// New constructs an *Error. It is the only place registry components should
// build one directly; everything above the system boundary should wrap with
// fmt.Errorf and "%w" instead.
func New(op string, kind ErrorKind, inner error, msg string) *Error {
	return &Error{Op: op, Kind: kind, Inner: inner, Message: msg}
}

// KindOf extracts the ErrorKind from err, defaulting to ErrInternal if err
// does not wrap a *Error anywhere in its chain.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrInternal
}
