// Package errs defines the structured error kinds raised across atsi.
package errs

import (
	"errors"
	"fmt"
)

// Kind categorizes an error so callers can branch on it without string
// matching.
type Kind int

const (
	KindUnknown Kind = iota
	KindAlpineManifestInvalid
	KindAlpineManifestMissing
	KindAlpineManifestFileMissing
	KindSlirpSocketCouldntBeFound
	KindNameCollision
	KindMalformedArg
	KindCloneFailure
)

func (k Kind) String() string {
	switch k {
	case KindAlpineManifestInvalid:
		return "alpine_manifest_invalid"
	case KindAlpineManifestMissing:
		return "alpine_manifest_missing"
	case KindAlpineManifestFileMissing:
		return "alpine_manifest_file_missing"
	case KindSlirpSocketCouldntBeFound:
		return "slirp_socket_couldnt_be_found"
	case KindNameCollision:
		return "name_collision"
	case KindMalformedArg:
		return "malformed_arg"
	case KindCloneFailure:
		return "clone_failure"
	default:
		return "unknown"
	}
}

// Error is a Kind-tagged error that carries an optional underlying cause.
type Error struct {
	Kind       Kind
	Message    string
	Underlying error
}

func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Underlying)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Underlying
}

// New creates a new Error of the given kind.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Message: msg}
}

// Errorf creates a new Error of the given kind with a formatted message.
func Errorf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps err as a new Error of the given kind. Returns nil if err is nil.
func Wrap(err error, kind Kind, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: msg, Underlying: err}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, kind Kind, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Underlying: err}
}

// GetKind extracts the Kind from err, or KindUnknown if err is not (or does
// not wrap) an *Error.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err is (or wraps) an *Error of the given kind.
func Is(err error, kind Kind) bool {
	return GetKind(err) == kind
}
