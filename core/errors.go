package core

import (
	"errors"
)

// ErrorKind classifies a failure for response mapping and logging.
type ErrorKind string

const (
	KindValidation         ErrorKind = "VALIDATION_ERROR"
	KindConflict           ErrorKind = "CONFLICT"
	KindNotFound           ErrorKind = "NOT_FOUND"
	KindUnauthorized       ErrorKind = "UNAUTHORIZED"
	KindExpiredToken       ErrorKind = "TOKEN_EXPIRED"
	KindInvalidToken       ErrorKind = "TOKEN_INVALID"
	KindStorageUnavailable ErrorKind = "STORAGE_UNAVAILABLE"
	KindConfig             ErrorKind = "CONFIG_ERROR"
	KindInternal           ErrorKind = "INTERNAL"
)

// Error is the typed failure returned by every credential operation.
// Message is safe to show to clients for client-error kinds; Err carries
// the underlying cause for logs only.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrConflict) works
// regardless of the message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Kind sentinels for errors.Is.
var (
	ErrValidation         = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrConflict           = &Error{Kind: KindConflict, Message: "conflict"}
	ErrNotFound           = &Error{Kind: KindNotFound, Message: "not found"}
	ErrUnauthorized       = &Error{Kind: KindUnauthorized, Message: "unauthorized"}
	ErrExpiredToken       = &Error{Kind: KindExpiredToken, Message: "token expired"}
	ErrInvalidToken       = &Error{Kind: KindInvalidToken, Message: "invalid token"}
	ErrStorageUnavailable = &Error{Kind: KindStorageUnavailable, Message: "storage unavailable"}
	ErrConfig             = &Error{Kind: KindConfig, Message: "configuration error"}
)

func newError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// KindOf reports the classification of err. Untyped errors are KindInternal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// PublicMessage returns the client-facing message carried by err.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal server error"
}

// IsClientError reports whether err was caused by the caller rather than the infrastructure.
func IsClientError(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindConflict, KindNotFound, KindUnauthorized, KindExpiredToken, KindInvalidToken:
		return true
	default:
		return false
	}
}
