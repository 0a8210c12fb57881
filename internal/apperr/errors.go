// Package apperr defines the error taxonomy shared by the chat
// service, repositories and transport layers. Every error that crosses
// a package boundary carries a Kind (for status mapping) and a stable
// machine-readable Code (for clients and logs).
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies an error for transport-level handling.
type Kind int

const (
	KindUnknown Kind = iota
	KindAuth
	KindNotFound
	KindAuthorization
	KindValidation
	KindTransient
	KindBroadcast
)

// Error is the concrete error carried across layers. Err holds the
// underlying cause, if any, and is reachable through errors.Unwrap.
type Error struct {
	Kind    Kind
	Code    string
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

// Wrap attaches an underlying cause and returns the same error so the
// call chains at the return site.
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

func Auth(code, message string) *Error {
	return &Error{Kind: KindAuth, Code: code, Message: message}
}

func NotFound(code, message string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: message}
}

func Authorization(code, message string) *Error {
	return &Error{Kind: KindAuthorization, Code: code, Message: message}
}

func Validation(code, message string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message}
}

// Transient marks a failure worth retrying, typically a storage or
// network hiccup. The cause is always recorded.
func Transient(code, message string, err error) *Error {
	return &Error{Kind: KindTransient, Code: code, Message: message, Err: err}
}

// Broadcast marks a fan-out failure. Deliveries are best effort, so
// callers usually log these instead of returning them upstream.
func Broadcast(code, message string) *Error {
	return &Error{Kind: KindBroadcast, Code: code, Message: message}
}

// KindOf extracts the Kind from any error in the chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// CodeOf extracts the machine-readable code, or "internal" when the
// error did not originate from this package.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal"
}

// HTTPStatus maps an error to the response status the REST layer sends.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindAuth:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindAuthorization:
		return http.StatusForbidden
	case KindValidation:
		return http.StatusBadRequest
	case KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
