package faults

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure so callers can render it correctly: an expired
// login, a face mismatch, and a missed geofence all need different handling.
type Kind string

const (
	Unauthenticated   Kind = "unauthenticated"
	SessionExpired    Kind = "session_expired"
	SessionNotFound   Kind = "session_not_found"
	NotEnrolled       Kind = "not_enrolled"
	NoSampleProvided  Kind = "no_sample_provided"
	IdentityFailed    Kind = "identity_failed"
	InvalidCoordinate Kind = "invalid_coordinate"
	OutsideWindow     Kind = "outside_window"
	AlreadyCheckedOut Kind = "already_checked_out"
	Forbidden         Kind = "forbidden"
	NotFound          Kind = "not_found"
	Conflict          Kind = "conflict"
	UpstreamTimeout   Kind = "upstream_timeout"
	StoreError        Kind = "store_error"
)

// Detail strings for IdentityFailed. An operator needs to tell a crowded
// frame apart from a bad match to decide whether to retry or escalate.
const (
	ReasonLowConfidence = "low_confidence"
	ReasonMultipleFaces = "multiple_faces"
)

// Error is the tagged error carried through the check-in pipeline.
type Error struct {
	Kind    Kind
	Message string
	Detail  string
	Err     error
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind so sentinel-style checks work:
// errors.Is(err, &faults.Error{Kind: faults.SessionExpired}).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// New builds a terminal error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WithDetail builds an error carrying a machine-readable detail string.
func WithDetail(kind Kind, message, detail string) *Error {
	return &Error{Kind: kind, Message: message, Detail: detail}
}

// Wrap tags an underlying error with a kind, preserving the cause for %w.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Store maps a persistence failure, classifying deadline expiry separately so
// callers can retry timeouts but not constraint violations.
func Store(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(UpstreamTimeout, "store call timed out", err)
	}
	return Wrap(StoreError, "store failure", err)
}

// KindOf extracts the kind from an error chain; unknown errors are StoreError.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return StoreError
}

// Retryable reports whether a request with this error is worth resubmitting.
func Retryable(err error) bool {
	switch KindOf(err) {
	case UpstreamTimeout, StoreError:
		return true
	}
	return false
}

// HTTPStatus maps a kind onto the response code handlers should emit.
func HTTPStatus(kind Kind) int {
	switch kind {
	case Unauthenticated, SessionExpired, SessionNotFound:
		return http.StatusUnauthorized
	case Forbidden, IdentityFailed:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case AlreadyCheckedOut, Conflict:
		return http.StatusConflict
	case InvalidCoordinate, NoSampleProvided, NotEnrolled:
		return http.StatusBadRequest
	case OutsideWindow:
		return http.StatusUnprocessableEntity
	case UpstreamTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
