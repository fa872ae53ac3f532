// Package apperror defines the typed failures the bridge can return.
//
// Every failure carries a stable machine-readable Kind plus one of four class
// sentinels that the HTTP layer maps to a status code. Services return these
// values (possibly wrapped with fmt.Errorf %w); handlers never invent their own
// error shapes.
package apperror

import (
	"errors"
	"fmt"
)

// Class sentinels. errors.Is against one of these decides the HTTP status class.
var (
	ErrBadRequest      = errors.New("bad request")      // malformed or disallowed input
	ErrAuthFailed      = errors.New("auth failed")      // legacy system rejected the credentials
	ErrUpstreamTimeout = errors.New("upstream timeout") // legacy system did not answer in time
	ErrUpstream        = errors.New("upstream failure") // legacy system or storage misbehaved
)

// Kind strings, stable across releases. These are the `error` field of every
// JSON error response.
const (
	KindBadMirror             = "bad_mirror"
	KindMalformedRequest      = "malformed_request"
	KindInvalidCredentials    = "invalid_credentials"
	KindUnknownAccount        = "unknown_account"
	KindNoSessionIssued       = "no_session_issued"
	KindEmailMismatch         = "email_mismatch"
	KindUpstreamTimeout       = "upstream_timeout"
	KindUpstreamUnknown       = "upstream_unknown_error"
	KindNoLinkedAccount       = "no_linked_account"
	KindNoLibraries           = "no_libraries"
	KindDirectoryUnavailable  = "directory_unavailable"
	KindUnsupportedExportKind = "unsupported_export_kind"
)

// AppError is a typed bridge failure.
//
// UpstreamStatus and UpstreamBody are populated only for KindUpstreamUnknown,
// where the remote status and body must be forwarded for diagnostics instead of
// being swallowed.
type AppError struct {
	Err            error  // class sentinel
	Kind           string // machine-readable kind
	Message        string // human-readable description
	UpstreamStatus int
	UpstreamBody   string
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// BadMirror rejects a caller-supplied mirror that is not on the allow-list.
func BadMirror(mirror string) *AppError {
	return &AppError{
		Err:     ErrBadRequest,
		Kind:    KindBadMirror,
		Message: fmt.Sprintf("mirror %q is not in the list of allowed mirrors", mirror),
	}
}

// MalformedRequest reports a missing or unusable required input field.
func MalformedRequest(field string) *AppError {
	return &AppError{
		Err:     ErrBadRequest,
		Kind:    KindMalformedRequest,
		Message: fmt.Sprintf("required field %q is missing or malformed", field),
	}
}

func InvalidCredentials() *AppError {
	return &AppError{
		Err:     ErrAuthFailed,
		Kind:    KindInvalidCredentials,
		Message: "the legacy system rejected the supplied credentials",
	}
}

func UnknownAccount() *AppError {
	return &AppError{
		Err:     ErrAuthFailed,
		Kind:    KindUnknownAccount,
		Message: "the legacy system has no account for the supplied email",
	}
}

// NoSessionIssued reports a login the legacy system called successful but for
// which it returned no session cookie. This is an anomaly worth its own kind;
// it must never be folded into success.
func NoSessionIssued() *AppError {
	return &AppError{
		Err:     ErrAuthFailed,
		Kind:    KindNoSessionIssued,
		Message: "the legacy system reported success but returned no session cookie",
	}
}

// EmailMismatch reports a response whose email does not match the one the
// caller supplied. Rejected as a trust violation even on an otherwise
// successful login.
func EmailMismatch() *AppError {
	return &AppError{
		Err:     ErrAuthFailed,
		Kind:    KindEmailMismatch,
		Message: "the email returned by the legacy system does not match the supplied email",
	}
}

func UpstreamTimeout() *AppError {
	return &AppError{
		Err:     ErrUpstreamTimeout,
		Kind:    KindUpstreamTimeout,
		Message: "the legacy system did not respond before the timeout",
	}
}

// UpstreamUnknown retains the remote status and body for diagnostic forwarding.
func UpstreamUnknown(status int, body string) *AppError {
	return &AppError{
		Err:            ErrUpstream,
		Kind:           KindUpstreamUnknown,
		Message:        "the legacy system responded with an unknown error",
		UpstreamStatus: status,
		UpstreamBody:   body,
	}
}

// NoLinkedAccount reports that no prior successful link exists for this user
// and legacy system.
func NoLinkedAccount(system string) *AppError {
	return &AppError{
		Err:     ErrBadRequest,
		Kind:    KindNoLinkedAccount,
		Message: fmt.Sprintf("user does not have an associated %s account", system),
	}
}

func NoLibraries() *AppError {
	return &AppError{
		Err:     ErrBadRequest,
		Kind:    KindNoLibraries,
		Message: "user does not have any libraries in ADS 2.0",
	}
}

// DirectoryUnavailable covers both an unloaded user directory snapshot and any
// failure fetching or signing bundle objects.
func DirectoryUnavailable() *AppError {
	return &AppError{
		Err:     ErrUpstream,
		Kind:    KindDirectoryUnavailable,
		Message: "the ADS 2.0 user directory is unavailable",
	}
}

func UnsupportedExportKind(kind string) *AppError {
	return &AppError{
		Err:     ErrBadRequest,
		Kind:    KindUnsupportedExportKind,
		Message: fmt.Sprintf("export type %q is not supported", kind),
	}
}
