// Package sdkerr defines the error kinds surfaced by the SDK runtime. Every
// failure a caller can observe carries a Kind, a human readable message and an
// optional cause, so callers can branch on errors.Is/As without string
// matching.
package sdkerr

import (
	"errors"
	"fmt"
)

// Kind classifies an SDK failure.
type Kind string

const (
	// KindSpecNotFound indicates the specification could not be located at
	// any of the probed locations.
	KindSpecNotFound Kind = "spec_not_found"
	// KindSpecMalformed indicates the specification was located but could
	// not be decoded.
	KindSpecMalformed Kind = "spec_malformed"
	// KindUnsupportedSpec indicates the parser could not classify the
	// specification or extract endpoints from it.
	KindUnsupportedSpec Kind = "unsupported_spec"
	// KindAPIKeyMissing indicates a provider requires an API key and none
	// was supplied.
	KindAPIKeyMissing Kind = "api_key_missing"
	// KindAPIKeyInvalid indicates the supplied API key does not match the
	// provider's expected format.
	KindAPIKeyInvalid Kind = "api_key_invalid"
	// KindMissingParameter indicates a required endpoint parameter was not
	// supplied and has no default.
	KindMissingParameter Kind = "missing_parameter"
	// KindInvalidParameterValue indicates a supplied value failed schema
	// validation.
	KindInvalidParameterValue Kind = "invalid_parameter_value"
	// KindFileTooLarge indicates the combined upload size exceeds the hard
	// limit configured on the file handler.
	KindFileTooLarge Kind = "file_too_large"
	// KindUploadFailed indicates the cloud uploader rejected the batch.
	KindUploadFailed Kind = "upload_failed"
	// KindFileNotReadable indicates a local file input could not be read.
	KindFileNotReadable Kind = "file_not_readable"
	// KindRequestFailed indicates the initial dispatch of a job failed.
	KindRequestFailed Kind = "request_failed"
	// KindUnauthorized maps HTTP 401/403 responses.
	KindUnauthorized Kind = "unauthorized"
	// KindNotFound maps HTTP 404 responses.
	KindNotFound Kind = "not_found"
	// KindHTTPError maps other 4xx/5xx responses.
	KindHTTPError Kind = "http_error"
	// KindServerJobFailed indicates the remote job reported a failed status.
	KindServerJobFailed Kind = "server_job_failed"
	// KindServerJobCancelled indicates the remote job was cancelled.
	KindServerJobCancelled Kind = "server_job_cancelled"
	// KindPollTimeout indicates the polling stage exceeded its deadline.
	KindPollTimeout Kind = "poll_timeout"
	// KindDuplicateID indicates a registry add collided with an existing
	// service id.
	KindDuplicateID Kind = "duplicate_id"
)

// Error is the concrete error type returned by SDK components.
type Error struct {
	Kind    Kind
	Message string
	Cause   error

	// StatusCode carries the HTTP status for transport failures, zero
	// otherwise.
	StatusCode int
}

// New builds an Error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error of the given kind with a cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// WithStatus attaches an HTTP status code and returns the error.
func (e *Error) WithStatus(code int) *Error {
	e.StatusCode = code
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the cause for errors.Is/As chains.
func (e *Error) Unwrap() error { return e.Cause }

// Is matches errors by kind so sentinel comparisons work:
// errors.Is(err, &Error{Kind: KindSpecNotFound}).
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Kind == e.Kind && (other.Message == "" || other.Message == e.Message)
}

// IsKind reports whether err is an SDK error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// KindOf returns the kind of err, or the empty kind when err is not an SDK
// error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
