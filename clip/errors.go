package clip

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for callers that need to react differently to it.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindAccessBlocked Kind = "access_blocked"
	KindAcquisition   Kind = "acquisition"
	KindExtraction    Kind = "extraction"
	KindNotFound      Kind = "not_found"
	KindUnavailable   Kind = "unavailable"
	KindCanceled      Kind = "canceled"
	KindInternal      Kind = "internal"
)

// User-facing messages. Only the access-blocked one says anything about the source.
const (
	MsgAccessBlocked = "Video requires login or is blocked by the source site (login or CAPTCHA required)."
	MsgProcessing    = "Error during processing: the clip could not be created."
	MsgUnavailable   = "The server is busy, please retry later."
	MsgCanceled      = "The clip request was canceled."
	MsgNotFound      = "File not found"
)

// Error is the single error shape used across the clip pipeline.
// Detail holds backend diagnostics for operator logs and is never shown to callers.
type Error struct {
	Kind    Kind
	Field   string
	Message string
	Detail  string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf reports the Kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindInternal
}

// ValidationError names the offending field.
func ValidationError(field, message string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: message}
}

// AccessBlocked is returned when the remote source demands authentication.
func AccessBlocked(detail string) *Error {
	return &Error{Kind: KindAccessBlocked, Message: MsgAccessBlocked, Detail: detail}
}

// AcquisitionError wraps a download-side failure.
func AcquisitionError(message, detail string, err error) *Error {
	return &Error{Kind: KindAcquisition, Message: message, Detail: detail, Err: err}
}

// ExtractionError wraps a transcode-side failure.
func ExtractionError(detail string, err error) *Error {
	return &Error{Kind: KindExtraction, Message: "extraction failed", Detail: detail, Err: err}
}

// NotFoundError reports a missing artifact.
func NotFoundError(name string) *Error {
	return &Error{Kind: KindNotFound, Message: MsgNotFound, Detail: name}
}

// UnavailableError reports missing capacity on this host.
func UnavailableError(err error) *Error {
	return &Error{Kind: KindUnavailable, Message: MsgUnavailable, Err: err}
}

// CanceledError reports a run that was stopped before it finished.
func CanceledError(err error) *Error {
	return &Error{Kind: KindCanceled, Message: MsgCanceled, Err: err}
}

// PublicMessage is the single sentence a caller may see for err.
func PublicMessage(err error) string {
	var ce *Error
	if !errors.As(err, &ce) {
		return MsgProcessing
	}
	switch ce.Kind {
	case KindValidation, KindAccessBlocked, KindNotFound, KindUnavailable, KindCanceled:
		return ce.Message
	default:
		return MsgProcessing
	}
}
