package model

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrNotFound is returned by stores when an entity does not exist.
var ErrNotFound = errors.New("not found")

// TransportError is a retryable provider failure: unreachable host,
// rate limit, timeout, auth hiccup. The queue retries these with
// backoff up to a bound.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// ContentError is a non-retryable failure: malformed or empty audio,
// unsupported format, unknown provider. It fails the stage immediately
// without consuming retry budget.
type ContentError struct {
	Op  string
	Err error
}

func (e *ContentError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *ContentError) Unwrap() error { return e.Err }

// PreconditionError signals that a stage was invoked against a
// recording not in the required status. Under at-least-once delivery
// this is a duplicate-delivery signal and resolves as a silent no-op.
type PreconditionError struct {
	RecordingID string
	Current     Status
	Want        []Status
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("recording %s: status %q, want one of %v", e.RecordingID, e.Current, e.Want)
}

// Transportf wraps err as a TransportError.
func Transportf(op string, err error) error {
	return &TransportError{Op: op, Err: err}
}

// Contentf wraps err as a ContentError.
func Contentf(op string, err error) error {
	return &ContentError{Op: op, Err: err}
}

// IsTransport reports whether err (or anything it wraps) is a
// TransportError. Context deadline expiry counts as transport: a
// timed-out provider call is retried per policy.
func IsTransport(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// IsContent reports whether err is a ContentError.
func IsContent(err error) bool {
	var ce *ContentError
	return errors.As(err, &ce)
}

// IsPrecondition reports whether err is a PreconditionError.
func IsPrecondition(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe)
}

// ClassifyHTTPStatus wraps a provider HTTP error as transport or
// content based on the response status. Rate limits, request timeouts
// and server errors are retryable; other client errors are not.
func ClassifyHTTPStatus(op string, status int, err error) error {
	if status == http.StatusTooManyRequests || status == http.StatusRequestTimeout || status >= 500 {
		return Transportf(op, err)
	}
	if status >= 400 {
		return Contentf(op, err)
	}
	return Transportf(op, err)
}
