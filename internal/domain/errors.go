package domain

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	apperrors "github.com/utafrali/moviesearch/pkg/errors"
)

// ValidationError reports a row that could not be normalized.
type ValidationError struct {
	Row    int
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("row %d: field %q (%v): %s", e.Row, e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return apperrors.ErrValidation
}

// BackendError reports a failed call to the search backend. Status is the
// HTTP-like status the backend answered with, or 0 for transport failures.
type BackendError struct {
	Op     string
	Index  string
	Status int
	Reason string
	Err    error
}

func (e *BackendError) Error() string {
	msg := e.Op
	if e.Index != "" {
		msg += " " + e.Index
	}
	if e.Status != 0 {
		msg += fmt.Sprintf(": status %d", e.Status)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the cause and the classification sentinel, so callers
// can match either errors.Is(err, context.DeadlineExceeded) or
// errors.Is(err, apperrors.ErrBackendUnavailable).
func (e *BackendError) Unwrap() []error {
	errs := []error{e.classify()}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Malformed reports whether the backend rejected the request itself.
func (e *BackendError) Malformed() bool {
	return errors.Is(e.classify(), apperrors.ErrMalformedQuery)
}

func (e *BackendError) classify() error {
	switch {
	case e.Status == http.StatusRequestTimeout, e.Status == http.StatusTooManyRequests:
		return apperrors.ErrBackendUnavailable
	case e.Status >= 400 && e.Status < 500:
		return apperrors.ErrMalformedQuery
	default:
		// Transport errors, timeouts and 5xx.
		return apperrors.ErrBackendUnavailable
	}
}

// NewBackendError builds a BackendError, treating context expiry as
// unavailability.
func NewBackendError(op, index string, status int, reason string, err error) *BackendError {
	if errors.Is(err, context.DeadlineExceeded) {
		status = 0
	}
	return &BackendError{Op: op, Index: index, Status: status, Reason: reason, Err: err}
}
