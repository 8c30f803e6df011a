package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors. Domain error types unwrap to one of these so callers can
// branch with errors.Is without knowing the concrete type.
var (
	ErrNotFound           = errors.New("resource not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrConflict           = errors.New("conflict")
	ErrValidation         = errors.New("record validation failed")
	ErrBackendUnavailable = errors.New("search backend unavailable")
	ErrMalformedQuery     = errors.New("malformed search query")
	ErrPartialBatch       = errors.New("bulk batch rejected")
	ErrRewriteFailed      = errors.New("query rewrite failed")
)

// AppError carries an error code and the HTTP status the API layer should
// answer with.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// InvalidInput creates a 400 error.
func InvalidInput(message string) *AppError {
	return &AppError{
		Code:    "INVALID_INPUT",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidInput,
	}
}

// Conflict creates a 409 error.
func Conflict(message string) *AppError {
	return &AppError{
		Code:    "CONFLICT",
		Message: message,
		Status:  http.StatusConflict,
		Err:     ErrConflict,
	}
}

// HTTPStatus returns the HTTP status code for the given error.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrValidation), errors.Is(err, ErrMalformedQuery):
		return http.StatusBadRequest
	case errors.Is(err, ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Code returns the machine-readable error code for the given error.
func Code(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrConflict):
		return "CONFLICT"
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrValidation):
		return "INVALID_INPUT"
	case errors.Is(err, ErrMalformedQuery):
		return "MALFORMED_QUERY"
	case errors.Is(err, ErrBackendUnavailable):
		return "BACKEND_UNAVAILABLE"
	default:
		return "INTERNAL_ERROR"
	}
}
