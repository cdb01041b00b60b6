package errors

import (
	"errors"
	"net/http"
)

// AppError represents an application error
type AppError struct {
	Code    int    // HTTP status code
	Message string // Error message
	Err     error  // Original error
}

// Error returns the error message
func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the original error
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithMessage returns a copy of the AppError with a custom message
func (e *AppError) WithMessage(msg string) *AppError {
	return &AppError{
		Code:    e.Code,
		Message: msg,
		Err:     e.Err,
	}
}

// NewAppError creates a new application error
func NewAppError(code int, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common error types
var (
	ErrValidation       = func(err error) *AppError { return NewAppError(http.StatusBadRequest, "Invalid input", err) }
	ErrNotFound         = func(err error) *AppError { return NewAppError(http.StatusNotFound, "Resource not found", err) }
	ErrCapacityExceeded = func(err error) *AppError { return NewAppError(http.StatusUnprocessableEntity, "Capacity exceeded", err) }
	ErrInternalServer   = func(err error) *AppError { return NewAppError(http.StatusInternalServerError, "Internal server error", err) }
)

func hasCode(err error, code int) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsValidation reports whether err is a validation error
func IsValidation(err error) bool { return hasCode(err, http.StatusBadRequest) }

// IsNotFound reports whether err is a not-found error
func IsNotFound(err error) bool { return hasCode(err, http.StatusNotFound) }

// IsCapacityExceeded reports whether err is a capacity-exceeded error
func IsCapacityExceeded(err error) bool { return hasCode(err, http.StatusUnprocessableEntity) }

// FatalError marks a per-message failure that must not be retried.
// The message channel routes fatal failures to the dead-letter stream
// instead of redelivering them.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return "fatal: " + e.Err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Fatal wraps err as non-retryable. Wrapping nil returns nil.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// IsFatal reports whether err is marked non-retryable
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}
