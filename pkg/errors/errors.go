package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrPersistence        = New("PERSISTENCE_ERROR", http.StatusServiceUnavailable, "storage unavailable")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")
	ErrNotEligible        = New("NOT_ELIGIBLE", http.StatusUnprocessableEntity, "student is not eligible for a certificate")
	ErrAlreadyRevoked     = New("ALREADY_REVOKED", http.StatusConflict, "certificate already revoked")
	ErrAlreadyInvalidated = New("ALREADY_INVALIDATED", http.StatusConflict, "attendance scan already invalidated")
	ErrModelNotTrained    = New("MODEL_NOT_TRAINED", http.StatusConflict, "anomaly model not trained")
	ErrInsufficientData   = New("INSUFFICIENT_DATA", http.StatusUnprocessableEntity, "not enough samples to train")
	ErrTrainingInProgress = New("TRAINING_IN_PROGRESS", http.StatusConflict, "model training already running")
	ErrTrainingTimeout    = New("TRAINING_TIMEOUT", http.StatusServiceUnavailable, "model training timed out")
)

// Is reports whether err carries the same code as target.
func Is(err error, target *Error) bool {
	if err == nil || target == nil {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code == target.Code
	}
	return false
}

// IsDomain reports whether err is a caller-facing rule violation rather than a system failure.
func IsDomain(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Status < http.StatusInternalServerError
}

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
