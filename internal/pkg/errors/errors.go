package errors

import (
	"fmt"
	"net/http"
)

// AppError represents an application error with additional context
type AppError struct {
	Code       string      `json:"code"`
	Message    string      `json:"message"`
	StatusCode int         `json:"-"`
	Internal   error       `json:"-"`
	Details    interface{} `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}
	return e.Message
}

// Unwrap returns the internal error for errors.Is and errors.As
func (e *AppError) Unwrap() error {
	return e.Internal
}

// Common error codes
const (
	ErrCodeInternal         = "INTERNAL_ERROR"
	ErrCodeBadRequest       = "BAD_REQUEST"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeConflict         = "CONFLICT"
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeDatabase         = "DATABASE_ERROR"
	ErrCodeTargetConnection = "TARGET_CONNECTION_ERROR"
	ErrCodeSchema           = "SCHEMA_ERROR"
	ErrCodeQueryRejected    = "QUERY_REJECTED"
	ErrCodeTranslation      = "TRANSLATION_FAILED"
	ErrCodeScanInProgress   = "SCAN_IN_PROGRESS"
	ErrCodeRateLimited      = "RATE_LIMITED"
)

// New creates a new AppError
func New(code, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an error with an AppError
func Wrap(err error, code, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Internal:   err,
	}
}

// WithDetails adds details to an AppError
func (e *AppError) WithDetails(details interface{}) *AppError {
	e.Details = details
	return e
}

// Internal creates an internal server error
func Internal(message string, err error) *AppError {
	return Wrap(err, ErrCodeInternal, message, http.StatusInternalServerError)
}

// BadRequest creates a bad request error
func BadRequest(message string) *AppError {
	return New(ErrCodeBadRequest, message, http.StatusBadRequest)
}

// NotFound creates a not found error
func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

// Conflict creates a conflict error
func Conflict(message string) *AppError {
	return New(ErrCodeConflict, message, http.StatusConflict)
}

// ValidationError creates a validation error
func ValidationError(message string, details interface{}) *AppError {
	return New(ErrCodeValidation, message, http.StatusBadRequest).WithDetails(details)
}

// DatabaseError creates a database error
func DatabaseError(message string, err error) *AppError {
	return Wrap(err, ErrCodeDatabase, message, http.StatusInternalServerError)
}

// TargetConnectionError creates an error for an unreachable target database
func TargetConnectionError(err error) *AppError {
	return Wrap(err, ErrCodeTargetConnection, "Failed to connect to target database", http.StatusBadGateway)
}

// SchemaError creates an error for a failed schema introspection
func SchemaError(err error) *AppError {
	return Wrap(err, ErrCodeSchema, "Failed to read target database schema", http.StatusBadGateway)
}

// QueryRejected creates an error for a candidate query rejected by the sandbox
func QueryRejected(reason string) *AppError {
	return New(ErrCodeQueryRejected, fmt.Sprintf("Query rejected: %s", reason), http.StatusUnprocessableEntity)
}

// TranslationFailed creates an error for a rule the translator could not handle
func TranslationFailed(ruleCode string, err error) *AppError {
	return Wrap(err, ErrCodeTranslation,
		fmt.Sprintf("Failed to translate rule %s", ruleCode),
		http.StatusBadGateway)
}

// ScanInProgress creates the error returned when a scan is already running
func ScanInProgress() *AppError {
	return New(ErrCodeScanInProgress, "A scan is already in progress", http.StatusConflict)
}

// RateLimited creates a rate limited error
func RateLimited(message string) *AppError {
	return New(ErrCodeRateLimited, message, http.StatusTooManyRequests)
}
