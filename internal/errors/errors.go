// Package errors defines the application error taxonomy shared by services and transports.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a category of application error.
type ErrorCode string

const (
	// ErrCodeNotFound indicates a resource does not exist or is soft-deleted.
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeForbidden indicates the principal may not access the resource.
	ErrCodeForbidden ErrorCode = "forbidden"
	// ErrCodeUnauthorized indicates missing, invalid or revoked credentials.
	ErrCodeUnauthorized ErrorCode = "unauthorized"
	// ErrCodeConflict indicates a conflict with existing data or a lost compare-and-swap.
	ErrCodeConflict ErrorCode = "conflict"
	// ErrCodeValidation indicates invalid input data.
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeInvalidOperation indicates the requested operation is not supported.
	ErrCodeInvalidOperation ErrorCode = "invalid_operation"
	// ErrCodeRateLimited indicates admission was denied by the rate limiter.
	ErrCodeRateLimited ErrorCode = "rate_limited"
	// ErrCodeUnavailable indicates a dependency is unreachable.
	ErrCodeUnavailable ErrorCode = "unavailable"
	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal ErrorCode = "internal"
	// ErrCodeTimeout indicates a timeout occurred.
	ErrCodeTimeout ErrorCode = "timeout"
	// ErrCodeCanceled indicates the operation was canceled.
	ErrCodeCanceled ErrorCode = "canceled"
)

// AppError represents a structured application error with a code, message, and optional cause.
// It supports error wrapping and unwrapping for use with errors.Is and errors.As.
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
	// Field is the specific field that caused the error (optional, for validation errors)
	Field string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

func newErr(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// NotFound creates a new NotFound error.
func NotFound(message string) *AppError { return newErr(ErrCodeNotFound, message) }

// NotFoundf creates a new NotFound error with formatted message.
func NotFoundf(format string, args ...any) *AppError {
	return newErr(ErrCodeNotFound, fmt.Sprintf(format, args...))
}

// Forbidden creates a new Forbidden error.
func Forbidden(message string) *AppError { return newErr(ErrCodeForbidden, message) }

// Unauthorized creates a new Unauthorized error.
func Unauthorized(message string) *AppError { return newErr(ErrCodeUnauthorized, message) }

// Conflict creates a new Conflict error.
func Conflict(message string) *AppError { return newErr(ErrCodeConflict, message) }

// Conflictf creates a new Conflict error with formatted message.
func Conflictf(format string, args ...any) *AppError {
	return newErr(ErrCodeConflict, fmt.Sprintf(format, args...))
}

// Validation creates a new Validation error.
func Validation(message string) *AppError { return newErr(ErrCodeValidation, message) }

// Validationf creates a new Validation error with formatted message.
func Validationf(format string, args ...any) *AppError {
	return newErr(ErrCodeValidation, fmt.Sprintf(format, args...))
}

// ValidationField creates a new Validation error for a specific field.
func ValidationField(field, message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message, Field: field}
}

// InvalidOperationf creates a new InvalidOperation error with formatted message.
func InvalidOperationf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeInvalidOperation, Message: fmt.Sprintf(format, args...), Field: "operation"}
}

// RateLimited creates a new RateLimited error.
func RateLimited(message string) *AppError { return newErr(ErrCodeRateLimited, message) }

// Unavailable creates a new Unavailable error.
func Unavailable(message string) *AppError { return newErr(ErrCodeUnavailable, message) }

// Internal creates a new Internal error.
func Internal(message string) *AppError { return newErr(ErrCodeInternal, message) }

// Internalf creates a new Internal error with formatted message.
func Internalf(format string, args ...any) *AppError {
	return newErr(ErrCodeInternal, fmt.Sprintf(format, args...))
}

// Wrap wraps an existing error with an AppError, preserving the cause.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, Cause: err}
}

// Wrapf wraps an existing error with an AppError and formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// IsAppError reports whether err carries the given code anywhere in its chain.
func IsAppError(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsNotFound checks if an error is a NotFound error.
func IsNotFound(err error) bool { return IsAppError(err, ErrCodeNotFound) }

// IsForbidden checks if an error is a Forbidden error.
func IsForbidden(err error) bool { return IsAppError(err, ErrCodeForbidden) }

// IsUnauthorized checks if an error is an Unauthorized error.
func IsUnauthorized(err error) bool { return IsAppError(err, ErrCodeUnauthorized) }

// IsConflict checks if an error is a Conflict error.
func IsConflict(err error) bool { return IsAppError(err, ErrCodeConflict) }

// IsValidation checks if an error is a Validation error.
func IsValidation(err error) bool { return IsAppError(err, ErrCodeValidation) }

// IsInvalidOperation checks if an error is an InvalidOperation error.
func IsInvalidOperation(err error) bool { return IsAppError(err, ErrCodeInvalidOperation) }

// IsRateLimited checks if an error is a RateLimited error.
func IsRateLimited(err error) bool { return IsAppError(err, ErrCodeRateLimited) }

// IsUnavailable checks if an error is an Unavailable error.
func IsUnavailable(err error) bool { return IsAppError(err, ErrCodeUnavailable) }

// GetCode returns the ErrorCode from an error, or empty string if not an AppError.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetField returns the Field from an error, or empty string if not an AppError or no field set.
func GetField(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}

// PublicMessage returns the message safe to show callers. Internal causes are never included.
func PublicMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return "internal server error"
}
