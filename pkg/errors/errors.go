package errors

import (
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code
type ErrorCode int

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// StatusCode maps the error code to an HTTP status. It is picked up by
// middleware.ErrorHandler.
func (e *AppError) StatusCode() int {
	switch e.Code {
	case ErrNotFound, ErrUserNotFound:
		return http.StatusNotFound
	case ErrBadRequest, ErrReuseRejected, ErrPasswordMismatch, ErrInvalidToken:
		return http.StatusBadRequest
	case ErrUnauthorized:
		return http.StatusUnauthorized
	case ErrForbidden, ErrPasswordExpired:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Common error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrBadRequest
	ErrUnauthorized
	ErrForbidden
	ErrInternal
)

// Password policy error codes
const (
	ErrUserNotFound ErrorCode = iota + 2000
	ErrReuseRejected
	ErrPasswordExpired
	ErrPasswordMismatch
	ErrInvalidToken
)

// Error constructors
func NewNotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func NewBadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    ErrBadRequest,
		Message: message,
		Err:     err,
	}
}

func NewInternal(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Message: "internal server error",
		Err:     err,
	}
}

// Common errors
func NotFound(resource string, err error) *AppError {
	return NewNotFound(resource, err)
}

func BadRequest(message string, err error) *AppError {
	return NewBadRequest(message, err)
}

func Internal(err error) *AppError {
	return NewInternal(err)
}

func Unauthorized(err error) *AppError {
	return &AppError{
		Code:    ErrUnauthorized,
		Message: "unauthorized",
		Err:     err,
	}
}

func Forbidden(err error) *AppError {
	return &AppError{
		Code:    ErrForbidden,
		Message: "permission denied",
		Err:     err,
	}
}

func UserNotFound(err error) *AppError {
	return &AppError{
		Code:    ErrUserNotFound,
		Message: "user not found",
		Err:     err,
	}
}

// ReuseRejected is a form validation failure, not a redirect.
func ReuseRejected(err error) *AppError {
	return &AppError{
		Code:    ErrReuseRejected,
		Message: "you cannot reuse your old password",
		Err:     err,
	}
}

func PasswordExpired(err error) *AppError {
	return &AppError{
		Code:    ErrPasswordExpired,
		Message: "password expired",
		Err:     err,
	}
}

func PasswordMismatch(err error) *AppError {
	return &AppError{
		Code:    ErrPasswordMismatch,
		Message: "passwords do not match",
		Err:     err,
	}
}

func InvalidToken(err error) *AppError {
	return &AppError{
		Code:    ErrInvalidToken,
		Message: "invalid or expired token",
		Err:     err,
	}
}
