// Package apperror is the typed error vocabulary shared by the core services and
// the HTTP/WebSocket boundary.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeNotFound          Code = "NOT_FOUND"
	CodePermissionDenied  Code = "PERMISSION_DENIED"
	CodeEmptyContent      Code = "EMPTY_CONTENT"
	CodeEmptyInput        Code = "EMPTY_INPUT"
	CodeDuplicateName     Code = "DUPLICATE_NAME"
	CodeProtectedResource Code = "PROTECTED_RESOURCE"
	CodeInvalidArgument   Code = "INVALID_ARGUMENT"
	CodeUnauthenticated   Code = "UNAUTHENTICATED"
	CodeStore             Code = "STORE_ERROR"
)

type AppError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

// Is matches any AppError with the same code and message, so wrapped copies of a
// sentinel still satisfy errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

func New(code Code, message string) error {
	return &AppError{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) error {
	return &AppError{Code: code, Message: message, Cause: cause}
}

// Store wraps a persistence failure. The message stays generic; the cause is kept for logs.
func Store(cause error) error {
	return Wrap(CodeStore, "internal server error", cause)
}

// CodeOf returns the code of the first AppError in err's chain, or CodeStore for
// anything untyped.
func CodeOf(err error) Code {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeStore
}

// Message returns the user-facing text for err. Untyped errors never leak their text.
func Message(err error) string {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Message
	}
	return "internal server error"
}

func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeNotFound:
		return http.StatusNotFound
	case CodePermissionDenied:
		return http.StatusForbidden
	case CodeEmptyContent, CodeEmptyInput, CodeDuplicateName, CodeProtectedResource, CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
