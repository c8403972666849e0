package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

var (
	ErrValidation      = fmt.Errorf("validation failed")
	ErrNotFound        = fmt.Errorf("not found")
	ErrUnauthorized    = fmt.Errorf("not authorized")
	ErrTransientIO     = fmt.Errorf("storage unavailable")
	ErrWorkerPanic     = fmt.Errorf("worker panic")
	ErrEmptyWords      = fmt.Errorf("no words have been found")
	ErrInvalidFrame    = fmt.Errorf("invalid frame")
	ErrUnknownEvent    = fmt.Errorf("unknown event type")
	ErrFileTooLarge    = fmt.Errorf("file exceeds the size limit")
	ErrUnsupportedFile = fmt.Errorf("unsupported file type")

	ErrConnectionClosed = fmt.Errorf("connection closed")
	ErrSinkFull         = fmt.Errorf("connection send buffer full")

	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrUserAlreadyExists  = fmt.Errorf("user already exists")
	ErrInvalidPassword    = fmt.Errorf("password does not meet complexity requirements")
	ErrTokenGeneration    = fmt.Errorf("token generation failed")
	ErrMissingToken       = fmt.Errorf("authorization token is missing")
	ErrInvalidToken       = fmt.Errorf("%w: invalid token", ErrUnauthorized)
)

// Code is the stable, client facing name of an error family.
type Code string

const (
	CodeValidation   Code = "validation"
	CodeNotFound     Code = "not_found"
	CodeUnauthorized Code = "unauthorized"
	CodeTransient    Code = "transient"
	CodeInternal     Code = "internal"
)

func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }

func New(text string) error { return stderrors.New(text) }

// CodeOf maps any error produced by the services to its wire code.
func CodeOf(err error) Code {
	switch {
	case err == nil:
		return ""
	case Is(err, ErrValidation), Is(err, ErrInvalidPassword),
		Is(err, ErrFileTooLarge), Is(err, ErrUnsupportedFile),
		Is(err, ErrInvalidFrame), Is(err, ErrUnknownEvent):
		return CodeValidation
	case Is(err, ErrNotFound):
		return CodeNotFound
	case Is(err, ErrUnauthorized), Is(err, ErrInvalidCredentials), Is(err, ErrMissingToken):
		return CodeUnauthorized
	case Is(err, ErrTransientIO):
		return CodeTransient
	default:
		return CodeInternal
	}
}

// IsRetryable reports whether resubmitting the same request may succeed.
func IsRetryable(err error) bool {
	return CodeOf(err) == CodeTransient
}

func HTTPStatus(err error) int {
	switch {
	case Is(err, ErrUserAlreadyExists):
		return http.StatusConflict
	case Is(err, ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case Is(err, ErrUnsupportedFile):
		return http.StatusUnsupportedMediaType
	case Is(err, ErrInvalidCredentials), Is(err, ErrMissingToken), Is(err, ErrInvalidToken):
		return http.StatusUnauthorized
	}
	switch CodeOf(err) {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthorized:
		return http.StatusForbidden
	case CodeTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
