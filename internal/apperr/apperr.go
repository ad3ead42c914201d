// Package apperr defines the error taxonomy shared by the engine services.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeNotFound   Code = "not_found"
	CodeForbidden  Code = "forbidden"
	CodeValidation Code = "validation"
	CodeConflict   Code = "conflict"
)

// Sentinels for errors.Is. They match any *Error carrying the same code.
var (
	ErrNotFound   = &Error{Code: CodeNotFound}
	ErrForbidden  = &Error{Code: CodeForbidden}
	ErrValidation = &Error{Code: CodeValidation}
	ErrConflict   = &Error{Code: CodeConflict}
)

// Error is a recoverable engine failure. Field names the offending input for
// validation and conflict errors.
type Error struct {
	Code    Code
	Message string
	Field   string
	Err     error
}

type Option func(*Error)

func WithField(field string) Option {
	return func(e *Error) { e.Field = field }
}

func WithCause(err error) Option {
	return func(e *Error) { e.Err = err }
}

func New(code Code, msg string, opts ...Option) *Error {
	e := &Error{Code: code, Message: msg}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func NotFound(format string, args ...any) *Error {
	return New(CodeNotFound, fmt.Sprintf(format, args...))
}

func Forbidden(format string, args ...any) *Error {
	return New(CodeForbidden, fmt.Sprintf(format, args...))
}

func Validation(field, format string, args ...any) *Error {
	return New(CodeValidation, fmt.Sprintf(format, args...), WithField(field))
}

// Conflict reports a write to a field the caller may not touch, or a write
// based on a stale version.
func Conflict(field, format string, args ...any) *Error {
	return New(CodeConflict, fmt.Sprintf(format, args...), WithField(field))
}

func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Field != "" {
		msg += " (field " + e.Field + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Field == "" && t.Code == e.Code
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// FieldOf returns the field of the first *Error in err's chain, or "".
func FieldOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Field
	}
	return ""
}

// HTTPStatus maps err to the status code a handler should answer with.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeForbidden:
		return http.StatusForbidden
	case CodeValidation:
		return http.StatusBadRequest
	case CodeConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
