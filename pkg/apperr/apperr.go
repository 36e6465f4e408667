// Package apperr carries business failures together with a machine readable code,
// so that a failure produced by a consumer can be mapped to an HTTP status without
// matching on the human readable message.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "validation"
	CodeAlreadyExists Code = "already_exists"
	CodeNotFound      Code = "not_found"
	CodeInternal      Code = "internal"
)

type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func New(code Code, format string, args ...interface{}) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...interface{}) error {
	return New(CodeValidation, format, args...)
}

func AlreadyExists(format string, args ...interface{}) error {
	return New(CodeAlreadyExists, format, args...)
}

func NotFound(format string, args ...interface{}) error {
	return New(CodeNotFound, format, args...)
}

// As reports whether err is (or wraps) a business error.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// CodeOf returns the code of a business error, CodeInternal for anything else.
func CodeOf(err error) Code {
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return CodeInternal
}

// HTTPStatus maps a code to the status the HTTP layer answers with.
func HTTPStatus(code Code) int {
	switch code {
	case CodeValidation, CodeAlreadyExists:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
