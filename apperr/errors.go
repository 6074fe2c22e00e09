package apperr

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION"
	CodeAuthorization Code = "AUTHORIZATION"
	CodeNotFound      Code = "NOT_FOUND"
	CodeInternal      Code = "INTERNAL"
)

// Error is the coded error returned by the messaging core. Reason is safe to
// show to the caller, Err is the underlying cause (if any) and is only logged.
type Error struct {
	Code   Code
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func New(code Code, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

func Validation(reason string) *Error {
	return New(CodeValidation, reason, nil)
}

func Authorization(reason string) *Error {
	return New(CodeAuthorization, reason, nil)
}

func NotFound(reason string) *Error {
	return New(CodeNotFound, reason, nil)
}

func Internal(reason string, err error) *Error {
	return New(CodeInternal, reason, err)
}

// CodeOf returns the code of the first *Error in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}
