package errs

import (
	"errors"
)

// Code is a harness error code.
type Code string

const (
	// Failure codes: the page did not behave as expected.
	Lookup    Code = "lookup"
	Timeout   Code = "timeout"
	Assertion Code = "assertion"

	// Error codes: the harness could not run the case at all.
	InvalidArgument Code = "invalid_argument"
	Session         Code = "session"
	Unavailable     Code = "unavailable"
	Internal        Code = "internal"
)

// Error is a coded harness error.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		if e.Err != nil {
			return e.Message + ": " + e.Err.Error()
		}
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a coded error with message.
func New(code Code, message string) error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a coded error with message and cause.
func Wrap(code Code, message string, cause error) error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     cause,
	}
}

// CodeOf returns the outermost error code, defaulting to internal.
func CodeOf(err error) Code {
	if err == nil {
		return Internal
	}
	var coded *Error
	if errors.As(err, &coded) {
		if coded.Code == "" {
			return Internal
		}
		return coded.Code
	}
	return Internal
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// MessageOf returns the message of the outermost coded error.
// Uncoded errors are returned verbatim since harness output is read by developers.
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var coded *Error
	if errors.As(err, &coded) && coded.Message != "" {
		return coded.Message
	}
	return err.Error()
}

// Failure reports whether err means the page misbehaved (lookup, timeout,
// assertion) as opposed to the harness being unable to run the case.
func Failure(err error) bool {
	switch CodeOf(err) {
	case Lookup, Timeout, Assertion:
		return true
	default:
		return false
	}
}
