// Package apperrors defines the structured error codes returned by the
// calendar and diff engines.
package apperrors

import (
	"errors"
	"fmt"
)

// Code identifies the kind of failure reported to the caller.
type Code string

const (
	// Input malformation
	CodeInvalidDate   Code = "invalid_date"
	CodeInvalidWindow Code = "invalid_window"

	// Domain rule violations
	CodeUnsupportedChangeover Code = "unsupported_changeover"
	CodeMissingRequiredField  Code = "missing_required_field"
	CodeMissingIdentifier     Code = "missing_identifier"
	CodeUnknownAttribute      Code = "unknown_attribute"
	CodeInvalidEntity         Code = "invalid_entity"
)

// Error is an application error carrying a code and enough detail
// (field name, offending value) for the caller to report it upstream.
type Error struct {
	Code    Code
	Message string
	Field   string
	Value   any
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Field != "" {
		msg += fmt.Sprintf(" (field=%s)", e.Field)
	}
	if e.Value != nil {
		msg += fmt.Sprintf(" (value=%v)", e.Value)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error that wraps an underlying cause.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// WithField records the offending field name.
func (e *Error) WithField(name string) *Error {
	e.Field = name
	return e
}

// WithValue records the offending value.
func (e *Error) WithValue(v any) *Error {
	e.Value = v
	return e
}

// CodeOf returns the code of the first *Error in err's chain,
// or an empty code if there is none.
func CodeOf(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}
