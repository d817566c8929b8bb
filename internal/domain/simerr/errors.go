// Package simerr defines the typed, non-fatal errors returned by simulation operations.
//
// Callers match on the sentinel values with errors.Is; the concrete *Error carries the
// operation that was rejected and a human readable reason for logs.
package simerr

import (
	"errors"
	"fmt"
)

// Code identifies a class of simulation error.
type Code string

const (
	CodeInvalidState        Code = "INVALID_STATE"
	CodeCapacityExceeded    Code = "CAPACITY_EXCEEDED"
	CodeNotAligned          Code = "NOT_ALIGNED"
	CodeGeneration          Code = "GENERATION_FAILED"
	CodeIncompatibleVersion Code = "INCOMPATIBLE_VERSION"
	CodeInvariant           Code = "INVARIANT_VIOLATION"
	CodeNotFound            Code = "NOT_FOUND"
)

// Error is a structured simulation error.
type Error struct {
	Code    Code
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error with the same code, so sentinels compare by class.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

var (
	ErrInvalidState        = &Error{Code: CodeInvalidState}
	ErrCapacityExceeded    = &Error{Code: CodeCapacityExceeded}
	ErrNotAligned          = &Error{Code: CodeNotAligned}
	ErrGeneration          = &Error{Code: CodeGeneration}
	ErrIncompatibleVersion = &Error{Code: CodeIncompatibleVersion}
	ErrInvariant           = &Error{Code: CodeInvariant}
	ErrNotFound            = &Error{Code: CodeNotFound}
)

// New builds an error of the given class for op.
func New(code Code, op, format string, args ...any) *Error {
	return &Error{Code: code, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a new error of the given class.
func Wrap(code Code, op string, cause error) *Error {
	return &Error{Code: code, Op: op, Cause: cause}
}

// CodeOf reports the code of err, or "" when err is not a simulation error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
