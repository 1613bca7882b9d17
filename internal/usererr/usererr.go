// Package usererr defines the single error kind buzzy reports to users:
// a short message plus an optional multi-line detail block.
package usererr

import (
	"errors"
	"fmt"
)

// Error is an expected, user-facing failure. Anything else reaching the top
// level is treated as an internal fault.
type Error struct {
	Msg    string
	Detail string
	Err    error
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Err }

// New returns an error with only a message.
func New(msg string) *Error {
	return &Error{Msg: msg}
}

// Errorf formats a message. A %w verb keeps the wrapped error reachable
// through errors.Is/As.
func Errorf(format string, a ...any) *Error {
	wrapped := fmt.Errorf(format, a...)
	return &Error{Msg: wrapped.Error(), Err: errors.Unwrap(wrapped)}
}

// WithDetail returns an error carrying extra output, typically the captured
// output of a failed external command.
func WithDetail(msg, detail string) *Error {
	return &Error{Msg: msg, Detail: detail}
}

// Wrap attaches msg to err. If err already is (or wraps) an *Error its
// detail is carried over.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	e := &Error{Msg: msg + ": " + err.Error(), Err: err}
	var inner *Error
	if errors.As(err, &inner) {
		e.Detail = inner.Detail
	}
	return e
}

// As reports whether err is a user-facing error and returns it.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
