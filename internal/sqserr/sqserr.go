// Package sqserr defines the error taxonomy used throughout the optimization
// engine: parse errors, construction errors, and runtime errors, each
// carrying a key path, a stable code, a human message, and an optional
// parameter name used to build documentation links at the CLI boundary.
//
// Parse and construction errors are values, not panics: callers combine them
// with Collect and only convert them to process exit codes at the CLI
// boundary (cmd/sqsgen), matching the propagation policy of the original
// implementation without introducing a monadic Result type.
package sqserr

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Code is a stable, machine-readable error classification surfaced to
// callers and to the CLI's help-link logic.
type Code string

const (
	NotFound    Code = "NOT_FOUND"
	TypeError   Code = "TYPE_ERROR"
	OutOfRange  Code = "OUT_OF_RANGE"
	BadValue    Code = "BAD_VALUE"
	BadArgument Code = "BAD_ARGUMENT"
	Unknown     Code = "UNKNOWN"
)

// Error is the concrete error value produced by configuration parsing,
// context construction, and a handful of runtime preconditions.
type Error struct {
	Code    Code
	KeyPath string
	Param   string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.KeyPath == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (key=%q)", e.Code, e.Message, e.KeyPath)
}

func (e *Error) Unwrap() error { return e.Cause }

// HelpURL returns the documentation link for the error's parameter, or ""
// when the error carries no documented parameter name.
func (e *Error) HelpURL() string {
	if e.Param == "" {
		return ""
	}
	return "https://sqsgen.dev/docs/config#" + e.Param
}

func newErr(code Code, keyPath, message string) *Error {
	return &Error{Code: code, KeyPath: keyPath, Param: keyPath, Message: message}
}

// NotFoundf builds a NOT_FOUND error for a missing required key.
func NotFoundf(keyPath, format string, args ...any) error {
	return newErr(NotFound, keyPath, fmt.Sprintf(format, args...))
}

// TypeErrorf builds a TYPE_ERROR error for a key whose value has the wrong
// shape.
func TypeErrorf(keyPath, format string, args ...any) error {
	return newErr(TypeError, keyPath, fmt.Sprintf(format, args...))
}

// OutOfRangef builds an OUT_OF_RANGE error.
func OutOfRangef(keyPath, format string, args ...any) error {
	return newErr(OutOfRange, keyPath, fmt.Sprintf(format, args...))
}

// BadValuef builds a BAD_VALUE error.
func BadValuef(keyPath, format string, args ...any) error {
	return newErr(BadValue, keyPath, fmt.Sprintf(format, args...))
}

// BadArgumentf builds a BAD_ARGUMENT error.
func BadArgumentf(keyPath, format string, args ...any) error {
	return newErr(BadArgument, keyPath, fmt.Sprintf(format, args...))
}

// BadRange is the error raised by the rank/unrank boundary check.
func BadRange(keyPath, message string) error {
	return newErr(BadValue, keyPath, message)
}

// Unknownf builds an UNKNOWN error for failures that don't fit the other
// categories (I/O, transport, and other runtime failures outside config
// parsing).
func Unknownf(keyPath, format string, args ...any) error {
	return newErr(Unknown, keyPath, fmt.Sprintf(format, args...))
}

// Wrap attaches a stack-carrying cause (via github.com/pkg/errors) to an
// existing domain error, preserving its code and key path.
func Wrap(err error, cause error) error {
	var e *Error
	if as, ok := err.(*Error); ok {
		e = as
	} else {
		e = &Error{Code: Unknown, Message: err.Error()}
	}
	e.Cause = errors.WithStack(cause)
	return e
}

// Collect folds a slice of errors (possibly containing nils) into a single
// error: nil if all entries are nil, the sole error if exactly one is
// non-nil, or a combined *Error reporting every key path and message
// otherwise. Mirrors the "monadic combine" composition described in the
// specification without introducing a dedicated Result type.
func Collect(errs ...error) error {
	var present []error
	for _, e := range errs {
		if e != nil {
			present = append(present, e)
		}
	}
	switch len(present) {
	case 0:
		return nil
	case 1:
		return present[0]
	}
	var paths, msgs []string
	code := Unknown
	for i, e := range present {
		var de *Error
		if as, ok := e.(*Error); ok {
			de = as
			if i == 0 {
				code = de.Code
			}
			if de.KeyPath != "" {
				paths = append(paths, de.KeyPath)
			}
		}
		msgs = append(msgs, e.Error())
	}
	return &Error{
		Code:    code,
		KeyPath: strings.Join(paths, ", "),
		Message: strings.Join(msgs, "; "),
	}
}

// As reports whether err is (or wraps) a *Error and returns it.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
