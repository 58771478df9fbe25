// Package errors wraps pkg/errors and adds error codes. Every error created
// with New or Newf carries a stack trace and is reported to the package
// logger at the moment it is created, so that a single breakpoint or log
// filter catches every failure the library produces.
package errors

import (
	"fmt"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/submergedb/coldb/logger"
)

// Code is an error code which can be used to check against a given error.
type Code string

const (
	ErrUncoded            Code = "Uncoded"
	ErrBadMagic           Code = "BadMagic"
	ErrUnsupportedVersion Code = "UnsupportedVersion"
	ErrCorrupt            Code = "Corrupt"
	ErrOutOfRange         Code = "OutOfRange"
	ErrTooManyRows        Code = "TooManyRows"
	ErrTooManyTracks      Code = "TooManyTracks"
	ErrTypeMismatch       Code = "TypeMismatch"
	ErrProtocol           Code = "Protocol"
)

var creationLogger atomic.Pointer[logger.Logger]

// SetLogger sets the logger that receives every newly created coded error.
// Passing nil restores the default, which discards them.
func SetLogger(l logger.Logger) {
	if l == nil {
		creationLogger.Store(nil)
		return
	}
	creationLogger.Store(&l)
}

func report(err codedError) {
	if l := creationLogger.Load(); l != nil {
		(*l).WithField("code", string(err.Code)).Errorf("%s", err.Message)
	}
}

// New returns a coded error with a stack trace.
func New(code Code, message string) error {
	ce := codedError{Code: code, Message: message}
	report(ce)
	return errors.WithStack(ce)
}

// Newf is New with a formatted message.
func Newf(code Code, format string, args ...interface{}) error {
	return New(code, fmt.Sprintf(format, args...))
}

// Is reports whether err, or any error it wraps, carries the target code.
func Is(err error, target Code) bool {
	return errors.Is(err, codedError{Code: target})
}

// CodeOf returns the code of the first coded error in err's chain, or
// ErrUncoded.
func CodeOf(err error) Code {
	var ce codedError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ErrUncoded
}

func Cause(err error) error {
	return errors.Cause(err)
}

func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

func WithStack(err error) error {
	return errors.WithStack(err)
}

type codedError struct {
	Code    Code
	Message string
}

func (ce codedError) Error() string {
	return ce.Message
}

func (ce codedError) Is(err error) bool {
	if e, ok := err.(codedError); ok && ce.Code == e.Code {
		return true
	}
	return false
}
