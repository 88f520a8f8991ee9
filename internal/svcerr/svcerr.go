// Package svcerr defines the error taxonomy shared across the suggestion
// engine so callers can branch on cause with errors.Is/errors.As instead of
// string matching.
package svcerr

import "errors"

// Code classifies an error by how a caller should react to it.
type Code int

const (
	// CodeInvalidInput marks a client-supplied value that fails validation.
	CodeInvalidInput Code = iota
	// CodeNotFound marks an admin operation targeting an unknown phrase.
	CodeNotFound
	// CodeRebuildInProgress marks a rebuild request rejected because one is
	// already running.
	CodeRebuildInProgress
	// CodePersistenceUnavailable marks a transient storage failure.
	CodePersistenceUnavailable
	// CodeCacheUnavailable marks a transient cache failure; callers degrade
	// by bypassing the cache rather than failing the request.
	CodeCacheUnavailable
	// CodeCancelled marks a request abandoned by its caller's context.
	CodeCancelled
	// CodeFatalInvariant marks an internal invariant violation that forces
	// a rebuild.
	CodeFatalInvariant
)

func (c Code) String() string {
	switch c {
	case CodeInvalidInput:
		return "invalid-input"
	case CodeNotFound:
		return "not-found"
	case CodeRebuildInProgress:
		return "rebuild-in-progress"
	case CodePersistenceUnavailable:
		return "persistence-unavailable"
	case CodeCacheUnavailable:
		return "cache-unavailable"
	case CodeCancelled:
		return "cancelled"
	case CodeFatalInvariant:
		return "fatal-invariant"
	default:
		return "unknown"
	}
}

// Error is the concrete error type carrying a Code alongside a message.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Code.String() + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Code.String() + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap builds an *Error that carries an underlying cause.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}
