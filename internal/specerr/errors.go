// Package specerr defines the typed error kinds surfaced by the compiler,
// the repair pipeline, and the session orchestrator.
//
// Callers branch on Kind, never on message text:
//
//	if specerr.Is(err, specerr.SessionNotFound) { ... }
package specerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers and for CLI exit handling.
type Kind string

const (
	// InvalidInput covers malformed arguments, patches, pointers and
	// illegal state transitions.
	InvalidInput Kind = "INVALID_INPUT"

	// SessionNotFound means the store has no session with the given id.
	SessionNotFound Kind = "SESSION_NOT_FOUND"

	// AnswerValidationFailed means an answer was rejected by the template.
	AnswerValidationFailed Kind = "ANSWER_VALIDATION_FAILED"

	// LLMInvalidJSON means the model returned unusable output after retrying.
	LLMInvalidJSON Kind = "LLM_INVALID_JSON"

	// ValidationFailed means the repair loop ended without a compiling spec.
	ValidationFailed Kind = "VALIDATION_FAILED"

	// ApprovalRequired means export was attempted before approval.
	ApprovalRequired Kind = "APPROVAL_REQUIRED"

	// IOError wraps filesystem and storage failures.
	IOError Kind = "IO_ERROR"
)

// Error is a classified error. Err, when set, is the underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns an Error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf is New with fmt formatting.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err. A nil err yields nil.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf returns the kind of the outermost *Error in err's chain,
// or the empty Kind when err is unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
