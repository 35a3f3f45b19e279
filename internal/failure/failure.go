// Package failure defines the error taxonomy shared by every quill component.
//
// All errors that cross a component boundary are *Error values carrying a
// Kind, a stable Code, a human message, a context map and an optional
// suggestion for the caller. Package-level sentinels are attached as causes
// so errors.Is keeps working for callers that only care about one condition.
//
//	err := failure.Lock(failure.CodeLockTimeout, "section is locked").
//		With("holder", rec.Owner).
//		Suggest("retry after the lock expires").
//		Wrap(lock.ErrTimeout)
//
// The package is a leaf: it imports nothing from quill so that the lock,
// section and recovery packages can all depend on it.
package failure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"slices"
	"strings"
)

// Kind classifies an error for recovery routing.
type Kind string

const (
	KindIO         Kind = "IOError"
	KindEngine     Kind = "EngineError"
	KindValidation Kind = "ValidationError"
	KindLock       Kind = "LockError"
)

// Stable error codes. Codes are part of the JSON surface (CLI, MCP, HTTP)
// so existing values must not change.
const (
	CodeNotFound        = "NOT_FOUND"
	CodeExists          = "ALREADY_EXISTS"
	CodeInvalidMetadata = "INVALID_METADATA"
	CodeInvalidMarker   = "INVALID_MARKER"
	CodeInvalidContent  = "INVALID_CONTENT"
	CodeInvalidTitle    = "INVALID_TITLE"
	CodeLimitExceeded   = "LIMIT_EXCEEDED"
	CodeLintFailed      = "LINT_FAILED"

	CodeLockTimeout = "LOCK_TIMEOUT"
	CodeLockActive  = "LOCK_ACTIVE"
	CodeLockLost    = "LOCK_LOST"

	CodeRead       = "READ_FAILED"
	CodeWrite      = "WRITE_FAILED"
	CodePermission = "PERMISSION_DENIED"

	CodeEngineFailed      = "ENGINE_FAILED"
	CodeEngineUnavailable = "ENGINE_UNAVAILABLE"
	CodeVerifyFailed      = "VERIFY_FAILED"
	CodeTimeout           = "TIMEOUT"
	CodeCancelled         = "CANCELLED"
	CodeOutputExists      = "OUTPUT_EXISTS"
	CodeInternal          = "INTERNAL"
)

// Error is the typed error carried across component boundaries.
type Error struct {
	Kind       Kind
	Code       string
	Message    string
	Context    map[string]any
	Suggestion string

	cause error
}

// New creates an error of the given kind.
func New(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

// IO creates an IOError.
func IO(code, msg string) *Error { return New(KindIO, code, msg) }

// Engine creates an EngineError.
func Engine(code, msg string) *Error { return New(KindEngine, code, msg) }

// Validation creates a ValidationError.
func Validation(code, msg string) *Error { return New(KindValidation, code, msg) }

// Lock creates a LockError.
func Lock(code, msg string) *Error { return New(KindLock, code, msg) }

// With adds a context entry and returns the receiver for chaining.
func (e *Error) With(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// Suggest sets the remediation hint shown to the caller.
func (e *Error) Suggest(s string) *Error {
	e.Suggestion = s
	return e
}

// Wrap records the underlying cause.
func (e *Error) Wrap(err error) *Error {
	e.cause = err
	return e
}

// Error formats as "Kind[CODE]: message (k=v, ...)". Context keys are sorted
// so the text is stable in logs and tests.
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%s]: %s", e.Kind, e.Code, e.Message)
	if len(e.Context) > 0 {
		keys := slices.Sorted(maps.Keys(e.Context))
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		fmt.Fprintf(&b, " (%s)", strings.Join(parts, ", "))
	}
	if e.cause != nil {
		fmt.Fprintf(&b, ": %v", e.cause)
	}
	return b.String()
}

// MarshalJSON encodes the error for the CLI, MCP and HTTP surfaces. The
// cause is folded into the message.
func (e *Error) MarshalJSON() ([]byte, error) {
	msg := e.Message
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return json.Marshal(struct {
		Kind       Kind           `json:"kind"`
		Code       string         `json:"code"`
		Message    string         `json:"message"`
		Context    map[string]any `json:"context,omitempty"`
		Suggestion string         `json:"suggestion,omitempty"`
	}{e.Kind, e.Code, msg, e.Context, e.Suggestion})
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error { return e.cause }

// Is matches another *Error by kind, and by code when the target sets one.
// This lets callers test errors.Is(err, failure.ErrLock) for a whole class.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// Class targets for errors.Is.
var (
	ErrIO         = &Error{Kind: KindIO}
	ErrEngine     = &Error{Kind: KindEngine}
	ErrValidation = &Error{Kind: KindValidation}
	ErrLock       = &Error{Kind: KindLock}
)

// As extracts the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// From classifies an arbitrary error. Errors already in the taxonomy are
// returned unchanged; filesystem errors become IOError; context expiry and
// cancellation become EngineError with TIMEOUT or CANCELLED. Anything else is
// an EngineError with code INTERNAL.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	if fe, ok := As(err); ok {
		return fe
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return Engine(CodeTimeout, "operation timed out").Wrap(err)
	case errors.Is(err, context.Canceled):
		return Engine(CodeCancelled, "operation cancelled").Wrap(err)
	case errors.Is(err, fs.ErrPermission):
		return IO(CodePermission, "permission denied").Wrap(err)
	case errors.Is(err, fs.ErrNotExist):
		return IO(CodeNotFound, "file not found").Wrap(err)
	}

	var pe *fs.PathError
	if errors.As(err, &pe) {
		return IO(CodeRead, pe.Op+" failed").With("path", pe.Path).Wrap(err)
	}
	return Engine(CodeInternal, "unexpected error").Wrap(err)
}

// KindOf returns the kind of err after classification, or "" for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return From(err).Kind
}

// CodeOf returns the code of err after classification, or "" for nil.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	return From(err).Code
}
