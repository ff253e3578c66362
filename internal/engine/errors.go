package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error detected while constructing or reducing
// an action.
//
// Runtime errors include:
//   - Action validation: unknown name, wrong entry kind, malformed payload
//   - Invariant violations: update of a missing document, restore without
//     save, retrieve-originals without an open session
//   - Recipe and reducer failures raised by schema-supplied functions
//
// A reduce call that fails returns its input state unchanged.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Name is the schema name or action type involved, if any.
	Name string

	// Details contains additional context.
	Details map[string]string

	err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeUnknownName indicates a name not present in the compiled schema.
	ErrCodeUnknownName RuntimeErrorCode = "UNKNOWN_NAME"

	// ErrCodeWrongEntryKind indicates a name of the wrong kind for the action.
	ErrCodeWrongEntryKind RuntimeErrorCode = "WRONG_ENTRY_KIND"

	// ErrCodeMalformedAction indicates missing or invalid action fields.
	ErrCodeMalformedAction RuntimeErrorCode = "MALFORMED_ACTION"

	// ErrCodeUnknownActionType indicates a custom type not in the action table.
	ErrCodeUnknownActionType RuntimeErrorCode = "UNKNOWN_ACTION_TYPE"

	// ErrCodeDocumentNotFound indicates an Update of a missing document.
	ErrCodeDocumentNotFound RuntimeErrorCode = "DOCUMENT_NOT_FOUND"

	// ErrCodeNoSavedSnapshot indicates a Restore without a prior Save.
	ErrCodeNoSavedSnapshot RuntimeErrorCode = "NO_SAVED_SNAPSHOT"

	// ErrCodeNoOriginalsSession indicates RetrieveOriginals without an open
	// SaveOriginals session.
	ErrCodeNoOriginalsSession RuntimeErrorCode = "NO_ORIGINALS_SESSION"

	// ErrCodeOriginalsSessionOpen indicates SaveOriginals while a session is
	// already open.
	ErrCodeOriginalsSessionOpen RuntimeErrorCode = "ORIGINALS_SESSION_OPEN"

	// ErrCodeRecipeFailed indicates a view or formula function failed.
	ErrCodeRecipeFailed RuntimeErrorCode = "RECIPE_FAILED"

	// ErrCodeReducerFailed indicates a value, customValue or custom reducer
	// failed.
	ErrCodeReducerFailed RuntimeErrorCode = "REDUCER_FAILED"

	// ErrCodeNotOnSubEngine indicates an operation only the root engine
	// supports.
	ErrCodeNotOnSubEngine RuntimeErrorCode = "NOT_ON_SUB_ENGINE"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Name != "" {
		msg = fmt.Sprintf("%s (name=%s)", msg, e.Name)
	}
	if e.err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.err)
	}
	return msg
}

// Unwrap returns the underlying cause, if any.
func (e *RuntimeError) Unwrap() error {
	return e.err
}

// HasCode reports whether err is a RuntimeError with the given code.
// Uses errors.As to handle wrapped errors.
func HasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsDocumentNotFound returns true if err reports an Update of a missing
// document.
func IsDocumentNotFound(err error) bool {
	return HasCode(err, ErrCodeDocumentNotFound)
}

// IsNoSavedSnapshot returns true if err reports a Restore without Save.
func IsNoSavedSnapshot(err error) bool {
	return HasCode(err, ErrCodeNoSavedSnapshot)
}

// IsNoOriginalsSession returns true if err reports RetrieveOriginals
// without SaveOriginals.
func IsNoOriginalsSession(err error) bool {
	return HasCode(err, ErrCodeNoOriginalsSession)
}

func newError(code RuntimeErrorCode, name, format string, args ...any) *RuntimeError {
	return &RuntimeError{Code: code, Name: name, Message: fmt.Sprintf(format, args...)}
}

func wrapError(code RuntimeErrorCode, name string, err error, format string, args ...any) *RuntimeError {
	return &RuntimeError{Code: code, Name: name, Message: fmt.Sprintf(format, args...), err: err}
}

// NewDocumentNotFoundError creates a RuntimeError for an Update of a
// missing document.
func NewDocumentNotFoundError(collection, id string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeDocumentNotFound,
		Message: fmt.Sprintf("document %q not found", id),
		Name:    collection,
		Details: map[string]string{"id": id},
	}
}
