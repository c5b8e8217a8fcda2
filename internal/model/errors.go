package model

import (
	"errors"
	"fmt"
)

// Sentinel kinds, matched with errors.Is
var (
	ErrDuplicatePosition = errors.New("duplicate position")
	ErrNotFound          = errors.New("not found")
	ErrMissingValue      = errors.New("missing value")
	ErrMalformedDocument = errors.New("malformed document")
	ErrInvalidCode       = errors.New("invalid code")
)

// AggregateError represents a rejected mutation of an invoice aggregate
type AggregateError struct {
	Op       string
	Position int
	Field    string
	Kind     error
}

func (e *AggregateError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Field, e.Kind)
	}
	return fmt.Sprintf("%s line item %d: %v", e.Op, e.Position, e.Kind)
}

func (e *AggregateError) Unwrap() error {
	return e.Kind
}

// MalformedDocumentError represents a fatal decode failure with syntax context
type MalformedDocumentError struct {
	Syntax  string
	Path    string
	Message string
	Cause   error
}

func (e *MalformedDocumentError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("malformed %s document: %s: %s (%v)", e.Syntax, e.Path, e.Message, e.Cause)
	}
	return fmt.Sprintf("malformed %s document: %s: %s", e.Syntax, e.Path, e.Message)
}

func (e *MalformedDocumentError) Unwrap() error {
	return e.Cause
}

// Is makes every MalformedDocumentError match ErrMalformedDocument
func (e *MalformedDocumentError) Is(target error) bool {
	return target == ErrMalformedDocument
}

// NewMalformedDocument creates a new decode error
func NewMalformedDocument(syntax, path, message string, cause error) *MalformedDocumentError {
	return &MalformedDocumentError{
		Syntax:  syntax,
		Path:    path,
		Message: message,
		Cause:   cause,
	}
}
