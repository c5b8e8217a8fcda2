package decimal

import (
	"errors"
	"fmt"
)

// Construction error kinds, matched with errors.Is
var (
	ErrOutOfRange       = errors.New("out of range")
	ErrInvalidScale     = errors.New("invalid scale")
	ErrCurrencyMismatch = errors.New("currency mismatch")
	ErrUnknownCurrency  = errors.New("unknown currency")
)

// ConstructionError reports a value type invariant violated at creation
type ConstructionError struct {
	Kind    error
	Field   string
	Value   string
	Message string
}

func (e *ConstructionError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%v: %s: %s (value=%s)", e.Kind, e.Field, e.Message, e.Value)
	}
	return fmt.Sprintf("%v: %s (value=%s)", e.Kind, e.Message, e.Value)
}

func (e *ConstructionError) Unwrap() error {
	return e.Kind
}

// NewConstructionError creates a new construction error
func NewConstructionError(kind error, field, value, message string) *ConstructionError {
	return &ConstructionError{
		Kind:    kind,
		Field:   field,
		Value:   value,
		Message: message,
	}
}
