package model

import (
	"errors"
	"fmt"
)

var (
	errDefinitionIDMissing = errors.New("model: definition id is required")
	errFieldIDMissing      = errors.New("model: field id is required")
	errEffectIDMissing     = errors.New("model: effect id is required")
)

// UnknownFieldError reports a key that does not resolve to a declared field.
// It indicates a misconfigured caller or definition.
type UnknownFieldError struct {
	Key string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("model: unknown field %q", e.Key)
}

// IsUnknownField reports whether err is (or wraps) an UnknownFieldError.
func IsUnknownField(err error) bool {
	var target *UnknownFieldError
	return errors.As(err, &target)
}

// DefinitionError aggregates the problems found while compiling a definition.
type DefinitionError struct {
	Form     string
	Problems []error
}

func (e *DefinitionError) Error() string {
	if len(e.Problems) == 1 {
		return fmt.Sprintf("model: definition %q: %v", e.Form, e.Problems[0])
	}
	return fmt.Sprintf("model: definition %q: %d problems: %v", e.Form, len(e.Problems), errors.Join(e.Problems...))
}

// Unwrap exposes the individual problems to errors.Is/As.
func (e *DefinitionError) Unwrap() []error {
	return e.Problems
}
