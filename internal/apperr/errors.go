// Package apperr holds the sentinel errors shared by every domain service and
// the validation error types the HTTP layer renders field by field.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalid      = errors.New("invalid input")
	ErrInvalidState = errors.New("invalid state")
)

// ValidationError describes a single rule violation on an input field.
type ValidationError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s [%s]: %s", e.Field, e.Rule, e.Message)
}

// ValidationErrors is the collected result of validating one input.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, ve := range v {
		msgs[i] = ve.Error()
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Unwrap lets errors.Is(err, ErrInvalid) match.
func (v ValidationErrors) Unwrap() error { return ErrInvalid }

// Add appends a violation.
func (v *ValidationErrors) Add(field, rule, format string, args ...any) {
	*v = append(*v, ValidationError{Field: field, Rule: rule, Message: fmt.Sprintf(format, args...)})
}

// Err returns nil when nothing was collected.
func (v ValidationErrors) Err() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

// NotFound wraps ErrNotFound with the kind and id of the missing record.
func NotFound(kind, id string) error {
	return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
}

// InvalidState wraps ErrInvalidState for a record whose status forbids the operation.
func InvalidState(kind, id, status, op string) error {
	return fmt.Errorf("%w: cannot %s %s %s in status %s", ErrInvalidState, op, kind, id, status)
}
