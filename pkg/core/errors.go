package core

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors.
var (
	ErrReadOnly = errors.New("store is in read-only mode")
	ErrNotFound = errors.New("not found")

	// ErrConflict is the raw uniqueness signal raised by store adapters.
	// Services translate it into ErrDuplicateName or ErrDuplicateLink.
	ErrConflict = errors.New("unique constraint violated")

	ErrValidation    = errors.New("validation failed")
	ErrDuplicateName = errors.New("you already have a value with this name")
	ErrDuplicateLink = errors.New("capture already resonates with this value")
	ErrHasDependents = errors.New("record has dependents")
	ErrPersistence   = errors.New("persistence failure")
)

// ValidationError reports an empty or malformed input caught before any write.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Invalid builds a ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// Required reports a missing mandatory field.
func Required(field string) error {
	return Invalid(field, "is required")
}

// ConflictError is returned by adapters when a write violates a unique constraint.
type ConflictError struct {
	Table   string
	Columns []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("unique constraint violated on %s(%s)", e.Table, strings.Join(e.Columns, ", "))
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// PersistenceError wraps any store failure that is not a domain signal.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

// Persistence wraps err as a PersistenceError unless it already carries a
// domain meaning (validation, not found, conflicts, dependents).
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrPersistence),
		errors.Is(err, ErrValidation),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrHasDependents),
		errors.Is(err, ErrDuplicateName),
		errors.Is(err, ErrDuplicateLink):
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// HasDependents reports that id in table is still referenced from another table.
func HasDependents(table, id, dependent string) error {
	return fmt.Errorf("%w: %s %s is referenced by %s", ErrHasDependents, table, id, dependent)
}

// NotFound reports a missing row.
func NotFound(table, id string) error {
	return fmt.Errorf("%w: %s %s", ErrNotFound, table, id)
}

type translatedError struct {
	kind  error
	cause error
}

func (e *translatedError) Error() string   { return e.kind.Error() }
func (e *translatedError) Unwrap() []error { return []error{e.kind, e.cause} }

// Translate reports cause under a domain sentinel (e.g. a ConflictError as
// ErrDuplicateName). The message is the sentinel's; both match errors.Is.
func Translate(kind, cause error) error {
	if cause == nil {
		return kind
	}
	return &translatedError{kind: kind, cause: cause}
}
