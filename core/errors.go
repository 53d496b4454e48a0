package core

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// ErrPermissionDenied is returned when an actor acts on something they do not own.
var ErrPermissionDenied = errors.New("permission denied")

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return err.Fields[0].Field + ": " + err.Fields[0].Error
		}
		return ""
	}
	return err.Err.Error()
}

// NotFoundError reports a missing record of a named entity.
type NotFoundError struct {
	Entity string
}

func NewNotFoundError(entity string) error {
	return &NotFoundError{Entity: entity}
}

func (err NotFoundError) Error() string {
	return err.Entity + " not found"
}

// IsNotFound reports whether err (or its cause) is a NotFoundError.
func IsNotFound(err error) bool {
	_, ok := errors.Cause(err).(*NotFoundError)
	return ok
}

// DependencyError is returned when a delete is blocked by referencing records.
type DependencyError struct {
	Entity     string
	Dependents map[string]int // {dependent name (singular): count}
}

func (err DependencyError) Error() string {
	names := make([]string, 0, len(err.Dependents))
	for name, n := range err.Dependents {
		if n > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		n := err.Dependents[name]
		if n > 1 {
			name += "s"
		}
		parts = append(parts, fmt.Sprintf("%d %s", n, name))
	}
	return fmt.Sprintf("cannot delete this %s: it still has %s", err.Entity, strings.Join(parts, ", "))
}

// CheckDependents returns a DependencyError when any count in dependents is positive.
func CheckDependents(entity string, dependents map[string]int) error {
	for _, n := range dependents {
		if n > 0 {
			return &DependencyError{Entity: entity, Dependents: dependents}
		}
	}
	return nil
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
