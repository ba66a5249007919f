package repository

import (
	"errors"
	"fmt"
	"strings"

	"fetchplan-registry/internal/diagnostic"
)

var (
	// ErrNotFound is matched by errors returned for missing plans.
	ErrNotFound = errors.New("fetch plan not found")
	// ErrUnknownEntity is returned for entity names missing from metadata.
	ErrUnknownEntity = errors.New("unknown entity")
	// ErrEmptyName is returned when a lookup passes a blank plan name.
	ErrEmptyName = errors.New("fetch plan name is empty")
)

// NotFoundError reports a plan that is neither stored, synthesized nor
// inherited from an ancestor entity.
type NotFoundError struct {
	Entity string
	Name   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("fetch plan not found: %s/%s", e.Entity, e.Name)
}

// Is makes errors.Is(err, ErrNotFound) hold.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ConfigError is a structural problem in fetch plan definitions.
// It is not recoverable without fixing the definitions.
type ConfigError struct {
	// Code is one of the diagnostic codes.
	Code        string
	Entity      string
	Plan        string
	Source      string
	Message     string
	Suggestions []string
	Err         error
}

func (e *ConfigError) Error() string {
	var b strings.Builder

	b.WriteString("fetch plan configuration error")

	if e.Entity != "" || e.Plan != "" {
		b.WriteString(" [" + e.Entity + "/" + e.Plan + "]")
	}

	if e.Source != "" {
		b.WriteString(" in " + e.Source)
	}

	b.WriteString(": " + e.Message)

	if len(e.Suggestions) > 0 {
		b.WriteString(" (did you mean " + strings.Join(e.Suggestions, ", ") + "?)")
	}

	return b.String()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Diagnostic returns the error as an error diagnostic.
func (e *ConfigError) Diagnostic() diagnostic.Diagnostic {
	return diagnostic.Diagnostic{
		Severity:    diagnostic.DiagnosticError,
		Code:        e.Code,
		Message:     e.Message,
		Entity:      e.Entity,
		Plan:        e.Plan,
		Source:      e.Source,
		Suggestions: e.Suggestions,
	}
}

// errCyclic is the message of every cycle error.
const errCyclic = "fetch plans cannot have cyclic references"

// IsCyclic reports whether err is a cyclic reference configuration error.
func IsCyclic(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce) && ce.Message == errCyclic
}
