package datamanager

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownStore is returned when an entity's store isn't registered.
	ErrUnknownStore = errors.New("unknown store")
	// ErrEntityNotFound is returned by LoadOne when no row matches.
	ErrEntityNotFound = errors.New("entity not found")
	// ErrUnresolvedReference is returned when a saved entity references a new
	// entity that got no ID in the same save.
	ErrUnresolvedReference = errors.New("unresolved reference")
)

// ReferenceError names the property holding an unresolved reference.
type ReferenceError struct {
	Entity   string
	Property string
	Target   string
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("%s: %s.%s references a new %s that was not saved",
		ErrUnresolvedReference, e.Entity, e.Property, e.Target)
}

func (e *ReferenceError) Unwrap() error {
	return ErrUnresolvedReference
}
