package datamanager

import (
	"fmt"
	"sort"
	"strings"

	"fetchplan-registry/internal/metadata"
)

// Entity is a loaded or new entity instance. Reference properties hold *Entity.
type Entity struct {
	Class *metadata.MetaClass
	// ID is nil until the entity is saved.
	ID any

	values map[string]any
}

// NewEntity creates a new entity without an ID.
func NewEntity(cls *metadata.MetaClass) *Entity {
	return &Entity{Class: cls, values: map[string]any{}}
}

// IsNew reports whether the entity has no ID yet.
func (e *Entity) IsNew() bool {
	return e.ID == nil
}

// Set assigns a property value and returns the entity for chaining.
func (e *Entity) Set(name string, value any) *Entity {
	e.values[name] = value
	return e
}

// Get returns a property value, nil when it isn't loaded.
func (e *Entity) Get(name string) any {
	return e.values[name]
}

// Ref returns a reference property value.
func (e *Entity) Ref(name string) *Entity {
	ref, _ := e.values[name].(*Entity)
	return ref
}

// IsLoaded reports whether the property was loaded or set.
func (e *Entity) IsLoaded(name string) bool {
	_, ok := e.values[name]
	return ok
}

// Properties returns the names of the loaded properties, sorted.
func (e *Entity) Properties() []string {
	names := make([]string, 0, len(e.values))
	for n := range e.values {
		names = append(names, n)
	}

	sort.Strings(names)

	return names
}

// String renders "sales_Order#1{number=N1, customer=sales_Customer#7}".
func (e *Entity) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s#%v{", e.Class.Name, e.ID)

	for i, n := range e.Properties() {
		if i > 0 {
			b.WriteString(", ")
		}

		if ref, ok := e.values[n].(*Entity); ok && ref != nil {
			fmt.Fprintf(&b, "%s=%s#%v", n, ref.Class.Name, ref.ID)
			continue
		}

		fmt.Fprintf(&b, "%s=%v", n, e.values[n])
	}

	b.WriteByte('}')

	return b.String()
}

func idKey(id any) string {
	if b, ok := id.([]byte); ok {
		return string(b)
	}

	return fmt.Sprint(id)
}
