// Package fetchplan defines the FetchPlan value type: a named, possibly nested
// specification of which entity attributes to load.
//
// Plans are built with a Builder and are treated as immutable once built.
// The repository hands out deep copies, so callers may keep and compare them
// freely. The names Local, Minimal and Base are reserved for the plans that
// are synthesized from entity metadata.
package fetchplan
