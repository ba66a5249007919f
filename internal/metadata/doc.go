// Package metadata provides the entity metadata model that fetch plans and
// stores are built against.
//
// It replaces runtime reflection with a static registry: entity descriptors
// are declared in a YAML model file (or built in code) and registered in a
// Session.
//
// Key types:
//   - MetaClass: entity name, owning store, single-inheritance ancestor,
//     properties and the instance-name (display name) properties
//   - MetaProperty: attribute or reference descriptor with persistence and
//     system flags
//   - Session: the registry of all MetaClasses
package metadata
