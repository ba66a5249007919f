package planfile

import (
	"path/filepath"
	"strings"

	"fetchplan-registry/internal/common"
)

// Format identifies the syntax of a definition file.
type Format int

const (
	FormatXML Format = iota
	FormatYAML
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatXML:
		return "xml"
	case FormatYAML:
		return "yaml"
	default:
		return common.UnknownStr
	}
}

// FormatFor picks the format from a file extension.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatXML
	}
}

// Document is a parsed definition file.
type Document struct {
	// Source is the file the document was read from, empty for streams.
	Source string
	// Includes are the include directives in file order, as written.
	Includes []string
	// Plans are the plan definitions in file order.
	Plans []*PlanDef
}

// PlanDef is one fetch plan definition.
type PlanDef struct {
	Name             string
	Entity           string
	Extends          []string
	Overwrite        bool
	SystemProperties bool
	Properties       []PropertyDef
	// Source is the file the definition came from.
	Source string
}

// Key returns "entity/name".
func (d *PlanDef) Key() string {
	return d.Entity + "/" + d.Name
}

// ExtendsItself reports whether the plan lists its own name among its ancestors.
func (d *PlanDef) ExtendsItself() bool {
	return common.Contains(d.Extends, d.Name)
}

// IsOverwrite reports whether deploying the plan replaces a stored one.
// Extending itself implies overwrite.
func (d *PlanDef) IsOverwrite() bool {
	return d.Overwrite || d.ExtendsItself()
}

// PropertyDef is one property of a plan definition.
type PropertyDef struct {
	Name string
	// FetchPlan names the nested plan for references.
	FetchPlan string
	// Fetch is the raw fetch mode.
	Fetch string
	// Entity narrows the referenced entity (for polymorphic references).
	Entity string
	// Properties define an inline nested plan.
	Properties []PropertyDef
}

// ResolveInclude returns the path of an include relative to the including document.
func (d *Document) ResolveInclude(file string) string {
	if filepath.IsAbs(file) || d.Source == "" {
		return filepath.Clean(file)
	}

	return filepath.Join(filepath.Dir(d.Source), file)
}

// SplitExtends parses an extends attribute.
func SplitExtends(s string) []string {
	return common.SplitList(s, ",")
}

// parseBool accepts the usual spellings of true.
func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "on", "y", "1":
		return true
	default:
		return false
	}
}
