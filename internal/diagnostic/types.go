package diagnostic

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"fetchplan-registry/internal/common"
)

// Well-known diagnostic codes.
const (
	CodeDuplicatePlan    = "duplicate_plan"
	CodeMissingAttribute = "missing_attribute"
	CodeUnknownEntity    = "unknown_entity"
	CodeUnknownProperty  = "unknown_property"
	CodeUnknownFetchMode = "unknown_fetch_mode"
	CodeUnknownPlan      = "unknown_plan"
	CodeCyclicReference  = "cyclic_reference"
	CodeInvalidProperty  = "invalid_property"
	CodeInvalidFile      = "invalid_file"
	CodeMissingFile      = "missing_file"
	CodeFileDeployed     = "file_deployed"
)

// Diagnostics holds all diagnostic information from a scan or deploy.
type Diagnostics struct {
	Errors   []Diagnostic
	Warnings []Diagnostic
	Infos    []Diagnostic
}

// Diagnostic represents a single diagnostic message.
type Diagnostic struct {
	// Severity of the diagnostic.
	Severity DiagnosticSeverity `json:"severity" yaml:"severity"`
	// Code is a unique identifier for this type of diagnostic.
	Code string `json:"code" yaml:"code"`
	// Message is the human-readable description.
	Message string `json:"message" yaml:"message"`
	// Entity is the entity name this relates to (if any).
	Entity string `json:"entity,omitempty" yaml:"entity,omitempty"`
	// Plan is the fetch plan name this relates to (if any).
	Plan string `json:"fetchPlan,omitempty" yaml:"fetchPlan,omitempty"`
	// Source is the definition file (if known).
	Source string `json:"source,omitempty" yaml:"source,omitempty"`
	// Suggestions are potential fixes or alternatives.
	Suggestions []string `json:"suggestions,omitempty" yaml:"suggestions,omitempty"`
}

// DiagnosticSeverity represents the severity level of a diagnostic.
type DiagnosticSeverity int

const (
	DiagnosticInfo DiagnosticSeverity = iota
	DiagnosticWarning
	DiagnosticError
)

// String returns a human-readable severity name.
func (s DiagnosticSeverity) String() string {
	switch s {
	case DiagnosticInfo:
		return "info"
	case DiagnosticWarning:
		return "warning"
	case DiagnosticError:
		return "error"
	default:
		return common.UnknownStr
	}
}

// MarshalText renders the severity by name.
func (s DiagnosticSeverity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Add appends a diagnostic to the list matching its severity.
func (d *Diagnostics) Add(diag Diagnostic) {
	switch diag.Severity {
	case DiagnosticError:
		d.Errors = append(d.Errors, diag)
	case DiagnosticWarning:
		d.Warnings = append(d.Warnings, diag)
	default:
		d.Infos = append(d.Infos, diag)
	}
}

// HasErrors returns true if there are any error diagnostics.
func (d *Diagnostics) HasErrors() bool {
	return len(d.Errors) > 0
}

// HasCode reports whether any diagnostic carries the given code.
func (d *Diagnostics) HasCode(code string) bool {
	for _, list := range [][]Diagnostic{d.Errors, d.Warnings, d.Infos} {
		for _, diag := range list {
			if diag.Code == code {
				return true
			}
		}
	}

	return false
}

// Merge merges another Diagnostics instance into this one.
func (d *Diagnostics) Merge(other Diagnostics) {
	d.Errors = append(d.Errors, other.Errors...)
	d.Warnings = append(d.Warnings, other.Warnings...)
	d.Infos = append(d.Infos, other.Infos...)
}

// Error returns a combined error from all error diagnostics, or nil if valid.
func (d *Diagnostics) Error() error {
	if !d.HasErrors() {
		return nil
	}

	parts := make([]string, 0, len(d.Errors))
	for _, e := range d.Errors {
		parts = append(parts, e.String())
	}

	return errors.New(strings.Join(parts, "; "))
}

// Log writes every diagnostic to the entry at the matching level.
func (d *Diagnostics) Log(log *logrus.Entry) {
	if log == nil {
		return
	}

	for _, e := range d.Errors {
		e.fields(log).Error(e.Message)
	}

	for _, w := range d.Warnings {
		w.fields(log).Warn(w.Message)
	}

	for _, i := range d.Infos {
		i.fields(log).Debug(i.Message)
	}
}

func (d Diagnostic) fields(log *logrus.Entry) *logrus.Entry {
	entry := log.WithField("code", d.Code)
	if d.Entity != "" {
		entry = entry.WithField("entity", d.Entity)
	}

	if d.Plan != "" {
		entry = entry.WithField("fetch_plan", d.Plan)
	}

	if d.Source != "" {
		entry = entry.WithField("source", d.Source)
	}

	return entry
}

// String returns a formatted diagnostic string.
func (d Diagnostic) String() string {
	var prefix []string
	if d.Entity != "" || d.Plan != "" {
		prefix = append(prefix, "["+d.Entity+"/"+d.Plan+"]")
	}

	if d.Source != "" {
		prefix = append(prefix, d.Source)
	}

	msg := d.Message
	if d.Code != "" {
		msg = fmt.Sprintf("[%s] %s", d.Code, msg)
	}

	if len(d.Suggestions) > 0 {
		msg += " (did you mean " + strings.Join(d.Suggestions, ", ") + "?)"
	}

	if len(prefix) > 0 {
		return strings.Join(prefix, " ") + ": " + msg
	}

	return msg
}
