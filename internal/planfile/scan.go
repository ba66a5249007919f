package planfile

import (
	"fmt"

	"fetchplan-registry/internal/diagnostic"
)

// ScanDuplicates reports plans declared more than once for the same entity
// without overwrite and without extending the earlier definition. Only plain
// definitions count as earlier ones.
// Definitions with blank keys are skipped; deploy rejects them.
func ScanDuplicates(doc *Document) diagnostic.Diagnostics {
	var diags diagnostic.Diagnostics

	checked := map[string]bool{}

	for _, def := range doc.Plans {
		if def.Name == "" || def.Entity == "" {
			continue
		}

		key := def.Key()

		if checked[key] && !def.IsOverwrite() {
			diags.Add(diagnostic.Diagnostic{
				Severity: diagnostic.DiagnosticWarning,
				Code:     diagnostic.CodeDuplicatePlan,
				Message: fmt.Sprintf("duplicate fetch plan definition without 'overwrite' attribute "+
					"and not extending parent fetch plan: %s", key),
				Entity: def.Entity,
				Plan:   def.Name,
				Source: def.Source,
			})
		}

		if !def.IsOverwrite() {
			checked[key] = true
		}
	}

	return diags
}
