package diagnostic

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiagnosticsAddAndError(t *testing.T) {
	var d Diagnostics

	require.NoError(t, d.Error())

	d.Add(Diagnostic{Severity: DiagnosticWarning, Code: CodeDuplicatePlan, Message: "duplicate definition", Entity: "sales_Order", Plan: "order-edit"})
	d.Add(Diagnostic{Severity: DiagnosticInfo, Code: CodeFileDeployed, Message: "informational"})
	assert.False(t, d.HasErrors())
	assert.True(t, d.HasCode(CodeDuplicatePlan))

	d.Add(Diagnostic{Severity: DiagnosticError, Code: CodeUnknownEntity, Message: `entity "x" not found`, Entity: "x"})
	require.Error(t, d.Error())
	assert.Contains(t, d.Error().Error(), "[unknown_entity]")
	assert.Len(t, d.Warnings, 1)
	assert.Len(t, d.Infos, 1)
}

func TestDiagnosticString(t *testing.T) {
	diag := Diagnostic{
		Code:        CodeUnknownProperty,
		Message:     "property nme doesn't exist",
		Entity:      "sales_Customer",
		Plan:        "customer-edit",
		Source:      "plans.xml",
		Suggestions: []string{"name"},
	}

	assert.Equal(t,
		"[sales_Customer/customer-edit] plans.xml: [unknown_property] property nme doesn't exist (did you mean name?)",
		diag.String())
}

func TestDiagnosticsLog(t *testing.T) {
	var buf bytes.Buffer

	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})

	var d Diagnostics
	d.Add(Diagnostic{Severity: DiagnosticWarning, Code: CodeDuplicatePlan, Message: "dup", Entity: "e", Plan: "p"})
	d.Log(logrus.NewEntry(logger))

	out := buf.String()
	assert.Contains(t, out, "level=warning")
	assert.Contains(t, out, "code=duplicate_plan")
	assert.Contains(t, out, "fetch_plan=p")
}

func TestMerge(t *testing.T) {
	var a, b Diagnostics
	a.Add(Diagnostic{Severity: DiagnosticError, Code: "x", Message: "x"})
	b.Add(Diagnostic{Severity: DiagnosticWarning, Code: "y", Message: "y"})
	b.Add(Diagnostic{Severity: DiagnosticError, Code: "z", Message: "z"})

	a.Merge(b)
	assert.Len(t, a.Errors, 2)
	assert.Len(t, a.Warnings, 1)
	assert.Equal(t, "error", DiagnosticError.String())
	assert.Equal(t, "unknown", DiagnosticSeverity(42).String())
}
