package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testModel = `
entities:
  - name: sales_Customer
    store: crm
    instanceName: [name]
    properties:
      - {name: name}
      - {name: email}
  - name: sales_Order
    instanceName: [number]
    properties:
      - {name: number}
      - {name: customer, class: sales_Customer}
`

const testPlans = `<fetchPlans>
    <fetchPlan entity="sales_Order" name="order-full" extends="_local">
        <property name="customer" fetchPlan="_minimal"/>
    </fetchPlan>
</fetchPlans>`

func writeProject(t *testing.T, plans string) string {
	t.Helper()

	dir := t.TempDir()
	files := map[string]string{
		"model.yaml": testModel,
		"plans.xml":  plans,
		"fetchplan.yaml": `
metadata: model.yaml
modules:
  - name: sales
    fetchPlansConfig: [plans.xml]
log:
  level: error
`,
	}

	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}

	return filepath.Join(dir, "fetchplan.yaml")
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out, errOut bytes.Buffer

	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)

	err := cmd.Execute()

	return out.String(), err
}

func TestShow(t *testing.T) {
	cfg := writeProject(t, testPlans)

	out, err := run(t, "--config", cfg, "show", "sales_Order", "order-full", "-o", "text")
	require.NoError(t, err)
	assert.Equal(t, "sales_Order/order-full{number, customer{name}}\n", out)

	out, err = run(t, "--config", cfg, "show", "sales_Order", "order-full")
	require.NoError(t, err)
	assert.Contains(t, out, "entity: sales_Order\nname: order-full\n")
	assert.Contains(t, out, "name: _minimal")

	out, err = run(t, "--config", cfg, "show", "sales_Order", "_minimal", "-o", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"name": "_minimal"`)

	_, err = run(t, "--config", cfg, "show", "sales_Order", "missing")
	assert.EqualError(t, err, "fetch plan not found: sales_Order/missing")

	_, err = run(t, "--config", cfg, "show", "sales_Order", "_base", "-o", "xml")
	assert.EqualError(t, err, `unknown output format "xml"`)
}

func TestNamesAndEntities(t *testing.T) {
	cfg := writeProject(t, testPlans)

	out, err := run(t, "--config", cfg, "names", "sales_Order")
	require.NoError(t, err)
	assert.Contains(t, out, "order-full\n")

	out, err = run(t, "--config", cfg, "entities")
	require.NoError(t, err)
	assert.Equal(t, "sales_Customer\tcrm\tsales_customer\nsales_Order\tmain\tsales_order\n", out)
}

func TestCheck(t *testing.T) {
	out, err := run(t, "--config", writeProject(t, testPlans), "check")
	require.NoError(t, err)
	assert.Contains(t, out, "info [file_deployed] 1 fetch plan definitions deployed in ")
	assert.Contains(t, out, "0 warnings")

	dup := `<fetchPlans>
    <fetchPlan entity="sales_Order" name="brief" extends="_local"/>
    <fetchPlan entity="sales_Order" name="brief" extends="_minimal"/>
</fetchPlans>`
	cfg := writeProject(t, dup)

	out, err = run(t, "--config", cfg, "check")
	require.NoError(t, err)
	assert.Contains(t, out, "warning [duplicate_plan]")
	assert.Contains(t, out, "1 warnings")

	_, err = run(t, "--config", cfg, "check", "--strict")
	assert.ErrorIs(t, err, errCheckFailed)

	broken := `<fetchPlans><fetchPlan entity="sales_Order" name="x"><property name="nope"/></fetchPlan></fetchPlans>`

	out, err = run(t, "--config", writeProject(t, broken), "check")
	assert.ErrorIs(t, err, errCheckFailed)
	assert.Contains(t, out, "error [unknown_property] sales_Order/x: property nope not found in entity sales_Order")
	assert.NotContains(t, out, "fetch plans for")
}

func TestMissingConfig(t *testing.T) {
	_, err := run(t, "--config", filepath.Join(t.TempDir(), "none.yaml"), "check")
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestInvalidLogLevel(t *testing.T) {
	_, err := run(t, "--config", writeProject(t, testPlans), "--log-level", "loud", "check")
	assert.ErrorContains(t, err, "invalid log level")
}
