package repository

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fetchplan-registry/internal/diagnostic"
	"fetchplan-registry/internal/fetchplan"
)

const commonPlans = `<fetchPlans>
    <fetchPlan entity="sales_Customer" name="short"><property name="name"/></fetchPlan>
</fetchPlans>`

const orderPlans = `<fetchPlans>
    <include file="common.xml"/>
    <fetchPlan entity="sales_Order" name="order-edit" extends="_local">
        <property name="customer" fetchPlan="short"/>
    </fetchPlan>
</fetchPlans>`

func TestInitFromLocationsWithIncludes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "common.xml", commonPlans)
	main := writeFile(t, dir, "order.xml", orderPlans)

	repo, hook := newTestRepository(t, main, filepath.Join(dir, "missing.xml"))

	plan, err := repo.Get("sales_Order", "order-edit")
	require.NoError(t, err)
	assert.Equal(t, "sales_Order/order-edit{number, amount, customer{name}}", plan.String())

	var missingLogged bool

	for _, e := range hook.AllEntries() {
		if e.Message == "fetch plans file not found" {
			missingLogged = true
		}
	}

	assert.True(t, missingLogged)
}

func TestFilesAreReadOncePerGeneration(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "common.xml", commonPlans)
	main := writeFile(t, dir, "order.xml", orderPlans)

	repo, _ := newTestRepository(t, main)
	require.NoError(t, repo.Init())

	// Rewriting the file doesn't matter until Reset: it is not read again.
	writeFile(t, dir, "common.xml", `<fetchPlans>
    <fetchPlan entity="sales_Customer" name="short" overwrite="true"><property name="email"/></fetchPlan>
</fetchPlans>`)
	require.NoError(t, repo.DeployFile(filepath.Join(dir, "common.xml")))
	require.NoError(t, repo.DeployFile(main))

	short, err := repo.Get("sales_Customer", "short")
	require.NoError(t, err)
	assert.Equal(t, []string{"name"}, short.Names())

	repo.Reset()

	short, err = repo.Get("sales_Customer", "short")
	require.NoError(t, err)
	assert.Equal(t, []string{"email"}, short.Names())
}

func TestIncludeCycleIsReadOnce(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.xml", `<fetchPlans><include file="b.xml"/>
    <fetchPlan entity="sales_Order" name="a"><property name="number"/></fetchPlan></fetchPlans>`)
	writeFile(t, dir, "b.xml", `<fetchPlans><include file="a.xml"/>
    <fetchPlan entity="sales_Order" name="b"><property name="amount"/></fetchPlan></fetchPlans>`)

	repo, _ := newTestRepository(t, a)
	assert.Empty(t, repo.Files())

	names, err := repo.Names("sales_Order")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)
	assert.Equal(t, []string{a, filepath.Join(dir, "b.xml")}, repo.Files())

	repo.Reset()
	assert.Empty(t, repo.Files())
}

func TestResetDropsDeployedPlans(t *testing.T) {
	repo, _ := newTestRepository(t)

	require.NoError(t, deployXML(t, repo, `<fetchPlans>
    <fetchPlan entity="sales_Order" name="extra"><property name="number"/></fetchPlan>
</fetchPlans>`))

	_, err := repo.Get("sales_Order", "extra")
	require.NoError(t, err)

	repo.Reset()

	_, err = repo.Get("sales_Order", "extra")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = repo.Get("sales_Order", fetchplan.Base)
	assert.NoError(t, err)
}

func TestInitErrorIsStickyUntilReset(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bad.xml", `<fetchPlans><fetchPlan entity="sales_Order" name="x" extends="nope"/></fetchPlans>`)

	repo, _ := newTestRepository(t, path)

	_, err := repo.Get("sales_Order", fetchplan.Local)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to initialize fetch plan repository")
	assert.Contains(t, err.Error(), "no ancestor fetch plan found: sales_Order/nope")

	var ce *ConfigError
	assert.ErrorAs(t, err, &ce)

	_, again := repo.Find("sales_Order", fetchplan.Local)
	assert.Equal(t, err, again)

	assert.Equal(t, err, repo.DeployFile(path))

	writeFile(t, dir, "bad.xml", `<fetchPlans><fetchPlan entity="sales_Order" name="x" extends="_local"/></fetchPlans>`)
	repo.Reset()

	plan, err := repo.Get("sales_Order", "x")
	require.NoError(t, err)
	assert.Equal(t, []string{"number", "amount"}, plan.Names())
}

func TestMalformedFileFailsInit(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "broken.xml", `<fetchPlans><fetchPlan`)

	repo, _ := newTestRepository(t, path)

	err := repo.Init()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse fetch plans XML")

	diags, derr := repo.Diagnostics()
	assert.Equal(t, err, derr)
	require.Len(t, diags.Errors, 1)
	assert.Equal(t, diagnostic.CodeInvalidFile, diags.Errors[0].Code)
	assert.Equal(t, path, diags.Errors[0].Source)
}

func TestDiagnosticsRecordInitFailure(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "common.xml", commonPlans)
	bad := writeFile(t, dir, "bad.xml", `<fetchPlans>
    <fetchPlan entity="sales_Order" name="x"><property name="amout"/></fetchPlan>
</fetchPlans>`)
	missing := filepath.Join(dir, "missing.xml")

	repo, _ := newTestRepository(t, missing, good, bad)

	diags, err := repo.Diagnostics()
	require.Error(t, err)

	require.Len(t, diags.Errors, 1)
	e := diags.Errors[0]
	assert.Equal(t, diagnostic.DiagnosticError, e.Severity)
	assert.Equal(t, diagnostic.CodeUnknownProperty, e.Code)
	assert.Equal(t, "sales_Order", e.Entity)
	assert.Equal(t, "x", e.Plan)
	assert.Equal(t, bad, e.Source)
	assert.Equal(t, []string{"amount"}, e.Suggestions)

	require.Len(t, diags.Warnings, 1)
	assert.Equal(t, diagnostic.CodeMissingFile, diags.Warnings[0].Code)
	assert.Equal(t, missing, diags.Warnings[0].Source)

	require.Len(t, diags.Infos, 1)
	assert.Equal(t, diagnostic.CodeFileDeployed, diags.Infos[0].Code)
	assert.Equal(t, good, diags.Infos[0].Source)

	writeFile(t, dir, "bad.xml", `<fetchPlans><fetchPlan entity="sales_Order" name="x" extends="_local"/></fetchPlans>`)
	repo.Reset()

	diags, err = repo.Diagnostics()
	require.NoError(t, err)
	assert.Empty(t, diags.Errors)
	assert.Len(t, diags.Infos, 2)
}

func TestYAMLDefinitions(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "plans.yaml", `
fetchPlans:
  - entity: sales_Order
    name: order-list
    extends: _minimal
    properties:
      - amount
      - {name: customer, fetchPlan: _local, fetch: join}
`)

	repo, _ := newTestRepository(t, path)

	plan, err := repo.Get("sales_Order", "order-list")
	require.NoError(t, err)
	assert.Equal(t, "sales_Order/order-list{number, customer{name, email}, amount}", plan.String())

	customer, _ := plan.Property("customer")
	assert.Equal(t, fetchplan.FetchModeJoin, customer.Mode)
}

func TestConcurrentResetAndGet(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "common.xml", commonPlans)
	main := writeFile(t, dir, "order.xml", orderPlans)

	repo, _ := newTestRepository(t, main)

	var wg sync.WaitGroup

	for i := 0; i < 32; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			if i%8 == 0 {
				repo.Reset()
				return
			}

			plan, err := repo.Get("sales_Order", "order-edit")
			if err != nil {
				t.Errorf("get: %v", err)
				return
			}

			if plan.Len() != 3 {
				t.Errorf("unexpected plan %s", plan)
			}
		}(i)
	}

	wg.Wait()
}
