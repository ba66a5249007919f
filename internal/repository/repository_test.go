package repository

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fetchplan-registry/internal/diagnostic"
	"fetchplan-registry/internal/fetchplan"
)

func TestDefaultPlans(t *testing.T) {
	repo, _ := newTestRepository(t)

	local, err := repo.Get("sales_Order", fetchplan.Local)
	require.NoError(t, err)
	assert.Equal(t, "sales_Order/_local{number, amount}", local.String())

	minimal, err := repo.Get("sales_Order", fetchplan.Minimal)
	require.NoError(t, err)
	assert.Equal(t, "sales_Order/_minimal{number, customer{name}}", minimal.String())

	customer, _ := minimal.Property("customer")
	require.NotNil(t, customer.Plan)
	assert.Equal(t, "sales_Customer/_minimal", customer.Plan.Key())

	base, err := repo.Get("sales_Order", fetchplan.Base)
	require.NoError(t, err)
	assert.Equal(t, []string{"number", "amount", "customer"}, base.Names())

	custLocal, err := repo.Get("sales_Customer", fetchplan.Local)
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "email"}, custLocal.Names())
}

func TestDefaultPlansInherited(t *testing.T) {
	repo, _ := newTestRepository(t)

	local, err := repo.Get("sales_SpecialOrder", fetchplan.Local)
	require.NoError(t, err)
	assert.Equal(t, "sales_SpecialOrder/_local{number, amount, priority}", local.String())

	minimal, err := repo.Get("sales_SpecialOrder", fetchplan.Minimal)
	require.NoError(t, err)
	assert.Equal(t, []string{"number", "customer"}, minimal.Names())
}

func TestBaseIsUnionOfLocalAndMinimal(t *testing.T) {
	repo, _ := newTestRepository(t)

	for _, entity := range []string{"sales_Order", "sales_Customer", "sales_SpecialOrder"} {
		local, err := repo.Get(entity, fetchplan.Local)
		require.NoError(t, err)
		minimal, err := repo.Get(entity, fetchplan.Minimal)
		require.NoError(t, err)
		base, err := repo.Get(entity, fetchplan.Base)
		require.NoError(t, err)

		want := map[string]bool{}
		for _, n := range append(local.Names(), minimal.Names()...) {
			want[n] = true
		}

		got := map[string]bool{}
		for _, n := range base.Names() {
			assert.False(t, got[n], "duplicate %s in %s", n, base)
			got[n] = true
		}

		assert.Equal(t, want, got, entity)
	}
}

func TestResolveTwiceYieldsEqualCopies(t *testing.T) {
	repo, _ := newTestRepository(t)

	for _, name := range []string{fetchplan.Local, fetchplan.Minimal, fetchplan.Base} {
		first, err := repo.Get("sales_Order", name)
		require.NoError(t, err)
		second, err := repo.Get("sales_Order", name)
		require.NoError(t, err)

		if !fetchplan.Equal(first, second) {
			t.Fatalf("plans differ:\n%s\n%s", spew.Sdump(first), spew.Sdump(second))
		}

		assert.NotSame(t, first, second)
		assert.False(t, fetchplan.SharesNodes(first, second), name)
	}
}

func TestCyclicDefaultPlans(t *testing.T) {
	repo, _ := newTestRepository(t)

	_, err := repo.Get("graph_A", fetchplan.Minimal)
	require.Error(t, err)
	assert.True(t, IsCyclic(err), err.Error())

	local, err := repo.Get("graph_A", fetchplan.Local)
	require.NoError(t, err)
	assert.Equal(t, []string{"label"}, local.Names())
}

func TestLookupErrors(t *testing.T) {
	repo, _ := newTestRepository(t)

	_, err := repo.Get("sales_Order", "nope")
	require.ErrorIs(t, err, ErrNotFound)

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "sales_Order", nf.Entity)
	assert.Equal(t, "fetch plan not found: sales_Order/nope", err.Error())

	_, err = repo.Get("sales_Nothing", fetchplan.Base)
	assert.ErrorIs(t, err, ErrUnknownEntity)

	_, err = repo.Get("sales_Order", "")
	assert.ErrorIs(t, err, ErrEmptyName)

	plan, err := repo.Find("sales_Order", "nope")
	assert.NoError(t, err)
	assert.Nil(t, plan)

	plan, err = repo.Find("sales_Order", fetchplan.Local)
	assert.NoError(t, err)
	assert.NotNil(t, plan)

	_, err = repo.Find("sales_Nothing", "x")
	assert.ErrorIs(t, err, ErrUnknownEntity)

	_, err = repo.GetByClass(nil, "x")
	assert.ErrorIs(t, err, ErrUnknownEntity)
}

func TestDeployPlans(t *testing.T) {
	repo, _ := newTestRepository(t)

	err := deployXML(t, repo, `<fetchPlans>
    <fetchPlan entity="sales_Order" name="order-edit" extends="_local">
        <property name="customer" fetchPlan="customer-card" fetch="BATCH"/>
    </fetchPlan>
    <fetchPlan entity="sales_Customer" name="customer-card" systemProperties="true">
        <property name="name"/>
        <property name="lastOrder">
            <property name="number"/>
        </property>
    </fetchPlan>
</fetchPlans>`)
	require.NoError(t, err)

	plan, err := repo.Get("sales_Order", "order-edit")
	require.NoError(t, err)
	assert.Equal(t,
		"sales_Order/order-edit{number, amount, customer{id, version, name, lastOrder{number}}}",
		plan.String())

	customer, _ := plan.Property("customer")
	assert.Equal(t, fetchplan.FetchModeBatch, customer.Mode)

	card, _ := repo.Get("sales_Customer", "customer-card")
	lastOrder, _ := card.Property("lastOrder")
	assert.Equal(t, "sales_Order/", lastOrder.Plan.Key())

	names, err := repo.Names("sales_Customer")
	require.NoError(t, err)
	assert.Equal(t, []string{"customer-card"}, names)
}

func TestDeployInlineExtendsReferencedPlan(t *testing.T) {
	repo, _ := newTestRepository(t)

	err := deployXML(t, repo, `<fetchPlans>
    <fetchPlan entity="sales_Customer" name="with-order">
        <property name="lastOrder" fetchPlan="_minimal">
            <property name="amount"/>
        </property>
        <property name="email"/>
    </fetchPlan>
</fetchPlans>`)
	require.NoError(t, err)

	plan, err := repo.Get("sales_Customer", "with-order")
	require.NoError(t, err)
	assert.Equal(t, "sales_Customer/with-order{lastOrder{number, customer{name}, amount}, email}", plan.String())
}

func TestBareReferenceUsesMinimal(t *testing.T) {
	repo, _ := newTestRepository(t)

	require.NoError(t, deployXML(t, repo, `<fetchPlans>
    <fetchPlan entity="sales_Order" name="bare"><property name="customer"/></fetchPlan>
</fetchPlans>`))

	plan, err := repo.Get("sales_Order", "bare")
	require.NoError(t, err)

	customer, _ := plan.Property("customer")
	require.NotNil(t, customer.Plan)
	assert.Equal(t, "sales_Customer/_minimal", customer.Plan.Key())
}

func TestPropertyEntityNarrowing(t *testing.T) {
	repo, _ := newTestRepository(t)

	require.NoError(t, deployXML(t, repo, `<fetchPlans>
    <fetchPlan entity="sales_Customer" name="special">
        <property name="lastOrder" entity="sales_SpecialOrder" fetchPlan="_local"/>
    </fetchPlan>
</fetchPlans>`))

	plan, err := repo.Get("sales_Customer", "special")
	require.NoError(t, err)
	assert.Equal(t, "sales_Customer/special{lastOrder{number, amount, priority}}", plan.String())

	err = deployXML(t, repo, `<fetchPlans>
    <fetchPlan entity="sales_Customer" name="wrong">
        <property name="lastOrder" entity="sales_Customer"/>
    </fetchPlan>
</fetchPlans>`)
	assert.ErrorContains(t, err, "is not assignable to sales_Order")
}

func TestDeployErrors(t *testing.T) {
	tests := []struct {
		name string
		xml  string
		want string
		code string
	}{
		{
			name: "blank name",
			xml:  `<fetchPlans><fetchPlan entity="sales_Order"/></fetchPlans>`,
			want: "requires 'name' and 'entity' attributes",
			code: diagnostic.CodeMissingAttribute,
		},
		{
			name: "blank entity",
			xml:  `<fetchPlans><fetchPlan name="x"/></fetchPlans>`,
			want: "requires 'name' and 'entity' attributes",
			code: diagnostic.CodeMissingAttribute,
		},
		{
			name: "unknown entity",
			xml:  `<fetchPlans><fetchPlan entity="sales_Ordr" name="x"/></fetchPlans>`,
			want: "entity sales_Ordr not found (did you mean sales_Order?)",
			code: diagnostic.CodeUnknownEntity,
		},
		{
			name: "missing ancestor",
			xml:  `<fetchPlans><fetchPlan entity="sales_Order" name="x" extends="missing"/></fetchPlans>`,
			want: "no ancestor fetch plan found: sales_Order/missing",
			code: diagnostic.CodeUnknownPlan,
		},
		{
			name: "self extends without previous definition",
			xml:  `<fetchPlans><fetchPlan entity="sales_Order" name="x" extends="x"/></fetchPlans>`,
			want: "no ancestor fetch plan found: sales_Order/x",
			code: diagnostic.CodeUnknownPlan,
		},
		{
			name: "unknown property",
			xml:  `<fetchPlans><fetchPlan entity="sales_Order" name="x"><property name="amout"/></fetchPlan></fetchPlans>`,
			want: "property amout not found in entity sales_Order (did you mean amount?)",
			code: diagnostic.CodeUnknownProperty,
		},
		{
			name: "blank property name",
			xml:  `<fetchPlans><fetchPlan entity="sales_Order" name="x"><property/></fetchPlan></fetchPlans>`,
			want: "requires a 'name' attribute",
			code: diagnostic.CodeMissingAttribute,
		},
		{
			name: "fetch plan on attribute",
			xml:  `<fetchPlans><fetchPlan entity="sales_Order" name="x"><property name="number" fetchPlan="_local"/></fetchPlan></fetchPlans>`,
			want: "property sales_Order.number is not a reference",
			code: diagnostic.CodeInvalidProperty,
		},
		{
			name: "missing nested plan",
			xml:  `<fetchPlans><fetchPlan entity="sales_Order" name="x"><property name="customer" fetchPlan="nope"/></fetchPlan></fetchPlans>`,
			want: "fetch plan sales_Customer/nope not found for property sales_Order.customer",
			code: diagnostic.CodeUnknownPlan,
		},
		{
			name: "bad fetch mode",
			xml:  `<fetchPlans><fetchPlan entity="sales_Order" name="x"><property name="customer" fetch="EAGER"/></fetchPlan></fetchPlans>`,
			want: `unknown fetch mode "EAGER"`,
			code: diagnostic.CodeUnknownFetchMode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, _ := newTestRepository(t)

			err := deployXML(t, repo, tt.xml)
			if err == nil {
				t.Fatalf("expected error containing %q", tt.want)
			}

			var ce *ConfigError
			require.ErrorAs(t, err, &ce)
			assert.Contains(t, err.Error(), tt.want)
			assert.Equal(t, tt.code, ce.Code)
		})
	}
}

func TestUnknownEntityConfigErrorWraps(t *testing.T) {
	repo, _ := newTestRepository(t)

	err := deployXML(t, repo, `<fetchPlans><fetchPlan entity="nope" name="x"/></fetchPlans>`)
	assert.ErrorIs(t, err, ErrUnknownEntity)
}

func TestCyclicReferenceAtDeploy(t *testing.T) {
	repo, _ := newTestRepository(t)

	err := deployXML(t, repo, `<fetchPlans>
    <fetchPlan entity="sales_Order" name="a">
        <property name="customer" fetchPlan="c"/>
    </fetchPlan>
    <fetchPlan entity="sales_Customer" name="c">
        <property name="lastOrder" fetchPlan="a"/>
    </fetchPlan>
</fetchPlans>`)
	require.Error(t, err)
	assert.True(t, IsCyclic(err), err.Error())
	assert.Contains(t, err.Error(), "fetch plans cannot have cyclic references")
}

func TestForwardReferenceInBatch(t *testing.T) {
	repo, _ := newTestRepository(t)

	require.NoError(t, deployXML(t, repo, `<fetchPlans>
    <fetchPlan entity="sales_Order" name="a" extends="b">
        <property name="customer" fetchPlan="c"/>
    </fetchPlan>
    <fetchPlan entity="sales_Order" name="b"><property name="amount"/></fetchPlan>
    <fetchPlan entity="sales_Customer" name="c"><property name="email"/></fetchPlan>
</fetchPlans>`))

	plan, err := repo.Get("sales_Order", "a")
	require.NoError(t, err)
	assert.Equal(t, "sales_Order/a{amount, customer{email}}", plan.String())
	assert.Equal(t, float64(3), testutil.ToFloat64(repo.Metrics().DeploysTotal))
}

func TestAncestorEntityLookup(t *testing.T) {
	repo, _ := newTestRepository(t)

	require.NoError(t, deployXML(t, repo, `<fetchPlans>
    <fetchPlan entity="sales_Order" name="order-edit"><property name="number"/></fetchPlan>
    <fetchPlan entity="sales_SpecialOrder" name="special-edit" extends="order-edit">
        <property name="priority"/>
    </fetchPlan>
    <fetchPlan entity="sales_Customer" name="c">
        <property name="lastOrder" entity="sales_SpecialOrder" fetchPlan="order-edit"/>
    </fetchPlan>
</fetchPlans>`))

	inherited, err := repo.Get("sales_SpecialOrder", "order-edit")
	require.NoError(t, err)
	assert.Equal(t, "sales_Order/order-edit{number}", inherited.String())

	special, err := repo.Get("sales_SpecialOrder", "special-edit")
	require.NoError(t, err)
	assert.Equal(t, []string{"number", "priority"}, special.Names())

	c, err := repo.Get("sales_Customer", "c")
	require.NoError(t, err)
	assert.Equal(t, "sales_Customer/c{lastOrder{number}}", c.String())
}

func TestDuplicateDefinitionFirstWins(t *testing.T) {
	repo, hook := newTestRepository(t)

	require.NoError(t, deployXML(t, repo, `<fetchPlans>
    <fetchPlan entity="sales_Order" name="dup"><property name="number"/></fetchPlan>
    <fetchPlan entity="sales_Order" name="dup"><property name="amount"/></fetchPlan>
</fetchPlans>`))

	plan, err := repo.Get("sales_Order", "dup")
	require.NoError(t, err)
	assert.Equal(t, []string{"number"}, plan.Names())

	diags, err := repo.Diagnostics()
	require.NoError(t, err)
	assert.True(t, diags.HasCode(diagnostic.CodeDuplicatePlan))

	var warned bool

	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Data["code"] == diagnostic.CodeDuplicatePlan {
			warned = true
			assert.Equal(t, "dup", e.Data["fetch_plan"])
		}
	}

	assert.True(t, warned, "expected duplicate warning to be logged")
}

func TestOverwritePropagatesToNestingPlans(t *testing.T) {
	repo, _ := newTestRepository(t)

	require.NoError(t, deployXML(t, repo, `<fetchPlans>
    <fetchPlan entity="sales_Customer" name="short"><property name="name"/></fetchPlan>
    <fetchPlan entity="sales_Order" name="with-customer">
        <property name="number"/>
        <property name="customer" fetchPlan="short"/>
    </fetchPlan>
</fetchPlans>`))

	before, err := repo.Get("sales_Order", "with-customer")
	require.NoError(t, err)
	assert.Equal(t, "sales_Order/with-customer{number, customer{name}}", before.String())

	require.NoError(t, deployXML(t, repo, `<fetchPlans>
    <fetchPlan entity="sales_Customer" name="short" overwrite="true"><property name="email"/></fetchPlan>
</fetchPlans>`))

	after, err := repo.Get("sales_Order", "with-customer")
	require.NoError(t, err)

	short, err := repo.Get("sales_Customer", "short")
	require.NoError(t, err)

	nested, _ := after.Property("customer")
	assert.True(t, fetchplan.Equal(short, nested.Plan), "nested %s, stored %s", nested.Plan, short)
	assert.Equal(t, "sales_Order/with-customer{number, customer{email}}", after.String())
	assert.Equal(t, float64(1), testutil.ToFloat64(repo.Metrics().OverwritesTotal))
}

func TestSelfExtendsExtendsPreviousDefinition(t *testing.T) {
	repo, _ := newTestRepository(t)

	require.NoError(t, deployXML(t, repo, `<fetchPlans>
    <fetchPlan entity="sales_Customer" name="short"><property name="name"/></fetchPlan>
    <fetchPlan entity="sales_Order" name="o"><property name="customer" fetchPlan="short"/></fetchPlan>
</fetchPlans>`))

	require.NoError(t, deployXML(t, repo, `<views>
    <view class="sales_Customer" name="short" extends="short"><property name="email"/></view>
</views>`))

	short, err := repo.Get("sales_Customer", "short")
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "email"}, short.Names())

	o, err := repo.Get("sales_Order", "o")
	require.NoError(t, err)
	assert.Equal(t, "sales_Order/o{customer{name, email}}", o.String())
}

func TestOverwriteCannotIntroduceCycle(t *testing.T) {
	repo, _ := newTestRepository(t)

	require.NoError(t, deployXML(t, repo, `<fetchPlans>
    <fetchPlan entity="sales_Order" name="o"><property name="number"/></fetchPlan>
    <fetchPlan entity="sales_Customer" name="c"><property name="lastOrder" fetchPlan="o"/></fetchPlan>
</fetchPlans>`))

	err := deployXML(t, repo, `<fetchPlans>
    <fetchPlan entity="sales_Order" name="o" overwrite="true"><property name="customer" fetchPlan="c"/></fetchPlan>
</fetchPlans>`)
	require.Error(t, err)
	assert.True(t, IsCyclic(err), err.Error())

	o, err := repo.Get("sales_Order", "o")
	require.NoError(t, err)
	assert.Equal(t, "sales_Order/o{number}", o.String())
}

func TestDefaultPlanOverwrite(t *testing.T) {
	repo, _ := newTestRepository(t)

	require.NoError(t, deployXML(t, repo, `<fetchPlans>
    <fetchPlan entity="sales_Order" name="o"><property name="customer" fetchPlan="_minimal"/></fetchPlan>
    <fetchPlan entity="sales_Customer" name="_minimal" extends="_minimal"><property name="email"/></fetchPlan>
</fetchPlans>`))

	o, err := repo.Get("sales_Order", "o")
	require.NoError(t, err)
	assert.Equal(t, "sales_Order/o{customer{name, email}}", o.String())
}

func TestSelfExtendingDefaultOnFreshRepository(t *testing.T) {
	repo, _ := newTestRepository(t)

	require.NoError(t, deployXML(t, repo, `<fetchPlans>
    <fetchPlan entity="sales_Customer" name="_minimal" extends="_minimal"><property name="email"/></fetchPlan>
</fetchPlans>`))

	minimal, err := repo.Get("sales_Customer", fetchplan.Minimal)
	require.NoError(t, err)
	assert.Equal(t, "sales_Customer/_minimal{name, email}", minimal.String())

	// Plans resolved afterwards nest the extended default.
	base, err := repo.Get("sales_Order", fetchplan.Base)
	require.NoError(t, err)
	assert.Contains(t, base.String(), "customer{name, email}")
}

func TestMetricsRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	repo := New(salesSession(), Config{Registerer: reg, Logger: logrus.NewEntry(logrus.New())})

	_, err := repo.Get("sales_Order", fetchplan.Base)
	require.NoError(t, err)
	_, err = repo.Get("sales_Order", fetchplan.Base)
	require.NoError(t, err)
	_, _ = repo.Get("sales_Order", "missing")

	m := repo.Metrics()
	assert.Equal(t, float64(1), testutil.ToFloat64(m.LookupsTotal.WithLabelValues(outcomeSynthesized)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.LookupsTotal.WithLabelValues(outcomeHit)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.LookupsTotal.WithLabelValues(outcomeNotFound)))
	// _base, _minimal of sales_Customer
	assert.Equal(t, float64(2), testutil.ToFloat64(m.StoredPlans))

	count, err := testutil.GatherAndCount(reg, "fetchplan_repository_lookups_total")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestConcurrentGet(t *testing.T) {
	repo, _ := newTestRepository(t)

	require.NoError(t, deployXML(t, repo, `<fetchPlans>
    <fetchPlan entity="sales_Order" name="o" extends="_base"/>
</fetchPlans>`))

	var wg sync.WaitGroup

	errs := make(chan error, 64)

	for i := 0; i < 64; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			name := []string{fetchplan.Local, fetchplan.Minimal, fetchplan.Base, "o"}[i%4]
			entity := []string{"sales_Order", "sales_Customer", "sales_SpecialOrder"}[i%3]

			if _, err := repo.Get(entity, name); err != nil && !errors.Is(err, ErrNotFound) {
				errs <- fmt.Errorf("%s/%s: %w", entity, name, err)
			}
		}(i)
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}
