package repository

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"fetchplan-registry/internal/metadata"
	"fetchplan-registry/internal/planfile"
)

// salesSession builds:
//
//	sales_Customer (crm): name, email, version, lastOrder -> sales_Order; instance name: name
//	sales_Order: number, amount, customer -> sales_Customer, title(number, customer); instance name: title
//	sales_SpecialOrder extends sales_Order: priority
//	graph_A / graph_B: references to each other in their instance names
func salesSession() *metadata.Session {
	customer := metadata.NewClass("sales_Customer", "crm").
		Attr("id", "uuid").Attr("name", "string").Attr("email", "string").Attr("version", "int").
		Named("name")

	order := metadata.NewClass("sales_Order", "").
		Attr("id", "uuid").Attr("number", "string").Attr("amount", "decimal").
		Ref("customer", customer).
		Computed("title", "number", "customer").
		Named("title")

	customer.Ref("lastOrder", order)

	special := metadata.NewClass("sales_SpecialOrder", "").Attr("priority", "int")
	special.Ancestor = order

	a := metadata.NewClass("graph_A", "").Attr("id", "uuid").Attr("label", "string")
	b := metadata.NewClass("graph_B", "").Attr("id", "uuid")
	a.Ref("b", b).Named("label", "b")
	b.Ref("a", a).Named("a")

	return metadata.NewSession().MustRegister(customer, order, special, a, b)
}

func newTestRepository(t *testing.T, locations ...string) (*Repository, *test.Hook) {
	t.Helper()

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	repo := New(salesSession(), Config{
		Locations: locations,
		Logger:    logrus.NewEntry(logger),
	})

	return repo, hook
}

func deployXML(t *testing.T, repo *Repository, src string) error {
	t.Helper()
	return repo.DeployReader(strings.NewReader(src), planfile.FormatXML, "")
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}
