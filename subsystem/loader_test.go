package subsystem_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/exo-run/exoquery/access"
	"github.com/exo-run/exoquery/catalog"
	"github.com/exo-run/exoquery/subsystem"
)

func concertsTables() []catalog.Table {
	return []catalog.Table{
		{
			Name: "venues",
			Columns: []catalog.Column{
				{Name: "id", Type: catalog.Int32Type(), PrimaryKey: true, Autoincrement: true},
				{Name: "name", Type: catalog.StringType(0)},
			},
		},
		{
			Name: "concerts",
			Columns: []catalog.Column{
				{Name: "id", Type: catalog.Int32Type(), PrimaryKey: true, Autoincrement: true},
				{Name: "title", Type: catalog.StringType(0)},
				{
					Name: "venue_id",
					Type: catalog.Int32Type(),
					ForeignKey: &catalog.ForeignKey{
						LinkedColumn: catalog.ColumnId{Table: 0, Column: 0},
						Cardinality:  catalog.ManyToOne,
					},
				},
			},
		},
	}
}

func encodedConcertsBlob(t *testing.T) []byte {
	t.Helper()
	readRule := access.BooleanLiteral(true)
	img := subsystem.PostgresSubsystemImage{
		Tables: concertsTables(),
		Entities: []subsystem.EntityConfig{
			{Table: "venues", Read: &readRule},
			{Table: "concerts", Read: &readRule},
		},
	}
	imgBytes, err := msgpack.Marshal(img)
	require.NoError(t, err)

	sys := subsystem.SerializableSystem{
		Subsystems: []subsystem.SerializedSubsystem{{ID: "postgres", Bytes: imgBytes}},
	}
	blob, err := msgpack.Marshal(sys)
	require.NoError(t, err)
	return blob
}

func parseField(t *testing.T, query string) (ast.Operation, *ast.Field) {
	t.Helper()
	doc, gqlErr := parser.ParseQuery(&ast.Source{Input: query})
	require.Nil(t, gqlErr)
	require.Len(t, doc.Operations, 1)
	op := doc.Operations[0]
	require.NotEmpty(t, op.SelectionSet)
	field, ok := op.SelectionSet[0].(*ast.Field)
	require.True(t, ok)
	return op.Operation, field
}

func TestLoadSystemRegistersPostgresSubsystem(t *testing.T) {
	router, err := subsystem.LoadSystem(encodedConcertsBlob(t))
	require.NoError(t, err)

	res, ok := router.Resolver("postgres")
	require.True(t, ok)
	assert.True(t, res.Handles(ast.Query, "venues"))
	assert.True(t, res.Handles(ast.Query, "venue"))
	assert.True(t, res.Handles(ast.Mutation, "createConcert"))
	assert.False(t, res.Handles(ast.Query, "nope"))
}

func TestSystemRouterRoute(t *testing.T) {
	router, err := subsystem.LoadSystem(encodedConcertsBlob(t))
	require.NoError(t, err)

	res, ok := router.Route(ast.Query, "concerts")
	require.True(t, ok)
	assert.True(t, res.Handles(ast.Query, "concerts"))

	_, ok = router.Route(ast.Query, "unknownField")
	assert.False(t, ok)

	_, ok = router.Route(ast.Subscription, "concerts")
	assert.False(t, ok)
}

func TestLoadSystemUnknownSubsystemID(t *testing.T) {
	sys := subsystem.SerializableSystem{
		Subsystems: []subsystem.SerializedSubsystem{{ID: "deno", Bytes: nil}},
	}
	blob, err := msgpack.Marshal(sys)
	require.NoError(t, err)

	_, err = subsystem.LoadSystem(blob)
	assert.Error(t, err)
}

func TestCheckSelectionDepth(t *testing.T) {
	router := subsystem.NewSystemRouter()
	router.MaxSelectionDepth = 2

	_, field := parseField(t, `{ concert { venue { name } } }`)
	err := router.CheckSelectionDepth(field)
	assert.Error(t, err, "depth 3 exceeds max 2")

	_, shallow := parseField(t, `{ concert { title } }`)
	assert.NoError(t, router.CheckSelectionDepth(shallow))
}

func TestCheckSelectionDepthIntrospectionDisabledByDefault(t *testing.T) {
	router := subsystem.NewSystemRouter()
	_, field := parseField(t, `{ __schema { types { name } } }`)
	assert.Error(t, router.CheckSelectionDepth(field))

	router.IntrospectionEnabled = true
	assert.NoError(t, router.CheckSelectionDepth(field))
}
