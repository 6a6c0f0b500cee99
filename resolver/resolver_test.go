package resolver_test

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"

	"github.com/exo-run/exoquery/access"
	"github.com/exo-run/exoquery/catalog"
	"github.com/exo-run/exoquery/reqcontext"
	"github.com/exo-run/exoquery/resolver"
	"github.com/exo-run/exoquery/txscript"
)

func falseExpr() access.Expression { return access.BooleanLiteral(false) }

func venuesConcertsDB(t *testing.T) (db *catalog.Database, venues, concerts catalog.TableId) {
	t.Helper()
	db = catalog.NewDatabase([]catalog.Table{
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
	})
	venues, _ = db.TableByName("", "venues")
	concerts, _ = db.TableByName("", "concerts")
	return
}

// parseField parses a single-operation document and returns its operation
// kind and first top-level field, for feeding directly to
// Resolver.ResolveField in these tests.
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

// TestResolveFieldPKQuery covers spec.md §8 Scenario A.
func TestResolveFieldPKQuery(t *testing.T) {
	db, _, concerts := venuesConcertsDB(t)
	schema := resolver.NewSchema(db)
	schema.RegisterEntity(concerts, resolver.EntityAccess{})
	r := resolver.New(schema)

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM "concerts" LEFT JOIN "venues" ON "concerts"."venue_id" = "venues"."id" WHERE "concerts"."id" = \$1`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"json"}).AddRow(`{"title":"Residency","venue":{"name":"Fillmore"}}`))

	ctx := context.Background()
	holder, err := txscript.Begin(ctx, sqlDB, db)
	require.NoError(t, err)
	reqCtx := reqcontext.New(&reqcontext.Request{}, nil)

	op, field := parseField(t, `{ concert(id: 1) { title venue { name } } }`)
	result, err := r.ResolveField(ctx, reqCtx, holder, op, field, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"title": "Residency", "venue": map[string]any{"name": "Fillmore"}}, result)

	require.NoError(t, holder.Finalize(false))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestResolveFieldCollectionQueryWithRelationWhere covers spec.md §8
// Scenario B: a one-to-many predicate lowers to the subquery-with-IN
// strategy.
func TestResolveFieldCollectionQueryWithRelationWhere(t *testing.T) {
	db, venues, _ := venuesConcertsDB(t)
	schema := resolver.NewSchema(db)
	schema.RegisterEntity(venues, resolver.EntityAccess{})
	r := resolver.New(schema)

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`WHERE "venues"."id" IN \(SELECT "concerts"."venue_id" FROM "concerts" WHERE "concerts"."id" > \$1\)`).
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"json"}).AddRow(`[{"name":"Fillmore"}]`))

	ctx := context.Background()
	holder, err := txscript.Begin(ctx, sqlDB, db)
	require.NoError(t, err)
	reqCtx := reqcontext.New(&reqcontext.Request{}, nil)

	op, field := parseField(t, `{ venues(where: { concerts: { id: { gt: 10 } } }) { name } }`)
	result, err := r.ResolveField(ctx, reqCtx, holder, op, field, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{map[string]any{"name": "Fillmore"}}, result)

	require.NoError(t, holder.Finalize(false))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestResolveFieldCreateMutationWithNestedInsert covers spec.md §8
// Scenario D.
func TestResolveFieldCreateMutationWithNestedInsert(t *testing.T) {
	db, venues, _ := venuesConcertsDB(t)
	schema := resolver.NewSchema(db)
	schema.RegisterEntity(venues, resolver.EntityAccess{})
	r := resolver.New(schema)

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "venues"`).
		WithArgs("V").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectQuery(`INSERT INTO "concerts"`).
		WithArgs("C1", int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(5)))
	mock.ExpectQuery(`INSERT INTO "concerts"`).
		WithArgs("C2", int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(6)))
	mock.ExpectQuery(`= ANY`).
		WillReturnRows(sqlmock.NewRows([]string{"json"}).AddRow(`[{"name":"V"}]`))
	mock.ExpectCommit()

	ctx := context.Background()
	holder, err := txscript.Begin(ctx, sqlDB, db)
	require.NoError(t, err)
	reqCtx := reqcontext.New(&reqcontext.Request{}, nil)

	op, field := parseField(t, `mutation { createVenue(data: { name: "V", concerts: [{ title: "C1" }, { title: "C2" }] }) { name } }`)
	result, err := r.ResolveField(ctx, reqCtx, holder, op, field, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{map[string]any{"name": "V"}}, result)

	require.NoError(t, holder.Finalize(true))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestResolveFieldDeniesAuthorizationFalse covers the access-solver False
// path (spec.md §7: "Mutation aborted; Not authorized surfaced").
func TestResolveFieldDeniesAuthorizationFalse(t *testing.T) {
	db, _, concerts := venuesConcertsDB(t)
	schema := resolver.NewSchema(db)
	deny := falseExpr()
	schema.RegisterEntity(concerts, resolver.EntityAccess{Read: &deny})
	r := resolver.New(schema)

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()
	mock.ExpectBegin()

	ctx := context.Background()
	holder, err := txscript.Begin(ctx, sqlDB, db)
	require.NoError(t, err)
	reqCtx := reqcontext.New(&reqcontext.Request{}, nil)

	op, field := parseField(t, `{ concert(id: 1) { title } }`)
	_, err = r.ResolveField(ctx, reqCtx, holder, op, field, nil)
	assert.Error(t, err)

	require.NoError(t, holder.Finalize(false))
}
