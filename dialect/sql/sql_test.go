package sql_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exo-run/exoquery/catalog"
	dsql "github.com/exo-run/exoquery/dialect/sql"
)

func venuesConcerts() *catalog.Database {
	return catalog.NewDatabase([]catalog.Table{
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
}

func TestSelectJsonObjectTopLevelGetsTextCast(t *testing.T) {
	t.Parallel()
	db := venuesConcerts()
	venues, _ := db.TableByName("", "venues")

	sel := dsql.Select{
		Table: dsql.PhysicalTable(venues),
		Columns: []dsql.Column{
			dsql.JSONObjectColumn([]dsql.JSONObjectElement{
				{Key: "id", Value: dsql.PhysicalColumn(catalog.ColumnId{Table: venues, Column: 0})},
				{Key: "name", Value: dsql.PhysicalColumn(catalog.ColumnId{Table: venues, Column: 1})},
			}),
		},
		Predicate:         dsql.True,
		TopLevelSelection: true,
	}

	out, params := dsql.ToSQL(db, sel)
	assert.Equal(t, `SELECT json_build_object($1, "venues"."id", $2, "venues"."name")::text FROM "venues"`, out)
	assert.Equal(t, []any{"id", "name"}, params)
}

func TestSelectOmitsWhereTrue(t *testing.T) {
	t.Parallel()
	db := venuesConcerts()
	venues, _ := db.TableByName("", "venues")

	sel := dsql.Select{
		Table:     dsql.PhysicalTable(venues),
		Columns:   []dsql.Column{dsql.StarColumn()},
		Predicate: dsql.True,
	}
	out, _ := dsql.ToSQL(db, sel)
	assert.Equal(t, `SELECT * FROM "venues"`, out)
	assert.NotContains(t, out, "WHERE")
}

func TestSelectWithPredicateAndLimit(t *testing.T) {
	t.Parallel()
	db := venuesConcerts()
	venues, _ := db.TableByName("", "venues")
	nameCol := catalog.ColumnId{Table: venues, Column: 1}

	limit := dsql.Limit(10)
	sel := dsql.Select{
		Table:     dsql.PhysicalTable(venues),
		Columns:   []dsql.Column{dsql.StarColumn()},
		Predicate: dsql.Eq(dsql.PhysicalColumn(nameCol), dsql.ValueColumn(dsql.NewValue("The Fillmore"))),
		Limit:     &limit,
	}
	out, params := dsql.ToSQL(db, sel)
	assert.Equal(t, `SELECT * FROM "venues" WHERE "venues"."name" = $1 LIMIT 10`, out)
	assert.Equal(t, []any{"The Fillmore"}, params)
}

func TestSelectLeftJoinWithJsonAgg(t *testing.T) {
	t.Parallel()
	db := venuesConcerts()
	venues, _ := db.TableByName("", "venues")
	concerts, _ := db.TableByName("", "concerts")
	venueIDInConcerts := catalog.ColumnId{Table: concerts, Column: 2}
	venuePK := catalog.ColumnId{Table: venues, Column: 0}

	join := dsql.JoinTable(
		dsql.PhysicalTable(venues),
		dsql.PhysicalTable(concerts),
		dsql.JoinLeft,
		dsql.Eq(dsql.PhysicalColumn(venuePK), dsql.PhysicalColumn(venueIDInConcerts)),
	)

	sel := dsql.Select{
		Table: join,
		Columns: []dsql.Column{
			dsql.JSONAggColumn(dsql.JSONObjectColumn([]dsql.JSONObjectElement{
				{Key: "title", Value: dsql.PhysicalColumn(catalog.ColumnId{Table: concerts, Column: 1})},
			})),
		},
		Predicate: dsql.True,
	}
	out, _ := dsql.ToSQL(db, sel)
	assert.Equal(t,
		`SELECT coalesce(json_agg(json_build_object($1, "concerts"."title")), '[]'::json) FROM "venues" LEFT JOIN "concerts" ON "venues"."id" = "concerts"."venue_id"`,
		out)
}

func TestInsertWithReturning(t *testing.T) {
	t.Parallel()
	db := venuesConcerts()
	venues, _ := db.TableByName("", "venues")
	nameCol := catalog.ColumnId{Table: venues, Column: 1}
	pk := catalog.ColumnId{Table: venues, Column: 0}

	ins := dsql.Insert{
		Table:     venues,
		Columns:   []catalog.ColumnId{nameCol},
		ValuesSeq: [][]dsql.Column{{dsql.ValueColumn(dsql.NewValue("The Fillmore"))}},
		Returning: []dsql.Column{dsql.PhysicalColumn(pk)},
	}
	out, params := dsql.ToSQL(db, ins)
	assert.Equal(t, `INSERT INTO "venues" ("name") VALUES ($1) RETURNING "venues"."id"`, out)
	assert.Equal(t, []any{"The Fillmore"}, params)
}

func TestInsertWithNoColumnsUsesDefaultValues(t *testing.T) {
	t.Parallel()
	db := venuesConcerts()
	venues, _ := db.TableByName("", "venues")

	ins := dsql.Insert{Table: venues}
	out, _ := dsql.ToSQL(db, ins)
	assert.Equal(t, `INSERT INTO "venues" DEFAULT VALUES`, out)
}

type fakeResolver struct {
	rowCounts map[dsql.StepID]int
	values    map[[3]int]any // [step, row, col] -> value
}

func (f *fakeResolver) RowCount(step dsql.StepID) int { return f.rowCounts[step] }
func (f *fakeResolver) ResolveValue(step dsql.StepID, row, col int) any {
	return f.values[[3]int{int(step), row, col}]
}

func TestTemplateInsertElidedOnZeroRows(t *testing.T) {
	t.Parallel()
	db := venuesConcerts()
	concerts, _ := db.TableByName("", "concerts")
	venueIDCol := catalog.ColumnId{Table: concerts, Column: 2}

	tmpl := dsql.TemplateInsert{
		Table:       concerts,
		Columns:     []catalog.ColumnId{venueIDCol},
		RowTemplate: []dsql.ProxyColumn{dsql.TemplateProxyColumn(0, 0)},
		DependsOn:   0,
	}
	resolver := &fakeResolver{rowCounts: map[dsql.StepID]int{0: 0}}
	_, ok := tmpl.Resolve(resolver)
	assert.False(t, ok)
}

func TestTemplateInsertExpandsOneRowPerDependency(t *testing.T) {
	t.Parallel()
	db := venuesConcerts()
	concerts, _ := db.TableByName("", "concerts")
	venueIDCol := catalog.ColumnId{Table: concerts, Column: 2}

	tmpl := dsql.TemplateInsert{
		Table:       concerts,
		Columns:     []catalog.ColumnId{venueIDCol},
		RowTemplate: []dsql.ProxyColumn{dsql.TemplateProxyColumn(0, 0)},
		DependsOn:   0,
	}
	resolver := &fakeResolver{
		rowCounts: map[dsql.StepID]int{0: 2},
		values: map[[3]int]any{
			{0, 0, 0}: int64(1),
			{0, 1, 0}: int64(2),
		},
	}
	ins, ok := tmpl.Resolve(resolver)
	require.True(t, ok)
	out, params := dsql.ToSQL(db, *ins)
	assert.Equal(t, `INSERT INTO "concerts" ("venue_id") VALUES ($1), ($2)`, out)
	assert.Equal(t, []any{int64(1), int64(2)}, params)
}

func TestConstraintClassification(t *testing.T) {
	t.Parallel()

	assert.True(t, dsql.IsUniqueConstraintError(pgErr("23505")))
	assert.True(t, dsql.IsForeignKeyConstraintError(pgErr("23503")))
	assert.True(t, dsql.IsCheckConstraintError(pgErr("23514")))
	assert.True(t, dsql.IsNotNullConstraintError(pgErr("23502")))
	assert.False(t, dsql.IsConstraintError(pgErr("08006"))) // connection failure
	assert.True(t, dsql.IsConstraintError(errors.Join(errors.New("wrapper"), pgErr("23505"))))
}

type pgErr string

func (p pgErr) Error() string   { return "db error: " + string(p) }
func (p pgErr) SQLState() string { return string(p) }
