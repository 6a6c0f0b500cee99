package plan_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exo-run/exoquery/abstract"
	"github.com/exo-run/exoquery/catalog"
	dsql "github.com/exo-run/exoquery/dialect/sql"
	"github.com/exo-run/exoquery/plan"
)

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

func col(table catalog.TableId, n int) catalog.ColumnId { return catalog.ColumnId{Table: table, Column: n} }

func TestPlanSelectPlainJoinScalarFields(t *testing.T) {
	t.Parallel()
	db, _, concerts := venuesConcertsDB(t)

	sel := abstract.Select{
		Table: concerts,
		Selection: abstract.JSONObjectSelection(
			abstract.ScalarField("id", abstract.LeafColumnPath(col(concerts, 0))),
			abstract.ScalarField("title", abstract.LeafColumnPath(col(concerts, 1))),
		),
		Predicate: abstract.True,
		TopLevel:  true,
	}

	out, err := plan.PlanSelect(db, sel, false)
	require.NoError(t, err)

	sql, params := dsql.ToSQL(db, *out)
	assert.Contains(t, sql, `json_build_object(`)
	assert.Contains(t, sql, `"concerts"."id"`)
	assert.Contains(t, sql, `"concerts"."title"`)
	assert.Contains(t, sql, `::text`) // top-level JSON gets a text cast
	assert.Empty(t, params)
}

func TestPlanSelectFoldsToOneNestedFieldIntoJoin(t *testing.T) {
	t.Parallel()
	db, venues, concerts := venuesConcertsDB(t)

	toVenue := abstract.RelationLink{
		SelfColumn:   col(concerts, 2),
		LinkedColumn: col(venues, 0),
		Cardinality:  catalog.ManyToOne,
	}

	sel := abstract.Select{
		Table: concerts,
		Selection: abstract.JSONObjectSelection(
			abstract.ScalarField("title", abstract.LeafColumnPath(col(concerts, 1))),
			abstract.NestedField("venue", abstract.Select{
				Table: venues,
				Selection: abstract.JSONObjectSelection(
					abstract.ScalarField("name", abstract.LeafColumnPath(col(venues, 1))),
				),
			}, toVenue),
		),
		Predicate: abstract.True,
		TopLevel:  true,
	}

	out, err := plan.PlanSelect(db, sel, false)
	require.NoError(t, err)

	sql, _ := dsql.ToSQL(db, *out)
	assert.Contains(t, sql, `LEFT JOIN "venues"`)
	assert.Contains(t, sql, `"concerts"."venue_id" = "venues"."id"`)
	assert.Contains(t, sql, `"venues"."name"`)
	assert.NotContains(t, sql, "json_agg") // to-one never aggregates
}

func TestPlanSelectLowersToManyFieldAsCorrelatedSubquery(t *testing.T) {
	t.Parallel()
	db, venues, concerts := venuesConcertsDB(t)

	toConcerts := abstract.RelationLink{
		SelfColumn:   col(venues, 0),
		LinkedColumn: col(concerts, 2),
		Cardinality:  catalog.OneToMany,
	}

	sel := abstract.Select{
		Table: venues,
		Selection: abstract.JSONObjectSelection(
			abstract.ScalarField("name", abstract.LeafColumnPath(col(venues, 1))),
			abstract.NestedField("concerts", abstract.Select{
				Table:     concerts,
				Selection: abstract.JSONAggSelection(abstract.Select{Table: concerts, Selection: abstract.JSONObjectSelection(abstract.ScalarField("title", abstract.LeafColumnPath(col(concerts, 1))))}),
				Predicate: abstract.True,
			}, toConcerts),
		),
		Predicate: abstract.True,
		TopLevel:  true,
	}

	out, err := plan.PlanSelect(db, sel, false)
	require.NoError(t, err)

	sql, _ := dsql.ToSQL(db, *out)
	assert.Contains(t, sql, "coalesce(json_agg(")
	assert.Contains(t, sql, `"concerts"."venue_id" = "venues"."id"`)
	// the to-many field must not widen this select's own FROM join
	assert.NotContains(t, sql, `LEFT JOIN "concerts"`)
}

func TestPlanSelectRejectsOrderByAcrossOneToMany(t *testing.T) {
	t.Parallel()
	db, venues, concerts := venuesConcertsDB(t)

	toConcerts := abstract.RelationLink{
		SelfColumn:   col(venues, 0),
		LinkedColumn: col(concerts, 2),
		Cardinality:  catalog.OneToMany,
	}

	sel := abstract.Select{
		Table:     venues,
		Selection: abstract.JSONObjectSelection(abstract.ScalarField("name", abstract.LeafColumnPath(col(venues, 1)))),
		Predicate: abstract.True,
		OrderBy: &abstract.OrderBy{Elements: []abstract.OrderByElement{
			abstract.OrderByColumnElement(
				abstract.NewPhysicalColumnPath(abstract.RelationHop(toConcerts), abstract.LeafLink(col(concerts, 1))),
				abstract.Asc,
			),
		}},
	}

	_, err := plan.PlanSelect(db, sel, false)
	assert.Error(t, err)
}

func TestPlanSelectPagingWithSafePredicateRestrictsKeysFirst(t *testing.T) {
	t.Parallel()
	db, venues, _ := venuesConcertsDB(t)

	limit := int64(10)
	sel := abstract.Select{
		Table:     venues,
		Selection: abstract.JSONObjectSelection(abstract.ScalarField("name", abstract.LeafColumnPath(col(venues, 1)))),
		Predicate: abstract.Eq(abstract.LeafColumnPath(col(venues, 1)), abstract.ParamColumnPath(dsql.NewValue("Fillmore"))),
		Limit:     &limit,
		TopLevel:  true,
	}

	out, err := plan.PlanSelect(db, sel, false)
	require.NoError(t, err)

	sql, params := dsql.ToSQL(db, *out)
	assert.Contains(t, sql, `= ANY(`)
	assert.Contains(t, sql, "LIMIT 10")
	assert.Equal(t, []any{"Fillmore"}, params)
}

func TestPlanSelectOneToManyPredicateUsesSubqueryWithIN(t *testing.T) {
	t.Parallel()
	db, venues, concerts := venuesConcertsDB(t)

	toConcerts := abstract.RelationLink{
		SelfColumn:   col(venues, 0),
		LinkedColumn: col(concerts, 2),
		Cardinality:  catalog.OneToMany,
	}

	sel := abstract.Select{
		Table:     venues,
		Selection: abstract.JSONObjectSelection(abstract.ScalarField("name", abstract.LeafColumnPath(col(venues, 1)))),
		Predicate: abstract.Eq(
			abstract.NewPhysicalColumnPath(abstract.RelationHop(toConcerts), abstract.LeafLink(col(concerts, 1))),
			abstract.ParamColumnPath(dsql.NewValue("Residency")),
		),
		TopLevel: true,
	}

	out, err := plan.PlanSelect(db, sel, false)
	require.NoError(t, err)

	sql, params := dsql.ToSQL(db, *out)
	assert.Contains(t, sql, `= ANY(`)
	assert.Contains(t, sql, `LEFT JOIN "concerts"`) // the key-restricting inner join
	assert.Equal(t, []any{"Residency"}, params)
}
