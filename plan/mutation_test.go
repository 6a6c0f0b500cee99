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

// fakeResolver is the test-local dsql.ValueResolver fake: each entry of
// rows is one step's captured output rows, one []any per row.
type fakeResolver struct {
	rows map[dsql.StepID][][]any
}

func (f fakeResolver) RowCount(step dsql.StepID) int { return len(f.rows[step]) }

func (f fakeResolver) ResolveValue(step dsql.StepID, row, col int) any {
	return f.rows[step][row][col]
}

func TestPlanInsertPlainRootRow(t *testing.T) {
	t.Parallel()
	db, venues, _ := venuesConcertsDB(t)

	ins := abstract.AbstractInsert{
		Table: venues,
		ColumnValues: []abstract.ColumnValue{
			{Column: col(venues, 1), Value: abstract.ParamExpr(dsql.NewValue("Fillmore"))},
		},
		Selection: abstract.JSONObjectSelection(
			abstract.ScalarField("name", abstract.LeafColumnPath(col(venues, 1))),
		),
	}

	script, err := plan.PlanInsert(db, ins)
	require.NoError(t, err)
	require.Len(t, script.Steps, 1)
	require.NotNil(t, script.Steps[0].Insert)

	sql, params := dsql.ToSQL(db, *script.Steps[0].Insert)
	assert.Contains(t, sql, `INSERT INTO "venues"`)
	assert.Contains(t, sql, `RETURNING`)
	assert.Equal(t, []any{"Fillmore"}, params)

	require.NotNil(t, script.TrailingSelect)
	trailingSel, err := script.TrailingSelect([]any{1})
	require.NoError(t, err)
	trailingSQL, trailingParams := dsql.ToSQL(db, *trailingSel)
	assert.Contains(t, trailingSQL, `= ANY(`)
	assert.Equal(t, []any{[]any{1}}, trailingParams)
}

// TestPlanInsertNestedInsertTemplatesParentFK covers spec.md §8 Scenario D:
// creating a venue together with its concerts in one mutation, where each
// concert row's venue_id isn't known until the venue insert returns its id.
func TestPlanInsertNestedInsertTemplatesParentFK(t *testing.T) {
	t.Parallel()
	db, venues, concerts := venuesConcertsDB(t)

	toVenue := abstract.RelationLink{
		SelfColumn:   col(venues, 0),
		LinkedColumn: col(concerts, 2),
		Cardinality:  catalog.OneToMany,
	}

	ins := abstract.AbstractInsert{
		Table: venues,
		ColumnValues: []abstract.ColumnValue{
			{Column: col(venues, 1), Value: abstract.ParamExpr(dsql.NewValue("Fillmore"))},
		},
		NestedInserts: []abstract.NestedInsert{
			{
				Relation: toVenue,
				Insert: abstract.AbstractInsert{
					Table: concerts,
					ColumnValues: []abstract.ColumnValue{
						{Column: col(concerts, 1), Value: abstract.ParamExpr(dsql.NewValue("Residency night 1"))},
					},
				},
			},
			{
				Relation: toVenue,
				Insert: abstract.AbstractInsert{
					Table: concerts,
					ColumnValues: []abstract.ColumnValue{
						{Column: col(concerts, 1), Value: abstract.ParamExpr(dsql.NewValue("Residency night 2"))},
					},
				},
			},
		},
		Selection: abstract.JSONObjectSelection(
			abstract.ScalarField("name", abstract.LeafColumnPath(col(venues, 1))),
		),
	}

	script, err := plan.PlanInsert(db, ins)
	require.NoError(t, err)
	require.Len(t, script.Steps, 3)

	require.NotNil(t, script.Steps[0].Insert)
	venueSQL, venueParams := dsql.ToSQL(db, *script.Steps[0].Insert)
	assert.Contains(t, venueSQL, `INSERT INTO "venues"`)
	assert.Equal(t, []any{"Fillmore"}, venueParams)

	require.NotNil(t, script.Steps[1].TemplateInsert)
	require.NotNil(t, script.Steps[2].TemplateInsert)
	assert.Equal(t, dsql.StepID(0), script.Steps[1].TemplateInsert.DependsOn)
	assert.Equal(t, dsql.StepID(0), script.Steps[2].TemplateInsert.DependsOn)

	resolver := fakeResolver{rows: map[dsql.StepID][][]any{0: {{int32(7)}}}}
	resolved, ok := script.Steps[1].TemplateInsert.Resolve(resolver)
	require.True(t, ok)
	concertSQL, concertParams := dsql.ToSQL(db, *resolved)
	assert.Contains(t, concertSQL, `INSERT INTO "concerts"`)
	assert.Contains(t, concertParams, "Residency night 1")
	assert.Contains(t, concertParams, int32(7))
}

func TestPlanInsertNestedInsertElidedWhenParentProducesNoRows(t *testing.T) {
	t.Parallel()
	db, venues, concerts := venuesConcertsDB(t)

	toVenue := abstract.RelationLink{SelfColumn: col(venues, 0), LinkedColumn: col(concerts, 2), Cardinality: catalog.OneToMany}
	ins := abstract.AbstractInsert{
		Table: venues,
		ColumnValues: []abstract.ColumnValue{
			{Column: col(venues, 1), Value: abstract.ParamExpr(dsql.NewValue("Empty Hall"))},
		},
		NestedInserts: []abstract.NestedInsert{
			{Relation: toVenue, Insert: abstract.AbstractInsert{
				Table: concerts,
				ColumnValues: []abstract.ColumnValue{
					{Column: col(concerts, 1), Value: abstract.ParamExpr(dsql.NewValue("Opening night"))},
				},
			}},
		},
	}

	script, err := plan.PlanInsert(db, ins)
	require.NoError(t, err)
	require.Len(t, script.Steps, 2)

	resolver := fakeResolver{rows: map[dsql.StepID][][]any{0: {}}}
	_, ok := script.Steps[1].TemplateInsert.Resolve(resolver)
	assert.False(t, ok)
}

// TestPlanUpdateNestedDeleteGathersParentKeysIntoIN covers updating rows and
// deleting their one-to-many children, where the exact matched parent row
// set is only known once the parent update has executed.
func TestPlanUpdateNestedDeleteGathersParentKeysIntoIN(t *testing.T) {
	t.Parallel()
	db, venues, concerts := venuesConcertsDB(t)

	toConcerts := abstract.RelationLink{SelfColumn: col(venues, 0), LinkedColumn: col(concerts, 2), Cardinality: catalog.OneToMany}

	upd := abstract.AbstractUpdate{
		Table:     venues,
		Predicate: abstract.Eq(abstract.LeafColumnPath(col(venues, 1)), abstract.ParamColumnPath(dsql.NewValue("Fillmore"))),
		ColumnValues: []abstract.ColumnValue{
			{Column: col(venues, 1), Value: abstract.ParamExpr(dsql.NewValue("The Fillmore"))},
		},
		NestedDeletes: []abstract.NestedDelete{
			{Relation: toConcerts, Delete: abstract.AbstractDelete{Table: concerts, Predicate: abstract.True}},
		},
	}

	script, err := plan.PlanUpdate(db, upd)
	require.NoError(t, err)
	require.Len(t, script.Steps, 2)

	require.NotNil(t, script.Steps[0].Update)
	updateSQL, updateParams := dsql.ToSQL(db, *script.Steps[0].Update)
	assert.Contains(t, updateSQL, `UPDATE "venues" SET`)
	assert.Equal(t, []any{"The Fillmore", "Fillmore"}, updateParams)

	require.NotNil(t, script.Steps[1].TemplateDelete)
	assert.Equal(t, dsql.StepID(0), script.Steps[1].TemplateDelete.DependsOn)

	resolver := fakeResolver{rows: map[dsql.StepID][][]any{0: {{int32(3)}, {int32(9)}}}}
	resolved, ok := script.Steps[1].TemplateDelete.Resolve(resolver)
	require.True(t, ok)
	deleteSQL, deleteParams := dsql.ToSQL(db, *resolved)
	assert.Contains(t, deleteSQL, `DELETE FROM "concerts"`)
	assert.Contains(t, deleteSQL, `= ANY(`)
	assert.Equal(t, []any{[]any{int32(3), int32(9)}}, deleteParams)
}
