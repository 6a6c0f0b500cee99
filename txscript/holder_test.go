package txscript_test

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exo-run/exoquery/abstract"
	"github.com/exo-run/exoquery/catalog"
	dsql "github.com/exo-run/exoquery/dialect/sql"
	"github.com/exo-run/exoquery/plan"
	"github.com/exo-run/exoquery/txscript"
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

// TestHolderExecutePlainInsertThenTrailingSelect covers the common case: a
// single insert, no nested writes, followed by the select-by-primary-key
// read-back.
func TestHolderExecutePlainInsertThenTrailingSelect(t *testing.T) {
	db, venues, _ := venuesConcertsDB(t)

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "venues"`).
		WithArgs("Fillmore").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectQuery(`= ANY`).
		WillReturnRows(sqlmock.NewRows([]string{"json"}).AddRow(`{"name":"Fillmore"}`))
	mock.ExpectCommit()

	ctx := context.Background()
	holder, err := txscript.Begin(ctx, sqlDB, db)
	require.NoError(t, err)

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

	rows, err := holder.Execute(ctx, script)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, `{"name":"Fillmore"}`, rows[0][0])

	require.NoError(t, holder.Finalize(true))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestHolderExecuteNestedInsertResolvesTemplateFromParentRow covers spec.md
// §8 Scenario D: the child insert's foreign key is only known once the
// parent venue insert returns its id.
func TestHolderExecuteNestedInsertResolvesTemplateFromParentRow(t *testing.T) {
	db, venues, concerts := venuesConcertsDB(t)

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "venues"`).
		WithArgs("Fillmore").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectQuery(`INSERT INTO "concerts"`).
		WithArgs("Residency night 1", int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(5)))
	mock.ExpectQuery(`= ANY`).
		WillReturnRows(sqlmock.NewRows([]string{"json"}).AddRow(`{"name":"Fillmore"}`))
	mock.ExpectCommit()

	toVenue := abstract.RelationLink{SelfColumn: col(venues, 0), LinkedColumn: col(concerts, 2), Cardinality: catalog.OneToMany}
	ins := abstract.AbstractInsert{
		Table: venues,
		ColumnValues: []abstract.ColumnValue{
			{Column: col(venues, 1), Value: abstract.ParamExpr(dsql.NewValue("Fillmore"))},
		},
		NestedInserts: []abstract.NestedInsert{
			{Relation: toVenue, Insert: abstract.AbstractInsert{
				Table: concerts,
				ColumnValues: []abstract.ColumnValue{
					{Column: col(concerts, 1), Value: abstract.ParamExpr(dsql.NewValue("Residency night 1"))},
				},
			}},
		},
		Selection: abstract.JSONObjectSelection(
			abstract.ScalarField("name", abstract.LeafColumnPath(col(venues, 1))),
		),
	}
	script, err := plan.PlanInsert(db, ins)
	require.NoError(t, err)

	ctx := context.Background()
	holder, err := txscript.Begin(ctx, sqlDB, db)
	require.NoError(t, err)

	rows, err := holder.Execute(ctx, script)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	require.NoError(t, holder.Finalize(true))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestHolderFinalizeTwiceErrors covers the "finalize after finalize is a
// bug" rule (spec.md §4.4).
func TestHolderFinalizeTwiceErrors(t *testing.T) {
	db, venues, _ := venuesConcertsDB(t)
	_ = venues

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	ctx := context.Background()
	holder, err := txscript.Begin(ctx, sqlDB, db)
	require.NoError(t, err)

	require.NoError(t, holder.Finalize(false))
	err = holder.Finalize(true)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
