package catalog_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exo-run/exoquery/catalog"
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

func TestTableByNameAndQualifiedName(t *testing.T) {
	t.Parallel()

	db := venuesConcerts()

	id, ok := db.TableByName("", "concerts")
	require.True(t, ok)
	assert.Equal(t, `"concerts"`, db.Table(id).QualifiedName())
}

func TestQuoteIdentDoublesEmbeddedQuote(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `"a""b"`, catalog.QuoteIdent(`a"b`))
}

func TestPrimaryKeyLookup(t *testing.T) {
	t.Parallel()

	db := venuesConcerts()
	venuesID, _ := db.TableByName("", "venues")
	pk := db.PrimaryKey(venuesID)
	require.Len(t, pk, 1)
	assert.Equal(t, "id", db.Column(pk[0]).Name)
}

func TestForeignKeyResolvesToExistingColumn(t *testing.T) {
	t.Parallel()

	db := venuesConcerts()
	concertsID, _ := db.TableByName("", "concerts")
	venueIDCol, ok := db.ColumnByName(concertsID, "venue_id")
	require.True(t, ok)

	fk := db.Column(venueIDCol).ForeignKey
	require.NotNil(t, fk)
	assert.Equal(t, "id", db.Column(fk.LinkedColumn).Name)
	assert.Equal(t, catalog.ManyToOne, fk.Cardinality)
}

func TestNewDatabasePanicsOnDanglingForeignKey(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() {
		catalog.NewDatabase([]catalog.Table{
			{
				Name: "concerts",
				Columns: []catalog.Column{
					{
						Name: "venue_id",
						Type: catalog.Int32Type(),
						ForeignKey: &catalog.ForeignKey{
							LinkedColumn: catalog.ColumnId{Table: 5, Column: 0},
						},
					},
				},
			},
		})
	})
}

func TestDuplicateTableNamePanics(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() {
		catalog.NewDatabase([]catalog.Table{
			{Name: "venues"},
			{Name: "venues"},
		})
	})
}
