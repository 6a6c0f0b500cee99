// Package resolver implements spec.md §4.7's GraphQL resolver glue (C9):
// given a parsed GraphQL document and a schema registry mapping field
// names to tables and access rules, it builds the abstract.Select or
// mutation AbstractInsert/Update/Delete the query/select and mutation
// planners (packages plan) expect, folds in access residue (package
// access), and executes the result through a txscript.Holder.
//
// Grounded in original_source's resolver.rs dispatch (pk/collection/
// unique/aggregate query maps, mutation map) and, for the dispatch-by-
// name-over-a-registry shape itself, the akriventsev-potter GraphQL
// transport adapter's typeName.fieldName resolver registry.
package resolver

import (
	"strings"

	"github.com/go-openapi/inflect"

	"github.com/exo-run/exoquery/abstract"
	"github.com/exo-run/exoquery/catalog"
)

// pluralize/singularize centralize the one naming convention this package
// relies on throughout (spec.md §8 scenarios A/B/F): a to-one relation
// field is named after the singular form of its target table, a
// collection query field and a to-many relation field are named after the
// table as-is (schemas are expected to name plural-shaped tables already,
// e.g. "concerts", "venues"), and a pk-query field is the singular form of
// the table it selects from (e.g. "concert" for table "concerts").
func pluralize(word string) string   { return inflect.Pluralize(word) }
func singularize(word string) string { return inflect.Singularize(word) }

// relationByName resolves a GraphQL field name to the relation it denotes
// from table, trying a to-one (many-to-one FK column) match first, then a
// to-many (incoming FK) match, mirroring the priority used when walking a
// NestedField in buildSelection and a nested where/orderBy argument in
// buildWhere/buildOrderBy. ok is false when name matches neither; every
// caller has already tried name as a scalar column first and reports an
// unknown field in that case.
func relationByName(db *catalog.Database, table catalog.TableId, name string) (target catalog.TableId, link abstract.RelationLink, ok bool) {
	t := db.Table(table)
	for i, col := range t.Columns {
		if col.ForeignKey == nil || col.ForeignKey.Cardinality != catalog.ManyToOne {
			continue
		}
		targetTable := db.Table(col.ForeignKey.LinkedColumn.Table)
		if singularize(targetTable.Name) != name {
			continue
		}
		return col.ForeignKey.LinkedColumn.Table, abstract.RelationLink{
			SelfColumn:   catalog.ColumnId{Table: table, Column: i},
			LinkedColumn: col.ForeignKey.LinkedColumn,
			Cardinality:  catalog.ManyToOne,
		}, true
	}

	for _, pk := range db.PrimaryKey(table) {
		for _, child := range db.IncomingForeignKeys(pk) {
			childTable := db.Table(child.Table)
			if childTable.Name != name && pluralize(childTable.Name) != name {
				continue
			}
			return child.Table, abstract.RelationLink{
				SelfColumn:   pk,
				LinkedColumn: child,
				Cardinality:  catalog.OneToMany,
			}, true
		}
	}

	return catalog.TableId(0), abstract.RelationLink{}, false
}

// pascalCase upper-cases the first rune, used nowhere in wire-level
// naming (GraphQL field names stay lowerCamel) but kept for the
// mutation-map convention below: createVenue/updateVenue/deleteVenue.
func pascalCase(word string) string {
	if word == "" {
		return word
	}
	return strings.ToUpper(word[:1]) + word[1:]
}
