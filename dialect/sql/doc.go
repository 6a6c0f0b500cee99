// Package sql is the concrete SQL expression builder (spec.md §C2): the
// small set of Postgres-shaped AST nodes — Column, Table, ConcretePredicate,
// OrderBy, Select/Insert/Update/Delete — and the Builder that renders them
// to a single SQL string plus a positional ($1, $2, ...) parameter list.
//
// Every node type implements ExpressionBuilder. Nothing here knows about
// GraphQL, row-level access, or the catalog's foreign-key graph beyond what
// it takes to quote an identifier and resolve a catalog.ColumnId to a
// table/column name pair; that belongs to package abstract (the algebra that
// lowers into these nodes) and package plan (the planner that decides which
// nodes to emit).
package sql
