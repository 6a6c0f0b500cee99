// Package abstract is the catalog-shaped query algebra (spec.md §C3/§4): the
// same predicate/select/mutation shapes as package dialect/sql, but
// expressed over ColumnPath instead of dialect/sql.Column, so that callers
// (the access solver, the GraphQL resolver) never have to reason about
// joins, subselects, or which side of a relation a column lives on. Package
// plan is solely responsible for lowering a value of this package into the
// concrete dialect/sql tree that actually gets sent to Postgres.
package abstract
