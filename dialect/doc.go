// Package dialect names the single SQL dialect this engine targets.
//
// Unlike the generator this repository started from, the runtime query
// engine spec.md describes is PostgreSQL-only: the abstract algebra
// (package abstract) and the planners (package plan) already bake in
// Postgres-specific behavior (JSON aggregation via json_agg/json_build_object,
// pgvector distance operators, ILIKE), so there is no dialect-switching
// interface to preserve. This package exists only to give the Postgres
// identity a name other packages can import without depending directly on
// jackc/pgx/v5.
package dialect

// Postgres is the only supported dialect identity.
const Postgres = "postgres"
