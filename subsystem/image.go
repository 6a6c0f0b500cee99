// Package subsystem implements spec.md §4.8's loader: deserializing a
// SerializableSystem binary blob into one or more running subsystems,
// composed behind a single SystemRouter.
//
// Grounded in original_source/crates/resolver/src/system_loader.rs (the
// subsystem-id -> loader lookup, the init(bytes) contract, the single
// composed router) and, for the binary codec itself, the teacher's own
// use of msgpack elsewhere in its serialization layer.
package subsystem

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/exo-run/exoquery/access"
	"github.com/exo-run/exoquery/catalog"
)

// SerializableSystem is spec.md §6's persisted system image: a vector of
// per-subsystem opaque byte blobs plus interception trees. The
// interception trees (spec.md's "before/after apply a cross-cutting
// aspect") describe the deno/wasm user-code interceptor chain that §1
// treats as an opaque external collaborator; we carry the field through
// so a loaded image round-trips, but nothing in this repository's scope
// interprets it.
type SerializableSystem struct {
	Subsystems               []SerializedSubsystem `msgpack:"subsystems"`
	InterceptionTreeQuery    []byte                `msgpack:"interception_tree_query"`
	InterceptionTreeMutation []byte                `msgpack:"interception_tree_mutation"`
}

// SerializedSubsystem is one opaque per-subsystem payload, matched against
// a registered loader by id (spec.md §6: "loader matches on subsystem id
// string (postgres, deno, wasm, introspection)").
type SerializedSubsystem struct {
	ID    string `msgpack:"id"`
	Bytes []byte `msgpack:"bytes"`
}

// PostgresSubsystemImage is the "postgres" subsystem's own payload shape:
// the catalog this runtime's C1-C9 components operate over, plus the
// per-entity access rules and the opt-in unique/aggregate query
// registrations that would otherwise require a schema DSL compiler (out
// of scope per spec.md §1) to produce.
type PostgresSubsystemImage struct {
	Tables []catalog.Table `msgpack:"tables"`

	// Entities registers one EntityConfig per table the GraphQL schema
	// exposes as pk/collection/create/update/delete fields (resolver.
	// Schema.RegisterEntity). A table present in Tables but absent here
	// is part of the catalog (joinable, insertable by a nested mutation)
	// but has no standalone top-level fields of its own.
	Entities []EntityConfig `msgpack:"entities"`

	UniqueQueries    []UniqueQueryConfig    `msgpack:"unique_queries"`
	AggregateQueries []AggregateQueryConfig `msgpack:"aggregate_queries"`
}

// EntityConfig names one table (by its catalog name) and its four
// per-operation access rules, a nil rule meaning "always allowed" per
// resolver.EntityAccess's own doc comment.
type EntityConfig struct {
	Table  string             `msgpack:"table"`
	Read   *access.Expression `msgpack:"read,omitempty"`
	Create *access.Expression `msgpack:"create,omitempty"`
	Update *access.Expression `msgpack:"update,omitempty"`
	Delete *access.Expression `msgpack:"delete,omitempty"`
}

// UniqueQueryConfig mirrors resolver.Schema.RegisterUniqueQuery's
// arguments in a serializable form: the column is named, not indexed,
// since a TableId/ColumnId pair is only stable within one decoded
// Database.
type UniqueQueryConfig struct {
	FieldName string             `msgpack:"field_name"`
	Table     string             `msgpack:"table"`
	Column    string             `msgpack:"column"`
	Read      *access.Expression `msgpack:"read,omitempty"`
}

// AggregateQueryConfig mirrors RegisterAggregateQuery.
type AggregateQueryConfig struct {
	FieldName string             `msgpack:"field_name"`
	Table     string             `msgpack:"table"`
	Read      *access.Expression `msgpack:"read,omitempty"`
}

// DecodeSystem unmarshals the top-level SerializableSystem envelope.
func DecodeSystem(blob []byte) (*SerializableSystem, error) {
	var sys SerializableSystem
	if err := msgpack.Unmarshal(blob, &sys); err != nil {
		return nil, fmt.Errorf("subsystem: decoding SerializableSystem: %w", err)
	}
	return &sys, nil
}

// DecodePostgresImage unmarshals one "postgres"-id subsystem's payload.
func DecodePostgresImage(bytes []byte) (*PostgresSubsystemImage, error) {
	var img PostgresSubsystemImage
	if err := msgpack.Unmarshal(bytes, &img); err != nil {
		return nil, fmt.Errorf("subsystem: decoding postgres subsystem image: %w", err)
	}
	return &img, nil
}
