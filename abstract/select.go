package abstract

import "github.com/exo-run/exoquery/catalog"

// SelectionKind discriminates Selection.
type SelectionKind int

const (
	// SelectionJSON produces a GraphQL-shaped JSON value: an object, or a
	// JSON array aggregate of objects for a collection field.
	SelectionJSON SelectionKind = iota
	// SelectionColumns produces a raw column tuple, used when this select
	// is read as a subquery's row source (e.g. a primary-key list for an
	// IN predicate) rather than as GraphQL output.
	SelectionColumns
)

// JSONSelectionKind discriminates the JSON half of Selection.
type JSONSelectionKind int

const (
	JSONObject JSONSelectionKind = iota
	JSONAgg
)

// SelectionField is one key of a JSONObject selection: either a scalar
// column value, or a nested select for a related type (to-one nests a
// JSONObject select, to-many nests a JSONAgg select). Relation is the
// single foreign-key hop connecting the enclosing table to Nested.Table;
// it is what lets package plan decide whether to fold the nested field
// into the enclosing join (to-one) or lower it to a correlated subquery
// (to-many), without re-deriving the hop from the catalog at plan time.
type SelectionField struct {
	Alias    string
	Scalar   *ColumnPath
	Nested   *Select
	Relation *RelationLink
}

func ScalarField(alias string, path ColumnPath) SelectionField {
	return SelectionField{Alias: alias, Scalar: &path}
}

// NestedField builds a selection field for a related type, reached from
// the enclosing table via relation.
func NestedField(alias string, nested Select, relation RelationLink) SelectionField {
	return SelectionField{Alias: alias, Nested: &nested, Relation: &relation}
}

// Selection is either GraphQL-shaped JSON or a raw column tuple.
type Selection struct {
	Kind SelectionKind

	// Fields applies to SelectionJSON/JSONObject.
	Fields []SelectionField
	// JSONKind applies to SelectionJSON.
	JSONKind JSONSelectionKind
	// Agg applies to SelectionJSON/JSONAgg: the per-row select being
	// aggregated, whose own Selection is itself a JSONObject.
	Agg *Select

	// Columns applies to SelectionColumns.
	Columns []catalog.ColumnId
}

func JSONObjectSelection(fields ...SelectionField) Selection {
	return Selection{Kind: SelectionJSON, JSONKind: JSONObject, Fields: fields}
}

func JSONAggSelection(row Select) Selection {
	return Selection{Kind: SelectionJSON, JSONKind: JSONAgg, Agg: &row}
}

func ColumnsSelection(columns ...catalog.ColumnId) Selection {
	return Selection{Kind: SelectionColumns, Columns: columns}
}

// Select is the catalog-graph-aware counterpart of dialect/sql.Select:
// a single GraphQL field's (or subquery's) selection, predicate, ordering,
// and paging, all still expressed over ColumnPath rather than a resolved
// join tree. Package plan's select planner (C4) is what turns one of these
// into the concrete dialect/sql.Select (or Selects, for the subquery
// strategies).
type Select struct {
	Table     catalog.TableId
	Selection Selection
	Predicate Predicate
	OrderBy   *OrderBy
	Limit     *int64
	Offset    *int64

	// TopLevel marks the outermost select of a GraphQL operation, same
	// role as dialect/sql.Select.TopLevelSelection.
	TopLevel bool
}
