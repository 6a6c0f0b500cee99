package sql

import (
	"github.com/exo-run/exoquery/catalog"
)

// ColumnKind discriminates Column, a closed tagged union mirroring
// exo-sql's column.rs Column enum.
type ColumnKind int

const (
	// ColumnPhysical references a catalog column, optionally under an
	// explicit table alias (set by a caller rendering a sub-select's own
	// clauses; see Builder.WithTableAliasMap for the implicit case).
	ColumnPhysical ColumnKind = iota
	// ColumnStar renders "*", or "table".* when built by TableStarColumn
	// (StarTable names the table).
	ColumnStar
	// ColumnValue renders a bound parameter.
	ColumnValue
	// ColumnJSONObject renders json_build_object($n, <col>, ...): each key
	// is bound as a parameter, not written into the SQL text as a literal.
	ColumnJSONObject
	// ColumnJSONAgg renders coalesce(json_agg(<col>), '[]'::json).
	ColumnJSONAgg
	// ColumnRaw renders literal SQL text verbatim (used internally for
	// constants like "1" a planner needs to splice in; never built from
	// user input).
	ColumnRaw
	// ColumnSubquery renders "(" + a nested Select + ")": a correlated
	// scalar subquery used as a selected value, the shape a one-to-many
	// nested GraphQL field lowers to (package plan) since its JSON
	// aggregate cannot be produced by a FROM-clause join without
	// duplicating the parent row.
	ColumnSubquery
)

// JSONObjectElement is one key/value pair of a ColumnJSONObject.
type JSONObjectElement struct {
	Key   string
	Value Column
}

// Column is the concrete SQL "thing you can select" node.
type Column struct {
	Kind ColumnKind

	// Physical/TableAlias apply to ColumnPhysical and ColumnStar.
	Physical   catalog.ColumnId
	TableAlias string // overrides the builder's alias map when non-empty

	// StarTable applies to ColumnStar; the zero TableId with ok=false
	// means a bare "*".
	StarTable   catalog.TableId
	starHasTbl  bool
	// Value applies to ColumnValue.
	Value Value
	// Object applies to ColumnJSONObject.
	Object []JSONObjectElement
	// Agg applies to ColumnJSONAgg: the column being aggregated, itself
	// usually a ColumnJSONObject.
	Agg *Column
	// Raw applies to ColumnRaw.
	Raw string
	// Subquery applies to ColumnSubquery.
	Subquery *Select
}

// PhysicalColumn builds a ColumnPhysical node.
func PhysicalColumn(id catalog.ColumnId) Column {
	return Column{Kind: ColumnPhysical, Physical: id}
}

// PhysicalColumnAliased builds a ColumnPhysical node rendered under an
// explicit table alias, bypassing the builder's alias map.
func PhysicalColumnAliased(id catalog.ColumnId, alias string) Column {
	return Column{Kind: ColumnPhysical, Physical: id, TableAlias: alias}
}

// StarColumn builds a bare "*".
func StarColumn() Column { return Column{Kind: ColumnStar} }

// TableStarColumn builds a "table".* for the given table.
func TableStarColumn(table catalog.TableId) Column {
	return Column{Kind: ColumnStar, StarTable: table, starHasTbl: true}
}

// ValueColumn builds a bound-parameter column.
func ValueColumn(v Value) Column { return Column{Kind: ColumnValue, Value: v} }

// JSONObjectColumn builds a json_build_object(...) column.
func JSONObjectColumn(elems []JSONObjectElement) Column {
	return Column{Kind: ColumnJSONObject, Object: elems}
}

// JSONAggColumn builds a coalesce(json_agg(...), '[]'::json) column.
func JSONAggColumn(inner Column) Column {
	return Column{Kind: ColumnJSONAgg, Agg: &inner}
}

// RawColumn builds a literal SQL fragment. Internal use only.
func RawColumn(sql string) Column { return Column{Kind: ColumnRaw, Raw: sql} }

// SubqueryColumn builds a correlated scalar subquery column from a fully
// lowered Select. The caller is responsible for correlating sel's
// predicate to the enclosing row (e.g. "child.parent_id =
// parent_alias.id"), typically via PhysicalColumnAliased.
func SubqueryColumn(sel *Select) Column { return Column{Kind: ColumnSubquery, Subquery: sel} }

// IsJSON reports whether c is one of the two JSON-producing kinds, the
// condition select.go's top-level ::text cast keys off of.
func (c Column) IsJSON() bool {
	return c.Kind == ColumnJSONObject || c.Kind == ColumnJSONAgg
}

func (c Column) Build(db *catalog.Database, b *Builder) {
	switch c.Kind {
	case ColumnPhysical:
		col := db.Column(c.Physical)
		if c.TableAlias != "" {
			b.PushColumnWithTableAlias(col.Name, c.TableAlias)
			return
		}
		if alias, ok := b.AliasFor(c.Physical.Table); ok {
			b.PushColumnWithTableAlias(col.Name, alias)
			return
		}
		if b.unqualifiedColumns() {
			b.PushIdent(col.Name)
			return
		}
		table := db.Table(c.Physical.Table)
		b.PushStr(table.QualifiedName()).PushStr(".").PushIdent(col.Name)

	case ColumnStar:
		if c.starHasTbl {
			if alias, ok := b.AliasFor(c.StarTable); ok {
				b.PushIdent(alias).PushStr(".*")
				return
			}
			table := db.Table(c.StarTable)
			b.PushStr(table.QualifiedName()).PushStr(".*")
			return
		}
		b.PushStr("*")

	case ColumnValue:
		b.PushValue(c.Value)

	case ColumnJSONObject:
		b.PushStr("json_build_object(")
		PushIter(b, c.Object, ", ", func(b *Builder, el JSONObjectElement) {
			b.PushValue(NewValue(el.Key))
			b.PushStr(", ")
			el.Value.Build(db, b)
		})
		b.PushStr(")")

	case ColumnJSONAgg:
		b.PushStr("coalesce(json_agg(")
		c.Agg.Build(db, b)
		b.PushStr("), '[]'::json)")

	case ColumnRaw:
		b.PushStr(c.Raw)

	case ColumnSubquery:
		b.PushStr("(")
		c.Subquery.Build(db, b)
		b.PushStr(")")
	}
}

// unqualifiedColumns exposes Builder.unqualified to this file without
// widening the field's visibility.
func (b *Builder) unqualifiedColumns() bool { return b.unqualified }

// StepID identifies a transaction step whose row output a later step's
// template column depends on (txscript.Holder numbers steps in execution
// order). Declared here, not in package txscript, so this package's
// TemplateInsert/TemplateUpdate/TemplateDelete can refer to it without an
// import cycle; txscript is the only producer of StepID values.
type StepID int

// ValueResolver is the narrow slice of a transaction context a template
// operation needs: the row count a prior step produced, and the value at a
// given (row, column) of that step's output. txscript.Holder implements
// this.
type ValueResolver interface {
	ResolveValue(step StepID, row, col int) any
	RowCount(step StepID) int
}

// ProxyColumn is either a concrete value known at plan time, or a
// placeholder resolved against a prior transaction step's output once that
// step has run (insert.rs's ProxyColumn).
type ProxyColumn struct {
	Concrete *Column
	// Template fields apply when Concrete is nil.
	Step     StepID
	ColIndex int
}

// ConcreteProxyColumn wraps a value already known at plan time.
func ConcreteProxyColumn(c Column) ProxyColumn { return ProxyColumn{Concrete: &c} }

// TemplateProxyColumn defers to a prior step's row output.
func TemplateProxyColumn(step StepID, colIndex int) ProxyColumn {
	return ProxyColumn{Step: step, ColIndex: colIndex}
}

func (p ProxyColumn) resolve(row int, resolver ValueResolver) Column {
	if p.Concrete != nil {
		return *p.Concrete
	}
	return ValueColumn(NewValue(resolver.ResolveValue(p.Step, row, p.ColIndex)))
}
