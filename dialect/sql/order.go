package sql

import "github.com/exo-run/exoquery/catalog"

// Ordering is ASC or DESC.
type Ordering int

const (
	Asc Ordering = iota
	Desc
)

func (o Ordering) sql() string {
	if o == Desc {
		return "DESC"
	}
	return "ASC"
}

// OrderByElementKind discriminates OrderByElement's expression.
type OrderByElementKind int

const (
	OrderByColumn OrderByElementKind = iota
	OrderByVectorDistance
)

// VectorDistanceOperandKind discriminates a VectorDistance operand: either
// a physical pgvector column, or a bound literal vector parameter (a
// "nearest to this embedding" query argument).
type VectorDistanceOperandKind int

const (
	VectorOperandColumn VectorDistanceOperandKind = iota
	VectorOperandParam
)

// VectorDistanceOperand is one side of a pgvector distance expression.
type VectorDistanceOperand struct {
	Kind   VectorDistanceOperandKind
	Column catalog.ColumnId
	Param  Value
}

func VectorColumnOperand(id catalog.ColumnId) VectorDistanceOperand {
	return VectorDistanceOperand{Kind: VectorOperandColumn, Column: id}
}

func VectorParamOperand(v Value) VectorDistanceOperand {
	return VectorDistanceOperand{Kind: VectorOperandParam, Param: v}
}

func (o VectorDistanceOperand) build(db *catalog.Database, b *Builder, tableAlias string) {
	switch o.Kind {
	case VectorOperandColumn:
		col := db.Column(o.Column)
		if tableAlias != "" {
			b.PushColumnWithTableAlias(col.Name, tableAlias)
			return
		}
		PhysicalColumn(o.Column).Build(db, b)
	case VectorOperandParam:
		b.PushValue(o.Param)
	}
}

// vectorDistanceOperator maps a catalog.VectorDistanceFunction to its
// pgvector operator (postgres-core-builder's vector type provider).
func vectorDistanceOperator(fn catalog.VectorDistanceFunction) string {
	switch fn {
	case catalog.VectorDistanceInner:
		return "<#>"
	case catalog.VectorDistanceCosine:
		return "<=>"
	default:
		return "<->"
	}
}

// OrderByElement is one ORDER BY term: either a plain column or a pgvector
// distance expression, each with its own direction and an optional
// table-alias override used when the term belongs to an outer query
// referencing a sub-selected table by alias.
type OrderByElement struct {
	Kind OrderByElementKind

	// Column applies to OrderByColumn.
	Column     catalog.ColumnId
	TableAlias string

	// VectorLeft/VectorRight/VectorFunction apply to OrderByVectorDistance.
	VectorLeft     VectorDistanceOperand
	VectorRight    VectorDistanceOperand
	VectorFunction catalog.VectorDistanceFunction

	Direction Ordering
}

func OrderByColumnElement(id catalog.ColumnId, dir Ordering, tableAlias string) OrderByElement {
	return OrderByElement{Kind: OrderByColumn, Column: id, Direction: dir, TableAlias: tableAlias}
}

func OrderByVectorDistanceElement(left, right VectorDistanceOperand, fn catalog.VectorDistanceFunction, dir Ordering, tableAlias string) OrderByElement {
	return OrderByElement{
		Kind: OrderByVectorDistance, VectorLeft: left, VectorRight: right, VectorFunction: fn,
		Direction: dir, TableAlias: tableAlias,
	}
}

func (e OrderByElement) Build(db *catalog.Database, b *Builder) {
	switch e.Kind {
	case OrderByColumn:
		if e.TableAlias != "" {
			col := db.Column(e.Column)
			b.PushColumnWithTableAlias(col.Name, e.TableAlias)
		} else {
			PhysicalColumn(e.Column).Build(db, b)
		}
	case OrderByVectorDistance:
		e.VectorLeft.build(db, b, e.TableAlias)
		b.PushSpace().PushStr(vectorDistanceOperator(e.VectorFunction)).PushSpace()
		e.VectorRight.build(db, b, e.TableAlias)
	}
	b.PushSpace().PushStr(e.Direction.sql())
}

// OrderBy is an ordered, non-empty list of OrderByElement.
type OrderBy struct {
	Elements []OrderByElement
}

func (o OrderBy) Build(db *catalog.Database, b *Builder) {
	b.PushStr("ORDER BY ")
	PushElems(db, b, o.Elements, ", ")
}

// GroupBy is a plain column list, used by aggregate query resolution
// (spec.md's aggregate field kind).
type GroupBy struct {
	Columns []Column
}

func (g GroupBy) Build(db *catalog.Database, b *Builder) {
	b.PushStr("GROUP BY ")
	PushElems(db, b, g.Columns, ", ")
}
