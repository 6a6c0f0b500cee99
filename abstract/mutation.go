package abstract

import (
	"github.com/exo-run/exoquery/catalog"
	dsql "github.com/exo-run/exoquery/dialect/sql"
)

// AbstractExprKind discriminates AbstractExpr.
type AbstractExprKind int

const (
	// ExprParam is a bound literal, typically a GraphQL mutation argument
	// already coerced to its target column's type.
	ExprParam AbstractExprKind = iota
	// ExprColumn defers to a column a prior transaction step returned —
	// the only way a nested insert's foreign key can be set to a parent
	// row's primary key before that row exists (spec.md §4.3).
	ExprColumn
	// ExprRaw is a literal scalar SQL fragment, e.g. a catalog column
	// default expression carried through verbatim (now(), gen_random_uuid()).
	ExprRaw
)

// AbstractExpr is the closed union every column value in a mutation's
// input can be (spec.md §4.3's "Parameter passing").
type AbstractExpr struct {
	Kind AbstractExprKind

	Param     dsql.Value
	ColumnRef catalog.ColumnId
	Raw       string
}

func ParamExpr(v dsql.Value) AbstractExpr         { return AbstractExpr{Kind: ExprParam, Param: v} }
func ColumnExpr(id catalog.ColumnId) AbstractExpr { return AbstractExpr{Kind: ExprColumn, ColumnRef: id} }
func RawExpr(sql string) AbstractExpr             { return AbstractExpr{Kind: ExprRaw, Raw: sql} }

// ColumnValue is one column assignment of an insert or update.
type ColumnValue struct {
	Column catalog.ColumnId
	Value  AbstractExpr
}

// AbstractInsert is one row to insert, plus any one-to-many children to
// insert alongside it once its primary key is known (spec.md's
// AbstractInsert/nested_inserts).
type AbstractInsert struct {
	Table         catalog.TableId
	ColumnValues  []ColumnValue
	NestedInserts []NestedInsert
	// Selection is what the mutation's trailing read-back select
	// projects for this row (package plan's select planner, re-run by
	// primary key after the write commits).
	Selection Selection
}

// NestedInsert is a one-to-many child insert: relation.LinkedColumn (the
// child's foreign key column) is set from the parent row's
// relation.SelfColumn once the parent row exists — a ColumnExpr the
// mutation planner (package plan) fills in automatically, so the caller
// never has to reference relation.SelfColumn explicitly in Insert's own
// ColumnValues.
type NestedInsert struct {
	Relation RelationLink
	Insert   AbstractInsert
}

// AbstractUpdate updates every row of Table matching Predicate, optionally
// writing one-to-many children of the matched rows (spec.md's
// AbstractUpdate). Predicate is assumed to already have any access-control
// residue folded in by the caller (package access, spec.md §4.5) — this
// package only lowers what it is given.
type AbstractUpdate struct {
	Table         catalog.TableId
	Predicate     Predicate
	ColumnValues  []ColumnValue
	NestedInserts []NestedInsert
	NestedUpdates []NestedUpdate
	NestedDeletes []NestedDelete
	Selection     Selection
}

// NestedUpdate is a one-to-many child update scoped to the rows the
// parent update matched. Since an update's predicate can match more than
// one row, which child rows this touches isn't known until the parent
// update runs — relation is what lets the mutation planner build a
// TemplateUpdate keyed off the parent step's returned primary keys,
// mirroring NestedInsert.
type NestedUpdate struct {
	Relation RelationLink
	Update   AbstractUpdate
}

// NestedDelete is a one-to-many child delete scoped to the rows the
// parent update matched, for the same reason NestedUpdate needs a
// template: the parent's matched row set is only known once it runs.
type NestedDelete struct {
	Relation RelationLink
	Delete   AbstractDelete
}

// AbstractDelete deletes every row of Table matching Predicate.
type AbstractDelete struct {
	Table     catalog.TableId
	Predicate Predicate
	Selection Selection
}
