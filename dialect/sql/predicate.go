package sql

import "github.com/exo-run/exoquery/catalog"

// PredicateOp discriminates ConcretePredicate, mirroring exo-sql's
// predicate.rs ConcretePredicate enum (the lowered, catalog-free cousin of
// abstract.Predicate).
type PredicateOp int

const (
	PredTrue PredicateOp = iota
	PredFalse
	PredEq
	PredNeq
	PredLt
	PredLte
	PredGt
	PredGte
	PredIn
	// PredStringLike renders "<col> [NOT] LIKE/ILIKE <param>".
	PredStringLike
	PredStringStartsWith
	PredStringEndsWith
	// JSON containment/lookup operators, postgres-core-builder's JSON
	// predicate set.
	PredJSONContains
	PredJSONContainedBy
	PredJSONMatchKey
	PredJSONMatchAnyKey
	PredJSONMatchAllKeys
	PredAnd
	PredOr
	PredNot
)

var binaryOpSQL = map[PredicateOp]string{
	PredEq:               " = ",
	PredNeq:               " <> ",
	PredLt:                " < ",
	PredLte:               " <= ",
	PredGt:                " > ",
	PredGte:               " >= ",
	PredIn:                " = ANY(",
	PredJSONContains:      " @> ",
	PredJSONContainedBy:   " <@ ",
	PredJSONMatchKey:      " ? ",
	PredJSONMatchAnyKey:   " ?| ",
	PredJSONMatchAllKeys:  " ?& ",
}

// ConcretePredicate is the concrete "thing you can put in a WHERE clause"
// node: a closed tagged union exactly like abstract.Predicate, but over
// Column instead of abstract.ColumnPath.
type ConcretePredicate struct {
	Op PredicateOp

	// Left/Right apply to every binary Op.
	Left  *Column
	Right *Column

	// CaseInsensitive applies to PredStringLike (ILIKE vs LIKE).
	CaseInsensitive bool
	// Negate applies to PredStringLike/StartsWith/EndsWith ("NOT LIKE").
	Negate bool

	// Operands apply to PredAnd/PredOr.
	Operands []ConcretePredicate
	// Operand applies to PredNot.
	Operand *ConcretePredicate
}

// True and False are the two leaf predicates every reduction eventually
// bottoms out at (access.Solve's compile-time-decidable outcomes).
var (
	True  = ConcretePredicate{Op: PredTrue}
	False = ConcretePredicate{Op: PredFalse}
)

func binary(op PredicateOp, left, right Column) ConcretePredicate {
	return ConcretePredicate{Op: op, Left: &left, Right: &right}
}

func Eq(left, right Column) ConcretePredicate  { return binary(PredEq, left, right) }
func Neq(left, right Column) ConcretePredicate { return binary(PredNeq, left, right) }
func Lt(left, right Column) ConcretePredicate  { return binary(PredLt, left, right) }
func Lte(left, right Column) ConcretePredicate { return binary(PredLte, left, right) }
func Gt(left, right Column) ConcretePredicate  { return binary(PredGt, left, right) }
func Gte(left, right Column) ConcretePredicate { return binary(PredGte, left, right) }
func In(left, right Column) ConcretePredicate  { return binary(PredIn, left, right) }

func JSONContains(left, right Column) ConcretePredicate  { return binary(PredJSONContains, left, right) }
func JSONContainedBy(left, right Column) ConcretePredicate {
	return binary(PredJSONContainedBy, left, right)
}
func JSONMatchKey(left, right Column) ConcretePredicate { return binary(PredJSONMatchKey, left, right) }
func JSONMatchAnyKey(left, right Column) ConcretePredicate {
	return binary(PredJSONMatchAnyKey, left, right)
}
func JSONMatchAllKeys(left, right Column) ConcretePredicate {
	return binary(PredJSONMatchAllKeys, left, right)
}

// StringLike builds a (I)LIKE predicate; caseInsensitive selects ILIKE.
func StringLike(left, right Column, caseInsensitive bool) ConcretePredicate {
	p := binary(PredStringLike, left, right)
	p.CaseInsensitive = caseInsensitive
	return p
}

func StringStartsWith(left, right Column) ConcretePredicate { return binary(PredStringStartsWith, left, right) }
func StringEndsWith(left, right Column) ConcretePredicate   { return binary(PredStringEndsWith, left, right) }

func And(operands ...ConcretePredicate) ConcretePredicate {
	return ConcretePredicate{Op: PredAnd, Operands: operands}
}

func Or(operands ...ConcretePredicate) ConcretePredicate {
	return ConcretePredicate{Op: PredOr, Operands: operands}
}

func Not(operand ConcretePredicate) ConcretePredicate {
	return ConcretePredicate{Op: PredNot, Operand: &operand}
}

func (p ConcretePredicate) Build(db *catalog.Database, b *Builder) {
	switch p.Op {
	case PredTrue:
		b.PushStr("TRUE")
	case PredFalse:
		b.PushStr("FALSE")

	case PredIn:
		p.Left.Build(db, b)
		b.PushStr(" = ANY(")
		p.Right.Build(db, b)
		b.PushStr(")")

	case PredStringLike, PredStringStartsWith, PredStringEndsWith:
		p.Left.Build(db, b)
		if p.Negate {
			b.PushStr(" NOT")
		}
		if p.CaseInsensitive {
			b.PushStr(" ILIKE ")
		} else {
			b.PushStr(" LIKE ")
		}
		p.Right.Build(db, b)

	case PredAnd:
		buildJunction(p.Operands, " AND ", db, b)
	case PredOr:
		buildJunction(p.Operands, " OR ", db, b)
	case PredNot:
		b.PushStr("NOT (")
		p.Operand.Build(db, b)
		b.PushStr(")")

	default:
		op, ok := binaryOpSQL[p.Op]
		if !ok {
			b.PushStr("TRUE")
			return
		}
		p.Left.Build(db, b)
		b.PushStr(op)
		p.Right.Build(db, b)
	}
}

// buildJunction renders an AND/OR chain. An empty operand list is the
// algebra's identity element (AND -> TRUE, OR -> FALSE), handled by the
// caller constructing ConcretePredicate before it reaches here; this
// function assumes at least one operand.
func buildJunction(operands []ConcretePredicate, sep string, db *catalog.Database, b *Builder) {
	for i, op := range operands {
		if i > 0 {
			b.PushStr(sep)
		}
		b.PushStr("(")
		op.Build(db, b)
		b.PushStr(")")
	}
}
