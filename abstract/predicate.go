package abstract

// PredicateOp discriminates Predicate, the catalog-graph-aware cousin of
// dialect/sql.ConcretePredicate (original_source's Predicate<ColumnPath>).
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
	PredStringLike
	PredStringStartsWith
	PredStringEndsWith
	PredJSONContains
	PredJSONContainedBy
	PredJSONMatchKey
	PredJSONMatchAnyKey
	PredJSONMatchAllKeys
	PredAnd
	PredOr
	PredNot
)

var binaryOps = map[PredicateOp]bool{
	PredEq: true, PredNeq: true, PredLt: true, PredLte: true, PredGt: true, PredGte: true,
	PredIn: true, PredStringLike: true, PredStringStartsWith: true, PredStringEndsWith: true,
	PredJSONContains: true, PredJSONContainedBy: true, PredJSONMatchKey: true,
	PredJSONMatchAnyKey: true, PredJSONMatchAllKeys: true,
}

// Predicate is the closed tagged union every access-control rule, GraphQL
// "where" argument, and primary-key lookup compiles down to.
type Predicate struct {
	Op              PredicateOp
	Left            *ColumnPath
	Right           *ColumnPath
	CaseInsensitive bool // PredStringLike only

	Operands []Predicate // PredAnd/PredOr
	Operand  *Predicate  // PredNot
}

var (
	True  = Predicate{Op: PredTrue}
	False = Predicate{Op: PredFalse}
)

func binary(op PredicateOp, l, r ColumnPath) Predicate {
	return Predicate{Op: op, Left: &l, Right: &r}
}

func Eq(l, r ColumnPath) Predicate  { return binary(PredEq, l, r) }
func Neq(l, r ColumnPath) Predicate { return binary(PredNeq, l, r) }
func Lt(l, r ColumnPath) Predicate  { return binary(PredLt, l, r) }
func Lte(l, r ColumnPath) Predicate { return binary(PredLte, l, r) }
func Gt(l, r ColumnPath) Predicate  { return binary(PredGt, l, r) }
func Gte(l, r ColumnPath) Predicate { return binary(PredGte, l, r) }
func In(l, r ColumnPath) Predicate  { return binary(PredIn, l, r) }

func StringLike(l, r ColumnPath, caseInsensitive bool) Predicate {
	p := binary(PredStringLike, l, r)
	p.CaseInsensitive = caseInsensitive
	return p
}
func StringStartsWith(l, r ColumnPath) Predicate { return binary(PredStringStartsWith, l, r) }
func StringEndsWith(l, r ColumnPath) Predicate   { return binary(PredStringEndsWith, l, r) }

func JSONContains(l, r ColumnPath) Predicate     { return binary(PredJSONContains, l, r) }
func JSONContainedBy(l, r ColumnPath) Predicate  { return binary(PredJSONContainedBy, l, r) }
func JSONMatchKey(l, r ColumnPath) Predicate     { return binary(PredJSONMatchKey, l, r) }
func JSONMatchAnyKey(l, r ColumnPath) Predicate  { return binary(PredJSONMatchAnyKey, l, r) }
func JSONMatchAllKeys(l, r ColumnPath) Predicate { return binary(PredJSONMatchAllKeys, l, r) }

func And(operands ...Predicate) Predicate { return Predicate{Op: PredAnd, Operands: operands} }
func Or(operands ...Predicate) Predicate  { return Predicate{Op: PredOr, Operands: operands} }
func Not(p Predicate) Predicate           { return Predicate{Op: PredNot, Operand: &p} }

// Paths returns every ColumnPath operand this predicate (and its
// subexpressions) reference, in left-to-right order. Ported from
// predicate.rs's column_paths.
func (p Predicate) Paths() []ColumnPath {
	switch {
	case p.Op == PredTrue || p.Op == PredFalse:
		return nil
	case binaryOps[p.Op]:
		return []ColumnPath{*p.Left, *p.Right}
	case p.Op == PredAnd || p.Op == PredOr:
		var result []ColumnPath
		for _, operand := range p.Operands {
			result = append(result, operand.Paths()...)
		}
		return result
	case p.Op == PredNot:
		return p.Operand.Paths()
	default:
		return nil
	}
}

// CommonRelationLink returns the single RelationLink every physical operand
// of this predicate starts with, i.e. whether the predicate is entirely
// "about" one relation hop. Nothing in this repository calls it.
// Ported from predicate.rs's common_relation_link: a Param/Null operand is
// ignored (it constrains nothing about the relation graph); a bare Leaf
// operand (no relation hop at all) or two physical operands disagreeing on
// their head hop make the predicate NOT reducible to a single relation,
// reported as ok=false.
func (p Predicate) CommonRelationLink() (RelationLink, bool) {
	var result *RelationLink
	for _, path := range p.Paths() {
		if path.Kind != ColumnPathPhysical {
			continue
		}
		head := path.Physical.Head()
		if head.Kind == LinkLeaf {
			return RelationLink{}, false
		}
		if result == nil {
			link := head.Relation
			result = &link
		} else if !result.Equal(head.Relation) {
			return RelationLink{}, false
		}
	}
	if result == nil {
		return RelationLink{}, false
	}
	return *result, true
}

// SubselectPredicate drops the common leading relation hop from every
// physical operand, turning a predicate written against the outer table
// ("concerts.venue.name = $1", reached via the venue relation) into one
// written against the relation's target table directly ("venues.name =
// $1"), for use inside a correlated subquery that has already joined or
// selected into that target table. Ported from predicate.rs's
// subselect_predicate.
func (p Predicate) SubselectPredicate() Predicate {
	tail := func(path ColumnPath) ColumnPath {
		if path.Kind != ColumnPathPhysical {
			return path
		}
		t, ok := path.Physical.Tail()
		if !ok {
			return path
		}
		return ColumnPath{Kind: ColumnPathPhysical, Physical: t}
	}

	switch {
	case p.Op == PredTrue || p.Op == PredFalse:
		return p
	case binaryOps[p.Op]:
		result := binary(p.Op, tail(*p.Left), tail(*p.Right))
		result.CaseInsensitive = p.CaseInsensitive
		return result
	case p.Op == PredAnd || p.Op == PredOr:
		operands := make([]Predicate, len(p.Operands))
		for i, operand := range p.Operands {
			operands[i] = operand.SubselectPredicate()
		}
		return Predicate{Op: p.Op, Operands: operands}
	case p.Op == PredNot:
		sub := p.Operand.SubselectPredicate()
		return Predicate{Op: PredNot, Operand: &sub}
	default:
		return p
	}
}
