// Package plan implements the select planner (C4), which lowers an
// abstract.Select into a concrete dialect/sql.Select using one of three
// strategies, and the mutation planner (C5, see mutation.go), which
// lowers abstract inserts/updates/deletes into dialect/sql template
// operations.
//
// Grounded in original_source's transform/pg/select/{plain_join_strategy,
// plain_subquery_strategy,selection_strategy}.rs and payas-sql's
// subquery_with_in_predicate_strategy.rs for the three strategies' shape
// and preconditions, and sql/insert.rs for the mutation ordering/elision
// rules.
package plan

import (
	"fmt"

	"github.com/exo-run/exoquery/abstract"
	"github.com/exo-run/exoquery/catalog"
	dsql "github.com/exo-run/exoquery/dialect/sql"
)

// selectionContext is this package's reduction of an abstract.Select down
// to the facts its strategy choice depends on.
type selectionContext struct {
	predicatePaths        []abstract.ColumnPath
	orderByPaths          []abstract.ColumnPath
	hasOneToManyPredicate bool
	hasOneToManyOrderBy   bool
	allowDuplicateRows    bool
}

func classify(sel abstract.Select, allowDuplicateRows bool) selectionContext {
	ctx := selectionContext{
		predicatePaths:     sel.Predicate.Paths(),
		allowDuplicateRows: allowDuplicateRows,
	}
	if sel.OrderBy != nil {
		ctx.orderByPaths = sel.OrderBy.Paths()
	}
	ctx.hasOneToManyPredicate = anyOneToMany(ctx.predicatePaths)
	ctx.hasOneToManyOrderBy = anyOneToMany(ctx.orderByPaths)
	return ctx
}

func anyOneToMany(paths []abstract.ColumnPath) bool {
	for _, p := range paths {
		if p.Kind != abstract.ColumnPathPhysical {
			continue
		}
		for _, link := range p.Physical.Links {
			if link.Kind == abstract.LinkRelation && link.Relation.Cardinality == catalog.OneToMany {
				return true
			}
		}
	}
	return false
}

// PlanSelect lowers sel into a concrete dialect/sql.Select, choosing the
// first suitable strategy among plain-join, plain-subquery, and
// subquery-with-IN, in that order (spec.md §4.2). allowDuplicateRows is
// true only when this select's result is consumed as another subquery's
// row source (e.g. an IN-list) rather than as GraphQL JSON output, the
// one case where a one-to-many predicate's row duplication is harmless.
func PlanSelect(db *catalog.Database, sel abstract.Select, allowDuplicateRows bool) (*dsql.Select, error) {
	ctx := classify(sel, allowDuplicateRows)

	if ctx.hasOneToManyOrderBy {
		return nil, fmt.Errorf("plan: order-by cannot traverse a one-to-many relation")
	}

	switch {
	case suitablePlainJoin(sel, ctx):
		return planPlainJoin(db, sel, ctx)
	case suitablePlainSubquery(ctx):
		return planKeyRestrictedSelect(db, sel, unionPaths(ctx.predicatePaths, ctx.orderByPaths))
	default:
		return planKeyRestrictedSelect(db, sel, ctx.predicatePaths)
	}
}

// suitablePlainJoin: a single join tree is safe exactly when nothing
// feeding this select's WHERE/ORDER BY can duplicate a row (no one-to-many
// predicate hop, unless the caller already tolerates duplicates) and there
// is no paging to get wrong in the presence of that join (spec.md §4.2).
func suitablePlainJoin(sel abstract.Select, ctx selectionContext) bool {
	noPaging := sel.Limit == nil && sel.Offset == nil
	return noPaging && (ctx.allowDuplicateRows || !ctx.hasOneToManyPredicate)
}

// suitablePlainSubquery covers the paging case plain-join declined:
// whenever the predicate can't duplicate rows, restricting to the page's
// primary keys first (via a join limited to just the predicate/order-by
// paths) and only then joining the full selection's to-one columns avoids
// widening the join before LIMIT/OFFSET apply.
func suitablePlainSubquery(ctx selectionContext) bool {
	return ctx.allowDuplicateRows || !ctx.hasOneToManyPredicate
}

func planPlainJoin(db *catalog.Database, sel abstract.Select, ctx selectionContext) (*dsql.Select, error) {
	table := buildJoin(sel.Table, joinPaths(sel))
	predicate := lowerPredicate(sel.Predicate)
	cols, err := lowerSelection(db, sel.Selection)
	if err != nil {
		return nil, err
	}
	out := &dsql.Select{
		Table:             table,
		Columns:           cols,
		Predicate:         predicate,
		OrderBy:           lowerOrderBy(sel.OrderBy),
		TopLevelSelection: sel.TopLevel,
	}
	if sel.Limit != nil {
		l := dsql.Limit(*sel.Limit)
		out.Limit = &l
	}
	if sel.Offset != nil {
		o := dsql.Offset(*sel.Offset)
		out.Offset = &o
	}
	return out, nil
}

// planKeyRestrictedSelect implements both the plain-subquery and
// subquery-with-IN strategies: they share the same two-query shape
// (restrict to primary keys first, then join for the full selection) and
// differ only in which paths the caller allows into the key-restricting
// join. Plain-subquery passes predicate+order-by paths already proven
// safe; subquery-with-IN passes only the predicate paths, tolerant of the
// duplicate keys a one-to-many predicate hop may produce since membership
// in the outer IN-list is unaffected by duplicates (its LIMIT/OFFSET
// precision in that case is a known limitation — see DESIGN.md).
func planKeyRestrictedSelect(db *catalog.Database, sel abstract.Select, keyJoinPaths []abstract.ColumnPath) (*dsql.Select, error) {
	pk := db.PrimaryKey(sel.Table)
	if len(pk) == 0 {
		return nil, fmt.Errorf("plan: table has no primary key, cannot plan a key-restricted select")
	}

	keyTable := buildJoin(sel.Table, keyJoinPaths)
	inner := &dsql.Select{
		Table:     keyTable,
		Columns:   physicalColumns(pk),
		Predicate: lowerPredicate(sel.Predicate),
		OrderBy:   lowerOrderBy(sel.OrderBy),
	}
	if sel.Limit != nil {
		l := dsql.Limit(*sel.Limit)
		inner.Limit = &l
	}
	if sel.Offset != nil {
		o := dsql.Offset(*sel.Offset)
		inner.Offset = &o
	}

	outerTable := buildJoin(sel.Table, selectionJoinPaths(sel.Selection))
	cols, err := lowerSelection(db, sel.Selection)
	if err != nil {
		return nil, err
	}
	// A composite primary key would need a row-value IN comparison
	// ("(a, b) IN (SELECT a, b FROM ...)"), which this engine's IN
	// predicate (a single column vs. ANY()) doesn't model; only the
	// first key column is used, a known limitation for composite-key
	// tables noted in DESIGN.md.
	outerPredicate := dsql.In(dsql.PhysicalColumn(pk[0]), dsql.SubqueryColumn(inner))

	return &dsql.Select{
		Table:             outerTable,
		Columns:           cols,
		Predicate:         outerPredicate,
		OrderBy:           lowerOrderBy(sel.OrderBy),
		TopLevelSelection: sel.TopLevel,
	}, nil
}

func physicalColumns(ids []catalog.ColumnId) []dsql.Column {
	cols := make([]dsql.Column, len(ids))
	for i, id := range ids {
		cols[i] = dsql.PhysicalColumn(id)
	}
	return cols
}

func unionPaths(a, b []abstract.ColumnPath) []abstract.ColumnPath {
	out := make([]abstract.ColumnPath, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return out
}

// joinPaths is the union of predicate, order-by, and to-one-selection
// paths a single-join plan (plain-join) needs folded into its FROM clause.
func joinPaths(sel abstract.Select) []abstract.ColumnPath {
	paths := append([]abstract.ColumnPath{}, sel.Predicate.Paths()...)
	if sel.OrderBy != nil {
		paths = append(paths, sel.OrderBy.Paths()...)
	}
	paths = append(paths, selectionJoinPaths(sel.Selection)...)
	return paths
}

// selectionJoinPaths walks a JSONObject selection and returns a
// ColumnPath per scalar field plus, for every to-one nested field, the
// relation hop to its table together with that nested select's own join
// paths, each prefixed by the hop. To-many nested fields contribute
// nothing here: they lower to a correlated subquery (lowerToManyField),
// never a join.
func selectionJoinPaths(sel abstract.Selection) []abstract.ColumnPath {
	if sel.Kind != abstract.SelectionJSON || sel.JSONKind != abstract.JSONObject {
		return nil
	}
	var out []abstract.ColumnPath
	for _, f := range sel.Fields {
		switch {
		case f.Scalar != nil:
			out = append(out, *f.Scalar)
		case f.Nested != nil && f.Relation != nil && f.Relation.Cardinality != catalog.OneToMany:
			out = append(out, abstract.NewPhysicalColumnPath(
				abstract.RelationHop(*f.Relation),
				abstract.LeafLink(f.Relation.LinkedColumn),
			))
			for _, p := range joinPaths(*f.Nested) {
				out = append(out, prefixPath(*f.Relation, p))
			}
		}
	}
	return out
}

func prefixPath(hop abstract.RelationLink, path abstract.ColumnPath) abstract.ColumnPath {
	if path.Kind != abstract.ColumnPathPhysical {
		return path
	}
	links := append([]abstract.ColumnPathLink{abstract.RelationHop(hop)}, path.Physical.Links...)
	return abstract.NewPhysicalColumnPath(links...)
}

// buildJoin folds every relation hop of paths into a LEFT JOIN chain
// rooted at root, deduplicating by the RelationLink itself (equivalently
// its (self_column, linked_column) pair) so the same join is never emitted
// twice regardless of how many paths traverse it (spec.md §4.2).
func buildJoin(root catalog.TableId, paths []abstract.ColumnPath) dsql.Table {
	result := dsql.PhysicalTable(root)
	seen := map[abstract.RelationLink]bool{}
	for _, p := range paths {
		if p.Kind != abstract.ColumnPathPhysical {
			continue
		}
		for _, link := range p.Physical.Links {
			if link.Kind != abstract.LinkRelation {
				continue
			}
			if seen[link.Relation] {
				continue
			}
			seen[link.Relation] = true
			result = dsql.JoinTable(
				result,
				dsql.PhysicalTable(link.Relation.LinkedColumn.Table),
				dsql.JoinLeft,
				dsql.Eq(dsql.PhysicalColumn(link.Relation.SelfColumn), dsql.PhysicalColumn(link.Relation.LinkedColumn)),
			)
		}
	}
	return result
}

// lowerPredicate converts an abstract.Predicate to a concrete
// dialect/sql.ConcretePredicate. Every operand resolves to a physical
// column reference directly addressable by its target table's qualified
// name, since buildJoin has already folded every hop along its path into
// the FROM clause. A TRUE operand of an AND is dropped, so an access
// decision that allows unconditionally adds nothing to the WHERE clause.
func lowerPredicate(p abstract.Predicate) dsql.ConcretePredicate {
	switch p.Op {
	case abstract.PredTrue:
		return dsql.True
	case abstract.PredFalse:
		return dsql.False
	case abstract.PredAnd:
		var kept []abstract.Predicate
		for _, operand := range p.Operands {
			if operand.Op != abstract.PredTrue {
				kept = append(kept, operand)
			}
		}
		switch len(kept) {
		case 0:
			return dsql.True
		case 1:
			return lowerPredicate(kept[0])
		}
		return dsql.And(lowerPredicates(kept)...)
	case abstract.PredOr:
		return dsql.Or(lowerPredicates(p.Operands)...)
	case abstract.PredNot:
		return dsql.Not(lowerPredicate(*p.Operand))
	default:
		left := lowerOperand(*p.Left)
		right := lowerOperand(*p.Right)
		return lowerBinary(p.Op, left, right, p.CaseInsensitive)
	}
}

func lowerPredicates(ps []abstract.Predicate) []dsql.ConcretePredicate {
	out := make([]dsql.ConcretePredicate, len(ps))
	for i, p := range ps {
		out[i] = lowerPredicate(p)
	}
	return out
}

func lowerOperand(path abstract.ColumnPath) dsql.Column {
	switch path.Kind {
	case abstract.ColumnPathPhysical:
		return dsql.PhysicalColumn(path.Physical.Leaf())
	case abstract.ColumnPathParam:
		return dsql.ValueColumn(path.Param)
	default: // ColumnPathNull
		return dsql.ValueColumn(dsql.NewValue(nil))
	}
}

func lowerBinary(op abstract.PredicateOp, left, right dsql.Column, caseInsensitive bool) dsql.ConcretePredicate {
	switch op {
	case abstract.PredEq:
		return dsql.Eq(left, right)
	case abstract.PredNeq:
		return dsql.Neq(left, right)
	case abstract.PredLt:
		return dsql.Lt(left, right)
	case abstract.PredLte:
		return dsql.Lte(left, right)
	case abstract.PredGt:
		return dsql.Gt(left, right)
	case abstract.PredGte:
		return dsql.Gte(left, right)
	case abstract.PredIn:
		return dsql.In(left, right)
	case abstract.PredStringLike:
		return dsql.StringLike(left, right, caseInsensitive)
	case abstract.PredStringStartsWith:
		return dsql.StringStartsWith(left, right)
	case abstract.PredStringEndsWith:
		return dsql.StringEndsWith(left, right)
	case abstract.PredJSONContains:
		return dsql.JSONContains(left, right)
	case abstract.PredJSONContainedBy:
		return dsql.JSONContainedBy(left, right)
	case abstract.PredJSONMatchKey:
		return dsql.JSONMatchKey(left, right)
	case abstract.PredJSONMatchAnyKey:
		return dsql.JSONMatchAnyKey(left, right)
	case abstract.PredJSONMatchAllKeys:
		return dsql.JSONMatchAllKeys(left, right)
	default:
		return dsql.True
	}
}

func lowerOrderBy(o *abstract.OrderBy) *dsql.OrderBy {
	if o == nil || len(o.Elements) == 0 {
		return nil
	}
	elems := make([]dsql.OrderByElement, len(o.Elements))
	for i, el := range o.Elements {
		dir := dsql.Asc
		if el.Direction == abstract.Desc {
			dir = dsql.Desc
		}
		switch el.Kind {
		case abstract.OrderByColumn:
			elems[i] = dsql.OrderByColumnElement(el.Path.Physical.Leaf(), dir, "")
		case abstract.OrderByVectorDistance:
			elems[i] = dsql.OrderByVectorDistanceElement(
				lowerVectorOperand(el.VectorLeft),
				lowerVectorOperand(el.VectorRight),
				el.VectorFunction, dir, "",
			)
		}
	}
	return &dsql.OrderBy{Elements: elems}
}

func lowerVectorOperand(path abstract.ColumnPath) dsql.VectorDistanceOperand {
	if path.Kind == abstract.ColumnPathPhysical {
		return dsql.VectorColumnOperand(path.Physical.Leaf())
	}
	return dsql.VectorParamOperand(path.Param)
}

// lowerSelection turns an abstract.Selection into the dsql.Column list a
// dialect/sql.Select.Columns carries, per spec.md §4.2's JSON aggregation
// rules.
func lowerSelection(db *catalog.Database, sel abstract.Selection) ([]dsql.Column, error) {
	switch sel.Kind {
	case abstract.SelectionColumns:
		cols := make([]dsql.Column, len(sel.Columns))
		for i, id := range sel.Columns {
			cols[i] = dsql.PhysicalColumn(id)
		}
		return cols, nil

	case abstract.SelectionJSON:
		switch sel.JSONKind {
		case abstract.JSONObject:
			obj, err := lowerJSONObject(db, sel.Fields)
			if err != nil {
				return nil, err
			}
			return []dsql.Column{obj}, nil
		case abstract.JSONAgg:
			inner, err := lowerSelection(db, sel.Agg.Selection)
			if err != nil {
				return nil, err
			}
			if len(inner) != 1 {
				return nil, fmt.Errorf("plan: json_agg selection must lower to exactly one column")
			}
			return []dsql.Column{dsql.JSONAggColumn(inner[0])}, nil
		}
	}
	return nil, fmt.Errorf("plan: unsupported selection kind")
}

func lowerJSONObject(db *catalog.Database, fields []abstract.SelectionField) (dsql.Column, error) {
	elems := make([]dsql.JSONObjectElement, 0, len(fields))
	for _, f := range fields {
		switch {
		case f.Scalar != nil:
			elems = append(elems, dsql.JSONObjectElement{Key: f.Alias, Value: lowerOperand(*f.Scalar)})

		case f.Nested != nil && f.Relation != nil && f.Relation.Cardinality != catalog.OneToMany:
			// To-one: the target table is already folded into this
			// select's FROM join, so the nested object is built
			// directly over its columns.
			obj, err := lowerJSONObject(db, f.Nested.Selection.Fields)
			if err != nil {
				return dsql.Column{}, err
			}
			elems = append(elems, dsql.JSONObjectElement{Key: f.Alias, Value: obj})

		case f.Nested != nil && f.Relation != nil:
			// To-many: lower as a correlated subquery, since its
			// aggregate would otherwise duplicate the parent row.
			col, err := lowerToManyField(db, *f.Nested, *f.Relation)
			if err != nil {
				return dsql.Column{}, err
			}
			elems = append(elems, dsql.JSONObjectElement{Key: f.Alias, Value: col})

		default:
			return dsql.Column{}, fmt.Errorf("plan: selection field %q has neither Scalar nor Nested", f.Alias)
		}
	}
	return dsql.JSONObjectColumn(elems), nil
}

// lowerToManyField plans nested as its own select, correlating its
// predicate to the enclosing row via relation's foreign key (child.fk =
// parent.pk), then wraps the result as a ColumnSubquery. The parent row is
// referenced through its bare physical table name, which only holds when
// the to-many field is nested directly under the query root; a to-many
// field reached two or more relation hops deep would need the parent
// referenced by an alias this planner does not yet assign (see
// DESIGN.md).
func lowerToManyField(db *catalog.Database, nested abstract.Select, relation abstract.RelationLink) (dsql.Column, error) {
	correlation := abstract.Eq(
		abstract.LeafColumnPath(relation.LinkedColumn),
		abstract.LeafColumnPath(relation.SelfColumn),
	)
	correlated := nested
	correlated.Predicate = abstract.And(nested.Predicate, correlation)
	correlated.TopLevel = false

	sel, err := PlanSelect(db, correlated, false)
	if err != nil {
		return dsql.Column{}, err
	}
	return dsql.SubqueryColumn(sel), nil
}
