package resolver

import (
	"fmt"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/exo-run/exoquery/abstract"
	"github.com/exo-run/exoquery/catalog"
	dsql "github.com/exo-run/exoquery/dialect/sql"
)

// comparisonOps is the closed set of "where" column-comparison operators
// spec.md §8's scenarios exercise (gt/lt and friends in Scenario B/E, plus
// the remaining binary predicate ops abstract.Predicate already models).
// startsWith/endsWith map onto abstract.StringStartsWith/EndsWith rather
// than a generic "like", matching what the abstract package exposes.
var comparisonOps = map[string]func(left, right abstract.ColumnPath) abstract.Predicate{
	"eq":         abstract.Eq,
	"neq":        abstract.Neq,
	"lt":         abstract.Lt,
	"lte":        abstract.Lte,
	"gt":         abstract.Gt,
	"gte":        abstract.Gte,
	"in":         abstract.In,
	"startsWith": abstract.StringStartsWith,
	"endsWith":   abstract.StringEndsWith,
}

// paramPath wraps a resolved GraphQL argument value as a ColumnPath
// operand: nil becomes SQL NULL, anything else a bound parameter.
func paramPath(v any) abstract.ColumnPath {
	if v == nil {
		return abstract.NullColumnPath()
	}
	return abstract.ParamColumnPath(dsql.NewValue(v))
}

// buildWhere turns a GraphQL "where" argument value into a predicate
// against table, per spec.md §8 scenarios B/E: a child object keyed by
// column name holds either a nested comparison object
// ({gt: 10}/{eq: 42}/...) or, one level down, a relation name holding
// another such object (Scenario B's `concerts: { id: { gt: 10 } }`).
// "and"/"or"/"not" combinator keys compose sub-where values the same way.
func buildWhere(db *catalog.Database, table catalog.TableId, val *ast.Value, vars map[string]any) (abstract.Predicate, error) {
	if val == nil {
		return abstract.True, nil
	}

	raw, err := val.Value(vars)
	if err != nil {
		return abstract.Predicate{}, fmt.Errorf("resolver: resolving where argument: %w", err)
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return abstract.Predicate{}, fmt.Errorf("resolver: where argument must be an object")
	}

	var operands []abstract.Predicate
	for _, child := range val.Children {
		switch child.Name {
		case "and", "or":
			list, err := buildWhereList(db, table, child.Value, vars)
			if err != nil {
				return abstract.Predicate{}, err
			}
			if child.Name == "and" {
				operands = append(operands, abstract.And(list...))
			} else {
				operands = append(operands, abstract.Or(list...))
			}
			continue
		case "not":
			sub, err := buildWhere(db, table, child.Value, vars)
			if err != nil {
				return abstract.Predicate{}, err
			}
			operands = append(operands, abstract.Not(sub))
			continue
		}

		if colID, found := db.ColumnByName(table, child.Name); found {
			pred, err := buildColumnComparison(abstract.LeafColumnPath(colID), m[child.Name])
			if err != nil {
				return abstract.Predicate{}, err
			}
			operands = append(operands, pred)
			continue
		}

		targetTable, link, found := relationByName(db, table, child.Name)
		if !found {
			return abstract.Predicate{}, fmt.Errorf("resolver: unknown where field %q on table %q", child.Name, db.Table(table).Name)
		}
		sub, err := buildWhere(db, targetTable, child.Value, vars)
		if err != nil {
			return abstract.Predicate{}, err
		}
		operands = append(operands, prefixPredicate(sub, link))
	}

	if len(operands) == 0 {
		return abstract.True, nil
	}
	if len(operands) == 1 {
		return operands[0], nil
	}
	return abstract.And(operands...), nil
}

func buildWhereList(db *catalog.Database, table catalog.TableId, val *ast.Value, vars map[string]any) ([]abstract.Predicate, error) {
	var out []abstract.Predicate
	for _, item := range val.Children {
		pred, err := buildWhere(db, table, item.Value, vars)
		if err != nil {
			return nil, err
		}
		out = append(out, pred)
	}
	return out, nil
}

// buildColumnComparison turns one "where" column value into a predicate:
// a bare scalar is an implicit eq, an object applies every named
// comparison operator it carries (AND-ed together when more than one,
// e.g. a range expressed as {gt: 1, lt: 10}).
func buildColumnComparison(path abstract.ColumnPath, raw any) (abstract.Predicate, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return abstract.Eq(path, paramPath(raw)), nil
	}

	var operands []abstract.Predicate
	for op, v := range m {
		build, ok := comparisonOps[op]
		if !ok {
			return abstract.Predicate{}, fmt.Errorf("resolver: unknown where comparison operator %q", op)
		}
		operands = append(operands, build(path, paramPath(v)))
	}
	if len(operands) == 1 {
		return operands[0], nil
	}
	return abstract.And(operands...), nil
}

// prefixColumnPath prepends link to every physical operand's hop chain,
// lifting a predicate built against a relation's target table into one
// expressed from the outer table's perspective — the inverse of
// abstract.Predicate.SubselectPredicate, needed because a "where"
// argument's relation nesting is always written from the outer field.
func prefixColumnPath(path abstract.ColumnPath, link abstract.RelationLink) abstract.ColumnPath {
	if path.Kind != abstract.ColumnPathPhysical {
		return path
	}
	links := append([]abstract.ColumnPathLink{abstract.RelationHop(link)}, path.Physical.Links...)
	return abstract.NewPhysicalColumnPath(links...)
}

func prefixPredicate(p abstract.Predicate, link abstract.RelationLink) abstract.Predicate {
	switch {
	case p.Op == abstract.PredTrue || p.Op == abstract.PredFalse:
		return p
	case p.Op == abstract.PredAnd || p.Op == abstract.PredOr:
		operands := make([]abstract.Predicate, len(p.Operands))
		for i, operand := range p.Operands {
			operands[i] = prefixPredicate(operand, link)
		}
		return abstract.Predicate{Op: p.Op, Operands: operands}
	case p.Op == abstract.PredNot:
		sub := prefixPredicate(*p.Operand, link)
		return abstract.Predicate{Op: abstract.PredNot, Operand: &sub}
	default:
		l := prefixColumnPath(*p.Left, link)
		r := prefixColumnPath(*p.Right, link)
		return abstract.Predicate{Op: p.Op, Left: &l, Right: &r, CaseInsensitive: p.CaseInsensitive}
	}
}

// buildOrderBy turns a GraphQL "orderBy" argument value into an OrderBy,
// capped at the one level of relation nesting spec.md §8 Scenario F
// demonstrates (`orderBy: { concert: { title: ASC } }`): a top-level key
// either names a column directly, or names a to-one relation whose own
// value is a one-level column/direction object. val.Children (not
// val.Value, which would lose ordering in a Go map) preserves the
// argument's field order, which becomes the ORDER BY term order.
func buildOrderBy(db *catalog.Database, table catalog.TableId, val *ast.Value, vars map[string]any) (*abstract.OrderBy, error) {
	if val == nil {
		return nil, nil
	}

	var elements []abstract.OrderByElement
	for _, child := range val.Children {
		if colID, found := db.ColumnByName(table, child.Name); found {
			dir, err := parseOrdering(child.Value, vars)
			if err != nil {
				return nil, err
			}
			elements = append(elements, abstract.OrderByColumnElement(abstract.LeafColumnPath(colID), dir))
			continue
		}

		targetTable, link, found := relationByName(db, table, child.Name)
		if !found {
			return nil, fmt.Errorf("resolver: unknown orderBy field %q on table %q", child.Name, db.Table(table).Name)
		}
		if link.Cardinality == catalog.OneToMany {
			return nil, fmt.Errorf("resolver: orderBy cannot cross the one-to-many relation %q", child.Name)
		}

		for _, grandchild := range child.Value.Children {
			colID, found := db.ColumnByName(targetTable, grandchild.Name)
			if !found {
				return nil, fmt.Errorf("resolver: unknown orderBy field %q on table %q", grandchild.Name, db.Table(targetTable).Name)
			}
			dir, err := parseOrdering(grandchild.Value, vars)
			if err != nil {
				return nil, err
			}
			path := abstract.NewPhysicalColumnPath(abstract.RelationHop(link), abstract.LeafLink(colID))
			elements = append(elements, abstract.OrderByColumnElement(path, dir))
		}
	}

	if len(elements) == 0 {
		return nil, nil
	}
	return &abstract.OrderBy{Elements: elements}, nil
}

func parseOrdering(val *ast.Value, vars map[string]any) (abstract.Ordering, error) {
	raw, err := val.Value(vars)
	if err != nil {
		return 0, fmt.Errorf("resolver: resolving orderBy direction: %w", err)
	}
	s, _ := raw.(string)
	switch s {
	case "ASC":
		return abstract.Asc, nil
	case "DESC":
		return abstract.Desc, nil
	default:
		return 0, fmt.Errorf("resolver: orderBy direction must be ASC or DESC, got %v", raw)
	}
}

// argInt reads an integer-valued argument (limit/offset), tolerating the
// int/int64/float64 shapes ast.Value.Value and a JSON-decoded variables
// map can each produce.
func argInt(val *ast.Value, vars map[string]any) (int64, error) {
	raw, err := val.Value(vars)
	if err != nil {
		return 0, err
	}
	switch v := raw.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("resolver: expected an integer argument, got %T", raw)
	}
}
