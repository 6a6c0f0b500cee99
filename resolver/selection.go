package resolver

import (
	"fmt"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/exo-run/exoquery/abstract"
	"github.com/exo-run/exoquery/catalog"
)

// buildSelection turns one GraphQL selection set into a JSONObject
// Selection against table: each field is either a scalar column, a to-one
// relation (folded into a nested JSONObject select) or a to-many relation
// (lowered into a nested JSONAgg select), per spec.md §4.2/§8 Scenario A.
// Fragments are not in scope (spec.md's runtime receives a document
// already validated by the build-time compiler this implementation does
// not carry; see DESIGN.md); a fragment spread or inline fragment in the
// selection set is skipped.
func buildSelection(db *catalog.Database, table catalog.TableId, set ast.SelectionSet, vars map[string]any) (abstract.Selection, error) {
	var fields []abstract.SelectionField
	for _, sel := range set {
		field, ok := sel.(*ast.Field)
		if !ok {
			continue
		}
		if field.Name == "__typename" {
			continue
		}
		sf, err := buildSelectionField(db, table, field, vars)
		if err != nil {
			return abstract.Selection{}, err
		}
		fields = append(fields, sf)
	}
	return abstract.JSONObjectSelection(fields...), nil
}

func buildSelectionField(db *catalog.Database, table catalog.TableId, field *ast.Field, vars map[string]any) (abstract.SelectionField, error) {
	alias := field.Alias
	if alias == "" {
		alias = field.Name
	}

	if colID, found := db.ColumnByName(table, field.Name); found {
		return abstract.ScalarField(alias, abstract.LeafColumnPath(colID)), nil
	}

	target, link, found := relationByName(db, table, field.Name)
	if !found {
		return abstract.SelectionField{}, fmt.Errorf("resolver: unknown field %q on table %q", field.Name, db.Table(table).Name)
	}

	innerSelection, err := buildSelection(db, target, field.SelectionSet, vars)
	if err != nil {
		return abstract.SelectionField{}, err
	}

	if link.Cardinality != catalog.OneToMany {
		nested := abstract.Select{Table: target, Selection: innerSelection}
		return abstract.NestedField(alias, nested, link), nil
	}

	pred, orderBy, limit, offset, err := buildCollectionArgs(db, target, field.Arguments, vars)
	if err != nil {
		return abstract.SelectionField{}, err
	}

	row := abstract.Select{Table: target, Selection: innerSelection}
	outer := abstract.Select{
		Table:     target,
		Selection: abstract.JSONAggSelection(row),
		Predicate: pred,
		OrderBy:   orderBy,
		Limit:     limit,
		Offset:    offset,
	}
	return abstract.NestedField(alias, outer, link), nil
}

// buildCollectionArgs resolves the where/orderBy/limit/offset arguments a
// collection-shaped field (a top-level query or a to-many nested field)
// may carry, defaulting predicate to True and the rest to unset.
func buildCollectionArgs(db *catalog.Database, table catalog.TableId, args ast.ArgumentList, vars map[string]any) (abstract.Predicate, *abstract.OrderBy, *int64, *int64, error) {
	pred := abstract.True
	if arg := args.ForName("where"); arg != nil {
		p, err := buildWhere(db, table, arg.Value, vars)
		if err != nil {
			return abstract.Predicate{}, nil, nil, nil, err
		}
		pred = p
	}

	var orderBy *abstract.OrderBy
	if arg := args.ForName("orderBy"); arg != nil {
		ob, err := buildOrderBy(db, table, arg.Value, vars)
		if err != nil {
			return abstract.Predicate{}, nil, nil, nil, err
		}
		orderBy = ob
	}

	var limit, offset *int64
	if arg := args.ForName("limit"); arg != nil {
		v, err := argInt(arg.Value, vars)
		if err != nil {
			return abstract.Predicate{}, nil, nil, nil, fmt.Errorf("resolver: limit argument: %w", err)
		}
		limit = &v
	}
	if arg := args.ForName("offset"); arg != nil {
		v, err := argInt(arg.Value, vars)
		if err != nil {
			return abstract.Predicate{}, nil, nil, nil, fmt.Errorf("resolver: offset argument: %w", err)
		}
		offset = &v
	}

	return pred, orderBy, limit, offset, nil
}
