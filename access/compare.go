package access

import (
	"fmt"
	"reflect"

	dsql "github.com/exo-run/exoquery/dialect/sql"
)

// compareValues compares two already-extracted constants for the solver's
// constant/constant relational case (e.g. AuthContext.role == "admin" with
// a concrete role in hand). It handles the scalar kinds context
// extractors and access-rule literals can produce: strings, bools, and the
// numeric family, plus a fallback to DeepEqual for everything else (only
// meaningful for Eq/Neq).
func compareValues(a, b any) (cmp int, ok bool) {
	af, aIsNum := toFloat(a)
	bf, bIsNum := toFloat(b)
	if aIsNum && bIsNum {
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	}

	as, aIsStr := a.(string)
	bs, bIsStr := b.(string)
	if aIsStr && bIsStr {
		switch {
		case as < bs:
			return -1, true
		case as > bs:
			return 1, true
		default:
			return 0, true
		}
	}

	ab, aIsBool := a.(bool)
	bb, bIsBool := b.(bool)
	if aIsBool && bIsBool {
		if ab == bb {
			return 0, true
		}
		// Ordering beyond equality is meaningless for bool; the caller
		// only uses the sign for Eq/Neq in that case.
		return 1, true
	}

	if reflect.DeepEqual(a, b) {
		return 0, true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// valueInSlice reports whether needle appears in haystack, which must be a
// slice (or array) for an OpIn comparison to be meaningful; anything else
// is not a match.
func valueInSlice(needle, haystack any) bool {
	rv := reflect.ValueOf(haystack)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return false
	}
	for i := 0; i < rv.Len(); i++ {
		if cmp, ok := compareValues(needle, rv.Index(i).Interface()); ok && cmp == 0 {
			return true
		}
	}
	return false
}

// toSQLValue wraps a resolved constant as the dsql.Value a residual
// abstract.Predicate's Param operand carries, applying an explicit pgvector
// cast when the value looks like a vector literal (postgres-core-builder's
// vector type provider handles this the same way on the literal-insertion
// path).
func toSQLValue(v any) dsql.Value {
	switch v.(type) {
	case []float32, []float64:
		return dsql.NewCastValue(v, "vector")
	default:
		return dsql.NewValue(v)
	}
}

// DescribePrimitive renders a primitive as short debug text (a context
// path, "<column>", or the literal's value). Nothing in this repository
// calls it.
func DescribePrimitive(p Primitive) string {
	switch p.Kind {
	case PrimitiveContext:
		return fmt.Sprintf("%s.%v", p.Context.ContextName, p.Context.Path)
	case PrimitiveColumn:
		return "<column>"
	case PrimitiveLiteral:
		return fmt.Sprintf("%v", p.Literal)
	default:
		return "<unknown>"
	}
}
