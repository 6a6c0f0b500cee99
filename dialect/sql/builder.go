package sql

import (
	"strconv"
	"strings"

	"github.com/exo-run/exoquery/catalog"
)

// ExpressionBuilder is implemented by every node in this package. Build
// appends the node's SQL text (and any parameters, via Builder.PushParam) to
// builder. Nodes that reference catalog.ColumnId/catalog.TableId need db to
// resolve names.
type ExpressionBuilder interface {
	Build(db *catalog.Database, b *Builder)
}

// Builder accumulates SQL text and its positional parameters, mirroring
// exo-sql's SQLBuilder: callers push fragments and params in left-to-right
// order and call Build at the end to get both back together.
type Builder struct {
	sb     strings.Builder
	params []any

	// aliases maps a catalog.TableId to the alias it should be rendered
	// under instead of its qualified name, set for the duration of a
	// sub-select's enclosing clauses (select.rs's table_alias_map).
	aliases map[catalog.TableId]string

	// unqualified suppresses the table-qualification of physical column
	// references; set while rendering an INSERT/UPDATE column list, where
	// "(age, name) VALUES (...)" must not read "(people.age, people.name)".
	unqualified bool
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{aliases: map[catalog.TableId]string{}}
}

// PushStr appends literal SQL text verbatim. Never pass user-controlled
// strings here; user values always go through PushParam.
func (b *Builder) PushStr(s string) *Builder {
	b.sb.WriteString(s)
	return b
}

// PushSpace appends a single space.
func (b *Builder) PushSpace() *Builder { return b.PushStr(" ") }

// PushIdent appends a catalog-quoted identifier.
func (b *Builder) PushIdent(ident string) *Builder {
	return b.PushStr(catalog.QuoteIdent(ident))
}

// PushParam appends a "$n" placeholder and records v as the nth bound
// parameter.
func (b *Builder) PushParam(v any) *Builder {
	b.params = append(b.params, v)
	b.sb.WriteString("$")
	b.sb.WriteString(strconv.Itoa(len(b.params)))
	return b
}

// PushColumnWithTableAlias appends `"alias"."column"`, used when a caller
// has already decided the alias (order.rs's table_alias override, used by
// the subquery-with-IN select strategy to reference the outer table from
// inside the generated scalar subquery).
func (b *Builder) PushColumnWithTableAlias(column, alias string) *Builder {
	return b.PushIdent(alias).PushStr(".").PushIdent(column)
}

// WithTableAliasMap runs fn with aliases overlaid for the duration of the
// call, then restores the previous mapping. Used by Select.Build to make a
// sub-selected table's columns resolve through its alias within that
// select's own clauses.
func (b *Builder) WithTableAliasMap(overlay map[catalog.TableId]string, fn func(b *Builder)) {
	prev := b.aliases
	merged := make(map[catalog.TableId]string, len(prev)+len(overlay))
	for k, v := range prev {
		merged[k] = v
	}
	for k, v := range overlay {
		merged[k] = v
	}
	b.aliases = merged
	fn(b)
	b.aliases = prev
}

// AliasFor returns the alias registered for table, if any.
func (b *Builder) AliasFor(table catalog.TableId) (string, bool) {
	a, ok := b.aliases[table]
	return a, ok
}

// WithoutFullyQualifiedColumnNames runs fn while suppressing table
// qualification on physical column references (insert.rs's column list).
func (b *Builder) WithoutFullyQualifiedColumnNames(fn func(b *Builder)) {
	prev := b.unqualified
	b.unqualified = true
	fn(b)
	b.unqualified = prev
}

// PushElems renders each item with sep between them.
func PushElems[T ExpressionBuilder](db *catalog.Database, b *Builder, items []T, sep string) {
	for i, item := range items {
		if i > 0 {
			b.PushStr(sep)
		}
		item.Build(db, b)
	}
}

// PushIter is the general form of PushElems for callers that need to render
// something other than an ExpressionBuilder at each position (insert.rs's
// row-by-row VALUES rendering).
func PushIter[T any](b *Builder, items []T, sep string, each func(b *Builder, item T)) {
	for i, item := range items {
		if i > 0 {
			b.PushStr(sep)
		}
		each(b, item)
	}
}

// Build returns the accumulated SQL text and its positional parameters.
func (b *Builder) Build() (string, []any) {
	return b.sb.String(), b.params
}

// ToSQL is a convenience for building a single node end to end.
func ToSQL(db *catalog.Database, node ExpressionBuilder) (string, []any) {
	b := NewBuilder()
	node.Build(db, b)
	return b.Build()
}
