package sql

import "github.com/exo-run/exoquery/catalog"

// ColumnValuePair is one "column = value" assignment of an UPDATE's SET
// clause.
type ColumnValuePair struct {
	Column catalog.ColumnId
	Value  Column
}

// Update is a concrete UPDATE statement.
type Update struct {
	Table     catalog.TableId
	Set       []ColumnValuePair
	Predicate ConcretePredicate
	Returning []Column
}

func (u Update) Build(db *catalog.Database, b *Builder) {
	b.PushStr("UPDATE ")
	b.PushStr(db.Table(u.Table).QualifiedName())
	b.PushStr(" SET ")
	b.WithoutFullyQualifiedColumnNames(func(b *Builder) {
		PushIter(b, u.Set, ", ", func(b *Builder, pair ColumnValuePair) {
			b.PushIdent(db.Column(pair.Column).Name)
			b.PushStr(" = ")
			pair.Value.Build(db, b)
		})
	})
	if u.Predicate.Op != PredTrue {
		b.PushStr(" WHERE ")
		u.Predicate.Build(db, b)
	}
	if len(u.Returning) > 0 {
		b.PushStr(" RETURNING ")
		PushElems(db, b, u.Returning, ", ")
	}
}

// TemplateUpdate is an Update whose SET values and/or predicate depend on a
// prior step's output, e.g. "set venue_id = $1" where $1 is the id a
// preceding INSERT returned. Unlike TemplateInsert, a template update
// always targets exactly one resolved statement: its WHERE clause, not its
// row count, determines how many rows it touches.
type TemplateUpdate struct {
	Table            catalog.TableId
	SetTemplate      []TemplateColumnValuePair
	DependsOn        StepID
	ResolvePredicate func(resolver ValueResolver) ConcretePredicate
	Returning        []Column
}

// TemplateColumnValuePair is one "column = <proxy>" assignment of a
// TemplateUpdate's SET clause.
type TemplateColumnValuePair struct {
	Column catalog.ColumnId
	Value  ProxyColumn
}

// Resolve expands SetTemplate's proxy values against row 0 of DependsOn's
// output (an update step depends on a single prior row, typically a
// just-inserted parent). It returns false when DependsOn produced no rows,
// mirroring TemplateInsert's elision rule.
func (t TemplateUpdate) Resolve(resolver ValueResolver) (*Update, bool) {
	if resolver.RowCount(t.DependsOn) == 0 {
		return nil, false
	}

	set := make([]ColumnValuePair, len(t.SetTemplate))
	for i, s := range t.SetTemplate {
		set[i] = ColumnValuePair{Column: s.Column, Value: s.Value.resolve(0, resolver)}
	}

	predicate := True
	if t.ResolvePredicate != nil {
		predicate = t.ResolvePredicate(resolver)
	}

	return &Update{Table: t.Table, Set: set, Predicate: predicate, Returning: t.Returning}, true
}
