package sql

import "github.com/exo-run/exoquery/catalog"

// Delete is a concrete DELETE statement.
type Delete struct {
	Table     catalog.TableId
	Predicate ConcretePredicate
	Returning []Column
}

func (d Delete) Build(db *catalog.Database, b *Builder) {
	b.PushStr("DELETE FROM ")
	b.PushStr(db.Table(d.Table).QualifiedName())
	if d.Predicate.Op != PredTrue {
		b.PushStr(" WHERE ")
		d.Predicate.Build(db, b)
	}
	if len(d.Returning) > 0 {
		b.PushStr(" RETURNING ")
		PushElems(db, b, d.Returning, ", ")
	}
}

// TemplateDelete is a Delete whose predicate references a prior step's
// output, e.g. deleting concert_artists rows whose concert_id is in the set
// of ids a preceding "delete concerts" step returned.
type TemplateDelete struct {
	Table            catalog.TableId
	DependsOn        StepID
	ResolvePredicate func(resolver ValueResolver) ConcretePredicate
	Returning        []Column
}

// Resolve builds the concrete Delete. It elides the step when DependsOn
// produced no rows: nothing upstream was deleted/inserted, so there is
// nothing for this child delete to key off of.
func (t TemplateDelete) Resolve(resolver ValueResolver) (*Delete, bool) {
	if resolver.RowCount(t.DependsOn) == 0 {
		return nil, false
	}
	return &Delete{Table: t.Table, Predicate: t.ResolvePredicate(resolver), Returning: t.Returning}, true
}
