package sql

import "github.com/exo-run/exoquery/catalog"

// Select is a concrete SELECT statement (select.rs's Select).
type Select struct {
	Table      Table
	Columns    []Column
	Predicate  ConcretePredicate
	OrderBy    *OrderBy
	GroupBy    *GroupBy
	Limit      *Limit
	Offset     *Offset
	// TopLevelSelection marks the outermost select of a GraphQL operation:
	// its JSON-producing columns get a trailing ::text cast so the driver
	// hands back the already-encoded JSON string instead of a decoded
	// value the resolver would have to re-encode (spec.md §4, C9).
	TopLevelSelection bool
}

func (s Select) Build(db *catalog.Database, b *Builder) {
	overlay := s.Table.aliasMap()

	b.PushStr("SELECT ")
	b.WithTableAliasMap(overlay, func(b *Builder) {
		PushIter(b, s.Columns, ", ", func(b *Builder, col Column) {
			col.Build(db, b)
			if s.TopLevelSelection && col.IsJSON() {
				b.PushStr("::text")
			}
		})
	})

	b.PushStr(" FROM ")
	s.Table.Build(db, b)

	b.WithTableAliasMap(overlay, func(b *Builder) {
		if s.Predicate.Op != PredTrue {
			b.PushStr(" WHERE ")
			s.Predicate.Build(db, b)
		}
		if s.GroupBy != nil {
			b.PushSpace()
			s.GroupBy.Build(db, b)
		}
		if s.OrderBy != nil {
			b.PushSpace()
			s.OrderBy.Build(db, b)
		}
		if s.Limit != nil {
			b.PushSpace()
			s.Limit.Build(db, b)
		}
		if s.Offset != nil {
			b.PushSpace()
			s.Offset.Build(db, b)
		}
	})
}
