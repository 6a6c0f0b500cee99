package abstract

import (
	"github.com/exo-run/exoquery/catalog"
	dsql "github.com/exo-run/exoquery/dialect/sql"
)

// ColumnPathKind discriminates ColumnPath, mirroring the original's
// ColumnPath enum: a reference either walks the catalog's foreign-key graph
// down to a leaf column (Physical), is a bound literal (Param), or stands
// for SQL NULL.
type ColumnPathKind int

const (
	ColumnPathPhysical ColumnPathKind = iota
	ColumnPathParam
	ColumnPathNull
)

// ColumnPath is how every operand in this package's predicates and
// selections refers to a value: never a bare catalog.ColumnId, because a
// GraphQL field two hops across a relation (e.g. "concert.venue.name")
// needs to carry the whole hop sequence for the planner to turn into joins
// or subselects later (package plan).
type ColumnPath struct {
	Kind     ColumnPathKind
	Physical *PhysicalColumnPath
	Param    dsql.Value
}

// NewPhysicalColumnPath wraps a non-empty link chain.
func NewPhysicalColumnPath(links ...ColumnPathLink) ColumnPath {
	if len(links) == 0 {
		panic("abstract: PhysicalColumnPath requires at least one link")
	}
	return ColumnPath{Kind: ColumnPathPhysical, Physical: &PhysicalColumnPath{Links: links}}
}

// LeafColumnPath is the common case: a direct reference to a column of the
// "current" table, with no relation hops.
func LeafColumnPath(id catalog.ColumnId) ColumnPath {
	return NewPhysicalColumnPath(LeafLink(id))
}

// ParamColumnPath wraps a bound literal operand (spec.md §4's argument
// literals, already coerced to the target column's type by the resolver).
func ParamColumnPath(v dsql.Value) ColumnPath {
	return ColumnPath{Kind: ColumnPathParam, Param: v}
}

// NullColumnPath stands for a literal SQL NULL operand.
func NullColumnPath() ColumnPath { return ColumnPath{Kind: ColumnPathNull} }

// PhysicalColumnPath is a non-empty chain of hops through the catalog's
// foreign-key graph, ending in a Leaf. Every link but the last is a
// Relation hop.
type PhysicalColumnPath struct {
	Links []ColumnPathLink
}

// Head returns the first link of the chain.
func (p *PhysicalColumnPath) Head() ColumnPathLink { return p.Links[0] }

// Tail returns the chain with its head removed, and whether one remains.
// A chain of length 1 (a bare Leaf) has no tail; callers that reach this
// case on a Relation head have a malformed path (a programming error, not
// a user error), matching the original's `.tail().unwrap()`.
func (p *PhysicalColumnPath) Tail() (*PhysicalColumnPath, bool) {
	if len(p.Links) <= 1 {
		return nil, false
	}
	return &PhysicalColumnPath{Links: p.Links[1:]}, true
}

// Leaf returns the final link's column id. Panics if the chain's last link
// is not a Leaf, which NewPhysicalColumnPath's callers must never produce.
func (p *PhysicalColumnPath) Leaf() catalog.ColumnId {
	last := p.Links[len(p.Links)-1]
	if last.Kind != LinkLeaf {
		panic("abstract: malformed PhysicalColumnPath: last link is not a Leaf")
	}
	return last.Leaf
}

// ColumnPathLinkKind discriminates ColumnPathLink.
type ColumnPathLinkKind int

const (
	LinkRelation ColumnPathLinkKind = iota
	LinkLeaf
)

// ColumnPathLink is one hop of a PhysicalColumnPath: either a relation
// traversal (follow a foreign key to another table) or the terminal column.
type ColumnPathLink struct {
	Kind     ColumnPathLinkKind
	Relation RelationLink
	Leaf     catalog.ColumnId
}

// LeafLink builds the terminal link of a path, naming the column itself.
func LeafLink(id catalog.ColumnId) ColumnPathLink {
	return ColumnPathLink{Kind: LinkLeaf, Leaf: id}
}

func RelationHop(link RelationLink) ColumnPathLink {
	return ColumnPathLink{Kind: LinkRelation, Relation: link}
}

// RelationLink is one foreign-key hop in a column path: SelfColumn is the
// column on the path's near side (the side the chain is walking from),
// LinkedColumn is the column it references on the far side. Cardinality is
// as seen from SelfColumn's side, matching catalog.ForeignKey.Cardinality.
type RelationLink struct {
	SelfColumn   catalog.ColumnId
	LinkedColumn catalog.ColumnId
	Cardinality  catalog.RelationCardinality
}

func (a RelationLink) Equal(b RelationLink) bool {
	return a.SelfColumn == b.SelfColumn && a.LinkedColumn == b.LinkedColumn && a.Cardinality == b.Cardinality
}
