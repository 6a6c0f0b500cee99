package sql

import "github.com/exo-run/exoquery/catalog"

// TableKind discriminates Table, mirroring exo-sql's table.rs Table enum.
type TableKind int

const (
	// TablePhysical is a catalog table, optionally under an alias.
	TablePhysical TableKind = iota
	// TableJoin is a two-sided join with an ON predicate.
	TableJoin
	// TableSubSelect is a derived table: "(SELECT ...) AS alias".
	TableSubSelect
)

// JoinKind is the join operator a TableJoin renders.
type JoinKind int

const (
	// JoinLeft is the only join kind the plain-join select strategy emits
	// (spec.md §4.2): rows of the left (one) side must survive even when
	// the right (many) side has no matches, since the right side is
	// aggregated into a JSON array per left row.
	JoinLeft JoinKind = iota
	JoinInner
)

func (k JoinKind) sql() string {
	if k == JoinInner {
		return " JOIN "
	}
	return " LEFT JOIN "
}

// Table is the concrete "thing you can select FROM" node.
type Table struct {
	Kind TableKind

	// Physical/Alias apply to TablePhysical.
	Physical catalog.TableId
	Alias    string

	// Join fields apply to TableJoin.
	JoinLeft      *Table
	JoinRight     *Table
	JoinKind      JoinKind
	JoinPredicate ConcretePredicate

	// SubSelect fields apply to TableSubSelect.
	SubSelect      *Select
	SubSelectAlias string
	// SubSelectTableName is the physical table the subselect ultimately
	// reads from; registering (SubSelectTableName -> SubSelectAlias) in
	// the builder's alias map is what lets the subselect's own predicate
	// and order-by reference the alias (select.rs's table_alias_map).
	SubSelectTableName catalog.TableId
}

// PhysicalTable builds a bare physical table reference.
func PhysicalTable(id catalog.TableId) Table { return Table{Kind: TablePhysical, Physical: id} }

// PhysicalTableAliased builds a physical table reference under an alias.
func PhysicalTableAliased(id catalog.TableId, alias string) Table {
	return Table{Kind: TablePhysical, Physical: id, Alias: alias}
}

// JoinTable builds a two-sided join.
func JoinTable(left, right Table, kind JoinKind, predicate ConcretePredicate) Table {
	return Table{Kind: TableJoin, JoinLeft: &left, JoinRight: &right, JoinKind: kind, JoinPredicate: predicate}
}

// SubSelectTable builds a derived table.
func SubSelectTable(sel *Select, tableName catalog.TableId, alias string) Table {
	return Table{Kind: TableSubSelect, SubSelect: sel, SubSelectTableName: tableName, SubSelectAlias: alias}
}

func (t Table) Build(db *catalog.Database, b *Builder) {
	switch t.Kind {
	case TablePhysical:
		table := db.Table(t.Physical)
		b.PushStr(table.QualifiedName())
		if t.Alias != "" {
			b.PushStr(" AS ").PushIdent(t.Alias)
		}

	case TableJoin:
		t.JoinLeft.Build(db, b)
		b.PushStr(t.JoinKind.sql())
		t.JoinRight.Build(db, b)
		b.PushStr(" ON ")
		t.JoinPredicate.Build(db, b)

	case TableSubSelect:
		b.PushStr("(")
		t.SubSelect.Build(db, b)
		b.PushStr(") AS ").PushIdent(t.SubSelectAlias)
	}
}

// aliasMap returns the (table -> alias) overlay Select.Build must install
// while rendering this table's sibling clauses, so a sub-select's alias is
// visible to the enclosing predicate/order-by/group-by.
func (t Table) aliasMap() map[catalog.TableId]string {
	if t.Kind == TableSubSelect {
		return map[catalog.TableId]string{t.SubSelectTableName: t.SubSelectAlias}
	}
	return nil
}
