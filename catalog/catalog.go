package catalog

import "fmt"

// RelationCardinality classifies a foreign key per spec.md §3.
type RelationCardinality int

const (
	OneToOne RelationCardinality = iota
	ManyToOne
	OneToMany
)

func (c RelationCardinality) String() string {
	switch c {
	case OneToOne:
		return "OneToOne"
	case ManyToOne:
		return "ManyToOne"
	case OneToMany:
		return "OneToMany"
	default:
		return "Unknown"
	}
}

// TableId is a stable index into Database.Tables. It never owns memory;
// it is a plain array index, which is what makes the catalog's
// foreign-key cycles trivial to store and serialize (spec.md §9).
type TableId int

// ColumnId is a stable (table, column) pair.
type ColumnId struct {
	Table  TableId
	Column int
}

func (c ColumnId) String() string {
	return fmt.Sprintf("ColumnId{%d,%d}", c.Table, c.Column)
}

// ForeignKey describes a reference from a column to another table's
// column, with the cardinality of the relation as seen from this column's
// side.
type ForeignKey struct {
	LinkedColumn ColumnId
	Cardinality  RelationCardinality
}

// Column is one column of a Table.
type Column struct {
	Name          string
	Type          PhysicalColumnType
	PrimaryKey    bool
	Autoincrement bool
	Nullable      bool
	Default       string // raw SQL default expression, empty if none
	ForeignKey    *ForeignKey
}

// Table is an ordered collection of columns, optionally namespaced.
type Table struct {
	Schema  string // empty means default/no namespace
	Name    string
	Columns []Column
}

// QualifiedName returns "schema"."name" when Schema is set, else "name".
// Identifiers are case-sensitive and always quoted on emission per
// spec.md §3.
func (t *Table) QualifiedName() string {
	if t.Schema != "" {
		return QuoteIdent(t.Schema) + "." + QuoteIdent(t.Name)
	}
	return QuoteIdent(t.Name)
}

// QuoteIdent double-quotes a Postgres identifier, doubling any embedded
// quote character. This is the only identifier-quoting rule the builder
// (package dialect/sql) relies on.
func QuoteIdent(ident string) string {
	out := make([]byte, 0, len(ident)+2)
	out = append(out, '"')
	for i := 0; i < len(ident); i++ {
		if ident[i] == '"' {
			out = append(out, '"', '"')
		} else {
			out = append(out, ident[i])
		}
	}
	out = append(out, '"')
	return string(out)
}

// Database is the immutable, process-lifetime schema catalog: an ordered
// collection of tables. Constructed once at startup from the deserialized
// system image (package subsystem); never mutated afterward.
type Database struct {
	tables []Table
	// byName indexes (schema, name) -> TableId for Database.TableByName.
	byName map[[2]string]TableId
}

// NewDatabase builds a Database from the given tables, validating that no
// two tables share a (schema, name) pair and that every foreign key points
// at an existing column of an existing table; primary-key flags are not
// checked. It aborts the process (panics) on a malformed catalog,
// per spec.md §4.1 "invalid column index ... is a programming error".
func NewDatabase(tables []Table) *Database {
	db := &Database{
		tables: tables,
		byName: make(map[[2]string]TableId, len(tables)),
	}
	for i, t := range tables {
		key := [2]string{t.Schema, t.Name}
		if _, exists := db.byName[key]; exists {
			panic(fmt.Sprintf("catalog: duplicate table %s.%s", t.Schema, t.Name))
		}
		db.byName[key] = TableId(i)
	}
	db.validate()
	return db
}

func (db *Database) validate() {
	for ti, t := range db.tables {
		for ci, col := range t.Columns {
			if col.ForeignKey != nil {
				fk := col.ForeignKey.LinkedColumn
				if int(fk.Table) < 0 || int(fk.Table) >= len(db.tables) {
					panic(fmt.Sprintf("catalog: column %s.%s references nonexistent table id %d", t.Name, col.Name, fk.Table))
				}
				target := &db.tables[fk.Table]
				if fk.Column < 0 || fk.Column >= len(target.Columns) {
					panic(fmt.Sprintf("catalog: column %s.%s references nonexistent column %d of table %s", t.Name, col.Name, fk.Column, target.Name))
				}
			}
			_ = ci
		}
		_ = ti
	}
}

// TableCount returns the number of tables in the catalog.
func (db *Database) TableCount() int { return len(db.tables) }

// Table returns the table for id. Panics on an out-of-range id: per
// spec.md §4.1, an invalid ColumnId/TableId is a programming error.
func (db *Database) Table(id TableId) *Table {
	if int(id) < 0 || int(id) >= len(db.tables) {
		panic(fmt.Sprintf("catalog: table id %d out of range", id))
	}
	return &db.tables[id]
}

// TableByName looks up a table by (schema, name). The pair uniquely
// identifies a table per spec.md §3.
func (db *Database) TableByName(schema, name string) (TableId, bool) {
	id, ok := db.byName[[2]string{schema, name}]
	return id, ok
}

// Column returns the column referenced by id. Panics on an out-of-range
// id.
func (db *Database) Column(id ColumnId) *Column {
	t := db.Table(id.Table)
	if id.Column < 0 || id.Column >= len(t.Columns) {
		panic(fmt.Sprintf("catalog: column id %d out of range for table %s", id.Column, t.Name))
	}
	return &t.Columns[id.Column]
}

// ColumnByName looks up a column's index within its table by name.
func (db *Database) ColumnByName(table TableId, name string) (ColumnId, bool) {
	t := db.Table(table)
	for i, c := range t.Columns {
		if c.Name == name {
			return ColumnId{Table: table, Column: i}, true
		}
	}
	return ColumnId{}, false
}

// PrimaryKey returns the ordered primary key columns of a table. A table
// may have a composite primary key; spec.md §3 guarantees a table has at
// most one primary key set.
func (db *Database) PrimaryKey(table TableId) []ColumnId {
	t := db.Table(table)
	var pk []ColumnId
	for i, c := range t.Columns {
		if c.PrimaryKey {
			pk = append(pk, ColumnId{Table: table, Column: i})
		}
	}
	return pk
}

// IncomingForeignKeys returns every column, on any table, whose foreign
// key references target. The catalog only stores the many-to-one
// direction of a foreign key on the owning column (spec.md §3); a
// one-to-many navigation (e.g. "venue.concerts") is the reverse of some
// other table's many-to-one column, which this method finds by scanning.
// Used by package plan/resolver to build the ColumnPath.RelationLink for
// a one-to-many GraphQL field.
func (db *Database) IncomingForeignKeys(target ColumnId) []ColumnId {
	var result []ColumnId
	for ti, t := range db.tables {
		for ci, c := range t.Columns {
			if c.ForeignKey != nil && c.ForeignKey.LinkedColumn == target {
				result = append(result, ColumnId{Table: TableId(ti), Column: ci})
			}
		}
	}
	return result
}
