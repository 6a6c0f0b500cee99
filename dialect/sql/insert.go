package sql

import "github.com/exo-run/exoquery/catalog"

// Insert is a concrete INSERT statement (insert.rs's Insert).
type Insert struct {
	Table     catalog.TableId
	Columns   []catalog.ColumnId
	ValuesSeq [][]Column
	Returning []Column
}

func (ins Insert) Build(db *catalog.Database, b *Builder) {
	b.PushStr("INSERT INTO ")
	b.PushStr(db.Table(ins.Table).QualifiedName())

	if len(ins.Columns) == 0 {
		// Every column has a default and the caller supplied no explicit
		// values (e.g. a mutation that only sets foreign keys handled via
		// a template step).
		b.PushStr(" DEFAULT VALUES")
	} else {
		b.PushStr(" (")
		b.WithoutFullyQualifiedColumnNames(func(b *Builder) {
			PushIter(b, ins.Columns, ", ", func(b *Builder, id catalog.ColumnId) {
				b.PushIdent(db.Column(id).Name)
			})
		})
		b.PushStr(") VALUES (")
		PushIter(b, ins.ValuesSeq, "), (", func(b *Builder, row []Column) {
			PushElems(db, b, row, ", ")
		})
		b.PushStr(")")
	}

	if len(ins.Returning) > 0 {
		b.PushStr(" RETURNING ")
		PushElems(db, b, ins.Returning, ", ")
	}
}

// TemplateInsert is an Insert whose row values are not fully known until a
// prior transaction step has executed: some cells are ProxyColumn.Template,
// resolved once against that step's returned rows (insert.rs's
// TemplateInsert). One TemplateInsert expands into one row per row of the
// step it depends on.
type TemplateInsert struct {
	Table        catalog.TableId
	Columns      []catalog.ColumnId
	RowTemplate  []ProxyColumn
	DependsOn    StepID
	Returning    []Column
}

func (t TemplateInsert) hasTemplateColumns() bool {
	for _, c := range t.RowTemplate {
		if c.Concrete == nil {
			return true
		}
	}
	return false
}

// Resolve expands RowTemplate into one row per row DependsOn produced. It
// returns (nil, false) when the template has unresolved columns and the
// dependency produced zero rows — e.g. updating concert_artists while
// updating concerts, when no concerts matched the update's predicate: there
// is nothing to key the child update off of, so the step is skipped
// entirely rather than emitting "INSERT INTO concert_artists DEFAULT
// VALUES" once per nonexistent row.
func (t TemplateInsert) Resolve(resolver ValueResolver) (*Insert, bool) {
	rowCount := resolver.RowCount(t.DependsOn)
	if t.hasTemplateColumns() && rowCount == 0 {
		return nil, false
	}

	valuesSeq := make([][]Column, 0, rowCount)
	for row := 0; row < rowCount; row++ {
		values := make([]Column, len(t.RowTemplate))
		for i, proxy := range t.RowTemplate {
			values[i] = proxy.resolve(row, resolver)
		}
		valuesSeq = append(valuesSeq, values)
	}

	return &Insert{
		Table:     t.Table,
		Columns:   t.Columns,
		ValuesSeq: valuesSeq,
		Returning: t.Returning,
	}, true
}
