package plan

import (
	"fmt"

	"github.com/exo-run/exoquery/abstract"
	"github.com/exo-run/exoquery/catalog"
	dsql "github.com/exo-run/exoquery/dialect/sql"
)

// MutationStepKind discriminates MutationStep.
type MutationStepKind int

const (
	StepConcreteInsert MutationStepKind = iota
	StepConcreteUpdate
	StepConcreteDelete
	StepTemplateInsert
	StepTemplateUpdate
	StepTemplateDelete
)

// MutationStep is one entry of a MutationScript: either a concrete
// operation, or a template operation the transaction runtime (package
// txscript) resolves against a prior step's output once it has run
// (spec.md §4.3/§4.4). Its position within MutationScript.Steps is its
// StepID — steps run strictly sequentially, so position is execution
// order.
type MutationStep struct {
	Kind MutationStepKind

	Insert *dsql.Insert
	Update *dsql.Update
	Delete *dsql.Delete

	TemplateInsert *dsql.TemplateInsert
	TemplateUpdate *dsql.TemplateUpdate
	TemplateDelete *dsql.TemplateDelete
}

// MutationScript is the mutation planner's output: an ordered sequence of
// writes, plus a closure that builds the read-back select once the root
// write's returned primary keys are known (spec.md §4.3: "a delete/
// update/insert step, followed by a select step that reads the resulting
// rows by primary key"). The trailing select isn't itself a MutationStep
// because its predicate depends on concrete values only the transaction
// runtime has, after actually executing the script — a closure avoids
// adding a fourth Template* shape to dialect/sql solely for this one
// caller.
type MutationScript struct {
	Steps          []MutationStep
	TrailingSelect func(pkValues []any) (*dsql.Select, error)
	// RootStep is always 0: the planner always appends the root write
	// first and every template step depends, directly or transitively, on
	// it or a later step.
	RootStep dsql.StepID
	// RootPKIndex is the root step's Returning-column index holding the
	// table's (first) primary key column, the value TrailingSelect's
	// pkValues are gathered from.
	RootPKIndex int
}

func indexOf(ids []catalog.ColumnId, target catalog.ColumnId) (int, bool) {
	for i, id := range ids {
		if id == target {
			return i, true
		}
	}
	return -1, false
}

// buildReturning is the RETURNING column list a write step must carry:
// the table's primary key, plus any column a nested child keys its
// foreign key off of (usually the same primary key, but not necessarily).
func buildReturning(db *catalog.Database, table catalog.TableId, inserts []abstract.NestedInsert, updates []abstract.NestedUpdate, deletes []abstract.NestedDelete) []catalog.ColumnId {
	returning := append([]catalog.ColumnId{}, db.PrimaryKey(table)...)
	add := func(id catalog.ColumnId) {
		if _, ok := indexOf(returning, id); !ok {
			returning = append(returning, id)
		}
	}
	for _, n := range inserts {
		add(n.Relation.SelfColumn)
	}
	for _, n := range updates {
		add(n.Relation.SelfColumn)
	}
	for _, n := range deletes {
		add(n.Relation.SelfColumn)
	}
	return returning
}

func lowerExprToColumn(e abstract.AbstractExpr) dsql.Column {
	switch e.Kind {
	case abstract.ExprParam:
		return dsql.ValueColumn(e.Param)
	case abstract.ExprRaw:
		return dsql.RawColumn(e.Raw)
	default:
		panic("plan: lowerExprToColumn called on an ExprColumn value")
	}
}

func lowerExprToProxy(e abstract.AbstractExpr, dependsOn dsql.StepID, parentReturning []catalog.ColumnId) (dsql.ProxyColumn, error) {
	if e.Kind != abstract.ExprColumn {
		return dsql.ConcreteProxyColumn(lowerExprToColumn(e)), nil
	}
	idx, ok := indexOf(parentReturning, e.ColumnRef)
	if !ok {
		return dsql.ProxyColumn{}, fmt.Errorf("plan: column %v is not in the parent step's returning list", e.ColumnRef)
	}
	return dsql.TemplateProxyColumn(dependsOn, idx), nil
}

// PlanInsert lowers a root AbstractInsert (and its nested one-to-many
// children) into a MutationScript.
func PlanInsert(db *catalog.Database, ins abstract.AbstractInsert) (*MutationScript, error) {
	script := &MutationScript{}
	_, returning, err := planRootInsert(db, ins, script)
	if err != nil {
		return nil, err
	}
	return finishScript(db, ins.Table, ins.Selection, returning, script)
}

// PlanUpdate lowers a root AbstractUpdate (and its nested writes) into a
// MutationScript.
func PlanUpdate(db *catalog.Database, upd abstract.AbstractUpdate) (*MutationScript, error) {
	script := &MutationScript{}
	_, returning, err := planUpdateStep(db, upd, script)
	if err != nil {
		return nil, err
	}
	return finishScript(db, upd.Table, upd.Selection, returning, script)
}

// PlanDelete lowers a root AbstractDelete into a MutationScript.
func PlanDelete(db *catalog.Database, del abstract.AbstractDelete) (*MutationScript, error) {
	script := &MutationScript{}
	returning := db.PrimaryKey(del.Table)
	script.Steps = append(script.Steps, MutationStep{
		Kind: StepConcreteDelete,
		Delete: &dsql.Delete{
			Table:     del.Table,
			Predicate: lowerPredicate(del.Predicate),
			Returning: physicalColumns(returning),
		},
	})
	return finishScript(db, del.Table, del.Selection, returning, script)
}

func finishScript(db *catalog.Database, table catalog.TableId, selection abstract.Selection, returning []catalog.ColumnId, script *MutationScript) (*MutationScript, error) {
	pk := db.PrimaryKey(table)
	if len(pk) == 0 {
		return nil, fmt.Errorf("plan: table has no primary key, cannot build a trailing read-back select")
	}
	pkIdx, ok := indexOf(returning, pk[0])
	if !ok {
		return nil, fmt.Errorf("plan: root step's returning list does not carry the primary key")
	}
	script.RootStep = 0
	script.RootPKIndex = pkIdx
	// A composite primary key's read-back would need a row-value IN
	// comparison this engine's predicate algebra doesn't model; only the
	// first key column is used, the same documented limitation as
	// planKeyRestrictedSelect's.
	script.TrailingSelect = func(pkValues []any) (*dsql.Select, error) {
		sel := abstract.Select{
			Table:     table,
			Selection: selection,
			Predicate: abstract.In(abstract.LeafColumnPath(pk[0]), abstract.ParamColumnPath(dsql.NewValue(pkValues))),
			TopLevel:  true,
		}
		return PlanSelect(db, sel, false)
	}
	return script, nil
}

func planRootInsert(db *catalog.Database, ins abstract.AbstractInsert, script *MutationScript) (dsql.StepID, []catalog.ColumnId, error) {
	for _, cv := range ins.ColumnValues {
		if cv.Value.Kind == abstract.ExprColumn {
			return 0, nil, fmt.Errorf("plan: a root insert's column values cannot reference a prior step")
		}
	}
	returning := buildReturning(db, ins.Table, ins.NestedInserts, nil, nil)

	columns := make([]catalog.ColumnId, len(ins.ColumnValues))
	row := make([]dsql.Column, len(ins.ColumnValues))
	for i, cv := range ins.ColumnValues {
		columns[i] = cv.Column
		row[i] = lowerExprToColumn(cv.Value)
	}

	stepID := dsql.StepID(len(script.Steps))
	script.Steps = append(script.Steps, MutationStep{
		Kind: StepConcreteInsert,
		Insert: &dsql.Insert{
			Table:     ins.Table,
			Columns:   columns,
			ValuesSeq: [][]dsql.Column{row},
			Returning: physicalColumns(returning),
		},
	})

	for _, child := range ins.NestedInserts {
		if err := planNestedInsert(db, child, stepID, returning, script); err != nil {
			return 0, nil, err
		}
	}
	return stepID, returning, nil
}

// planNestedInsert lowers a one-to-many child insert into a TemplateInsert
// depending on parentStep, with the child's foreign key column
// automatically wired to the parent row's relation.SelfColumn (spec.md
// §4.3 Scenario D).
func planNestedInsert(db *catalog.Database, n abstract.NestedInsert, parentStep dsql.StepID, parentReturning []catalog.ColumnId, script *MutationScript) error {
	augmented := append(append([]abstract.ColumnValue{}, n.Insert.ColumnValues...),
		abstract.ColumnValue{Column: n.Relation.LinkedColumn, Value: abstract.ColumnExpr(n.Relation.SelfColumn)})

	columns := make([]catalog.ColumnId, len(augmented))
	row := make([]dsql.ProxyColumn, len(augmented))
	for i, cv := range augmented {
		columns[i] = cv.Column
		proxy, err := lowerExprToProxy(cv.Value, parentStep, parentReturning)
		if err != nil {
			return err
		}
		row[i] = proxy
	}

	returning := buildReturning(db, n.Insert.Table, n.Insert.NestedInserts, nil, nil)
	stepID := dsql.StepID(len(script.Steps))
	script.Steps = append(script.Steps, MutationStep{
		Kind: StepTemplateInsert,
		TemplateInsert: &dsql.TemplateInsert{
			Table:       n.Insert.Table,
			Columns:     columns,
			RowTemplate: row,
			DependsOn:   parentStep,
			Returning:   physicalColumns(returning),
		},
	})

	for _, grandchild := range n.Insert.NestedInserts {
		if err := planNestedInsert(db, grandchild, stepID, returning, script); err != nil {
			return err
		}
	}
	return nil
}

func planUpdateStep(db *catalog.Database, upd abstract.AbstractUpdate, script *MutationScript) (dsql.StepID, []catalog.ColumnId, error) {
	for _, cv := range upd.ColumnValues {
		if cv.Value.Kind == abstract.ExprColumn {
			return 0, nil, fmt.Errorf("plan: a root update's column values cannot reference a prior step")
		}
	}
	returning := buildReturning(db, upd.Table, upd.NestedInserts, upd.NestedUpdates, upd.NestedDeletes)

	set := make([]dsql.ColumnValuePair, len(upd.ColumnValues))
	for i, cv := range upd.ColumnValues {
		set[i] = dsql.ColumnValuePair{Column: cv.Column, Value: lowerExprToColumn(cv.Value)}
	}

	stepID := dsql.StepID(len(script.Steps))
	script.Steps = append(script.Steps, MutationStep{
		Kind: StepConcreteUpdate,
		Update: &dsql.Update{
			Table:     upd.Table,
			Set:       set,
			Predicate: lowerPredicate(upd.Predicate),
			Returning: physicalColumns(returning),
		},
	})

	// Ordering rule (spec.md §4.3): within an update, child inserts run
	// before child deletes. Nested updates run between the two; nothing
	// in the spec orders them relative to either.
	for _, child := range upd.NestedInserts {
		if err := planNestedInsert(db, child, stepID, returning, script); err != nil {
			return 0, nil, err
		}
	}
	for _, child := range upd.NestedUpdates {
		if err := planNestedUpdate(db, child, stepID, returning, script); err != nil {
			return 0, nil, err
		}
	}
	for _, child := range upd.NestedDeletes {
		if err := planNestedDelete(db, child, stepID, returning, script); err != nil {
			return 0, nil, err
		}
	}
	return stepID, returning, nil
}

// parentKeyMembershipPredicate builds "child.fk = ANY($parent pks)" from
// every row the parent step produced, since an update's (or delete's)
// predicate can match more than one row and the exact matched set isn't
// known until that step has run.
func parentKeyMembershipPredicate(parentStep dsql.StepID, parentPkIdx int, fk catalog.ColumnId) func(resolver dsql.ValueResolver) dsql.ConcretePredicate {
	return func(resolver dsql.ValueResolver) dsql.ConcretePredicate {
		rowCount := resolver.RowCount(parentStep)
		values := make([]any, rowCount)
		for i := 0; i < rowCount; i++ {
			values[i] = resolver.ResolveValue(parentStep, i, parentPkIdx)
		}
		return dsql.In(dsql.PhysicalColumn(fk), dsql.ValueColumn(dsql.NewValue(values)))
	}
}

func planNestedUpdate(db *catalog.Database, n abstract.NestedUpdate, parentStep dsql.StepID, parentReturning []catalog.ColumnId, script *MutationScript) error {
	parentPkIdx, ok := indexOf(parentReturning, n.Relation.SelfColumn)
	if !ok {
		return fmt.Errorf("plan: nested update's relation column is not in the parent step's returning list")
	}

	for _, cv := range n.Update.ColumnValues {
		if cv.Value.Kind == abstract.ExprColumn {
			return fmt.Errorf("plan: a nested update's own column values cannot reference a prior step")
		}
	}
	setTemplate := make([]dsql.TemplateColumnValuePair, len(n.Update.ColumnValues))
	for i, cv := range n.Update.ColumnValues {
		setTemplate[i] = dsql.TemplateColumnValuePair{Column: cv.Column, Value: dsql.ConcreteProxyColumn(lowerExprToColumn(cv.Value))}
	}

	childPredicate := lowerPredicate(n.Update.Predicate)
	membership := parentKeyMembershipPredicate(parentStep, parentPkIdx, n.Relation.LinkedColumn)

	returning := buildReturning(db, n.Update.Table, n.Update.NestedInserts, n.Update.NestedUpdates, n.Update.NestedDeletes)
	stepID := dsql.StepID(len(script.Steps))
	script.Steps = append(script.Steps, MutationStep{
		Kind: StepTemplateUpdate,
		TemplateUpdate: &dsql.TemplateUpdate{
			Table:       n.Update.Table,
			SetTemplate: setTemplate,
			DependsOn:   parentStep,
			ResolvePredicate: func(resolver dsql.ValueResolver) dsql.ConcretePredicate {
				return dsql.And(membership(resolver), childPredicate)
			},
			Returning: physicalColumns(returning),
		},
	})

	for _, grandchild := range n.Update.NestedInserts {
		if err := planNestedInsert(db, grandchild, stepID, returning, script); err != nil {
			return err
		}
	}
	for _, grandchild := range n.Update.NestedUpdates {
		if err := planNestedUpdate(db, grandchild, stepID, returning, script); err != nil {
			return err
		}
	}
	for _, grandchild := range n.Update.NestedDeletes {
		if err := planNestedDelete(db, grandchild, stepID, returning, script); err != nil {
			return err
		}
	}
	return nil
}

func planNestedDelete(db *catalog.Database, n abstract.NestedDelete, parentStep dsql.StepID, parentReturning []catalog.ColumnId, script *MutationScript) error {
	parentPkIdx, ok := indexOf(parentReturning, n.Relation.SelfColumn)
	if !ok {
		return fmt.Errorf("plan: nested delete's relation column is not in the parent step's returning list")
	}

	childPredicate := lowerPredicate(n.Delete.Predicate)
	membership := parentKeyMembershipPredicate(parentStep, parentPkIdx, n.Relation.LinkedColumn)

	returning := db.PrimaryKey(n.Delete.Table)
	script.Steps = append(script.Steps, MutationStep{
		Kind: StepTemplateDelete,
		TemplateDelete: &dsql.TemplateDelete{
			Table:     n.Delete.Table,
			DependsOn: parentStep,
			ResolvePredicate: func(resolver dsql.ValueResolver) dsql.ConcretePredicate {
				return dsql.And(membership(resolver), childPredicate)
			},
			Returning: physicalColumns(returning),
		},
	})
	return nil
}
