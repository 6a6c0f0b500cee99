// Package txscript is the transaction script runtime (spec.md §4.4, C6):
// it executes a plan.MutationScript one step at a time against a single
// database transaction, resolving template steps against the output of
// the steps they depend on, then runs the mutation's trailing read-back
// select once the root step's returned primary keys are known.
package txscript

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	exoquery "github.com/exo-run/exoquery"
	"github.com/exo-run/exoquery/catalog"
	dsql "github.com/exo-run/exoquery/dialect/sql"
	"github.com/exo-run/exoquery/plan"
)

// Holder owns one open transaction for the lifetime of a request's
// mutations, mirroring the original TransactionHolder (database_executor.rs)
// but with ordinary Go ownership instead of the original's self-referential
// pointer juggling: *sql.Tx is held directly, and finalized is guarded by a
// mutex rather than an atomic flag, since there is no lifetime problem here
// to work around.
//
// Holder runs over database/sql rather than pgx's native Tx type, via the
// github.com/jackc/pgx/v5/stdlib driver: this lets go-sqlmock (which mocks
// database/sql, not pgx's own Rows/Tx interfaces) exercise it in tests
// while production code still runs on pgx underneath.
type Holder struct {
	db *catalog.Database
	tx *sql.Tx

	mu        sync.Mutex
	finalized bool
	rows      map[dsql.StepID][][]any
}

// Begin opens a transaction on conn and returns a Holder ready to execute
// mutation scripts on it.
func Begin(ctx context.Context, conn *sql.DB, db *catalog.Database) (*Holder, error) {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, exoquery.NewTransactionError(fmt.Sprintf("starting transaction: %v", err))
	}
	return &Holder{db: db, tx: tx, rows: map[dsql.StepID][][]any{}}, nil
}

// RowCount implements dsql.ValueResolver.
func (h *Holder) RowCount(step dsql.StepID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rows[step])
}

// ResolveValue implements dsql.ValueResolver.
func (h *Holder) ResolveValue(step dsql.StepID, row, col int) any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rows[step][row][col]
}

// Execute runs every step of script in order on this Holder's transaction,
// resolving template steps as prior steps' rows become available, then
// runs script's trailing read-back select and returns its rows. It does not
// finalize the transaction — call Finalize once the caller's whole
// GraphQL document (which may span several mutations sharing this Holder)
// has resolved.
func (h *Holder) Execute(ctx context.Context, script *plan.MutationScript) ([][]any, error) {
	for i, step := range script.Steps {
		stepID := dsql.StepID(i)
		if err := h.execStep(ctx, stepID, step); err != nil {
			return nil, err
		}
	}

	h.mu.Lock()
	rootRows := h.rows[script.RootStep]
	h.mu.Unlock()

	pkValues := make([]any, len(rootRows))
	for i, row := range rootRows {
		pkValues[i] = row[script.RootPKIndex]
	}

	trailingSelect, err := script.TrailingSelect(pkValues)
	if err != nil {
		return nil, exoquery.NewInternalError(fmt.Errorf("building trailing select: %w", err))
	}

	trailingStep := dsql.StepID(len(script.Steps))
	if err := h.runQuery(ctx, trailingStep, *trailingSelect); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rows[trailingStep], nil
}

func (h *Holder) execStep(ctx context.Context, stepID dsql.StepID, step plan.MutationStep) error {
	switch step.Kind {
	case plan.StepConcreteInsert:
		return h.runQuery(ctx, stepID, *step.Insert)
	case plan.StepConcreteUpdate:
		return h.runQuery(ctx, stepID, *step.Update)
	case plan.StepConcreteDelete:
		return h.runQuery(ctx, stepID, *step.Delete)
	case plan.StepTemplateInsert:
		resolved, ok := step.TemplateInsert.Resolve(h)
		if !ok {
			h.recordEmpty(stepID)
			return nil
		}
		return h.runQuery(ctx, stepID, *resolved)
	case plan.StepTemplateUpdate:
		resolved, ok := step.TemplateUpdate.Resolve(h)
		if !ok {
			h.recordEmpty(stepID)
			return nil
		}
		return h.runQuery(ctx, stepID, *resolved)
	case plan.StepTemplateDelete:
		resolved, ok := step.TemplateDelete.Resolve(h)
		if !ok {
			h.recordEmpty(stepID)
			return nil
		}
		return h.runQuery(ctx, stepID, *resolved)
	default:
		return exoquery.NewInternalError(fmt.Errorf("txscript: unhandled mutation step kind %v", step.Kind))
	}
}

// recordEmpty marks stepID as having produced zero rows, so a step keyed
// off it (e.g. a grandchild template) also elides rather than panicking on
// a missing map entry.
func (h *Holder) recordEmpty(stepID dsql.StepID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rows[stepID] = nil
}

func (h *Holder) runQuery(ctx context.Context, stepID dsql.StepID, node dsql.ExpressionBuilder) error {
	captured, err := h.RunRaw(ctx, node)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.rows[stepID] = captured
	h.mu.Unlock()
	return nil
}

// RunRaw executes node on this Holder's transaction and returns its rows,
// without recording them under any step id. Package resolver uses this for
// plain reads (a GraphQL query field has no template steps depending on its
// output), sharing the same transaction as any mutations on this Holder per
// spec.md §5's "one transaction per request".
func (h *Holder) RunRaw(ctx context.Context, node dsql.ExpressionBuilder) ([][]any, error) {
	sqlText, params := dsql.ToSQL(h.db, node)

	rows, err := h.tx.QueryContext(ctx, sqlText, params...)
	if err != nil {
		return nil, exoquery.NewDatabaseError(sqlText, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, exoquery.NewDatabaseError(sqlText, err)
	}

	captured := make([][]any, 0)
	for rows.Next() {
		dest := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range dest {
			ptrs[i] = &dest[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, exoquery.NewDatabaseError(sqlText, err)
		}
		captured = append(captured, dest)
	}
	if err := rows.Err(); err != nil {
		return nil, exoquery.NewDatabaseError(sqlText, err)
	}
	return captured, nil
}

// Finalize commits or rolls back the held transaction. Finalizing twice is
// an error; the caller owns calling it exactly once (package server's
// request handlers call it after the whole operation has resolved).
func (h *Holder) Finalize(commit bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.finalized {
		return exoquery.NewTransactionError("finalize called twice on the same transaction holder")
	}
	h.finalized = true

	if commit {
		if err := h.tx.Commit(); err != nil {
			return exoquery.NewTransactionError(fmt.Sprintf("commit: %v", err))
		}
		return nil
	}
	if err := h.tx.Rollback(); err != nil {
		return exoquery.NewTransactionError(fmt.Sprintf("rollback: %v", err))
	}
	return nil
}
