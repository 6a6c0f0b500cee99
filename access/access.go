// Package access implements spec.md §4.5's access solver: a partial
// evaluator that walks a declarative access predicate expression tree and,
// against a concrete request context, reduces it to True, False, or a
// residual abstract.Predicate to AND into a query.
//
// Grounded in original_source's access_solver.rs (solve/solve_logical_op/
// solve_relational_op shape), generalized from its trait-based design to a
// closed Expression tagged union per spec.md §9's "closed sums" guidance,
// and reusing the teacher's privacy package's Allow/Deny/Skip sentinel
// idiom for the compile-time-decidable outcomes.
package access

import (
	"context"
	"fmt"

	"github.com/exo-run/exoquery/abstract"
	"github.com/exo-run/exoquery/reqcontext"
)

// RelationalOp is the closed set of comparison operators an access rule's
// primitive expressions may be related by, mirroring
// core_model::access::AccessRelationalOp.
type RelationalOp int

const (
	OpEq RelationalOp = iota
	OpNeq
	OpLt
	OpLte
	OpGt
	OpGte
	OpIn
)

// LogicalOp is the closed set of boolean connectives, mirroring
// AccessLogicalExpression.
type LogicalOp int

const (
	LogicalAnd LogicalOp = iota
	LogicalOr
	LogicalNot
)

// PrimitiveKind discriminates Primitive, an access rule's leaf operand.
type PrimitiveKind int

const (
	// PrimitiveContext is a ContextSelection, e.g. AuthContext.role.
	PrimitiveContext PrimitiveKind = iota
	// PrimitiveColumn is a reference to a database column, via the same
	// ColumnPath the rest of the query engine uses (self.published).
	PrimitiveColumn
	// PrimitiveLiteral is a constant baked into the access rule's source,
	// e.g. the "admin" in `AuthContext.role == "admin"`.
	PrimitiveLiteral
)

// ContextSelection names a path into a context object, e.g.
// AccessContextSelection{ContextName: "AuthContext", Path: []string{"role"}}
// for `AuthContext.role`.
type ContextSelection struct {
	ContextName string
	Path        []string
}

// Primitive is one leaf operand of a relational op.
type Primitive struct {
	Kind    PrimitiveKind
	Context ContextSelection  // PrimitiveContext
	Column  abstract.ColumnPath // PrimitiveColumn
	Literal any               // PrimitiveLiteral
}

func ContextPrimitive(contextName string, path ...string) Primitive {
	return Primitive{Kind: PrimitiveContext, Context: ContextSelection{ContextName: contextName, Path: path}}
}

func ColumnPrimitive(path abstract.ColumnPath) Primitive {
	return Primitive{Kind: PrimitiveColumn, Column: path}
}

func LiteralPrimitive(v any) Primitive {
	return Primitive{Kind: PrimitiveLiteral, Literal: v}
}

// ExpressionKind discriminates Expression, the access rule AST node.
type ExpressionKind int

const (
	ExprLogicalOp ExpressionKind = iota
	ExprRelationalOp
	ExprBooleanLiteral
)

// Expression is the closed tagged union every access rule compiles to,
// mirroring AccessPredicateExpression<PrimExpr>.
type Expression struct {
	Kind ExpressionKind

	// Logical fields apply to ExprLogicalOp.
	LogicalOp LogicalOp
	Operands  []Expression // And/Or: exactly 2; Not: exactly 1

	// Relational fields apply to ExprRelationalOp.
	RelationalOp RelationalOp
	Left         Primitive
	Right        Primitive

	// Literal applies to ExprBooleanLiteral.
	Literal bool
}

func BooleanLiteral(v bool) Expression { return Expression{Kind: ExprBooleanLiteral, Literal: v} }

func Relational(op RelationalOp, left, right Primitive) Expression {
	return Expression{Kind: ExprRelationalOp, RelationalOp: op, Left: left, Right: right}
}

func And(left, right Expression) Expression {
	return Expression{Kind: ExprLogicalOp, LogicalOp: LogicalAnd, Operands: []Expression{left, right}}
}

func Or(left, right Expression) Expression {
	return Expression{Kind: ExprLogicalOp, LogicalOp: LogicalOr, Operands: []Expression{left, right}}
}

func Not(operand Expression) Expression {
	return Expression{Kind: ExprLogicalOp, LogicalOp: LogicalNot, Operands: []Expression{operand}}
}

// Decision is the solver's output: True, False, or a residual predicate
// that still needs to be AND-ed into the query (spec.md §4.5).
type DecisionKind int

const (
	// DecisionTrue means the rule is unconditionally satisfied given the
	// context; no extra predicate is needed.
	DecisionTrue DecisionKind = iota
	// DecisionFalse means the rule is unconditionally violated; the
	// mutation/query must be rejected or return nothing, never execute
	// with a "no filter" fallback.
	DecisionFalse
	// DecisionResidual means the rule depends on database state the
	// solver can't see yet; Residual carries the SQL predicate to AND in.
	DecisionResidual
)

type Decision struct {
	Kind     DecisionKind
	Residual abstract.Predicate
}

func (d Decision) IsTrue() bool  { return d.Kind == DecisionTrue }
func (d Decision) IsFalse() bool { return d.Kind == DecisionFalse }

// AsPredicate returns the predicate to AND into a query: True/False decide
// to abstract.True/abstract.False, Residual passes its predicate through
// unchanged.
func (d Decision) AsPredicate() abstract.Predicate {
	switch d.Kind {
	case DecisionTrue:
		return abstract.True
	case DecisionFalse:
		return abstract.False
	default:
		return d.Residual
	}
}

func trueDecision() Decision  { return Decision{Kind: DecisionTrue} }
func falseDecision() Decision { return Decision{Kind: DecisionFalse} }
func residual(p abstract.Predicate) Decision {
	return Decision{Kind: DecisionResidual, Residual: p}
}

// Solve partially evaluates expr against ctx, per spec.md §4.5's algorithm:
// BooleanLiteral reduces directly; Not/And/Or recurse and collapse when an
// operand is already decided; a relational op resolves each side (context
// selections become constants via ctx, columns stay symbolic) and either
// evaluates outright or emits a residual abstract.Predicate comparison.
//
// Solve is idempotent: re-solving an already-fully-reduced True/False
// Decision against the same context returns the same Decision, and
// re-solving a residual's underlying Expression again (same ctx) returns an
// identical residual, satisfying spec.md §8 invariant 2 — there is no
// mutable state threaded through a solve call that a second call could see
// differently, besides ctx's own memoizing cache, which by construction
// returns the same value for the same key within one request.
func Solve(ctx context.Context, expr Expression, reqCtx *reqcontext.RequestContext) (Decision, error) {
	switch expr.Kind {
	case ExprBooleanLiteral:
		if expr.Literal {
			return trueDecision(), nil
		}
		return falseDecision(), nil

	case ExprLogicalOp:
		return solveLogicalOp(ctx, expr, reqCtx)

	case ExprRelationalOp:
		return solveRelationalOp(ctx, expr, reqCtx)

	default:
		return falseDecision(), fmt.Errorf("access: unknown expression kind %d", expr.Kind)
	}
}

func solveLogicalOp(ctx context.Context, expr Expression, reqCtx *reqcontext.RequestContext) (Decision, error) {
	switch expr.LogicalOp {
	case LogicalNot:
		underlying, err := Solve(ctx, expr.Operands[0], reqCtx)
		if err != nil {
			return Decision{}, err
		}
		switch underlying.Kind {
		case DecisionTrue:
			return falseDecision(), nil
		case DecisionFalse:
			return trueDecision(), nil
		default:
			return residual(abstract.Not(underlying.Residual)), nil
		}

	case LogicalAnd:
		left, err := Solve(ctx, expr.Operands[0], reqCtx)
		if err != nil {
			return Decision{}, err
		}
		if left.IsFalse() {
			return falseDecision(), nil
		}
		right, err := Solve(ctx, expr.Operands[1], reqCtx)
		if err != nil {
			return Decision{}, err
		}
		if right.IsFalse() {
			return falseDecision(), nil
		}
		if left.IsTrue() {
			return right, nil
		}
		if right.IsTrue() {
			return left, nil
		}
		return residual(abstract.And(left.Residual, right.Residual)), nil

	case LogicalOr:
		left, err := Solve(ctx, expr.Operands[0], reqCtx)
		if err != nil {
			return Decision{}, err
		}
		if left.IsTrue() {
			return trueDecision(), nil
		}
		right, err := Solve(ctx, expr.Operands[1], reqCtx)
		if err != nil {
			return Decision{}, err
		}
		if right.IsTrue() {
			return trueDecision(), nil
		}
		if left.IsFalse() {
			return right, nil
		}
		if right.IsFalse() {
			return left, nil
		}
		return residual(abstract.Or(left.Residual, right.Residual)), nil

	default:
		return falseDecision(), fmt.Errorf("access: unknown logical op %d", expr.LogicalOp)
	}
}

// resolvedOperand is one side of a relational op after context selections
// have been resolved: either a constant value (context selection or
// literal) or a still-symbolic column path.
type resolvedOperand struct {
	isColumn bool
	column   abstract.ColumnPath
	constant any
	isNull   bool
}

func resolveOperand(ctx context.Context, p Primitive, reqCtx *reqcontext.RequestContext) (resolvedOperand, error) {
	switch p.Kind {
	case PrimitiveColumn:
		return resolvedOperand{isColumn: true, column: p.Column}, nil
	case PrimitiveLiteral:
		return resolvedOperand{constant: p.Literal}, nil
	case PrimitiveContext:
		v, ok, err := reqCtx.ExtractContextField(ctx, p.Context.ContextName, p.Context.Path)
		if err != nil {
			return resolvedOperand{}, err
		}
		if !ok {
			return resolvedOperand{isNull: true}, nil
		}
		return resolvedOperand{constant: v}, nil
	default:
		return resolvedOperand{}, fmt.Errorf("access: unknown primitive kind %d", p.Kind)
	}
}

// solveRelationalOp resolves both operands, then:
//   - both constants (or one/both Null): evaluate to True/False directly.
//   - one constant, one column: emit an abstract.Predicate comparison.
//   - both columns: refuse (False) — an access rule comparing two database
//     columns to each other is not something the solver can decide without
//     running the query, and spec.md §4.5 only describes resolving context
//     selections against columns, not column-against-column.
func solveRelationalOp(ctx context.Context, expr Expression, reqCtx *reqcontext.RequestContext) (Decision, error) {
	left, err := resolveOperand(ctx, expr.Left, reqCtx)
	if err != nil {
		return Decision{}, err
	}
	right, err := resolveOperand(ctx, expr.Right, reqCtx)
	if err != nil {
		return Decision{}, err
	}

	if !left.isColumn && !right.isColumn {
		return evalConstant(expr.RelationalOp, left, right)
	}

	if left.isColumn && right.isColumn {
		// Refuse invalid combinations per spec.md §4.5.
		return falseDecision(), nil
	}

	// Exactly one side is a column; build the residual abstract.Predicate
	// with the column on the left (abstract.Predicate's binary ops are not
	// commutative-aware at build time, so normalize to column-op-param,
	// flipping op direction for Lt/Gt/Lte/Gte when the column was on the
	// right).
	col, other, op, flip := left, right, expr.RelationalOp, false
	if right.isColumn {
		col, other, flip = right, left, true
	}
	if flip {
		op = flipRelationalOp(op)
	}

	var paramPath abstract.ColumnPath
	if other.isNull {
		paramPath = abstract.NullColumnPath()
	} else {
		paramPath = abstract.ParamColumnPath(toSQLValue(other.constant))
	}

	pred, err := relationalPredicate(op, col.column, paramPath)
	if err != nil {
		return Decision{}, err
	}
	return residual(pred), nil
}

func flipRelationalOp(op RelationalOp) RelationalOp {
	switch op {
	case OpLt:
		return OpGt
	case OpLte:
		return OpGte
	case OpGt:
		return OpLt
	case OpGte:
		return OpLte
	default:
		return op
	}
}

func relationalPredicate(op RelationalOp, left, right abstract.ColumnPath) (abstract.Predicate, error) {
	switch op {
	case OpEq:
		return abstract.Eq(left, right), nil
	case OpNeq:
		return abstract.Neq(left, right), nil
	case OpLt:
		return abstract.Lt(left, right), nil
	case OpLte:
		return abstract.Lte(left, right), nil
	case OpGt:
		return abstract.Gt(left, right), nil
	case OpGte:
		return abstract.Gte(left, right), nil
	case OpIn:
		return abstract.In(left, right), nil
	default:
		return abstract.Predicate{}, fmt.Errorf("access: unknown relational op %d", op)
	}
}

// evalConstant compares two already-resolved constants (possibly Null)
// directly, per SQL three-valued-logic-adjacent rules simplified to the
// solver's boolean Decision: any comparison touching Null is False, since
// an access rule that reduces to "unknown" must not silently grant access.
func evalConstant(op RelationalOp, left, right resolvedOperand) (Decision, error) {
	if left.isNull || right.isNull {
		return falseDecision(), nil
	}

	cmp, ok := compareValues(left.constant, right.constant)
	if !ok {
		return falseDecision(), nil
	}

	switch op {
	case OpEq:
		return boolDecision(cmp == 0), nil
	case OpNeq:
		return boolDecision(cmp != 0), nil
	case OpLt:
		return boolDecision(cmp < 0), nil
	case OpLte:
		return boolDecision(cmp <= 0), nil
	case OpGt:
		return boolDecision(cmp > 0), nil
	case OpGte:
		return boolDecision(cmp >= 0), nil
	case OpIn:
		return boolDecision(valueInSlice(left.constant, right.constant)), nil
	default:
		return falseDecision(), fmt.Errorf("access: unknown relational op %d", op)
	}
}

func boolDecision(b bool) Decision {
	if b {
		return trueDecision()
	}
	return falseDecision()
}
