package access_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exo-run/exoquery/abstract"
	"github.com/exo-run/exoquery/access"
	"github.com/exo-run/exoquery/catalog"
	dsql "github.com/exo-run/exoquery/dialect/sql"
	"github.com/exo-run/exoquery/reqcontext"
)

// dsqlBuild lowers a leaf-only abstract.Predicate (no relation hops) to
// SQL text/params directly, standing in for the select planner (package
// plan) this test doesn't need: every operand here is either a bare
// column or a parameter.
func dsqlBuild(db *catalog.Database, p abstract.Predicate) (string, []any) {
	return dsql.ToSQL(db, dsqlPredicate(p))
}

func dsqlPredicate(p abstract.Predicate) dsql.ConcretePredicate {
	switch p.Op {
	case abstract.PredTrue:
		return dsql.True
	case abstract.PredFalse:
		return dsql.False
	case abstract.PredEq:
		return dsql.Eq(dsqlOperand(*p.Left), dsqlOperand(*p.Right))
	default:
		panic("dsqlPredicate: unsupported op in test helper")
	}
}

func dsqlOperand(path abstract.ColumnPath) dsql.Column {
	switch path.Kind {
	case abstract.ColumnPathPhysical:
		return dsql.PhysicalColumn(path.Physical.Leaf())
	case abstract.ColumnPathParam:
		return dsql.ValueColumn(path.Param)
	default:
		return dsql.ValueColumn(dsql.NewValue(nil))
	}
}

func concertsDB() (*catalog.Database, catalog.ColumnId, catalog.ColumnId, catalog.ColumnId) {
	db := catalog.NewDatabase([]catalog.Table{
		{
			Name: "concerts",
			Columns: []catalog.Column{
				{Name: "id", Type: catalog.Int32Type(), PrimaryKey: true},
				{Name: "published", Type: catalog.BooleanType()},
				{Name: "owner_id", Type: catalog.Int32Type()},
			},
		},
	})
	tid, _ := db.TableByName("", "concerts")
	return db, catalog.ColumnId{Table: tid, Column: 0}, catalog.ColumnId{Table: tid, Column: 1}, catalog.ColumnId{Table: tid, Column: 2}
}

func withRole(role string) *reqcontext.RequestContext {
	headers := map[string][]string{}
	req := &reqcontext.Request{Headers: headers}
	return reqcontext.New(req, map[string]reqcontext.Extractor{
		"auth": fakeAuthExtractor{role: role},
	})
}

type fakeAuthExtractor struct {
	role string
}

func (f fakeAuthExtractor) ExtractContextField(_ context.Context, key string, _ *reqcontext.Request) (any, bool, error) {
	if key == "role" {
		return f.role, true, nil
	}
	return nil, false, nil
}

// Scenario C of spec.md §8: `read concerts when self.published or
// AuthContext.role == "admin"`.
func scenarioCExpr(_ *catalog.Database, published catalog.ColumnId) access.Expression {
	return access.Or(
		access.Relational(access.OpEq,
			access.ColumnPrimitive(abstract.LeafColumnPath(published)),
			access.LiteralPrimitive(true),
		),
		access.Relational(access.OpEq,
			access.ContextPrimitive("auth", "role"),
			access.LiteralPrimitive("admin"),
		),
	)
}

func TestSolveScenarioCResidualForNonAdmin(t *testing.T) {
	t.Parallel()
	db, _, published, _ := concertsDB()
	expr := scenarioCExpr(db, published)

	decision, err := access.Solve(context.Background(), expr, withRole("user"))
	require.NoError(t, err)
	assert.Equal(t, access.DecisionResidual, decision.Kind)

	sql, params := dsqlBuild(db, decision.AsPredicate())
	assert.Contains(t, sql, `"concerts"."published"`)
	assert.Equal(t, []any{true}, params)
}

func TestSolveScenarioCTrueForAdmin(t *testing.T) {
	t.Parallel()
	db, _, published, _ := concertsDB()
	expr := scenarioCExpr(db, published)

	decision, err := access.Solve(context.Background(), expr, withRole("admin"))
	require.NoError(t, err)
	assert.True(t, decision.IsTrue())
}

func TestSolveAndShortCircuitsOnFalse(t *testing.T) {
	t.Parallel()
	expr := access.And(access.BooleanLiteral(false), access.BooleanLiteral(true))
	decision, err := access.Solve(context.Background(), expr, withRole("user"))
	require.NoError(t, err)
	assert.True(t, decision.IsFalse())
}

func TestSolveNotFlipsTrueFalse(t *testing.T) {
	t.Parallel()
	decision, err := access.Solve(context.Background(), access.Not(access.BooleanLiteral(true)), withRole("user"))
	require.NoError(t, err)
	assert.True(t, decision.IsFalse())
}

func TestSolveColumnVsColumnRefused(t *testing.T) {
	t.Parallel()
	db, _, published, owner := concertsDB()
	_ = db
	expr := access.Relational(access.OpEq,
		access.ColumnPrimitive(abstract.LeafColumnPath(published)),
		access.ColumnPrimitive(abstract.LeafColumnPath(owner)),
	)
	decision, err := access.Solve(context.Background(), expr, withRole("user"))
	require.NoError(t, err)
	assert.True(t, decision.IsFalse())
}

func TestSolveIsIdempotent(t *testing.T) {
	t.Parallel()
	db, _, published, _ := concertsDB()
	expr := scenarioCExpr(db, published)
	rc := withRole("user")

	first, err := access.Solve(context.Background(), expr, rc)
	require.NoError(t, err)
	second, err := access.Solve(context.Background(), expr, rc)
	require.NoError(t, err)

	assert.Equal(t, first.Kind, second.Kind)
	s1, p1 := dsqlBuild(db, first.AsPredicate())
	s2, p2 := dsqlBuild(db, second.AsPredicate())
	assert.Equal(t, s1, s2)
	assert.Equal(t, p1, p2)
}

func TestMissingContextIsNullNotError(t *testing.T) {
	t.Parallel()
	_, _, published, _ := concertsDB()
	expr := access.Relational(access.OpEq,
		access.ContextPrimitive("auth", "nonexistent"),
		access.LiteralPrimitive("admin"),
	)
	_ = published
	decision, err := access.Solve(context.Background(), expr, withRole("user"))
	require.NoError(t, err)
	assert.True(t, decision.IsFalse())
}
