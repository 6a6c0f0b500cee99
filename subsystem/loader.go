package subsystem

import (
	"fmt"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/exo-run/exoquery/catalog"
	"github.com/exo-run/exoquery/resolver"
)

// SystemRouter composes one resolver.Resolver per loaded subsystem behind
// a single dispatch point, per spec.md §4.8's "composes them behind a
// single SystemRouter". A document field is routed to the first
// subsystem (in registration order) whose Schema recognizes it.
type SystemRouter struct {
	order     []string
	resolvers map[string]*resolver.Resolver

	MaxSelectionDepth     int
	IntrospectionMaxDepth int
	IntrospectionEnabled  bool
}

// NewSystemRouter builds an empty router with spec.md §4.8's default
// knobs (max selection depth 5, introspection max depth 15, introspection
// disabled); a caller overrides them from config.Config after construction.
func NewSystemRouter() *SystemRouter {
	return &SystemRouter{
		resolvers:             map[string]*resolver.Resolver{},
		MaxSelectionDepth:     5,
		IntrospectionMaxDepth: 15,
		IntrospectionEnabled:  false,
	}
}

// Register adds a subsystem's resolver under id, in the order subsystems
// are tried for an unclaimed field name.
func (r *SystemRouter) Register(id string, res *resolver.Resolver) {
	if _, exists := r.resolvers[id]; !exists {
		r.order = append(r.order, id)
	}
	r.resolvers[id] = res
}

// Resolver returns the subsystem registered under id, if any.
func (r *SystemRouter) Resolver(id string) (*resolver.Resolver, bool) {
	res, ok := r.resolvers[id]
	return res, ok
}

// Database returns the "postgres" subsystem's catalog, the one database
// package server opens a *sql.DB/txscript.Holder transaction over: every
// subsystem loaded by this package shares that single catalog today,
// since the loader registry only statically links the "postgres" loader
// (see LoadSystem's doc comment).
func (r *SystemRouter) Database() (*catalog.Database, bool) {
	res, ok := r.resolvers["postgres"]
	if !ok {
		return nil, false
	}
	return res.Database(), true
}

// CheckSelectionDepth enforces the MaxSelectionDepth knob (spec.md §4.6's
// "exceeded selection depth" validation error, configured here per §4.8):
// introspection fields (__schema/__type) are checked against
// IntrospectionMaxDepth instead, and are rejected outright regardless of
// depth when IntrospectionEnabled is false.
func (r *SystemRouter) CheckSelectionDepth(field *ast.Field) error {
	if field.Name == "__schema" || field.Name == "__type" {
		if !r.IntrospectionEnabled {
			return fmt.Errorf("subsystem: introspection is disabled")
		}
		if depth := selectionDepth(field.SelectionSet); depth > r.IntrospectionMaxDepth {
			return fmt.Errorf("subsystem: introspection query depth %d exceeds max %d", depth, r.IntrospectionMaxDepth)
		}
		return nil
	}
	if depth := selectionDepth(field.SelectionSet); depth > r.MaxSelectionDepth {
		return fmt.Errorf("subsystem: selection depth %d exceeds max %d", depth, r.MaxSelectionDepth)
	}
	return nil
}

// selectionDepth counts the longest field-nesting chain under set,
// counting the field itself as depth 1 — a scalar leaf field has depth 1,
// one level of nested object selection has depth 2.
func selectionDepth(set ast.SelectionSet) int {
	max := 0
	for _, sel := range set {
		field, ok := sel.(*ast.Field)
		if !ok {
			continue
		}
		if d := selectionDepth(field.SelectionSet); d > max {
			max = d
		}
	}
	return max + 1
}

// Route picks the subsystem resolver that owns op/name, per spec.md §4.8.
// A subscription is rejected by every resolver.Resolver already (spec.md
// §4.7); Route surfaces that case directly rather than scanning subsystems
// for a field that cannot exist under any of them.
func (r *SystemRouter) Route(op ast.Operation, name string) (*resolver.Resolver, bool) {
	if op != ast.Query && op != ast.Mutation {
		return nil, false
	}
	for _, id := range r.order {
		res := r.resolvers[id]
		if res.Handles(op, name) {
			return res, true
		}
	}
	return nil, false
}

// LoadSystem decodes blob as a SerializableSystem and builds a SystemRouter
// from it, dispatching each SerializedSubsystem to the loader registered
// for its id. Per spec.md §4.8, an id with no loader (a dynamically loaded
// subsystem this static binary wasn't built with) is a load-time error,
// matching the original's "finds a loader (statically linked or
// dynamically loaded)" — this implementation only ever statically links
// the "postgres" loader (deno/wasm/introspection are external collaborator
// subsystems spec.md §1 places out of scope; see DESIGN.md).
func LoadSystem(blob []byte) (*SystemRouter, error) {
	sys, err := DecodeSystem(blob)
	if err != nil {
		return nil, err
	}

	router := NewSystemRouter()
	for _, sub := range sys.Subsystems {
		load, ok := loaders[sub.ID]
		if !ok {
			return nil, fmt.Errorf("subsystem: no loader registered for subsystem id %q", sub.ID)
		}
		res, err := load(sub.Bytes)
		if err != nil {
			return nil, fmt.Errorf("subsystem: initializing subsystem %q: %w", sub.ID, err)
		}
		router.Register(sub.ID, res)
	}
	return router, nil
}

// loaderFunc is one subsystem id's init(bytes) contract (spec.md §4.8),
// returning the resolver.Resolver that answers that subsystem's fields.
type loaderFunc func(bytes []byte) (*resolver.Resolver, error)

var loaders = map[string]loaderFunc{
	"postgres": loadPostgresSubsystem,
}

// loadPostgresSubsystem is the "postgres" subsystem's init(bytes): decode
// the image, build the catalog.Database, and register every configured
// entity/unique/aggregate field on a fresh resolver.Schema.
func loadPostgresSubsystem(bytes []byte) (*resolver.Resolver, error) {
	img, err := DecodePostgresImage(bytes)
	if err != nil {
		return nil, err
	}

	db := catalog.NewDatabase(img.Tables)
	schema := resolver.NewSchema(db)

	for _, e := range img.Entities {
		table, ok := db.TableByName("", e.Table)
		if !ok {
			return nil, fmt.Errorf("subsystem: entity config names unknown table %q", e.Table)
		}
		schema.RegisterEntity(table, resolver.EntityAccess{
			Read:   e.Read,
			Create: e.Create,
			Update: e.Update,
			Delete: e.Delete,
		})
	}

	for _, u := range img.UniqueQueries {
		table, ok := db.TableByName("", u.Table)
		if !ok {
			return nil, fmt.Errorf("subsystem: unique query %q names unknown table %q", u.FieldName, u.Table)
		}
		column, ok := db.ColumnByName(table, u.Column)
		if !ok {
			return nil, fmt.Errorf("subsystem: unique query %q names unknown column %q on table %q", u.FieldName, u.Column, u.Table)
		}
		schema.RegisterUniqueQuery(u.FieldName, table, column, resolver.EntityAccess{Read: u.Read})
	}

	for _, a := range img.AggregateQueries {
		table, ok := db.TableByName("", a.Table)
		if !ok {
			return nil, fmt.Errorf("subsystem: aggregate query %q names unknown table %q", a.FieldName, a.Table)
		}
		schema.RegisterAggregateQuery(a.FieldName, table, resolver.EntityAccess{Read: a.Read})
	}

	return resolver.New(schema), nil
}
