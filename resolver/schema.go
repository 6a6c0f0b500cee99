package resolver

import (
	"fmt"

	"github.com/exo-run/exoquery/access"
	"github.com/exo-run/exoquery/catalog"
)

// EntityAccess carries the per-operation access rule for one table, per
// spec.md §4.5's example ("read concerts when self.published or
// AuthContext.role == 'admin'"). A nil field means "always allowed" —
// the loader that builds a Schema from the compiled system image
// (package subsystem) is expected to fill in every rule the source
// schema actually declares and leave the rest nil.
type EntityAccess struct {
	Read   *access.Expression
	Create *access.Expression
	Update *access.Expression
	Delete *access.Expression
}

func (e EntityAccess) readRule() access.Expression {
	if e.Read == nil {
		return access.BooleanLiteral(true)
	}
	return *e.Read
}

func (e EntityAccess) createRule() access.Expression {
	if e.Create == nil {
		return access.BooleanLiteral(true)
	}
	return *e.Create
}

func (e EntityAccess) updateRule() access.Expression {
	if e.Update == nil {
		return access.BooleanLiteral(true)
	}
	return *e.Update
}

func (e EntityAccess) deleteRule() access.Expression {
	if e.Delete == nil {
		return access.BooleanLiteral(true)
	}
	return *e.Delete
}

// entity is one registered table's naming and access rule, indexed by the
// pk/collection/mutation field names derived from it.
type entity struct {
	table  catalog.TableId
	access EntityAccess
}

// Schema is the C9 dispatch registry spec.md §4.7 describes: field name
// to table/access lookups, split across the pk-query, collection-query,
// unique-query, aggregate-query, and mutation maps, consulted in that
// priority order for a query field. Field names follow the naming
// convention in naming.go (singularize/pluralize over each table's own
// name); there is no separate schema DSL to compile this from in this
// implementation's scope (that is the build-time compiler spec.md §1
// excludes), so a caller assembles a Schema directly via RegisterEntity.
type Schema struct {
	db *catalog.Database

	pkQueries         map[string]entity
	collectionQueries map[string]entity
	// uniqueQueries is an opt-in registration (RegisterUniqueQuery): the
	// catalog carries no "unique, non-primary-key column" flag to derive
	// this map from automatically (catalog.Column only has PrimaryKey),
	// so a unique query field only exists when a caller names one.
	uniqueQueries map[string]uniqueQuery
	// aggregateQueries is likewise opt-in (RegisterAggregateQuery) and,
	// per DESIGN.md's scope note, only ever answers a row count: neither
	// abstract.Selection nor dialect/sql model a general SQL aggregate
	// function, and spec.md's own scenarios never exercise anything
	// beyond that, so this implementation does not invent a new
	// Selection variant to support sum/avg/etc.
	aggregateQueries map[string]entity

	createMutations map[string]entity
	updateMutations map[string]entity
	deleteMutations map[string]entity
}

type uniqueQuery struct {
	table  catalog.TableId
	column catalog.ColumnId
	access EntityAccess
}

// NewSchema builds an empty registry over db. Call RegisterEntity once
// per table the source schema exposes, then optionally RegisterUniqueQuery
// / RegisterAggregateQuery for any additional fields a particular entity
// needs beyond the five standard ones RegisterEntity derives.
func NewSchema(db *catalog.Database) *Schema {
	return &Schema{
		db:                db,
		pkQueries:         map[string]entity{},
		collectionQueries: map[string]entity{},
		uniqueQueries:     map[string]uniqueQuery{},
		aggregateQueries:  map[string]entity{},
		createMutations:   map[string]entity{},
		updateMutations:   map[string]entity{},
		deleteMutations:   map[string]entity{},
	}
}

// RegisterEntity derives table's standard field names (pk query, collection
// query, create/update/delete mutations) and adds them under access. A
// table named "concerts" yields query fields "concert"/"concerts" and
// mutation fields "createConcert"/"updateConcert"/"deleteConcert".
func (s *Schema) RegisterEntity(table catalog.TableId, entityAccess EntityAccess) {
	name := s.db.Table(table).Name
	e := entity{table: table, access: entityAccess}

	s.pkQueries[singularize(name)] = e
	s.collectionQueries[name] = e

	singular := pascalCase(singularize(name))
	s.createMutations["create"+singular] = e
	s.updateMutations["update"+singular] = e
	s.deleteMutations["delete"+singular] = e
}

// RegisterUniqueQuery adds an opt-in field name resolving to a single row
// matched by column = argument, distinct from the pk query (spec.md §4.7's
// unique-query map) — e.g. looking a user up by its unique email column.
func (s *Schema) RegisterUniqueQuery(fieldName string, table catalog.TableId, column catalog.ColumnId, entityAccess EntityAccess) {
	s.uniqueQueries[fieldName] = uniqueQuery{table: table, column: column, access: entityAccess}
}

// RegisterAggregateQuery adds an opt-in field name resolving to a count of
// rows matching the field's "where" argument against table (spec.md §4.7's
// aggregate-query map, scoped to row counts; see the Schema doc comment).
func (s *Schema) RegisterAggregateQuery(fieldName string, table catalog.TableId, entityAccess EntityAccess) {
	s.aggregateQueries[fieldName] = entity{table: table, access: entityAccess}
}

// queryKind is which of the four query maps a field name hit, used so the
// top-level dispatcher knows which resolve_select shape to build.
type queryKind int

const (
	queryPK queryKind = iota
	queryCollection
	queryUnique
	queryAggregate
)

// lookupQuery implements spec.md §4.7's query dispatch priority: pk,
// then collection, then unique, then aggregate; the first hit wins.
func (s *Schema) lookupQuery(name string) (queryKind, catalog.TableId, EntityAccess, *uniqueQuery, bool) {
	if e, ok := s.pkQueries[name]; ok {
		return queryPK, e.table, e.access, nil, true
	}
	if e, ok := s.collectionQueries[name]; ok {
		return queryCollection, e.table, e.access, nil, true
	}
	if u, ok := s.uniqueQueries[name]; ok {
		uu := u
		return queryUnique, u.table, u.access, &uu, true
	}
	if e, ok := s.aggregateQueries[name]; ok {
		return queryAggregate, e.table, e.access, nil, true
	}
	return 0, 0, EntityAccess{}, nil, false
}

type mutationKind int

const (
	mutationCreate mutationKind = iota
	mutationUpdate
	mutationDelete
)

func (s *Schema) lookupMutation(name string) (mutationKind, catalog.TableId, EntityAccess, bool) {
	if e, ok := s.createMutations[name]; ok {
		return mutationCreate, e.table, e.access, true
	}
	if e, ok := s.updateMutations[name]; ok {
		return mutationUpdate, e.table, e.access, true
	}
	if e, ok := s.deleteMutations[name]; ok {
		return mutationDelete, e.table, e.access, true
	}
	return 0, 0, EntityAccess{}, false
}

func (s *Schema) errUnknownField(name string) error {
	return fmt.Errorf("resolver: no query or mutation field named %q", name)
}

// HasQueryField reports whether name resolves through any of the four
// query maps, without performing the lookup's access/table side effects —
// used by package subsystem's SystemRouter to pick which subsystem a
// top-level field belongs to before actually dispatching it.
func (s *Schema) HasQueryField(name string) bool {
	_, _, _, _, found := s.lookupQuery(name)
	return found
}

// HasMutationField reports whether name resolves through any of the three
// mutation maps, for the same reason as HasQueryField.
func (s *Schema) HasMutationField(name string) bool {
	_, _, _, found := s.lookupMutation(name)
	return found
}
