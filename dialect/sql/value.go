package sql

// Value is a single bound parameter: the Go value pgx will send, plus an
// optional explicit Postgres cast to append after its "$n" placeholder.
// The cast is needed where pgx's implicit type inference is wrong or
// ambiguous for this engine's column types — pgvector columns and decoded
// JSON scalars chief among them (postgres-core-builder's
// type_provider/{vector,decimal}.go equivalents).
type Value struct {
	Raw  any
	Cast string // e.g. "vector", "jsonb"; empty means no cast
}

// NewValue wraps a plain Go value with no explicit cast.
func NewValue(raw any) Value { return Value{Raw: raw} }

// NewCastValue wraps a Go value that must be cast to pgType after binding,
// e.g. NewCastValue(v, "vector") renders as "$n::vector".
func NewCastValue(raw any, pgType string) Value { return Value{Raw: raw, Cast: pgType} }

// PushValue pushes v as a parameter, appending its cast suffix if any.
func (b *Builder) PushValue(v Value) *Builder {
	b.PushParam(v.Raw)
	if v.Cast != "" {
		b.PushStr("::").PushStr(v.Cast)
	}
	return b
}
