package reqcontext

import "context"

// SelfQuery is the recursive GraphQL sub-query callback a QueryExtractor
// needs: spec.md §4.6 describes the `query` annotation as "recursive
// GraphQL sub-query against own router", so the extractor holds a function
// back into the resolver/router (package resolver) rather than a
// transport client, to stay in-process and share the caller's transaction.
type SelfQuery func(ctx context.Context, query string, variables map[string]any) (map[string]any, error)

// QueryExtractor serves @query-derived context fields by re-entering the
// GraphQL router with a caller-supplied document, then extracting key from
// the resulting JSON object (spec.md §4.6).
type QueryExtractor struct {
	Query     string
	Variables map[string]any
	Run       SelfQuery
}

func (q QueryExtractor) ExtractContextField(ctx context.Context, key string, _ *Request) (any, bool, error) {
	if q.Run == nil {
		return nil, false, nil
	}
	result, err := q.Run(ctx, q.Query, q.Variables)
	if err != nil {
		return nil, false, err
	}
	v, ok := result[key]
	if !ok {
		return nil, false, nil
	}
	return v, true, nil
}
