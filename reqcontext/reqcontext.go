// Package reqcontext implements spec.md §4.6/§8's request context: a
// per-request, insert-only cache over pluggable context extractors (jwt,
// header, cookie, ip, env, query), so that an access rule referencing
// AuthContext.role is computed at most once per request regardless of how
// many predicates reference it.
//
// Grounded in original_source's
// crates/common/src/context/user_request_context.rs (the double-Option
// FrozenMap cache) and .../context/provider/{jwt,header,cookie,ip,
// environment,query}.rs for the six extractor contracts.
package reqcontext

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
)

// Request is the inbound request surface an Extractor may read from:
// headers, method, path, query string, client IP, and body — the fields
// spec.md §3's UserRequestContext documents as "a reference to the inbound
// request".
type Request struct {
	Method   string
	Path     string
	RawQuery string
	Headers  http.Header
	ClientIP string
	Body     []byte
}

// Extractor derives a named field's value from the request (or, for some
// annotations, from process state established at startup). key is the
// first segment of the context selection's path (e.g. "role" in
// AuthContext.role); a nil, false return means "no value", not an error —
// spec.md §4.5 treats a missing context as Null, not a failure.
type Extractor interface {
	// ExtractContextField resolves key against req. ctx carries request
	// cancellation (spec.md §5's cancellation propagation) for extractors
	// that may block (the jwt extractor's JWKS refresh, the query
	// extractor's recursive sub-query).
	ExtractContextField(ctx context.Context, key string, req *Request) (value any, ok bool, err error)
}

type cacheKey struct {
	annotation string
	key        string
}

type cacheEntry struct {
	value any
	ok    bool
}

// RequestContext is spec.md §3's UserRequestContext: a frozen
// (insert-only) map from (annotation, field) to a cached value, built once
// per inbound request and discarded at the end of it (never shared across
// requests, per spec.md §5).
type RequestContext struct {
	extractors map[string]Extractor
	request    *Request

	mu    sync.Mutex
	cache map[cacheKey]cacheEntry
}

// startupEnv is the process environment as it stood when this package was
// initialised; every RequestContext shares it.
var startupEnv = NewEnvExtractor()

// New constructs a RequestContext wired with the four request-independent
// standard extractors (header, cookie, ip, env) plus any additional
// extractors the caller supplies in extra, keyed by annotation name (jwt
// and query extractors are only present when passed in extra).
// Extractors passed in extra override a standard one under the same key,
// matching the original's "parsed_contexts.chain(generic_contexts)" order
// (first-registered wins on a key collision — here, explicit entries in
// extra take priority since they are applied after the defaults).
func New(request *Request, extra map[string]Extractor) *RequestContext {
	extractors := map[string]Extractor{
		"header": HeaderExtractor{},
		"cookie": CookieExtractor{},
		"ip":     IPExtractor{},
		"env":    startupEnv,
	}
	for k, v := range extra {
		extractors[k] = v
	}
	return &RequestContext{
		extractors: extractors,
		request:    request,
		cache:      make(map[cacheKey]cacheEntry),
	}
}

// Request returns the inbound request this context was built from.
func (rc *RequestContext) Request() *Request { return rc.request }

// ExtractContextField resolves annotation.path, consulting (and populating)
// the per-request cache keyed by (annotation, joined path). The first
// lookup of a given pair invokes the registered Extractor with path[0] as
// key, then navigates any remaining path segments into the returned value
// if it is a map; every subsequent lookup of the same pair, even one that
// previously resolved to "not found", returns the cached result without
// calling the extractor again (spec.md §8 invariant 6).
func (rc *RequestContext) ExtractContextField(ctx context.Context, annotation string, path []string) (any, bool, error) {
	if len(path) == 0 {
		return nil, false, fmt.Errorf("reqcontext: empty context selection path for annotation %q", annotation)
	}

	ck := cacheKey{annotation: annotation, key: strings.Join(path, ".")}

	rc.mu.Lock()
	if entry, found := rc.cache[ck]; found {
		rc.mu.Unlock()
		return entry.value, entry.ok, nil
	}
	rc.mu.Unlock()

	extractor, found := rc.extractors[annotation]
	if !found {
		return nil, false, fmt.Errorf("reqcontext: no extractor registered for annotation %q", annotation)
	}

	raw, ok, err := extractor.ExtractContextField(ctx, path[0], rc.request)
	if err != nil {
		return nil, false, err
	}

	value, ok := navigate(raw, ok, path[1:])

	rc.mu.Lock()
	// A duplicate concurrent call for the same key is idempotent
	// (spec.md §5): each writer overwrites the entry with an identical
	// result, so no guard is needed — extraction is a
	// pure function of (annotation, key, request).
	rc.cache[ck] = cacheEntry{value: value, ok: ok}
	rc.mu.Unlock()

	return value, ok, nil
}

// navigate walks the remaining path segments into raw when raw is a
// map[string]any, mirroring the original's extract_path recursive helper.
func navigate(raw any, ok bool, rest []string) (any, bool) {
	if !ok {
		return nil, false
	}
	current := raw
	for _, segment := range rest {
		m, isMap := current.(map[string]any)
		if !isMap {
			return nil, false
		}
		v, found := m[segment]
		if !found {
			return nil, false
		}
		current = v
	}
	return current, true
}
