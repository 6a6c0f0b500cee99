package reqcontext

import "context"

// HeaderExtractor resolves a context field from the inbound request's
// headers, matching the header name case-insensitively (spec.md §4.6).
type HeaderExtractor struct{}

func (HeaderExtractor) ExtractContextField(_ context.Context, key string, req *Request) (any, bool, error) {
	if req == nil || req.Headers == nil {
		return nil, false, nil
	}
	// http.Header.Get already canonicalizes the key, giving the
	// case-insensitive match spec.md §4.6 requires.
	v := req.Headers.Get(key)
	if v == "" {
		return nil, false, nil
	}
	return v, true, nil
}

// IPExtractor resolves the connection's peer address.
type IPExtractor struct{}

func (IPExtractor) ExtractContextField(_ context.Context, _ string, req *Request) (any, bool, error) {
	if req == nil || req.ClientIP == "" {
		return nil, false, nil
	}
	return req.ClientIP, true, nil
}
