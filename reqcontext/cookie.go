package reqcontext

import (
	"context"
	"net/http"
)

// CookieExtractor resolves a context field from the request's Cookie
// header, parsed once per lookup via the standard library's cookie parser
// (spec.md §4.6: "Cookie header parsed once per request" — the outer
// RequestContext cache is what makes this once-per-request in practice,
// since a repeat lookup of the same key never reaches this extractor).
type CookieExtractor struct{}

func (CookieExtractor) ExtractContextField(_ context.Context, key string, req *Request) (any, bool, error) {
	if req == nil || req.Headers == nil {
		return nil, false, nil
	}
	cookieHeader := req.Headers.Get("Cookie")
	if cookieHeader == "" {
		return nil, false, nil
	}

	header := http.Header{}
	header.Add("Cookie", cookieHeader)
	request := http.Request{Header: header}
	cookie, err := request.Cookie(key)
	if err != nil {
		return nil, false, nil
	}
	return cookie.Value, true, nil
}
