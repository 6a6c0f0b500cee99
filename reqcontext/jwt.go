package reqcontext

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"

	"github.com/exo-run/exoquery"
)

// JWTExtractor validates the bearer token in the Authorization header and
// resolves a context field from its claims (spec.md §4.6). Exactly one of
// Secret (HS256) or JWKSURL (OIDC) is expected to be set, matching
// EXO_JWT_SECRET/EXO_OIDC_URL's mutual exclusivity (spec.md §6); config
// validates that before constructing this extractor.
type JWTExtractor struct {
	Secret  []byte // HS256 shared secret; nil when using JWKSURL
	JWKSURL string // OIDC issuer JWKS endpoint; empty when using Secret

	jwks *jwksCache
}

// NewJWTExtractorHS256 builds an extractor backed by a shared secret.
func NewJWTExtractorHS256(secret string) *JWTExtractor {
	return &JWTExtractor{Secret: []byte(secret)}
}

// NewJWTExtractorOIDC builds an extractor backed by a JWKS endpoint,
// refreshed on key-id cache miss under a process-wide mutex (spec.md §5:
// "OIDC JWKS has a process-wide cache refreshed on miss under a mutex").
func NewJWTExtractorOIDC(jwksURL string) *JWTExtractor {
	return &JWTExtractor{JWKSURL: jwksURL, jwks: newJWKSCache(jwksURL)}
}

// ExtractContextField returns (nil, false, nil) — anonymous — when there
// is no Authorization header, per spec.md §4.6. An invalid or expired
// token is a typed error (spec.md §7): ExpiredAuthentication when the
// claims parse but exp has passed, Authorization otherwise.
func (j *JWTExtractor) ExtractContextField(ctx context.Context, key string, req *Request) (any, bool, error) {
	if req == nil || req.Headers == nil {
		return nil, false, nil
	}
	authHeader := req.Headers.Get("Authorization")
	if authHeader == "" {
		return nil, false, nil
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, false, exoquery.NewAuthorizationError("malformed Authorization header")
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(parts[1], claims, j.keyFunc(ctx))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, false, exoquery.NewExpiredAuthenticationError()
		}
		return nil, false, exoquery.NewAuthorizationError("invalid token")
	}

	v, ok := claims[key]
	if !ok {
		return nil, false, nil
	}
	return v, true, nil
}

func (j *JWTExtractor) keyFunc(ctx context.Context) jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		if j.Secret != nil {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("reqcontext: unexpected signing method %v", token.Header["alg"])
			}
			return j.Secret, nil
		}

		kid, _ := token.Header["kid"].(string)
		return j.jwks.key(ctx, kid)
	}
}

// jwksCache is the process-wide (not per-request) OIDC public-key cache
// spec.md §5 describes: a map keyed by "kid", refreshed from the JWKS
// endpoint under a mutex whenever a requested kid is not yet cached.
type jwksCache struct {
	url string

	mu   sync.Mutex
	keys map[string]*rsa.PublicKey
}

func newJWKSCache(url string) *jwksCache {
	return &jwksCache{url: url, keys: map[string]*rsa.PublicKey{}}
}

func (c *jwksCache) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	c.mu.Lock()
	k, ok := c.keys[kid]
	c.mu.Unlock()
	if ok {
		return k, nil
	}

	fresh, err := fetchJWKS(ctx, c.url)
	if err != nil {
		return nil, fmt.Errorf("reqcontext: jwks refresh: %w", err)
	}

	c.mu.Lock()
	for id, pk := range fresh {
		c.keys[id] = pk
	}
	k, ok = c.keys[kid]
	c.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("reqcontext: no jwks key for kid %q", kid)
	}
	return k, nil
}

type jwksDocument struct {
	Keys []jwksKey `json:"keys"`
}

type jwksKey struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// fetchJWKS downloads and parses the JWKS document, decoding each RSA
// key's modulus/exponent per RFC 7517. Only RSA (kty "RSA") keys are
// supported, matching the teacher's RS256-only TokenService.
func fetchJWKS(ctx context.Context, url string) (map[string]*rsa.PublicKey, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jwks endpoint returned status %d", resp.StatusCode)
	}

	var doc jwksDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, err
	}

	out := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" || k.Kid == "" {
			continue
		}
		pk, err := rsaPublicKeyFromJWK(k)
		if err != nil {
			continue
		}
		out[k.Kid] = pk
	}
	return out, nil
}

func rsaPublicKeyFromJWK(k jwksKey) (*rsa.PublicKey, error) {
	nBytes, err := base64URLDecode(k.N)
	if err != nil {
		return nil, err
	}
	eBytes, err := base64URLDecode(k.E)
	if err != nil {
		return nil, err
	}
	n := new(big.Int).SetBytes(nBytes)
	e := new(big.Int).SetBytes(eBytes)
	return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
}

func base64URLDecode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}
