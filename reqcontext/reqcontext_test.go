package reqcontext_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exo-run/exoquery/reqcontext"
)

type countingExtractor struct {
	calls int
	value any
	ok    bool
}

func (c *countingExtractor) ExtractContextField(_ context.Context, _ string, _ *reqcontext.Request) (any, bool, error) {
	c.calls++
	return c.value, c.ok, nil
}

func TestExtractContextFieldIsMemoized(t *testing.T) {
	t.Parallel()

	extractor := &countingExtractor{value: "admin", ok: true}
	rc := reqcontext.New(&reqcontext.Request{}, map[string]reqcontext.Extractor{"custom": extractor})

	v1, ok1, err := rc.ExtractContextField(context.Background(), "custom", []string{"role"})
	require.NoError(t, err)
	assert.True(t, ok1)
	assert.Equal(t, "admin", v1)

	v2, ok2, err := rc.ExtractContextField(context.Background(), "custom", []string{"role"})
	require.NoError(t, err)
	assert.True(t, ok2)
	assert.Equal(t, "admin", v2)

	assert.Equal(t, 1, extractor.calls, "a repeated lookup of the same (annotation, key) must not re-invoke the extractor")
}

func TestExtractContextFieldCachesMisses(t *testing.T) {
	t.Parallel()

	extractor := &countingExtractor{ok: false}
	rc := reqcontext.New(&reqcontext.Request{}, map[string]reqcontext.Extractor{"custom": extractor})

	_, ok, err := rc.ExtractContextField(context.Background(), "custom", []string{"missing"})
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = rc.ExtractContextField(context.Background(), "custom", []string{"missing"})
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, 1, extractor.calls, "a cached miss must still short-circuit the extractor")
}

func TestHeaderExtractorIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	headers := http.Header{}
	headers.Set("X-Tenant-Id", "acme")
	req := &reqcontext.Request{Headers: headers}

	rc := reqcontext.New(req, nil)
	v, ok, err := rc.ExtractContextField(context.Background(), "header", []string{"x-tenant-id"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "acme", v)
}

func TestCookieExtractor(t *testing.T) {
	t.Parallel()

	headers := http.Header{}
	headers.Set("Cookie", "session=abc123; other=x")
	req := &reqcontext.Request{Headers: headers}

	rc := reqcontext.New(req, nil)
	v, ok, err := rc.ExtractContextField(context.Background(), "cookie", []string{"session"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc123", v)
}

func TestIPExtractor(t *testing.T) {
	t.Parallel()

	req := &reqcontext.Request{ClientIP: "10.0.0.5"}
	rc := reqcontext.New(req, nil)
	v, ok, err := rc.ExtractContextField(context.Background(), "ip", []string{"address"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "10.0.0.5", v)
}

func TestMissingAnnotationErrors(t *testing.T) {
	t.Parallel()

	rc := reqcontext.New(&reqcontext.Request{}, nil)
	_, _, err := rc.ExtractContextField(context.Background(), "nonexistent", []string{"x"})
	assert.Error(t, err)
}

func TestNavigatesNestedPath(t *testing.T) {
	t.Parallel()

	extractor := &countingExtractor{ok: true, value: map[string]any{"nested": map[string]any{"deep": "value"}}}
	rc := reqcontext.New(&reqcontext.Request{}, map[string]reqcontext.Extractor{"custom": extractor})

	v, ok, err := rc.ExtractContextField(context.Background(), "custom", []string{"top", "nested", "deep"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "value", v)
}
