package rediscache

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leofalp/mule/providers/fetch"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cache, err := New(context.Background(), Config{Address: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	return cache, mr
}

func TestNew_RequiresAddress(t *testing.T) {
	_, err := New(context.Background(), Config{})
	assert.Error(t, err)
}

func TestNew_PingFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := New(context.Background(), Config{Address: addr})
	assert.Error(t, err)
}

func TestCache_GetSet(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	value, ok, err := cache.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, value)

	require.NoError(t, cache.Set(ctx, "page", []byte("<p>hi</p>"), time.Minute))

	value, ok, err = cache.Get(ctx, "page")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "<p>hi</p>", string(value))
	assert.Equal(t, time.Minute, mr.TTL("page"))
}

func TestCache_Expiry(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "page", []byte("body"), time.Second))
	mr.FastForward(2 * time.Second)

	_, ok, err := cache.Get(ctx, "page")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_BackingFetcher(t *testing.T) {
	cache, _ := newTestCache(t)

	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		fmt.Fprint(w, "<html><body>page</body></html>")
	}))
	defer server.Close()

	fetcher := fetch.New(fetch.WithCache(cache, time.Hour))
	first := fetcher.Get(context.Background(), server.URL)
	second := fetcher.Get(context.Background(), server.URL)

	assert.True(t, first.OK())
	assert.Equal(t, first.Text(), second.Text())
	assert.Equal(t, 1, hits)
}
