package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCache(t *testing.T) (*ResponseCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	cache, err := NewResponseCache(&Config{
		URL:            "redis://" + mr.Addr(),
		MaxConnections: 2,
		MinIdleConns:   1,
		DefaultTTL:     time.Hour,
		KeyPrefix:      "skycast-test",
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })

	return cache, mr
}

func TestResponseCacheRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	key := cache.ResponseKey("Vancouver, Canada", "what's the weather like?")

	_, ok := cache.Get(ctx, key)
	assert.False(t, ok)

	err := cache.Set(ctx, key, &CachedResponse{
		Type:    "weather",
		Message: "Sunny and mild.",
		City:    "Vancouver, Canada",
	})
	require.NoError(t, err)

	cached, ok := cache.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, "weather", cached.Type)
	assert.Equal(t, "Sunny and mild.", cached.Message)
	assert.Equal(t, key, cached.Key)
	assert.False(t, cached.CachedAt.IsZero())
}

func TestResponseKeyDeterministic(t *testing.T) {
	cache, _ := newTestCache(t)

	k1 := cache.ResponseKey("Vancouver, Canada", "forecast?")
	k2 := cache.ResponseKey("Vancouver, Canada", "forecast?")
	k3 := cache.ResponseKey("Paris, France", "forecast?")
	k4 := cache.ResponseKey("", "Vancouver, Canada\x00forecast?")

	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
	// The separator byte keeps (city, message) pairs from aliasing a
	// shifted concatenation.
	assert.NotEqual(t, k1, k4)
}

func TestResponseCacheTTLExpiry(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	key := cache.ResponseKey("", "hello")
	require.NoError(t, cache.Set(ctx, key, &CachedResponse{Type: "chat", Message: "hi"}))

	mr.FastForward(2 * time.Hour)

	_, ok := cache.Get(ctx, key)
	assert.False(t, ok)
}

func TestResponseCacheCorruptedEntryDropped(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	key := cache.ResponseKey("", "broken")
	require.NoError(t, mr.Set(key, "{not json"))

	_, ok := cache.Get(ctx, key)
	assert.False(t, ok)
	// Corrupted entries are deleted on read.
	assert.False(t, mr.Exists(key))
}

func TestResponseCacheClear(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	for _, msg := range []string{"a", "b", "c"} {
		key := cache.ResponseKey("", msg)
		require.NoError(t, cache.Set(ctx, key, &CachedResponse{Type: "chat", Message: msg}))
	}

	require.NoError(t, cache.Clear(ctx))

	_, ok := cache.Get(ctx, cache.ResponseKey("", "a"))
	assert.False(t, ok)
}

func TestResponseCacheStats(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	key := cache.ResponseKey("", "stats")
	require.NoError(t, cache.Set(ctx, key, &CachedResponse{Type: "chat", Message: "x"}))

	cache.Get(ctx, key)
	cache.Get(ctx, cache.ResponseKey("", "missing"))

	stats, err := cache.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 50.0, stats.HitRate, 0.001)
}
