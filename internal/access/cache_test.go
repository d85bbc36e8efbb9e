package access

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*DecisionCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewDecisionCache(rdb, DefaultDecisionTTL), mr
}

func TestDecisionCacheRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	_, ok, err := cache.Get(ctx, "t1", "u1", "documents", "read")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, cache.Put(ctx, "t1", "u1", "documents", "read", CachedDecision{Allowed: true}))

	got, ok, err := cache.Get(ctx, "t1", "u1", "documents", "read")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, got.Allowed)
}

func TestDecisionCacheKeyIsScopedPerTuple(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, "t1", "u1", "documents", "read", CachedDecision{Allowed: true}))

	for _, tuple := range [][4]string{
		{"t2", "u1", "documents", "read"},
		{"t1", "u2", "documents", "read"},
		{"t1", "u1", "invoices", "read"},
		{"t1", "u1", "documents", "write"},
	} {
		_, ok, err := cache.Get(ctx, tuple[0], tuple[1], tuple[2], tuple[3])
		require.NoError(t, err)
		require.False(t, ok, "tuple %v must not share the cached verdict", tuple)
	}
}

func TestDecisionCacheExpiresAfterTTL(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, "t1", "u1", "documents", "read", CachedDecision{Allowed: true}))

	mr.FastForward(119 * time.Second)
	_, ok, err := cache.Get(ctx, "t1", "u1", "documents", "read")
	require.NoError(t, err)
	require.True(t, ok, "verdict must still be served just before the TTL")

	mr.FastForward(2 * time.Second)
	_, ok, err = cache.Get(ctx, "t1", "u1", "documents", "read")
	require.NoError(t, err)
	require.False(t, ok, "verdict must be gone once the TTL has passed")
}

func TestDecisionCacheCorruptEntryIsAMiss(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("ac:decision:t1:u1:documents:read", "{not json"))

	_, ok, err := cache.Get(ctx, "t1", "u1", "documents", "read")
	require.NoError(t, err)
	require.False(t, ok)
}
