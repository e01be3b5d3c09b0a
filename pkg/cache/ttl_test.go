package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, ttl time.Duration) Cache[string] {
	t.Helper()
	c, err := NewTTL[string](context.Background(), ttl, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestTTL_SetGet(t *testing.T) {
	c := newTestCache(t, time.Minute)

	created, err := c.Set("k", "v")
	require.NoError(t, err)
	assert.True(t, created)

	got, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v", got)

	// Updating an existing key is not a creation
	created, err = c.Set("k", "v2")
	require.NoError(t, err)
	assert.False(t, created)

	got, _ = c.Get("k")
	assert.Equal(t, "v2", got)
}

func TestTTL_MissingKey(t *testing.T) {
	c := newTestCache(t, time.Minute)

	_, ok := c.Get("absent")
	assert.False(t, ok)
	assert.Equal(t, int64(1), c.Stats().Misses())
}

func TestTTL_LazyExpiry(t *testing.T) {
	c := newTestCache(t, 20*time.Millisecond)

	_, err := c.Set("k", "v")
	require.NoError(t, err)

	_, ok := c.Get("k")
	assert.True(t, ok)

	time.Sleep(40 * time.Millisecond)

	// Expired entry is deleted on access, not served
	_, ok = c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Size())
	assert.Equal(t, int64(1), c.Stats().Evictions())
}

func TestTTL_BackgroundSweep(t *testing.T) {
	c, err := NewTTL[string](context.Background(), 10*time.Millisecond, 20*time.Millisecond)
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	_, err = c.Set("k", "v")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return c.Size() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestTTL_Delete(t *testing.T) {
	c := newTestCache(t, time.Minute)

	_, err := c.Set("k", "v")
	require.NoError(t, err)

	deleted, err := c.Delete("k")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = c.Delete("k")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestTTL_Clear(t *testing.T) {
	c := newTestCache(t, time.Minute)

	for _, k := range []string{"a", "b", "c"} {
		_, err := c.Set(k, k)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, c.Size())

	require.NoError(t, c.Clear())
	assert.Equal(t, 0, c.Size())
}

func TestTTL_EmptyKeyRejected(t *testing.T) {
	c := newTestCache(t, time.Minute)

	_, err := c.Set("", "v")
	assert.Error(t, err)

	_, err = c.Delete("")
	assert.Error(t, err)
}

func TestTTL_Stats(t *testing.T) {
	c := newTestCache(t, time.Minute)

	_, _ = c.Set("k", "v")
	_, _ = c.Get("k")
	_, _ = c.Get("k")
	_, _ = c.Get("absent")

	stats := c.Stats()
	assert.Equal(t, int64(2), stats.Hits())
	assert.Equal(t, int64(1), stats.Misses())
	assert.Equal(t, int64(1), stats.Sets())
	assert.InDelta(t, 2.0/3.0, stats.HitRate(), 0.001)
}

func TestTTL_ContextStopsSweeper(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c, err := NewTTL[int](ctx, time.Minute, 10*time.Millisecond)
	require.NoError(t, err)

	cancel()
	// Close should return promptly once the sweeper has exited
	assert.NoError(t, c.Close())
}

func TestNoop(t *testing.T) {
	c := NewNoop[string]()

	created, err := c.Set("k", "v")
	require.NoError(t, err)
	assert.False(t, created)

	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Size())
	assert.NoError(t, c.Clear())
	assert.NoError(t, c.Close())
}
