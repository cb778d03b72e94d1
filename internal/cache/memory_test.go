package cache

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_GetSet(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(10, time.Hour)

	_, err := c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	require.NoError(t, c.Delete(ctx, "k"))
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestMemoryCache_CopiesValue(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(10, time.Hour)

	buf := []byte("abc")
	require.NoError(t, c.Set(ctx, "k", buf, 0))
	buf[0] = 'z'

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)
}

func TestMemoryCache_PerEntryTTL(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(10, time.Hour)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "short", []byte("1"), time.Minute))
	require.NoError(t, c.Set(ctx, "long", []byte("2"), 0))

	now = now.Add(2 * time.Minute)
	_, err := c.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrMiss)
	_, err = c.Get(ctx, "long")
	assert.NoError(t, err)
}

func TestMemoryCache_Bounded(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(3, time.Hour)

	for i := 0; i < 10; i++ {
		require.NoError(t, c.Set(ctx, fmt.Sprintf("k%d", i), []byte{byte(i)}, 0))
	}
	assert.Equal(t, 3, c.Len())

	_, err := c.Get(ctx, "k0")
	assert.ErrorIs(t, err, ErrMiss, "oldest entry evicted")
	_, err = c.Get(ctx, "k9")
	assert.NoError(t, err)
}

func TestRedisCache(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	ctx := context.Background()

	c, err := NewRedis(ctx, RedisConfig{URL: url, TTL: time.Minute, Prefix: "hireready-test:"})
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
	require.NoError(t, c.Delete(ctx, "k"))
}
