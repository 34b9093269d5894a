package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCacheFromClient(client, "test"), mr
}

func TestExpiredLockCannotTouchNextHolder(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestRedis(t)

	first, ok, err := c.Acquire(ctx, "lock:abtest:t1", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	_, ok, err = c.Acquire(ctx, "lock:abtest:t1", time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	mr.FastForward(2 * time.Second)
	second, ok, err := c.Acquire(ctx, "lock:abtest:t1", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	assert.ErrorIs(t, first.Release(ctx), ErrLockLost)
	assert.True(t, mr.Exists("test:lock:abtest:t1"))
	assert.ErrorIs(t, first.SetIfHeld(ctx, "abtest:t1", map[string]int{"n": 1}, 0), ErrLockLost)
	assert.False(t, mr.Exists("test:abtest:t1"))

	require.NoError(t, second.SetIfHeld(ctx, "abtest:t1", map[string]int{"n": 2}, time.Minute))
	var got map[string]int
	require.NoError(t, c.Get(ctx, "abtest:t1", &got))
	assert.Equal(t, 2, got["n"])
	assert.Equal(t, time.Minute, mr.TTL("test:abtest:t1"))

	require.NoError(t, second.Release(ctx))
	assert.False(t, mr.Exists("test:lock:abtest:t1"))
}

func TestUnlockLeavesForeignLock(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestRedis(t)

	ok, err := c.TryLock(ctx, "job", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)
	other, ok, err := c.Acquire(ctx, "job", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, c.Unlock(ctx, "job"))
	assert.True(t, mr.Exists("test:job"))
	require.NoError(t, c.Unlock(ctx, "never-locked"))

	require.NoError(t, other.Release(ctx))
	ok, err = c.TryLock(ctx, "job", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, c.Unlock(ctx, "job"))
	assert.False(t, mr.Exists("test:job"))
}
