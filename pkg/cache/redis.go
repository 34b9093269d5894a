package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisCache implements Service using Redis. Values are stored as JSON.
type RedisCache struct {
	client *redis.Client
	prefix string
	held   sync.Map // prefixed key -> *Lock taken through TryLock
}

// NewRedisCache connects and pings Redis. Zero fields fall back to the
// go-redis defaults.
func NewRedisCache(cfg RedisConfig) (*RedisCache, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6379
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "priceopt"
	}
	client := redis.NewClient(cfg.clientOptions())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr(), err)
	}
	return &RedisCache{client: client, prefix: cfg.Prefix}, nil
}

// Client returns underlying redis client.
func (c *RedisCache) Client() *redis.Client {
	return c.client
}

// Key returns the fully prefixed key as stored in Redis.
func (c *RedisCache) Key(key string) string {
	return c.prefix + ":" + key
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return c.client.Set(ctx, c.Key(key), data, expiration).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := c.client.Get(ctx, c.Key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheMiss
		}
		return err
	}
	return json.Unmarshal(data, dest)
}

func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	wrapped := make([]string, len(keys))
	for i, k := range keys {
		wrapped[i] = c.Key(k)
	}
	return c.client.Unlink(ctx, wrapped...).Err()
}

// NewRedisCacheFromClient wraps an existing client without pinging it.
func NewRedisCacheFromClient(client *redis.Client, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	fencedSetScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[3])
else
	redis.call("SET", KEYS[2], ARGV[2])
end
return 1`)
)

// ErrLockLost is returned when a lock expired and may belong to another holder.
var ErrLockLost = errors.New("cache: lock lost")

// Lock is a Redis lock owned through a random token.
type Lock struct {
	c     *RedisCache
	key   string
	token string
}

// Acquire takes key for ttl unless someone holds it. ok is false when the
// lock is taken.
func (c *RedisCache) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lock, bool, error) {
	l := &Lock{c: c, key: c.Key(key), token: uuid.NewString()}
	ok, err := c.client.SetNX(ctx, l.key, l.token, ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}
	return l, true, nil
}

// Release deletes the lock if it still carries this token. It returns
// ErrLockLost otherwise and leaves the key alone.
func (l *Lock) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, l.c.client, []string{l.key}, l.token).Int()
	if err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrLockLost
	}
	return nil
}

// SetIfHeld stores value under key only while the lock is still held.
func (l *Lock) SetIfHeld(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	n, err := fencedSetScript.Run(ctx, l.c.client,
		[]string{l.key, l.c.Key(key)}, l.token, data, expiration.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	if n == 0 {
		return ErrLockLost
	}
	return nil
}

// TryLock and Unlock keep the owning token in process so Unlock never
// deletes a lock another instance took after ours expired.
func (c *RedisCache) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	l, ok, err := c.Acquire(ctx, key, ttl)
	if err != nil || !ok {
		return false, err
	}
	c.held.Store(l.key, l)
	return true, nil
}

func (c *RedisCache) Unlock(ctx context.Context, key string) error {
	v, ok := c.held.LoadAndDelete(c.Key(key))
	if !ok {
		return nil
	}
	err := v.(*Lock).Release(ctx)
	if errors.Is(err, ErrLockLost) {
		return nil
	}
	return err
}
