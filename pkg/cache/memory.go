package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// MemoryCache is a size-bounded in-process Service. Values are kept as JSON
// so Get behaves like the Redis implementation.
type MemoryCache struct {
	mu    sync.Mutex
	items *lru.Cache[string, memoryEntry]
	locks map[string]time.Time
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

func NewMemoryCache(opts ...MemoryOption) (*MemoryCache, error) {
	cfg := &LocalConfig{MaxSize: 1000}
	for _, opt := range opts {
		opt(cfg)
	}
	items, err := lru.New[string, memoryEntry](cfg.MaxSize)
	if err != nil {
		return nil, err
	}
	return &MemoryCache{items: items, locks: make(map[string]time.Time)}, nil
}

func (m *MemoryCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	entry := memoryEntry{data: data}
	if expiration > 0 {
		entry.expiresAt = time.Now().Add(expiration)
	}
	m.items.Add(key, entry)
	return nil
}

func (m *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	entry, ok := m.items.Get(key)
	if !ok {
		return ErrCacheMiss
	}
	if entry.expired(time.Now()) {
		m.items.Remove(key)
		return ErrCacheMiss
	}
	return json.Unmarshal(entry.data, dest)
}

func (m *MemoryCache) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		m.items.Remove(k)
	}
	return nil
}

func (m *MemoryCache) TryLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	if until, held := m.locks[key]; held && now.Before(until) {
		return false, nil
	}
	m.locks[key] = now.Add(ttl)
	return true, nil
}

func (m *MemoryCache) Unlock(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.locks, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryCache) Len() int {
	return m.items.Len()
}
