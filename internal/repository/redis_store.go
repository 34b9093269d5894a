package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"PriceOpt/internal/domain/models"
	"PriceOpt/internal/domain/repository"
	"PriceOpt/pkg/cache"
)

const (
	productIndexKey = "index:products"
	testIndexKey    = "index:abtests"
	modelIndexKey   = "index:models"

	lockTTL     = 5 * time.Second
	lockRetry   = 10 * time.Millisecond
	lockMaxWait = 3 * time.Second
)

// RedisModelStore keeps products and models as JSON documents in Redis.
// Every save is a single SET, so readers see whole models only.
type RedisModelStore struct {
	rc *cache.RedisCache
}

func NewRedisModelStore(rc *cache.RedisCache) *RedisModelStore {
	return &RedisModelStore{rc: rc}
}

func (s *RedisModelStore) SaveProduct(ctx context.Context, p models.Product) error {
	if err := s.rc.Set(ctx, cache.Key("product", p.ID), p, 0); err != nil {
		return fmt.Errorf("save product %s: %w", p.ID, err)
	}
	return s.rc.Client().SAdd(ctx, s.rc.Key(productIndexKey), p.ID).Err()
}

func (s *RedisModelStore) GetProduct(ctx context.Context, productID string) (models.Product, error) {
	var p models.Product
	if err := s.rc.Get(ctx, cache.Key("product", productID), &p); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return p, fmt.Errorf("%w: %s", models.ErrProductNotFound, productID)
		}
		return p, fmt.Errorf("get product %s: %w", productID, err)
	}
	return p, nil
}

func (s *RedisModelStore) ListProducts(ctx context.Context) ([]models.Product, error) {
	ids, err := s.rc.Client().SMembers(ctx, s.rc.Key(productIndexKey)).Result()
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	out, err := mgetJSON[models.Product](ctx, s.rc, "product", ids)
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *RedisModelStore) SaveElasticity(ctx context.Context, productID string, m models.ElasticityModel) error {
	if err := s.rc.Set(ctx, cache.Key("model:elasticity", productID), m, 0); err != nil {
		return fmt.Errorf("save elasticity %s: %w", productID, err)
	}
	return s.rc.Client().SAdd(ctx, s.rc.Key(modelIndexKey), productID).Err()
}

func (s *RedisModelStore) GetElasticity(ctx context.Context, productID string) (models.ElasticityModel, bool, error) {
	return getOptional[models.ElasticityModel](ctx, s.rc, cache.Key("model:elasticity", productID))
}

func (s *RedisModelStore) SaveDemand(ctx context.Context, productID string, m models.DemandModel) error {
	if err := s.rc.Set(ctx, cache.Key("model:demand", productID), m, 0); err != nil {
		return fmt.Errorf("save demand %s: %w", productID, err)
	}
	return s.rc.Client().SAdd(ctx, s.rc.Key(modelIndexKey), productID).Err()
}

func (s *RedisModelStore) ModelIDs(ctx context.Context) ([]string, error) {
	ids, err := s.rc.Client().SMembers(ctx, s.rc.Key(modelIndexKey)).Result()
	if err != nil {
		return nil, fmt.Errorf("list model ids: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *RedisModelStore) GetDemand(ctx context.Context, productID string) (models.DemandModel, bool, error) {
	return getOptional[models.DemandModel](ctx, s.rc, cache.Key("model:demand", productID))
}

// RedisExperimentStore keeps A/B tests in Redis and serializes updates of one
// test with a SETNX lock so several service instances can share it.
type RedisExperimentStore struct {
	rc *cache.RedisCache
}

func NewRedisExperimentStore(rc *cache.RedisCache) *RedisExperimentStore {
	return &RedisExperimentStore{rc: rc}
}

func (s *RedisExperimentStore) CreateTest(ctx context.Context, t *models.ABTest) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	created, err := s.rc.Client().SetNX(ctx, s.rc.Key(cache.Key("abtest", t.ID)), data, 0).Result()
	if err != nil {
		return fmt.Errorf("create test %s: %w", t.ID, err)
	}
	if !created {
		return fmt.Errorf("%w: test %s already exists", models.ErrInvalidInput, t.ID)
	}
	return s.rc.Client().SAdd(ctx, s.rc.Key(testIndexKey), t.ID).Err()
}

func (s *RedisExperimentStore) GetTest(ctx context.Context, testID string) (*models.ABTest, error) {
	var t models.ABTest
	if err := s.rc.Get(ctx, cache.Key("abtest", testID), &t); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, fmt.Errorf("%w: %s", models.ErrTestNotFound, testID)
		}
		return nil, fmt.Errorf("get test %s: %w", testID, err)
	}
	return &t, nil
}

func (s *RedisExperimentStore) UpdateTest(ctx context.Context, testID string, fn func(*models.ABTest) error) (*models.ABTest, error) {
	lock, err := acquire(ctx, s.rc, cache.Key("lock:abtest", testID))
	if err != nil {
		return nil, err
	}
	defer func() { _ = lock.Release(context.WithoutCancel(ctx)) }()

	t, err := s.GetTest(ctx, testID)
	if err != nil {
		return nil, err
	}
	if err := fn(t); err != nil {
		return nil, err
	}
	// A lock that expired mid-update must not overwrite the next holder's write.
	if err := lock.SetIfHeld(ctx, cache.Key("abtest", testID), t, 0); err != nil {
		return nil, fmt.Errorf("save test %s: %w", testID, err)
	}
	return t, nil
}

func (s *RedisExperimentStore) ListTests(ctx context.Context) ([]*models.ABTest, error) {
	ids, err := s.rc.Client().SMembers(ctx, s.rc.Key(testIndexKey)).Result()
	if err != nil {
		return nil, fmt.Errorf("list tests: %w", err)
	}
	tests, err := mgetJSON[models.ABTest](ctx, s.rc, "abtest", ids)
	if err != nil {
		return nil, err
	}
	out := make([]*models.ABTest, len(tests))
	for i := range tests {
		out[i] = &tests[i]
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// RedisLocker is the cross-instance Locker for model writers.
type RedisLocker struct {
	rc *cache.RedisCache
}

func NewRedisLocker(rc *cache.RedisCache) *RedisLocker {
	return &RedisLocker{rc: rc}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	lock, err := acquire(ctx, l.rc, cache.Key("lock", key))
	if err != nil {
		return nil, err
	}
	return func() { _ = lock.Release(context.WithoutCancel(ctx)) }, nil
}

// acquire polls for key until it is free, lockMaxWait passes or ctx ends.
func acquire(ctx context.Context, rc *cache.RedisCache, key string) (*cache.Lock, error) {
	deadline := time.Now().Add(lockMaxWait)
	for {
		lock, ok, err := rc.Acquire(ctx, key, lockTTL)
		if err != nil {
			return nil, fmt.Errorf("lock %s: %w", key, err)
		}
		if ok {
			return lock, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("lock %s: timed out after %s", key, lockMaxWait)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetry):
		}
	}
}

func getOptional[T any](ctx context.Context, rc *cache.RedisCache, key string) (T, bool, error) {
	var v T
	err := rc.Get(ctx, key, &v)
	switch {
	case err == nil:
		return v, true, nil
	case errors.Is(err, cache.ErrCacheMiss):
		return v, false, nil
	default:
		return v, false, fmt.Errorf("get %s: %w", key, err)
	}
}

// mgetJSON loads the documents prefix:id for ids, skipping ids whose key has vanished.
func mgetJSON[T any](ctx context.Context, rc *cache.RedisCache, prefix string, ids []string) ([]T, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = rc.Key(cache.Key(prefix, id))
	}
	raw, err := rc.Client().MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget %s: %w", prefix, err)
	}
	out := make([]T, 0, len(raw))
	for i, r := range raw {
		str, ok := r.(string)
		if !ok {
			continue
		}
		var v T
		if err := json.Unmarshal([]byte(str), &v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", keys[i], err)
		}
		out = append(out, v)
	}
	return out, nil
}

var (
	_ repository.ModelStore      = (*RedisModelStore)(nil)
	_ repository.ExperimentStore = (*RedisExperimentStore)(nil)
	_ repository.Locker          = (*RedisLocker)(nil)
)
