package repository

import (
	"context"
	"testing"
	"time"

	"PriceOpt/internal/domain/models"
	"PriceOpt/pkg/cache"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisCache(t *testing.T) *cache.RedisCache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return cache.NewRedisCacheFromClient(client, "test")
}

func TestRedisModelStoreListsUncataloguedModels(t *testing.T) {
	ctx := context.Background()
	s := NewRedisModelStore(newRedisCache(t))

	require.NoError(t, s.SaveProduct(ctx, models.SampleProducts()[0]))
	require.NoError(t, s.SaveElasticity(ctx, "PROD001", models.ElasticityModel{Coefficient: -1.5}))
	require.NoError(t, s.SaveDemand(ctx, "SKU-UNLISTED", models.DemandModel{Alpha: 2, Beta: 1}))

	ids, err := s.ModelIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"PROD001", "SKU-UNLISTED"}, ids)

	d, ok, err := s.GetDemand(ctx, "SKU-UNLISTED")
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 2.0, d.Mean(), 1e-12)
}

func TestRedisLockerExcludesSecondWriter(t *testing.T) {
	ctx := context.Background()
	rc := newRedisCache(t)
	a, b := NewRedisLocker(rc), NewRedisLocker(rc)

	release, err := a.Lock(ctx, "product:PROD001")
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = b.Lock(waitCtx, "product:PROD001")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	releaseB, err := b.Lock(ctx, "product:PROD001")
	require.NoError(t, err)
	releaseB()
}

func TestRedisExperimentStoreUpdate(t *testing.T) {
	ctx := context.Background()
	s := NewRedisExperimentStore(newRedisCache(t))
	require.NoError(t, s.CreateTest(ctx, newTest("t1")))

	_, err := s.UpdateTest(ctx, "t1", func(tt *models.ABTest) error {
		v := tt.Variants["a"]
		v.Impressions = 7
		tt.Variants["a"] = v
		tt.Status = models.TestRunning
		return nil
	})
	require.NoError(t, err)

	got, err := s.GetTest(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, models.TestRunning, got.Status)
	assert.EqualValues(t, 7, got.Variants["a"].Impressions)

	// the lock is free again
	_, err = s.UpdateTest(ctx, "t1", func(*models.ABTest) error { return nil })
	require.NoError(t, err)
}
