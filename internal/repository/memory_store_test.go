package repository

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"PriceOpt/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryModelStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryModelStore()

	for _, p := range models.SampleProducts() {
		require.NoError(t, s.SaveProduct(ctx, p))
	}
	list, err := s.ListProducts(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "PROD001", list[0].ID)

	_, err = s.GetProduct(ctx, "nope")
	assert.ErrorIs(t, err, models.ErrProductNotFound)

	_, ok, err := s.GetElasticity(ctx, "PROD001")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SaveElasticity(ctx, "PROD001", models.ElasticityModel{Coefficient: -1.5, BaseDemand: 900}))
	m, ok, err := s.GetElasticity(ctx, "PROD001")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, -1.5, m.Coefficient)

	require.NoError(t, s.SaveDemand(ctx, "PROD001", models.DemandModel{Alpha: 3, Beta: 0.5}))
	d, ok, err := s.GetDemand(ctx, "PROD001")
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 6.0, d.Mean(), 1e-12)

	require.NoError(t, s.SaveDemand(ctx, "SKU-UNLISTED", models.DemandModel{Alpha: 1, Beta: 1}))
	ids, err := s.ModelIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"PROD001", "SKU-UNLISTED"}, ids)
}

func newTest(id string) *models.ABTest {
	return &models.ABTest{
		ID:        id,
		ProductID: "PROD001",
		Status:    models.TestInitialized,
		Variants: map[string]models.Variant{
			"a": {Price: 29.99},
			"b": {Price: 31.99},
		},
		CreatedAt: time.Now(),
	}
}

func TestMemoryExperimentStoreIsolation(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryExperimentStore()
	orig := newTest("t1")
	require.NoError(t, s.CreateTest(ctx, orig))
	require.ErrorIs(t, s.CreateTest(ctx, newTest("t1")), models.ErrInvalidInput)

	orig.Variants["a"] = models.Variant{Impressions: 99}
	got, err := s.GetTest(ctx, "t1")
	require.NoError(t, err)
	assert.Zero(t, got.Variants["a"].Impressions)

	_, err = s.GetTest(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrTestNotFound)
}

func TestMemoryExperimentStoreUpdateRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryExperimentStore()
	require.NoError(t, s.CreateTest(ctx, newTest("t1")))

	boom := errors.New("boom")
	_, err := s.UpdateTest(ctx, "t1", func(tt *models.ABTest) error {
		tt.Status = models.TestConcluded
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.GetTest(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, models.TestInitialized, got.Status)
}

func TestMemoryExperimentStoreConcurrentUpdates(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryExperimentStore()
	require.NoError(t, s.CreateTest(ctx, newTest("t1")))

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.UpdateTest(ctx, "t1", func(tt *models.ABTest) error {
				v := tt.Variants["a"]
				v.Impressions++
				tt.Variants["a"] = v
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.GetTest(ctx, "t1")
	require.NoError(t, err)
	assert.EqualValues(t, 50, got.Variants["a"].Impressions)
}

func TestMemoryHistoryStoreFiltersAndBounds(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryHistoryStore(4)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	obs := make([]models.PriceObservation, 0, 6)
	for i := range 6 {
		obs = append(obs, models.PriceObservation{
			ProductID:    "PROD001",
			Timestamp:    base.Add(time.Duration(i) * time.Hour),
			Price:        30,
			QuantitySold: i,
		})
	}
	require.NoError(t, s.AppendObservations(ctx, obs))

	got, err := s.Observations(ctx, "PROD001", base, base.Add(24*time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, 2, got[0].QuantitySold)

	got, err = s.Observations(ctx, "PROD001", base, base.Add(24*time.Hour), 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 5, got[1].QuantitySold)

	require.NoError(t, s.AppendDecision(ctx, models.PricingRecord{ProductID: "PROD001", NewPrice: 31}))
	require.NoError(t, s.AppendDecision(ctx, models.PricingRecord{ProductID: "PROD002", NewPrice: 50}))
	all, err := s.Decisions(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	one, err := s.Decisions(ctx, "PROD002", 0)
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, 50.0, one[0].NewPrice)
}

type capturePublisher struct {
	topic string
	key   string
	value any
}

func (c *capturePublisher) Publish(_ context.Context, topic string, key []byte, value any) error {
	c.topic, c.key, c.value = topic, string(key), value
	return nil
}

func (c *capturePublisher) Close() error { return nil }

func TestKafkaEventPublisherKeysAndTopics(t *testing.T) {
	ctx := context.Background()
	cp := &capturePublisher{}
	p := &KafkaEventPublisher{producer: cp, topics: Topics{}.withDefaults()}

	require.NoError(t, p.PublishDecision(ctx, models.PricingRecord{ProductID: "PROD003", NewPrice: 21}))
	assert.Equal(t, TopicDecisions, cp.topic)
	assert.Equal(t, "PROD003", cp.key)

	require.NoError(t, p.PublishExperiment(ctx, newTest("t9")))
	assert.Equal(t, TopicExperiments, cp.topic)
	assert.Equal(t, "t9", cp.key)
	b, err := json.Marshal(cp.value)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"test_id":"t9"`)
}
