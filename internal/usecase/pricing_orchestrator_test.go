package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"PriceOpt/internal/domain/models"
	"PriceOpt/internal/repository"
	"PriceOpt/internal/services/optimizer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	orch    *PricingOrchestrator
	store   *repository.MemoryModelStore
	tests   *repository.MemoryExperimentStore
	history *repository.MemoryHistoryStore
}

func newFixture(t *testing.T, opts ...OrchestratorOption) *fixture {
	t.Helper()
	f := &fixture{
		store:   repository.NewMemoryModelStore(),
		tests:   repository.NewMemoryExperimentStore(),
		history: repository.NewMemoryHistoryStore(0),
	}
	base := []OrchestratorOption{
		WithSeed(42),
		WithClock(func() time.Time { return testNow }),
		WithABSamples(4000),
	}
	f.orch = NewPricingOrchestrator(f.store, f.tests, f.history, repository.NopPublisher{}, nil, append(base, opts...)...)
	return f
}

// powerLaw returns exact quantities base * (p/ref)^eps for the given prices.
func powerLaw(prices []float64, base, ref, eps float64) []float64 {
	q := make([]float64, len(prices))
	for i, p := range prices {
		q[i] = base * math.Pow(p/ref, eps)
	}
	return q
}

func referenceInput() optimizer.PriceInput {
	return optimizer.PriceInput{
		CurrentPrice:     35.0,
		Cost:             20.0,
		CompetitorPrices: []float64{33.0, 37.0, 36.5},
		Inventory:        450,
		TargetInventory:  400,
	}
}

func trainReference(t *testing.T, f *fixture, productID string) models.ElasticityModel {
	t.Helper()
	prices := []float64{20, 25, 30, 35, 40, 45}
	m, err := f.orch.TrainElasticity(context.Background(), productID, prices, powerLaw(prices, 1200, 35, -1.8))
	require.NoError(t, err)
	return m
}

func TestTrainElasticityStoresModel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	m := trainReference(t, f, "PROD001")
	assert.InDelta(t, -1.8, m.Coefficient, 1e-9)
	assert.InDelta(t, 1.0, m.RSquared, 1e-9)

	stored, ok, err := f.store.GetElasticity(ctx, "PROD001")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, m, stored)

	again := trainReference(t, f, "PROD001")
	assert.Equal(t, m.Coefficient, again.Coefficient)
	assert.Equal(t, m.StandardError, again.StandardError)
}

func TestTrainingRejectsEmptyInput(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.orch.TrainElasticity(ctx, "PROD001", nil, nil)
	require.ErrorIs(t, err, models.ErrInvalidInput)
	_, err = f.orch.FitDemandModel(ctx, "PROD001", []int{})
	require.ErrorIs(t, err, models.ErrInvalidInput)
	_, err = f.orch.TrainElasticity(ctx, "", []float64{1, 2}, []float64{1, 2})
	require.ErrorIs(t, err, models.ErrInvalidInput)

	_, ok, err := f.store.GetElasticity(ctx, "PROD001")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOptimizePriceReferenceScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	trainReference(t, f, "PROD001")

	res, err := f.orch.OptimizePrice(ctx, "PROD001", referenceInput())
	require.NoError(t, err)

	assert.Equal(t, "PROD001", res.ProductID)
	assert.Equal(t, models.SourceTrained, res.ModelSource)
	assert.Greater(t, res.OptimalPrice, 22.0)
	assert.Less(t, res.OptimalPrice, 52.5)
	assert.True(t, res.Bounds.Contains(res.OptimalPrice))
	assert.Greater(t, res.ExpectedRevenue, 0.0)
	assert.Nil(t, res.DemandInterval)

	recs, err := f.history.Decisions(ctx, "PROD001", 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 35.0, recs[0].OldPrice)
	assert.Equal(t, res.OptimalPrice, recs[0].NewPrice)
	assert.Equal(t, testNow, recs[0].Timestamp)
}

func TestOptimizePriceWithoutModel(t *testing.T) {
	ctx := context.Background()

	_, err := newFixture(t).orch.OptimizePrice(ctx, "PROD404", referenceInput())
	require.ErrorIs(t, err, models.ErrProductNotFound)

	f := newFixture(t, WithFallbackModel(-1.8, 1200))
	res, err := f.orch.OptimizePrice(ctx, "PROD404", referenceInput())
	require.NoError(t, err)
	assert.Equal(t, models.SourceDefault, res.ModelSource)
	assert.True(t, res.Bounds.Contains(res.OptimalPrice))
}

func TestOptimizePriceRejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	trainReference(t, f, "PROD001")

	in := referenceInput()
	in.CompetitorPrices = []float64{33, math.NaN()}
	_, err := f.orch.OptimizePrice(context.Background(), "PROD001", in)
	require.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestOptimizePriceWithoutTargetInventory(t *testing.T) {
	f := newFixture(t)
	trainReference(t, f, "PROD001")

	in := referenceInput()
	in.TargetInventory = 0
	res, err := f.orch.OptimizePrice(context.Background(), "PROD001", in)
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.InventoryFactor)
	assert.InDelta(t, 31.35, res.Bounds.Lower, 1e-9)
	assert.InDelta(t, 38.85, res.Bounds.Upper, 1e-9)
}

type staticBook map[string][]float64

func (b staticBook) Prices(productID string) []float64 { return b[productID] }

func TestOptimizePriceUsesCompetitorBook(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithCompetitorBook(staticBook{"PROD001": {40, 42}}))
	trainReference(t, f, "PROD001")

	in := referenceInput()
	in.CompetitorPrices = nil
	res, err := f.orch.OptimizePrice(ctx, "PROD001", in)
	require.NoError(t, err)
	assert.InDelta(t, 38.0, res.Bounds.Lower, 1e-9)
	assert.InDelta(t, 44.1, res.Bounds.Upper, 1e-9)

	explicit, err := f.orch.OptimizePrice(ctx, "PROD001", referenceInput())
	require.NoError(t, err)
	assert.InDelta(t, 31.35, explicit.Bounds.Lower, 1e-9)
}

func TestOptimizePriceAddsDemandInterval(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	trainReference(t, f, "PROD001")
	_, err := f.orch.FitDemandModel(ctx, "PROD001", []int{3, 8, 1, 12, 5, 0, 7, 9, 2, 15, 4, 6})
	require.NoError(t, err)

	res, err := f.orch.OptimizePrice(ctx, "PROD001", referenceInput())
	require.NoError(t, err)
	require.NotNil(t, res.DemandInterval)
	assert.GreaterOrEqual(t, res.DemandInterval.Lower, 0.0)
	assert.LessOrEqual(t, res.DemandInterval.Lower, res.DemandInterval.Upper)
}

func TestOptimizeProductCommitsPrice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.orch.SeedProducts(ctx, models.SampleProducts()))
	trainReference(t, f, "PROD001")

	res, err := f.orch.OptimizeProduct(ctx, "PROD001", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.InventoryFactor)
	assert.True(t, res.Bounds.Contains(res.OptimalPrice))

	p, err := f.orch.GetProduct(ctx, "PROD001")
	require.NoError(t, err)
	assert.Equal(t, res.OptimalPrice, p.CurrentPrice)

	recs, err := f.orch.History(ctx, "PROD001", 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 29.99, recs[0].OldPrice)

	_, err = f.orch.OptimizeProduct(ctx, "PROD404", nil, 0)
	require.ErrorIs(t, err, models.ErrProductNotFound)
}

func TestSeedProductsKeepsExisting(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	custom := models.SampleProducts()[0]
	custom.CurrentPrice = 99
	_, err := f.orch.RegisterProduct(ctx, custom)
	require.NoError(t, err)
	require.NoError(t, f.orch.SeedProducts(ctx, models.SampleProducts()))

	list, err := f.orch.ListProducts(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, 99.0, list[0].CurrentPrice)

	bad := models.Product{ID: "X", CurrentPrice: 10, Cost: 12}
	_, err = f.orch.RegisterProduct(ctx, bad)
	require.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestRefinePriceStaysInBounds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	trainReference(t, f, "PROD001")

	res, err := f.orch.RefinePrice(ctx, "PROD001", referenceInput(), 25)
	require.NoError(t, err)
	assert.Equal(t, 25, res.Iterations)
	assert.True(t, res.Bounds.Contains(res.Price))
	require.Len(t, res.Trace, 25)
	for i := 1; i < len(res.Trace); i++ {
		assert.GreaterOrEqual(t, res.Trace[i], res.Trace[i-1])
	}
	assert.Equal(t, res.Trace[len(res.Trace)-1], res.ExpectedMargin)
}

func TestRecordSalesAndRetrain(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	prices := []float64{20, 24, 28, 32, 36, 40, 44, 48}
	qty := powerLaw(prices, 1000, 30, -1.5)
	obs := make([]models.PriceObservation, len(prices))
	for i := range prices {
		obs[i] = models.PriceObservation{
			ProductID:    "PROD002",
			Timestamp:    testNow.Add(-time.Duration(len(prices)-i) * time.Hour),
			Price:        prices[i],
			QuantitySold: int(math.Round(qty[i])),
		}
	}
	require.NoError(t, f.orch.RecordSales(ctx, obs))

	stored, err := f.history.Observations(ctx, "PROD002", testNow.Add(-24*time.Hour), testNow, 0)
	require.NoError(t, err)
	require.Len(t, stored, len(prices))
	assert.InDelta(t, stored[0].Price*float64(stored[0].QuantitySold), stored[0].Revenue, 1e-9)

	res, err := f.orch.RetrainFromHistory(ctx, "PROD002", testNow.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, len(prices), res.Observations)
	assert.InDelta(t, -1.5, res.Elasticity.Coefficient, 0.01)
	assert.Positive(t, res.Demand.Alpha)

	_, err = f.orch.RetrainFromHistory(ctx, "PROD003", testNow.Add(-24*time.Hour))
	require.ErrorIs(t, err, models.ErrInvalidInput)

	err = f.orch.RecordSales(ctx, []models.PriceObservation{{ProductID: "PROD002", Price: -1}})
	require.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestRevenueMetricsAggregatesDecisions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	trainReference(t, f, "PROD001")
	trainReference(t, f, "PROD002")

	a, err := f.orch.OptimizePrice(ctx, "PROD001", referenceInput())
	require.NoError(t, err)
	b, err := f.orch.OptimizePrice(ctx, "PROD002", referenceInput())
	require.NoError(t, err)

	one, err := f.orch.RevenueMetrics(ctx, "PROD001")
	require.NoError(t, err)
	assert.Equal(t, 1, one.Decisions)
	assert.InDelta(t, a.ExpectedRevenue, one.TotalRevenue, 1e-9)
	assert.InDelta(t, a.ExpectedDemand, one.TotalUnits, 1e-9)

	all, err := f.orch.RevenueMetrics(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, all.Decisions)
	assert.InDelta(t, a.ExpectedRevenue+b.ExpectedRevenue, all.TotalRevenue, 1e-9)
	assert.InDelta(t, all.TotalRevenue/all.TotalUnits, all.AverageOrderValue, 1e-9)

	none, err := f.orch.RevenueMetrics(ctx, "PROD404")
	require.NoError(t, err)
	assert.Zero(t, none.AverageOrderValue)
}

func TestReportAndExport(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.orch.SeedProducts(ctx, models.SampleProducts()))
	trainReference(t, f, "PROD001")
	prices := []float64{10, 15, 20, 25}
	_, err := f.orch.TrainElasticity(ctx, "PROD003", prices, powerLaw(prices, 500, 20, -1.2))
	require.NoError(t, err)
	_, err = f.orch.OptimizeProduct(ctx, "PROD001", nil, 0)
	require.NoError(t, err)
	test, err := f.orch.CreateABTest(ctx, "PROD002", map[string]float64{"control": 49.99, "low": 44.99})
	require.NoError(t, err)

	rep, err := f.orch.Report(ctx)
	require.NoError(t, err)
	require.Len(t, rep.Products, 3)
	assert.Equal(t, 2, rep.TrainedModels)
	assert.InDelta(t, (-1.8-1.2)/2, rep.AverageElasticity, 1e-9)
	assert.Equal(t, 1, rep.ActiveTests)
	assert.NotNil(t, rep.Products[0].LastDecision)
	assert.Nil(t, rep.Products[1].Elasticity)
	assert.Equal(t, []string{test.ID}, rep.Products[1].ActiveTests)

	raw, err := f.orch.ExportJSON(ctx)
	require.NoError(t, err)
	var state models.StateExport
	require.NoError(t, json.Unmarshal(raw, &state))
	assert.Len(t, state.Products, 3)
	assert.Len(t, state.ElasticityModels, 2)
	assert.Len(t, state.Tests, 1)
	assert.Len(t, state.History, 1)
}

func TestExportIncludesModelsOutsideCatalog(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	trainReference(t, f, "SKU-UNLISTED")
	_, err := f.orch.FitDemandModel(ctx, "SKU-UNLISTED", []int{3, 8, 1, 12, 5, 0, 7, 9, 2, 15, 4, 6})
	require.NoError(t, err)

	state, err := f.orch.ExportState(ctx)
	require.NoError(t, err)
	assert.Empty(t, state.Products)
	require.Contains(t, state.ElasticityModels, "SKU-UNLISTED")
	assert.InDelta(t, -1.8, state.ElasticityModels["SKU-UNLISTED"].Coefficient, 1e-9)
	assert.Contains(t, state.DemandModels, "SKU-UNLISTED")
}

type recordingLocker struct {
	mu   sync.Mutex
	err  error
	keys []string
	held int
}

func (l *recordingLocker) Lock(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	l.keys = append(l.keys, key)
	l.held++
	return func() {
		l.mu.Lock()
		l.held--
		l.mu.Unlock()
	}, nil
}

func TestWritersTakeSharedLock(t *testing.T) {
	ctx := context.Background()
	l := &recordingLocker{}
	f := newFixture(t, WithLocker(l))
	require.NoError(t, f.orch.SeedProducts(ctx, models.SampleProducts()[:1]))
	trainReference(t, f, "PROD001")
	_, err := f.orch.OptimizeProduct(ctx, "PROD001", nil, 0)
	require.NoError(t, err)

	assert.Equal(t, []string{"product:PROD001", "product:PROD001", "product:PROD001"}, l.keys)
	assert.Zero(t, l.held)

	l.err = errors.New("redis unavailable")
	prices := []float64{10, 20, 30, 40}
	_, err = f.orch.TrainElasticity(ctx, "PROD001", prices, powerLaw(prices, 100, 20, -2.5))
	require.Error(t, err)
	m, _, err := f.store.GetElasticity(ctx, "PROD001")
	require.NoError(t, err)
	assert.InDelta(t, -1.8, m.Coefficient, 1e-9)

	// the in-process lock was released on failure
	l.err = nil
	trainReference(t, f, "PROD001")
	assert.Zero(t, l.held)
}

func TestConcurrentTrainingIsAtomic(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	prices := []float64{10, 20, 30, 40}
	datasets := [][]float64{powerLaw(prices, 100, 20, -1.2), powerLaw(prices, 100, 20, -2.5)}

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := f.orch.TrainElasticity(ctx, "PROD001", prices, datasets[i%2])
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			m, ok, err := f.store.GetElasticity(ctx, "PROD001")
			assert.NoError(t, err)
			if ok {
				isA := math.Abs(m.Coefficient+1.2) < 1e-9
				isB := math.Abs(m.Coefficient+2.5) < 1e-9
				assert.True(t, isA || isB, "torn model %v", m.Coefficient)
			}
		}()
	}
	wg.Wait()
}
