package usecase

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"PriceOpt/internal/domain/models"
	domrepo "PriceOpt/internal/domain/repository"
	"PriceOpt/internal/services/demand"
	"PriceOpt/internal/services/elasticity"
	"PriceOpt/internal/services/optimizer"
	"PriceOpt/pkg/logger"
	"PriceOpt/pkg/metrics"
)

const (
	DefaultDemandDraws      = 1000
	DefaultRefineIterations = 30

	demandLowerQuantile = 0.05
	demandUpperQuantile = 0.95
)

// PricingOrchestrator owns the per-product models and routes training,
// optimization and experiment requests to the numeric services.
//
// Writes for one product are serialized; reads go straight to the store and
// observe the last committed model.
type PricingOrchestrator struct {
	store       domrepo.ModelStore
	experiments domrepo.ExperimentStore
	history     domrepo.HistoryStore
	events      domrepo.EventPublisher
	metrics     domrepo.Metrics
	competitors domrepo.CompetitorBook

	optimizer   *optimizer.Optimizer
	fallback    *models.ElasticityModel
	newSource   func() rand.Source
	demandDraws int
	abSamples   int
	refineIters int
	now         func() time.Time
	log         *logger.Logger

	locks  sync.Map // product id -> *sync.Mutex
	locker domrepo.Locker
}

type OrchestratorOption func(*PricingOrchestrator)

// WithFallbackModel enables the default elasticity used for products that
// have no trained model. Results priced with it are marked SourceDefault.
func WithFallbackModel(coefficient, baseDemand float64) OrchestratorOption {
	return func(o *PricingOrchestrator) {
		o.fallback = &models.ElasticityModel{
			Coefficient: coefficient,
			BaseDemand:  baseDemand,
			Diagnostic:  "default elasticity",
		}
	}
}

// WithSeed makes every random source derive from seed, one stream per call.
func WithSeed(seed uint64) OrchestratorOption {
	return func(o *PricingOrchestrator) {
		var stream atomic.Uint64
		o.newSource = func() rand.Source {
			return rand.NewPCG(seed, stream.Add(1))
		}
	}
}

func WithSourceFactory(fn func() rand.Source) OrchestratorOption {
	return func(o *PricingOrchestrator) {
		if fn != nil {
			o.newSource = fn
		}
	}
}

func WithOptimizer(opt *optimizer.Optimizer) OrchestratorOption {
	return func(o *PricingOrchestrator) {
		if opt != nil {
			o.optimizer = opt
		}
	}
}

// WithCompetitorBook supplies competitor prices when a request carries none.
func WithCompetitorBook(book domrepo.CompetitorBook) OrchestratorOption {
	return func(o *PricingOrchestrator) {
		o.competitors = book
	}
}

func WithDemandDraws(n int) OrchestratorOption {
	return func(o *PricingOrchestrator) {
		if n > 0 {
			o.demandDraws = n
		}
	}
}

func WithABSamples(n int) OrchestratorOption {
	return func(o *PricingOrchestrator) {
		if n > 0 {
			o.abSamples = n
		}
	}
}

func WithRefineIterations(n int) OrchestratorOption {
	return func(o *PricingOrchestrator) {
		if n > 0 {
			o.refineIters = n
		}
	}
}

// WithLocker adds a cross-instance lock taken after the in-process one, so
// instances sharing a store never interleave writes of one product.
func WithLocker(l domrepo.Locker) OrchestratorOption {
	return func(o *PricingOrchestrator) {
		o.locker = l
	}
}

func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *PricingOrchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

func NewPricingOrchestrator(
	store domrepo.ModelStore,
	experiments domrepo.ExperimentStore,
	history domrepo.HistoryStore,
	events domrepo.EventPublisher,
	m domrepo.Metrics,
	opts ...OrchestratorOption,
) *PricingOrchestrator {
	if m == nil {
		m = metrics.Nop{}
	}
	o := &PricingOrchestrator{
		store:       store,
		experiments: experiments,
		history:     history,
		events:      events,
		metrics:     m,
		optimizer:   optimizer.New(),
		demandDraws: DefaultDemandDraws,
		refineIters: DefaultRefineIterations,
		now:         func() time.Time { return time.Now().UTC() },
		log:         logger.Nop(),
	}
	WithSeed(rand.Uint64())(o)
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *PricingOrchestrator) SetLogger(l *logger.Logger) {
	if l != nil {
		o.log = l
	}
}

// lock serializes writers of one key and returns the release func.
func (o *PricingOrchestrator) lock(ctx context.Context, key string) (func(), error) {
	v, _ := o.locks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	if o.locker == nil {
		return mu.Unlock, nil
	}
	release, err := o.locker.Lock(ctx, "product:"+key)
	if err != nil {
		mu.Unlock()
		o.metrics.RecordError("lock")
		return nil, fmt.Errorf("lock %s: %w", key, err)
	}
	return func() {
		release()
		mu.Unlock()
	}, nil
}

// SeedProducts registers products that are not in the catalog yet.
func (o *PricingOrchestrator) SeedProducts(ctx context.Context, products []models.Product) error {
	for _, p := range products {
		if _, err := o.store.GetProduct(ctx, p.ID); err == nil {
			continue
		}
		if _, err := o.RegisterProduct(ctx, p); err != nil {
			return fmt.Errorf("seed %s: %w", p.ID, err)
		}
	}
	return nil
}

// RegisterProduct creates or replaces a catalog entry.
func (o *PricingOrchestrator) RegisterProduct(ctx context.Context, p models.Product) (models.Product, error) {
	if err := p.Validate(); err != nil {
		return models.Product{}, err
	}
	unlock, err := o.lock(ctx, p.ID)
	if err != nil {
		return models.Product{}, err
	}
	defer unlock()

	p.UpdatedAt = o.now()
	if err := o.store.SaveProduct(ctx, p); err != nil {
		o.metrics.RecordError("save_product")
		return models.Product{}, fmt.Errorf("save product %s: %w", p.ID, err)
	}
	o.log.Info("product registered",
		logger.String("product_id", p.ID),
		logger.Float64("price", p.CurrentPrice),
		logger.Int("inventory", p.InventoryLevel))
	return p, nil
}

func (o *PricingOrchestrator) GetProduct(ctx context.Context, productID string) (models.Product, error) {
	return o.store.GetProduct(ctx, productID)
}

func (o *PricingOrchestrator) ListProducts(ctx context.Context) ([]models.Product, error) {
	return o.store.ListProducts(ctx)
}

// TrainElasticity fits and stores the product's elasticity model. A
// degenerate fit is stored and returned with its diagnostic.
func (o *PricingOrchestrator) TrainElasticity(ctx context.Context, productID string, prices, quantities []float64) (models.ElasticityModel, error) {
	if productID == "" {
		return models.ElasticityModel{}, fmt.Errorf("%w: product id is required", models.ErrInvalidInput)
	}
	start := time.Now()
	m, err := elasticity.Estimate(prices, quantities)
	if err != nil {
		o.metrics.RecordError("train_elasticity")
		return models.ElasticityModel{}, err
	}

	unlock, err := o.lock(ctx, productID)
	if err != nil {
		return models.ElasticityModel{}, err
	}
	defer unlock()
	if err := o.store.SaveElasticity(ctx, productID, m); err != nil {
		o.metrics.RecordError("save_elasticity")
		return models.ElasticityModel{}, fmt.Errorf("save elasticity %s: %w", productID, err)
	}

	o.metrics.RecordTraining("elasticity", m.Degenerate)
	o.metrics.RecordLatency("train_elasticity", time.Since(start).Seconds())
	fields := []logger.Field{
		logger.String("product_id", productID),
		logger.Float64("elasticity", m.Coefficient),
		logger.Float64("r_squared", m.RSquared),
		logger.Int("observations", m.Observations),
	}
	if m.Degenerate {
		o.log.Warn("elasticity model degenerate", append(fields, logger.String("diagnostic", m.Diagnostic))...)
	} else {
		o.log.Info("elasticity model trained", fields...)
	}
	return m, nil
}

// FitDemandModel fits and stores the product's Gamma-Poisson demand model.
func (o *PricingOrchestrator) FitDemandModel(ctx context.Context, productID string, counts []int) (models.DemandModel, error) {
	if productID == "" {
		return models.DemandModel{}, fmt.Errorf("%w: product id is required", models.ErrInvalidInput)
	}
	start := time.Now()
	m, err := demand.Fit(counts)
	if err != nil {
		o.metrics.RecordError("fit_demand")
		return models.DemandModel{}, err
	}

	unlock, err := o.lock(ctx, productID)
	if err != nil {
		return models.DemandModel{}, err
	}
	defer unlock()
	if err := o.store.SaveDemand(ctx, productID, m); err != nil {
		o.metrics.RecordError("save_demand")
		return models.DemandModel{}, fmt.Errorf("save demand %s: %w", productID, err)
	}

	o.metrics.RecordTraining("demand", m.Degenerate)
	o.metrics.RecordLatency("fit_demand", time.Since(start).Seconds())
	o.log.Info("demand model fitted",
		logger.String("product_id", productID),
		logger.Float64("alpha", m.Alpha),
		logger.Float64("beta", m.Beta),
		logger.Float64("overdispersion", m.Overdispersion),
		logger.Bool("degenerate", m.Degenerate))
	return m, nil
}

// RecordSales appends sales observations to the history store. Missing
// timestamps default to now and a zero revenue to price * quantity.
func (o *PricingOrchestrator) RecordSales(ctx context.Context, obs []models.PriceObservation) error {
	if len(obs) == 0 {
		return nil
	}
	now := o.now()
	out := make([]models.PriceObservation, 0, len(obs))
	for i, ob := range obs {
		if ob.ProductID == "" {
			return fmt.Errorf("%w: observation[%d] has no product id", models.ErrInvalidInput, i)
		}
		if !models.IsFinite(ob.Price) || ob.Price <= 0 {
			return fmt.Errorf("%w: observation[%d] price must be positive, got %v", models.ErrInvalidInput, i, ob.Price)
		}
		if ob.QuantitySold < 0 {
			return fmt.Errorf("%w: observation[%d] quantity must be non-negative", models.ErrInvalidInput, i)
		}
		if ob.Timestamp.IsZero() {
			ob.Timestamp = now
		}
		if ob.Revenue == 0 {
			ob.Revenue = ob.Price * float64(ob.QuantitySold)
		}
		out = append(out, ob)
	}
	if err := o.history.AppendObservations(ctx, out); err != nil {
		o.metrics.RecordError("append_observations")
		return fmt.Errorf("append observations: %w", err)
	}
	return nil
}

// RetrainFromHistory refits both models of a product from observations
// recorded since the given time.
func (o *PricingOrchestrator) RetrainFromHistory(ctx context.Context, productID string, since time.Time) (models.TrainingResult, error) {
	obs, err := o.history.Observations(ctx, productID, since, o.now(), 0)
	if err != nil {
		o.metrics.RecordError("load_observations")
		return models.TrainingResult{}, fmt.Errorf("load observations %s: %w", productID, err)
	}
	if len(obs) < 2 {
		return models.TrainingResult{}, fmt.Errorf("%w: %s has %d observations since %s, need at least 2",
			models.ErrInvalidInput, productID, len(obs), since.Format(time.RFC3339))
	}

	prices, quantities := elasticity.FromObservations(obs)
	em, err := o.TrainElasticity(ctx, productID, prices, quantities)
	if err != nil {
		return models.TrainingResult{}, err
	}
	counts := make([]int, len(obs))
	for i, ob := range obs {
		counts[i] = ob.QuantitySold
	}
	dm, err := o.FitDemandModel(ctx, productID, counts)
	if err != nil {
		return models.TrainingResult{}, err
	}
	return models.TrainingResult{ProductID: productID, Elasticity: em, Demand: dm, Observations: len(obs)}, nil
}
