package repository

import (
	"context"
	"time"

	"PriceOpt/internal/domain/models"
)

// ModelStore owns the product catalog and the per-product fitted models.
// Saves replace the stored value wholesale; readers observe either the old or
// the new value, never a mix.
type ModelStore interface {
	SaveProduct(ctx context.Context, p models.Product) error
	GetProduct(ctx context.Context, productID string) (models.Product, error) // ErrProductNotFound
	ListProducts(ctx context.Context) ([]models.Product, error)

	SaveElasticity(ctx context.Context, productID string, m models.ElasticityModel) error
	GetElasticity(ctx context.Context, productID string) (models.ElasticityModel, bool, error)
	SaveDemand(ctx context.Context, productID string, m models.DemandModel) error
	GetDemand(ctx context.Context, productID string) (models.DemandModel, bool, error)
	// ModelIDs lists every product id with a stored model, catalog or not.
	ModelIDs(ctx context.Context) ([]string, error)
}

// Locker serializes writers of one key across service instances. The
// returned func releases the lock.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// ExperimentStore persists A/B tests.
type ExperimentStore interface {
	CreateTest(ctx context.Context, t *models.ABTest) error
	GetTest(ctx context.Context, testID string) (*models.ABTest, error) // ErrTestNotFound
	// UpdateTest applies fn to a copy of the test and commits it only if fn
	// returns nil. Concurrent updates of one test are serialized.
	UpdateTest(ctx context.Context, testID string, fn func(*models.ABTest) error) (*models.ABTest, error)
	ListTests(ctx context.Context) ([]*models.ABTest, error)
}

// HistoryStore is the append-only record of sales and price decisions.
type HistoryStore interface {
	Init(ctx context.Context) error // ensure tables, health checks
	AppendObservations(ctx context.Context, obs []models.PriceObservation) error
	Observations(ctx context.Context, productID string, from, to time.Time, limit int) ([]models.PriceObservation, error)
	AppendDecision(ctx context.Context, rec models.PricingRecord) error
	// Decisions returns the most recent records in chronological order.
	// An empty productID selects all products.
	Decisions(ctx context.Context, productID string, limit int) ([]models.PricingRecord, error)
	Health(ctx context.Context) error
	Close() error
}

// EventPublisher announces price decisions and experiment changes.
type EventPublisher interface {
	PublishDecision(ctx context.Context, rec models.PricingRecord) error
	PublishExperiment(ctx context.Context, t *models.ABTest) error
	Close() error
}

// CompetitorBook serves the latest known competitor prices per product.
type CompetitorBook interface {
	Prices(productID string) []float64
}

type Metrics interface {
	RecordTraining(kind string, degenerate bool)
	RecordOptimization(productID string, source models.ModelSource, liftPercent float64)
	RecordExperimentUpdate(testID string, status models.TestStatus)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
