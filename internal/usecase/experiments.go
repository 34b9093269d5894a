package usecase

import (
	"context"
	"fmt"

	"PriceOpt/internal/domain/models"
	"PriceOpt/internal/services/abtest"
	"PriceOpt/pkg/logger"

	"github.com/google/uuid"
)

// CreateABTest starts a price experiment with at least two named variants.
func (o *PricingOrchestrator) CreateABTest(ctx context.Context, productID string, prices map[string]float64) (*models.ABTest, error) {
	if productID == "" {
		return nil, fmt.Errorf("%w: product id is required", models.ErrInvalidInput)
	}
	if len(prices) < 2 {
		return nil, fmt.Errorf("%w: a test needs at least 2 variants, got %d", models.ErrInvalidInput, len(prices))
	}
	variants := make(map[string]models.Variant, len(prices))
	for name, price := range prices {
		if name == "" {
			return nil, fmt.Errorf("%w: variant name is required", models.ErrInvalidInput)
		}
		if !models.IsFinite(price) || price <= 0 {
			return nil, fmt.Errorf("%w: variant %q price must be positive, got %v", models.ErrInvalidInput, name, price)
		}
		variants[name] = models.Variant{Price: price}
	}

	now := o.now()
	t := &models.ABTest{
		ID:        uuid.NewString(),
		ProductID: productID,
		Variants:  variants,
		Status:    models.TestInitialized,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.experiments.CreateTest(ctx, t); err != nil {
		o.metrics.RecordError("create_test")
		return nil, fmt.Errorf("create test: %w", err)
	}

	o.metrics.RecordExperimentUpdate(t.ID, t.Status)
	o.publishExperiment(ctx, t)
	o.log.Info("ab test created",
		logger.String("test_id", t.ID),
		logger.String("product_id", productID),
		logger.Int("variants", len(variants)))
	return t, nil
}

// RecordObservation adds conversions and impressions to one variant. Counts
// only grow; a concluded test accepts no more observations.
func (o *PricingOrchestrator) RecordObservation(ctx context.Context, testID, variant string, conversions, impressions int64) (*models.ABTest, error) {
	if conversions < 0 || impressions < 0 {
		return nil, fmt.Errorf("%w: counts must be non-negative", models.ErrInvalidInput)
	}
	if conversions > impressions {
		return nil, fmt.Errorf("%w: %d conversions exceed %d impressions", models.ErrInvalidInput, conversions, impressions)
	}

	t, err := o.experiments.UpdateTest(ctx, testID, func(t *models.ABTest) error {
		if t.Status == models.TestConcluded {
			return fmt.Errorf("%w: test %s is concluded", models.ErrInvalidInput, testID)
		}
		v, ok := t.Variants[variant]
		if !ok {
			return fmt.Errorf("%w: %q in test %s", models.ErrVariantNotFound, variant, testID)
		}
		v.Conversions += conversions
		v.Impressions += impressions
		if err := abtest.ValidateVariant(variant, v); err != nil {
			return err
		}
		t.Variants[variant] = v
		if t.Status == models.TestInitialized {
			t.Status = models.TestRunning
		}
		t.UpdatedAt = o.now()
		return nil
	})
	if err != nil {
		o.metrics.RecordError("record_observation")
		return nil, err
	}

	o.metrics.RecordExperimentUpdate(t.ID, t.Status)
	o.publishExperiment(ctx, t)
	return t, nil
}

// CalculateWinner ranks the variants of a test by their probability of being
// best. A test without impressions yields an empty result.
func (o *PricingOrchestrator) CalculateWinner(ctx context.Context, testID string) (models.WinnerResult, error) {
	t, err := o.experiments.GetTest(ctx, testID)
	if err != nil {
		return models.WinnerResult{}, err
	}
	return o.evaluate(t)
}

// ConcludeTest freezes a test and stores the winner and its confidence.
func (o *PricingOrchestrator) ConcludeTest(ctx context.Context, testID string) (*models.ABTest, error) {
	t, err := o.experiments.UpdateTest(ctx, testID, func(t *models.ABTest) error {
		if t.Status == models.TestConcluded {
			return fmt.Errorf("%w: test %s is already concluded", models.ErrInvalidInput, testID)
		}
		res, err := o.evaluate(t)
		if err != nil {
			return err
		}
		t.Status = models.TestConcluded
		t.Winner = res.Winner
		t.Confidence = res.Confidence
		t.UpdatedAt = o.now()
		return nil
	})
	if err != nil {
		o.metrics.RecordError("conclude_test")
		return nil, err
	}

	o.metrics.RecordExperimentUpdate(t.ID, t.Status)
	o.publishExperiment(ctx, t)
	o.log.Info("ab test concluded",
		logger.String("test_id", t.ID),
		logger.String("winner", t.Winner),
		logger.Float64("confidence", t.Confidence))
	return t, nil
}

func (o *PricingOrchestrator) GetTest(ctx context.Context, testID string) (*models.ABTest, error) {
	return o.experiments.GetTest(ctx, testID)
}

func (o *PricingOrchestrator) ListTests(ctx context.Context) ([]*models.ABTest, error) {
	return o.experiments.ListTests(ctx)
}

func (o *PricingOrchestrator) evaluate(t *models.ABTest) (models.WinnerResult, error) {
	res, err := abtest.NewEngine(o.newSource(), abtest.WithSamples(o.abSamples)).Evaluate(t.Variants)
	if err != nil {
		return models.WinnerResult{}, err
	}
	res.TestID = t.ID
	return res, nil
}

func (o *PricingOrchestrator) publishExperiment(ctx context.Context, t *models.ABTest) {
	if o.events == nil {
		return
	}
	if err := o.events.PublishExperiment(ctx, t); err != nil {
		o.metrics.RecordError("publish_experiment")
		o.log.Warn("publish experiment failed", logger.String("test_id", t.ID), logger.Error(err))
	}
}
