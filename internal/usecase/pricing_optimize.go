package usecase

import (
	"context"
	"fmt"
	"time"

	"PriceOpt/internal/domain/models"
	"PriceOpt/internal/services/bayesopt"
	"PriceOpt/internal/services/demand"
	"PriceOpt/internal/services/optimizer"
	"PriceOpt/pkg/logger"
)

// elasticityFor returns the trained model of a product or, when enabled, the
// fallback model. Without either it fails with ErrProductNotFound.
func (o *PricingOrchestrator) elasticityFor(ctx context.Context, productID string) (models.ElasticityModel, models.ModelSource, error) {
	m, ok, err := o.store.GetElasticity(ctx, productID)
	if err != nil {
		return models.ElasticityModel{}, "", fmt.Errorf("load elasticity %s: %w", productID, err)
	}
	if ok {
		return m, models.SourceTrained, nil
	}
	if o.fallback != nil {
		return *o.fallback, models.SourceDefault, nil
	}
	return models.ElasticityModel{}, "", fmt.Errorf("%w: no elasticity model for %s", models.ErrProductNotFound, productID)
}

func (o *PricingOrchestrator) withCompetitors(productID string, in optimizer.PriceInput) optimizer.PriceInput {
	if len(in.CompetitorPrices) == 0 && o.competitors != nil {
		in.CompetitorPrices = o.competitors.Prices(productID)
	}
	return in
}

// OptimizePrice searches the revenue-maximizing price of a product, records
// the decision and announces it. The stored product is not modified.
func (o *PricingOrchestrator) OptimizePrice(ctx context.Context, productID string, in optimizer.PriceInput) (models.OptimizationResult, error) {
	start := time.Now()
	model, source, err := o.elasticityFor(ctx, productID)
	if err != nil {
		o.metrics.RecordError("optimize")
		return models.OptimizationResult{}, err
	}
	in = o.withCompetitors(productID, in)

	res, err := o.optimizer.Optimize(model, in)
	if err != nil {
		o.metrics.RecordError("optimize")
		return models.OptimizationResult{}, err
	}
	res.ProductID = productID
	res.ModelSource = source

	dm, ok, err := o.store.GetDemand(ctx, productID)
	if err != nil {
		return models.OptimizationResult{}, fmt.Errorf("load demand %s: %w", productID, err)
	}
	if ok {
		iv, err := demand.NewPredictor(dm, o.newSource()).Interval(o.demandDraws, demandLowerQuantile, demandUpperQuantile)
		if err != nil {
			return models.OptimizationResult{}, err
		}
		res.DemandInterval = &iv
	}

	rec := models.PricingRecord{
		ProductID:          productID,
		Timestamp:          o.now(),
		OldPrice:           in.CurrentPrice,
		NewPrice:           res.OptimalPrice,
		ExpectedDemand:     res.ExpectedDemand,
		ExpectedRevenue:    res.ExpectedRevenue,
		RevenueLiftPercent: res.RevenueLiftPercent,
	}
	if err := o.history.AppendDecision(ctx, rec); err != nil {
		o.metrics.RecordError("append_decision")
		return models.OptimizationResult{}, fmt.Errorf("record decision %s: %w", productID, err)
	}
	o.publishDecision(ctx, rec)

	o.metrics.RecordOptimization(productID, source, res.RevenueLiftPercent)
	o.metrics.RecordLatency("optimize", time.Since(start).Seconds())
	o.log.Info("price optimized",
		logger.String("product_id", productID),
		logger.Float64("old_price", in.CurrentPrice),
		logger.Float64("new_price", res.OptimalPrice),
		logger.Float64("lift_percent", res.RevenueLiftPercent),
		logger.Bool("bounds_collapsed", res.BoundsCollapsed),
		logger.String("model_source", string(source)))
	return res, nil
}

// OptimizeProduct optimizes a catalog product from its stored price, cost and
// inventory and commits the optimum as the new current price. A target
// inventory of zero applies no inventory pressure.
func (o *PricingOrchestrator) OptimizeProduct(ctx context.Context, productID string, competitorPrices []float64, targetInventory float64) (models.OptimizationResult, error) {
	unlock, err := o.lock(ctx, productID)
	if err != nil {
		return models.OptimizationResult{}, err
	}
	defer unlock()

	p, err := o.store.GetProduct(ctx, productID)
	if err != nil {
		return models.OptimizationResult{}, err
	}
	res, err := o.OptimizePrice(ctx, productID, optimizer.PriceInput{
		CurrentPrice:     p.CurrentPrice,
		Cost:             p.Cost,
		CompetitorPrices: competitorPrices,
		Inventory:        float64(p.InventoryLevel),
		TargetInventory:  targetInventory,
	})
	if err != nil {
		return models.OptimizationResult{}, err
	}

	p.CurrentPrice = res.OptimalPrice
	p.UpdatedAt = o.now()
	if err := o.store.SaveProduct(ctx, p); err != nil {
		o.metrics.RecordError("save_product")
		return models.OptimizationResult{}, fmt.Errorf("update price %s: %w", productID, err)
	}
	return res, nil
}

// RefinePrice runs Bayesian optimization of the expected margin over the
// same bounds the golden-section search uses. Zero iterations selects the
// configured default.
func (o *PricingOrchestrator) RefinePrice(ctx context.Context, productID string, in optimizer.PriceInput, iterations int) (models.RefinementResult, error) {
	if iterations <= 0 {
		iterations = o.refineIters
	}
	model, source, err := o.elasticityFor(ctx, productID)
	if err != nil {
		return models.RefinementResult{}, err
	}
	in = o.withCompetitors(productID, in)
	if err := in.Validate(); err != nil {
		return models.RefinementResult{}, err
	}

	b := optimizer.PriceBounds(in)
	objective := optimizer.Objective(model, in)
	res := models.RefinementResult{
		ProductID:   productID,
		Bounds:      models.Interval{Lower: b.Lower, Upper: b.Upper},
		ModelSource: source,
	}
	if b.Collapsed {
		res.Price = b.Lower
		res.ExpectedMargin = objective(b.Lower)
		res.Trace = []float64{res.ExpectedMargin}
		return res, nil
	}

	bo, err := bayesopt.New([]bayesopt.Bound{{Lower: b.Lower, Upper: b.Upper}}, o.newSource())
	if err != nil {
		return models.RefinementResult{}, err
	}
	run, err := bo.Run(ctx, func(_ context.Context, x []float64) (float64, error) {
		return objective(x[0]), nil
	}, iterations)
	if err != nil {
		return models.RefinementResult{}, err
	}

	res.Price = run.Best.X[0]
	res.ExpectedMargin = run.Best.Y
	res.Trace = run.Trace
	res.Iterations = run.Iterations
	o.log.Debug("price refined",
		logger.String("product_id", productID),
		logger.Float64("price", res.Price),
		logger.Int("iterations", res.Iterations))
	return res, nil
}

func (o *PricingOrchestrator) publishDecision(ctx context.Context, rec models.PricingRecord) {
	if o.events == nil {
		return
	}
	if err := o.events.PublishDecision(ctx, rec); err != nil {
		o.metrics.RecordError("publish_decision")
		o.log.Warn("publish decision failed", logger.String("product_id", rec.ProductID), logger.Error(err))
	}
}
