package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"slices"

	"PriceOpt/internal/domain/models"

	"golang.org/x/sync/errgroup"
)

const (
	exportHistoryLimit = 100
	reportConcurrency  = 8
)

// RevenueMetrics aggregates the expected revenue and units of recorded
// decisions. An empty productID covers all products.
func (o *PricingOrchestrator) RevenueMetrics(ctx context.Context, productID string) (models.RevenueMetrics, error) {
	recs, err := o.history.Decisions(ctx, productID, 0)
	if err != nil {
		return models.RevenueMetrics{}, fmt.Errorf("load decisions: %w", err)
	}
	m := models.RevenueMetrics{ProductID: productID, Decisions: len(recs)}
	for _, r := range recs {
		m.TotalRevenue += r.ExpectedRevenue
		m.TotalUnits += r.ExpectedDemand
	}
	m.AverageOrderValue = m.TotalRevenue / math.Max(m.TotalUnits, 1)
	return m, nil
}

// History returns the latest decisions in chronological order.
func (o *PricingOrchestrator) History(ctx context.Context, productID string, limit int) ([]models.PricingRecord, error) {
	return o.history.Decisions(ctx, productID, limit)
}

// Report builds one summary per catalog product, loading products in parallel.
func (o *PricingOrchestrator) Report(ctx context.Context) (models.PricingReport, error) {
	products, err := o.store.ListProducts(ctx)
	if err != nil {
		return models.PricingReport{}, fmt.Errorf("list products: %w", err)
	}
	tests, err := o.experiments.ListTests(ctx)
	if err != nil {
		return models.PricingReport{}, fmt.Errorf("list tests: %w", err)
	}

	active := make(map[string][]string)
	activeCount := 0
	for _, t := range tests {
		if t.Status == models.TestConcluded {
			continue
		}
		active[t.ProductID] = append(active[t.ProductID], t.ID)
		activeCount++
	}

	reports := make([]models.ProductReport, len(products))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(reportConcurrency)
	for i, p := range products {
		g.Go(func() error {
			r, err := o.productReport(gctx, p)
			if err != nil {
				return err
			}
			r.ActiveTests = active[p.ID]
			reports[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return models.PricingReport{}, err
	}

	rep := models.PricingReport{
		GeneratedAt: o.now(),
		Products:    reports,
		ActiveTests: activeCount,
	}
	var sum float64
	for _, r := range reports {
		if r.Elasticity != nil {
			sum += r.Elasticity.Coefficient
			rep.TrainedModels++
		}
	}
	if rep.TrainedModels > 0 {
		rep.AverageElasticity = sum / float64(rep.TrainedModels)
	}
	return rep, nil
}

func (o *PricingOrchestrator) productReport(ctx context.Context, p models.Product) (models.ProductReport, error) {
	r := models.ProductReport{Product: p}
	em, ok, err := o.store.GetElasticity(ctx, p.ID)
	if err != nil {
		return r, fmt.Errorf("load elasticity %s: %w", p.ID, err)
	}
	if ok {
		r.Elasticity = &em
	}
	dm, ok, err := o.store.GetDemand(ctx, p.ID)
	if err != nil {
		return r, fmt.Errorf("load demand %s: %w", p.ID, err)
	}
	if ok {
		r.Demand = &dm
	}
	last, err := o.history.Decisions(ctx, p.ID, 1)
	if err != nil {
		return r, fmt.Errorf("load decisions %s: %w", p.ID, err)
	}
	if len(last) > 0 {
		r.LastDecision = &last[0]
	}
	return r, nil
}

// ExportState snapshots products, models, tests and the latest decisions.
func (o *PricingOrchestrator) ExportState(ctx context.Context) (models.StateExport, error) {
	products, err := o.store.ListProducts(ctx)
	if err != nil {
		return models.StateExport{}, fmt.Errorf("list products: %w", err)
	}
	out := models.StateExport{
		ExportedAt:       o.now(),
		Products:         products,
		ElasticityModels: make(map[string]models.ElasticityModel),
		DemandModels:     make(map[string]models.DemandModel),
	}
	ids, err := o.store.ModelIDs(ctx)
	if err != nil {
		return models.StateExport{}, fmt.Errorf("list model ids: %w", err)
	}
	for _, p := range products {
		ids = append(ids, p.ID)
	}
	slices.Sort(ids)
	for _, id := range slices.Compact(ids) {
		if em, ok, err := o.store.GetElasticity(ctx, id); err != nil {
			return models.StateExport{}, err
		} else if ok {
			out.ElasticityModels[id] = em
		}
		if dm, ok, err := o.store.GetDemand(ctx, id); err != nil {
			return models.StateExport{}, err
		} else if ok {
			out.DemandModels[id] = dm
		}
	}
	if out.Tests, err = o.experiments.ListTests(ctx); err != nil {
		return models.StateExport{}, fmt.Errorf("list tests: %w", err)
	}
	if out.History, err = o.history.Decisions(ctx, "", exportHistoryLimit); err != nil {
		return models.StateExport{}, fmt.Errorf("load decisions: %w", err)
	}
	return out, nil
}

func (o *PricingOrchestrator) ExportJSON(ctx context.Context) ([]byte, error) {
	state, err := o.ExportState(ctx)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(state, "", "  ")
}
