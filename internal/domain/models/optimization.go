package models

import "time"

// ModelSource tells where the elasticity behind a price decision came from.
type ModelSource string

const (
	SourceTrained ModelSource = "trained"
	SourceDefault ModelSource = "default"
)

type OptimizationResult struct {
	ProductID          string      `json:"product_id"`
	OptimalPrice       float64     `json:"optimal_price"`
	ExpectedDemand     float64     `json:"expected_demand"`
	ExpectedRevenue    float64     `json:"expected_revenue"`
	RevenueLiftPercent float64     `json:"revenue_lift_percent"`
	Bounds             Interval    `json:"bounds"`
	InventoryFactor    float64     `json:"inventory_factor"`
	BoundsCollapsed    bool        `json:"bounds_collapsed,omitempty"`
	Iterations         int         `json:"iterations"`
	ModelSource        ModelSource `json:"model_source"`
	DemandInterval     *Interval   `json:"demand_interval,omitempty"`
}

// PricingRecord is one entry of the per-product decision history.
type PricingRecord struct {
	ProductID          string    `json:"product_id"`
	Timestamp          time.Time `json:"timestamp"`
	OldPrice           float64   `json:"old_price"`
	NewPrice           float64   `json:"new_price"`
	ExpectedDemand     float64   `json:"expected_demand"`
	ExpectedRevenue    float64   `json:"expected_revenue"`
	RevenueLiftPercent float64   `json:"revenue_lift_percent"`
}

type RevenueMetrics struct {
	ProductID         string  `json:"product_id"`
	TotalRevenue      float64 `json:"total_revenue"`
	TotalUnits        float64 `json:"total_units"`
	AverageOrderValue float64 `json:"average_order_value"`
	Decisions         int     `json:"decisions"`
}

// ProductReport summarizes the pricing state of one product.
type ProductReport struct {
	Product      Product          `json:"product"`
	Elasticity   *ElasticityModel `json:"elasticity,omitempty"`
	Demand       *DemandModel     `json:"demand,omitempty"`
	LastDecision *PricingRecord   `json:"last_decision,omitempty"`
	ActiveTests  []string         `json:"active_tests,omitempty"`
}

type PricingReport struct {
	GeneratedAt       time.Time       `json:"generated_at"`
	Products          []ProductReport `json:"products"`
	AverageElasticity float64         `json:"average_elasticity"`
	TrainedModels     int             `json:"trained_models"`
	ActiveTests       int             `json:"active_tests"`
}

// StateExport is the JSON snapshot of everything the orchestrator owns.
type StateExport struct {
	ExportedAt       time.Time                  `json:"exported_at"`
	Products         []Product                  `json:"products"`
	ElasticityModels map[string]ElasticityModel `json:"elasticity_models"`
	DemandModels     map[string]DemandModel     `json:"demand_models"`
	Tests            []*ABTest                  `json:"ab_tests"`
	History          []PricingRecord            `json:"pricing_history"`
}

// CompetitorQuote is a single competitor price observed on the feed.
type CompetitorQuote struct {
	ProductID  string    `json:"product_id"`
	Competitor string    `json:"competitor"`
	Price      float64   `json:"price"`
	Timestamp  time.Time `json:"timestamp"`
}

// RefinementResult is the outcome of a Bayesian-optimization pass over the
// price bounds. It is exploratory and never recorded as a decision.
type RefinementResult struct {
	ProductID      string      `json:"product_id"`
	Price          float64     `json:"price"`
	ExpectedMargin float64     `json:"expected_margin"`
	Bounds         Interval    `json:"bounds"`
	Trace          []float64   `json:"trace"`
	Iterations     int         `json:"iterations"`
	ModelSource    ModelSource `json:"model_source"`
}

// TrainingResult bundles the models refit from stored sales history.
type TrainingResult struct {
	ProductID    string          `json:"product_id"`
	Elasticity   ElasticityModel `json:"elasticity"`
	Demand       DemandModel     `json:"demand"`
	Observations int             `json:"observations"`
}
