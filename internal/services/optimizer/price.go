// Package optimizer searches the revenue-maximizing price of a product under
// competitor and inventory constraints.
package optimizer

import (
	"fmt"
	"math"
	"slices"

	"PriceOpt/internal/domain/models"
)

const (
	DefaultTolerance     = 1e-5
	DefaultMaxIterations = 500

	minMarkup        = 1.1
	maxRaise         = 1.5
	competitorFloor  = 0.95
	competitorCeil   = 1.05
	syntheticMinComp = 0.8
	syntheticMaxComp = 1.2

	overstockRatio  = 1.2
	understockRatio = 0.8
	overstockFactor = 0.95
	lowStockFactor  = 1.05
)

// PriceInput is everything the search needs besides the elasticity model.
type PriceInput struct {
	CurrentPrice     float64
	Cost             float64
	CompetitorPrices []float64
	Inventory        float64
	TargetInventory  float64
}

func (in PriceInput) Validate() error {
	if !models.IsFinite(in.CurrentPrice) || in.CurrentPrice <= 0 {
		return fmt.Errorf("%w: current price must be positive, got %v", models.ErrInvalidInput, in.CurrentPrice)
	}
	if !models.IsFinite(in.Cost) || in.Cost < 0 {
		return fmt.Errorf("%w: cost must be non-negative, got %v", models.ErrInvalidInput, in.Cost)
	}
	if !models.IsFinite(in.Inventory) || in.Inventory < 0 {
		return fmt.Errorf("%w: inventory must be non-negative, got %v", models.ErrInvalidInput, in.Inventory)
	}
	if !models.IsFinite(in.TargetInventory) || in.TargetInventory < 0 {
		return fmt.Errorf("%w: target inventory must be non-negative, got %v", models.ErrInvalidInput, in.TargetInventory)
	}
	for i, p := range in.CompetitorPrices {
		if !models.IsFinite(p) || p <= 0 {
			return fmt.Errorf("%w: competitor price[%d] must be positive, got %v", models.ErrInvalidInput, i, p)
		}
	}
	return nil
}

// InventoryFactor discounts overstock (above 120% of target) and raises the
// price when stock runs low (below 80% of target). A target of zero means no
// target was given and applies no inventory pressure.
func InventoryFactor(inventory, target float64) float64 {
	switch {
	case target <= 0:
		return 1.0
	case inventory > target*overstockRatio:
		return overstockFactor
	case inventory < target*understockRatio:
		return lowStockFactor
	default:
		return 1.0
	}
}

// Bounds is the admissible price interval for one search.
type Bounds struct {
	Lower           float64
	Upper           float64
	InventoryFactor float64
	// Collapsed is set when the margin floor exceeds the ceiling; the interval
	// is then the single point Lower.
	Collapsed bool
}

// PriceBounds derives the search interval from cost, current price,
// competitor prices and inventory pressure.
func PriceBounds(in PriceInput) Bounds {
	minComp := in.CurrentPrice * syntheticMinComp
	maxComp := in.CurrentPrice * syntheticMaxComp
	if len(in.CompetitorPrices) > 0 {
		minComp = slices.Min(in.CompetitorPrices)
		maxComp = slices.Max(in.CompetitorPrices)
	}

	factor := InventoryFactor(in.Inventory, in.TargetInventory)
	b := Bounds{
		Lower:           math.Max(in.Cost*minMarkup, minComp*competitorFloor*factor),
		Upper:           math.Min(in.CurrentPrice*maxRaise, maxComp*competitorCeil*factor),
		InventoryFactor: factor,
	}
	if b.Lower > b.Upper {
		b.Upper = b.Lower
		b.Collapsed = true
	}
	return b
}

// Objective returns the expected margin (p - cost) * demand(p) under model.
func Objective(model models.ElasticityModel, in PriceInput) func(float64) float64 {
	return func(p float64) float64 {
		return (p - in.Cost) * model.Demand(p, in.CurrentPrice)
	}
}

// Optimizer runs the bounded golden-section search.
type Optimizer struct {
	tolerance     float64
	maxIterations int
}

type Option func(*Optimizer)

func WithTolerance(tol float64) Option {
	return func(o *Optimizer) {
		if tol > 0 {
			o.tolerance = tol
		}
	}
}

// WithMaxIterations caps golden-section steps as a wall-clock budget.
func WithMaxIterations(n int) Option {
	return func(o *Optimizer) {
		if n > 0 {
			o.maxIterations = n
		}
	}
}

func New(opts ...Option) *Optimizer {
	o := &Optimizer{tolerance: DefaultTolerance, maxIterations: DefaultMaxIterations}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Optimize returns the price in PriceBounds(in) that maximizes Objective.
// Revenue lift is relative to (currentPrice - cost) * baseDemand.
func (o *Optimizer) Optimize(model models.ElasticityModel, in PriceInput) (models.OptimizationResult, error) {
	if err := in.Validate(); err != nil {
		return models.OptimizationResult{}, err
	}
	if !models.IsFinite(model.Coefficient) || !models.IsFinite(model.BaseDemand) || model.BaseDemand < 0 {
		return models.OptimizationResult{}, fmt.Errorf("%w: elasticity model is not usable", models.ErrInvalidInput)
	}

	b := PriceBounds(in)
	objective := Objective(model, in)

	price, iters := b.Lower, 0
	if !b.Collapsed {
		price, iters = GoldenSectionMax(objective, b.Lower, b.Upper, o.tolerance, o.maxIterations)
	}
	price = math.Min(math.Max(price, b.Lower), b.Upper)

	demand := model.Demand(price, in.CurrentPrice)
	revenue := (price - in.Cost) * demand

	lift := 0.0
	if current := (in.CurrentPrice - in.Cost) * model.BaseDemand; current > 0 {
		lift = (revenue - current) / current * 100
	}

	return models.OptimizationResult{
		OptimalPrice:       price,
		ExpectedDemand:     demand,
		ExpectedRevenue:    revenue,
		RevenueLiftPercent: lift,
		Bounds:             models.Interval{Lower: b.Lower, Upper: b.Upper},
		InventoryFactor:    b.InventoryFactor,
		BoundsCollapsed:    b.Collapsed,
		Iterations:         iters,
		ModelSource:        models.SourceTrained,
	}, nil
}
