package elasticity

import (
	"fmt"
	"math"
	"time"

	"PriceOpt/internal/domain/models"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	// LogEpsilon is added before taking logarithms so zero quantities stay finite.
	LogEpsilon = 1e-10

	// ConfidenceLevel of the reported coefficient interval.
	ConfidenceLevel = 0.95

	minVariance = 1e-18
)

// Estimate fits log(q) = b0 + e*log(p) by ordinary least squares and returns the
// constant-elasticity model. BaseDemand is the mean of the raw quantities.
// A positive coefficient is reported as-is.
func Estimate(prices, quantities []float64) (models.ElasticityModel, error) {
	if err := validate(prices, quantities); err != nil {
		return models.ElasticityModel{}, err
	}

	n := len(prices)
	x := make([]float64, n)
	y := make([]float64, n)
	for i := range prices {
		x[i] = math.Log(prices[i] + LogEpsilon)
		y[i] = math.Log(quantities[i] + LogEpsilon)
	}

	m := models.ElasticityModel{
		BaseDemand:   stat.Mean(quantities, nil),
		Observations: n,
		TrainedAt:    time.Now().UTC(),
	}

	xMean := stat.Mean(x, nil)
	sxx := 0.0
	for _, v := range x {
		d := v - xMean
		sxx += d * d
	}
	if sxx < minVariance {
		m.Intercept = stat.Mean(y, nil)
		m.Degenerate = true
		m.Diagnostic = "prices have zero variance, elasticity is indeterminate"
		return m, nil
	}

	intercept, slope := stat.LinearRegression(x, y, nil, false)
	m.Coefficient = slope
	m.Intercept = intercept

	yMean := stat.Mean(y, nil)
	sse, sst := 0.0, 0.0
	for i := range x {
		r := y[i] - (intercept + slope*x[i])
		sse += r * r
		d := y[i] - yMean
		sst += d * d
	}
	if sst < minVariance {
		// constant quantities are fit exactly by a flat line
		m.RSquared = 1
	} else {
		m.RSquared = 1 - sse/sst
	}

	dof := n - 2
	if dof == 0 {
		m.ConfidenceInterval = [2]float64{slope, slope}
		m.Diagnostic = "two observations leave no residual degrees of freedom"
		return m, nil
	}
	m.StandardError = math.Sqrt(sse / float64(dof) / sxx)
	t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(dof)}.Quantile(1 - (1-ConfidenceLevel)/2)
	m.ConfidenceInterval = [2]float64{slope - t*m.StandardError, slope + t*m.StandardError}

	return m, nil
}

func validate(prices, quantities []float64) error {
	if len(prices) != len(quantities) {
		return fmt.Errorf("%w: %d prices but %d quantities", models.ErrInvalidInput, len(prices), len(quantities))
	}
	if len(prices) < 2 {
		return fmt.Errorf("%w: need at least 2 observations, got %d", models.ErrInvalidInput, len(prices))
	}
	for i := range prices {
		if !models.IsFinite(prices[i]) || prices[i] <= 0 {
			return fmt.Errorf("%w: price[%d] must be positive and finite, got %v", models.ErrInvalidInput, i, prices[i])
		}
		if !models.IsFinite(quantities[i]) || quantities[i] < 0 {
			return fmt.Errorf("%w: quantity[%d] must be non-negative and finite, got %v", models.ErrInvalidInput, i, quantities[i])
		}
	}
	return nil
}

// FromObservations splits sales history into the parallel price/quantity slices.
func FromObservations(obs []models.PriceObservation) (prices, quantities []float64) {
	prices = make([]float64, 0, len(obs))
	quantities = make([]float64, 0, len(obs))
	for _, o := range obs {
		prices = append(prices, o.Price)
		quantities = append(quantities, float64(o.QuantitySold))
	}
	return prices, quantities
}
