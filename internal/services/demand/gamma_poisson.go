// Package demand fits the Gamma-Poisson (negative binomial) purchase-count model.
package demand

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"time"

	"PriceOpt/internal/domain/models"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	// PoissonLimitRate is the Gamma rate used when the counts are not overdispersed.
	// The Gamma then concentrates on the sample mean and the mixture is a Poisson.
	PoissonLimitRate = 1e6

	minMean = 1e-9
)

// Fit estimates alpha and beta by the method of moments:
// alpha = mean^2/(var-mean), beta = mean/(var-mean).
// When var <= mean the fit degenerates toward a Poisson and the result is flagged.
func Fit(counts []int) (models.DemandModel, error) {
	if len(counts) == 0 {
		return models.DemandModel{}, fmt.Errorf("%w: purchase counts are empty", models.ErrInvalidInput)
	}
	xs := make([]float64, len(counts))
	for i, c := range counts {
		if c < 0 {
			return models.DemandModel{}, fmt.Errorf("%w: count[%d] is negative (%d)", models.ErrInvalidInput, i, c)
		}
		xs[i] = float64(c)
	}

	mean := stat.Mean(xs, nil)
	variance := 0.0
	if len(xs) > 1 {
		variance = stat.Variance(xs, nil)
	}

	m := models.DemandModel{
		SampleMean:     mean,
		SampleVariance: variance,
		Observations:   len(xs),
		FittedAt:       time.Now().UTC(),
	}
	if mean > 0 {
		m.Overdispersion = variance / mean
	}

	excess := variance - mean
	if mean > 0 && excess > 0 {
		m.Alpha = mean * mean / excess
		m.Beta = mean / excess
		return m, nil
	}

	m.Beta = PoissonLimitRate
	m.Alpha = math.Max(mean, minMean) * PoissonLimitRate
	m.Degenerate = true
	m.Diagnostic = fmt.Sprintf("variance %.4f does not exceed mean %.4f, using Poisson limit", variance, mean)
	return m, nil
}

// Predictor draws from the posterior predictive count distribution of a model.
// It is not safe for concurrent use because the source is not.
type Predictor struct {
	model models.DemandModel
	src   rand.Source
}

func NewPredictor(model models.DemandModel, src rand.Source) *Predictor {
	return &Predictor{model: model, src: src}
}

// Sample draws n counts: lambda ~ Gamma(alpha, beta), count ~ Poisson(lambda).
func (p *Predictor) Sample(n int) []float64 {
	gamma := distuv.Gamma{Alpha: p.model.Alpha, Beta: p.model.Beta, Src: p.src}
	out := make([]float64, n)
	for i := range out {
		lambda := gamma.Rand()
		if lambda <= 0 {
			continue
		}
		out[i] = distuv.Poisson{Lambda: lambda, Src: p.src}.Rand()
	}
	return out
}

// Interval returns the lower/upper empirical quantiles of n predictive draws.
func (p *Predictor) Interval(n int, lower, upper float64) (models.Interval, error) {
	if n <= 0 {
		return models.Interval{}, fmt.Errorf("%w: sample size must be positive", models.ErrInvalidInput)
	}
	if lower < 0 || upper > 1 || lower > upper {
		return models.Interval{}, fmt.Errorf("%w: quantiles must satisfy 0 <= lower <= upper <= 1", models.ErrInvalidInput)
	}
	draws := p.Sample(n)
	slices.Sort(draws)
	return models.Interval{
		Lower: stat.Quantile(lower, stat.Empirical, draws, nil),
		Upper: stat.Quantile(upper, stat.Empirical, draws, nil),
	}, nil
}
