// Package abtest evaluates price experiments with a Beta-Binomial model.
package abtest

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"PriceOpt/internal/domain/models"

	"gonum.org/v1/gonum/stat/distuv"
)

const (
	DefaultSamples = 10000

	priorAlpha = 1.0
	priorBeta  = 1.0
)

// Posterior updates the uniform Beta(1,1) prior with the variant's counts.
func Posterior(v models.Variant) models.Posterior {
	a := priorAlpha + float64(v.Conversions)
	b := priorBeta + float64(v.Impressions-v.Conversions)
	return models.Posterior{
		Alpha:          a,
		Beta:           b,
		Mean:           a / (a + b),
		ConversionRate: v.ConversionRate(),
	}
}

// ValidateVariant enforces 0 <= conversions <= impressions.
func ValidateVariant(name string, v models.Variant) error {
	if v.Conversions < 0 || v.Impressions < 0 {
		return fmt.Errorf("%w: variant %q has negative counts", models.ErrInvalidInput, name)
	}
	if v.Conversions > v.Impressions {
		return fmt.Errorf("%w: variant %q has %d conversions for %d impressions",
			models.ErrInvalidInput, name, v.Conversions, v.Impressions)
	}
	if !models.IsFinite(v.Price) || v.Price < 0 {
		return fmt.Errorf("%w: variant %q price must be non-negative", models.ErrInvalidInput, name)
	}
	return nil
}

// Engine runs the Monte-Carlo ranking. It is not safe for concurrent use.
type Engine struct {
	src     rand.Source
	samples int
}

type Option func(*Engine)

func WithSamples(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.samples = n
		}
	}
}

func NewEngine(src rand.Source, opts ...Option) *Engine {
	e := &Engine{src: src, samples: DefaultSamples}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate estimates for every variant the probability of being the best
// across joint posterior draws, and the expected conversion-rate loss of
// picking it. The winner is the variant with the highest probability; ties
// go to the lexically first name. With fewer than two variants or no
// impressions at all the result is empty.
func (e *Engine) Evaluate(variants map[string]models.Variant) (models.WinnerResult, error) {
	res := models.WinnerResult{Probabilities: map[string]float64{}}

	names := make([]string, 0, len(variants))
	var impressions int64
	for name, v := range variants {
		if err := ValidateVariant(name, v); err != nil {
			return models.WinnerResult{}, err
		}
		names = append(names, name)
		impressions += v.Impressions
	}
	if len(names) < 2 || impressions == 0 {
		return res, nil
	}
	slices.Sort(names)

	dists := make([]distuv.Beta, len(names))
	res.Posteriors = make(map[string]models.Posterior, len(names))
	for i, name := range names {
		p := Posterior(variants[name])
		res.Posteriors[name] = p
		dists[i] = distuv.Beta{Alpha: p.Alpha, Beta: p.Beta, Src: e.src}
	}

	wins := make([]int, len(names))
	loss := make([]float64, len(names))
	draw := make([]float64, len(names))
	for s := 0; s < e.samples; s++ {
		top, topVal := 0, math.Inf(-1)
		for i := range dists {
			draw[i] = dists[i].Rand()
			if draw[i] > topVal {
				top, topVal = i, draw[i]
			}
		}
		wins[top]++
		for i := range draw {
			loss[i] += topVal - draw[i]
		}
	}

	res.ExpectedLoss = make(map[string]float64, len(names))
	n := float64(e.samples)
	for i, name := range names {
		prob := float64(wins[i]) / n
		res.Probabilities[name] = prob
		res.ExpectedLoss[name] = loss[i] / n
		if prob > res.Confidence || res.Winner == "" {
			res.Winner, res.Confidence = name, prob
		}
	}
	res.Samples = e.samples
	return res, nil
}
