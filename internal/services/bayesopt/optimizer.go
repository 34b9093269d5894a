// Package bayesopt is a small sequential optimizer for expensive scalar
// objectives. It proposes points by maximizing Expected Improvement under a
// kernel-weighted surrogate.
//
// An Optimizer is not safe for concurrent use; use one instance per run.
package bayesopt

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"PriceOpt/internal/domain/models"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	DefaultInitialPoints = 5
	DefaultCandidates    = 100
	DefaultLengthScale   = 0.2

	sigmaDecay = 0.1
	sigmaFloor = 0.01
	minWeight  = 1e-12
)

// Bound is the closed search range of one dimension.
type Bound struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

type Observation struct {
	X []float64 `json:"x"`
	Y float64   `json:"y"`
}

type Optimizer struct {
	bounds      []Bound
	rng         *rand.Rand
	initial     int
	candidates  int
	lengthScale float64

	observations []Observation
	best         Observation
	hasBest      bool
}

type Option func(*Optimizer)

// WithInitialPoints sets how many uniform random proposals precede EI.
func WithInitialPoints(n int) Option {
	return func(o *Optimizer) {
		if n > 0 {
			o.initial = n
		}
	}
}

// WithCandidates sets the number of random candidates scored per proposal.
func WithCandidates(n int) Option {
	return func(o *Optimizer) {
		if n > 0 {
			o.candidates = n
		}
	}
}

// WithLengthScale sets the kernel width in unit-cube coordinates.
func WithLengthScale(l float64) Option {
	return func(o *Optimizer) {
		if l > 0 {
			o.lengthScale = l
		}
	}
}

// New builds an optimizer over bounds drawing all randomness from src.
func New(bounds []Bound, src rand.Source, opts ...Option) (*Optimizer, error) {
	if len(bounds) == 0 {
		return nil, fmt.Errorf("%w: at least one bound is required", models.ErrInvalidInput)
	}
	for i, b := range bounds {
		if !models.IsFinite(b.Lower) || !models.IsFinite(b.Upper) || b.Lower > b.Upper {
			return nil, fmt.Errorf("%w: bound[%d] = [%v, %v] is not a finite interval", models.ErrInvalidInput, i, b.Lower, b.Upper)
		}
	}
	if src == nil {
		return nil, fmt.Errorf("%w: random source is required", models.ErrInvalidInput)
	}
	o := &Optimizer{
		bounds:      slices.Clone(bounds),
		rng:         rand.New(src),
		initial:     DefaultInitialPoints,
		candidates:  DefaultCandidates,
		lengthScale: DefaultLengthScale,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// ProposeNext returns the next point to evaluate. The first proposals are
// uniform random; afterwards the best of the random candidates by EI wins.
func (o *Optimizer) ProposeNext() []float64 {
	if len(o.observations) < o.initial {
		return o.uniform()
	}
	var (
		bestX  []float64
		bestEI = math.Inf(-1)
	)
	for i := 0; i < o.candidates; i++ {
		x := o.uniform()
		if ei := o.ExpectedImprovement(x); ei > bestEI {
			bestX, bestEI = x, ei
		}
	}
	return bestX
}

// Update records an observed objective value. Observations are append-only.
func (o *Optimizer) Update(x []float64, y float64) error {
	if len(x) != len(o.bounds) {
		return fmt.Errorf("%w: point has %d dimensions, want %d", models.ErrInvalidInput, len(x), len(o.bounds))
	}
	if !allFinite(x) || !models.IsFinite(y) {
		return fmt.Errorf("%w: observation must be finite", models.ErrInvalidInput)
	}
	obs := Observation{X: slices.Clone(x), Y: y}
	o.observations = append(o.observations, obs)
	if !o.hasBest || y > o.best.Y {
		o.best = obs
		o.hasBest = true
	}
	return nil
}

// Best returns the highest observed pair; ok is false before any Update.
func (o *Optimizer) Best() (Observation, bool) {
	if !o.hasBest {
		return Observation{}, false
	}
	return Observation{X: slices.Clone(o.best.X), Y: o.best.Y}, true
}

func (o *Optimizer) Len() int {
	return len(o.observations)
}

// ExpectedImprovement scores x against the best observed value:
// EI = (mu - best)*Phi(z) + sigma*phi(z), z = (mu - best)/sigma.
func (o *Optimizer) ExpectedImprovement(x []float64) float64 {
	if !o.hasBest {
		return 0
	}
	mu, sigma := o.surrogate(x)
	improvement := mu - o.best.Y
	z := improvement / sigma
	return improvement*distuv.UnitNormal.CDF(z) + sigma*distuv.UnitNormal.Prob(z)
}

// surrogate returns the kernel-weighted mean of observed values and a
// pseudo standard deviation that shrinks near existing observations.
func (o *Optimizer) surrogate(x []float64) (mu, sigma float64) {
	ys := make([]float64, len(o.observations))
	weights := make([]float64, len(o.observations))
	decay := 1.0
	for i, obs := range o.observations {
		k := o.kernel(x, obs.X)
		ys[i] = obs.Y
		weights[i] = k
		decay *= 1 - sigmaDecay*k
	}

	if floats.Sum(weights) > minWeight {
		mu = stat.Mean(ys, weights)
	} else {
		mu = stat.Mean(ys, nil)
	}

	amplitude := 1.0
	if len(ys) > 1 {
		if sd := stat.StdDev(ys, nil); sd > 0 {
			amplitude = sd
		}
	}
	return mu, math.Max(amplitude*decay, sigmaFloor)
}

// kernel is exp(-0.5 * d^2) on coordinates scaled to the unit cube and the length scale.
func (o *Optimizer) kernel(a, b []float64) float64 {
	d2 := 0.0
	for i, bd := range o.bounds {
		width := bd.Upper - bd.Lower
		if width == 0 {
			continue
		}
		d := (a[i] - b[i]) / width / o.lengthScale
		d2 += d * d
	}
	return math.Exp(-0.5 * d2)
}

func allFinite(xs []float64) bool {
	for _, v := range xs {
		if !models.IsFinite(v) {
			return false
		}
	}
	return true
}

func (o *Optimizer) uniform() []float64 {
	x := make([]float64, len(o.bounds))
	for i, b := range o.bounds {
		x[i] = b.Lower + o.rng.Float64()*(b.Upper-b.Lower)
	}
	return x
}

// Objective evaluates one point. Errors abort a Run.
type Objective func(ctx context.Context, x []float64) (float64, error)

type Result struct {
	Best       Observation `json:"best"`
	Trace      []float64   `json:"trace"`
	Iterations int         `json:"iterations"`
}

// Run alternates ProposeNext, objective and Update for the given number of
// iterations and reports the best pair plus the best-so-far trace.
func (o *Optimizer) Run(ctx context.Context, objective Objective, iterations int) (Result, error) {
	if iterations <= 0 {
		return Result{}, fmt.Errorf("%w: iterations must be positive", models.ErrInvalidInput)
	}
	res := Result{Trace: make([]float64, 0, iterations)}
	for i := 0; i < iterations; i++ {
		if err := ctx.Err(); err != nil {
			return o.finish(res), err
		}
		x := o.ProposeNext()
		y, err := objective(ctx, x)
		if err != nil {
			return o.finish(res), fmt.Errorf("objective at iteration %d: %w", i, err)
		}
		if err := o.Update(x, y); err != nil {
			return o.finish(res), err
		}
		res.Iterations++
		res.Trace = append(res.Trace, o.best.Y)
	}
	return o.finish(res), nil
}

func (o *Optimizer) finish(res Result) Result {
	if best, ok := o.Best(); ok {
		res.Best = best
	}
	return res
}
