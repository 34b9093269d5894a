package bayesopt

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"PriceOpt/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOptimizer(t *testing.T, bounds []Bound, seed uint64, opts ...Option) *Optimizer {
	t.Helper()
	o, err := New(bounds, rand.NewPCG(seed, seed+1), opts...)
	require.NoError(t, err)
	return o
}

func inBounds(x []float64, bounds []Bound) bool {
	for i, b := range bounds {
		if x[i] < b.Lower || x[i] > b.Upper {
			return false
		}
	}
	return true
}

func TestBestIsMonotonicNonDecreasing(t *testing.T) {
	bounds := []Bound{{-5, 5}, {0, 1}}
	o := newOptimizer(t, bounds, 3)
	rng := rand.New(rand.NewPCG(99, 100))

	prev := math.Inf(-1)
	for i := 0; i < 200; i++ {
		x := o.ProposeNext()
		require.True(t, inBounds(x, bounds))
		require.NoError(t, o.Update(x, rng.NormFloat64()*10))

		best, ok := o.Best()
		require.True(t, ok)
		require.GreaterOrEqual(t, best.Y, prev)
		prev = best.Y
	}
	assert.Equal(t, 200, o.Len())
}

func TestBestKeepsFirstOnTies(t *testing.T) {
	o := newOptimizer(t, []Bound{{0, 1}}, 1)
	require.NoError(t, o.Update([]float64{0.1}, 2))
	require.NoError(t, o.Update([]float64{0.9}, 2))
	require.NoError(t, o.Update([]float64{0.5}, 1))
	best, ok := o.Best()
	require.True(t, ok)
	assert.Equal(t, []float64{0.1}, best.X)
	assert.Equal(t, 2.0, best.Y)
}

func TestBestBeforeUpdate(t *testing.T) {
	o := newOptimizer(t, []Bound{{0, 1}}, 1)
	_, ok := o.Best()
	assert.False(t, ok)
	assert.Equal(t, 0.0, o.ExpectedImprovement([]float64{0.5}))
}

func TestProposalsAreSeeded(t *testing.T) {
	bounds := []Bound{{10, 20}}
	a := newOptimizer(t, bounds, 5)
	b := newOptimizer(t, bounds, 5)
	for i := 0; i < 12; i++ {
		xa, xb := a.ProposeNext(), b.ProposeNext()
		require.Equal(t, xa, xb)
		y := -(xa[0] - 14) * (xa[0] - 14)
		require.NoError(t, a.Update(xa, y))
		require.NoError(t, b.Update(xb, y))
	}
}

func TestExpectedImprovementPrefersPromisingRegion(t *testing.T) {
	o := newOptimizer(t, []Bound{{0, 10}}, 1)
	for _, x := range []float64{1, 2, 3, 7, 8} {
		require.NoError(t, o.Update([]float64{x}, -(x-8)*(x-8)))
	}
	near := o.ExpectedImprovement([]float64{8.2})
	far := o.ExpectedImprovement([]float64{1.5})
	assert.Greater(t, near, far)
	assert.GreaterOrEqual(t, far, 0.0)
}

func TestRunImprovesOnQuadratic(t *testing.T) {
	bounds := []Bound{{0, 10}, {0, 10}}
	o := newOptimizer(t, bounds, 17)
	objective := func(_ context.Context, x []float64) (float64, error) {
		return -((x[0]-6)*(x[0]-6) + (x[1]-4)*(x[1]-4)), nil
	}

	res, err := o.Run(context.Background(), objective, 60)
	require.NoError(t, err)
	assert.Equal(t, 60, res.Iterations)
	require.Len(t, res.Trace, 60)
	for i := 1; i < len(res.Trace); i++ {
		require.GreaterOrEqual(t, res.Trace[i], res.Trace[i-1])
	}
	assert.True(t, inBounds(res.Best.X, bounds))
	assert.Equal(t, res.Trace[len(res.Trace)-1], res.Best.Y)
	assert.GreaterOrEqual(t, res.Best.Y, res.Trace[4])
}

func TestRunStopsOnObjectiveErrorAndCancel(t *testing.T) {
	o := newOptimizer(t, []Bound{{0, 1}}, 1)
	boom := errors.New("boom")
	calls := 0
	res, err := o.Run(context.Background(), func(context.Context, []float64) (float64, error) {
		calls++
		if calls == 3 {
			return 0, boom
		}
		return float64(calls), nil
	}, 10)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 2, res.Iterations)
	assert.Equal(t, 2.0, res.Best.Y)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = newOptimizer(t, []Bound{{0, 1}}, 1).Run(ctx, func(context.Context, []float64) (float64, error) { return 0, nil }, 5)
	require.ErrorIs(t, err, context.Canceled)
}

func TestValidation(t *testing.T) {
	_, err := New(nil, rand.NewPCG(1, 1))
	require.ErrorIs(t, err, models.ErrInvalidInput)
	_, err = New([]Bound{{2, 1}}, rand.NewPCG(1, 1))
	require.ErrorIs(t, err, models.ErrInvalidInput)
	_, err = New([]Bound{{0, 1}}, nil)
	require.ErrorIs(t, err, models.ErrInvalidInput)

	o := newOptimizer(t, []Bound{{0, 1}}, 1)
	require.ErrorIs(t, o.Update([]float64{0.5, 0.5}, 1), models.ErrInvalidInput)
	require.ErrorIs(t, o.Update([]float64{math.NaN()}, 1), models.ErrInvalidInput)
	require.ErrorIs(t, o.Update([]float64{0.5}, math.Inf(1)), models.ErrInvalidInput)
	_, err = o.Run(context.Background(), nil, 0)
	require.ErrorIs(t, err, models.ErrInvalidInput)
}
