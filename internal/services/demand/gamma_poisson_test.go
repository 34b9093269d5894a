package demand

import (
	"math"
	"math/rand/v2"
	"testing"

	"PriceOpt/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

func negBinomialSample(alpha, beta float64, n int, seed uint64) []int {
	src := rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	gamma := distuv.Gamma{Alpha: alpha, Beta: beta, Src: src}
	out := make([]int, n)
	for i := range out {
		out[i] = int(distuv.Poisson{Lambda: gamma.Rand(), Src: src}.Rand())
	}
	return out
}

func TestFitRecoversNegativeBinomialParameters(t *testing.T) {
	const alpha, beta = 3.0, 0.5
	for _, n := range []int{5000, 40000} {
		m, err := Fit(negBinomialSample(alpha, beta, n, 42))
		require.NoError(t, err)
		assert.False(t, m.Degenerate)
		assert.Greater(t, m.Overdispersion, 1.0)

		tol := 0.25
		if n >= 40000 {
			tol = 0.12
		}
		assert.InEpsilon(t, alpha, m.Alpha, tol, "alpha at n=%d", n)
		assert.InEpsilon(t, beta, m.Beta, tol, "beta at n=%d", n)
	}
}

func TestFitMomentsMatchClosedForm(t *testing.T) {
	counts := []int{0, 2, 9, 1, 14, 3, 0, 7}
	m, err := Fit(counts)
	require.NoError(t, err)

	xs := make([]float64, len(counts))
	for i, c := range counts {
		xs[i] = float64(c)
	}
	mean, variance := stat.MeanVariance(xs, nil)
	assert.InDelta(t, mean*mean/(variance-mean), m.Alpha, 1e-12)
	assert.InDelta(t, mean/(variance-mean), m.Beta, 1e-12)
	assert.InDelta(t, mean, m.Mean(), 1e-9)
	assert.InDelta(t, m.Alpha/(m.Beta*m.Beta), m.Variance(), 1e-12)
}

func TestFitUnderdispersedDegeneratesToPoisson(t *testing.T) {
	m, err := Fit([]int{5, 5, 6, 5, 4, 5})
	require.NoError(t, err)
	assert.True(t, m.Degenerate)
	assert.NotEmpty(t, m.Diagnostic)
	assert.Greater(t, m.Alpha, 0.0)
	assert.Greater(t, m.Beta, 0.0)
	assert.InDelta(t, 5.0, m.Mean(), 1e-9)
	assert.Less(t, m.Variance(), 1e-3)
	assert.Less(t, m.Overdispersion, 1.0)
}

func TestFitSingleAndZeroCounts(t *testing.T) {
	m, err := Fit([]int{7})
	require.NoError(t, err)
	assert.True(t, m.Degenerate)
	assert.InDelta(t, 7.0, m.Mean(), 1e-9)

	m, err = Fit([]int{0, 0, 0})
	require.NoError(t, err)
	assert.True(t, m.Degenerate)
	assert.Greater(t, m.Alpha, 0.0)
}

func TestFitRejectsInvalidCounts(t *testing.T) {
	_, err := Fit(nil)
	require.ErrorIs(t, err, models.ErrInvalidInput)
	_, err = Fit([]int{})
	require.ErrorIs(t, err, models.ErrInvalidInput)
	_, err = Fit([]int{3, -1})
	require.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestPredictorIntervalIsSeededAndOrdered(t *testing.T) {
	model := models.DemandModel{Alpha: 3, Beta: 0.5}

	a, err := NewPredictor(model, rand.NewPCG(1, 2)).Interval(2000, 0.05, 0.95)
	require.NoError(t, err)
	b, err := NewPredictor(model, rand.NewPCG(1, 2)).Interval(2000, 0.05, 0.95)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.LessOrEqual(t, a.Lower, a.Upper)
	assert.True(t, a.Contains(model.Mean()))
	assert.GreaterOrEqual(t, a.Lower, 0.0)
}

func TestPredictorSampleMeanTracksModel(t *testing.T) {
	model := models.DemandModel{Alpha: 20, Beta: 2}
	draws := NewPredictor(model, rand.NewPCG(7, 7)).Sample(20000)
	assert.InEpsilon(t, 10.0, stat.Mean(draws, nil), 0.05)
	for _, d := range draws {
		require.False(t, math.IsNaN(d))
		require.GreaterOrEqual(t, d, 0.0)
	}
}

func TestPredictorIntervalValidation(t *testing.T) {
	p := NewPredictor(models.DemandModel{Alpha: 1, Beta: 1}, rand.NewPCG(1, 1))
	_, err := p.Interval(0, 0.05, 0.95)
	require.ErrorIs(t, err, models.ErrInvalidInput)
	_, err = p.Interval(10, 0.9, 0.1)
	require.ErrorIs(t, err, models.ErrInvalidInput)
}
