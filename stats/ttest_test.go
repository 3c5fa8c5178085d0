package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOneSampleTTestNotOkBelowTwoSamples(t *testing.T) {
	_, ok := OneSampleTTest([]float64{1})
	assert.False(t, ok)
	_, ok = OneSampleTTest(nil)
	assert.False(t, ok)
}

func TestOneSampleTTestZeroMeanIsNotSignificant(t *testing.T) {
	result, ok := OneSampleTTest([]float64{1, -1, 1, -1, 1, -1})
	require.True(t, ok)
	assert.InDelta(t, 1.0, result.PValue, 0.05)
}

func TestOneSampleTTestStronglyShiftedSampleIsSignificant(t *testing.T) {
	samples := []float64{10, 11, 9, 10.5, 9.5, 10.2, 9.8, 10.1, 9.9, 10.3}
	result, ok := OneSampleTTest(samples)
	require.True(t, ok)
	assert.Less(t, result.PValue, 0.01)
}

func TestOneSampleTTestDegenerateZeroVarianceZeroMean(t *testing.T) {
	result, ok := OneSampleTTest([]float64{0, 0, 0})
	require.True(t, ok)
	assert.Equal(t, 0.0, result.TStatistic)
	assert.Equal(t, 1.0, result.PValue)
}

func TestOneSampleTTestDegenerateZeroVarianceNonzeroMean(t *testing.T) {
	result, ok := OneSampleTTest([]float64{5, 5, 5})
	require.True(t, ok)
	assert.True(t, math.IsInf(result.TStatistic, 1))
	assert.Equal(t, 0.0, result.PValue)
}

func TestTwoSidedPValueMonotonicInAbsT(t *testing.T) {
	small := TwoSidedPValue(0.5, 10)
	large := TwoSidedPValue(3.0, 10)
	assert.Greater(t, small, large)
}

func TestTwoSidedPValueAtZeroIsOne(t *testing.T) {
	p := TwoSidedPValue(0, 20)
	assert.InDelta(t, 1.0, p, 1e-9)
}
