package race

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPairedTEliminatesClearSeparation(t *testing.T) {
	best := []float64{3.20, 3.21, 3.19, 3.22, 3.20}
	other := []float64{4.01, 4.03, 3.99, 4.02, 4.00}

	d := PairedT(best, other, PolicyParams{Alpha: 0.05, Comparisons: 4})

	assert.True(t, d.Eliminate)
	assert.False(t, d.Fallback)
	assert.Greater(t, d.Lower, 0.0)
	assert.Greater(t, d.Upper, d.Lower)
}

func TestPairedTKeepsOverlappingCandidates(t *testing.T) {
	best := []float64{3.20, 3.30, 3.10, 3.25, 3.15}
	other := []float64{3.25, 3.15, 3.30, 3.10, 3.28}

	d := PairedT(best, other, PolicyParams{Alpha: 0.05, Comparisons: 1})

	assert.False(t, d.Eliminate)
	assert.False(t, d.Fallback)
	assert.Less(t, d.Lower, 0.0)
	assert.Greater(t, d.Upper, 0.0)
}

// The Bonferroni adjustment widens the interval: a difference that is
// borderline-significant alone must not eliminate when it is one of many
// simultaneous comparisons.
func TestPairedTMultiplicityAdjustment(t *testing.T) {
	best := []float64{3.0, 3.1, 2.9, 3.05, 2.95, 3.02, 2.98, 3.01}
	other := make([]float64, len(best))

	// A shift a bit beyond the unadjusted margin but well inside the
	// 200-way adjusted one.
	for i, v := range best {
		other[i] = v + 0.01 + 0.04*float64(i%2)
	}

	alone := PairedT(best, other, PolicyParams{Alpha: 0.05, Comparisons: 1})
	crowded := PairedT(best, other, PolicyParams{Alpha: 0.05, Comparisons: 200})

	assert.True(t, alone.Eliminate)
	assert.False(t, crowded.Eliminate)
}

func TestPairedTFallsBackOnDegenerateInput(t *testing.T) {
	// Too few paired folds.
	d := PairedT([]float64{3.0}, []float64{4.0}, PolicyParams{Alpha: 0.05})
	assert.True(t, d.Fallback)
	assert.True(t, d.Eliminate)

	// Zero-variance differences.
	d = PairedT([]float64{3, 3, 3}, []float64{4, 4, 4}, PolicyParams{Alpha: 0.05})
	assert.True(t, d.Fallback)
	assert.True(t, d.Eliminate)

	// Degenerate but not worse: keep.
	d = PairedT([]float64{3, 3, 3}, []float64{3, 3, 3}, PolicyParams{Alpha: 0.05})
	assert.True(t, d.Fallback)
	assert.False(t, d.Eliminate)
}

func TestMeanComparison(t *testing.T) {
	p := PolicyParams{Alpha: 0.05}

	assert.True(t, MeanComparison([]float64{3, 3}, []float64{3.1, 3.1}, p).Eliminate)
	assert.False(t, MeanComparison([]float64{3, 3}, []float64{2.9, 2.9}, p).Eliminate)
	assert.False(t, MeanComparison([]float64{3, 3}, []float64{3, 3}, p).Eliminate)
}

func TestStudentTQuantile(t *testing.T) {
	// Reference values from standard t tables.
	assert.InDelta(t, 2.228, tQuantile(0.975, 10), 0.01)
	assert.InDelta(t, 2.571, tQuantile(0.975, 5), 0.02)
	assert.InDelta(t, 1.96, tQuantile(0.975, 100000), 0.001)

	// Symmetric tails.
	assert.InDelta(t, -tQuantile(0.975, 10), tQuantile(0.025, 10), 1e-9)
}

func TestNormalQuantile(t *testing.T) {
	assert.InDelta(t, 1.959964, normalQuantile(0.975), 1e-5)
	assert.InDelta(t, -1.959964, normalQuantile(0.025), 1e-5)
	assert.InDelta(t, 0, normalQuantile(0.5), 1e-9)

	// Round-trips through the CDF.
	for _, p := range []float64{0.01, 0.2, 0.5, 0.9, 0.999} {
		assert.InDelta(t, p, normalCDF(normalQuantile(p)), 1e-6)
	}
}

func TestMeanAndStdErr(t *testing.T) {
	assert.InDelta(t, 2.0, mean([]float64{1, 2, 3}), 1e-12)
	assert.Zero(t, mean(nil))

	// sd of {1,2,3} is 1, over sqrt(3).
	assert.InDelta(t, 0.5773, stdErr([]float64{1, 2, 3}), 1e-4)
	assert.Zero(t, stdErr([]float64{1}))
	assert.Zero(t, stdErr([]float64{2, 2, 2}))
}
