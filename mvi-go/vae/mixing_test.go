package vae

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// oneObsPosteriors builds single-observation per-modality posteriors for
// the mixing tests.
func oneObsPosteriors(means, variances [NumModalities][]float64) ([NumModalities][][]float64, [NumModalities][][]float64) {
	var ms, vs [NumModalities][][]float64
	for m := 0; m < NumModalities; m++ {
		ms[m] = [][]float64{means[m]}
		vs[m] = [][]float64{variances[m]}
	}
	return ms, vs
}

func TestPoEAllAbsentIsStandardNormal(t *testing.T) {
	ms, vs := oneObsPosteriors(
		[NumModalities][]float64{{5, 5}, {-3, 7}, {1, 1}},
		[NumModalities][]float64{{1, 1}, {2, 2}, {0.5, 0.5}},
	)
	masks := Masks{Expression: []bool{false}, Accessibility: []bool{false}, Protein: []bool{false}}
	mean, variance := mixPoE(ms, vs, &masks, 2)
	assert.InDeltaSlice(t, []float64{0, 0}, mean[0], 1e-12)
	assert.InDeltaSlice(t, []float64{1, 1}, variance[0], 1e-12)
}

func TestPoEVarianceShrinks(t *testing.T) {
	ms, vs := oneObsPosteriors(
		[NumModalities][]float64{{1, 2}, {3, 4}, {0, 0}},
		[NumModalities][]float64{{0.5, 2}, {1, 0.25}, {1, 1}},
	)
	masks := Masks{Expression: []bool{true}, Accessibility: []bool{true}, Protein: []bool{false}}
	_, variance := mixPoE(ms, vs, &masks, 2)
	for d := 0; d < 2; d++ {
		assert.Less(t, variance[0][d], vs[ModalityExpression][0][d])
		assert.Less(t, variance[0][d], vs[ModalityAccessibility][0][d])
		// The unit-precision prior keeps the joint tighter than N(0,1) too.
		assert.Less(t, variance[0][d], 1.0)
	}
}

func TestMoESinglePresentRecoversExpert(t *testing.T) {
	ms, vs := oneObsPosteriors(
		[NumModalities][]float64{{1, -2}, {9, 9}, {9, 9}},
		[NumModalities][]float64{{0.3, 0.7}, {9, 9}, {9, 9}},
	)
	masks := Masks{Expression: []bool{true}, Accessibility: []bool{false}, Protein: []bool{false}}
	weights := [][]float64{{1, 1, 1}}
	mean, variance := mixMoE(ms, vs, &masks, weights, 2)
	assert.InDeltaSlice(t, ms[ModalityExpression][0], mean[0], 1e-12)
	assert.InDeltaSlice(t, vs[ModalityExpression][0], variance[0], 1e-12)
}

func TestMoEWeightedCombination(t *testing.T) {
	ms, vs := oneObsPosteriors(
		[NumModalities][]float64{{0, 0}, {4, 4}, {0, 0}},
		[NumModalities][]float64{{1, 1}, {1, 1}, {1, 1}},
	)
	masks := Masks{Expression: []bool{true}, Accessibility: []bool{true}, Protein: []bool{false}}
	// Raw weights 3:1, absent modality's weight must be ignored entirely.
	weights := [][]float64{{3, 1, 100}}
	mean, variance := mixMoE(ms, vs, &masks, weights, 2)
	assert.InDeltaSlice(t, []float64{1, 1}, mean[0], 1e-12)
	// (0.75^2 + 0.25^2) = 0.625
	assert.InDeltaSlice(t, []float64{0.625, 0.625}, variance[0], 1e-12)
}

func TestMeanMixingSinglePresent(t *testing.T) {
	ms, vs := oneObsPosteriors(
		[NumModalities][]float64{{9, 9}, {2, -1}, {9, 9}},
		[NumModalities][]float64{{9, 9}, {0.4, 0.6}, {9, 9}},
	)
	masks := Masks{Expression: []bool{false}, Accessibility: []bool{true}, Protein: []bool{false}}
	weights := [][]float64{{0, 0, 0}}
	mean, variance := mixMean(ms, vs, &masks, weights, 2)
	// Masked softmax gives the lone present modality weight 1.
	assert.InDeltaSlice(t, ms[ModalityAccessibility][0], mean[0], 1e-12)
	assert.InDeltaSlice(t, vs[ModalityAccessibility][0], variance[0], 1e-12)
}

func TestNormalizedWeights(t *testing.T) {
	masks := Masks{Expression: []bool{true}, Accessibility: []bool{false}, Protein: []bool{true}}
	w := normalizedWeights([]float64{2, 5, 6}, &masks, 0)
	assert.InDelta(t, 0.25, w[0], 1e-12)
	assert.Equal(t, 0.0, w[1])
	assert.InDelta(t, 0.75, w[2], 1e-12)

	none := Masks{Expression: []bool{false}, Accessibility: []bool{false}, Protein: []bool{false}}
	w = normalizedWeights([]float64{1, 1, 1}, &none, 0)
	assert.Equal(t, []float64{0, 0, 0}, w)
}

func TestTransformLatent(t *testing.T) {
	z := []float64{1, 2, 3}
	assert.Equal(t, z, transformLatent(z, LatentNormal))

	s := transformLatent(z, LatentLogisticNormal)
	var sum float64
	for _, v := range s {
		require.Greater(t, v, 0.0)
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-12)
}

func TestSampleRowsReproducible(t *testing.T) {
	mean := [][]float64{{0, 1}, {2, 3}}
	variance := [][]float64{{1, 1}, {0.5, 0.25}}
	a := sampleRows(mean, variance, rand.New(rand.NewSource(7)))
	b := sampleRows(mean, variance, rand.New(rand.NewSource(7)))
	require.Equal(t, a, b)
	for i := range a {
		for d := range a[i] {
			assert.False(t, math.IsNaN(a[i][d]))
		}
	}
}
