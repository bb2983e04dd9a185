package vae

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGatingWeightsSumToOne(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	g := NewGatingNetwork(4, rng)

	means := [NumModalities][]float64{
		{0.1, -0.2, 0.3, 0.4},
		{1, 1, 1, 1},
		{-0.5, 0.5, -0.5, 0.5},
	}
	variances := [NumModalities][]float64{
		{1, 1, 1, 1},
		{0.5, 0.5, 0.5, 0.5},
		{2, 2, 2, 2},
	}

	w := g.Weights(means, variances, [NumModalities]bool{true, true, true})
	require.Len(t, w, NumModalities)
	var sum float64
	for _, wi := range w {
		assert.GreaterOrEqual(t, wi, 0.0)
		sum += wi
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
}

func TestGatingMasksAbsentModalities(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	g := NewGatingNetwork(2, rng)

	means := [NumModalities][]float64{{1, 2}, {3, 4}, {5, 6}}
	variances := [NumModalities][]float64{{1, 1}, {1, 1}, {1, 1}}

	w := g.Weights(means, variances, [NumModalities]bool{true, false, true})
	assert.Equal(t, 0.0, w[ModalityAccessibility])
	assert.InDelta(t, 1.0, w[ModalityExpression]+w[ModalityProtein], 1e-6)
}

func TestGatingAllAbsent(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	g := NewGatingNetwork(2, rng)

	means := [NumModalities][]float64{{1, 2}, {3, 4}, {5, 6}}
	variances := [NumModalities][]float64{{1, 1}, {1, 1}, {1, 1}}

	w := g.Weights(means, variances, [NumModalities]bool{})
	for _, wi := range w {
		assert.Equal(t, 0.0, wi)
	}
}
