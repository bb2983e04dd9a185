package nn

import (
	"math"
)

// layerNormEps keeps the normalization denominator away from zero.
const layerNormEps = 1e-5

// LayerNorm normalizes activations to zero mean and unit variance with a
// learned elementwise affine transform.
type LayerNorm struct {
	Gamma []float64
	Beta  []float64
}

// NewLayerNorm returns a LayerNorm over dim features initialized to the
// identity transform.
func NewLayerNorm(dim int) *LayerNorm {
	gamma := make([]float64, dim)
	for i := range gamma {
		gamma[i] = 1
	}
	return &LayerNorm{Gamma: gamma, Beta: make([]float64, dim)}
}

// Forward normalizes x, returning a new slice.
func (n *LayerNorm) Forward(x []float64) []float64 {
	out := make([]float64, len(x))
	if len(x) == 0 {
		return out
	}
	var mean float64
	for _, v := range x {
		mean += v
	}
	mean /= float64(len(x))
	var variance float64
	for _, v := range x {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(x))
	inv := 1 / math.Sqrt(variance+layerNormEps)
	for i, v := range x {
		out[i] = n.Gamma[i]*(v-mean)*inv + n.Beta[i]
	}
	return out
}
