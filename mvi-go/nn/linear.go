// Package nn provides the deterministic, forward-only neural building
// blocks used by the encoders and decoders: linear maps, layer
// normalization and fully-connected stacks with covariate injection.
// Parameters are exported; updating them is the caller's concern.
package nn

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Linear is an affine map y = Wx + b.
type Linear struct {
	W *mat.Dense // out x in
	B []float64  // out
}

// NewLinear returns a Linear with He-scaled random weights.
func NewLinear(in, out int, rng *rand.Rand) *Linear {
	w := mat.NewDense(out, in, nil)
	sd := math.Sqrt(2 / float64(max(in, 1)))
	for i := 0; i < out; i++ {
		for j := 0; j < in; j++ {
			w.Set(i, j, rng.NormFloat64()*sd)
		}
	}
	return &Linear{W: w, B: make([]float64, out)}
}

// In returns the input dimension.
func (l *Linear) In() int {
	_, in := l.W.Dims()
	return in
}

// Out returns the output dimension.
func (l *Linear) Out() int {
	out, _ := l.W.Dims()
	return out
}

// Forward applies the affine map to x.
func (l *Linear) Forward(x []float64) []float64 {
	out, _ := l.W.Dims()
	y := make([]float64, out)
	for i := 0; i < out; i++ {
		y[i] = l.B[i] + floats.Dot(l.W.RawRowView(i), x)
	}
	return y
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
