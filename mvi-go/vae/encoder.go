package vae

import (
	"math"
	"math/rand"

	"github.com/mosaicvi/mosaicvi/mvi-go/distributions"
	"github.com/mosaicvi/mosaicvi/mvi-go/nn"
)

// Encoder maps one modality's raw feature vector (plus covariates) to a
// diagonal-Gaussian posterior over the shared latent space. Implementations
// must return a variance that is strictly positive. The encoder is a black
// box to the rest of the engine; feature-structured internals live outside
// this package.
type Encoder interface {
	Encode(x []float64, cats []int, conts []float64) (mean, variance []float64)
	// LatentDim returns the dimension of the posterior.
	LatentDim() int
}

// GaussianEncoder is the standard MLP encoder: a fully-connected stack
// with a mean head and a log-variance head.
type GaussianEncoder struct {
	FC       *nn.FC
	MeanHead *nn.Linear
	VarHead  *nn.Linear
}

// NewGaussianEncoder builds an encoder for inputs of width in.
func NewGaussianEncoder(in, hidden, latent, nLayers int, cats []int, nCont int, rng *rand.Rand) *GaussianEncoder {
	return &GaussianEncoder{
		FC:       nn.NewFC(in, hidden, nLayers, cats, nCont, false, rng),
		MeanHead: nn.NewLinear(hidden, latent, rng),
		VarHead:  nn.NewLinear(hidden, latent, rng),
	}
}

// Encode returns the posterior mean and variance. The variance is
// exp(logvar) floored at distributions.EpsVar, never zero.
func (e *GaussianEncoder) Encode(x []float64, cats []int, conts []float64) ([]float64, []float64) {
	h := e.FC.Forward(x, cats, conts)
	mean := e.MeanHead.Forward(h)
	variance := e.VarHead.Forward(h)
	for i, v := range variance {
		variance[i] = math.Exp(v) + distributions.EpsVar
	}
	return mean, variance
}

// LatentDim returns the posterior dimension.
func (e *GaussianEncoder) LatentDim() int {
	return e.MeanHead.Out()
}

// LibraryEncoder estimates a per-observation log library size for the
// expression decoder.
type LibraryEncoder struct {
	FC   *nn.FC
	Head *nn.Linear
}

// NewLibraryEncoder builds a library-size estimator for inputs of width in.
func NewLibraryEncoder(in, hidden, nLayers int, cats []int, nCont int, rng *rand.Rand) *LibraryEncoder {
	return &LibraryEncoder{
		FC:   nn.NewFC(in, hidden, nLayers, cats, nCont, false, rng),
		Head: nn.NewLinear(hidden, 1, rng),
	}
}

// Estimate returns the log-library-size estimate for one observation.
func (e *LibraryEncoder) Estimate(x []float64, cats []int, conts []float64) float64 {
	out := nn.LeakyReLU(e.Head.Forward(e.FC.Forward(x, cats, conts)), 0.01)
	return out[0]
}

// DepthEncoder estimates a per-observation sequencing depth in (0, 1) for
// the accessibility noise mean.
type DepthEncoder struct {
	FC   *nn.FC
	Head *nn.Linear
}

// NewDepthEncoder builds an accessibility depth estimator.
func NewDepthEncoder(in, hidden, nLayers int, cats []int, nCont int, rng *rand.Rand) *DepthEncoder {
	return &DepthEncoder{
		FC:   nn.NewFC(in, hidden, nLayers, cats, nCont, false, rng),
		Head: nn.NewLinear(hidden, 1, rng),
	}
}

// Estimate returns the depth estimate for one observation.
func (e *DepthEncoder) Estimate(x []float64, cats []int, conts []float64) float64 {
	out := nn.Sigmoid(e.Head.Forward(e.FC.Forward(x, cats, conts)))
	return out[0]
}
