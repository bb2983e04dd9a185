package vae

import (
	"math/rand"

	"github.com/mosaicvi/mosaicvi/mvi-go/nn"
)

// gateRenormEps keeps the gating renormalization denominator away from
// zero when every modality is masked absent.
const gateRenormEps = 1e-8

// GatingNetwork computes mask-respecting mixture weights over modalities
// from the per-modality posterior statistics: one learned linear map over
// the concatenated means, variances and masks, a softmax over modalities,
// masking, and a renormalization.
type GatingNetwork struct {
	FC *nn.Linear
}

// NewGatingNetwork builds the gate for the given latent dimension.
func NewGatingNetwork(latent int, rng *rand.Rand) *GatingNetwork {
	in := 2*NumModalities*latent + NumModalities
	return &GatingNetwork{FC: nn.NewLinear(in, NumModalities, rng)}
}

// Weights returns one weight per modality for a single observation.
// Entries are non-negative, exactly 0 for masked-absent modalities, and
// sum to 1 whenever at least one modality is present.
func (g *GatingNetwork) Weights(means, variances [NumModalities][]float64, present [NumModalities]bool) []float64 {
	var in []float64
	for _, m := range means {
		in = append(in, m...)
	}
	for _, v := range variances {
		in = append(in, v...)
	}
	for _, p := range present {
		if p {
			in = append(in, 1)
		} else {
			in = append(in, 0)
		}
	}

	w := nn.Softmax(g.FC.Forward(in))
	var sum float64
	for i := range w {
		if !present[i] {
			w[i] = 0
		}
		sum += w[i]
	}
	for i := range w {
		w[i] /= sum + gateRenormEps
	}
	return w
}
