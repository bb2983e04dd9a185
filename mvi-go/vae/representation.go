package vae

import (
	"math/rand"
)

// LatentRepresentation returns the per-observation latent embedding for
// downstream analysis. With useMean the raw joint posterior mean is
// returned without the latent transformation; otherwise a fresh
// transformed sample is drawn through rng.
func (m *Model) LatentRepresentation(b *Batch, useMean bool, rng *rand.Rand) ([][]float64, error) {
	inf, err := m.Inference(b, rng)
	if err != nil {
		return nil, err
	}
	if useMean && inf.Joint.HasParams {
		out := make([][]float64, len(inf.Joint.Mean))
		for i, row := range inf.Joint.Mean {
			out[i] = append([]float64(nil), row...)
		}
		return out, nil
	}
	return inf.Z, nil
}
