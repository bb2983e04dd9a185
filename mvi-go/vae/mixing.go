package vae

import (
	"math"
	"math/rand"

	"github.com/mosaicvi/mosaicvi/mvi-go/distributions"
	"github.com/mosaicvi/mosaicvi/mvi-go/nn"
)

// JointPosterior is the combined posterior produced by the mixing engine.
// HasParams is false only under legacy configurations where the joint
// sample carries no parametric form; the loss composer then falls back to
// the delta-posterior KL approximation.
type JointPosterior struct {
	Mean      [][]float64
	Variance  [][]float64
	HasParams bool
}

// mixPoE combines the present modalities' posteriors by summing
// precisions. The constant unit precision is the implicit standard-normal
// prior, which keeps the joint posterior well defined when no modality is
// present: it then reduces to N(0, I).
func mixPoE(means, variances [NumModalities][][]float64, masks *Masks, latent int) ([][]float64, [][]float64) {
	n := len(masks.Expression)
	jointMean := make([][]float64, n)
	jointVar := make([][]float64, n)
	for i := 0; i < n; i++ {
		mu := make([]float64, latent)
		variance := make([]float64, latent)
		for d := 0; d < latent; d++ {
			precision := 1.0
			var weighted float64
			for m := 0; m < NumModalities; m++ {
				if !masks.Modality(Modality(m))[i] {
					continue
				}
				v := variances[m][i][d]
				if v < distributions.EpsVar {
					v = distributions.EpsVar
				}
				precision += 1 / v
				weighted += means[m][i][d] / v
			}
			variance[d] = 1 / precision
			mu[d] = weighted / precision
		}
		jointMean[i] = mu
		jointVar[i] = variance
	}
	return jointMean, jointVar
}

// mixMoE combines the posteriors as a weighted sum of means and a
// weight-squared sum of variances. The variance is that of a weighted sum
// of independent Gaussians conditioned on the weights, not a literal
// mixture variance; this simplification is intentional and load-bearing
// for compatibility. Weights are masked and renormalized so that absent
// modalities get exactly 0 and present weights sum to 1.
func mixMoE(means, variances [NumModalities][][]float64, masks *Masks, weights [][]float64, latent int) ([][]float64, [][]float64) {
	n := len(masks.Expression)
	jointMean := make([][]float64, n)
	jointVar := make([][]float64, n)
	for i := 0; i < n; i++ {
		w := normalizedWeights(weights[i], masks, i)
		mu := make([]float64, latent)
		variance := make([]float64, latent)
		for m := 0; m < NumModalities; m++ {
			if w[m] == 0 {
				continue
			}
			for d := 0; d < latent; d++ {
				mu[d] += w[m] * means[m][i][d]
				variance[d] += w[m] * w[m] * variances[m][i][d]
			}
		}
		jointMean[i] = mu
		jointVar[i] = variance
	}
	return jointMean, jointVar
}

// mixMean combines the posteriors with masked-softmax weights: the mean is
// the weighted sum of means, the variance the sqrt-weighted sum of
// variances.
func mixMean(means, variances [NumModalities][][]float64, masks *Masks, weights [][]float64, latent int) ([][]float64, [][]float64) {
	n := len(masks.Expression)
	jointMean := make([][]float64, n)
	jointVar := make([][]float64, n)
	for i := 0; i < n; i++ {
		present := [NumModalities]bool{}
		maskRow := make([]bool, NumModalities)
		for m := 0; m < NumModalities; m++ {
			present[m] = masks.Modality(Modality(m))[i]
			maskRow[m] = present[m]
		}
		w := distributions.MaskedSoftmax(weights[i], maskRow)
		mu := make([]float64, latent)
		variance := make([]float64, latent)
		for m := 0; m < NumModalities; m++ {
			if w[m] == 0 {
				continue
			}
			sw := sqrtWeight(w[m])
			for d := 0; d < latent; d++ {
				mu[d] += w[m] * means[m][i][d]
				variance[d] += sw * variances[m][i][d]
			}
		}
		jointMean[i] = mu
		jointVar[i] = variance
	}
	return jointMean, jointVar
}

// normalizedWeights masks a raw policy weight row and renormalizes it over
// the present modalities. If no modality is present all weights are 0.
func normalizedWeights(raw []float64, masks *Masks, i int) []float64 {
	w := make([]float64, NumModalities)
	var sum float64
	for m := 0; m < NumModalities; m++ {
		if masks.Modality(Modality(m))[i] {
			w[m] = raw[m]
			if w[m] < 0 {
				w[m] = 0
			}
			sum += w[m]
		}
	}
	if sum == 0 {
		return w
	}
	for m := range w {
		w[m] /= sum
	}
	return w
}

func sqrtWeight(w float64) float64 {
	if w <= 0 {
		return 0
	}
	return math.Sqrt(w)
}

// transformLatent applies the reference latent-space transformation:
// identity for a normal latent, softmax projection for logistic-normal.
func transformLatent(z []float64, latent LatentDistribution) []float64 {
	if latent == LatentLogisticNormal {
		return nn.Softmax(z)
	}
	return z
}

func sampleRows(mean, variance [][]float64, rng *rand.Rand) [][]float64 {
	out := make([][]float64, len(mean))
	for i := range mean {
		out[i] = distributions.SampleNormal(mean[i], variance[i], rng)
	}
	return out
}
