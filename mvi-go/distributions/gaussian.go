package distributions

import (
	"math"
	"math/rand"
)

// StdNormalKL returns the KL divergence between a diagonal Gaussian with
// the given mean and variance and a standard normal, summed over
// dimensions. Variances are floored at EpsVar.
func StdNormalKL(mean, variance []float64) float64 {
	var kl float64
	for i, m := range mean {
		v := variance[i]
		if v < EpsVar {
			v = EpsVar
		}
		kl += 0.5 * (v + m*m - 1 - math.Log(v))
	}
	return kl
}

// NormalKL returns KL(N(m1, v1) || N(m2, v2)) for diagonal Gaussians,
// summed over dimensions. Variances are floored at EpsVar.
func NormalKL(m1, v1, m2, v2 []float64) float64 {
	var kl float64
	for i := range m1 {
		a := v1[i]
		b := v2[i]
		if a < EpsVar {
			a = EpsVar
		}
		if b < EpsVar {
			b = EpsVar
		}
		d := m1[i] - m2[i]
		kl += 0.5 * (math.Log(b/a) + (a+d*d)/b - 1)
	}
	return kl
}

// SymmetricKL returns the Jeffreys divergence between two diagonal
// Gaussians, summed over dimensions. It is symmetric in its arguments and
// zero when the two posteriors coincide.
func SymmetricKL(m1, v1, m2, v2 []float64) float64 {
	return NormalKL(m1, v1, m2, v2) + NormalKL(m2, v2, m1, v1)
}

// DeltaStdNormalKL is the legacy fallback used when the joint posterior
// carries no parametric form: the sample is treated as a delta-function
// posterior and compared elementwise against a standard normal, keeping
// only the sample-dependent term 0.5*z^2. Shipped mixing strategies never
// take this path; it is preserved for compatibility with legacy
// configurations.
func DeltaStdNormalKL(z []float64) float64 {
	var kl float64
	for _, zi := range z {
		kl += 0.5 * zi * zi
	}
	return kl
}

// SampleNormal draws a reparameterized sample mean + eps*sqrt(variance)
// from a diagonal Gaussian using the supplied generator. Variances are
// floored at EpsVar.
func SampleNormal(mean, variance []float64, rng *rand.Rand) []float64 {
	z := make([]float64, len(mean))
	for i, m := range mean {
		v := variance[i]
		if v < EpsVar {
			v = EpsVar
		}
		z[i] = m + rng.NormFloat64()*math.Sqrt(v)
	}
	return z
}

// MaskedSoftmax computes a softmax over the entries of logits whose mask is
// set; masked-out entries get weight exactly 0. If no entry is unmasked the
// result is all zeros.
func MaskedSoftmax(logits []float64, mask []bool) []float64 {
	w := make([]float64, len(logits))
	max := math.Inf(-1)
	for i, l := range logits {
		if mask[i] && l > max {
			max = l
		}
	}
	if math.IsInf(max, -1) {
		return w
	}
	var sum float64
	for i, l := range logits {
		if mask[i] {
			w[i] = math.Exp(l - max)
			sum += w[i]
		}
	}
	for i := range w {
		w[i] /= sum
	}
	return w
}
