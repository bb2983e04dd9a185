// Package distributions implements the count likelihoods and Gaussian
// utilities shared by the decoders and the loss composer. All functions are
// pure and safe for concurrent use.
package distributions

import (
	"math"
)

const (
	// EpsLik keeps rates, dispersions and probabilities away from zero
	// inside log terms of the count likelihoods.
	EpsLik = 1e-8

	// EpsVar is the smallest variance allowed as a divisor or inside a
	// log in the Gaussian computations.
	EpsVar = 1e-8

	// EpsProb bounds Bernoulli means away from 0 and 1.
	EpsProb = 1e-8
)

// Softplus computes log(1+exp(x)) without overflow.
func Softplus(x float64) float64 {
	if x > 30 {
		return x
	}
	if x < -30 {
		return math.Exp(x)
	}
	return math.Log1p(math.Exp(x))
}

// Sigmoid computes 1/(1+exp(-x)).
func Sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

// LogSumExp2 computes log(exp(a)+exp(b)) stably.
func LogSumExp2(a, b float64) float64 {
	if a < b {
		a, b = b, a
	}
	if math.IsInf(a, -1) {
		return a
	}
	return a + math.Log1p(math.Exp(b-a))
}

// PoissonLogPMF returns log P(x) for a Poisson with the given rate.
func PoissonLogPMF(x, rate float64) float64 {
	r := rate + EpsLik
	lg, _ := math.Lgamma(x + 1)
	return x*math.Log(r) - r - lg
}

// PoissonNLL returns the negative log-likelihood of the counts x under
// independent Poissons with the given rates, summed over features.
func PoissonNLL(x, rate []float64) float64 {
	var nll float64
	for i, xi := range x {
		nll -= PoissonLogPMF(xi, rate[i])
	}
	return nll
}

// negBinomialLogPMF is the log-pmf of a negative binomial in the
// (mu, theta) parameterization, where mu is the mean and theta the
// inverse dispersion.
func negBinomialLogPMF(x, mu, theta float64) float64 {
	logThetaMu := math.Log(theta + mu + EpsLik)
	lgXTheta, _ := math.Lgamma(x + theta)
	lgTheta, _ := math.Lgamma(theta)
	lgX1, _ := math.Lgamma(x + 1)
	return theta*(math.Log(theta+EpsLik)-logThetaMu) +
		x*(math.Log(mu+EpsLik)-logThetaMu) +
		lgXTheta - lgTheta - lgX1
}

// NegBinomialNLL returns the negative log-likelihood of the counts x under
// independent negative binomials, summed over features.
func NegBinomialNLL(x, mu, theta []float64) float64 {
	var nll float64
	for i, xi := range x {
		nll -= negBinomialLogPMF(xi, mu[i], theta[i])
	}
	return nll
}

// ZeroInflatedNegBinomialNLL returns the negative log-likelihood of the
// counts x under independent zero-inflated negative binomials with
// zero-inflation logits, summed over features.
func ZeroInflatedNegBinomialNLL(x, mu, theta, logits []float64) float64 {
	var nll float64
	for i, xi := range x {
		pi := logits[i]
		th := theta[i]
		logThetaMu := math.Log(th + mu[i] + EpsLik)
		logThetaRatio := th * (math.Log(th+EpsLik) - logThetaMu)
		softplusNegPi := Softplus(-pi)
		if xi < EpsLik {
			// P(0) = sigmoid(pi) + (1-sigmoid(pi)) * NB(0)
			nll -= Softplus(pi+logThetaRatio) - softplusNegPi
			continue
		}
		lgXTheta, _ := math.Lgamma(xi + th)
		lgTheta, _ := math.Lgamma(th)
		lgX1, _ := math.Lgamma(xi + 1)
		nll -= -pi - softplusNegPi + logThetaRatio +
			xi*(math.Log(mu[i]+EpsLik)-logThetaMu) +
			lgXTheta - lgTheta - lgX1
	}
	return nll
}

// MixtureNegBinomialNLL returns the negative log-likelihood of the counts y
// under a two-component negative binomial mixture with shared dispersion.
// The mixture logits follow the convention of the protein decoder: the
// first component (background, mu1) carries weight sigmoid(-logit).
func MixtureNegBinomialNLL(y, mu1, mu2, theta, logits []float64) float64 {
	var nll float64
	for i, yi := range y {
		pi := logits[i]
		logNB1 := negBinomialLogPMF(yi, mu1[i], theta[i])
		logNB2 := negBinomialLogPMF(yi, mu2[i], theta[i])
		nll -= LogSumExp2(logNB1, logNB2+pi) - Softplus(pi)
	}
	return nll
}

// BernoulliNLL returns the negative log-likelihood of the binarized counts
// (x > 0) under independent Bernoullis with the given means, summed over
// features. Means are clamped to [EpsProb, 1-EpsProb].
func BernoulliNLL(x, mean []float64) float64 {
	var nll float64
	for i, xi := range x {
		m := mean[i]
		if m < EpsProb {
			m = EpsProb
		} else if m > 1-EpsProb {
			m = 1 - EpsProb
		}
		if xi > 0 {
			nll -= math.Log(m)
		} else {
			nll -= math.Log(1 - m)
		}
	}
	return nll
}
