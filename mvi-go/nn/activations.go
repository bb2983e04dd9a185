package nn

import (
	"math"
)

// ReLU applies max(0, x) in place and returns x.
func ReLU(x []float64) []float64 {
	for i, v := range x {
		if v < 0 {
			x[i] = 0
		}
	}
	return x
}

// LeakyReLU applies x -> x for x >= 0 and slope*x otherwise, in place.
func LeakyReLU(x []float64, slope float64) []float64 {
	for i, v := range x {
		if v < 0 {
			x[i] = slope * v
		}
	}
	return x
}

// Softmax returns the softmax of x as a new slice.
func Softmax(x []float64) []float64 {
	out := make([]float64, len(x))
	if len(x) == 0 {
		return out
	}
	max := x[0]
	for _, v := range x[1:] {
		if v > max {
			max = v
		}
	}
	var sum float64
	for i, v := range x {
		out[i] = math.Exp(v - max)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// Softplus applies log(1+exp(x)) elementwise, returning a new slice.
func Softplus(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		switch {
		case v > 30:
			out[i] = v
		case v < -30:
			out[i] = math.Exp(v)
		default:
			out[i] = math.Log1p(math.Exp(v))
		}
	}
	return out
}

// Sigmoid applies the logistic function elementwise, returning a new slice.
func Sigmoid(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		if v >= 0 {
			out[i] = 1 / (1 + math.Exp(-v))
		} else {
			e := math.Exp(v)
			out[i] = e / (1 + e)
		}
	}
	return out
}

// Exp applies exp elementwise, returning a new slice.
func Exp(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = math.Exp(v)
	}
	return out
}

// L1Normalize scales x so its absolute values sum to 1, returning a new
// slice. A zero vector is returned unchanged.
func L1Normalize(x []float64) []float64 {
	out := make([]float64, len(x))
	var sum float64
	for _, v := range x {
		sum += math.Abs(v)
	}
	if sum == 0 {
		return out
	}
	for i, v := range x {
		out[i] = v / sum
	}
	return out
}
