package nn

import (
	"math/rand"
)

// FC is a stack of fully-connected hidden blocks (linear, layer norm,
// ReLU). Categorical covariates are injected as one-hot vectors and
// continuous covariates as raw values, into the first layer or into every
// layer when InjectAll is set.
type FC struct {
	Layers []*Linear
	Norms  []*LayerNorm

	CatArities []int
	NCont      int
	InjectAll  bool
}

// NewFC builds a stack of nLayers hidden blocks mapping in -> hidden.
func NewFC(in, hidden, nLayers int, catArities []int, nCont int, injectAll bool, rng *rand.Rand) *FC {
	fc := &FC{
		CatArities: append([]int(nil), catArities...),
		NCont:      nCont,
		InjectAll:  injectAll,
	}
	covDim := nCont
	for _, a := range catArities {
		covDim += a
	}
	for i := 0; i < nLayers; i++ {
		layerIn := hidden
		if i == 0 {
			layerIn = in
		}
		if i == 0 || injectAll {
			layerIn += covDim
		}
		fc.Layers = append(fc.Layers, NewLinear(layerIn, hidden, rng))
		fc.Norms = append(fc.Norms, NewLayerNorm(hidden))
	}
	return fc
}

// OutDim returns the output dimension of the stack.
func (fc *FC) OutDim() int {
	return fc.Layers[len(fc.Layers)-1].Out()
}

// Forward runs the stack. cats must have one code per configured
// categorical covariate; conts must have length NCont.
func (fc *FC) Forward(x []float64, cats []int, conts []float64) []float64 {
	covs := fc.covariates(cats, conts)
	h := x
	for i, layer := range fc.Layers {
		in := h
		if i == 0 || fc.InjectAll {
			in = append(append([]float64(nil), h...), covs...)
		}
		h = ReLU(fc.Norms[i].Forward(layer.Forward(in)))
	}
	return h
}

func (fc *FC) covariates(cats []int, conts []float64) []float64 {
	var covs []float64
	for i, arity := range fc.CatArities {
		oneHot := make([]float64, arity)
		if i < len(cats) && cats[i] >= 0 && cats[i] < arity {
			oneHot[cats[i]] = 1
		}
		covs = append(covs, oneHot...)
	}
	covs = append(covs, conts...)
	return covs
}
