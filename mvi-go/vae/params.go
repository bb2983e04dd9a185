package vae

import (
	"fmt"

	"github.com/mosaicvi/mosaicvi/mvi-go/nn"
)

// Parameter is one named learned tensor, flattened. Value aliases the
// model's own storage so an external optimizer can update parameters in
// place between forward passes.
type Parameter struct {
	Name  string
	Value []float64
}

// Parameters enumerates every learned tensor of the model. Fixed tensors
// (the equal-policy modality weights) are excluded.
func (m *Model) Parameters() []Parameter {
	var params []Parameter
	add := func(name string, value []float64) {
		if value != nil {
			params = append(params, Parameter{Name: name, Value: value})
		}
	}
	addLinear := func(name string, l *nn.Linear) {
		if l == nil {
			return
		}
		add(name+".weight", l.W.RawMatrix().Data)
		add(name+".bias", l.B)
	}
	addFC := func(name string, fc *nn.FC) {
		if fc == nil {
			return
		}
		for i, layer := range fc.Layers {
			addLinear(fmt.Sprintf("%s.%d", name, i), layer)
			add(fmt.Sprintf("%s.%d.norm.gamma", name, i), fc.Norms[i].Gamma)
			add(fmt.Sprintf("%s.%d.norm.beta", name, i), fc.Norms[i].Beta)
		}
	}
	addGaussian := func(name string, e Encoder) {
		g, ok := e.(*GaussianEncoder)
		if !ok {
			return
		}
		addFC(name+".fc", g.FC)
		addLinear(name+".mean", g.MeanHead)
		addLinear(name+".var", g.VarHead)
	}

	addGaussian("encoder.expression", m.ExprEncoder)
	addGaussian("encoder.accessibility", m.AccEncoder)
	addGaussian("encoder.protein", m.ProEncoder)

	addFC("library.fc", m.ExprLibrary.FC)
	addLinear("library.head", m.ExprLibrary.Head)
	addFC("depth.fc", m.AccDepth.FC)
	addLinear("depth.head", m.AccDepth.Head)

	if m.Gate != nil {
		addLinear("gate", m.Gate.FC)
	}

	if m.ExprDecoder != nil {
		addFC("decoder.expression.fc", m.ExprDecoder.FC)
		addLinear("decoder.expression.scale", m.ExprDecoder.ScaleHead)
		addLinear("decoder.expression.dropout", m.ExprDecoder.DropoutHead)
		addLinear("decoder.expression.dispersion", m.ExprDecoder.DispersionHead)
	}
	if m.AccDecoder != nil {
		addFC("decoder.accessibility.fc", m.AccDecoder.FC)
		addLinear("decoder.accessibility.head", m.AccDecoder.Head)
	}
	if m.ProDecoder != nil {
		addFC("decoder.protein.fore.fc", m.ProDecoder.ForeFC)
		addLinear("decoder.protein.fore.scale", m.ProDecoder.ForeScaleHead)
		addFC("decoder.protein.mix.fc", m.ProDecoder.MixFC)
		addLinear("decoder.protein.mix.head", m.ProDecoder.MixHead)
		addLinear("decoder.protein.dispersion", m.ProDecoder.DispersionHead)
	}

	if m.ExprDispersion.LogValues != nil {
		add("dispersion.expression", m.ExprDispersion.LogValues.RawMatrix().Data)
	}
	if m.ProDispersion.LogValues != nil {
		add("dispersion.protein", m.ProDispersion.LogValues.RawMatrix().Data)
	}

	add("protein.background.alpha", m.BackgroundAlpha.RawMatrix().Data)
	add("protein.background.logbeta", m.BackgroundLogBeta.RawMatrix().Data)
	add("region.factors", m.RegionFactors)

	if m.cfg.Weights == WeightsUniversal {
		add("weights.universal", m.ModWeights)
	}
	if m.CellWeights != nil {
		add("weights.cell", m.CellWeights.RawMatrix().Data)
	}
	return params
}
