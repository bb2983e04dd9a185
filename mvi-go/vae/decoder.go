package vae

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/mosaicvi/mosaicvi/mvi-go/distributions"
	"github.com/mosaicvi/mosaicvi/mvi-go/nn"
)

// foreScaleEps keeps the foreground scale strictly above 1 so the
// foreground rate always exceeds the sampled background rate.
const foreScaleEps = 1e-8

// DispersionTable holds noise-model dispersion parameters at a fixed
// granularity. Values are stored on the log scale and exponentiated at
// lookup; they are owned by the model and updated only by the external
// optimizer. For per-cell granularity the table is empty and the decoder
// emits dispersions from a dedicated head.
type DispersionTable struct {
	Granularity Dispersion
	LogValues   *mat.Dense // nFeatures x k
}

// NewDispersionTable allocates a table for nFeatures features.
func NewDispersionTable(nFeatures int, g Dispersion, nBatches, nLabels int, rng *rand.Rand) *DispersionTable {
	cols := 1
	switch g {
	case DispersionPerBatch:
		cols = nBatches
	case DispersionPerLabel:
		cols = nLabels
	case DispersionPerCell:
		return &DispersionTable{Granularity: g}
	}
	values := mat.NewDense(maxInt(nFeatures, 1), cols, nil)
	r, c := values.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			values.Set(i, j, rng.NormFloat64())
		}
	}
	t := &DispersionTable{Granularity: g, LogValues: values}
	if nFeatures == 0 {
		t.LogValues = mat.NewDense(1, cols, nil)
	}
	return t
}

// Lookup resolves the dispersion vector for one observation via a one-hot
// column selection on batch or label. Values are returned on the natural
// scale. Per-cell tables return nil; the caller uses the decoder head.
func (t *DispersionTable) Lookup(nFeatures, batchIdx, labelIdx int) []float64 {
	if t.Granularity == DispersionPerCell {
		return nil
	}
	col := 0
	switch t.Granularity {
	case DispersionPerBatch:
		col = batchIdx
	case DispersionPerLabel:
		col = labelIdx
	}
	out := make([]float64, nFeatures)
	for i := 0; i < nFeatures; i++ {
		out[i] = math.Exp(t.LogValues.At(i, col))
	}
	return out
}

// ExpressionDecoder maps the shared latent sample, covariates and a log
// size factor to the expression noise-model parameters.
type ExpressionDecoder struct {
	FC          *nn.FC
	ScaleHead   *nn.Linear
	DropoutHead *nn.Linear
	// DispersionHead is non-nil only under per-cell dispersion.
	DispersionHead *nn.Linear

	// SoftplusScale switches the scale activation from softmax to
	// softplus when size factors are externally supplied.
	SoftplusScale bool
}

// NewExpressionDecoder builds the decoder for nGenes output features.
func NewExpressionDecoder(cfg *Config, rng *rand.Rand) *ExpressionDecoder {
	d := &ExpressionDecoder{
		FC:            nn.NewFC(cfg.NLatent, cfg.NHidden, cfg.NLayersDecoder, cfg.covariateArities(), cfg.NContCovariates, cfg.DeepInjectCovariates, rng),
		ScaleHead:     nn.NewLinear(cfg.NHidden, cfg.NGenes, rng),
		DropoutHead:   nn.NewLinear(cfg.NHidden, cfg.NGenes, rng),
		SoftplusScale: cfg.UseSizeFactor,
	}
	if cfg.ExpressionDispersion == DispersionPerCell {
		d.DispersionHead = nn.NewLinear(cfg.NHidden, cfg.NGenes, rng)
	}
	return d
}

// Forward returns the per-gene scale, rate and dropout logits, plus the
// per-cell dispersion (nil unless configured). The rate is
// exp(logSizeFactor) * scale.
func (d *ExpressionDecoder) Forward(z []float64, logSizeFactor float64, cats []int, conts []float64) (scale, rate, dropout, dispersion []float64) {
	h := d.FC.Forward(z, cats, conts)
	raw := d.ScaleHead.Forward(h)
	if d.SoftplusScale {
		scale = nn.Softplus(raw)
	} else {
		scale = nn.Softmax(raw)
	}
	lib := math.Exp(logSizeFactor)
	rate = make([]float64, len(scale))
	for i, s := range scale {
		rate[i] = lib * s
	}
	dropout = d.DropoutHead.Forward(h)
	if d.DispersionHead != nil {
		dispersion = nn.Exp(d.DispersionHead.Forward(h))
	}
	return scale, rate, dropout, dispersion
}

// AccessibilityDecoder maps the shared latent sample and covariates to a
// per-region open probability.
type AccessibilityDecoder struct {
	FC   *nn.FC
	Head *nn.Linear
}

// NewAccessibilityDecoder builds the decoder for nRegions output features.
func NewAccessibilityDecoder(cfg *Config, rng *rand.Rand) *AccessibilityDecoder {
	return &AccessibilityDecoder{
		FC:   nn.NewFC(cfg.NLatent, cfg.NHidden, cfg.NLayersDecoder, cfg.covariateArities(), cfg.NContCovariates, cfg.DeepInjectCovariates, rng),
		Head: nn.NewLinear(cfg.NHidden, cfg.NRegions, rng),
	}
}

// Forward returns the per-region open probability in (0, 1).
func (d *AccessibilityDecoder) Forward(z []float64, cats []int, conts []float64) []float64 {
	return nn.Sigmoid(d.Head.Forward(d.FC.Forward(z, cats, conts)))
}

// ProteinOutputs holds the protein decoder outputs for one observation.
type ProteinOutputs struct {
	// LogBackMean is the stage-one sample of the log background rate.
	LogBackMean []float64
	RateBack    []float64
	ForeScale   []float64
	RateFore    []float64
	// Mixing holds the background-vs-foreground mixture logits.
	Mixing []float64
	// Scale is the L1-normalized, mixing-weighted foreground rate, kept
	// for diagnostics.
	Scale []float64
	// Dispersion is non-nil only under per-cell dispersion.
	Dispersion []float64
}

// ProteinDecoder reconstructs protein counts through an explicit
// two-stage procedure: stage one samples a per-protein background rate
// from the learned Gaussian prior, stage two is deterministic given that
// sample, predicting a foreground scale (>= 1) and mixture logits.
type ProteinDecoder struct {
	ForeFC        *nn.FC
	ForeScaleHead *nn.Linear
	MixFC         *nn.FC
	MixHead       *nn.Linear
	// DispersionHead is non-nil only under per-cell dispersion.
	DispersionHead *nn.Linear
}

// NewProteinDecoder builds the decoder for nProteins output features.
func NewProteinDecoder(cfg *Config, rng *rand.Rand) *ProteinDecoder {
	cats := cfg.covariateArities()
	d := &ProteinDecoder{
		ForeFC:        nn.NewFC(cfg.NLatent, cfg.NHidden, cfg.NLayersDecoder, cats, cfg.NContCovariates, cfg.DeepInjectCovariates, rng),
		ForeScaleHead: nn.NewLinear(cfg.NHidden+cfg.NLatent, cfg.NProteins, rng),
		MixFC:         nn.NewFC(cfg.NLatent, cfg.NHidden, cfg.NLayersDecoder, cats, cfg.NContCovariates, cfg.DeepInjectCovariates, rng),
		MixHead:       nn.NewLinear(cfg.NHidden+cfg.NLatent, cfg.NProteins, rng),
	}
	if cfg.ProteinDispersion == DispersionPerCell {
		d.DispersionHead = nn.NewLinear(cfg.NHidden, cfg.NProteins, rng)
	}
	return d
}

// Forward runs both stages for one observation. backAlpha and backBeta
// are the Gaussian prior location and scale for the log background rate
// (per protein, batch-specific when configured); the background sample is
// reparameterized through rng so results are reproducible under a fixed
// generator.
func (d *ProteinDecoder) Forward(z []float64, cats []int, conts []float64, backAlpha, backBeta []float64, rng *rand.Rand) ProteinOutputs {
	nProteins := d.ForeScaleHead.Out()
	out := ProteinOutputs{
		LogBackMean: make([]float64, nProteins),
		RateBack:    make([]float64, nProteins),
	}

	// Stage one: sample the background-rate latent.
	for i := 0; i < nProteins; i++ {
		out.LogBackMean[i] = backAlpha[i] + backBeta[i]*rng.NormFloat64()
		out.RateBack[i] = math.Exp(out.LogBackMean[i])
	}

	// Stage two: deterministic given the stage-one sample.
	foreH := d.ForeFC.Forward(z, cats, conts)
	foreIn := append(append([]float64(nil), foreH...), z...)
	out.ForeScale = nn.ReLU(d.ForeScaleHead.Forward(foreIn))
	out.RateFore = make([]float64, nProteins)
	for i := range out.ForeScale {
		out.ForeScale[i] += 1 + foreScaleEps
		out.RateFore[i] = out.RateBack[i] * out.ForeScale[i]
	}

	mixH := d.MixFC.Forward(z, cats, conts)
	mixIn := append(append([]float64(nil), mixH...), z...)
	out.Mixing = d.MixHead.Forward(mixIn)

	weighted := make([]float64, nProteins)
	for i, logit := range out.Mixing {
		weighted[i] = (1 - distributions.Sigmoid(logit)) * out.RateFore[i]
	}
	out.Scale = nn.L1Normalize(weighted)

	if d.DispersionHead != nil {
		out.Dispersion = nn.Exp(d.DispersionHead.Forward(foreH))
	}
	return out
}
