package vae

import (
	"math"
	"math/rand"
	"runtime"

	"gonum.org/v1/gonum/mat"

	"github.com/mosaicvi/mosaicvi/mvi-go/distributions"
	"github.com/mosaicvi/mosaicvi/mvi-golib/errors"
	"github.com/mosaicvi/mosaicvi/mvi-golib/workerpool"
)

// Model owns the learned state of the integration engine: the per-modality
// encoders and decoders, the dispersion tables, the protein background
// prior, the modality-weight tensors and the optional gating network.
// Forward passes never mutate the model; parameter updates are the
// external optimizer's concern.
type Model struct {
	cfg Config

	ExprEncoder Encoder
	AccEncoder  Encoder
	ProEncoder  Encoder

	ExprLibrary *LibraryEncoder
	AccDepth    *DepthEncoder

	Gate *GatingNetwork

	ExprDecoder *ExpressionDecoder
	AccDecoder  *AccessibilityDecoder
	ProDecoder  *ProteinDecoder

	ExprDispersion *DispersionTable
	ProDispersion  *DispersionTable

	// BackgroundAlpha and BackgroundLogBeta parameterize the Gaussian
	// prior of the protein log background rate, one column per batch
	// (a single column when NBatches == 0).
	BackgroundAlpha   *mat.Dense
	BackgroundLogBeta *mat.Dense

	// RegionFactors are the optional learned per-region scaling factors,
	// squashed through a logistic at loss time. Nil when disabled.
	RegionFactors []float64

	// ModWeights holds the global modality weights for the equal and
	// universal policies.
	ModWeights []float64
	// CellWeights is the per-observation weight table, indexed by the
	// stable cell index assigned at dataset registration. Indices are
	// assigned once and never reused across observations.
	CellWeights *mat.Dense
}

// InferenceOutputs holds everything produced by one inference pass. All
// tensors are freshly allocated per call; no scratch state is shared
// between passes.
type InferenceOutputs struct {
	Masks Masks

	// Means and Variances are the marginal per-modality posteriors,
	// indexed [modality][observation][dim].
	Means     [NumModalities][][]float64
	Variances [NumModalities][][]float64
	// ModalityZ are the per-modality latent samples, used only for
	// diagnostics and multi-sample mean mixing.
	ModalityZ [NumModalities][][]float64

	// Weights is the per-observation modality weight row produced by
	// the configured policy.
	Weights [][]float64

	Joint JointPosterior
	// UntransformedZ is the reparameterized joint sample; Z is the same
	// sample after the reference latent transformation. Every decoder
	// in the same forward pass consumes this one sample.
	UntransformedZ [][]float64
	Z              [][]float64

	// LibraryExpr is the per-observation log-library estimate for the
	// expression decoder; DepthAcc the accessibility depth estimate.
	LibraryExpr []float64
	DepthAcc    []float64
}

// GenerativeOutputs holds the decoder outputs for one generative pass.
type GenerativeOutputs struct {
	PatientIndex []int

	AccProbability [][]float64

	ExprScale      [][]float64
	ExprRate       [][]float64
	ExprDropout    [][]float64
	ExprDispersion [][]float64

	Protein           []ProteinOutputs
	ProteinDispersion [][]float64
}

// New constructs a model from the configuration, drawing initial
// parameters from rng. Invalid configurations fail here, not at forward
// time.
func New(cfg Config, rng *rand.Rand) (*Model, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	m := &Model{cfg: cfg}

	encCats, encCont := []int(nil), 0
	if cfg.EncodeCovariates {
		encCats = cfg.covariateArities()
		encCont = cfg.NContCovariates
	}

	m.ExprEncoder = NewGaussianEncoder(cfg.inputDim(ModalityExpression), cfg.NHidden, cfg.NLatent, cfg.NLayersEncoder, encCats, encCont, rng)
	m.AccEncoder = NewGaussianEncoder(cfg.inputDim(ModalityAccessibility), cfg.NHidden, cfg.NLatent, cfg.NLayersEncoder, encCats, encCont, rng)
	m.ProEncoder = NewGaussianEncoder(cfg.inputDim(ModalityProtein), cfg.NHidden, cfg.NLatent, cfg.NLayersEncoder, encCats, encCont, rng)

	m.ExprLibrary = NewLibraryEncoder(cfg.inputDim(ModalityExpression), cfg.NHidden, cfg.NLayersEncoder, encCats, encCont, rng)
	m.AccDepth = NewDepthEncoder(cfg.inputDim(ModalityAccessibility), cfg.NHidden, cfg.NLayersEncoder, encCats, encCont, rng)

	if cfg.NGenes > 0 {
		m.ExprDecoder = NewExpressionDecoder(&cfg, rng)
	}
	if cfg.NRegions > 0 {
		m.AccDecoder = NewAccessibilityDecoder(&cfg, rng)
		if cfg.RegionFactors {
			m.RegionFactors = make([]float64, cfg.NRegions)
		}
	}
	if cfg.NProteins > 0 {
		m.ProDecoder = NewProteinDecoder(&cfg, rng)
	}

	m.ExprDispersion = NewDispersionTable(cfg.NGenes, cfg.ExpressionDispersion, maxInt(cfg.NBatches, 1), maxInt(cfg.NLabels, 1), rng)
	m.ProDispersion = NewDispersionTable(cfg.NProteins, cfg.ProteinDispersion, maxInt(cfg.NBatches, 1), maxInt(cfg.NLabels, 1), rng)

	nPro := maxInt(cfg.NProteins, 1)
	nBatch := maxInt(cfg.NBatches, 1)
	m.BackgroundAlpha = mat.NewDense(nPro, nBatch, nil)
	m.BackgroundLogBeta = mat.NewDense(nPro, nBatch, nil)
	for i := 0; i < nPro; i++ {
		for j := 0; j < nBatch; j++ {
			m.BackgroundAlpha.Set(i, j, rng.NormFloat64())
			m.BackgroundLogBeta.Set(i, j, clamp(rng.NormFloat64(), -10, 1))
		}
	}

	switch cfg.Weights {
	case WeightsEqual, WeightsUniversal:
		m.ModWeights = []float64{1, 1, 1}
	case WeightsPerCell:
		m.CellWeights = mat.NewDense(cfg.NObs, NumModalities, nil)
		for i := 0; i < cfg.NObs; i++ {
			for j := 0; j < NumModalities; j++ {
				m.CellWeights.Set(i, j, 1)
			}
		}
	case WeightsGated:
		m.Gate = NewGatingNetwork(cfg.NLatent, rng)
	}

	return m, nil
}

// Config returns a copy of the model configuration.
func (m *Model) Config() Config {
	return m.cfg
}

// Inference runs the per-modality encoders, derives the masks and
// modality weights, mixes the posteriors under the configured strategy and
// draws the shared joint sample. Encoder forward passes fan out across a
// worker pool; all sampling happens on the caller's goroutine so a fixed
// generator reproduces runs exactly.
func (m *Model) Inference(b *Batch, rng *rand.Rand) (*InferenceOutputs, error) {
	if err := b.validate(&m.cfg); err != nil {
		return nil, err
	}
	n := b.Len()
	out := &InferenceOutputs{Masks: DeriveMasks(b)}
	for mod := 0; mod < NumModalities; mod++ {
		out.Means[mod] = make([][]float64, n)
		out.Variances[mod] = make([][]float64, n)
		out.ModalityZ[mod] = make([][]float64, n)
	}
	out.LibraryExpr = make([]float64, n)
	out.DepthAcc = make([]float64, n)

	encoders := [NumModalities]Encoder{m.ExprEncoder, m.AccEncoder, m.ProEncoder}

	encCats := func(i int) []int {
		if m.cfg.EncodeCovariates {
			return b.catsAt(i)
		}
		return nil
	}
	encConts := func(i int) []float64 {
		if m.cfg.EncodeCovariates {
			return b.contsAt(i)
		}
		return nil
	}

	pool := workerpool.New(runtime.NumCPU())
	defer pool.Stop()
	jobs := make([]workerpool.Job, 0, n)
	for i := 0; i < n; i++ {
		i := i
		jobs = append(jobs, func() error {
			cats, conts := encCats(i), encConts(i)
			for mod := 0; mod < NumModalities; mod++ {
				x := m.modalityInput(b, Modality(mod), i)
				mean, variance := encoders[mod].Encode(x, cats, conts)
				out.Means[mod][i] = mean
				out.Variances[mod][i] = variance
			}
			out.LibraryExpr[i] = m.ExprLibrary.Estimate(m.modalityInput(b, ModalityExpression, i), cats, conts)
			out.DepthAcc[i] = m.AccDepth.Estimate(m.modalityInput(b, ModalityAccessibility, i), cats, conts)
			return nil
		})
	}
	pool.Add(jobs)
	if err := pool.Wait(); err != nil {
		return nil, err
	}

	// Per-modality samples, in observation order for reproducibility.
	for i := 0; i < n; i++ {
		for mod := 0; mod < NumModalities; mod++ {
			z := distributions.SampleNormal(out.Means[mod][i], out.Variances[mod][i], rng)
			out.ModalityZ[mod][i] = transformLatent(z, m.cfg.Latent)
		}
	}

	weights, err := m.modalityWeights(b, out)
	if err != nil {
		return nil, err
	}
	out.Weights = weights

	switch m.cfg.Mixing {
	case ProductOfExperts:
		mean, variance := mixPoE(out.Means, out.Variances, &out.Masks, m.cfg.NLatent)
		out.Joint = JointPosterior{Mean: mean, Variance: variance, HasParams: true}
	case MixtureOfExperts:
		mean, variance := mixMoE(out.Means, out.Variances, &out.Masks, weights, m.cfg.NLatent)
		out.Joint = JointPosterior{Mean: mean, Variance: variance, HasParams: true}
	case MeanMixing:
		mean, variance := mixMean(out.Means, out.Variances, &out.Masks, weights, m.cfg.NLatent)
		out.Joint = JointPosterior{Mean: mean, Variance: variance, HasParams: true}
	default:
		return nil, errors.Errorf("vae: no mixing strategy enabled")
	}

	out.UntransformedZ = sampleRows(out.Joint.Mean, out.Joint.Variance, rng)
	out.Z = make([][]float64, n)
	for i, z := range out.UntransformedZ {
		out.Z[i] = transformLatent(z, m.cfg.Latent)
	}
	return out, nil
}

// LatentSamples holds additional joint draws requested beyond the shared
// sample, with the library tensors replicated to match.
type LatentSamples struct {
	Z           [][][]float64 // sample x observation x dim
	LibraryExpr [][]float64
	DepthAcc    [][]float64
}

// SampleJoint draws nSamples further latent samples from the joint
// posterior. The shared sample consumed by the decoders is unaffected.
func (m *Model) SampleJoint(inf *InferenceOutputs, nSamples int, rng *rand.Rand) *LatentSamples {
	out := &LatentSamples{
		Z:           make([][][]float64, nSamples),
		LibraryExpr: make([][]float64, nSamples),
		DepthAcc:    make([][]float64, nSamples),
	}
	for s := 0; s < nSamples; s++ {
		rows := sampleRows(inf.Joint.Mean, inf.Joint.Variance, rng)
		for i, z := range rows {
			rows[i] = transformLatent(z, m.cfg.Latent)
		}
		out.Z[s] = rows
		out.LibraryExpr[s] = append([]float64(nil), inf.LibraryExpr...)
		out.DepthAcc[s] = append([]float64(nil), inf.DepthAcc...)
	}
	return out
}

// Generative reconstructs every modality's noise-model parameters from
// the shared latent sample (or the joint posterior mean when useMean is
// set). The protein decoder resamples its background-rate latent through
// rng.
func (m *Model) Generative(b *Batch, inf *InferenceOutputs, useMean bool, rng *rand.Rand) (*GenerativeOutputs, error) {
	n := b.Len()
	out := &GenerativeOutputs{
		PatientIndex:      append([]int(nil), b.PatientIndex...),
		AccProbability:    make([][]float64, n),
		ExprScale:         make([][]float64, n),
		ExprRate:          make([][]float64, n),
		ExprDropout:       make([][]float64, n),
		ExprDispersion:    make([][]float64, n),
		Protein:           make([]ProteinOutputs, n),
		ProteinDispersion: make([][]float64, n),
	}

	for i := 0; i < n; i++ {
		latent := inf.Z[i]
		if useMean {
			latent = inf.Joint.Mean[i]
		}
		cats, conts := b.catsAt(i), b.contsAt(i)

		if m.AccDecoder != nil {
			out.AccProbability[i] = m.AccDecoder.Forward(latent, cats, conts)
		}

		if m.ExprDecoder != nil {
			logSize := inf.LibraryExpr[i]
			if m.cfg.UseSizeFactor {
				logSize = math.Log(b.SizeFactor[i] + distributions.EpsLik)
			}
			scale, rate, dropout, perCell := m.ExprDecoder.Forward(latent, logSize, cats, conts)
			out.ExprScale[i] = scale
			out.ExprRate[i] = rate
			out.ExprDropout[i] = dropout
			if perCell != nil {
				out.ExprDispersion[i] = perCell
			} else {
				out.ExprDispersion[i] = m.ExprDispersion.Lookup(m.cfg.NGenes, b.batchAt(i), b.labelAt(i))
			}
		}

		if m.ProDecoder != nil {
			alpha, beta := m.backgroundPrior(b.batchAt(i))
			pro := m.ProDecoder.Forward(latent, cats, conts, alpha, beta, rng)
			out.Protein[i] = pro
			if pro.Dispersion != nil {
				out.ProteinDispersion[i] = pro.Dispersion
			} else {
				out.ProteinDispersion[i] = m.ProDispersion.Lookup(m.cfg.NProteins, b.batchAt(i), b.labelAt(i))
			}
		}
	}
	return out, nil
}

// modalityWeights resolves the configured weighting policy into one raw
// weight row per observation. Masking and normalization happen inside the
// mixing strategies.
func (m *Model) modalityWeights(b *Batch, inf *InferenceOutputs) ([][]float64, error) {
	n := b.Len()
	weights := make([][]float64, n)
	switch m.cfg.Weights {
	case WeightsEqual, WeightsUniversal:
		for i := 0; i < n; i++ {
			weights[i] = append([]float64(nil), m.ModWeights...)
		}
	case WeightsPerCell:
		for i := 0; i < n; i++ {
			idx := b.CellIndex[i]
			weights[i] = append([]float64(nil), m.CellWeights.RawRowView(idx)...)
		}
	case WeightsGated:
		for i := 0; i < n; i++ {
			var means, variances [NumModalities][]float64
			var present [NumModalities]bool
			for mod := 0; mod < NumModalities; mod++ {
				means[mod] = inf.Means[mod][i]
				variances[mod] = inf.Variances[mod][i]
				present[mod] = inf.Masks.Modality(Modality(mod))[i]
			}
			weights[i] = m.Gate.Weights(means, variances, present)
		}
	default:
		return nil, errors.Errorf("vae: unknown modality weight policy %d", m.cfg.Weights)
	}
	return weights, nil
}

// modalityInput returns the encoder input row for one observation,
// substituting the length-1 zero placeholder for globally absent
// modalities.
func (m *Model) modalityInput(b *Batch, mod Modality, i int) []float64 {
	if m.cfg.featureCount(mod) == 0 {
		return []float64{0}
	}
	return b.counts(mod).RawRowView(i)
}

func (m *Model) backgroundPrior(batchIdx int) (alpha, beta []float64) {
	nPro := m.cfg.NProteins
	col := 0
	if m.cfg.NBatches > 0 {
		col = batchIdx
	}
	alpha = make([]float64, nPro)
	beta = make([]float64, nPro)
	for i := 0; i < nPro; i++ {
		alpha[i] = m.BackgroundAlpha.At(i, col)
		beta[i] = math.Exp(m.BackgroundLogBeta.At(i, col))
	}
	return alpha, beta
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
