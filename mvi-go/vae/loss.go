package vae

import (
	"math"

	"github.com/montanaflynn/stats"

	"github.com/mosaicvi/mosaicvi/mvi-go/distributions"
	"github.com/mosaicvi/mosaicvi/mvi-golib/errors"
)

// kernelMMDScale is the fixed multiplier applied to the kernel MMD
// penalty so it competes with the reconstruction terms.
const kernelMMDScale = 40.0

// modalityPairs enumerates the unordered modality pairs the alignment
// penalties run over.
var modalityPairs = [3][2]Modality{
	{ModalityExpression, ModalityAccessibility},
	{ModalityExpression, ModalityProtein},
	{ModalityAccessibility, ModalityProtein},
}

// LossOutput holds the composite loss and its per-observation terms.
// Reconstruction terms are 0 for masked-absent observations; the slices
// always have one entry per observation so shapes are stable across
// batches.
type LossOutput struct {
	Loss float64

	ReconstructionExpression    []float64
	ReconstructionAccessibility []float64
	ReconstructionProtein       []float64

	KLDivergence     []float64
	AlignmentPenalty []float64
}

// Loss composes the objective for one forward pass: masked per-modality
// reconstruction, the warmup-weighted prior KL and the configured
// alignment penalty. Masks are derived from the batch, never taken on
// trust from the caller.
func (m *Model) Loss(b *Batch, inf *InferenceOutputs, gen *GenerativeOutputs, klWeight float64) (*LossOutput, error) {
	n := b.Len()
	masks := DeriveMasks(b)
	out := &LossOutput{
		ReconstructionExpression:    make([]float64, n),
		ReconstructionAccessibility: make([]float64, n),
		ReconstructionProtein:       make([]float64, n),
		KLDivergence:                make([]float64, n),
		AlignmentPenalty:            make([]float64, n),
	}

	if m.cfg.NGenes > 0 && masks.AnyPresent(ModalityExpression) {
		for i := 0; i < n; i++ {
			if !masks.Expression[i] {
				continue
			}
			x := b.Expression.RawRowView(i)
			var nll float64
			switch m.cfg.Likelihood {
			case ZINB:
				nll = distributions.ZeroInflatedNegBinomialNLL(x, gen.ExprRate[i], gen.ExprDispersion[i], gen.ExprDropout[i])
			case NB:
				nll = distributions.NegBinomialNLL(x, gen.ExprRate[i], gen.ExprDispersion[i])
			case Poisson:
				nll = distributions.PoissonNLL(x, gen.ExprRate[i])
			default:
				return nil, errors.Errorf("vae: unknown expression likelihood %d", m.cfg.Likelihood)
			}
			out.ReconstructionExpression[i] = nll
		}
	}

	if m.cfg.NRegions > 0 && masks.AnyPresent(ModalityAccessibility) {
		for i := 0; i < n; i++ {
			if !masks.Accessibility[i] {
				continue
			}
			means := make([]float64, m.cfg.NRegions)
			depth := inf.DepthAcc[i]
			for j, p := range gen.AccProbability[i] {
				mu := p * depth
				if m.RegionFactors != nil {
					mu *= distributions.Sigmoid(m.RegionFactors[j])
				}
				means[j] = mu
			}
			out.ReconstructionAccessibility[i] = distributions.BernoulliNLL(b.Accessibility.RawRowView(i), means)
		}
	}

	if m.cfg.NProteins > 0 && masks.AnyPresent(ModalityProtein) {
		for i := 0; i < n; i++ {
			if !masks.Protein[i] {
				continue
			}
			pro := gen.Protein[i]
			out.ReconstructionProtein[i] = distributions.MixtureNegBinomialNLL(
				b.Protein.RawRowView(i), pro.RateBack, pro.RateFore, gen.ProteinDispersion[i], pro.Mixing)
		}
	}

	for i := 0; i < n; i++ {
		if inf.Joint.HasParams {
			out.KLDivergence[i] = distributions.StdNormalKL(inf.Joint.Mean[i], inf.Joint.Variance[i])
		} else {
			out.KLDivergence[i] = distributions.DeltaStdNormalKL(inf.UntransformedZ[i])
		}
	}

	if err := m.alignmentPenalty(inf, &masks, out.AlignmentPenalty); err != nil {
		return nil, err
	}

	var total float64
	for i := 0; i < n; i++ {
		total += out.ReconstructionExpression[i] +
			out.ReconstructionAccessibility[i] +
			out.ReconstructionProtein[i] +
			klWeight*out.KLDivergence[i] +
			out.AlignmentPenalty[i]
	}
	out.Loss = total / float64(n)
	return out, nil
}

// KLWarmupWeight is the linear warmup schedule for the prior KL term:
// it ramps from 1/warmupEpochs at epoch 0 to 1 and stays there. A
// non-positive warmup disables the ramp.
func KLWarmupWeight(epoch, warmupEpochs int) float64 {
	if warmupEpochs <= 0 {
		return 1
	}
	w := float64(epoch+1) / float64(warmupEpochs)
	if w > 1 {
		return 1
	}
	return w
}

// alignmentPenalty accumulates the configured inter-modality penalty into
// dst, one value per observation. Each modality pair contributes only on
// observations where both members are measured.
func (m *Model) alignmentPenalty(inf *InferenceOutputs, masks *Masks, dst []float64) error {
	switch m.cfg.Penalty {
	case PenaltyNone:
		return nil
	case PenaltyJeffreys:
		for _, pair := range modalityPairs {
			a, b := pair[0], pair[1]
			both := pairMask(masks.Modality(a), masks.Modality(b))
			for i, on := range both {
				if !on {
					continue
				}
				dst[i] += distributions.SymmetricKL(
					inf.Means[a][i], inf.Variances[a][i],
					inf.Means[b][i], inf.Variances[b][i])
			}
		}
		return nil
	case PenaltyMMD:
		for _, pair := range modalityPairs {
			a, b := pair[0], pair[1]
			both := pairMask(masks.Modality(a), masks.Modality(b))
			for i, on := range both {
				if !on {
					continue
				}
				var sq float64
				for d, ma := range inf.Means[a][i] {
					diff := ma - inf.Means[b][i][d]
					sq += diff * diff
				}
				dst[i] += math.Sqrt(sq)
			}
		}
		return nil
	case PenaltyKernelMMD:
		for _, pair := range modalityPairs {
			a, b := pair[0], pair[1]
			both := pairMask(masks.Modality(a), masks.Modality(b))
			if !anyTrue(both) {
				continue
			}
			var xs, ys [][]float64
			for i, on := range both {
				if on {
					xs = append(xs, inf.Means[a][i])
					ys = append(ys, inf.Means[b][i])
				}
			}
			mmd, err := kernelMMD(xs, ys)
			if err != nil {
				return err
			}
			// One scalar per pair, broadcast over the batch.
			for i := range dst {
				dst[i] += kernelMMDScale * mmd
			}
		}
		return nil
	}
	return errors.Errorf("vae: unknown modality penalty %d", m.cfg.Penalty)
}

// kernelMMD estimates the squared maximum mean discrepancy between two
// equally sized sets of posterior means with a five-kernel RBF ladder.
// The base bandwidth is the median off-diagonal squared distance of the
// pooled set; the ladder scales it by powers of two centered on the median.
func kernelMMD(xs, ys [][]float64) (float64, error) {
	pooled := append(append([][]float64(nil), xs...), ys...)
	var offDiag []float64
	for i := range pooled {
		for j := range pooled {
			if i == j {
				continue
			}
			offDiag = append(offDiag, squaredDistance(pooled[i], pooled[j]))
		}
	}
	if len(offDiag) == 0 {
		return 0, nil
	}
	bandwidth, err := stats.Median(offDiag)
	if err != nil {
		return 0, errors.Wrapf(err, "computing kernel bandwidth")
	}
	if bandwidth < distributions.EpsVar {
		bandwidth = distributions.EpsVar
	}

	kernel := func(a, b []float64) float64 {
		d := squaredDistance(a, b)
		var k float64
		for i := 0; i < 5; i++ {
			scale := bandwidth * math.Pow(2, float64(i-2))
			k += math.Exp(-d / scale)
		}
		return k
	}
	meanKernel := func(as, bs [][]float64) float64 {
		var sum float64
		for _, a := range as {
			for _, b := range bs {
				sum += kernel(a, b)
			}
		}
		return sum / float64(len(as)*len(bs))
	}

	mmd := meanKernel(xs, xs) - 2*meanKernel(xs, ys) + meanKernel(ys, ys)
	if mmd < 0 {
		mmd = 0
	}
	return mmd, nil
}

func squaredDistance(a, b []float64) float64 {
	var sq float64
	for i, ai := range a {
		d := ai - b[i]
		sq += d * d
	}
	return sq
}
