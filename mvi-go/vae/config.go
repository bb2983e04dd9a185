// Package vae implements the multi-modal latent mixing and variational
// loss engine: per-modality Gaussian posteriors are combined under a
// missing-data mask into one joint posterior, a shared latent sample is
// decoded back into each observed modality, and a composite loss balances
// reconstruction, a prior KL term and an inter-modality alignment penalty.
package vae

import (
	"strings"

	"github.com/mosaicvi/mosaicvi/mvi-golib/errors"
)

// Modality indexes the three measurement channels.
type Modality int

// The modalities, in the fixed order used by every per-modality slice.
const (
	ModalityExpression Modality = iota
	ModalityAccessibility
	ModalityProtein

	// NumModalities is the number of measurement channels.
	NumModalities = 3
)

func (m Modality) String() string {
	switch m {
	case ModalityExpression:
		return "expression"
	case ModalityAccessibility:
		return "accessibility"
	case ModalityProtein:
		return "protein"
	}
	return "unknown"
}

// MixingStrategy selects how per-modality posteriors combine into the
// joint posterior. Exactly one strategy must be configured.
type MixingStrategy uint8

// The mixing strategies. The zero value is deliberately invalid so that an
// unconfigured model fails at construction.
const (
	MixingUnset MixingStrategy = iota
	ProductOfExperts
	MixtureOfExperts
	MeanMixing
)

// Likelihood is the expression noise family, fixed at construction.
type Likelihood uint8

// The expression noise families.
const (
	LikelihoodUnset Likelihood = iota
	ZINB
	NB
	Poisson
)

// Dispersion is the granularity of a noise-model dispersion table.
type Dispersion uint8

// The dispersion granularities.
const (
	DispersionPerFeature Dispersion = iota
	DispersionPerBatch
	DispersionPerLabel
	DispersionPerCell
)

// WeightPolicy selects how modality weights are obtained.
type WeightPolicy uint8

// The modality weighting policies.
const (
	WeightsEqual WeightPolicy = iota
	WeightsUniversal
	WeightsPerCell
	WeightsGated
)

// PenaltyKind selects the inter-modality alignment penalty.
type PenaltyKind uint8

// The alignment penalties.
const (
	PenaltyNone PenaltyKind = iota
	PenaltyJeffreys
	PenaltyMMD
	PenaltyKernelMMD
)

// LatentDistribution selects the latent family of the reference encoder.
type LatentDistribution uint8

// The latent families. LogisticNormal projects samples through a softmax.
const (
	LatentNormal LatentDistribution = iota
	LatentLogisticNormal
)

// Config fixes the model architecture at construction. It is never
// mutated after New.
type Config struct {
	// Feature counts per modality. A zero count marks a modality as
	// globally absent from the dataset; a length-1 zero placeholder is
	// used internally and its mask is always false.
	NGenes    int
	NRegions  int
	NProteins int

	NBatches int
	NLabels  int
	// NObs is the registered dataset size; required by WeightsPerCell.
	NObs int

	NLatent        int
	NHidden        int
	NLayersEncoder int
	NLayersDecoder int

	// EncoderLayerType must be "linear". Feature-structured encoder
	// internals (ontology-aware layers, pruning) are external feature
	// extractors plugged in through the Encoder contract.
	EncoderLayerType string

	Likelihood           Likelihood
	ExpressionDispersion Dispersion
	ProteinDispersion    Dispersion
	Weights              WeightPolicy
	Penalty              PenaltyKind
	Mixing               MixingStrategy
	Latent               LatentDistribution

	// RegionFactors adds a learned per-region scaling factor to the
	// accessibility noise mean.
	RegionFactors bool
	// UseSizeFactor feeds an externally supplied size factor to the
	// expression decoder instead of the learned library estimate.
	UseSizeFactor bool
	// EncodeCovariates feeds batch and covariates to the encoders as
	// well as the decoders.
	EncodeCovariates bool

	// Cardinalities of the extra categorical covariates (beyond batch)
	// and the number of continuous covariates.
	CatCovariates   []int
	NContCovariates int

	// DeepInjectCovariates injects covariates into every decoder layer
	// rather than only the first.
	DeepInjectCovariates bool
}

func (c *Config) validate() error {
	if c.NGenes == 0 && c.NRegions == 0 && c.NProteins == 0 {
		return errors.Errorf("vae: at least one modality must have features")
	}
	if c.NLatent <= 0 || c.NHidden <= 0 {
		return errors.Errorf("vae: latent and hidden dimensions must be positive")
	}
	if c.NLayersEncoder <= 0 || c.NLayersDecoder <= 0 {
		return errors.Errorf("vae: encoder and decoder depth must be positive")
	}
	if lt := c.EncoderLayerType; lt != "" && strings.ToLower(lt) != "linear" {
		return errors.Errorf("vae: unsupported encoder layer type %q: structured layers are external feature extractors", lt)
	}
	switch c.Mixing {
	case ProductOfExperts, MixtureOfExperts, MeanMixing:
	case MixingUnset:
		return errors.Errorf("vae: no mixing strategy enabled")
	default:
		return errors.Errorf("vae: unknown mixing strategy %d", c.Mixing)
	}
	switch c.Likelihood {
	case ZINB, NB, Poisson:
	default:
		return errors.Errorf("vae: unknown expression likelihood %d", c.Likelihood)
	}
	switch c.ExpressionDispersion {
	case DispersionPerFeature, DispersionPerBatch, DispersionPerLabel, DispersionPerCell:
	default:
		return errors.Errorf("vae: unknown expression dispersion granularity %d", c.ExpressionDispersion)
	}
	switch c.ProteinDispersion {
	case DispersionPerFeature, DispersionPerBatch, DispersionPerLabel, DispersionPerCell:
	default:
		return errors.Errorf("vae: unknown protein dispersion granularity %d", c.ProteinDispersion)
	}
	if c.ExpressionDispersion == DispersionPerBatch || c.ProteinDispersion == DispersionPerBatch {
		if c.NBatches <= 0 {
			return errors.Errorf("vae: per-batch dispersion requires NBatches > 0")
		}
	}
	if c.ExpressionDispersion == DispersionPerLabel || c.ProteinDispersion == DispersionPerLabel {
		if c.NLabels <= 0 {
			return errors.Errorf("vae: per-label dispersion requires NLabels > 0")
		}
	}
	switch c.Weights {
	case WeightsEqual, WeightsUniversal, WeightsGated:
	case WeightsPerCell:
		if c.NObs <= 0 {
			return errors.Errorf("vae: per-cell modality weights require NObs > 0")
		}
	default:
		return errors.Errorf("vae: unknown modality weight policy %d", c.Weights)
	}
	switch c.Penalty {
	case PenaltyNone, PenaltyJeffreys, PenaltyMMD, PenaltyKernelMMD:
	default:
		return errors.Errorf("vae: unknown modality penalty %d", c.Penalty)
	}
	switch c.Latent {
	case LatentNormal, LatentLogisticNormal:
	default:
		return errors.Errorf("vae: unknown latent distribution %d", c.Latent)
	}
	return nil
}

// inputDim returns the encoder input width for a modality, substituting
// the length-1 placeholder for globally absent modalities.
func (c *Config) inputDim(m Modality) int {
	n := c.featureCount(m)
	if n == 0 {
		return 1
	}
	return n
}

func (c *Config) featureCount(m Modality) int {
	switch m {
	case ModalityExpression:
		return c.NGenes
	case ModalityAccessibility:
		return c.NRegions
	default:
		return c.NProteins
	}
}

// covariateArities lists the one-hot arities fed to decoders: batch first,
// then the extra categorical covariates.
func (c *Config) covariateArities() []int {
	arities := []int{maxInt(c.NBatches, 1)}
	return append(arities, c.CatCovariates...)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// ParseMixing converts a configuration string to a MixingStrategy.
func ParseMixing(s string) (MixingStrategy, error) {
	switch strings.ToLower(s) {
	case "poe", "product-of-experts":
		return ProductOfExperts, nil
	case "moe", "gated-mixture", "mixture-of-experts":
		return MixtureOfExperts, nil
	case "mean", "weighted-mean":
		return MeanMixing, nil
	}
	return MixingUnset, errors.Errorf("vae: unknown mixing strategy %q", s)
}

// ParseLikelihood converts a configuration string to a Likelihood.
func ParseLikelihood(s string) (Likelihood, error) {
	switch strings.ToLower(s) {
	case "zinb":
		return ZINB, nil
	case "nb":
		return NB, nil
	case "poisson":
		return Poisson, nil
	}
	return LikelihoodUnset, errors.Errorf("vae: unknown likelihood %q", s)
}

// ParseDispersion converts a configuration string to a Dispersion.
func ParseDispersion(s string) (Dispersion, error) {
	switch strings.ToLower(s) {
	case "feature", "gene", "protein":
		return DispersionPerFeature, nil
	case "batch", "gene-batch", "protein-batch":
		return DispersionPerBatch, nil
	case "label", "gene-label", "protein-label":
		return DispersionPerLabel, nil
	case "cell", "gene-cell", "protein-cell":
		return DispersionPerCell, nil
	}
	return 0, errors.Errorf("vae: unknown dispersion granularity %q", s)
}

// ParseWeights converts a configuration string to a WeightPolicy.
func ParseWeights(s string) (WeightPolicy, error) {
	switch strings.ToLower(s) {
	case "equal":
		return WeightsEqual, nil
	case "universal":
		return WeightsUniversal, nil
	case "cell":
		return WeightsPerCell, nil
	case "gated", "moe":
		return WeightsGated, nil
	}
	return 0, errors.Errorf("vae: unknown modality weight policy %q", s)
}

// ParsePenalty converts a configuration string to a PenaltyKind.
func ParsePenalty(s string) (PenaltyKind, error) {
	switch strings.ToLower(s) {
	case "none":
		return PenaltyNone, nil
	case "jeffreys":
		return PenaltyJeffreys, nil
	case "mmd":
		return PenaltyMMD, nil
	case "kernel-mmd", "kernelmmd":
		return PenaltyKernelMMD, nil
	}
	return 0, errors.Errorf("vae: unknown modality penalty %q", s)
}
