package vae

import (
	"gonum.org/v1/gonum/mat"

	"github.com/mosaicvi/mosaicvi/mvi-golib/errors"
)

// Batch holds one minibatch of named, batch-collated observations. Count
// matrices have one row per observation; a nil matrix marks a modality as
// globally absent from the dataset.
type Batch struct {
	Expression    *mat.Dense // n x NGenes
	Accessibility *mat.Dense // n x NRegions
	Protein       *mat.Dense // n x NProteins

	// BatchIndex is required; the remaining index slices are optional
	// and default to zero when nil.
	BatchIndex   []int
	PatientIndex []int
	Labels       []int

	// CellIndex holds the stable observation indices assigned at dataset
	// registration. Required by the per-cell weighting policy; indices
	// are assigned once and never reused across observations.
	CellIndex []int

	// Cats holds the extra categorical covariate codes, indexed
	// [observation][covariate].
	Cats [][]int
	// Conts holds continuous covariates, one row per observation.
	Conts *mat.Dense
	// SizeFactor is an optional externally supplied size factor.
	SizeFactor []float64
}

// Len returns the number of observations in the batch.
func (b *Batch) Len() int {
	return len(b.BatchIndex)
}

func (b *Batch) validate(cfg *Config) error {
	n := b.Len()
	if n == 0 {
		return errors.Errorf("vae: empty batch")
	}
	check := func(m *mat.Dense, want int, name string) error {
		if want == 0 {
			return nil
		}
		if m == nil {
			return errors.Errorf("vae: batch is missing %s counts", name)
		}
		r, c := m.Dims()
		if r != n || c != want {
			return errors.Errorf("vae: %s counts are %dx%d, want %dx%d", name, r, c, n, want)
		}
		return nil
	}
	if err := check(b.Expression, cfg.NGenes, "expression"); err != nil {
		return err
	}
	if err := check(b.Accessibility, cfg.NRegions, "accessibility"); err != nil {
		return err
	}
	if err := check(b.Protein, cfg.NProteins, "protein"); err != nil {
		return err
	}
	nBatches := maxInt(cfg.NBatches, 1)
	for _, idx := range b.BatchIndex {
		if idx < 0 || idx >= nBatches {
			return errors.Errorf("vae: batch index %d outside range [0,%d)", idx, nBatches)
		}
	}
	nLabels := maxInt(cfg.NLabels, 1)
	for _, idx := range b.Labels {
		if idx < 0 || idx >= nLabels {
			return errors.Errorf("vae: label %d outside range [0,%d)", idx, nLabels)
		}
	}
	if cfg.Weights == WeightsPerCell {
		if len(b.CellIndex) != n {
			return errors.Errorf("vae: per-cell weights require a cell index per observation")
		}
		for _, idx := range b.CellIndex {
			if idx < 0 || idx >= cfg.NObs {
				return errors.Errorf("vae: cell index %d outside registered range [0,%d)", idx, cfg.NObs)
			}
		}
	}
	if cfg.UseSizeFactor && len(b.SizeFactor) != n {
		return errors.Errorf("vae: size factors required for every observation")
	}
	return nil
}

// counts returns the raw count matrix for a modality, which may be nil
// for a globally absent modality.
func (b *Batch) counts(m Modality) *mat.Dense {
	switch m {
	case ModalityExpression:
		return b.Expression
	case ModalityAccessibility:
		return b.Accessibility
	default:
		return b.Protein
	}
}

func (b *Batch) batchAt(i int) int {
	return b.BatchIndex[i]
}

func (b *Batch) labelAt(i int) int {
	if b.Labels == nil {
		return 0
	}
	return b.Labels[i]
}

// catsAt returns the categorical codes fed to covariate-aware layers:
// batch first, then the extra categorical covariates.
func (b *Batch) catsAt(i int) []int {
	cats := []int{b.batchAt(i)}
	if b.Cats != nil {
		cats = append(cats, b.Cats[i]...)
	}
	return cats
}

func (b *Batch) contsAt(i int) []float64 {
	if b.Conts == nil {
		return nil
	}
	return b.Conts.RawRowView(i)
}
