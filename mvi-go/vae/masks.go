package vae

import (
	"gonum.org/v1/gonum/mat"
)

// Masks records, per observation and per modality, whether the modality
// was actually measured. Masks are derived, never persisted, and are
// recomputed on every forward pass.
type Masks struct {
	Expression    []bool
	Accessibility []bool
	Protein       []bool
}

// Modality returns the mask slice for the given modality.
func (m *Masks) Modality(mod Modality) []bool {
	switch mod {
	case ModalityExpression:
		return m.Expression
	case ModalityAccessibility:
		return m.Accessibility
	default:
		return m.Protein
	}
}

// AnyPresent reports whether the modality is measured for at least one
// observation in the batch.
func (m *Masks) AnyPresent(mod Modality) bool {
	for _, p := range m.Modality(mod) {
		if p {
			return true
		}
	}
	return false
}

// DeriveMasks computes the measured mask for every modality: an
// observation counts as measured iff the sum of its raw counts is
// strictly positive. A nil count matrix yields an all-false mask.
func DeriveMasks(b *Batch) Masks {
	n := b.Len()
	return Masks{
		Expression:    countMask(b.Expression, n),
		Accessibility: countMask(b.Accessibility, n),
		Protein:       countMask(b.Protein, n),
	}
}

func countMask(counts *mat.Dense, n int) []bool {
	mask := make([]bool, n)
	if counts == nil {
		return mask
	}
	for i := 0; i < n; i++ {
		var sum float64
		for _, v := range counts.RawRowView(i) {
			sum += v
		}
		mask[i] = sum > 0
	}
	return mask
}

// pairMask is the conjunction of two modality masks.
func pairMask(a, b []bool) []bool {
	out := make([]bool, len(a))
	for i := range a {
		out[i] = a[i] && b[i]
	}
	return out
}

func anyTrue(mask []bool) bool {
	for _, v := range mask {
		if v {
			return true
		}
	}
	return false
}
