// Package synthetic generates mosaic multi-modal count datasets with a
// known cluster structure, for demos and integration tests. Observations
// are grouped into latent clusters; each cluster has its own expression
// profile, accessibility profile and surface-protein profile, and each
// modality can be dropped for a configurable fraction of observations to
// simulate mosaic measurement designs.
package synthetic

import (
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/mosaicvi/mosaicvi/mvi-go/vae"
	"github.com/mosaicvi/mosaicvi/mvi-golib/errors"
)

// Params configures the generator.
type Params struct {
	NObs      int
	NGenes    int
	NRegions  int
	NProteins int
	NBatches  int
	NClusters int

	// Per-modality fractions of observations generated as unmeasured
	// (all-zero counts). At least one modality is always kept per
	// observation.
	DropExpression    float64
	DropAccessibility float64
	DropProtein       float64

	Seed uint64
}

func (p Params) validate() error {
	if p.NObs <= 0 {
		return errors.Errorf("synthetic: NObs must be positive")
	}
	if p.NGenes == 0 && p.NRegions == 0 && p.NProteins == 0 {
		return errors.Errorf("synthetic: at least one modality must have features")
	}
	if p.NClusters <= 0 {
		return errors.Errorf("synthetic: NClusters must be positive")
	}
	for _, f := range []float64{p.DropExpression, p.DropAccessibility, p.DropProtein} {
		if f < 0 || f > 1 {
			return errors.Errorf("synthetic: drop fractions must lie in [0,1]")
		}
	}
	return nil
}

// Dataset is a generated mosaic dataset with its ground-truth cluster
// assignment.
type Dataset struct {
	Batch    *vae.Batch
	Clusters []int
}

// Generate draws a dataset. The same Params always produce the same
// dataset.
func Generate(p Params) (*Dataset, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	src := rand.NewSource(p.Seed)
	rng := rand.New(src)

	gamma := distuv.Gamma{Alpha: 2, Beta: 1, Src: src}
	beta := distuv.Beta{Alpha: 0.7, Beta: 3, Src: src}

	// Cluster profiles.
	geneRate := profileMatrix(p.NClusters, p.NGenes, gamma.Rand)
	proteinRate := profileMatrix(p.NClusters, p.NProteins, func() float64 { return 5 * gamma.Rand() })
	regionProb := profileMatrix(p.NClusters, p.NRegions, beta.Rand)

	nBatches := p.NBatches
	if nBatches <= 0 {
		nBatches = 1
	}

	ds := &Dataset{
		Batch: &vae.Batch{
			BatchIndex: make([]int, p.NObs),
			CellIndex:  make([]int, p.NObs),
			SizeFactor: make([]float64, p.NObs),
		},
		Clusters: make([]int, p.NObs),
	}
	if p.NGenes > 0 {
		ds.Batch.Expression = mat.NewDense(p.NObs, p.NGenes, nil)
	}
	if p.NRegions > 0 {
		ds.Batch.Accessibility = mat.NewDense(p.NObs, p.NRegions, nil)
	}
	if p.NProteins > 0 {
		ds.Batch.Protein = mat.NewDense(p.NObs, p.NProteins, nil)
	}

	logNormal := distuv.LogNormal{Mu: 0, Sigma: 0.3, Src: src}
	for i := 0; i < p.NObs; i++ {
		cluster := rng.Intn(p.NClusters)
		ds.Clusters[i] = cluster
		ds.Batch.BatchIndex[i] = rng.Intn(nBatches)
		ds.Batch.CellIndex[i] = i
		depth := logNormal.Rand()
		ds.Batch.SizeFactor[i] = depth

		keep := keepFlags(p, rng)
		if ds.Batch.Expression != nil && keep[vae.ModalityExpression] {
			fillPoissonRow(ds.Batch.Expression, i, geneRate[cluster], depth, src)
		}
		if ds.Batch.Accessibility != nil && keep[vae.ModalityAccessibility] {
			for j, prob := range regionProb[cluster] {
				if rng.Float64() < prob {
					ds.Batch.Accessibility.Set(i, j, 1)
				}
			}
		}
		if ds.Batch.Protein != nil && keep[vae.ModalityProtein] {
			fillPoissonRow(ds.Batch.Protein, i, proteinRate[cluster], depth, src)
		}
	}
	return ds, nil
}

// keepFlags decides which modalities stay measured for one observation.
// If the draws drop everything, the first modality with features is kept
// so no observation ends up fully unmeasured.
func keepFlags(p Params, rng *rand.Rand) [vae.NumModalities]bool {
	var keep [vae.NumModalities]bool
	keep[vae.ModalityExpression] = p.NGenes > 0 && rng.Float64() >= p.DropExpression
	keep[vae.ModalityAccessibility] = p.NRegions > 0 && rng.Float64() >= p.DropAccessibility
	keep[vae.ModalityProtein] = p.NProteins > 0 && rng.Float64() >= p.DropProtein
	if keep[vae.ModalityExpression] || keep[vae.ModalityAccessibility] || keep[vae.ModalityProtein] {
		return keep
	}
	switch {
	case p.NGenes > 0:
		keep[vae.ModalityExpression] = true
	case p.NRegions > 0:
		keep[vae.ModalityAccessibility] = true
	default:
		keep[vae.ModalityProtein] = true
	}
	return keep
}

func profileMatrix(rows, cols int, draw func() float64) [][]float64 {
	out := make([][]float64, rows)
	for i := range out {
		out[i] = make([]float64, cols)
		for j := range out[i] {
			out[i][j] = draw()
		}
	}
	return out
}

func fillPoissonRow(m *mat.Dense, i int, rates []float64, depth float64, src rand.Source) {
	for j, r := range rates {
		pois := distuv.Poisson{Lambda: r*depth + 1e-6, Src: src}
		m.Set(i, j, pois.Rand())
	}
}
