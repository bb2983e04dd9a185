package vae

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestBatchValidate(t *testing.T) {
	cfg := validTestConfig()
	rng := rand.New(rand.NewSource(1))

	b := fullBatch(&cfg, 3, rng)
	require.NoError(t, b.validate(&cfg))

	empty := &Batch{}
	require.Error(t, empty.validate(&cfg))

	missing := fullBatch(&cfg, 3, rng)
	missing.Protein = nil
	require.Error(t, missing.validate(&cfg))

	wrongShape := fullBatch(&cfg, 3, rng)
	wrongShape.Expression = mat.NewDense(3, cfg.NGenes+1, nil)
	require.Error(t, wrongShape.validate(&cfg))

	badBatch := fullBatch(&cfg, 3, rng)
	badBatch.BatchIndex[1] = cfg.NBatches
	require.Error(t, badBatch.validate(&cfg))

	badLabel := fullBatch(&cfg, 3, rng)
	badLabel.Labels = []int{0, 0, 5}
	require.Error(t, badLabel.validate(&cfg))

	sized := fullBatch(&cfg, 3, rng)
	sizedCfg := cfg
	sizedCfg.UseSizeFactor = true
	require.Error(t, sized.validate(&sizedCfg))
	sized.SizeFactor = []float64{1, 2, 3}
	require.NoError(t, sized.validate(&sizedCfg))
}

func TestBatchCovariateAccess(t *testing.T) {
	b := &Batch{
		BatchIndex: []int{1, 0},
		Cats:       [][]int{{2, 0}, {1, 1}},
		Conts:      mat.NewDense(2, 1, []float64{0.5, -0.5}),
	}
	require.Equal(t, []int{1, 2, 0}, b.catsAt(0))
	require.Equal(t, []int{0, 1, 1}, b.catsAt(1))
	require.Equal(t, []float64{-0.5}, b.contsAt(1))
	require.Equal(t, 0, b.labelAt(0))
}
