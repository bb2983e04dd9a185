package vae

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// countMatrix fills an n x d matrix with small positive counts so every
// observation registers as measured.
func countMatrix(n, d int, rng *rand.Rand) *mat.Dense {
	m := mat.NewDense(n, d, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < d; j++ {
			m.Set(i, j, float64(rng.Intn(5)+1))
		}
	}
	return m
}

// fullBatch builds a batch where every modality is measured on every
// observation.
func fullBatch(cfg *Config, n int, rng *rand.Rand) *Batch {
	b := &Batch{BatchIndex: make([]int, n)}
	for i := 0; i < n; i++ {
		b.BatchIndex[i] = i % maxInt(cfg.NBatches, 1)
	}
	if cfg.NGenes > 0 {
		b.Expression = countMatrix(n, cfg.NGenes, rng)
	}
	if cfg.NRegions > 0 {
		b.Accessibility = countMatrix(n, cfg.NRegions, rng)
	}
	if cfg.NProteins > 0 {
		b.Protein = countMatrix(n, cfg.NProteins, rng)
	}
	return b
}

func zeroRow(m *mat.Dense, i int) {
	_, c := m.Dims()
	for j := 0; j < c; j++ {
		m.Set(i, j, 0)
	}
}

func TestModelInferenceShapes(t *testing.T) {
	cfg := validTestConfig()
	m, err := New(cfg, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(2))
	b := fullBatch(&cfg, 5, rng)
	inf, err := m.Inference(b, rng)
	require.NoError(t, err)

	require.True(t, inf.Joint.HasParams)
	require.Len(t, inf.Joint.Mean, 5)
	require.Len(t, inf.Z, 5)
	require.Len(t, inf.Weights, 5)
	require.Len(t, inf.LibraryExpr, 5)
	require.Len(t, inf.DepthAcc, 5)
	for i := 0; i < 5; i++ {
		assert.Len(t, inf.Joint.Mean[i], cfg.NLatent)
		assert.Len(t, inf.Joint.Variance[i], cfg.NLatent)
		assert.Len(t, inf.Z[i], cfg.NLatent)
		assert.Greater(t, inf.DepthAcc[i], 0.0)
		assert.Less(t, inf.DepthAcc[i], 1.0)
		for mod := 0; mod < NumModalities; mod++ {
			assert.Len(t, inf.Means[mod][i], cfg.NLatent)
			for _, v := range inf.Variances[mod][i] {
				assert.Greater(t, v, 0.0)
			}
		}
	}
}

func TestModelInferenceReproducible(t *testing.T) {
	cfg := validTestConfig()
	build := func() *InferenceOutputs {
		m, err := New(cfg, rand.New(rand.NewSource(11)))
		require.NoError(t, err)
		b := fullBatch(&cfg, 4, rand.New(rand.NewSource(12)))
		inf, err := m.Inference(b, rand.New(rand.NewSource(13)))
		require.NoError(t, err)
		return inf
	}
	a, b := build(), build()
	require.Equal(t, a.Joint, b.Joint)
	require.Equal(t, a.Z, b.Z)
	require.Equal(t, a.ModalityZ, b.ModalityZ)
}

func TestModelGenerative(t *testing.T) {
	cfg := validTestConfig()
	m, err := New(cfg, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(2))
	b := fullBatch(&cfg, 3, rng)
	inf, err := m.Inference(b, rng)
	require.NoError(t, err)
	gen, err := m.Generative(b, inf, false, rng)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		// Expression: scale is a distribution over genes, rate its
		// library-scaled version.
		var scaleSum float64
		for _, s := range gen.ExprScale[i] {
			scaleSum += s
		}
		assert.InDelta(t, 1.0, scaleSum, 1e-6)
		for _, d := range gen.ExprDispersion[i] {
			assert.Greater(t, d, 0.0)
		}

		for _, p := range gen.AccProbability[i] {
			assert.Greater(t, p, 0.0)
			assert.Less(t, p, 1.0)
		}

		pro := gen.Protein[i]
		for j := 0; j < cfg.NProteins; j++ {
			assert.GreaterOrEqual(t, pro.ForeScale[j], 1.0)
			assert.GreaterOrEqual(t, pro.RateFore[j], pro.RateBack[j])
		}
	}
}

func TestModelSharedSampleAcrossDecoders(t *testing.T) {
	cfg := validTestConfig()
	m, err := New(cfg, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(2))
	b := fullBatch(&cfg, 2, rng)
	inf, err := m.Inference(b, rng)
	require.NoError(t, err)

	// Two generative passes from the same inference sample agree on every
	// deterministic head; only the protein background resample differs.
	genA, err := m.Generative(b, inf, false, rand.New(rand.NewSource(5)))
	require.NoError(t, err)
	genB, err := m.Generative(b, inf, false, rand.New(rand.NewSource(6)))
	require.NoError(t, err)
	require.Equal(t, genA.ExprRate, genB.ExprRate)
	require.Equal(t, genA.AccProbability, genB.AccProbability)
	require.Equal(t, genA.Protein[0].Mixing, genB.Protein[0].Mixing)
	require.NotEqual(t, genA.Protein[0].RateBack, genB.Protein[0].RateBack)
}

func TestModelSingleModalityDataset(t *testing.T) {
	cfg := validTestConfig()
	cfg.NRegions = 0
	cfg.NProteins = 0
	m, err := New(cfg, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(2))
	b := fullBatch(&cfg, 4, rng)
	inf, err := m.Inference(b, rng)
	require.NoError(t, err)
	gen, err := m.Generative(b, inf, false, rng)
	require.NoError(t, err)
	loss, err := m.Loss(b, inf, gen, 1.0)
	require.NoError(t, err)

	assert.Greater(t, loss.Loss, 0.0)
	for i := 0; i < 4; i++ {
		assert.Greater(t, loss.ReconstructionExpression[i], 0.0)
		assert.Equal(t, 0.0, loss.ReconstructionAccessibility[i])
		assert.Equal(t, 0.0, loss.ReconstructionProtein[i])
	}
}

func TestModelMosaicBatch(t *testing.T) {
	cfg := validTestConfig()
	m, err := New(cfg, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(2))
	b := fullBatch(&cfg, 4, rng)
	// Observations 1 and 3 never had their protein panel measured.
	zeroRow(b.Protein, 1)
	zeroRow(b.Protein, 3)

	inf, err := m.Inference(b, rng)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, true, false}, inf.Masks.Protein)

	gen, err := m.Generative(b, inf, false, rng)
	require.NoError(t, err)
	loss, err := m.Loss(b, inf, gen, 1.0)
	require.NoError(t, err)

	assert.Greater(t, loss.ReconstructionProtein[0], 0.0)
	assert.Equal(t, 0.0, loss.ReconstructionProtein[1])
	assert.Greater(t, loss.ReconstructionProtein[2], 0.0)
	assert.Equal(t, 0.0, loss.ReconstructionProtein[3])
}

func TestModelWeightPolicies(t *testing.T) {
	rng := rand.New(rand.NewSource(2))

	cfg := validTestConfig()
	cfg.Mixing = MixtureOfExperts
	cfg.Weights = WeightsGated
	m, err := New(cfg, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	require.NotNil(t, m.Gate)

	b := fullBatch(&cfg, 3, rng)
	inf, err := m.Inference(b, rng)
	require.NoError(t, err)
	for _, w := range inf.Weights {
		var sum float64
		for _, wi := range w {
			sum += wi
		}
		assert.InDelta(t, 1.0, sum, 1e-6)
	}

	cfg.Weights = WeightsPerCell
	cfg.NObs = 10
	m, err = New(cfg, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	require.NotNil(t, m.CellWeights)

	b = fullBatch(&cfg, 3, rng)
	_, err = m.Inference(b, rng)
	require.Error(t, err) // no cell index

	b.CellIndex = []int{7, 2, 9}
	m.CellWeights.Set(7, 0, 4)
	inf, err = m.Inference(b, rng)
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 1, 1}, inf.Weights[0])

	b.CellIndex = []int{10, 0, 1}
	_, err = m.Inference(b, rng)
	require.Error(t, err) // index outside registered range
}

func TestSampleJoint(t *testing.T) {
	cfg := validTestConfig()
	m, err := New(cfg, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(2))
	b := fullBatch(&cfg, 3, rng)
	inf, err := m.Inference(b, rng)
	require.NoError(t, err)

	samples := m.SampleJoint(inf, 4, rng)
	require.Len(t, samples.Z, 4)
	for s := 0; s < 4; s++ {
		require.Len(t, samples.Z[s], 3)
		assert.Equal(t, inf.LibraryExpr, samples.LibraryExpr[s])
		assert.Equal(t, inf.DepthAcc, samples.DepthAcc[s])
	}
	require.NotEqual(t, samples.Z[0], samples.Z[1])
}

func TestLatentRepresentation(t *testing.T) {
	cfg := validTestConfig()
	m, err := New(cfg, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	b := fullBatch(&cfg, 3, rand.New(rand.NewSource(2)))
	means, err := m.LatentRepresentation(b, true, rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	inf, err := m.Inference(b, rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	require.Equal(t, inf.Joint.Mean, means)

	zs, err := m.LatentRepresentation(b, false, rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	require.Equal(t, inf.Z, zs)
}

func TestParametersAliasModelStorage(t *testing.T) {
	cfg := validTestConfig()
	cfg.RegionFactors = true
	m, err := New(cfg, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	params := m.Parameters()
	require.NotEmpty(t, params)

	byName := make(map[string][]float64, len(params))
	for _, p := range params {
		require.NotContains(t, byName, p.Name)
		byName[p.Name] = p.Value
	}
	require.Contains(t, byName, "protein.background.alpha")
	require.Contains(t, byName, "region.factors")
	require.Contains(t, byName, "dispersion.expression")

	byName["protein.background.alpha"][0] = 42
	assert.Equal(t, 42.0, m.BackgroundAlpha.At(0, 0))
	byName["region.factors"][2] = -1
	assert.Equal(t, -1.0, m.RegionFactors[2])
}
