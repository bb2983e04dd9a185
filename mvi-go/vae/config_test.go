package vae

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTestConfig() Config {
	return Config{
		NGenes:         6,
		NRegions:       8,
		NProteins:      4,
		NBatches:       2,
		NLatent:        3,
		NHidden:        5,
		NLayersEncoder: 1,
		NLayersDecoder: 1,
		Likelihood:     NB,
		Mixing:         ProductOfExperts,
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := validTestConfig()
	require.NoError(t, cfg.validate())
}

func TestConfigNoMixingStrategy(t *testing.T) {
	cfg := validTestConfig()
	cfg.Mixing = MixingUnset
	err := cfg.validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no mixing strategy")
}

func TestConfigStructuredEncoderRejected(t *testing.T) {
	cfg := validTestConfig()
	cfg.EncoderLayerType = "ontology"
	require.Error(t, cfg.validate())

	cfg.EncoderLayerType = "Linear"
	require.NoError(t, cfg.validate())
}

func TestConfigNoModalities(t *testing.T) {
	cfg := validTestConfig()
	cfg.NGenes, cfg.NRegions, cfg.NProteins = 0, 0, 0
	require.Error(t, cfg.validate())
}

func TestConfigPerCellWeightsRequireNObs(t *testing.T) {
	cfg := validTestConfig()
	cfg.Weights = WeightsPerCell
	require.Error(t, cfg.validate())

	cfg.NObs = 100
	require.NoError(t, cfg.validate())
}

func TestConfigDispersionRequirements(t *testing.T) {
	cfg := validTestConfig()
	cfg.ExpressionDispersion = DispersionPerLabel
	require.Error(t, cfg.validate())

	cfg.NLabels = 3
	require.NoError(t, cfg.validate())
}

func TestParseMixing(t *testing.T) {
	s, err := ParseMixing("PoE")
	require.NoError(t, err)
	assert.Equal(t, ProductOfExperts, s)

	s, err = ParseMixing("mixture-of-experts")
	require.NoError(t, err)
	assert.Equal(t, MixtureOfExperts, s)

	s, err = ParseMixing("mean")
	require.NoError(t, err)
	assert.Equal(t, MeanMixing, s)

	_, err = ParseMixing("concat")
	require.Error(t, err)
}

func TestParseLikelihood(t *testing.T) {
	l, err := ParseLikelihood("zinb")
	require.NoError(t, err)
	assert.Equal(t, ZINB, l)

	_, err = ParseLikelihood("gaussian")
	require.Error(t, err)
}

func TestParseWeightsAndPenalty(t *testing.T) {
	w, err := ParseWeights("gated")
	require.NoError(t, err)
	assert.Equal(t, WeightsGated, w)

	p, err := ParsePenalty("kernel-mmd")
	require.NoError(t, err)
	assert.Equal(t, PenaltyKernelMMD, p)

	_, err = ParsePenalty("wasserstein")
	require.Error(t, err)
}
