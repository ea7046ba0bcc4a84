package cerca

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/cerca/pkg/config"
)

func TestNewEmbedderProviders(t *testing.T) {
	cfg := &config.Config{}
	cfg.Embedding.Provider = "openai"
	cfg.Embedding.APIKey = "test-key"
	cfg.Embedding.Model = "text-embedding-3-small"

	emb, err := newEmbedder(cfg)
	require.NoError(t, err)
	assert.NotNil(t, emb)

	cfg.Embedding.Provider = ""
	emb, err = newEmbedder(cfg)
	require.NoError(t, err)
	assert.Nil(t, emb)
}

func TestNewScorerProviders(t *testing.T) {
	cfg := &config.Config{}
	cfg.Scoring.Provider = "openai"
	cfg.Scoring.APIKey = "test-key"
	assert.NotNil(t, newScorer(cfg, nil))

	cfg.Scoring.Provider = "embedding"
	assert.Nil(t, newScorer(cfg, nil))

	cfg.Scoring.Provider = ""
	assert.Nil(t, newScorer(cfg, nil))
}
