package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "hash", cfg.Embedding.Backend)
	assert.Equal(t, 0.3, cfg.Retrieval.MinSimilarity)
	assert.Equal(t, 3000, cfg.Context.ConversationTokens)

	_, err = os.Stat(path)
	assert.NoError(t, err, "default config file written on first load")
}

func TestLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := Default()
	cfg.Embedding.Backend = "ollama"
	cfg.Retrieval.DefaultLimit = 9
	require.NoError(t, cfg.SaveToPath(path))

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "ollama", loaded.Embedding.Backend)
	assert.Equal(t, 9, loaded.Retrieval.DefaultLimit)
}

func TestLoadCorruptFileFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{{{{ not yaml"), 0644))

	cfg, err := LoadFromPath(path)
	require.NoError(t, err, "corrupt config never blocks startup")
	assert.Equal(t, Default().Embedding.Backend, cfg.Embedding.Backend)
}

func TestEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv("RECALL_EMBEDDING_BACKEND", "openai")

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.Embedding.Backend)
}

func TestValidate(t *testing.T) {
	t.Run("defaults valid", func(t *testing.T) {
		assert.NoError(t, Default().Validate())
	})

	t.Run("bad backend", func(t *testing.T) {
		cfg := Default()
		cfg.Embedding.Backend = "quantum"
		assert.Error(t, cfg.Validate())
	})

	t.Run("threshold out of range", func(t *testing.T) {
		cfg := Default()
		cfg.Retrieval.MinSimilarity = 7
		assert.Error(t, cfg.Validate())
	})

	t.Run("nonpositive half-life", func(t *testing.T) {
		cfg := Default()
		cfg.Friction.HalfLifeDays = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("bad log level", func(t *testing.T) {
		cfg := Default()
		cfg.Logging.Level = "verbose"
		assert.Error(t, cfg.Validate())
	})
}

func TestConversions(t *testing.T) {
	cfg := Default()

	rc := cfg.Retrieval.ToRetrieverConfig()
	assert.Equal(t, cfg.Retrieval.MinSimilarity, rc.MinSimilarity)
	assert.Equal(t, cfg.Retrieval.FrictionMatchThreshold, rc.FrictionMatchThreshold)

	tb := cfg.Context.ToTokenBudget()
	assert.Equal(t, cfg.Context.ConversationTokens, tb.ConversationTokens)

	ec := cfg.Embedding.ToEmbedderConfig()
	assert.Equal(t, cfg.Embedding.Backend, ec.Backend)
	assert.Equal(t, cfg.Embedding.Dimension, ec.Dimension)
}
