// Package embedding converts text into fixed-dimension vectors for
// similarity search. Three interchangeable backends share one contract: a
// deterministic hash fallback that needs no external service, a local
// Ollama model, and the OpenAI embeddings API.
package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Sentinel errors.
var (
	// ErrEmbedderUnavailable means the backend cannot serve requests right
	// now (service down, model missing).
	ErrEmbedderUnavailable = errors.New("embedder unavailable")
	// ErrMissingAPIKey means a remote backend was selected without
	// credentials.
	ErrMissingAPIKey = errors.New("missing API key")
)

// Embedder provides text embedding capabilities.
type Embedder interface {
	// Initialize verifies the backend can serve requests, returning
	// ErrEmbedderUnavailable (or a credential error) when it cannot.
	Initialize(ctx context.Context) error

	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding dimension.
	Dimension() int

	// ModelName returns the name of the embedding model.
	ModelName() string

	// Available reports whether the backend is ready to serve.
	Available() bool
}

// Backend names accepted by New.
const (
	BackendHash   = "hash"
	BackendOllama = "ollama"
	BackendOpenAI = "openai"
)

// Config selects and tunes an embedding backend.
type Config struct {
	Backend   string `yaml:"backend" mapstructure:"backend"`
	Dimension int    `yaml:"dimension" mapstructure:"dimension"`

	// Ollama backend.
	OllamaHost  string `yaml:"ollama_host" mapstructure:"ollama_host"`
	OllamaModel string `yaml:"ollama_model" mapstructure:"ollama_model"`

	// OpenAI backend.
	OpenAIAPIKey string `yaml:"openai_api_key" mapstructure:"openai_api_key"`
	OpenAIModel  string `yaml:"openai_model" mapstructure:"openai_model"`

	// CacheMaxSize caps the in-process embedding cache; zero selects the
	// default, negative disables caching.
	CacheMaxSize int `yaml:"cache_max_size" mapstructure:"cache_max_size"`
}

// New builds the configured embedder. An unknown or empty backend selects
// the hash fallback, which always works offline.
func New(cfg Config) (Embedder, error) {
	switch cfg.Backend {
	case BackendOllama:
		return NewOllamaEmbedder(OllamaConfig{
			Host:         cfg.OllamaHost,
			Model:        cfg.OllamaModel,
			CacheMaxSize: cfg.CacheMaxSize,
		}), nil
	case BackendOpenAI:
		return NewOpenAIEmbedder(OpenAIConfig{
			APIKey:       cfg.OpenAIAPIKey,
			Model:        cfg.OpenAIModel,
			Dimension:    cfg.Dimension,
			CacheMaxSize: cfg.CacheMaxSize,
		})
	case BackendHash, "":
		return NewHashEmbedder(cfg.Dimension), nil
	default:
		return nil, fmt.Errorf("unknown embedding backend %q", cfg.Backend)
	}
}

// NewWithFallback builds and initializes the configured embedder, falling
// back to the hash backend when the configured one cannot start. Retrieval
// keeps working offline; only embedding quality degrades.
func NewWithFallback(ctx context.Context, cfg Config) Embedder {
	emb, err := New(cfg)
	if err != nil {
		log.Warn().Err(err).Str("backend", cfg.Backend).Msg("embedder init failed, using hash fallback")
		return NewHashEmbedder(cfg.Dimension)
	}
	if err := emb.Initialize(ctx); err != nil {
		log.Warn().Err(err).Str("backend", cfg.Backend).Msg("embedder unavailable, using hash fallback")
		return NewHashEmbedder(cfg.Dimension)
	}
	return emb
}
