package embedding

import (
	"context"
	"fmt"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog/log"
)

// DefaultOpenAIModel supports requesting reduced dimensions, which keeps
// stored vectors compatible with the hash fallback's size.
const DefaultOpenAIModel = string(openai.EmbeddingModelTextEmbedding3Small)

// OpenAIEmbedder generates embeddings through the OpenAI API.
type OpenAIEmbedder struct {
	client    openai.Client
	model     string
	dimension int
	cache     *vectorCache
}

// OpenAIConfig configures the OpenAI embedder.
type OpenAIConfig struct {
	// APIKey falls back to the OPENAI_API_KEY environment variable.
	APIKey string
	Model  string
	// BaseURL overrides the API endpoint, for proxies and compatible
	// servers.
	BaseURL      string
	Dimension    int
	CacheMaxSize int
}

// NewOpenAIEmbedder creates an OpenAI-backed embedder. Fails fast when no
// API key is configured rather than erroring on the first embed.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	key := cfg.APIKey
	if key == "" {
		key = os.Getenv("OPENAI_API_KEY")
	}
	if key == "" {
		return nil, fmt.Errorf("%w: set openai_api_key or OPENAI_API_KEY", ErrMissingAPIKey)
	}

	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = DefaultDimension
	}

	var cache *vectorCache
	if cfg.CacheMaxSize >= 0 {
		cache = newVectorCache(cfg.CacheMaxSize, DefaultCacheTTL)
	}

	opts := []option.RequestOption{option.WithAPIKey(key)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIEmbedder{
		client:    openai.NewClient(opts...),
		model:     cfg.Model,
		dimension: cfg.Dimension,
		cache:     cache,
	}, nil
}

// Initialize is a no-op. Construction already validated credentials, and an
// API round trip here would cost a billable request per startup.
func (e *OpenAIEmbedder) Initialize(_ context.Context) error {
	return nil
}

// Embed generates an embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.cache != nil {
		if cached := e.cache.get(text); cached != nil {
			return cached, nil
		}
	}

	vecs, err := e.embedRequest(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("openai returned no embedding")
	}

	if e.cache != nil {
		e.cache.put(text, vecs[0])
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple texts in one API call.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := e.embedRequest(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("openai returned %d embeddings for %d texts", len(vecs), len(texts))
	}
	return vecs, nil
}

func (e *OpenAIEmbedder) embedRequest(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input:      openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model:      openai.EmbeddingModel(e.model),
		Dimensions: openai.Int(int64(e.dimension)),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}

	// The API orders results by Index, not necessarily by position.
	out := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(out) {
			return nil, fmt.Errorf("openai embedding index %d out of range", d.Index)
		}
		vec := make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float32(v)
		}
		out[d.Index] = vec
	}

	log.Debug().Int("texts", len(texts)).Str("model", e.model).Msg("openai embeddings fetched")
	return out, nil
}

// Dimension returns the embedding dimension.
func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

// ModelName returns the name of the embedding model.
func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}

// Available reports readiness. Construction already validated credentials;
// transient API failures surface from Embed itself.
func (e *OpenAIEmbedder) Available() bool {
	return true
}
