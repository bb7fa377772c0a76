package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Ollama backend defaults.
const (
	DefaultOllamaHost  = "http://127.0.0.1:11434"
	DefaultOllamaModel = "nomic-embed-text"

	defaultOllamaTimeout = 30 * time.Second
	defaultCheckInterval = 5 * time.Minute

	// nomic-embed-text output size; corrected from the first real response.
	defaultOllamaDimension = 768
)

// OllamaEmbedder generates embeddings with a local Ollama model.
type OllamaEmbedder struct {
	host   string
	model  string
	client *http.Client

	timeout time.Duration

	dimMu     sync.RWMutex
	dimension int

	available     bool
	availableMu   sync.RWMutex
	lastCheck     time.Time
	checkInterval time.Duration

	cache *vectorCache
}

// OllamaConfig configures the Ollama embedder.
type OllamaConfig struct {
	Host         string
	Model        string
	Timeout      time.Duration
	CacheMaxSize int
}

// NewOllamaEmbedder creates an Ollama-backed embedder. The service is not
// contacted until Initialize.
func NewOllamaEmbedder(cfg OllamaConfig) *OllamaEmbedder {
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaHost
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultOllamaTimeout
	}

	var cache *vectorCache
	if cfg.CacheMaxSize >= 0 {
		cache = newVectorCache(cfg.CacheMaxSize, DefaultCacheTTL)
	}

	return &OllamaEmbedder{
		host:  cfg.Host,
		model: cfg.Model,
		client: &http.Client{
			// Client.Timeout would cover body reading too; header timeout
			// alone leaves room for model load on first request.
			Transport: &http.Transport{
				ResponseHeaderTimeout: cfg.Timeout,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
			},
		},
		timeout:       cfg.Timeout,
		dimension:     defaultOllamaDimension,
		checkInterval: defaultCheckInterval,
		cache:         cache,
	}
}

// Initialize probes the Ollama service and checks the model is pulled.
func (e *OllamaEmbedder) Initialize(ctx context.Context) error {
	if e.checkAvailability(ctx) {
		e.setAvailable(true)
		return nil
	}
	e.setAvailable(false)
	return fmt.Errorf("%w: ollama at %s (model %s)", ErrEmbedderUnavailable, e.host, e.model)
}

// Embed generates an embedding for a single text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if !e.Available() {
		return nil, fmt.Errorf("%w: ollama at %s", ErrEmbedderUnavailable, e.host)
	}

	if e.cache != nil {
		if cached := e.cache.get(text); cached != nil {
			return cached, nil
		}
	}

	// No retry here: transient-failure policy belongs to the caller.
	vec, err := e.doEmbedRequest(ctx, text)
	if err != nil {
		return nil, err
	}
	if e.cache != nil {
		e.cache.put(text, vec)
	}
	return vec, nil
}

// EmbedBatch embeds texts sequentially; Ollama has no native batch API.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := e.Embed(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		out[i] = vec
	}
	return out, nil
}

func (e *OllamaEmbedder) doEmbedRequest(ctx context.Context, text string) ([]float32, error) {
	reqBody, err := json.Marshal(map[string]any{
		"model":  e.model,
		"prompt": text,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.host+"/api/embeddings", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		e.setAvailable(false)
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama error (status %d): %s", resp.StatusCode, string(body))
	}

	var result struct {
		Embedding []float64 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	vec := make([]float32, len(result.Embedding))
	for i, v := range result.Embedding {
		vec[i] = float32(v)
	}

	e.dimMu.Lock()
	if len(vec) > 0 && e.dimension != len(vec) {
		e.dimension = len(vec)
	}
	e.dimMu.Unlock()

	return vec, nil
}

// Dimension returns the embedding dimension.
func (e *OllamaEmbedder) Dimension() int {
	e.dimMu.RLock()
	defer e.dimMu.RUnlock()
	return e.dimension
}

// ModelName returns the name of the embedding model.
func (e *OllamaEmbedder) ModelName() string {
	return e.model
}

// Available reports whether Ollama is reachable and the model is present,
// rechecking periodically after a failure.
func (e *OllamaEmbedder) Available() bool {
	e.availableMu.RLock()
	available := e.available
	lastCheck := e.lastCheck
	e.availableMu.RUnlock()

	if !available && time.Since(lastCheck) > e.checkInterval {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if e.checkAvailability(ctx) {
			e.setAvailable(true)
			return true
		}
		e.setAvailable(false)
	}
	return available
}

func (e *OllamaEmbedder) setAvailable(available bool) {
	e.availableMu.Lock()
	e.available = available
	e.lastCheck = time.Now()
	e.availableMu.Unlock()
}

// checkAvailability checks that Ollama is running and the model is pulled.
func (e *OllamaEmbedder) checkAvailability(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.host+"/api/tags", nil)
	if err != nil {
		return false
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	var result struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false
	}

	for _, m := range result.Models {
		// Tags list both "nomic-embed-text" and "nomic-embed-text:latest".
		if m.Name == e.model || strings.HasPrefix(m.Name, e.model+":") {
			return true
		}
	}

	log.Debug().Str("model", e.model).Msg("model not found in ollama")
	return false
}

// CacheStats returns embedding cache statistics, zero when caching is off.
func (e *OllamaEmbedder) CacheStats() CacheStats {
	if e.cache == nil {
		return CacheStats{}
	}
	return e.cache.stats()
}
