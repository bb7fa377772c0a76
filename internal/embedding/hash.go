package embedding

import (
	"context"
	"hash/fnv"
	"math"
)

// DefaultDimension matches the memory store's default vector size.
const DefaultDimension = 384

// HashEmbedder is the deterministic offline fallback. It seeds a linear
// congruential generator with the FNV-1a hash of the text and emits a
// unit-normalized pseudo-random vector. Identical texts embed identically,
// so exact-duplicate lookup and caching still work; unrelated texts land
// near-orthogonal, so it carries no semantic signal. It exists to keep the
// whole pipeline functional with no model available.
type HashEmbedder struct {
	dimension int
}

// NewHashEmbedder creates a hash embedder. dim <= 0 selects
// DefaultDimension.
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = DefaultDimension
	}
	return &HashEmbedder{dimension: dim}
}

// Initialize is a no-op; the fallback has no external dependency.
func (e *HashEmbedder) Initialize(_ context.Context) error {
	return nil
}

// Embed generates a deterministic unit vector from the text.
func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, e.dimension)
	var norm float64
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		v := float64(int64(seed)) / float64(math.MaxInt64)
		vec[i] = float32(v)
		norm += v * v
	}

	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec, nil
}

// EmbedBatch embeds each text independently.
func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Dimension returns the embedding dimension.
func (e *HashEmbedder) Dimension() int {
	return e.dimension
}

// ModelName returns "hash-fallback".
func (e *HashEmbedder) ModelName() string {
	return "hash-fallback"
}

// Available always returns true; the fallback has no external dependency.
func (e *HashEmbedder) Available() bool {
	return true
}
