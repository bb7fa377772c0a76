package embedding

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashEmbedderDeterminism(t *testing.T) {
	e := NewHashEmbedder(0)
	ctx := context.Background()

	a, err := e.Embed(ctx, "Use PostgreSQL for persistence")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "Use PostgreSQL for persistence")
	require.NoError(t, err)

	require.Equal(t, DefaultDimension, len(a))
	assert.Equal(t, a, b, "same text must embed bit-identically")
}

func TestHashEmbedderNormalization(t *testing.T) {
	e := NewHashEmbedder(0)
	ctx := context.Background()

	for _, text := range []string{"", "x", "Should I use async or sync I/O here?", "a much longer piece of text that spans several words and clauses"} {
		vec, err := e.Embed(ctx, text)
		require.NoError(t, err)

		var norm float64
		for _, v := range vec {
			norm += float64(v) * float64(v)
		}
		norm = math.Sqrt(norm)
		assert.InDelta(t, 1.0, norm, 0.1, "text %q", text)
	}
}

func TestHashEmbedderDistinctTexts(t *testing.T) {
	e := NewHashEmbedder(0)
	ctx := context.Background()

	a, err := e.Embed(ctx, "first")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "second")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestHashEmbedderBatch(t *testing.T) {
	e := NewHashEmbedder(64)
	ctx := context.Background()

	texts := []string{"alpha", "beta", "gamma"}
	batch, err := e.EmbedBatch(ctx, texts)
	require.NoError(t, err)
	require.Len(t, batch, 3)

	for i, text := range texts {
		single, err := e.Embed(ctx, text)
		require.NoError(t, err)
		assert.Equal(t, single, batch[i])
	}
}

func TestHashEmbedderCustomDimension(t *testing.T) {
	e := NewHashEmbedder(128)
	assert.Equal(t, 128, e.Dimension())

	vec, err := e.Embed(context.Background(), "anything")
	require.NoError(t, err)
	assert.Len(t, vec, 128)
}

func TestNewSelectsBackend(t *testing.T) {
	t.Run("default is hash", func(t *testing.T) {
		e, err := New(Config{})
		require.NoError(t, err)
		assert.Equal(t, "hash-fallback", e.ModelName())
		assert.True(t, e.Available())
		assert.NoError(t, e.Initialize(context.Background()))
	})

	t.Run("unknown backend errors", func(t *testing.T) {
		_, err := New(Config{Backend: "quantum"})
		require.Error(t, err)
	})

	t.Run("openai without key errors", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "")
		_, err := New(Config{Backend: BackendOpenAI})
		require.ErrorIs(t, err, ErrMissingAPIKey)
	})
}

func TestNewWithFallback(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	e := NewWithFallback(context.Background(), Config{Backend: BackendOpenAI})
	assert.Equal(t, "hash-fallback", e.ModelName())
}

func TestOpenAIEmbedBatchOrdersByIndex(t *testing.T) {
	// Results arrive keyed by index, not necessarily in request order.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"object": "list",
			"model": "text-embedding-3-small",
			"data": [
				{"object": "embedding", "index": 1, "embedding": [0, 1]},
				{"object": "embedding", "index": 0, "embedding": [1, 0]}
			],
			"usage": {"prompt_tokens": 2, "total_tokens": 2}
		}`)
	}))
	defer srv.Close()

	e, err := NewOpenAIEmbedder(OpenAIConfig{
		APIKey:       "test-key",
		BaseURL:      srv.URL,
		CacheMaxSize: -1,
	})
	require.NoError(t, err)

	vecs, err := e.EmbedBatch(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float32{1, 0}, vecs[0])
	assert.Equal(t, []float32{0, 1}, vecs[1])
}

func TestVectorCache(t *testing.T) {
	t.Run("hit after put", func(t *testing.T) {
		c := newVectorCache(10, time.Minute)
		require.Nil(t, c.get("missing"))

		vec := []float32{1, 2, 3}
		c.put("hello", vec)
		assert.Equal(t, vec, c.get("hello"))
		assert.Equal(t, vec, c.get("  HELLO  "), "keys are case and whitespace insensitive")
	})

	t.Run("evicts oldest at capacity", func(t *testing.T) {
		c := newVectorCache(2, time.Minute)
		c.put("a", []float32{1})
		c.put("b", []float32{2})
		c.put("c", []float32{3})

		assert.Nil(t, c.get("a"))
		assert.NotNil(t, c.get("b"))
		assert.NotNil(t, c.get("c"))
	})

	t.Run("expires by ttl", func(t *testing.T) {
		c := newVectorCache(10, time.Nanosecond)
		c.put("a", []float32{1})
		time.Sleep(time.Millisecond)
		assert.Nil(t, c.get("a"))
	})

	t.Run("stats", func(t *testing.T) {
		c := newVectorCache(10, time.Minute)
		c.put("a", []float32{1})
		c.get("a")
		c.get("nope")

		s := c.stats()
		assert.Equal(t, int64(1), s.Hits)
		assert.Equal(t, int64(1), s.Misses)
		assert.Equal(t, 1, s.Size)
	})
}
