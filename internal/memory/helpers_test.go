package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFloat32Codec(t *testing.T) {
	vec := []float32{0.5, -1.25, 3.14159, 0}
	bytes := Float32SliceToBytes(vec)
	require.Len(t, bytes, 16)
	assert.Equal(t, vec, BytesToFloat32Slice(bytes))

	t.Run("nil and malformed", func(t *testing.T) {
		assert.Nil(t, Float32SliceToBytes(nil))
		assert.Nil(t, BytesToFloat32Slice(nil))
		assert.Nil(t, BytesToFloat32Slice([]byte{1, 2, 3}))
	})
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0, 0}, []float32{1, 0, 0}, 1},
		{"orthogonal", []float32{1, 0, 0}, []float32{0, 1, 0}, 0},
		{"opposite", []float32{1, 0, 0}, []float32{-1, 0, 0}, -1},
		{"scale invariant", []float32{2, 0, 0}, []float32{5, 0, 0}, 1},
		{"zero vector", []float32{0, 0, 0}, []float32{1, 0, 0}, 0},
		{"length mismatch", []float32{1, 0}, []float32{1, 0, 0}, 0},
		{"both empty", nil, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestNormalizeVector(t *testing.T) {
	v := NormalizeVector([]float32{3, 4})
	assert.InDelta(t, 0.6, float64(v[0]), 1e-6)
	assert.InDelta(t, 0.8, float64(v[1]), 1e-6)

	zero := []float32{0, 0}
	assert.Equal(t, zero, NormalizeVector(zero))
}

func TestClampFriction(t *testing.T) {
	assert.Equal(t, 10.0, clampFriction(42))
	assert.Equal(t, -10.0, clampFriction(-42))
	assert.Equal(t, 3.5, clampFriction(3.5))
	assert.Equal(t, 0.0, clampFriction(0))
}

func TestFrictionMultiplier(t *testing.T) {
	assert.InDelta(t, 1.0, frictionMultiplier(0), 1e-9)

	// Bounded to roughly (0.5, 1.5) with saturation at the extremes.
	assert.Greater(t, frictionMultiplier(10), 1.49)
	assert.Less(t, frictionMultiplier(10), 1.5)
	assert.Less(t, frictionMultiplier(-10), 0.51)
	assert.Greater(t, frictionMultiplier(-10), 0.5)

	// Monotonic in the score.
	prev := frictionMultiplier(-10)
	for score := -9.0; score <= 10; score++ {
		cur := frictionMultiplier(score)
		assert.Greater(t, cur, prev)
		prev = cur
	}
}

func TestTopKWithScores(t *testing.T) {
	items := []ScoredItem[string]{
		{Item: "c", Score: 0.3},
		{Item: "a", Score: 0.9},
		{Item: "e", Score: 0.1},
		{Item: "b", Score: 0.7},
		{Item: "d", Score: 0.2},
	}

	t.Run("k smaller than n", func(t *testing.T) {
		top := TopKWithScores(items, 3)
		require.Len(t, top, 3)
		assert.Equal(t, "a", top[0].Item)
		assert.Equal(t, "b", top[1].Item)
		assert.Equal(t, "c", top[2].Item)
	})

	t.Run("k larger than n", func(t *testing.T) {
		top := TopKWithScores(items, 50)
		require.Len(t, top, len(items))
		for i := 1; i < len(top); i++ {
			assert.GreaterOrEqual(t, top[i-1].Score, top[i].Score)
		}
	})

	t.Run("degenerate", func(t *testing.T) {
		assert.Nil(t, TopKWithScores(items, 0))
		assert.Nil(t, TopKWithScores[string](nil, 3))
	})

	t.Run("negative scores", func(t *testing.T) {
		neg := []ScoredItem[int]{{Item: 1, Score: -0.5}, {Item: 2, Score: -0.1}}
		top := TopKWithScores(neg, 1)
		require.Len(t, top, 1)
		assert.Equal(t, 2, top[0].Item)
	})
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abc"))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 2, EstimateTokens("abcde"))

	// Monotonic with content length is the only real requirement.
	prev := 0
	for n := 0; n < 64; n += 4 {
		cur := EstimateTokens(string(make([]byte, n)))
		assert.GreaterOrEqual(t, cur, prev)
		prev = cur
	}
}
