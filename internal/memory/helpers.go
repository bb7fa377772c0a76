package memory

import (
	"container/heap"
	"encoding/binary"
	"math"
)

// ============================================================================
// EMBEDDING CODEC
// ============================================================================

// Float32SliceToBytes converts a float32 slice to bytes for SQLite BLOB
// storage (little-endian).
func Float32SliceToBytes(slice []float32) []byte {
	if slice == nil {
		return nil
	}
	buf := make([]byte, len(slice)*4)
	for i, v := range slice {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// BytesToFloat32Slice converts bytes from a SQLite BLOB back to a float32
// slice. Returns nil for empty or malformed input.
func BytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil
	}
	result := make([]float32, len(data)/4)
	for i := range result {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		result[i] = math.Float32frombits(bits)
	}
	return result
}

// ============================================================================
// VECTOR MATH
// ============================================================================

// CosineSimilarity calculates the cosine similarity between two vectors:
// dot(a,b) / (|a| * |b|). A zero norm on either side yields 0, not NaN.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// NormalizeVector normalizes a vector to unit length. Zero vectors are
// returned unchanged.
func NormalizeVector(v []float32) []float32 {
	if len(v) == 0 {
		return v
	}

	var norm float64
	for _, val := range v {
		norm += float64(val) * float64(val)
	}
	norm = math.Sqrt(norm)

	if norm == 0 {
		return v
	}

	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = float32(float64(val) / norm)
	}
	return result
}

// clampFriction bounds a friction score to the allowed range.
func clampFriction(score float64) float64 {
	return math.Max(FrictionScoreMin, math.Min(FrictionScoreMax, score))
}

// frictionMultiplier maps a friction score to the ranking multiplier
// 1 + 0.5*tanh(score/3), bounded to roughly (0.5, 1.5). tanh saturates, so
// extreme scores cannot diverge.
func frictionMultiplier(score float64) float64 {
	return 1 + 0.5*math.Tanh(score/3)
}

// ============================================================================
// TOP-K SELECTION
// ============================================================================

// ScoredItem represents an item with a similarity/relevance score.
type ScoredItem[T any] struct {
	Item  T
	Score float64
}

// scoredItemHeap is a min-heap keeping the K highest-scoring items seen so
// far; the current minimum sits at the root.
type scoredItemHeap[T any] []ScoredItem[T]

func (h scoredItemHeap[T]) Len() int           { return len(h) }
func (h scoredItemHeap[T]) Less(i, j int) bool { return h[i].Score < h[j].Score }
func (h scoredItemHeap[T]) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *scoredItemHeap[T]) Push(x any) {
	*h = append(*h, x.(ScoredItem[T]))
}

func (h *scoredItemHeap[T]) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}

// TopKWithScores returns the K highest-scoring items in descending order.
// O(n log k) instead of O(n log n) for sort-then-truncate, which matters
// when k is small and n grows into the thousands.
func TopKWithScores[T any](items []ScoredItem[T], k int) []ScoredItem[T] {
	if k <= 0 || len(items) == 0 {
		return nil
	}

	if len(items) <= k {
		result := make([]ScoredItem[T], len(items))
		copy(result, items)
		for i := 0; i < len(result)-1; i++ {
			for j := i + 1; j < len(result); j++ {
				if result[j].Score > result[i].Score {
					result[i], result[j] = result[j], result[i]
				}
			}
		}
		return result
	}

	h := make(scoredItemHeap[T], k)
	copy(h, items[:k])
	heap.Init(&h)

	for i := k; i < len(items); i++ {
		if items[i].Score > h[0].Score {
			heap.Pop(&h)
			heap.Push(&h, items[i])
		}
	}

	result := make([]ScoredItem[T], len(h))
	for i := len(h) - 1; i >= 0; i-- {
		result[i] = heap.Pop(&h).(ScoredItem[T])
	}

	return result
}
