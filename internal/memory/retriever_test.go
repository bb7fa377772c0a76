package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// axisEmbedder maps known keywords onto fixed axes so tests control
// similarity exactly: texts sharing a keyword land close, others stay
// orthogonal.
type axisEmbedder struct {
	axes map[string]int
	fail bool
}

func newAxisEmbedder() *axisEmbedder {
	return &axisEmbedder{axes: map[string]int{
		"async":      0,
		"sync":       0,
		"postgresql": 1,
		"postgres":   1,
		"database":   1,
		"validate":   2,
		"input":      2,
	}}
}

func (e *axisEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if e.fail {
		return nil, errors.New("embedder down")
	}

	vec := make([]float32, 4)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		if axis, ok := e.axes[w]; ok {
			vec[axis] = 1
		}
	}

	hit := false
	for _, v := range vec {
		if v != 0 {
			hit = true
			break
		}
	}
	if !hit {
		vec[3] = 1
	}
	return NormalizeVector(vec), nil
}

func testRetriever(t *testing.T) (*Retriever, *axisEmbedder) {
	t.Helper()
	emb := newAxisEmbedder()
	return NewRetriever(testStore(t), emb, RetrieverConfig{}), emb
}

func TestRetrieveRanking(t *testing.T) {
	r, _ := testRetriever(t)
	ctx := context.Background()

	asyncID, err := r.AddMemory(ctx, MemoryRecord{Kind: KindHeuristic, Text: "Prefer async handlers"})
	require.NoError(t, err)
	dbID, err := r.AddMemory(ctx, MemoryRecord{Kind: KindDecision, Text: "Use PostgreSQL"})
	require.NoError(t, err)
	_, err = r.AddMemory(ctx, MemoryRecord{Kind: KindConstraint, Text: "Always lint before commit"})
	require.NoError(t, err)

	results, err := r.Retrieve(ctx, "should this be async or sync", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, asyncID, results[0].Record.ID)
	for _, res := range results {
		assert.GreaterOrEqual(t, res.Similarity, 0.3)
		assert.NotEqual(t, dbID, res.Record.ID, "unrelated decision filtered out")
	}
}

func TestRetrieveFrictionReranking(t *testing.T) {
	r, _ := testRetriever(t)
	ctx := context.Background()

	// Two equally similar memories; negative friction must demote one.
	goodID, err := r.AddMemory(ctx, MemoryRecord{Kind: KindHeuristic, Text: "async everywhere"})
	require.NoError(t, err)
	badID, err := r.AddMemory(ctx, MemoryRecord{Kind: KindHeuristic, Text: "go fully async"})
	require.NoError(t, err)

	_, err = r.Store().RecordFrictionEvent(ctx, badID, EventCorrection, -8, "kept being wrong")
	require.NoError(t, err)

	results, err := r.Retrieve(ctx, "async io", 5)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, goodID, results[0].Record.ID)
	assert.Equal(t, badID, results[1].Record.ID)
	assert.Less(t, results[1].AdjustedScore, results[1].Similarity,
		"negative friction dampens the adjusted score")
	assert.InDelta(t, results[0].Similarity, results[1].Similarity, 1e-9,
		"raw similarity unaffected by friction")
}

func TestGetAllConstraintsBypassesSimilarity(t *testing.T) {
	r, _ := testRetriever(t)
	ctx := context.Background()

	for _, text := range []string{"Always validate input", "Never log secrets", "Pin versions"} {
		_, err := r.AddMemory(ctx, MemoryRecord{Kind: KindConstraint, Text: text})
		require.NoError(t, err)
	}

	constraints, err := r.GetAllConstraints(ctx)
	require.NoError(t, err)
	assert.Len(t, constraints, 3)
}

func TestDetectsAmbiguity(t *testing.T) {
	ambiguous := []string{
		"Should I use X or Y?",
		"should we switch databases",
		"Which framework should we pick",
		"Can you recommend a queue",
		"What are the trade-offs here",
		"either redis or memcached works, right",
		"gRPC vs REST for this",
		"What's the best way to paginate",
		"Is this right? Or should it go there?",
		"pros and cons of monorepo",
	}
	for _, prompt := range ambiguous {
		assert.True(t, DetectsAmbiguity(prompt), "prompt %q", prompt)
	}

	direct := []string{
		"Add a login endpoint",
		"Fix the nil pointer in the parser",
		"Rename the config field",
		"What does this function return?",
	}
	for _, prompt := range direct {
		assert.False(t, DetectsAmbiguity(prompt), "prompt %q", prompt)
	}
}

func TestRetrieveForContext(t *testing.T) {
	r, _ := testRetriever(t)
	ctx := context.Background()

	_, err := r.AddMemory(ctx, MemoryRecord{Kind: KindConstraint, Text: "Always validate input"})
	require.NoError(t, err)
	_, err = r.AddMemory(ctx, MemoryRecord{
		Kind:      KindDecision,
		Text:      "Use PostgreSQL",
		Rationale: "Need complex joins",
	})
	require.NoError(t, err)
	_, err = r.AddMemory(ctx, MemoryRecord{Kind: KindHeuristic, Text: "Prefer async/await"})
	require.NoError(t, err)

	t.Run("ambiguous prompt pulls heuristics", func(t *testing.T) {
		mems, err := r.RetrieveForContext(ctx, "Should I use async or sync I/O here?", RetrieveForContextOptions{})
		require.NoError(t, err)

		assert.Len(t, mems.Constraints, 1, "constraints always included")
		assert.NotEmpty(t, mems.Heuristics)
	})

	t.Run("direct prompt skips heuristics", func(t *testing.T) {
		mems, err := r.RetrieveForContext(ctx, "Add async retry to the client", RetrieveForContextOptions{})
		require.NoError(t, err)

		assert.Len(t, mems.Constraints, 1)
		assert.Empty(t, mems.Heuristics, "heuristics gated on ambiguity")
	})

	t.Run("override forces heuristics", func(t *testing.T) {
		on := true
		mems, err := r.RetrieveForContext(ctx, "Add async retry to the client", RetrieveForContextOptions{
			IncludeHeuristics: &on,
		})
		require.NoError(t, err)
		assert.False(t, mems.WasAmbiguous)
		assert.NotEmpty(t, mems.Heuristics)
	})

	t.Run("explicit off wins over ambiguity", func(t *testing.T) {
		off := false
		mems, err := r.RetrieveForContext(ctx, "Should I make the database layer async or sync?", RetrieveForContextOptions{
			IncludeHeuristics: &off,
		})
		require.NoError(t, err)
		assert.True(t, mems.WasAmbiguous)
		assert.Len(t, mems.Constraints, 1, "constraints unaffected by the override")
		assert.NotEmpty(t, mems.Decisions, "decisions unaffected by the override")
		assert.Empty(t, mems.Heuristics)
	})

	t.Run("relevant decision surfaces", func(t *testing.T) {
		mems, err := r.RetrieveForContext(ctx, "Should postgres or mysql back the database?", RetrieveForContextOptions{})
		require.NoError(t, err)
		require.NotEmpty(t, mems.Decisions)
		assert.Equal(t, "Use PostgreSQL", mems.Decisions[0].Record.Text)
	})
}

func TestAddMemoryWithFailedEmbedder(t *testing.T) {
	emb := newAxisEmbedder()
	r := NewRetriever(testStore(t), emb, RetrieverConfig{})
	ctx := context.Background()

	emb.fail = true
	id, err := r.AddMemory(ctx, MemoryRecord{Kind: KindConstraint, Text: "still stored"})
	require.NoError(t, err, "embedding failure must not lose the memory")

	rec, err := r.Store().GetByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, rec)

	vec, err := r.Store().GetEmbedding(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, vec, "stored without a vector")
}

func TestAddMemoryInvalidKind(t *testing.T) {
	r, _ := testRetriever(t)
	_, err := r.AddMemory(context.Background(), MemoryRecord{Kind: "opinion", Text: "x"})
	assert.ErrorIs(t, err, ErrInvalidKind)
}

func TestSearchLooserThreshold(t *testing.T) {
	r, _ := testRetriever(t)
	ctx := context.Background()

	_, err := r.AddMemory(ctx, MemoryRecord{Kind: KindDecision, Text: "validate the database input"})
	require.NoError(t, err)

	// Similarity between {input,database} and {database} alone is ~0.7;
	// between disjoint keyword sets it is 0, below even the loose floor.
	results, err := r.Search(ctx, "database", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, results[0].Similarity, results[0].AdjustedScore,
		"zero friction leaves the score unadjusted")

	none, err := r.Search(ctx, "something unrelated entirely", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSearchFrictionReranking(t *testing.T) {
	r, _ := testRetriever(t)
	ctx := context.Background()

	// Equally similar to the query; friction alone decides the order.
	lowID, err := r.AddMemory(ctx, MemoryRecord{Kind: KindHeuristic, Text: "go fully async"})
	require.NoError(t, err)
	highID, err := r.AddMemory(ctx, MemoryRecord{Kind: KindHeuristic, Text: "async everywhere"})
	require.NoError(t, err)

	_, err = r.Store().RecordFrictionEvent(ctx, highID, EventAcceptance, 9, "")
	require.NoError(t, err)
	_, err = r.Store().RecordFrictionEvent(ctx, lowID, EventCorrection, -9, "")
	require.NoError(t, err)

	results, err := r.Search(ctx, "async io", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, highID, results[0].Record.ID)
	assert.Equal(t, lowID, results[1].Record.ID)
	assert.Greater(t, results[0].AdjustedScore, results[0].Similarity,
		"positive friction boosts the adjusted score")
	assert.Less(t, results[1].AdjustedScore, results[1].Similarity,
		"negative friction dampens the adjusted score")
}

func TestLogFrictionByDescription(t *testing.T) {
	r, _ := testRetriever(t)
	ctx := context.Background()

	asyncID, err := r.AddMemory(ctx, MemoryRecord{Kind: KindHeuristic, Text: "Prefer async handlers"})
	require.NoError(t, err)
	_, err = r.AddMemory(ctx, MemoryRecord{Kind: KindDecision, Text: "Use PostgreSQL"})
	require.NoError(t, err)

	affected, err := r.LogFrictionByDescription(ctx, "the async suggestion was wrong", EventCorrection, -2, "user pushed back")
	require.NoError(t, err)
	require.Equal(t, []string{asyncID}, affected)

	rec, err := r.Store().GetByID(ctx, asyncID)
	require.NoError(t, err)
	assert.InDelta(t, -2, rec.FrictionScore, 1e-9)

	t.Run("no match above threshold", func(t *testing.T) {
		affected, err := r.LogFrictionByDescription(ctx, "completely unrelated grumbling", EventRejection, -1, "")
		require.NoError(t, err)
		assert.Empty(t, affected)
	})

	t.Run("every match above threshold takes the hit", func(t *testing.T) {
		expected := map[string]bool{asyncID: true}
		for i := 0; i < 12; i++ {
			id, err := r.AddMemory(ctx, MemoryRecord{Kind: KindHeuristic, Text: fmt.Sprintf("async rule %d", i)})
			require.NoError(t, err)
			expected[id] = true
		}

		affected, err := r.LogFrictionByDescription(ctx, "the async advice keeps failing", EventCorrection, -1, "")
		require.NoError(t, err)
		require.Len(t, affected, len(expected), "no cap hides matching memories")
		for _, id := range affected {
			assert.True(t, expected[id], "unexpected memory %s", id)
		}
	})
}
