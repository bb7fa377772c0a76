package memory

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBuilder(t *testing.T) (*ContextBuilder, *Retriever) {
	t.Helper()
	r, _ := testRetriever(t)
	return NewContextBuilder(r, TokenBudget{}), r
}

func TestBuildComposesSystemMessage(t *testing.T) {
	b, r := testBuilder(t)
	ctx := context.Background()

	_, err := r.AddMemory(ctx, MemoryRecord{Kind: KindConstraint, Text: "Always validate input", Scope: "api"})
	require.NoError(t, err)
	_, err = r.AddMemory(ctx, MemoryRecord{
		Kind:      KindDecision,
		Text:      "Use PostgreSQL for the database",
		Rationale: "Need complex joins",
	})
	require.NoError(t, err)
	_, err = r.AddMemory(ctx, MemoryRecord{Kind: KindHeuristic, Text: "Prefer async/await"})
	require.NoError(t, err)

	res, err := b.Build(ctx, "Should I make the database layer async or sync?", nil, BuildOptions{IncludeMemory: true})
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(res.Messages), 2)
	system := res.Messages[0]
	assert.Equal(t, RoleSystem, system.Role)
	assert.Contains(t, system.Content, "Project Memory")
	assert.Contains(t, system.Content, "Always validate input")
	assert.Contains(t, system.Content, "[scope: api]")
	assert.Contains(t, system.Content, "Use PostgreSQL for the database")
	assert.Contains(t, system.Content, "Rationale: Need complex joins")
	assert.Contains(t, system.Content, "Prefer async/await")

	// Section order: constraints before decisions before heuristics.
	ci := strings.Index(system.Content, "Constraints")
	di := strings.Index(system.Content, "Prior Decisions")
	hi := strings.Index(system.Content, "Team Heuristics")
	assert.True(t, ci < di && di < hi)

	last := res.Messages[len(res.Messages)-1]
	assert.Equal(t, RoleUser, last.Role)
	assert.Equal(t, "Should I make the database layer async or sync?", last.Content)

	assert.Equal(t, 1, res.MemoryStats.ConstraintCount)
	assert.Equal(t, 1, res.MemoryStats.DecisionCount)
	assert.Equal(t, 1, res.MemoryStats.HeuristicCount)
	assert.True(t, res.MemoryStats.WasAmbiguous)
	assert.Greater(t, res.TokenEstimate, 0)
}

func TestBuildWithoutMemory(t *testing.T) {
	b, r := testBuilder(t)
	ctx := context.Background()

	_, err := r.AddMemory(ctx, MemoryRecord{Kind: KindConstraint, Text: "Always validate input"})
	require.NoError(t, err)

	res, err := b.Build(ctx, "Add a login endpoint", nil, BuildOptions{})
	require.NoError(t, err)

	assert.NotContains(t, res.Messages[0].Content, "Project Memory")
	assert.Zero(t, res.MemoryStats.ConstraintCount)
}

func TestBuildEmptyStore(t *testing.T) {
	b, _ := testBuilder(t)

	res, err := b.Build(context.Background(), "Add a login endpoint", nil, BuildOptions{IncludeMemory: true})
	require.NoError(t, err)

	assert.NotContains(t, res.Messages[0].Content, "Project Memory",
		"empty store yields no memory section")
	assert.Len(t, res.Messages, 2)
}

func TestBuildSurvivesEmbedderFailure(t *testing.T) {
	emb := newAxisEmbedder()
	r := NewRetriever(testStore(t), emb, RetrieverConfig{})
	b := NewContextBuilder(r, TokenBudget{})
	ctx := context.Background()

	_, err := r.AddMemory(ctx, MemoryRecord{Kind: KindConstraint, Text: "Always validate input"})
	require.NoError(t, err)

	emb.fail = true
	res, err := b.Build(ctx, "Should I use async or sync?", nil, BuildOptions{IncludeMemory: true})
	require.NoError(t, err, "retrieval failure never fails the build")

	last := res.Messages[len(res.Messages)-1]
	assert.Equal(t, "Should I use async or sync?", last.Content)
}

func TestBuildTruncatesHistory(t *testing.T) {
	r, _ := testRetriever(t)
	b := NewContextBuilder(r, TokenBudget{ConversationTokens: 100})
	ctx := context.Background()

	// Every message alone exceeds the 100-token conversation budget.
	big := strings.Repeat("w", 800)
	history := make([]Message, 100)
	for i := range history {
		history[i] = Message{Role: RoleUser, Content: big}
	}

	res, err := b.Build(ctx, "final prompt", history, BuildOptions{})
	require.NoError(t, err)
	assert.Less(t, len(res.Messages), 100+2, "history must have been truncated")
}

func TestTruncateHistoryKeepsNewest(t *testing.T) {
	history := []Message{
		{Role: RoleUser, Content: strings.Repeat("a", 400)},      // 100 tokens, oldest
		{Role: RoleAssistant, Content: strings.Repeat("b", 200)}, // 50 tokens
		{Role: RoleUser, Content: strings.Repeat("c", 200)},      // 50 tokens, newest
	}

	kept := truncateHistory(history, 100)
	require.Len(t, kept, 2)
	assert.Equal(t, RoleAssistant, kept[0].Role)
	assert.Equal(t, RoleUser, kept[1].Role)
	assert.Contains(t, kept[1].Content, "c")

	t.Run("all fit", func(t *testing.T) {
		kept := truncateHistory(history, 1000)
		assert.Len(t, kept, 3)
	})

	t.Run("none fit", func(t *testing.T) {
		kept := truncateHistory(history, 10)
		assert.Empty(t, kept)
	})

	t.Run("empty history", func(t *testing.T) {
		assert.Nil(t, truncateHistory(nil, 100))
	})
}

func TestEndToEndScenario(t *testing.T) {
	b, r := testBuilder(t)
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

	prompt := "Should I use async or sync I/O here?"
	mems, err := r.RetrieveForContext(ctx, prompt, RetrieveForContextOptions{})
	require.NoError(t, err)

	assert.True(t, DetectsAmbiguity(prompt))
	require.Len(t, mems.Constraints, 1)
	assert.Equal(t, "Always validate input", mems.Constraints[0].Text)
	assert.NotEmpty(t, mems.Heuristics)

	res, err := b.Build(ctx, prompt, nil, BuildOptions{IncludeMemory: true})
	require.NoError(t, err)
	assert.True(t, res.MemoryStats.WasAmbiguous)
	assert.Contains(t, res.Messages[0].Content, "Always validate input")
	assert.Contains(t, res.Messages[0].Content, "Prefer async/await")
}
