package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionLifecycle(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	id, err := s.StartSession(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	sess, err := s.GetSession(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Nil(t, sess.EndedAt)
	assert.Zero(t, sess.PromptCount)

	require.NoError(t, s.IncrementSessionCounters(ctx, id, 1, 3))
	require.NoError(t, s.IncrementSessionCounters(ctx, id, 1, 0))

	sess, err = s.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, sess.PromptCount)
	assert.Equal(t, 3, sess.MemoryHitCount)

	ok, err := s.EndSession(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	sess, err = s.GetSession(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, sess.EndedAt)
	assert.False(t, sess.EndedAt.Before(sess.StartedAt))

	ok, err = s.EndSession(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok, "ending twice is a no-op")
}

func TestSessionUnknown(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	sess, err := s.GetSession(ctx, "no-such-session")
	require.NoError(t, err)
	assert.Nil(t, sess)

	err = s.IncrementSessionCounters(ctx, "no-such-session", 1, 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionMemories(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	sessionID, err := s.StartSession(ctx)
	require.NoError(t, err)

	lowID, err := s.AddDecision(ctx, DecisionInput{Text: "low relevance"}, nil)
	require.NoError(t, err)
	highID, err := s.AddDecision(ctx, DecisionInput{Text: "high relevance"}, nil)
	require.NoError(t, err)

	require.NoError(t, s.RecordSessionMemory(ctx, sessionID, lowID, 0.4))
	require.NoError(t, s.RecordSessionMemory(ctx, sessionID, highID, 0.9))

	// Re-recording with a lower score keeps the maximum seen.
	require.NoError(t, s.RecordSessionMemory(ctx, sessionID, highID, 0.5))

	mems, err := s.GetSessionMemories(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, mems, 2)
	assert.Equal(t, highID, mems[0].MemoryID)
	assert.InDelta(t, 0.9, mems[0].RelevanceScore, 1e-9)
	assert.Equal(t, lowID, mems[1].MemoryID)
}
