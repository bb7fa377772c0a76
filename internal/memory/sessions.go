package memory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// StartSession opens a new working session and returns its id.
func (s *Store) StartSession(ctx context.Context) (string, error) {
	id := uuid.NewString()
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO sessions (id, started_at) VALUES (?, ?)`,
		id, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("start session: %w", err)
	}
	log.Debug().Str("session_id", id).Msg("session started")
	return id, nil
}

// EndSession stamps a session's end time. Ending an already ended or
// unknown session returns false.
func (s *Store) EndSession(ctx context.Context, sessionID string) (bool, error) {
	res, err := s.q.ExecContext(ctx,
		`UPDATE sessions SET ended_at = ? WHERE id = ? AND ended_at IS NULL`,
		time.Now().UTC(), sessionID)
	if err != nil {
		return false, fmt.Errorf("end session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetSession returns a session by id, or nil if unknown.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	var sess Session
	var ended sql.NullTime
	err := s.q.QueryRowContext(ctx, `
		SELECT id, started_at, ended_at, prompt_count, memory_hit_count
		FROM sessions WHERE id = ?
	`, sessionID).Scan(&sess.ID, &sess.StartedAt, &ended, &sess.PromptCount, &sess.MemoryHitCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}
	if ended.Valid {
		t := ended.Time
		sess.EndedAt = &t
	}
	return &sess, nil
}

// IncrementSessionCounters bumps a session's prompt and memory-hit counts.
func (s *Store) IncrementSessionCounters(ctx context.Context, sessionID string, prompts, memoryHits int) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE sessions
		SET prompt_count = prompt_count + ?, memory_hit_count = memory_hit_count + ?
		WHERE id = ?
	`, prompts, memoryHits, sessionID)
	if err != nil {
		return fmt.Errorf("increment session counters: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
	}
	return nil
}

// RecordSessionMemory associates a surfaced memory with a session, keeping
// the highest relevance score seen across repeated retrievals.
func (s *Store) RecordSessionMemory(ctx context.Context, sessionID, memoryID string, relevanceScore float64) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO session_memories (session_id, memory_id, relevance_score, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id, memory_id) DO UPDATE SET
			relevance_score = MAX(relevance_score, excluded.relevance_score)
	`, sessionID, memoryID, relevanceScore, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record session memory: %w", err)
	}
	return nil
}

// GetSessionMemories lists the memories surfaced during a session,
// highest relevance first.
func (s *Store) GetSessionMemories(ctx context.Context, sessionID string) ([]SessionMemory, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT session_id, memory_id, relevance_score, created_at
		FROM session_memories
		WHERE session_id = ?
		ORDER BY relevance_score DESC, created_at DESC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query session memories: %w", err)
	}
	defer rows.Close()

	var out []SessionMemory
	for rows.Next() {
		var sm SessionMemory
		if err := rows.Scan(&sm.SessionID, &sm.MemoryID, &sm.RelevanceScore, &sm.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan session memory: %w", err)
		}
		out = append(out, sm)
	}
	return out, rows.Err()
}
