package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/normanking/recall/internal/data"
)

// DefaultDimension is the store's embedding dimensionality. Every embedding
// written to one store must have exactly this many components.
const DefaultDimension = 384

// dbtx is satisfied by both *sql.DB connections and *sql.Tx, letting store
// methods run standalone or inside a caller-owned transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store provides durable CRUD over memory records, embeddings, and friction
// events, plus brute-force vector search. All mutating operations are
// individually atomic; RunInTransaction wraps a batch into one commit.
type Store struct {
	db   *data.DB
	q    dbtx
	dim  int
	inTx bool
}

// NewStore creates a store over an opened database. dim <= 0 selects
// DefaultDimension.
func NewStore(db *data.DB, dim int) *Store {
	if dim <= 0 {
		dim = DefaultDimension
	}
	return &Store{db: db, q: db.Conn(), dim: dim}
}

// Dimension returns the store's fixed embedding dimension.
func (s *Store) Dimension() int {
	return s.dim
}

// RunInTransaction executes fn with a store bound to a single transaction.
// If fn returns an error, every mutation made through its store argument is
// rolled back.
func (s *Store) RunInTransaction(ctx context.Context, fn func(*Store) error) error {
	if s.inTx {
		return fn(s)
	}
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		return fn(&Store{db: s.db, q: tx, dim: s.dim, inTx: true})
	})
}

// withTx runs fn atomically, reusing the enclosing transaction when the
// store is already transactional.
func (s *Store) withTx(ctx context.Context, fn func(q dbtx) error) error {
	if s.inTx {
		return fn(s.q)
	}
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		return fn(tx)
	})
}

// checkDimension validates an embedding against the store's fixed dimension.
func (s *Store) checkDimension(vec []float32) error {
	if len(vec) != s.dim {
		return fmt.Errorf("%w: got %d, store requires %d", ErrDimensionMismatch, len(vec), s.dim)
	}
	return nil
}

// ════════════════════════════════════════════════════════════════════════════
// RECORD CREATION
// ════════════════════════════════════════════════════════════════════════════

// AddConstraint creates a new active constraint, optionally attaching an
// embedding atomically with creation. Returns the new record's id.
func (s *Store) AddConstraint(ctx context.Context, in ConstraintInput, embedding []float32) (string, error) {
	rec := MemoryRecord{
		Kind:     KindConstraint,
		Text:     in.Text,
		Note:     in.Note,
		Origin:   in.Origin,
		Scope:    in.Scope,
		Severity: in.Severity,
	}
	if rec.Severity == "" {
		rec.Severity = SeverityWarning
	}
	return s.addRecord(ctx, rec, embedding)
}

// AddDecision creates a new active decision record.
func (s *Store) AddDecision(ctx context.Context, in DecisionInput, embedding []float32) (string, error) {
	rec := MemoryRecord{
		Kind:             KindDecision,
		Text:             in.Text,
		Note:             in.Note,
		Origin:           in.Origin,
		Rationale:        in.Rationale,
		Alternatives:     in.Alternatives,
		RelatedArtifacts: in.RelatedArtifacts,
	}
	return s.addRecord(ctx, rec, embedding)
}

// AddHeuristic creates a new active heuristic record.
func (s *Store) AddHeuristic(ctx context.Context, in HeuristicInput, embedding []float32) (string, error) {
	rec := MemoryRecord{
		Kind:           KindHeuristic,
		Text:           in.Text,
		Note:           in.Note,
		Origin:         in.Origin,
		ApplicableWhen: in.ApplicableWhen,
		Strength:       in.Strength,
	}
	if rec.Strength == "" {
		rec.Strength = StrengthModerate
	}
	return s.addRecord(ctx, rec, embedding)
}

func (s *Store) addRecord(ctx context.Context, rec MemoryRecord, embedding []float32) (string, error) {
	if err := validateText(rec.Text); err != nil {
		return "", err
	}
	if embedding != nil {
		if err := s.checkDimension(embedding); err != nil {
			return "", err
		}
	}
	if rec.Origin == "" {
		rec.Origin = OriginUser
	}

	rec.ID = uuid.NewString()
	now := time.Now().UTC()

	altJSON, err := json.Marshal(emptyIfNil(rec.Alternatives))
	if err != nil {
		return "", fmt.Errorf("marshal alternatives: %w", err)
	}
	artJSON, err := json.Marshal(emptyIfNil(rec.RelatedArtifacts))
	if err != nil {
		return "", fmt.Errorf("marshal related artifacts: %w", err)
	}

	err = s.withTx(ctx, func(q dbtx) error {
		_, err := q.ExecContext(ctx, `
			INSERT INTO memories (
				id, kind, text, note, origin, friction_score, active,
				scope, severity, rationale, alternatives_json,
				related_artifacts_json, applicable_when, strength,
				created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, 0, 1, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, rec.ID, rec.Kind, rec.Text, rec.Note, rec.Origin,
			rec.Scope, rec.Severity, rec.Rationale, string(altJSON),
			string(artJSON), rec.ApplicableWhen, rec.Strength,
			now, now)
		if err != nil {
			return fmt.Errorf("insert memory: %w", err)
		}

		if embedding != nil {
			if err := upsertEmbedding(ctx, q, rec.ID, embedding, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	log.Info().
		Str("id", rec.ID).
		Str("kind", string(rec.Kind)).
		Bool("embedded", embedding != nil).
		Msg("memory added")

	return rec.ID, nil
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// ════════════════════════════════════════════════════════════════════════════
// LOOKUP
// ════════════════════════════════════════════════════════════════════════════

const recordColumns = `id, kind, text, note, origin, friction_score, active,
	scope, severity, rationale, alternatives_json, related_artifacts_json,
	applicable_when, strength, created_at, updated_at`

// GetByID returns the active record with the given id, or nil if it is
// missing or soft-deleted.
func (s *Store) GetByID(ctx context.Context, id string) (*MemoryRecord, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM memories WHERE id = ? AND active = 1`, id)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query memory: %w", err)
	}
	return rec, nil
}

// GetByType returns all active records of a kind, newest first.
func (s *Store) GetByType(ctx context.Context, kind Kind) ([]MemoryRecord, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}

	rows, err := s.q.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM memories
		 WHERE kind = ? AND active = 1
		 ORDER BY created_at DESC, rowid DESC`, kind)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

// ListOptions control ListMemories pagination and filtering.
type ListOptions struct {
	Kind            *Kind
	Limit           int
	Offset          int
	IncludeInactive bool
}

// ListMemories returns records newest-first with pagination. Soft-deleted
// records appear only when IncludeInactive is set.
func (s *Store) ListMemories(ctx context.Context, opts ListOptions) ([]MemoryRecord, error) {
	if opts.Limit <= 0 {
		opts.Limit = 50
	}

	query := `SELECT ` + recordColumns + ` FROM memories WHERE 1=1`
	args := []any{}

	if !opts.IncludeInactive {
		query += ` AND active = 1`
	}
	if opts.Kind != nil {
		if !opts.Kind.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidKind, *opts.Kind)
		}
		query += ` AND kind = ?`
		args = append(args, *opts.Kind)
	}

	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`
	args = append(args, opts.Limit, opts.Offset)

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

// ════════════════════════════════════════════════════════════════════════════
// MUTATION
// ════════════════════════════════════════════════════════════════════════════

// SoftDelete marks a record inactive, excluding it from all normal queries
// while keeping it for audit. Returns false if the record is missing or
// already inactive.
func (s *Store) SoftDelete(ctx context.Context, id string) (bool, error) {
	res, err := s.q.ExecContext(ctx,
		`UPDATE memories SET active = 0, updated_at = ? WHERE id = ? AND active = 1`,
		time.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("soft delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		log.Info().Str("id", id).Msg("memory soft-deleted")
	}
	return n > 0, nil
}

// HardDelete irreversibly removes a record, its embedding, and its friction
// events. Administrative operation; normal flow uses SoftDelete.
func (s *Store) HardDelete(ctx context.Context, id string) (bool, error) {
	var deleted bool
	err := s.withTx(ctx, func(q dbtx) error {
		if _, err := q.ExecContext(ctx, `DELETE FROM friction_events WHERE memory_id = ?`, id); err != nil {
			return fmt.Errorf("delete friction events: %w", err)
		}
		if _, err := q.ExecContext(ctx, `DELETE FROM embeddings WHERE memory_id = ?`, id); err != nil {
			return fmt.Errorf("delete embedding: %w", err)
		}
		if _, err := q.ExecContext(ctx, `DELETE FROM session_memories WHERE memory_id = ?`, id); err != nil {
			return fmt.Errorf("delete session associations: %w", err)
		}
		res, err := q.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete memory: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		deleted = n > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	if deleted {
		log.Info().Str("id", id).Msg("memory hard-deleted")
	}
	return deleted, nil
}

// UpdateContent replaces a record's text and, when given, its embedding,
// bumping updated_at. Returns false without error if the record is missing
// or inactive.
func (s *Store) UpdateContent(ctx context.Context, id, newText string, embedding []float32) (bool, error) {
	if err := validateText(newText); err != nil {
		return false, err
	}
	if embedding != nil {
		if err := s.checkDimension(embedding); err != nil {
			return false, err
		}
	}

	now := time.Now().UTC()
	var updated bool

	err := s.withTx(ctx, func(q dbtx) error {
		res, err := q.ExecContext(ctx,
			`UPDATE memories SET text = ?, updated_at = ? WHERE id = ? AND active = 1`,
			newText, now, id)
		if err != nil {
			return fmt.Errorf("update text: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		updated = true

		if embedding != nil {
			return upsertEmbedding(ctx, q, id, embedding, now)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return updated, nil
}

// ════════════════════════════════════════════════════════════════════════════
// EMBEDDINGS
// ════════════════════════════════════════════════════════════════════════════

func upsertEmbedding(ctx context.Context, q dbtx, memoryID string, vec []float32, now time.Time) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO embeddings (memory_id, vector, dimension, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(memory_id) DO UPDATE SET
			vector = excluded.vector,
			dimension = excluded.dimension,
			created_at = excluded.created_at
	`, memoryID, Float32SliceToBytes(vec), len(vec), now)
	if err != nil {
		return fmt.Errorf("upsert embedding: %w", err)
	}
	return nil
}

// SetEmbedding attaches or replaces a record's embedding. The vector length
// must match the store dimension exactly; mismatches are never truncated or
// padded.
func (s *Store) SetEmbedding(ctx context.Context, memoryID string, vec []float32) error {
	if err := s.checkDimension(vec); err != nil {
		return err
	}

	var exists int
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM memories WHERE id = ?`, memoryID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check memory: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, memoryID)
	}

	return upsertEmbedding(ctx, s.q, memoryID, vec, time.Now().UTC())
}

// GetEmbedding returns a record's embedding, or nil if none is stored.
func (s *Store) GetEmbedding(ctx context.Context, memoryID string) ([]float32, error) {
	var blob []byte
	err := s.q.QueryRowContext(ctx,
		`SELECT vector FROM embeddings WHERE memory_id = ?`, memoryID).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query embedding: %w", err)
	}
	return BytesToFloat32Slice(blob), nil
}

// ════════════════════════════════════════════════════════════════════════════
// VECTOR SEARCH
// ════════════════════════════════════════════════════════════════════════════

// SearchMatch pairs a record with its raw cosine similarity to a query.
type SearchMatch struct {
	Record     MemoryRecord
	Similarity float64
}

// VectorSearchOptions control VectorSearch. Limit zero selects the default
// cap; a negative Limit returns every candidate, ranked.
type VectorSearchOptions struct {
	Limit int
	Kinds []Kind
}

// VectorSearch computes cosine similarity between the query and every stored
// embedding (optionally restricted to the given kinds) and returns the
// top-limit matches by descending similarity. Brute force is deliberate:
// per-project memory counts stay in the hundreds to low thousands, and the
// contract leaves room to swap in an approximate index later.
func (s *Store) VectorSearch(ctx context.Context, query []float32, opts VectorSearchOptions) ([]SearchMatch, error) {
	if err := s.checkDimension(query); err != nil {
		return nil, err
	}
	if opts.Limit == 0 {
		opts.Limit = 10
	}

	sqlQuery := `SELECT ` + prefixedRecordColumns("m") + `, e.vector
		FROM memories m
		JOIN embeddings e ON e.memory_id = m.id
		WHERE m.active = 1`
	args := []any{}

	if len(opts.Kinds) > 0 {
		sqlQuery += ` AND m.kind IN (?` + repeatPlaceholder(len(opts.Kinds)-1) + `)`
		for _, k := range opts.Kinds {
			if !k.Valid() {
				return nil, fmt.Errorf("%w: %q", ErrInvalidKind, k)
			}
			args = append(args, k)
		}
	}

	rows, err := s.q.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("vector search query: %w", err)
	}
	defer rows.Close()

	var scored []ScoredItem[MemoryRecord]
	for rows.Next() {
		rec, blob, err := scanRecordWithBlob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		vec := BytesToFloat32Slice(blob)
		if vec == nil {
			continue
		}
		scored = append(scored, ScoredItem[MemoryRecord]{
			Item:  *rec,
			Score: CosineSimilarity(query, vec),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidates: %w", err)
	}

	limit := opts.Limit
	if limit < 0 || limit > len(scored) {
		limit = len(scored)
	}
	top := TopKWithScores(scored, limit)
	matches := make([]SearchMatch, len(top))
	for i, item := range top {
		matches[i] = SearchMatch{Record: item.Item, Similarity: item.Score}
	}

	log.Debug().
		Int("candidates", len(scored)).
		Int("returned", len(matches)).
		Msg("vector search complete")

	return matches, nil
}

func repeatPlaceholder(n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += ", ?"
	}
	return out
}

func prefixedRecordColumns(alias string) string {
	return alias + `.id, ` + alias + `.kind, ` + alias + `.text, ` + alias + `.note, ` +
		alias + `.origin, ` + alias + `.friction_score, ` + alias + `.active, ` +
		alias + `.scope, ` + alias + `.severity, ` + alias + `.rationale, ` +
		alias + `.alternatives_json, ` + alias + `.related_artifacts_json, ` +
		alias + `.applicable_when, ` + alias + `.strength, ` +
		alias + `.created_at, ` + alias + `.updated_at`
}

// ════════════════════════════════════════════════════════════════════════════
// FRICTION
// ════════════════════════════════════════════════════════════════════════════

// RecordFrictionEvent appends an event to the log and updates the target
// memory's friction score to clamp(score + delta, -10, 10). The append and
// the score update commit together or not at all.
func (s *Store) RecordFrictionEvent(ctx context.Context, memoryID string, eventType EventType, delta float64, note string) (string, error) {
	if !eventType.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidEventType, eventType)
	}

	eventID := uuid.NewString()
	now := time.Now().UTC()

	err := s.withTx(ctx, func(q dbtx) error {
		var score float64
		err := q.QueryRowContext(ctx,
			`SELECT friction_score FROM memories WHERE id = ? AND active = 1`,
			memoryID).Scan(&score)
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: %s", ErrNotFound, memoryID)
		}
		if err != nil {
			return fmt.Errorf("read friction score: %w", err)
		}

		if _, err := q.ExecContext(ctx, `
			INSERT INTO friction_events (id, memory_id, event_type, delta, note, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, eventID, memoryID, eventType, delta, note, now); err != nil {
			return fmt.Errorf("append friction event: %w", err)
		}

		newScore := clampFriction(score + delta)
		if _, err := q.ExecContext(ctx,
			`UPDATE memories SET friction_score = ?, updated_at = ? WHERE id = ?`,
			newScore, now, memoryID); err != nil {
			return fmt.Errorf("update friction score: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	log.Info().
		Str("memory_id", memoryID).
		Str("event_type", string(eventType)).
		Float64("delta", delta).
		Msg("friction event recorded")

	return eventID, nil
}

// ApplyFrictionDecay multiplies every non-zero friction score by
// 0.5^(1/halfLifeDays), an exponential half-life decay toward zero. Returns
// the number of memories touched. Intended to run as a daily batch so stale
// friction fades without another event.
func (s *Store) ApplyFrictionDecay(ctx context.Context, halfLifeDays float64) (int, error) {
	if halfLifeDays <= 0 {
		return 0, fmt.Errorf("half-life must be positive, got %v", halfLifeDays)
	}

	factor := math.Pow(0.5, 1.0/halfLifeDays)
	res, err := s.q.ExecContext(ctx,
		`UPDATE memories SET friction_score = friction_score * ? WHERE friction_score != 0`,
		factor)
	if err != nil {
		return 0, fmt.Errorf("apply decay: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	log.Info().
		Float64("half_life_days", halfLifeDays).
		Float64("factor", factor).
		Int64("decayed", n).
		Msg("friction decay applied")

	return int(n), nil
}

// GetFrictionEvents returns a memory's friction log, newest first.
func (s *Store) GetFrictionEvents(ctx context.Context, memoryID string) ([]FrictionEvent, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, memory_id, event_type, delta, note, created_at
		FROM friction_events
		WHERE memory_id = ?
		ORDER BY created_at DESC, rowid DESC
	`, memoryID)
	if err != nil {
		return nil, fmt.Errorf("query friction events: %w", err)
	}
	defer rows.Close()

	var events []FrictionEvent
	for rows.Next() {
		var e FrictionEvent
		if err := rows.Scan(&e.ID, &e.MemoryID, &e.EventType, &e.Delta, &e.Note, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan friction event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// ════════════════════════════════════════════════════════════════════════════
// STATS
// ════════════════════════════════════════════════════════════════════════════

// GetStats aggregates counts and friction totals over active memories.
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{PerKindCounts: make(map[Kind]int)}

	rows, err := s.q.QueryContext(ctx,
		`SELECT kind, COUNT(*) FROM memories WHERE active = 1 GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("count memories: %w", err)
	}
	for rows.Next() {
		var kind Kind
		var count int
		if err := rows.Scan(&kind, &count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan kind count: %w", err)
		}
		stats.PerKindCounts[kind] = count
		stats.TotalCount += count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM friction_events`).Scan(&stats.TotalFrictionEvents); err != nil {
		return nil, fmt.Errorf("count friction events: %w", err)
	}

	var avg sql.NullFloat64
	if err := s.q.QueryRowContext(ctx,
		`SELECT AVG(friction_score) FROM memories WHERE active = 1`).Scan(&avg); err != nil {
		return nil, fmt.Errorf("average friction: %w", err)
	}
	if avg.Valid {
		stats.AverageFrictionScore = avg.Float64
	}

	// Select the column directly rather than via MIN()/MAX(): aggregate
	// expressions have no decltype, so the driver would return a string that
	// sql.NullTime cannot scan.
	var oldest, newest sql.NullTime
	if err := s.q.QueryRowContext(ctx,
		`SELECT created_at FROM memories WHERE active = 1 ORDER BY created_at ASC LIMIT 1`).
		Scan(&oldest); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("created-at bounds: %w", err)
	}
	if err := s.q.QueryRowContext(ctx,
		`SELECT created_at FROM memories WHERE active = 1 ORDER BY created_at DESC LIMIT 1`).
		Scan(&newest); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("created-at bounds: %w", err)
	}
	if oldest.Valid {
		t := oldest.Time
		stats.OldestCreatedAt = &t
	}
	if newest.Valid {
		t := newest.Time
		stats.NewestCreatedAt = &t
	}

	return stats, nil
}

// ════════════════════════════════════════════════════════════════════════════
// ROW SCANNING
// ════════════════════════════════════════════════════════════════════════════

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*MemoryRecord, error) {
	var rec MemoryRecord
	var altJSON, artJSON string
	var active int

	err := row.Scan(
		&rec.ID, &rec.Kind, &rec.Text, &rec.Note, &rec.Origin,
		&rec.FrictionScore, &active, &rec.Scope, &rec.Severity,
		&rec.Rationale, &altJSON, &artJSON,
		&rec.ApplicableWhen, &rec.Strength,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Active = active == 1
	if err := json.Unmarshal([]byte(altJSON), &rec.Alternatives); err != nil {
		log.Warn().Err(err).Str("id", rec.ID).Msg("failed to unmarshal alternatives")
		rec.Alternatives = nil
	}
	if err := json.Unmarshal([]byte(artJSON), &rec.RelatedArtifacts); err != nil {
		log.Warn().Err(err).Str("id", rec.ID).Msg("failed to unmarshal related artifacts")
		rec.RelatedArtifacts = nil
	}
	if len(rec.Alternatives) == 0 {
		rec.Alternatives = nil
	}
	if len(rec.RelatedArtifacts) == 0 {
		rec.RelatedArtifacts = nil
	}

	return &rec, nil
}

func scanRecordWithBlob(rows *sql.Rows) (*MemoryRecord, []byte, error) {
	var rec MemoryRecord
	var altJSON, artJSON string
	var active int
	var blob []byte

	err := rows.Scan(
		&rec.ID, &rec.Kind, &rec.Text, &rec.Note, &rec.Origin,
		&rec.FrictionScore, &active, &rec.Scope, &rec.Severity,
		&rec.Rationale, &altJSON, &artJSON,
		&rec.ApplicableWhen, &rec.Strength,
		&rec.CreatedAt, &rec.UpdatedAt,
		&blob,
	)
	if err != nil {
		return nil, nil, err
	}

	rec.Active = active == 1
	if err := json.Unmarshal([]byte(altJSON), &rec.Alternatives); err != nil {
		log.Warn().Err(err).Str("id", rec.ID).Msg("failed to unmarshal alternatives")
		rec.Alternatives = nil
	}
	if err := json.Unmarshal([]byte(artJSON), &rec.RelatedArtifacts); err != nil {
		log.Warn().Err(err).Str("id", rec.ID).Msg("failed to unmarshal related artifacts")
		rec.RelatedArtifacts = nil
	}
	if len(rec.Alternatives) == 0 {
		rec.Alternatives = nil
	}
	if len(rec.RelatedArtifacts) == 0 {
		rec.RelatedArtifacts = nil
	}

	return &rec, blob, nil
}

func collectRecords(rows *sql.Rows) ([]MemoryRecord, error) {
	var records []MemoryRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}
