// Package memory implements the persistent project-memory core: the record
// store, the friction-feedback scoring model, the retrieval/ranking policy,
// and the token-budgeted context assembly.
package memory

import (
	"errors"
	"fmt"
	"time"
)

// Kind discriminates the three memory variants. Records are a tagged union
// on this field rather than separate types, which keeps (de)serialization
// uniform; variant-specific fields are meaningful only for their kind.
type Kind string

const (
	KindConstraint Kind = "constraint"
	KindDecision   Kind = "decision"
	KindHeuristic  Kind = "heuristic"
)

// Valid reports whether k is one of the three known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindConstraint, KindDecision, KindHeuristic:
		return true
	}
	return false
}

// ParseKind converts a string to a Kind, or fails with ErrInvalidKind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
	return k, nil
}

// Origin records where a memory came from.
type Origin string

const (
	OriginUser           Origin = "user"
	OriginAutomatic      Origin = "automatic"
	OriginVersionControl Origin = "version-control"
)

// Severity applies to constraints.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Strength applies to heuristics.
type Strength string

const (
	StrengthStrong   Strength = "strong"
	StrengthModerate Strength = "moderate"
	StrengthWeak     Strength = "weak"
)

// EventType classifies a friction event.
type EventType string

const (
	EventIteration  EventType = "iteration"
	EventCorrection EventType = "correction"
	EventRevert     EventType = "revert"
	EventRejection  EventType = "rejection"
	EventAcceptance EventType = "acceptance"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventIteration, EventCorrection, EventRevert, EventRejection, EventAcceptance:
		return true
	}
	return false
}

// Friction score bounds and text limits.
const (
	FrictionScoreMin = -10.0
	FrictionScoreMax = 10.0

	// MaxTextLen caps memory text size. Oversized text is a validation
	// error, never silently truncated.
	MaxTextLen = 32 * 1024
)

// Sentinel errors for the validation taxonomy. Callers check with errors.Is.
var (
	ErrInvalidKind       = errors.New("invalid memory kind")
	ErrInvalidEventType  = errors.New("invalid friction event type")
	ErrEmptyText         = errors.New("memory text is empty")
	ErrTextTooLong       = errors.New("memory text exceeds maximum length")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrNotFound          = errors.New("memory not found")
)

// MemoryRecord is one remembered fact. Exactly one variant's fields are
// populated, selected by Kind.
type MemoryRecord struct {
	ID            string    `json:"id"`
	Kind          Kind      `json:"kind"`
	Text          string    `json:"text"`
	Note          string    `json:"note,omitempty"`
	Origin        Origin    `json:"origin"`
	FrictionScore float64   `json:"friction_score"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	// Constraint fields
	Scope    string   `json:"scope,omitempty"`
	Severity Severity `json:"severity,omitempty"`

	// Decision fields
	Rationale        string   `json:"rationale,omitempty"`
	Alternatives     []string `json:"alternatives,omitempty"`
	RelatedArtifacts []string `json:"related_artifacts,omitempty"`

	// Heuristic fields
	ApplicableWhen string   `json:"applicable_when,omitempty"`
	Strength       Strength `json:"strength,omitempty"`
}

// ConstraintInput creates a constraint memory.
type ConstraintInput struct {
	Text     string
	Note     string
	Origin   Origin
	Scope    string
	Severity Severity
}

// DecisionInput creates a decision memory. Rationale should be present but
// is not structurally enforced.
type DecisionInput struct {
	Text             string
	Note             string
	Origin           Origin
	Rationale        string
	Alternatives     []string
	RelatedArtifacts []string
}

// HeuristicInput creates a heuristic memory.
type HeuristicInput struct {
	Text           string
	Note           string
	Origin         Origin
	ApplicableWhen string
	Strength       Strength
}

// FrictionEvent is one immutable entry in the feedback log.
type FrictionEvent struct {
	ID        string    `json:"id"`
	MemoryID  string    `json:"memory_id"`
	EventType EventType `json:"event_type"`
	Delta     float64   `json:"delta"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Session records one interactive run. Observational only.
type Session struct {
	ID             string     `json:"id"`
	StartedAt      time.Time  `json:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	PromptCount    int        `json:"prompt_count"`
	MemoryHitCount int        `json:"memory_hit_count"`
}

// SessionMemory associates a retrieved memory with a session.
type SessionMemory struct {
	SessionID      string    `json:"session_id"`
	MemoryID       string    `json:"memory_id"`
	RelevanceScore float64   `json:"relevance_score"`
	CreatedAt      time.Time `json:"created_at"`
}

// RetrievalResult pairs a record with its raw similarity and its
// friction-adjusted score.
type RetrievalResult struct {
	Record        MemoryRecord `json:"record"`
	Similarity    float64      `json:"similarity"`
	AdjustedScore float64      `json:"adjusted_score"`
}

// Stats summarizes a store for operator-facing reporting.
type Stats struct {
	TotalCount           int          `json:"total_count"`
	PerKindCounts        map[Kind]int `json:"per_kind_counts"`
	TotalFrictionEvents  int          `json:"total_friction_events"`
	AverageFrictionScore float64      `json:"average_friction_score"`
	OldestCreatedAt      *time.Time   `json:"oldest_created_at,omitempty"`
	NewestCreatedAt      *time.Time   `json:"newest_created_at,omitempty"`
}

// validateText applies the shared text validation for all add/update paths.
func validateText(text string) error {
	if text == "" {
		return ErrEmptyText
	}
	if len(text) > MaxTextLen {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrTextTooLong, len(text), MaxTextLen)
	}
	return nil
}
