package memory

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// Embedder turns text into a fixed-dimension vector. The retriever only
// needs single-text embedding; batch and lifecycle concerns live with the
// implementations.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// RetrieverConfig holds the similarity thresholds and limits for retrieval.
// The defaults were tuned against typical coding-assistant prompts; all of
// them are overridable through configuration.
type RetrieverConfig struct {
	// MinSimilarity gates general Retrieve results.
	MinSimilarity float64
	// DecisionMinSimilarity gates decisions surfaced into context.
	DecisionMinSimilarity float64
	// HeuristicMinSimilarity gates heuristics surfaced into context.
	HeuristicMinSimilarity float64
	// SearchMinSimilarity gates explicit user searches, which tolerate
	// looser matches than automatic injection.
	SearchMinSimilarity float64
	// FrictionMatchThreshold gates friction-by-description matching; high
	// on purpose, since a wrong match poisons an unrelated memory's score.
	FrictionMatchThreshold float64
	// DefaultLimit caps decisions pulled into context when the caller does
	// not say otherwise.
	DefaultLimit int
}

// defaultSearchLimit applies to Retrieve and Search calls with limit <= 0.
const defaultSearchLimit = 10

// DefaultRetrieverConfig returns the tuned defaults.
func DefaultRetrieverConfig() RetrieverConfig {
	return RetrieverConfig{
		MinSimilarity:          0.3,
		DecisionMinSimilarity:  0.4,
		HeuristicMinSimilarity: 0.35,
		SearchMinSimilarity:    0.2,
		FrictionMatchThreshold: 0.55,
		DefaultLimit:           5,
	}
}

// Retriever combines the store and an embedder into the retrieval surface
// used by the context builder and the CLI.
type Retriever struct {
	store    *Store
	embedder Embedder
	cfg      RetrieverConfig
}

// NewRetriever wires a retriever over a store and embedder. Zero-valued
// config fields fall back to defaults.
func NewRetriever(store *Store, embedder Embedder, cfg RetrieverConfig) *Retriever {
	def := DefaultRetrieverConfig()
	if cfg.MinSimilarity == 0 {
		cfg.MinSimilarity = def.MinSimilarity
	}
	if cfg.DecisionMinSimilarity == 0 {
		cfg.DecisionMinSimilarity = def.DecisionMinSimilarity
	}
	if cfg.HeuristicMinSimilarity == 0 {
		cfg.HeuristicMinSimilarity = def.HeuristicMinSimilarity
	}
	if cfg.SearchMinSimilarity == 0 {
		cfg.SearchMinSimilarity = def.SearchMinSimilarity
	}
	if cfg.FrictionMatchThreshold == 0 {
		cfg.FrictionMatchThreshold = def.FrictionMatchThreshold
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = def.DefaultLimit
	}
	return &Retriever{store: store, embedder: embedder, cfg: cfg}
}

// Store exposes the underlying store for callers that need direct CRUD.
func (r *Retriever) Store() *Store {
	return r.store
}

// Retrieve embeds the prompt, over-fetches candidates, filters by minimum
// similarity, applies the friction adjustment, and returns the top results
// by adjusted score. Low-friction memories rank down but are never hidden
// by friction alone: the similarity filter uses the raw score.
func (r *Retriever) Retrieve(ctx context.Context, prompt string, limit int, kinds ...Kind) ([]RetrievalResult, error) {
	return r.retrieve(ctx, prompt, limit, r.cfg.MinSimilarity, kinds)
}

func (r *Retriever) retrieve(ctx context.Context, prompt string, limit int, minSim float64, kinds []Kind) ([]RetrievalResult, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	queryVec, err := r.embedder.Embed(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	// Over-fetch so the friction adjustment can reorder past the cut line.
	matches, err := r.store.VectorSearch(ctx, queryVec, VectorSearchOptions{
		Limit: limit * 3,
		Kinds: kinds,
	})
	if err != nil {
		return nil, err
	}

	results := make([]RetrievalResult, 0, len(matches))
	for _, m := range matches {
		if m.Similarity < minSim {
			continue
		}
		results = append(results, RetrievalResult{
			Record:        m.Record,
			Similarity:    m.Similarity,
			AdjustedScore: m.Similarity * frictionMultiplier(m.Record.FrictionScore),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].AdjustedScore > results[j].AdjustedScore
	})
	if len(results) > limit {
		results = results[:limit]
	}

	log.Debug().
		Str("prompt", truncateForLog(prompt)).
		Int("matches", len(results)).
		Float64("min_similarity", minSim).
		Msg("retrieval complete")

	return results, nil
}

// Search is the explicit lookup surface: the same pipeline as Retrieve,
// friction adjustment included, but with a looser similarity floor so
// exploratory queries surface weaker matches.
func (r *Retriever) Search(ctx context.Context, query string, limit int, kinds ...Kind) ([]RetrievalResult, error) {
	return r.retrieve(ctx, query, limit, r.cfg.SearchMinSimilarity, kinds)
}

// GetAllConstraints returns every active constraint regardless of
// similarity. Constraints are hard rules, so they bypass relevance
// filtering entirely.
func (r *Retriever) GetAllConstraints(ctx context.Context) ([]MemoryRecord, error) {
	return r.store.GetByType(ctx, KindConstraint)
}

// ContextMemories is what RetrieveForContext hands to the context builder.
type ContextMemories struct {
	Constraints []MemoryRecord
	Decisions   []RetrievalResult
	Heuristics  []RetrievalResult
	// WasAmbiguous records whether the prompt read as a judgment call,
	// which is what gated heuristic retrieval.
	WasAmbiguous bool
}

// RetrieveForContextOptions tune a single context retrieval.
type RetrieveForContextOptions struct {
	DecisionLimit  int
	HeuristicLimit int
	// IncludeHeuristics overrides the ambiguity gate when set: true always
	// retrieves heuristics, false never does. Nil defers to detection.
	IncludeHeuristics *bool
}

// RetrieveForContext assembles the memory sets for prompt augmentation:
// all constraints, the most relevant decisions, and, when the prompt asks
// for judgment rather than execution, the most relevant heuristics.
func (r *Retriever) RetrieveForContext(ctx context.Context, prompt string, opts RetrieveForContextOptions) (*ContextMemories, error) {
	if opts.DecisionLimit <= 0 {
		opts.DecisionLimit = r.cfg.DefaultLimit
	}
	if opts.HeuristicLimit <= 0 {
		opts.HeuristicLimit = 3
	}

	constraints, err := r.GetAllConstraints(ctx)
	if err != nil {
		return nil, err
	}

	decisions, err := r.retrieve(ctx, prompt, opts.DecisionLimit, r.cfg.DecisionMinSimilarity, []Kind{KindDecision})
	if err != nil {
		return nil, err
	}

	wasAmbiguous := DetectsAmbiguity(prompt)
	includeHeuristics := wasAmbiguous
	if opts.IncludeHeuristics != nil {
		includeHeuristics = *opts.IncludeHeuristics
	}

	var heuristics []RetrievalResult
	if includeHeuristics {
		heuristics, err = r.retrieve(ctx, prompt, opts.HeuristicLimit, r.cfg.HeuristicMinSimilarity, []Kind{KindHeuristic})
		if err != nil {
			return nil, err
		}
	}

	return &ContextMemories{
		Constraints:  constraints,
		Decisions:    decisions,
		Heuristics:   heuristics,
		WasAmbiguous: wasAmbiguous,
	}, nil
}

// AddMemory embeds the text and dispatches creation on kind. When the
// embedder fails, the record is stored without an embedding so the content
// is never lost; it simply stays invisible to vector search until
// re-embedded.
func (r *Retriever) AddMemory(ctx context.Context, rec MemoryRecord) (string, error) {
	embedding := r.embedText(ctx, rec.Text)

	switch rec.Kind {
	case KindConstraint:
		return r.store.AddConstraint(ctx, ConstraintInput{
			Text:     rec.Text,
			Note:     rec.Note,
			Origin:   rec.Origin,
			Scope:    rec.Scope,
			Severity: rec.Severity,
		}, embedding)
	case KindDecision:
		return r.store.AddDecision(ctx, DecisionInput{
			Text:             rec.Text,
			Note:             rec.Note,
			Origin:           rec.Origin,
			Rationale:        rec.Rationale,
			Alternatives:     rec.Alternatives,
			RelatedArtifacts: rec.RelatedArtifacts,
		}, embedding)
	case KindHeuristic:
		return r.store.AddHeuristic(ctx, HeuristicInput{
			Text:           rec.Text,
			Note:           rec.Note,
			Origin:         rec.Origin,
			ApplicableWhen: rec.ApplicableWhen,
			Strength:       rec.Strength,
		}, embedding)
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, rec.Kind)
	}
}

func (r *Retriever) embedText(ctx context.Context, text string) []float32 {
	vec, err := r.embedder.Embed(ctx, text)
	if err != nil {
		log.Warn().Err(err).Msg("embedding failed, storing memory without vector")
		return nil
	}
	return vec
}

// LogFrictionByDescription finds the memories a free-text description most
// closely matches and records the friction event against each of them.
// Returns the ids of the affected memories.
func (r *Retriever) LogFrictionByDescription(ctx context.Context, description string, eventType EventType, delta float64, note string) ([]string, error) {
	if !eventType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEventType, eventType)
	}

	queryVec, err := r.embedder.Embed(ctx, description)
	if err != nil {
		return nil, fmt.Errorf("embed description: %w", err)
	}

	// The threshold, not a count, bounds how many memories take the hit.
	matches, err := r.store.VectorSearch(ctx, queryVec, VectorSearchOptions{Limit: -1})
	if err != nil {
		return nil, err
	}

	var affected []string
	for _, m := range matches {
		if m.Similarity < r.cfg.FrictionMatchThreshold {
			continue
		}
		if _, err := r.store.RecordFrictionEvent(ctx, m.Record.ID, eventType, delta, note); err != nil {
			return affected, fmt.Errorf("record friction for %s: %w", m.Record.ID, err)
		}
		affected = append(affected, m.Record.ID)
	}

	if len(affected) == 0 {
		log.Debug().
			Str("description", truncateForLog(description)).
			Msg("friction description matched no memories")
	}
	return affected, nil
}

// ════════════════════════════════════════════════════════════════════════════
// AMBIGUITY DETECTION
// ════════════════════════════════════════════════════════════════════════════

var (
	ambiguityPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bshould\s+(i|we)\b`),
		regexp.MustCompile(`(?i)\bwhich\b.*\bshould\b`),
		regexp.MustCompile(`(?i)\brecommend`),
		regexp.MustCompile(`(?i)\btrade-?\s?offs?\b`),
		regexp.MustCompile(`(?i)\beither\b.*\bor\b`),
		regexp.MustCompile(`(?i)\bvs\.?\b|\bversus\b`),
		regexp.MustCompile(`(?i)\bwhat'?s\s+the\s+best\b`),
		regexp.MustCompile(`(?i)\bwhat\s+is\s+the\s+best\b`),
		regexp.MustCompile(`(?i)\bpros\s+and\s+cons\b`),
	}
)

// DetectsAmbiguity reports whether a prompt reads as a judgment call
// rather than a direct instruction. Deterministic surface heuristics only:
// the caller pays for no model round trip, and a direct order like
// "Add a login endpoint" must come back false.
func DetectsAmbiguity(prompt string) bool {
	for _, p := range ambiguityPatterns {
		if p.MatchString(prompt) {
			return true
		}
	}
	// Multiple question marks read as open deliberation.
	return strings.Count(prompt, "?") >= 2
}

func truncateForLog(s string) string {
	const max = 80
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
