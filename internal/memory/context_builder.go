package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// Message is one entry in an LLM conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// TokenBudget carries the per-category token allowances for context
// assembly. Only the conversation sub-budget is enforced today; the other
// fields size the defaults and leave room for stricter enforcement later.
type TokenBudget struct {
	SystemTokens       int
	ConstraintTokens   int
	ConversationTokens int
	DecisionTokens     int
	HeuristicTokens    int
}

// DefaultTokenBudget returns the standard allocation for an 8k context
// window shared with the model's own output.
func DefaultTokenBudget() TokenBudget {
	return TokenBudget{
		SystemTokens:       500,
		ConstraintTokens:   800,
		ConversationTokens: 3000,
		DecisionTokens:     1000,
		HeuristicTokens:    500,
	}
}

// BuildOptions tune one Build call.
type BuildOptions struct {
	// IncludeMemory controls whether project memory is retrieved at all.
	IncludeMemory bool
	// IncludeHeuristics overrides the ambiguity gate when set: true always
	// pulls heuristics in, false always leaves them out.
	IncludeHeuristics *bool
	// BaseInstructions replaces the default system preamble when non-empty.
	BaseInstructions string
}

// MemoryStats summarize what one Build call injected.
type MemoryStats struct {
	ConstraintCount int  `json:"constraint_count"`
	DecisionCount   int  `json:"decision_count"`
	HeuristicCount  int  `json:"heuristic_count"`
	WasAmbiguous    bool `json:"was_ambiguous"`
}

// BuildResult is the assembled, bounded prompt.
type BuildResult struct {
	Messages      []Message   `json:"messages"`
	TokenEstimate int         `json:"token_estimate"`
	MemoryStats   MemoryStats `json:"memory_stats"`
}

const defaultBaseInstructions = `You are a coding assistant with persistent project memory. ` +
	`Follow every constraint listed below without exception. Respect prior ` +
	`decisions unless the user explicitly revisits them.`

// ContextBuilder assembles token-budgeted message lists from project memory
// and conversation history.
type ContextBuilder struct {
	retriever *Retriever
	budget    TokenBudget
}

// NewContextBuilder wires a builder over a retriever. A zero budget falls
// back to DefaultTokenBudget.
func NewContextBuilder(retriever *Retriever, budget TokenBudget) *ContextBuilder {
	if budget == (TokenBudget{}) {
		budget = DefaultTokenBudget()
	}
	if budget.ConversationTokens <= 0 {
		budget.ConversationTokens = DefaultTokenBudget().ConversationTokens
	}
	return &ContextBuilder{retriever: retriever, budget: budget}
}

// Build assembles system instructions, a memory section, the truncated
// conversation history, and the user prompt into one message list. Memory
// retrieval failures never fail the build: the caller's prompt must reach
// the model even when the store is unavailable.
func (b *ContextBuilder) Build(ctx context.Context, userPrompt string, history []Message, opts BuildOptions) (*BuildResult, error) {
	stats := MemoryStats{}
	var memories *ContextMemories

	if opts.IncludeMemory {
		stats.WasAmbiguous = DetectsAmbiguity(userPrompt)

		var err error
		memories, err = b.retriever.RetrieveForContext(ctx, userPrompt, RetrieveForContextOptions{
			IncludeHeuristics: opts.IncludeHeuristics,
		})
		if err != nil {
			log.Warn().Err(err).Msg("memory retrieval failed, building context without it")
			memories = nil
		}
	}

	base := opts.BaseInstructions
	if base == "" {
		base = defaultBaseInstructions
	}
	systemContent := b.composeSystemMessage(base, memories)

	if memories != nil {
		stats.ConstraintCount = len(memories.Constraints)
		stats.DecisionCount = len(memories.Decisions)
		stats.HeuristicCount = len(memories.Heuristics)
	}

	messages := []Message{{Role: RoleSystem, Content: systemContent}}
	messages = append(messages, truncateHistory(history, b.budget.ConversationTokens)...)
	messages = append(messages, Message{Role: RoleUser, Content: userPrompt})

	total := 0
	for _, m := range messages {
		total += EstimateTokens(m.Content)
	}

	return &BuildResult{
		Messages:      messages,
		TokenEstimate: total,
		MemoryStats:   stats,
	}, nil
}

// composeSystemMessage renders the base instructions plus a Project Memory
// section when any memories were retrieved. Constraints come first since
// they are mandatory, then decisions with rationale and ranking, then
// heuristics.
func (b *ContextBuilder) composeSystemMessage(base string, memories *ContextMemories) string {
	var sb strings.Builder
	sb.WriteString(base)

	if memories == nil {
		return sb.String()
	}
	if len(memories.Constraints) == 0 && len(memories.Decisions) == 0 && len(memories.Heuristics) == 0 {
		return sb.String()
	}

	sb.WriteString("\n\n## Project Memory\n")

	if len(memories.Constraints) > 0 {
		sb.WriteString("\n### Constraints (mandatory)\n")
		for _, c := range memories.Constraints {
			sb.WriteString("- ")
			sb.WriteString(c.Text)
			if c.Scope != "" {
				sb.WriteString(" [scope: ")
				sb.WriteString(c.Scope)
				sb.WriteString("]")
			}
			sb.WriteString("\n")
		}
	}

	if len(memories.Decisions) > 0 {
		sb.WriteString("\n### Prior Decisions\n")
		for _, d := range memories.Decisions {
			sb.WriteString(fmt.Sprintf("- %s (relevance %.0f%%)\n", d.Record.Text, d.AdjustedScore*100))
			if d.Record.Rationale != "" {
				sb.WriteString("  Rationale: ")
				sb.WriteString(d.Record.Rationale)
				sb.WriteString("\n")
			}
		}
	}

	if len(memories.Heuristics) > 0 {
		sb.WriteString("\n### Team Heuristics\n")
		for _, h := range memories.Heuristics {
			sb.WriteString("- ")
			sb.WriteString(h.Record.Text)
			if h.Record.ApplicableWhen != "" {
				sb.WriteString(" (when: ")
				sb.WriteString(h.Record.ApplicableWhen)
				sb.WriteString(")")
			}
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

// truncateHistory keeps the newest messages that fit the token budget,
// dropping from the oldest end. Messages are kept or dropped whole; a
// message that would overflow the remaining budget ends the walk.
func truncateHistory(history []Message, budgetTokens int) []Message {
	if len(history) == 0 {
		return nil
	}

	used := 0
	start := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		cost := EstimateTokens(history[i].Content)
		if used+cost > budgetTokens {
			break
		}
		used += cost
		start = i
	}

	if start == len(history) {
		return nil
	}
	kept := make([]Message, len(history)-start)
	copy(kept, history[start:])
	return kept
}

// EstimateTokens approximates token count as ceil(len/4). Coarse on
// purpose: the budget only needs to scale monotonically with content
// length, not match any particular tokenizer.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
