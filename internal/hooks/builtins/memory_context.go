package builtins

import (
	"context"
	"fmt"

	"github.com/apexnet/apexcore/internal/hooks"
	"github.com/apexnet/apexcore/internal/memsearch"
)

// MemoryContext is a PRE_PROMPT hook that retrieves an agent's relevant
// memory passages and attaches them to the payload's context for the
// downstream LLM collaborator to consume.
type MemoryContext struct {
	search memsearch.Searcher
	topK   int
}

// NewMemoryContext builds the hook. topK <= 0 defaults to 5.
func NewMemoryContext(search memsearch.Searcher, topK int) *MemoryContext {
	if topK <= 0 {
		topK = 5
	}
	return &MemoryContext{search: search, topK: topK}
}

func (h *MemoryContext) ID() string { return "memory_context" }

func (h *MemoryContext) Run(ctx context.Context, payload *hooks.Payload) error {
	query, _ := payload.Params["prompt"].(string)
	records, err := h.search.Search(ctx, payload.AgentID, query, h.topK)
	if err != nil {
		return fmt.Errorf("memory_context: %w", err)
	}
	passages := make([]string, 0, len(records))
	for _, r := range records {
		passages = append(passages, r.Content)
	}
	payload.Context["memory"] = passages
	return nil
}
