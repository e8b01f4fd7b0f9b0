// Package memsearch defines the collaborator interface for retrieving an
// agent's relevant episodic memory before a prompt or tool call. A real
// deployment backs this with a vector store; this package only defines the
// contract the PRE_PROMPT memory_context hook depends on.
package memsearch

import "context"

// Record is a single retrieved memory passage.
type Record struct {
	ID      string
	Content string
	Score   float64
}

// Searcher retrieves the top-k memories relevant to query for agentID.
type Searcher interface {
	Search(ctx context.Context, agentID string, query string, k int) ([]Record, error)
}

// Noop is a Searcher that always returns no results, used when no memory
// backend is configured.
type Noop struct{}

func (Noop) Search(ctx context.Context, agentID, query string, k int) ([]Record, error) {
	return nil, nil
}
