package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/hrygo/dolphin/ai"
	"github.com/hrygo/dolphin/store"
)

// NoMemoriesSentinel is the context line used when retrieval finds nothing
// (or degrades on failure). The composer is resilient to it.
const NoMemoriesSentinel = "no memories found"

// defaultExpansionTerms is the number of auxiliary search terms requested
// from the LLM to compensate for short, colloquial user phrasing.
const defaultExpansionTerms = 3

// RetrieverConfig holds tuning knobs for retrieval.
type RetrieverConfig struct {
	// Threshold is the minimum cosine similarity. A recall/precision
	// trade-off, not a correctness constraint.
	Threshold float32
	// Limit caps the number of facts retrieved.
	Limit int
}

// DefaultRetrieverConfig returns the default configuration.
func DefaultRetrieverConfig() *RetrieverConfig {
	return &RetrieverConfig{
		Threshold: 0.25,
		Limit:     5,
	}
}

// Retriever selects the most relevant active facts for a user query and
// renders them into a recency-annotated context block.
type Retriever struct {
	store    FactStore
	embedder ai.EmbeddingService
	llm      ai.LLMService
	config   *RetrieverConfig
	now      func() time.Time
}

// NewRetriever creates a new Retriever.
func NewRetriever(factStore FactStore, embedder ai.EmbeddingService, llm ai.LLMService, config *RetrieverConfig) *Retriever {
	if config == nil {
		config = DefaultRetrieverConfig()
	}
	return &Retriever{
		store:    factStore,
		embedder: embedder,
		llm:      llm,
		config:   config,
		now:      time.Now,
	}
}

// Retrieve returns the facts most similar to the query, sorted
// chronologically for presentation, along with the rendered context block.
// Similarity governs which facts are chosen; recency governs how they are
// narrated. Any provider or store failure degrades to the no-memories
// sentinel rather than blocking the reply.
func (r *Retriever) Retrieve(ctx context.Context, sessionID, userQuery string) ([]RetrievedFact, string) {
	expanded := r.expandQuery(ctx, userQuery)

	vector, err := r.embedder.Embed(ctx, expanded)
	if err != nil {
		slog.Warn("retrieval degraded: query embedding failed",
			"session_id", sessionID,
			"error", err,
		)
		return nil, NoMemoriesSentinel
	}

	results, err := r.store.VectorSearchMemoryFacts(ctx, &store.FactVectorSearchOptions{
		SessionID: sessionID,
		Vector:    vector,
		Threshold: r.config.Threshold,
		Limit:     r.config.Limit,
	})
	if err != nil {
		slog.Warn("retrieval degraded: vector search failed",
			"session_id", sessionID,
			"error", err,
		)
		return nil, NoMemoriesSentinel
	}
	if len(results) == 0 {
		return nil, NoMemoriesSentinel
	}

	// Chronological presentation order, independent of the similarity
	// ordering used for selection.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Fact.CreatedTs < results[j].Fact.CreatedTs
	})

	now := r.now()
	ids := make([]string, 0, len(results))
	retrieved := make([]RetrievedFact, 0, len(results))
	for _, result := range results {
		ids = append(ids, result.Fact.ID)
		retrieved = append(retrieved, RetrievedFact{
			Fact:         result.Fact,
			Score:        result.Score,
			RelativeTime: RelativeTimeLabel(now, result.Fact.CreatedTs),
		})
	}

	// Best effort; a failed touch never affects the reply.
	if err := r.store.TouchMemoryFactAccess(ctx, ids); err != nil {
		slog.Warn("failed to touch memory fact access", "session_id", sessionID, "error", err)
	}

	return retrieved, renderContextBlock(retrieved)
}

// expandQuery asks the LLM for auxiliary search terms and concatenates them
// with the original query. Soft-fails to the bare query.
func (r *Retriever) expandQuery(ctx context.Context, userQuery string) string {
	raw, err := r.llm.Chat(ctx, []ai.Message{
		ai.UserMessage(queryExpansionPrompt(userQuery, defaultExpansionTerms)),
	})
	if err != nil {
		slog.Debug("query expansion failed, using bare query", "error", err)
		return userQuery
	}

	terms := []string{userQuery}
	for _, line := range strings.Split(raw, "\n") {
		if term := strings.TrimSpace(line); term != "" {
			terms = append(terms, term)
		}
		if len(terms) > defaultExpansionTerms {
			break
		}
	}
	return strings.Join(terms, " ")
}

func renderContextBlock(facts []RetrievedFact) string {
	if len(facts) == 0 {
		return NoMemoriesSentinel
	}
	lines := make([]string, 0, len(facts))
	for _, f := range facts {
		lines = append(lines, fmt.Sprintf("- [%s] %s: %s", f.RelativeTime, f.Fact.Key, f.Fact.Value))
	}
	return strings.Join(lines, "\n")
}
