// Package memory implements the memory lifecycle engine: fact extraction,
// conflict resolution, similarity-ranked retrieval, and grounded response
// composition over a session-scoped fact store.
package memory

import (
	"context"

	"github.com/hrygo/dolphin/store"
)

// CandidateFact is a structured fact proposed by the extractor, prior to
// conflict resolution.
type CandidateFact struct {
	Type       store.MemoryType
	Key        string
	Value      string
	Confidence float32
}

// Outcome is the conflict resolution result for one candidate fact.
type Outcome int

const (
	// OutcomeInserted: no active fact existed for the key; a new one was created.
	OutcomeInserted Outcome = iota
	// OutcomeSuperseded: an active fact with a differing value was archived and replaced.
	OutcomeSuperseded
	// OutcomeIgnored: an active fact with the same normalized value already exists.
	OutcomeIgnored
)

// String returns the string representation of Outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeInserted:
		return "inserted"
	case OutcomeSuperseded:
		return "superseded"
	case OutcomeIgnored:
		return "ignored"
	default:
		return "unknown"
	}
}

// Resolution pairs a committed candidate with its outcome.
type Resolution struct {
	Candidate CandidateFact
	Outcome   Outcome
}

// RetrievedFact is a fact selected by similarity search, annotated for
// presentation.
type RetrievedFact struct {
	Fact         *store.MemoryFact
	Score        float32
	RelativeTime string
}

// FactStore is the store surface the engine depends on. *store.Store
// satisfies it; tests substitute fakes.
type FactStore interface {
	CreateMemoryFact(ctx context.Context, create *store.MemoryFact) (*store.MemoryFact, error)
	SupersedeMemoryFact(ctx context.Context, archiveID string, create *store.MemoryFact) (*store.MemoryFact, error)
	FindActiveMemoryFactByKey(ctx context.Context, sessionID string, memoryType store.MemoryType, key string) (*store.MemoryFact, error)
	VectorSearchMemoryFacts(ctx context.Context, opts *store.FactVectorSearchOptions) ([]*store.MemoryFactWithScore, error)
	TouchMemoryFactAccess(ctx context.Context, ids []string) error
	CreateConversationTurn(ctx context.Context, create *store.ConversationTurn) (*store.ConversationTurn, error)
	ListConversationTurns(ctx context.Context, find *store.FindConversationTurn) ([]*store.ConversationTurn, error)
}
