package store

import (
	"fmt"

	"github.com/pkg/errors"
)

// MemoryType classifies a long-term memory fact.
type MemoryType string

const (
	MemoryTypePreference MemoryType = "preference"
	MemoryTypeFact       MemoryType = "fact"
	MemoryTypeConstraint MemoryType = "constraint"
	MemoryTypeCommitment MemoryType = "commitment"
)

// IsValid reports whether the memory type is one of the known kinds.
func (t MemoryType) IsValid() bool {
	switch t {
	case MemoryTypePreference, MemoryTypeFact, MemoryTypeConstraint, MemoryTypeCommitment:
		return true
	}
	return false
}

// FactStatus is the lifecycle state of a memory fact.
// Transitions only active -> archived; archived facts are retained for history.
type FactStatus string

const (
	FactStatusActive   FactStatus = "active"
	FactStatusArchived FactStatus = "archived"
)

// MemoryFact represents a structured long-term memory record.
// Within a session at most one fact per (Type, Key) may be active at a time.
type MemoryFact struct {
	ID             string
	SessionID      string
	Type           MemoryType
	Key            string
	Value          string
	Confidence     float32
	Embedding      []float32
	Status         FactStatus
	CreatedTs      int64
	LastAccessedTs int64
}

// CanonicalString renders a fact as the deterministic text its embedding is
// derived from. Identical facts always map to the same vector for a fixed
// embedding provider.
func CanonicalString(memoryType MemoryType, key, value string) string {
	return fmt.Sprintf("%s: %s is %s", memoryType, key, value)
}

// FindMemoryFact specifies the conditions for finding memory facts.
type FindMemoryFact struct {
	ID        *string
	SessionID *string
	Type      *MemoryType
	Key       *string
	Status    *FactStatus
	Limit     int
	Offset    int
}

// MemoryFactWithScore represents a vector search result with similarity score.
type MemoryFactWithScore struct {
	Fact  *MemoryFact
	Score float32 // Cosine similarity (0-1, higher is more similar)
}

// FactVectorSearchOptions represents the options for memory fact vector search.
// Only active facts for the session are searched.
type FactVectorSearchOptions struct {
	SessionID string
	Vector    []float32
	Threshold float32
	Limit     int
}

// Validate validates the FactVectorSearchOptions and applies defaults.
func (o *FactVectorSearchOptions) Validate() error {
	if o.SessionID == "" {
		return errors.New("session id cannot be empty")
	}
	if len(o.Vector) == 0 {
		return errors.New("vector cannot be empty")
	}
	if o.Threshold < 0 || o.Threshold > 1 {
		return errors.Errorf("threshold out of range [0,1]: %f", o.Threshold)
	}
	if o.Limit < 0 {
		return errors.Errorf("limit cannot be negative: %d", o.Limit)
	}
	if o.Limit == 0 {
		o.Limit = 5 // Default limit
	}
	if o.Limit > 1000 {
		return errors.Errorf("limit too large (max 1000): %d", o.Limit)
	}
	return nil
}
