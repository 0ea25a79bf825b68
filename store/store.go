// Package store provides database access to memory facts and conversation logs.
package store

import (
	"context"

	"github.com/hrygo/dolphin/internal/profile"
)

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:  driver,
		profile: profile,
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Migrate(ctx context.Context) error {
	return s.driver.Migrate(ctx)
}

func (s *Store) Close() error {
	return s.driver.Close()
}

// CreateMemoryFact inserts a new fact with status active.
func (s *Store) CreateMemoryFact(ctx context.Context, create *MemoryFact) (*MemoryFact, error) {
	return s.driver.CreateMemoryFact(ctx, create)
}

// ArchiveMemoryFact sets the fact status to archived. Idempotent.
func (s *Store) ArchiveMemoryFact(ctx context.Context, id string) error {
	return s.driver.ArchiveMemoryFact(ctx, id)
}

// SupersedeMemoryFact atomically archives one fact and inserts its replacement.
func (s *Store) SupersedeMemoryFact(ctx context.Context, archiveID string, create *MemoryFact) (*MemoryFact, error) {
	return s.driver.SupersedeMemoryFact(ctx, archiveID, create)
}

// FindActiveMemoryFactByKey returns the active fact for (session, type, key), or nil.
func (s *Store) FindActiveMemoryFactByKey(ctx context.Context, sessionID string, memoryType MemoryType, key string) (*MemoryFact, error) {
	return s.driver.FindActiveMemoryFactByKey(ctx, sessionID, memoryType, key)
}

// ListMemoryFacts lists memory facts matching the find conditions.
func (s *Store) ListMemoryFacts(ctx context.Context, find *FindMemoryFact) ([]*MemoryFact, error) {
	return s.driver.ListMemoryFacts(ctx, find)
}

// VectorSearchMemoryFacts performs similarity search over the session's active facts.
func (s *Store) VectorSearchMemoryFacts(ctx context.Context, opts *FactVectorSearchOptions) ([]*MemoryFactWithScore, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return s.driver.VectorSearchMemoryFacts(ctx, opts)
}

// TouchMemoryFactAccess updates last_accessed for the given facts.
func (s *Store) TouchMemoryFactAccess(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.driver.TouchMemoryFactAccess(ctx, ids)
}

// CreateConversationTurn appends a turn to the session's conversation log.
func (s *Store) CreateConversationTurn(ctx context.Context, create *ConversationTurn) (*ConversationTurn, error) {
	return s.driver.CreateConversationTurn(ctx, create)
}

// ListConversationTurns lists turns for a session, oldest first.
func (s *Store) ListConversationTurns(ctx context.Context, find *FindConversationTurn) ([]*ConversationTurn, error) {
	return s.driver.ListConversationTurns(ctx, find)
}
