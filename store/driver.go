package store

import "context"

// Driver is an interface for database drivers.
type Driver interface {
	GetDB() any
	Close() error

	Migrate(ctx context.Context) error

	// Memory fact operations.
	CreateMemoryFact(ctx context.Context, create *MemoryFact) (*MemoryFact, error)
	ArchiveMemoryFact(ctx context.Context, id string) error
	// SupersedeMemoryFact archives the fact identified by archiveID and inserts
	// create in a single transaction. A concurrent vector search must never
	// observe both or neither fact active for the same (type, key).
	SupersedeMemoryFact(ctx context.Context, archiveID string, create *MemoryFact) (*MemoryFact, error)
	FindActiveMemoryFactByKey(ctx context.Context, sessionID string, memoryType MemoryType, key string) (*MemoryFact, error)
	ListMemoryFacts(ctx context.Context, find *FindMemoryFact) ([]*MemoryFact, error)
	VectorSearchMemoryFacts(ctx context.Context, opts *FactVectorSearchOptions) ([]*MemoryFactWithScore, error)
	TouchMemoryFactAccess(ctx context.Context, ids []string) error

	// Conversation log operations.
	CreateConversationTurn(ctx context.Context, create *ConversationTurn) (*ConversationTurn, error)
	ListConversationTurns(ctx context.Context, find *FindConversationTurn) ([]*ConversationTurn, error)
}
