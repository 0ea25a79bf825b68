package store

// TurnRole identifies the author of a conversation turn.
type TurnRole string

const (
	TurnRoleUser      TurnRole = "user"
	TurnRoleAssistant TurnRole = "assistant"
)

// ConversationTurn represents one message in a session's conversation log.
// Rows are append-only and never mutated after creation.
type ConversationTurn struct {
	ID        string
	SessionID string
	Role      TurnRole
	Content   string
	Embedding []float32
	CreatedTs int64
}

// FindConversationTurn specifies the conditions for finding conversation turns.
// Results are returned in chronological order (oldest first).
type FindConversationTurn struct {
	SessionID *string
	Limit     int
}
