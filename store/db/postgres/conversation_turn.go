package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/hrygo/dolphin/store"
)

// CreateConversationTurn appends a turn to the conversation log.
func (d *DB) CreateConversationTurn(ctx context.Context, create *store.ConversationTurn) (*store.ConversationTurn, error) {
	if create.ID == "" {
		create.ID = uuid.NewString()
	}
	if create.CreatedTs == 0 {
		create.CreatedTs = time.Now().Unix()
	}

	stmt := `
		INSERT INTO conversation_turn (id, session_id, role, content, embedding, created_ts)
		VALUES (` + placeholders(6) + `)
		RETURNING id
	`
	var embedding any
	if len(create.Embedding) > 0 {
		embedding = pgvector.NewVector(create.Embedding)
	}
	err := d.db.QueryRowContext(ctx, stmt,
		create.ID,
		create.SessionID,
		string(create.Role),
		create.Content,
		embedding,
		create.CreatedTs,
	).Scan(&create.ID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create conversation turn")
	}

	return create, nil
}

// ListConversationTurns lists the most recent turns for a session, returned
// oldest first.
func (d *DB) ListConversationTurns(ctx context.Context, find *store.FindConversationTurn) ([]*store.ConversationTurn, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.SessionID != nil {
		where, args = append(where, "session_id = "+placeholder(len(args)+1)), append(args, *find.SessionID)
	}

	// Select newest first, then reverse so callers get chronological order.
	query := `
		SELECT id, session_id, role, content, embedding, created_ts
		FROM conversation_turn
		WHERE ` + where[0]
	for _, w := range where[1:] {
		query += " AND " + w
	}
	query += " ORDER BY created_ts DESC"
	if find.Limit > 0 {
		query += " LIMIT " + placeholder(len(args)+1)
		args = append(args, find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list conversation turns")
	}
	defer rows.Close()

	list := []*store.ConversationTurn{}
	for rows.Next() {
		var turn store.ConversationTurn
		var embeddingRaw sql.NullString
		err := rows.Scan(
			&turn.ID,
			&turn.SessionID,
			&turn.Role,
			&turn.Content,
			&embeddingRaw,
			&turn.CreatedTs,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan conversation turn")
		}
		if embeddingRaw.Valid {
			var embedding pgvector.Vector
			if err := embedding.Scan(embeddingRaw.String); err != nil {
				return nil, errors.Wrap(err, "failed to scan conversation turn embedding")
			}
			turn.Embedding = embedding.Slice()
		}
		list = append(list, &turn)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to chronological order (oldest first).
	for i, j := 0, len(list)-1; i < j; i, j = i+1, j-1 {
		list[i], list[j] = list[j], list[i]
	}
	return list, nil
}
