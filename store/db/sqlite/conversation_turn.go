package sqlite

import (
	"context"
	"time"

	"github.com/google/uuid"
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

	stmt := `INSERT INTO conversation_turn (id, session_id, role, content, embedding, created_ts)
		VALUES (?, ?, ?, ?, ?, ?)`
	_, err := d.db.ExecContext(ctx, stmt,
		create.ID,
		create.SessionID,
		string(create.Role),
		create.Content,
		float32ArrayToBLOB(create.Embedding),
		create.CreatedTs,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create conversation turn")
	}
	return create, nil
}

// ListConversationTurns lists the most recent turns for a session, returned
// oldest first.
func (d *DB) ListConversationTurns(ctx context.Context, find *store.FindConversationTurn) ([]*store.ConversationTurn, error) {
	query := `SELECT id, session_id, role, content, embedding, created_ts
		FROM conversation_turn`
	args := []any{}
	if find.SessionID != nil {
		query += ` WHERE session_id = ?`
		args = append(args, *find.SessionID)
	}
	query += ` ORDER BY created_ts DESC`
	if find.Limit > 0 {
		query += ` LIMIT ?`
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
		var embeddingBLOB []byte
		err := rows.Scan(
			&turn.ID,
			&turn.SessionID,
			&turn.Role,
			&turn.Content,
			&embeddingBLOB,
			&turn.CreatedTs,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan conversation turn")
		}
		if len(embeddingBLOB) > 0 {
			turn.Embedding, err = blobToFloat32Array(embeddingBLOB)
			if err != nil {
				return nil, errors.Wrap(err, "failed to convert embedding BLOB to array")
			}
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
