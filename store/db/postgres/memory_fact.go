package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/hrygo/dolphin/store"
)

// CreateMemoryFact inserts a new memory fact with status active.
func (d *DB) CreateMemoryFact(ctx context.Context, create *store.MemoryFact) (*store.MemoryFact, error) {
	fact, err := createMemoryFact(ctx, d.db, create)
	if err != nil {
		return nil, err
	}
	return fact, nil
}

// execer covers both *sql.DB and *sql.Tx.
type execer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func createMemoryFact(ctx context.Context, db execer, create *store.MemoryFact) (*store.MemoryFact, error) {
	if create.ID == "" {
		create.ID = uuid.NewString()
	}
	now := time.Now().Unix()
	if create.CreatedTs == 0 {
		create.CreatedTs = now
	}
	if create.LastAccessedTs == 0 {
		create.LastAccessedTs = create.CreatedTs
	}
	create.Status = store.FactStatusActive

	stmt := `
		INSERT INTO memory_fact (id, session_id, memory_type, key, value, confidence, embedding, status, created_ts, last_accessed_ts)
		VALUES (` + placeholders(10) + `)
		RETURNING id
	`
	err := db.QueryRowContext(ctx, stmt,
		create.ID,
		create.SessionID,
		string(create.Type),
		create.Key,
		create.Value,
		create.Confidence,
		pgvector.NewVector(create.Embedding),
		string(create.Status),
		create.CreatedTs,
		create.LastAccessedTs,
	).Scan(&create.ID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create memory fact")
	}

	return create, nil
}

// ArchiveMemoryFact sets the fact status to archived. Idempotent: archiving an
// already archived or missing fact is not an error.
func (d *DB) ArchiveMemoryFact(ctx context.Context, id string) error {
	stmt := `UPDATE memory_fact SET status = 'archived' WHERE id = ` + placeholder(1)
	if _, err := d.db.ExecContext(ctx, stmt, id); err != nil {
		return errors.Wrap(err, "failed to archive memory fact")
	}
	return nil
}

// SupersedeMemoryFact archives one fact and inserts its replacement in a
// single transaction, so a concurrent search never sees both or neither.
func (d *DB) SupersedeMemoryFact(ctx context.Context, archiveID string, create *store.MemoryFact) (*store.MemoryFact, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	stmt := `UPDATE memory_fact SET status = 'archived' WHERE id = ` + placeholder(1)
	if _, err := tx.ExecContext(ctx, stmt, archiveID); err != nil {
		return nil, errors.Wrap(err, "failed to archive superseded memory fact")
	}

	fact, err := createMemoryFact(ctx, tx, create)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit supersede transaction")
	}
	return fact, nil
}

// FindActiveMemoryFactByKey returns the active fact for (session, type, key), or nil.
func (d *DB) FindActiveMemoryFactByKey(ctx context.Context, sessionID string, memoryType store.MemoryType, key string) (*store.MemoryFact, error) {
	status := store.FactStatusActive
	list, err := d.ListMemoryFacts(ctx, &store.FindMemoryFact{
		SessionID: &sessionID,
		Type:      &memoryType,
		Key:       &key,
		Status:    &status,
		Limit:     1,
	})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

// ListMemoryFacts lists memory facts matching the find conditions.
func (d *DB) ListMemoryFacts(ctx context.Context, find *store.FindMemoryFact) ([]*store.MemoryFact, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.SessionID != nil {
		where, args = append(where, "session_id = "+placeholder(len(args)+1)), append(args, *find.SessionID)
	}
	if find.Type != nil {
		where, args = append(where, "memory_type = "+placeholder(len(args)+1)), append(args, string(*find.Type))
	}
	if find.Key != nil {
		where, args = append(where, "key = "+placeholder(len(args)+1)), append(args, *find.Key)
	}
	if find.Status != nil {
		where, args = append(where, "status = "+placeholder(len(args)+1)), append(args, string(*find.Status))
	}

	query := `
		SELECT id, session_id, memory_type, key, value, confidence, embedding, status, created_ts, last_accessed_ts
		FROM memory_fact
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_ts DESC
	`
	if find.Limit > 0 {
		query += " LIMIT " + placeholder(len(args)+1)
		args = append(args, find.Limit)
		if find.Offset > 0 {
			query += " OFFSET " + placeholder(len(args)+1)
			args = append(args, find.Offset)
		}
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list memory facts")
	}
	defer rows.Close()

	list := []*store.MemoryFact{}
	for rows.Next() {
		fact, err := scanMemoryFact(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, fact)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

// VectorSearchMemoryFacts performs cosine similarity search over the session's
// active facts. pgvector's <=> operator returns cosine distance; similarity is
// 1 - distance.
func (d *DB) VectorSearchMemoryFacts(ctx context.Context, opts *store.FactVectorSearchOptions) ([]*store.MemoryFactWithScore, error) {
	query := `
		SELECT id, session_id, memory_type, key, value, confidence, embedding, status, created_ts, last_accessed_ts,
			1 - (embedding <=> ` + placeholder(1) + `) AS similarity
		FROM memory_fact
		WHERE session_id = ` + placeholder(2) + `
			AND status = 'active'
			AND 1 - (embedding <=> ` + placeholder(1) + `) >= ` + placeholder(3) + `
		ORDER BY similarity DESC
		LIMIT ` + placeholder(4)

	vector := pgvector.NewVector(opts.Vector)
	rows, err := d.db.QueryContext(ctx, query, vector, opts.SessionID, opts.Threshold, opts.Limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to vector search memory facts")
	}
	defer rows.Close()

	list := []*store.MemoryFactWithScore{}
	for rows.Next() {
		var fact store.MemoryFact
		var embedding pgvector.Vector
		var score float32
		err := rows.Scan(
			&fact.ID,
			&fact.SessionID,
			&fact.Type,
			&fact.Key,
			&fact.Value,
			&fact.Confidence,
			&embedding,
			&fact.Status,
			&fact.CreatedTs,
			&fact.LastAccessedTs,
			&score,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan memory fact search result")
		}
		fact.Embedding = embedding.Slice()
		list = append(list, &store.MemoryFactWithScore{Fact: &fact, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

// TouchMemoryFactAccess updates last_accessed_ts for the given facts.
func (d *DB) TouchMemoryFactAccess(ctx context.Context, ids []string) error {
	stmt := `UPDATE memory_fact SET last_accessed_ts = ` + placeholder(1) + ` WHERE id = ANY(` + placeholder(2) + `)`
	if _, err := d.db.ExecContext(ctx, stmt, time.Now().Unix(), pq.Array(ids)); err != nil {
		return errors.Wrap(err, "failed to touch memory fact access")
	}
	return nil
}

func scanMemoryFact(rows *sql.Rows) (*store.MemoryFact, error) {
	var fact store.MemoryFact
	var embedding pgvector.Vector
	err := rows.Scan(
		&fact.ID,
		&fact.SessionID,
		&fact.Type,
		&fact.Key,
		&fact.Value,
		&fact.Confidence,
		&embedding,
		&fact.Status,
		&fact.CreatedTs,
		&fact.LastAccessedTs,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan memory fact")
	}
	fact.Embedding = embedding.Slice()
	return &fact, nil
}
