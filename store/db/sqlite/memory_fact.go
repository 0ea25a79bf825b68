package sqlite

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/hrygo/dolphin/store"
)

// CreateMemoryFact inserts a new memory fact with status active.
func (d *DB) CreateMemoryFact(ctx context.Context, create *store.MemoryFact) (*store.MemoryFact, error) {
	return createMemoryFact(ctx, d.db, create)
}

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

	stmt := `INSERT INTO memory_fact (id, session_id, memory_type, key, value, confidence, embedding, status, created_ts, last_accessed_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, stmt,
		create.ID,
		create.SessionID,
		string(create.Type),
		create.Key,
		create.Value,
		create.Confidence,
		float32ArrayToBLOB(create.Embedding),
		string(create.Status),
		create.CreatedTs,
		create.LastAccessedTs,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create memory fact")
	}
	return create, nil
}

// ArchiveMemoryFact sets the fact status to archived. Idempotent.
func (d *DB) ArchiveMemoryFact(ctx context.Context, id string) error {
	stmt := `UPDATE memory_fact SET status = 'archived' WHERE id = ?`
	if _, err := d.db.ExecContext(ctx, stmt, id); err != nil {
		return errors.Wrap(err, "failed to archive memory fact")
	}
	return nil
}

// SupersedeMemoryFact archives one fact and inserts its replacement in a
// single transaction.
func (d *DB) SupersedeMemoryFact(ctx context.Context, archiveID string, create *store.MemoryFact) (*store.MemoryFact, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE memory_fact SET status = 'archived' WHERE id = ?`, archiveID); err != nil {
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
		where, args = append(where, "id = ?"), append(args, *find.ID)
	}
	if find.SessionID != nil {
		where, args = append(where, "session_id = ?"), append(args, *find.SessionID)
	}
	if find.Type != nil {
		where, args = append(where, "memory_type = ?"), append(args, string(*find.Type))
	}
	if find.Key != nil {
		where, args = append(where, "key = ?"), append(args, *find.Key)
	}
	if find.Status != nil {
		where, args = append(where, "status = ?"), append(args, string(*find.Status))
	}

	query := `SELECT id, session_id, memory_type, key, value, confidence, embedding, status, created_ts, last_accessed_ts
		FROM memory_fact
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_ts DESC`
	if find.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, find.Limit)
		if find.Offset > 0 {
			query += " OFFSET ?"
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

// VectorSearchMemoryFacts loads the session's active facts and ranks them by
// cosine similarity in-process. See the SQLite support policy in sqlite.go.
func (d *DB) VectorSearchMemoryFacts(ctx context.Context, opts *store.FactVectorSearchOptions) ([]*store.MemoryFactWithScore, error) {
	status := store.FactStatusActive
	facts, err := d.ListMemoryFacts(ctx, &store.FindMemoryFact{
		SessionID: &opts.SessionID,
		Status:    &status,
	})
	if err != nil {
		return nil, err
	}

	list := []*store.MemoryFactWithScore{}
	for _, fact := range facts {
		score := cosineSimilarity(opts.Vector, fact.Embedding)
		if score >= opts.Threshold {
			list = append(list, &store.MemoryFactWithScore{Fact: fact, Score: score})
		}
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Score > list[j].Score
	})
	if len(list) > opts.Limit {
		list = list[:opts.Limit]
	}
	return list, nil
}

// TouchMemoryFactAccess updates last_accessed_ts for the given facts.
func (d *DB) TouchMemoryFactAccess(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	now := time.Now().Unix()
	stmt := `UPDATE memory_fact SET last_accessed_ts = ? WHERE id IN (?` + strings.Repeat(", ?", len(ids)-1) + `)`
	args := make([]any, 0, len(ids)+1)
	args = append(args, now)
	for _, id := range ids {
		args = append(args, id)
	}
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return errors.Wrap(err, "failed to touch memory fact access")
	}
	return nil
}

func scanMemoryFact(rows *sql.Rows) (*store.MemoryFact, error) {
	var fact store.MemoryFact
	var embeddingBLOB []byte
	err := rows.Scan(
		&fact.ID,
		&fact.SessionID,
		&fact.Type,
		&fact.Key,
		&fact.Value,
		&fact.Confidence,
		&embeddingBLOB,
		&fact.Status,
		&fact.CreatedTs,
		&fact.LastAccessedTs,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan memory fact")
	}
	if len(embeddingBLOB) > 0 {
		fact.Embedding, err = blobToFloat32Array(embeddingBLOB)
		if err != nil {
			return nil, errors.Wrap(err, "failed to convert embedding BLOB to array")
		}
	}
	return &fact, nil
}
