package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	// Import the Postgres driver.
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/hrygo/dolphin/internal/profile"
	"github.com/hrygo/dolphin/store"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens a database specified by its database driver name and a
// driver-specific data source name.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	db, err := sql.Open("postgres", profile.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}

	driver := DB{db: db, profile: profile}

	return &driver, nil
}

func (d *DB) GetDB() any {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

// placeholder returns a positional parameter for the given index, e.g. $1.
func placeholder(n int) string {
	return "$" + fmt.Sprint(n)
}

// placeholders returns a comma-separated list of positional parameters $1..$n.
func placeholders(n int) string {
	list := []string{}
	for i := 1; i <= n; i++ {
		list = append(list, placeholder(i))
	}
	return strings.Join(list, ", ")
}

// Migrate creates the schema. The partial unique index on active facts is the
// store-level enforcement of the one-active-fact-per-key invariant: two
// concurrent conflicting inserts cannot both commit.
func (d *DB) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS conversation_turn (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d),
			created_ts BIGINT NOT NULL
		)`, d.profile.EmbeddingDimensions),
		`CREATE INDEX IF NOT EXISTS idx_conversation_turn_session ON conversation_turn (session_id, created_ts)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS memory_fact (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			memory_type TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			confidence REAL NOT NULL DEFAULT 0,
			embedding vector(%d),
			status TEXT NOT NULL DEFAULT 'active',
			created_ts BIGINT NOT NULL,
			last_accessed_ts BIGINT NOT NULL
		)`, d.profile.EmbeddingDimensions),
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_memory_fact_active_key
			ON memory_fact (session_id, memory_type, key) WHERE status = 'active'`,
		`CREATE INDEX IF NOT EXISTS idx_memory_fact_session ON memory_fact (session_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_fact_embedding
			ON memory_fact USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)`,
	}
	for _, stmt := range stmts {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "failed to execute migration: %s", stmt)
		}
	}
	return nil
}
