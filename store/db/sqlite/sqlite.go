package sqlite

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	// Import the SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/hrygo/dolphin/internal/profile"
	"github.com/hrygo/dolphin/store"
)

// ============================================================================
// SQLITE SUPPORT POLICY
// ============================================================================
// SQLite is supported on a BEST-EFFORT basis for development and testing only.
//
// Vector search is computed in-process: active facts for the session are
// loaded and ranked by cosine similarity in Go. This is fine for the single
// user, thousands-of-facts scale of a dev instance; production deployments
// should use the postgres driver with pgvector.
// ============================================================================

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

	// - No shared-cache: it's obsolete; WAL journal mode is a better solution.
	// - Busy timeout prevents lock errors when the extraction goroutine and a
	//   retrieval overlap on the single write connection.
	// - When using the `modernc.org/sqlite` driver, each pragma must be
	//   prefixed with `_pragma=`.
	sqliteDB, err := sql.Open("sqlite", profile.DSN+"?_pragma=foreign_keys(0)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}

	// SQLite: a single connection is optimal with WAL.
	sqliteDB.SetMaxOpenConns(1)
	sqliteDB.SetMaxIdleConns(1)
	sqliteDB.SetConnMaxLifetime(0)
	sqliteDB.SetConnMaxIdleTime(0)

	driver := DB{db: sqliteDB, profile: profile}

	return &driver, nil
}

func (d *DB) GetDB() any {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

// Migrate creates the schema. SQLite has no partial unique index trick needed:
// it supports them directly.
func (d *DB) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversation_turn (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding BLOB,
			created_ts BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conversation_turn_session ON conversation_turn (session_id, created_ts)`,
		`CREATE TABLE IF NOT EXISTS memory_fact (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			memory_type TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			confidence REAL NOT NULL DEFAULT 0,
			embedding BLOB,
			status TEXT NOT NULL DEFAULT 'active',
			created_ts BIGINT NOT NULL,
			last_accessed_ts BIGINT NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_memory_fact_active_key
			ON memory_fact (session_id, memory_type, key) WHERE status = 'active'`,
		`CREATE INDEX IF NOT EXISTS idx_memory_fact_session ON memory_fact (session_id, status)`,
	}
	for _, stmt := range stmts {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "failed to execute migration: %s", stmt)
		}
	}
	return nil
}
