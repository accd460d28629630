// Package sqlitestore is the concrete implementation of internal/store's
// repository interfaces on top of a pure-Go SQLite driver, with embedded
// goose migrations in the same shape as sync.BaselineManager /
// runMigrations (internal/sync/baseline.go, internal/sync/migrations.go).
package sqlitestore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // pure-Go SQLite driver, no CGO
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB owns the SQLite connection and implements store.UnitOfWork. SQLite
// has no per-row lock primitive, so BeginImmediate uses "BEGIN IMMEDIATE"
// to take the database write lock up front — with the single scheduler
// worker spec §5 specifies, this gives the same mutual-exclusion
// guarantee a row lock would on a conventional RDBMS.
type DB struct {
	conn   *sql.DB
	logger *slog.Logger
}

// Open opens (creating if absent) the SQLite database at path and runs
// all pending migrations.
func Open(ctx context.Context, path string, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: opening %s: %w", path, err)
	}

	// SQLite allows only one writer at a time; serialize to avoid
	// "database is locked" errors under concurrent requests.
	conn.SetMaxOpenConns(1)

	if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlitestore: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn, logger: logger}

	if err := db.migrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	return db, nil
}

func (db *DB) migrate(ctx context.Context) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("sqlitestore: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db.conn, subFS)
	if err != nil {
		return fmt.Errorf("sqlitestore: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("sqlitestore: running migrations: %w", err)
	}

	for _, r := range results {
		db.logger.Info("applied migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	return nil
}

// Close releases the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn exposes the raw *sql.DB for callers (e.g. tests) that need direct
// access outside a transaction.
func (db *DB) Conn() *sql.DB {
	return db.conn
}
