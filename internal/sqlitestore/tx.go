package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/memolanes/memolanes-server/internal/store"
)

// tx wraps a single checked-out *sql.Conn holding SQLite's write lock, so
// repositories can run their queries against it through the querier
// interface below. *sql.Tx can't be used here: database/sql always opens
// a bare "BEGIN", and SQLite only takes the write lock up front if the
// statement is literally "BEGIN IMMEDIATE", so the transaction is driven
// by hand over the checked-out connection instead.
type tx struct {
	conn *sql.Conn
}

func (t *tx) Commit() error {
	_, err := t.conn.ExecContext(context.Background(), "COMMIT")
	closeErr := t.conn.Close()

	if err != nil {
		return fmt.Errorf("sqlitestore: committing transaction: %w", err)
	}

	if closeErr != nil {
		return fmt.Errorf("sqlitestore: releasing connection after commit: %w", closeErr)
	}

	return nil
}

func (t *tx) Rollback() error {
	_, err := t.conn.ExecContext(context.Background(), "ROLLBACK")
	closeErr := t.conn.Close()

	if err != nil {
		return fmt.Errorf("sqlitestore: rolling back transaction: %w", err)
	}

	if closeErr != nil {
		return fmt.Errorf("sqlitestore: releasing connection after rollback: %w", closeErr)
	}

	return nil
}

// BeginImmediate implements store.UnitOfWork. It checks out a dedicated
// connection from the pool and issues "BEGIN IMMEDIATE" on it directly,
// taking SQLite's database-wide write lock before any other statement
// runs — the closest equivalent this driver has to a row lock, and
// sufficient given spec §5's single scheduler worker.
func (db *DB) BeginImmediate(ctx context.Context) (store.Tx, error) {
	conn, err := db.conn.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: checking out connection: %w", err)
	}

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlitestore: starting immediate transaction: %w", err)
	}

	return &tx{conn: conn}, nil
}

// querier abstracts over the connection methods repository code needs so
// repository methods accept a store.Tx (required by the interface) while
// the concrete type stays private to this package.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// queryer extracts the underlying connection from a store.Tx. Every
// repository method receives a store.Tx created by this package's
// BeginImmediate, so the type assertion always succeeds in production —
// a narrow, package-private cast at the boundary, not exposed to callers.
func queryer(t store.Tx) querier {
	return t.(*tx).conn //nolint:forcetypeassert // t always originates from DB.BeginImmediate
}
