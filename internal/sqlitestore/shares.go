package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/memolanes/memolanes-server/internal/store"
)

// SnapshotShareRepository implements store.SnapshotShareRepository.
type SnapshotShareRepository struct{}

var _ store.SnapshotShareRepository = SnapshotShareRepository{}

const shareColumns = "id, user_id, snapshot_id, token, created_at"

func (SnapshotShareRepository) GetBySnapshot(ctx context.Context, t store.Tx, userID, snapshotID int64) (*store.SnapshotShare, error) {
	row := queryer(t).QueryRowContext(ctx,
		"SELECT "+shareColumns+" FROM snapshot_shares WHERE user_id = ? AND snapshot_id = ?", userID, snapshotID)

	return scanShare(row)
}

func (SnapshotShareRepository) Create(ctx context.Context, t store.Tx, s *store.SnapshotShare) (*store.SnapshotShare, error) {
	res, err := queryer(t).ExecContext(ctx,
		`INSERT INTO snapshot_shares (user_id, snapshot_id, token, created_at) VALUES (?, ?, ?, ?)`,
		s.UserID, s.SnapshotID, s.Token, nowString())
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: creating snapshot share: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: reading new snapshot share id: %w", err)
	}

	row := queryer(t).QueryRowContext(ctx, "SELECT "+shareColumns+" FROM snapshot_shares WHERE id = ?", id)

	return scanShare(row)
}

func (SnapshotShareRepository) GetByToken(ctx context.Context, t store.Tx, token string) (*store.SnapshotShare, error) {
	row := queryer(t).QueryRowContext(ctx, "SELECT "+shareColumns+" FROM snapshot_shares WHERE token = ?", token)
	return scanShare(row)
}

func scanShare(row *sql.Row) (*store.SnapshotShare, error) {
	var s store.SnapshotShare

	var createdAt string

	err := row.Scan(&s.ID, &s.UserID, &s.SnapshotID, &s.Token, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("sqlitestore: scanning snapshot share: %w", err)
	}

	s.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: parsing snapshot share created_at: %w", err)
	}

	return &s, nil
}
