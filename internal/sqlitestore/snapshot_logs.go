package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/memolanes/memolanes-server/internal/store"
)

// SnapshotLogRepository implements store.SnapshotLogRepository.
type SnapshotLogRepository struct{}

var _ store.SnapshotLogRepository = SnapshotLogRepository{}

const snapshotLogColumns = "id, user_id, snapshot_id, timestamp, success, detail"

func (SnapshotLogRepository) Create(ctx context.Context, t store.Tx, l *store.SnapshotLog) (*store.SnapshotLog, error) {
	res, err := queryer(t).ExecContext(ctx,
		`INSERT INTO snapshot_logs (user_id, snapshot_id, timestamp, success, detail)
		 VALUES (?, ?, ?, ?, ?)`,
		l.UserID, l.SnapshotID, l.Timestamp.UTC().Format(time.RFC3339Nano), l.Success, l.Detail)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: creating snapshot log: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: reading new snapshot log id: %w", err)
	}

	row := queryer(t).QueryRowContext(ctx, "SELECT "+snapshotLogColumns+" FROM snapshot_logs WHERE id = ?", id)

	return scanSnapshotLog(row)
}

func (SnapshotLogRepository) List(ctx context.Context, t store.Tx, userID int64, page, pageSize int) (store.Page[store.SnapshotLog], error) {
	q := queryer(t)

	var total int
	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM snapshot_logs WHERE user_id = ?", userID).Scan(&total); err != nil {
		return store.Page[store.SnapshotLog]{}, fmt.Errorf("sqlitestore: counting snapshot logs: %w", err)
	}

	offset := (page - 1) * pageSize

	rows, err := q.QueryContext(ctx,
		"SELECT "+snapshotLogColumns+" FROM snapshot_logs WHERE user_id = ? ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?",
		userID, pageSize, offset)
	if err != nil {
		return store.Page[store.SnapshotLog]{}, fmt.Errorf("sqlitestore: listing snapshot logs: %w", err)
	}
	defer rows.Close()

	var items []store.SnapshotLog

	for rows.Next() {
		l, err := scanSnapshotLogInto(rows)
		if err != nil {
			return store.Page[store.SnapshotLog]{}, fmt.Errorf("sqlitestore: scanning snapshot log row: %w", err)
		}

		items = append(items, *l)
	}

	if err := rows.Err(); err != nil {
		return store.Page[store.SnapshotLog]{}, fmt.Errorf("sqlitestore: iterating snapshot log rows: %w", err)
	}

	totalPages := (total + pageSize - 1) / pageSize

	return store.Page[store.SnapshotLog]{Items: items, TotalItems: total, TotalPages: totalPages}, nil
}

func (SnapshotLogRepository) LatestForUser(ctx context.Context, t store.Tx, userID int64) (*store.SnapshotLog, error) {
	row := queryer(t).QueryRowContext(ctx,
		"SELECT "+snapshotLogColumns+" FROM snapshot_logs WHERE user_id = ? ORDER BY timestamp DESC, id DESC LIMIT 1",
		userID)

	return scanSnapshotLog(row)
}

func scanSnapshotLogInto(row rowScanner) (*store.SnapshotLog, error) {
	var l store.SnapshotLog

	var ts string

	var snapshotID sql.NullInt64

	err := row.Scan(&l.ID, &l.UserID, &snapshotID, &ts, &l.Success, &l.Detail)
	if err != nil {
		return nil, err
	}

	if snapshotID.Valid {
		l.SnapshotID = &snapshotID.Int64
	}

	l.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: parsing snapshot log timestamp: %w", err)
	}

	return &l, nil
}

func scanSnapshotLog(row *sql.Row) (*store.SnapshotLog, error) {
	l, err := scanSnapshotLogInto(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("sqlitestore: scanning snapshot log: %w", err)
	}

	return l, nil
}
