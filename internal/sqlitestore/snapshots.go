package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/memolanes/memolanes-server/internal/store"
)

// SnapshotRepository implements store.SnapshotRepository.
type SnapshotRepository struct{}

var _ store.SnapshotRepository = SnapshotRepository{}

const snapshotColumns = "id, user_id, timestamp, source_kind, note, sync_files, created_at"

func (SnapshotRepository) Create(ctx context.Context, t store.Tx, s *store.Snapshot) (*store.Snapshot, error) {
	syncFilesJSON, err := marshalSyncFiles(s.SyncFiles)
	if err != nil {
		return nil, err
	}

	now := nowString()

	res, err := queryer(t).ExecContext(ctx,
		`INSERT INTO snapshots (user_id, timestamp, source_kind, note, sync_files, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		s.UserID, s.Timestamp.UTC().Format(time.RFC3339Nano), s.SourceKind, s.Note, syncFilesJSON, now)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: creating snapshot: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: reading new snapshot id: %w", err)
	}

	return SnapshotRepository{}.Get(ctx, t, s.UserID, id)
}

func (SnapshotRepository) Get(ctx context.Context, t store.Tx, userID, id int64) (*store.Snapshot, error) {
	row := queryer(t).QueryRowContext(ctx,
		"SELECT "+snapshotColumns+" FROM snapshots WHERE user_id = ? AND id = ?", userID, id)

	return scanSnapshot(row)
}

func (SnapshotRepository) List(ctx context.Context, t store.Tx, userID int64, page, pageSize int) (store.Page[store.Snapshot], error) {
	q := queryer(t)

	var total int
	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM snapshots WHERE user_id = ?", userID).Scan(&total); err != nil {
		return store.Page[store.Snapshot]{}, fmt.Errorf("sqlitestore: counting snapshots: %w", err)
	}

	offset := (page - 1) * pageSize

	rows, err := q.QueryContext(ctx,
		"SELECT "+snapshotColumns+" FROM snapshots WHERE user_id = ? ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?",
		userID, pageSize, offset)
	if err != nil {
		return store.Page[store.Snapshot]{}, fmt.Errorf("sqlitestore: listing snapshots: %w", err)
	}
	defer rows.Close()

	items, err := scanSnapshotRows(rows)
	if err != nil {
		return store.Page[store.Snapshot]{}, err
	}

	totalPages := (total + pageSize - 1) / pageSize

	return store.Page[store.Snapshot]{Items: items, TotalItems: total, TotalPages: totalPages}, nil
}

func (SnapshotRepository) Latest(ctx context.Context, t store.Tx, userID int64) (*store.Snapshot, error) {
	row := queryer(t).QueryRowContext(ctx,
		"SELECT "+snapshotColumns+" FROM snapshots WHERE user_id = ? ORDER BY timestamp DESC, id DESC LIMIT 1", userID)

	return scanSnapshot(row)
}

func (SnapshotRepository) AllOrdered(ctx context.Context, t store.Tx, userID int64) ([]store.Snapshot, error) {
	rows, err := queryer(t).QueryContext(ctx,
		"SELECT "+snapshotColumns+" FROM snapshots WHERE user_id = ? ORDER BY timestamp ASC, id ASC", userID)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: listing ordered snapshots: %w", err)
	}
	defer rows.Close()

	return scanSnapshotRows(rows)
}

func (SnapshotRepository) Neighbors(
	ctx context.Context, t store.Tx, userID, id int64, timestamp time.Time,
) (prev, next *store.Snapshot, err error) {
	q := queryer(t)
	ts := timestamp.UTC().Format(time.RFC3339Nano)

	prevRow := q.QueryRowContext(ctx,
		`SELECT `+snapshotColumns+` FROM snapshots
		 WHERE user_id = ? AND id != ? AND (timestamp < ? OR (timestamp = ? AND id < ?))
		 ORDER BY timestamp DESC, id DESC LIMIT 1`,
		userID, id, ts, ts, id)

	prev, err = scanSnapshotOptional(prevRow)
	if err != nil {
		return nil, nil, err
	}

	nextRow := q.QueryRowContext(ctx,
		`SELECT `+snapshotColumns+` FROM snapshots
		 WHERE user_id = ? AND id != ? AND (timestamp > ? OR (timestamp = ? AND id > ?))
		 ORDER BY timestamp ASC, id ASC LIMIT 1`,
		userID, id, ts, ts, id)

	next, err = scanSnapshotOptional(nextRow)
	if err != nil {
		return nil, nil, err
	}

	return prev, next, nil
}

func (SnapshotRepository) UpdateNote(ctx context.Context, t store.Tx, userID, id int64, note *string) error {
	res, err := queryer(t).ExecContext(ctx,
		"UPDATE snapshots SET note = ? WHERE user_id = ? AND id = ?", note, userID, id)
	if err != nil {
		return fmt.Errorf("sqlitestore: updating snapshot note: %w", err)
	}

	return requireRowAffected(res)
}

func (SnapshotRepository) Delete(ctx context.Context, t store.Tx, userID, id int64) error {
	res, err := queryer(t).ExecContext(ctx, "DELETE FROM snapshots WHERE user_id = ? AND id = ?", userID, id)
	if err != nil {
		return fmt.Errorf("sqlitestore: deleting snapshot: %w", err)
	}

	return requireRowAffected(res)
}

func requireRowAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlitestore: checking rows affected: %w", err)
	}

	if n == 0 {
		return store.ErrNotFound
	}

	return nil
}

func marshalSyncFiles(m map[int]string) (string, error) {
	strKeyed := make(map[string]string, len(m))
	for id, sha := range m {
		strKeyed[strconv.Itoa(id)] = sha
	}

	b, err := json.Marshal(strKeyed)
	if err != nil {
		return "", fmt.Errorf("sqlitestore: marshaling sync_files: %w", err)
	}

	return string(b), nil
}

func unmarshalSyncFiles(s string) (map[int]string, error) {
	var strKeyed map[string]string
	if err := json.Unmarshal([]byte(s), &strKeyed); err != nil {
		return nil, fmt.Errorf("sqlitestore: unmarshaling sync_files: %w", err)
	}

	out := make(map[int]string, len(strKeyed))

	for k, v := range strKeyed {
		id, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("sqlitestore: invalid sync_files key %q: %w", k, err)
		}

		out[id] = v
	}

	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshotInto(row rowScanner) (*store.Snapshot, error) {
	var s store.Snapshot

	var ts, createdAt, syncFilesJSON string

	err := row.Scan(&s.ID, &s.UserID, &ts, &s.SourceKind, &s.Note, &syncFilesJSON, &createdAt)
	if err != nil {
		return nil, err
	}

	s.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: parsing snapshot timestamp: %w", err)
	}

	s.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: parsing snapshot created_at: %w", err)
	}

	s.SyncFiles, err = unmarshalSyncFiles(syncFilesJSON)
	if err != nil {
		return nil, err
	}

	return &s, nil
}

func scanSnapshot(row *sql.Row) (*store.Snapshot, error) {
	s, err := scanSnapshotInto(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("sqlitestore: scanning snapshot: %w", err)
	}

	return s, nil
}

// scanSnapshotOptional is like scanSnapshot but returns (nil, nil) for
// sql.ErrNoRows instead of store.ErrNotFound — used for Neighbors, where
// the absence of a previous/next snapshot is not an error.
func scanSnapshotOptional(row *sql.Row) (*store.Snapshot, error) {
	s, err := scanSnapshotInto(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // absence of a neighbor is a valid result, not an error
	}

	if err != nil {
		return nil, fmt.Errorf("sqlitestore: scanning snapshot: %w", err)
	}

	return s, nil
}

func scanSnapshotRows(rows *sql.Rows) ([]store.Snapshot, error) {
	var out []store.Snapshot

	for rows.Next() {
		s, err := scanSnapshotInto(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlitestore: scanning snapshot row: %w", err)
		}

		out = append(out, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlitestore: iterating snapshot rows: %w", err)
	}

	return out, nil
}
