package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/memolanes/memolanes-server/internal/store"
)

// SnapshotTaskRepository implements store.SnapshotTaskRepository.
type SnapshotTaskRepository struct{}

var _ store.SnapshotTaskRepository = SnapshotTaskRepository{}

const taskColumns = "id, user_id, status, interval_minutes, source, next_sync, error_count, created_at, updated_at"

func (SnapshotTaskRepository) GetByUser(ctx context.Context, t store.Tx, userID int64) (*store.SnapshotTask, error) {
	row := queryer(t).QueryRowContext(ctx, "SELECT "+taskColumns+" FROM snapshot_tasks WHERE user_id = ?", userID)
	return scanTask(row)
}

func (SnapshotTaskRepository) Create(ctx context.Context, t store.Tx, task *store.SnapshotTask) (*store.SnapshotTask, error) {
	sourceJSON, err := json.Marshal(task.Source)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: marshaling task source: %w", err)
	}

	now := nowString()

	res, err := queryer(t).ExecContext(ctx,
		`INSERT INTO snapshot_tasks
		 (user_id, status, interval_minutes, source, next_sync, error_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		task.UserID, task.Status, task.IntervalMinutes, string(sourceJSON),
		task.NextSync.UTC().Format(time.RFC3339Nano), task.ErrorCount, now, now)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: creating snapshot task: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: reading new snapshot task id: %w", err)
	}

	row := queryer(t).QueryRowContext(ctx, "SELECT "+taskColumns+" FROM snapshot_tasks WHERE id = ?", id)

	return scanTask(row)
}

func (SnapshotTaskRepository) Update(ctx context.Context, t store.Tx, task *store.SnapshotTask) error {
	sourceJSON, err := json.Marshal(task.Source)
	if err != nil {
		return fmt.Errorf("sqlitestore: marshaling task source: %w", err)
	}

	res, err := queryer(t).ExecContext(ctx,
		`UPDATE snapshot_tasks
		 SET status = ?, interval_minutes = ?, source = ?, next_sync = ?, error_count = ?, updated_at = ?
		 WHERE id = ?`,
		task.Status, task.IntervalMinutes, string(sourceJSON),
		task.NextSync.UTC().Format(time.RFC3339Nano), task.ErrorCount, nowString(), task.ID)
	if err != nil {
		return fmt.Errorf("sqlitestore: updating snapshot task %d: %w", task.ID, err)
	}

	return requireRowAffected(res)
}

func (SnapshotTaskRepository) Delete(ctx context.Context, t store.Tx, userID int64) error {
	res, err := queryer(t).ExecContext(ctx, "DELETE FROM snapshot_tasks WHERE user_id = ?", userID)
	if err != nil {
		return fmt.Errorf("sqlitestore: deleting snapshot task: %w", err)
	}

	return requireRowAffected(res)
}

func (SnapshotTaskRepository) SelectDue(ctx context.Context, t store.Tx, now time.Time) (*store.SnapshotTask, error) {
	row := queryer(t).QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM snapshot_tasks
		 WHERE status = ? AND next_sync <= ?
		 ORDER BY next_sync ASC LIMIT 1`,
		store.TaskRunning, now.UTC().Format(time.RFC3339Nano))

	return scanTask(row)
}

func (SnapshotTaskRepository) GetForCommit(
	ctx context.Context, t store.Tx, taskID int64, expectSource store.Source,
) (*store.SnapshotTask, error) {
	sourceJSON, err := json.Marshal(expectSource)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: marshaling expected task source: %w", err)
	}

	row := queryer(t).QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM snapshot_tasks WHERE id = ? AND status = ? AND source = ?`,
		taskID, store.TaskRunning, string(sourceJSON))

	return scanTask(row)
}

func scanTask(row *sql.Row) (*store.SnapshotTask, error) {
	var task store.SnapshotTask

	var (
		nextSync, createdAt, updatedAt, sourceJSON string
		status                                     string
	)

	err := row.Scan(
		&task.ID, &task.UserID, &status, &task.IntervalMinutes, &sourceJSON,
		&nextSync, &task.ErrorCount, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("sqlitestore: scanning snapshot task: %w", err)
	}

	task.Status = store.TaskStatus(status)

	if err := json.Unmarshal([]byte(sourceJSON), &task.Source); err != nil {
		return nil, fmt.Errorf("sqlitestore: unmarshaling task source: %w", err)
	}

	task.NextSync, err = time.Parse(time.RFC3339Nano, nextSync)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: parsing task next_sync: %w", err)
	}

	task.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: parsing task created_at: %w", err)
	}

	task.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: parsing task updated_at: %w", err)
	}

	return &task, nil
}
