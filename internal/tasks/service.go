// Package tasks implements the snapshot task service (spec component F):
// CRUD over each user's single scheduled-fetch configuration, with
// status/interval/source validation and a precheck dispatch to the
// remote fetcher before a task is allowed to go live.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/memolanes/memolanes-server/internal/apierr"
	"github.com/memolanes/memolanes-server/internal/onedrive"
	"github.com/memolanes/memolanes-server/internal/store"
)

// nextSyncFloor is the minimum spacing spec §4.F requires after any
// transition to Running or a change of interval/source.
const nextSyncFloor = 20 * time.Minute

// Service implements the SnapshotTask CRUD operations of spec §4.F.
type Service struct {
	repos   store.Repositories
	fetcher onedrive.Fetcher
}

// NewService constructs a Service. fetcher is used only for its Precheck
// method, dispatched on every create/update that touches source.
func NewService(repos store.Repositories, fetcher onedrive.Fetcher) *Service {
	return &Service{repos: repos, fetcher: fetcher}
}

// Get returns the current user's task, or store.ErrNotFound if none exists.
func (s *Service) Get(ctx context.Context, userID int64) (*store.SnapshotTask, error) {
	tx, err := s.repos.UnitOfWork.BeginImmediate(ctx)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	defer tx.Rollback()

	task, err := s.repos.SnapshotTasks.GetByUser(ctx, tx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apierr.New(apierr.NotFound, "no snapshot task configured")
		}

		return nil, apierr.Internal(err)
	}

	return task, tx.Commit()
}

// CreateInput is the validated request body for POST /snapshot_task.
type CreateInput struct {
	IntervalMinutes int
	Source          store.Source
}

// Create validates and persists a new task for userID (spec §4.F). A new
// task always starts Running — "reject creation... setting status =
// Stopped by user" rules out any other starting status.
func (s *Service) Create(ctx context.Context, userID int64, in CreateInput) (*store.SnapshotTask, error) {
	if err := s.validateIntervalAndSource(ctx, in.IntervalMinutes, in.Source); err != nil {
		return nil, err
	}

	tx, err := s.repos.UnitOfWork.BeginImmediate(ctx)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	created, err := s.repos.SnapshotTasks.Create(ctx, tx, &store.SnapshotTask{
		UserID:          userID,
		Status:          store.TaskRunning,
		IntervalMinutes: in.IntervalMinutes,
		Source:          in.Source,
		NextSync:        now,
		ErrorCount:      0,
	})
	if err != nil {
		return nil, apierr.Internal(err)
	}

	return created, tx.Commit()
}

// UpdateInput is the validated request body for PATCH /snapshot_task.
// Nil fields leave the corresponding column unchanged.
type UpdateInput struct {
	Status          *store.TaskStatus
	IntervalMinutes *int
	Source          *store.Source
}

// Update applies a partial update to the user's task (spec §4.F): status
// may not be client-set to Stopped, interval must be whitelisted, and any
// transition to Running or change of interval/source resets error_count
// and recomputes next_sync from the floor rule.
func (s *Service) Update(ctx context.Context, userID int64, in UpdateInput) (*store.SnapshotTask, error) {
	if in.Status != nil && *in.Status == store.TaskStopped {
		return nil, apierr.New(apierr.InvalidStatus, "clients may not set status to stopped")
	}

	if in.Status != nil && *in.Status != store.TaskRunning && *in.Status != store.TaskPaused {
		return nil, apierr.New(apierr.InvalidStatus, "status must be running or paused")
	}

	if in.IntervalMinutes != nil && !store.IsValidInterval(*in.IntervalMinutes) {
		return nil, apierr.New(apierr.InvalidInterval, "interval not in whitelist")
	}

	tx, err := s.repos.UnitOfWork.BeginImmediate(ctx)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	defer tx.Rollback()

	task, err := s.repos.SnapshotTasks.GetByUser(ctx, tx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apierr.New(apierr.NotFound, "no snapshot task configured")
		}

		return nil, apierr.Internal(err)
	}

	resetSchedule := false

	if in.Status != nil && *in.Status == store.TaskRunning && task.Status != store.TaskRunning {
		resetSchedule = true
	}

	if in.IntervalMinutes != nil && *in.IntervalMinutes != task.IntervalMinutes {
		resetSchedule = true
	}

	if in.Source != nil && *in.Source != task.Source {
		resetSchedule = true
	}

	if in.Source != nil {
		if err := s.precheck(ctx, *in.Source); err != nil {
			return nil, err
		}
	}

	if in.Status != nil {
		task.Status = *in.Status
	}

	if in.IntervalMinutes != nil {
		task.IntervalMinutes = *in.IntervalMinutes
	}

	if in.Source != nil {
		task.Source = *in.Source
	}

	if resetSchedule {
		floor, err := s.nextSyncFloor(ctx, tx, userID)
		if err != nil {
			return nil, apierr.Internal(err)
		}

		task.ErrorCount = 0
		task.NextSync = floor
	}

	if err := s.repos.SnapshotTasks.Update(ctx, tx, task); err != nil {
		return nil, apierr.Internal(err)
	}

	return task, tx.Commit()
}

// Delete removes the user's task entirely.
func (s *Service) Delete(ctx context.Context, userID int64) error {
	tx, err := s.repos.UnitOfWork.BeginImmediate(ctx)
	if err != nil {
		return apierr.Internal(err)
	}
	defer tx.Rollback()

	if err := s.repos.SnapshotTasks.Delete(ctx, tx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apierr.New(apierr.NotFound, "no snapshot task configured")
		}

		return apierr.Internal(err)
	}

	return tx.Commit()
}

// ListLogs returns a page of the user's snapshot fetch logs, newest
// first — used by GET /snapshot_log.
func (s *Service) ListLogs(ctx context.Context, userID int64, page, pageSize int) (store.Page[store.SnapshotLog], error) {
	if page < 1 {
		page = 1
	}

	switch {
	case pageSize <= 0:
		pageSize = 10
	case pageSize > 200:
		pageSize = 200
	}

	tx, err := s.repos.UnitOfWork.BeginImmediate(ctx)
	if err != nil {
		return store.Page[store.SnapshotLog]{}, apierr.Internal(err)
	}
	defer tx.Rollback()

	result, err := s.repos.SnapshotLogs.List(ctx, tx, userID, page, pageSize)
	if err != nil {
		return store.Page[store.SnapshotLog]{}, apierr.Internal(err)
	}

	return result, tx.Commit()
}

func (s *Service) validateIntervalAndSource(ctx context.Context, intervalMinutes int, source store.Source) error {
	if !store.IsValidInterval(intervalMinutes) {
		return apierr.New(apierr.InvalidInterval, "interval not in whitelist")
	}

	return s.precheck(ctx, source)
}

// precheck invokes the remote fetcher's shallow folder-structure check
// and classifies any failure as invalid_share or invalid_folder_structure
// (spec §4.F).
func (s *Service) precheck(ctx context.Context, source store.Source) error {
	if err := s.fetcher.Precheck(ctx, source); err != nil {
		if errors.Is(err, onedrive.ErrInvalidFolderStructure) {
			return apierr.New(apierr.InvalidFolderStructure, err.Error())
		}

		return apierr.New(apierr.InvalidShare, err.Error())
	}

	return nil
}

// nextSyncFloor computes max(last_log.timestamp + 20min, now()) per spec
// §4.F. With no prior log there is no lower term to apply, so the task
// is immediately due — matching snapshot_task_handler.rs's create/reset
// paths, which both set next_sync to the current instant.
func (s *Service) nextSyncFloor(ctx context.Context, tx store.Tx, userID int64) (time.Time, error) {
	now := time.Now().UTC()

	lastLog, err := s.repos.SnapshotLogs.LatestForUser(ctx, tx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return now, nil
		}

		return time.Time{}, fmt.Errorf("tasks: loading latest log for user %d: %w", userID, err)
	}

	floor := lastLog.Timestamp.Add(nextSyncFloor)
	if now.After(floor) {
		return now, nil
	}

	return floor, nil
}
