// Package scheduler implements the snapshot scheduler (spec component G):
// a single long-lived worker that leases due tasks, runs the remote fetch
// pipeline outside any database lock, and commits the outcome only if the
// task's status and source are unchanged since the lease was taken.
// Shaped after internal/sync/orchestrator.go's RunWatch main loop
// (`for { select { ... case <-ctx.Done() } }`) and internal/graph/
// client.go's injectable sleepFunc.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/memolanes/memolanes-server/internal/filestore"
	"github.com/memolanes/memolanes-server/internal/onedrive"
	"github.com/memolanes/memolanes-server/internal/store"
)

const (
	// softLockDuration is how far into the future next_sync is pushed
	// when a task is leased, acting as the retry backoff if this worker
	// crashes mid-run (spec §4.G step 2).
	softLockDuration = 20 * time.Minute

	// idleSleep is how long the loop waits when no task is due.
	idleSleep = 30 * time.Second

	// errorSleep is how long the loop waits after an internal error
	// (DB unavailable), per spec §7's Internal-error policy.
	errorSleep = 60 * time.Second

	// maxErrorCount is the error_count threshold at which a task is
	// auto-stopped (spec §4.G step 5, S5).
	maxErrorCount = 3
)

// Scheduler runs the lease→fetch→commit loop described in spec §4.G.
type Scheduler struct {
	repos        store.Repositories
	files        *filestore.Store
	fetcher      onedrive.Fetcher
	logger       *slog.Logger
	quotaPerUser int64

	sleepFunc func(ctx context.Context, d time.Duration) error
}

// New constructs a Scheduler. quotaPerUser is the per-user storage cap
// passed through to filestore.AddFiles.
func New(repos store.Repositories, files *filestore.Store, fetcher onedrive.Fetcher, quotaPerUser int64, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		repos:        repos,
		files:        files,
		fetcher:      fetcher,
		logger:       logger,
		quotaPerUser: quotaPerUser,
		sleepFunc:    timeSleep,
	}
}

// Run blocks, executing iterations until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler starting")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping")
			return
		default:
		}

		sleep, err := s.iteration(ctx)
		if err != nil {
			s.logger.Error("scheduler iteration failed", slog.String("error", err.Error()))
			sleep = errorSleep
		}

		if sleepErr := s.sleepFunc(ctx, sleep); sleepErr != nil {
			return
		}
	}
}

// RunOnce leases and runs at most one due task, then returns — the
// non-looping counterpart to Run, for the scheduler-once CLI subcommand
// (e.g. invoked from an external cron rather than a long-lived process).
// Reports whether a task was actually leased and run.
func (s *Scheduler) RunOnce(ctx context.Context) (bool, error) {
	task, err := s.leaseDueTask(ctx)
	if err != nil {
		return false, err
	}

	if task == nil {
		return false, nil
	}

	outcome := s.runFetch(ctx, task)

	return true, s.commit(ctx, task, outcome)
}

// iteration runs exactly one pass of spec §4.G's protocol and returns how
// long the loop should sleep before the next one.
func (s *Scheduler) iteration(ctx context.Context) (time.Duration, error) {
	task, err := s.leaseDueTask(ctx)
	if err != nil {
		return 0, err
	}

	if task == nil {
		return idleSleep, nil
	}

	outcome := s.runFetch(ctx, task)

	if err := s.commit(ctx, task, outcome); err != nil {
		return 0, err
	}

	return idleSleep, nil
}

// leaseDueTask begins a transaction, selects the one due task with an
// exclusive row lock, pushes its next_sync out by softLockDuration, and
// commits — releasing the lock before the (potentially long) fetch runs
// (spec §4.G steps 1-2).
func (s *Scheduler) leaseDueTask(ctx context.Context) (*store.SnapshotTask, error) {
	tx, err := s.repos.UnitOfWork.BeginImmediate(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	task, err := s.repos.SnapshotTasks.SelectDue(ctx, tx, time.Now().UTC())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, tx.Commit()
		}

		return nil, err
	}

	task.NextSync = time.Now().UTC().Add(softLockDuration)

	if err := s.repos.SnapshotTasks.Update(ctx, tx, task); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return task, nil
}

// fetchOutcome is the result of running the remote fetch pipeline for one
// leased task, independent of the DB commit-if-unchanged phase.
type fetchOutcome struct {
	result onedrive.Result
	err    error
}

// runFetch executes the fetch pipeline outside any database lock (spec
// §4.G step 3). It prefers SnapshotWithRetry when the fetcher offers it,
// so a transient Locked response is retried per spec §4.C before being
// treated as a scheduled-run failure.
func (s *Scheduler) runFetch(ctx context.Context, task *store.SnapshotTask) fetchOutcome {
	withRetry, ok := s.fetcher.(interface {
		SnapshotWithRetry(ctx context.Context, source store.Source, userID int64, fstore *filestore.Store, quotaPerUser int64) (onedrive.Result, error)
	})

	var (
		result onedrive.Result
		err    error
	)

	if ok {
		result, err = withRetry.SnapshotWithRetry(ctx, task.Source, task.UserID, s.files, s.quotaPerUser)
	} else {
		result, err = s.fetcher.Snapshot(ctx, task.Source, task.UserID, s.files, s.quotaPerUser)
	}

	return fetchOutcome{result: result, err: err}
}

// commit re-selects the task row with a row lock, filtered on unchanged
// status/source, and applies the fetch outcome (spec §4.G steps 4-5). If
// the task was paused, deleted, or its source changed while the fetch
// ran, the outcome is discarded (log-only).
func (s *Scheduler) commit(ctx context.Context, leased *store.SnapshotTask, outcome fetchOutcome) error {
	tx, err := s.repos.UnitOfWork.BeginImmediate(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	current, err := s.repos.SnapshotTasks.GetForCommit(ctx, tx, leased.ID, leased.Source)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.logger.Info("discarding fetch result: task status or source changed mid-run",
				slog.Int64("task_id", leased.ID))

			return tx.Commit()
		}

		return err
	}

	if outcome.err != nil {
		return s.commitFailure(ctx, tx, current, outcome.result)
	}

	return s.commitSuccess(ctx, tx, current, outcome.result)
}

func (s *Scheduler) commitFailure(ctx context.Context, tx store.Tx, task *store.SnapshotTask, result onedrive.Result) error {
	task.ErrorCount++

	if task.ErrorCount >= maxErrorCount {
		task.Status = store.TaskStopped
	}

	if err := s.repos.SnapshotTasks.Update(ctx, tx, task); err != nil {
		return err
	}

	if _, err := s.repos.SnapshotLogs.Create(ctx, tx, &store.SnapshotLog{
		UserID:    task.UserID,
		Timestamp: time.Now().UTC(),
		Success:   false,
		Detail:    joinLogs(result.Logs),
	}); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Scheduler) commitSuccess(ctx context.Context, tx store.Tx, task *store.SnapshotTask, result onedrive.Result) error {
	latest, err := s.repos.Snapshots.Latest(ctx, tx, task.UserID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	var snapshotID *int64

	if latest == nil || !syncFilesEqual(latest.SyncFiles, result.SyncFiles) {
		created, err := s.repos.Snapshots.Create(ctx, tx, &store.Snapshot{
			UserID:     task.UserID,
			Timestamp:  result.Timestamp,
			SourceKind: store.SourceScheduled,
			SyncFiles:  result.SyncFiles,
		})
		if err != nil {
			return err
		}

		snapshotID = &created.ID
	}

	task.ErrorCount = 0
	task.NextSync = time.Now().UTC().Add(time.Duration(task.IntervalMinutes) * time.Minute)

	if err := s.repos.SnapshotTasks.Update(ctx, tx, task); err != nil {
		return err
	}

	if _, err := s.repos.SnapshotLogs.Create(ctx, tx, &store.SnapshotLog{
		UserID:     task.UserID,
		SnapshotID: snapshotID,
		Timestamp:  result.Timestamp,
		Success:    true,
		Detail:     joinLogs(result.Logs),
	}); err != nil {
		return err
	}

	return tx.Commit()
}

// joinLogs renders a fetch's accumulated log lines the same way the
// logs.join("\n") ground truth persists them: newline-separated, empty
// string when there were none.
func joinLogs(logs []string) string {
	return strings.Join(logs, "\n")
}

func syncFilesEqual(a, b map[int]string) bool {
	if len(a) != len(b) {
		return false
	}

	for id, sha := range a {
		if b[id] != sha {
			return false
		}
	}

	return true
}

func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
