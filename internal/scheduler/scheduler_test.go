package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/memolanes/memolanes-server/internal/filestore"
	"github.com/memolanes/memolanes-server/internal/onedrive"
	"github.com/memolanes/memolanes-server/internal/scheduler"
	"github.com/memolanes/memolanes-server/internal/sqlitestore"
	"github.com/memolanes/memolanes-server/internal/store"
)

// stubFetcher returns a fixed Result/error pair from Snapshot, ignoring
// SnapshotWithRetry (the scheduler falls back to Snapshot when the
// fetcher doesn't implement the retry method).
type stubFetcher struct {
	result onedrive.Result
	err    error
}

func (f stubFetcher) Precheck(ctx context.Context, source store.Source) error { return nil }

func (f stubFetcher) Snapshot(ctx context.Context, source store.Source, userID int64, fstore *filestore.Store, quotaPerUser int64) (onedrive.Result, error) {
	return f.result, f.err
}

var _ onedrive.Fetcher = stubFetcher{}

func seedRunningTask(t *testing.T, repos store.Repositories) *store.SnapshotTask {
	t.Helper()

	ctx := context.Background()

	tx, err := repos.UnitOfWork.BeginImmediate(ctx)
	require.NoError(t, err)

	task, err := repos.SnapshotTasks.Create(ctx, tx, &store.SnapshotTask{
		UserID:          1,
		Status:          store.TaskRunning,
		IntervalMinutes: 6 * 60,
		Source:          store.Source{Kind: store.SourceProviderOneDriveShare, ShareURL: "https://1drv.ms/f/s!x"},
		NextSync:        time.Now().Add(-time.Minute),
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	return task
}

func TestSchedulerRunOnceCreatesSnapshotOnSuccess(t *testing.T) {
	db, err := sqlitestore.Open(context.Background(), ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repos := db.Repositories()
	seedRunningTask(t, repos)

	fstore, err := filestore.Open(t.TempDir(), nil)
	require.NoError(t, err)

	fetcher := stubFetcher{result: onedrive.Result{
		SyncFiles: map[int]string{1: "abc"},
		Timestamp: time.Now().UTC(),
	}}

	sched := scheduler.New(repos, fstore, fetcher, 10*1024*1024, nil)

	ctx := context.Background()

	tx, err := repos.UnitOfWork.BeginImmediate(ctx)
	require.NoError(t, err)
	task, err := repos.SnapshotTasks.SelectDue(ctx, tx, time.Now())
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())
	require.Equal(t, store.TaskRunning, task.Status)

	runSingleIteration(t, sched)

	tx, err = repos.UnitOfWork.BeginImmediate(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	updated, err := repos.SnapshotTasks.GetByUser(ctx, tx, 1)
	require.NoError(t, err)
	require.Equal(t, 0, updated.ErrorCount)
	require.True(t, updated.NextSync.After(time.Now().Add(5*time.Hour)))

	latest, err := repos.Snapshots.Latest(ctx, tx, 1)
	require.NoError(t, err)
	require.Equal(t, "abc", latest.SyncFiles[1])
}

func TestSchedulerStopsTaskAfterThreeFailures(t *testing.T) {
	db, err := sqlitestore.Open(context.Background(), ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repos := db.Repositories()
	seedRunningTask(t, repos)

	fstore, err := filestore.Open(t.TempDir(), nil)
	require.NoError(t, err)

	fetcher := stubFetcher{err: onedrive.ErrServerError}
	sched := scheduler.New(repos, fstore, fetcher, 10*1024*1024, nil)

	ctx := context.Background()

	for i := 0; i < 3; i++ {
		// Make the task due again for each simulated iteration.
		tx, err := repos.UnitOfWork.BeginImmediate(ctx)
		require.NoError(t, err)
		task, err := repos.SnapshotTasks.GetByUser(ctx, tx, 1)
		require.NoError(t, err)
		task.NextSync = time.Now().Add(-time.Minute)
		require.NoError(t, repos.SnapshotTasks.Update(ctx, tx, task))
		require.NoError(t, tx.Commit())

		runSingleIteration(t, sched)
	}

	tx, err := repos.UnitOfWork.BeginImmediate(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	final, err := repos.SnapshotTasks.GetByUser(ctx, tx, 1)
	require.NoError(t, err)
	require.Equal(t, store.TaskStopped, final.Status)
	require.Equal(t, 3, final.ErrorCount)
}

func runSingleIteration(t *testing.T, sched *scheduler.Scheduler) {
	t.Helper()

	_, err := sched.RunOnce(context.Background())
	require.NoError(t, err)
}

func TestRunOnceReportsNoTaskWhenNoneDue(t *testing.T) {
	db, err := sqlitestore.Open(context.Background(), ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	fstore, err := filestore.Open(t.TempDir(), nil)
	require.NoError(t, err)

	sched := scheduler.New(db.Repositories(), fstore, stubFetcher{}, 10*1024*1024, nil)

	ran, err := sched.RunOnce(context.Background())
	require.NoError(t, err)
	require.False(t, ran)
}
