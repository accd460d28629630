package tasks_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/memolanes/memolanes-server/internal/apierr"
	"github.com/memolanes/memolanes-server/internal/filestore"
	"github.com/memolanes/memolanes-server/internal/onedrive"
	"github.com/memolanes/memolanes-server/internal/sqlitestore"
	"github.com/memolanes/memolanes-server/internal/store"
	"github.com/memolanes/memolanes-server/internal/tasks"
)

// stubFetcher stubs onedrive.Fetcher for task-service tests — only
// Precheck is ever called by this package.
type stubFetcher struct {
	err error
}

func (f stubFetcher) Precheck(ctx context.Context, source store.Source) error {
	return f.err
}

func (f stubFetcher) Snapshot(ctx context.Context, source store.Source, userID int64, fstore *filestore.Store, quotaPerUser int64) (onedrive.Result, error) {
	panic("not used by tasks tests")
}

var _ onedrive.Fetcher = stubFetcher{}

func mustServiceWithRepos(t *testing.T, fetcherErr error) (*tasks.Service, store.Repositories) {
	t.Helper()

	db, err := sqlitestore.Open(context.Background(), ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repos := db.Repositories()

	return tasks.NewService(repos, stubFetcher{err: fetcherErr}), repos
}

func mustService(t *testing.T, fetcherErr error) *tasks.Service {
	t.Helper()

	svc, _ := mustServiceWithRepos(t, fetcherErr)

	return svc
}

func TestCreateValidatesInterval(t *testing.T) {
	s := mustService(t, nil)

	_, err := s.Create(context.Background(), 1, tasks.CreateInput{
		IntervalMinutes: 17,
		Source:          store.Source{Kind: store.SourceProviderOneDriveShare, ShareURL: "https://1drv.ms/f/s!x"},
	})
	require.Error(t, err)

	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	require.Equal(t, apierr.InvalidInterval, apiErr.Code)
}

func TestCreateSucceedsAndSetsNextSyncImmediatelyDue(t *testing.T) {
	s := mustService(t, nil)

	before := time.Now()

	task, err := s.Create(context.Background(), 1, tasks.CreateInput{
		IntervalMinutes: 6 * 60,
		Source:          store.Source{Kind: store.SourceProviderOneDriveShare, ShareURL: "https://1drv.ms/f/s!x"},
	})
	require.NoError(t, err)
	require.Equal(t, store.TaskRunning, task.Status)
	require.False(t, task.NextSync.Before(before))
	require.True(t, task.NextSync.Before(before.Add(time.Minute)))
}

func TestCreatePropagatesPrecheckFailure(t *testing.T) {
	s := mustService(t, errors.New("boom"))

	_, err := s.Create(context.Background(), 1, tasks.CreateInput{
		IntervalMinutes: 6 * 60,
		Source:          store.Source{Kind: store.SourceProviderOneDriveShare, ShareURL: "https://1drv.ms/f/s!x"},
	})
	require.Error(t, err)

	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	require.Equal(t, apierr.InvalidShare, apiErr.Code)
}

func TestUpdateRejectsClientSetStopped(t *testing.T) {
	s := mustService(t, nil)
	ctx := context.Background()

	_, err := s.Create(ctx, 1, tasks.CreateInput{
		IntervalMinutes: 6 * 60,
		Source:          store.Source{Kind: store.SourceProviderOneDriveShare, ShareURL: "https://1drv.ms/f/s!x"},
	})
	require.NoError(t, err)

	stopped := store.TaskStopped

	_, err = s.Update(ctx, 1, tasks.UpdateInput{Status: &stopped})
	require.Error(t, err)

	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	require.Equal(t, apierr.InvalidStatus, apiErr.Code)
}

func TestUpdateIntervalResetsErrorCount(t *testing.T) {
	s := mustService(t, nil)
	ctx := context.Background()

	_, err := s.Create(ctx, 1, tasks.CreateInput{
		IntervalMinutes: 6 * 60,
		Source:          store.Source{Kind: store.SourceProviderOneDriveShare, ShareURL: "https://1drv.ms/f/s!x"},
	})
	require.NoError(t, err)

	newInterval := 12 * 60

	updated, err := s.Update(ctx, 1, tasks.UpdateInput{IntervalMinutes: &newInterval})
	require.NoError(t, err)
	require.Equal(t, 0, updated.ErrorCount)
	require.Equal(t, newInterval, updated.IntervalMinutes)
}

func TestDeleteThenGetIsNotFound(t *testing.T) {
	s := mustService(t, nil)
	ctx := context.Background()

	_, err := s.Create(ctx, 1, tasks.CreateInput{
		IntervalMinutes: 6 * 60,
		Source:          store.Source{Kind: store.SourceProviderOneDriveShare, ShareURL: "https://1drv.ms/f/s!x"},
	})
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, 1))

	_, err = s.Get(ctx, 1)
	require.Error(t, err)

	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	require.Equal(t, apierr.NotFound, apiErr.Code)
}

func TestListLogsReturnsNewestFirst(t *testing.T) {
	s, repos := mustServiceWithRepos(t, nil)
	ctx := context.Background()

	tx, err := repos.UnitOfWork.BeginImmediate(ctx)
	require.NoError(t, err)

	_, err = repos.SnapshotLogs.Create(ctx, tx, &store.SnapshotLog{
		UserID: 1, Timestamp: time.Now().Add(-time.Hour), Success: true, Detail: "first",
	})
	require.NoError(t, err)

	_, err = repos.SnapshotLogs.Create(ctx, tx, &store.SnapshotLog{
		UserID: 1, Timestamp: time.Now(), Success: true, Detail: "second",
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	page, err := s.ListLogs(ctx, 1, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.Equal(t, "second", page.Items[0].Detail)
}
