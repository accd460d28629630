package sqlitestore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/memolanes/memolanes-server/internal/sqlitestore"
	"github.com/memolanes/memolanes-server/internal/store"
)

func mustDB(t *testing.T) *sqlitestore.DB {
	t.Helper()

	db, err := sqlitestore.Open(context.Background(), ":memory:", nil)
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })

	return db
}

func TestUserRepositoryCreateAndFetch(t *testing.T) {
	db := mustDB(t)
	repos := db.Repositories()
	ctx := context.Background()

	tx, err := repos.UnitOfWork.BeginImmediate(ctx)
	require.NoError(t, err)

	contactEmail := "student@example.com"

	created, err := repos.Users.Create(ctx, tx, &store.User{
		ContactEmail:  contactEmail,
		OAuthProvider: "github",
		ExternalUID:   ptr("12345"),
		Language:      "en",
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	require.NotZero(t, created.ID)
	require.Equal(t, contactEmail, created.ContactEmail)

	tx, err = repos.UnitOfWork.BeginImmediate(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	fetched, err := repos.Users.GetByExternalUID(ctx, tx, "github", "12345")
	require.NoError(t, err)
	require.Equal(t, created.ID, fetched.ID)

	_, err = repos.Users.GetByID(ctx, tx, created.ID+1000)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestSnapshotRepositoryRoundTripsSyncFiles(t *testing.T) {
	db := mustDB(t)
	repos := db.Repositories()
	ctx := context.Background()

	tx, err := repos.UnitOfWork.BeginImmediate(ctx)
	require.NoError(t, err)

	user, err := repos.Users.Create(ctx, tx, &store.User{ContactEmail: "a@b.com", OAuthProvider: "github"})
	require.NoError(t, err)

	syncFiles := map[int]string{0: "deadbeef", 117660: "cafebabe"}

	snap, err := repos.Snapshots.Create(ctx, tx, &store.Snapshot{
		UserID:     user.ID,
		Timestamp:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		SourceKind: store.SourceDirectUpload,
		SyncFiles:  syncFiles,
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	require.Equal(t, syncFiles, snap.SyncFiles)

	tx, err = repos.UnitOfWork.BeginImmediate(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	fetched, err := repos.Snapshots.Get(ctx, tx, user.ID, snap.ID)
	require.NoError(t, err)
	require.Equal(t, syncFiles, fetched.SyncFiles)

	latest, err := repos.Snapshots.Latest(ctx, tx, user.ID)
	require.NoError(t, err)
	require.Equal(t, snap.ID, latest.ID)
}

func TestSnapshotRepositoryNeighbors(t *testing.T) {
	db := mustDB(t)
	repos := db.Repositories()
	ctx := context.Background()

	tx, err := repos.UnitOfWork.BeginImmediate(ctx)
	require.NoError(t, err)

	user, err := repos.Users.Create(ctx, tx, &store.User{ContactEmail: "a@b.com", OAuthProvider: "github"})
	require.NoError(t, err)

	var ids []int64

	for i := range 3 {
		snap, err := repos.Snapshots.Create(ctx, tx, &store.Snapshot{
			UserID:     user.ID,
			Timestamp:  time.Date(2026, 1, i+1, 0, 0, 0, 0, time.UTC),
			SourceKind: store.SourceDirectUpload,
			SyncFiles:  map[int]string{},
		})
		require.NoError(t, err)
		ids = append(ids, snap.ID)
	}

	require.NoError(t, tx.Commit())

	tx, err = repos.UnitOfWork.BeginImmediate(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	middle, err := repos.Snapshots.Get(ctx, tx, user.ID, ids[1])
	require.NoError(t, err)

	prev, next, err := repos.Snapshots.Neighbors(ctx, tx, user.ID, ids[1], middle.Timestamp)
	require.NoError(t, err)
	require.NotNil(t, prev)
	require.NotNil(t, next)
	require.Equal(t, ids[0], prev.ID)
	require.Equal(t, ids[2], next.ID)
}

func TestSnapshotTaskRepositoryLifecycle(t *testing.T) {
	db := mustDB(t)
	repos := db.Repositories()
	ctx := context.Background()

	tx, err := repos.UnitOfWork.BeginImmediate(ctx)
	require.NoError(t, err)

	user, err := repos.Users.Create(ctx, tx, &store.User{ContactEmail: "a@b.com", OAuthProvider: "github"})
	require.NoError(t, err)

	source := store.Source{Kind: store.SourceProviderOneDriveShare, ShareURL: "https://1drv.ms/abc"}

	task, err := repos.SnapshotTasks.Create(ctx, tx, &store.SnapshotTask{
		UserID:          user.ID,
		Status:          store.TaskRunning,
		IntervalMinutes: 360,
		Source:          source,
		NextSync:        time.Now().Add(-time.Minute),
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	tx, err = repos.UnitOfWork.BeginImmediate(ctx)
	require.NoError(t, err)

	due, err := repos.SnapshotTasks.SelectDue(ctx, tx, time.Now())
	require.NoError(t, err)
	require.Equal(t, task.ID, due.ID)

	committed, err := repos.SnapshotTasks.GetForCommit(ctx, tx, task.ID, source)
	require.NoError(t, err)
	require.Equal(t, task.ID, committed.ID)

	_, err = repos.SnapshotTasks.GetForCommit(ctx, tx, task.ID, store.Source{Kind: "other"})
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, tx.Commit())
}

func TestSnapshotShareRepository(t *testing.T) {
	db := mustDB(t)
	repos := db.Repositories()
	ctx := context.Background()

	tx, err := repos.UnitOfWork.BeginImmediate(ctx)
	require.NoError(t, err)

	user, err := repos.Users.Create(ctx, tx, &store.User{ContactEmail: "a@b.com", OAuthProvider: "github"})
	require.NoError(t, err)

	snap, err := repos.Snapshots.Create(ctx, tx, &store.Snapshot{
		UserID:     user.ID,
		Timestamp:  time.Now(),
		SourceKind: store.SourceDirectUpload,
		SyncFiles:  map[int]string{},
	})
	require.NoError(t, err)

	share, err := repos.Shares.Create(ctx, tx, &store.SnapshotShare{
		UserID:     user.ID,
		SnapshotID: snap.ID,
		Token:      "abc123token",
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	tx, err = repos.UnitOfWork.BeginImmediate(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	byToken, err := repos.Shares.GetByToken(ctx, tx, "abc123token")
	require.NoError(t, err)
	require.Equal(t, share.ID, byToken.ID)

	bySnapshot, err := repos.Shares.GetBySnapshot(ctx, tx, user.ID, snap.ID)
	require.NoError(t, err)
	require.Equal(t, share.ID, bySnapshot.ID)

	_, err = repos.Shares.GetByToken(ctx, tx, "nope")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func ptr[T any](v T) *T { return &v }
