package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by repository lookups when the requested row
// does not exist (or is not owned by the caller, which the service layer
// treats identically per spec §7's NotFound taxonomy).
var ErrNotFound = errors.New("store: not found")

// Tx is an in-flight transaction. Repositories take a Tx so callers can
// compose several calls into one atomic unit of work.
type Tx interface {
	Commit() error
	Rollback() error
}

// UnitOfWork begins transactions. BeginImmediate acquires a write lock
// immediately (SQLite "BEGIN IMMEDIATE"), matching the row-lock semantics
// spec §5 requires for every mutating flow on snapshots and tasks.
type UnitOfWork interface {
	BeginImmediate(ctx context.Context) (Tx, error)
}

// Page describes a paginated result set (spec §4.E List).
type Page[T any] struct {
	Items      []T
	TotalItems int
	TotalPages int
}

// UserRepository is the abstract data-access surface for User.
type UserRepository interface {
	GetByID(ctx context.Context, tx Tx, id int64) (*User, error)
	GetByExternalUID(ctx context.Context, tx Tx, provider, uid string) (*User, error)
	Create(ctx context.Context, tx Tx, u *User) (*User, error)
	Update(ctx context.Context, tx Tx, u *User) error
	// EnsureByID idempotently creates a user row at a caller-chosen id if
	// one doesn't already exist, returning the (possibly pre-existing)
	// row. Single-user-no-auth mode uses this to lazily create the
	// fixed uid=-1 row spec §7 describes.
	EnsureByID(ctx context.Context, tx Tx, u *User) (*User, error)
}

// SnapshotRepository is the abstract data-access surface for Snapshot.
type SnapshotRepository interface {
	Create(ctx context.Context, tx Tx, s *Snapshot) (*Snapshot, error)
	Get(ctx context.Context, tx Tx, userID, id int64) (*Snapshot, error)
	// List returns snapshots ordered by (timestamp desc), paginated.
	List(ctx context.Context, tx Tx, userID int64, page, pageSize int) (Page[Snapshot], error)
	// Latest returns the most recent snapshot for a user, or ErrNotFound
	// if the user has none.
	Latest(ctx context.Context, tx Tx, userID int64) (*Snapshot, error)
	// AllOrdered returns every snapshot for a user in ascending timestamp
	// order — used by the archive exporter (spec §4.H).
	AllOrdered(ctx context.Context, tx Tx, userID int64) ([]Snapshot, error)
	// Neighbors returns the snapshot immediately before and after the
	// given one by timestamp (ties broken by id != self), for the editor
	// view (spec §4.E).
	Neighbors(ctx context.Context, tx Tx, userID, id int64, timestamp time.Time) (prev, next *Snapshot, err error)
	UpdateNote(ctx context.Context, tx Tx, userID, id int64, note *string) error
	Delete(ctx context.Context, tx Tx, userID, id int64) error
}

// SnapshotLogRepository is the abstract data-access surface for
// SnapshotLog. Append-only.
type SnapshotLogRepository interface {
	Create(ctx context.Context, tx Tx, l *SnapshotLog) (*SnapshotLog, error)
	List(ctx context.Context, tx Tx, userID int64, page, pageSize int) (Page[SnapshotLog], error)
	// LatestForUser returns the most recent log for a user, or ErrNotFound
	// if none exist — used to compute a task's next_sync floor (spec §3).
	LatestForUser(ctx context.Context, tx Tx, userID int64) (*SnapshotLog, error)
}

// SnapshotTaskRepository is the abstract data-access surface for
// SnapshotTask. At most one row per user.
type SnapshotTaskRepository interface {
	GetByUser(ctx context.Context, tx Tx, userID int64) (*SnapshotTask, error)
	Create(ctx context.Context, tx Tx, t *SnapshotTask) (*SnapshotTask, error)
	Update(ctx context.Context, tx Tx, t *SnapshotTask) error
	Delete(ctx context.Context, tx Tx, userID int64) error
	// SelectDue locks and returns the one Running task whose next_sync has
	// elapsed, ordered by next_sync ascending — the scheduler's lease
	// selection (spec §4.G step 1). Returns ErrNotFound if none are due.
	SelectDue(ctx context.Context, tx Tx, now time.Time) (*SnapshotTask, error)
	// GetForCommit re-selects a task by id with a row lock, filtered to
	// status=Running and the given source, for the scheduler's
	// commit-if-unchanged phase (spec §4.G step 4).
	GetForCommit(ctx context.Context, tx Tx, taskID int64, expectSource Source) (*SnapshotTask, error)
}

// SnapshotShareRepository is the abstract data-access surface for
// SnapshotShare.
type SnapshotShareRepository interface {
	GetBySnapshot(ctx context.Context, tx Tx, userID, snapshotID int64) (*SnapshotShare, error)
	Create(ctx context.Context, tx Tx, s *SnapshotShare) (*SnapshotShare, error)
	GetByToken(ctx context.Context, tx Tx, token string) (*SnapshotShare, error)
}

// Repositories bundles every repository plus the UnitOfWork, the unit
// service constructors depend on.
type Repositories struct {
	UnitOfWork    UnitOfWork
	Users         UserRepository
	Snapshots     SnapshotRepository
	SnapshotLogs  SnapshotLogRepository
	SnapshotTasks SnapshotTaskRepository
	Shares        SnapshotShareRepository
}
