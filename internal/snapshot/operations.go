package snapshot

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/memolanes/memolanes-server/internal/apierr"
	"github.com/memolanes/memolanes-server/internal/store"
	"github.com/memolanes/memolanes-server/internal/tokenstore"
)

// Update edits a snapshot's note only (spec §4.E Update), under a row
// lock.
func (s *Service) Update(ctx context.Context, userID, snapshotID int64, note *string) error {
	if note != nil && len(*note) > maxNoteLen {
		return apierr.New(apierr.NoteTooLong, "note exceeds 256 characters")
	}

	tx, err := s.repos.UnitOfWork.BeginImmediate(ctx)
	if err != nil {
		return apierr.Internal(err)
	}
	defer tx.Rollback()

	if _, err := s.repos.Snapshots.Get(ctx, tx, userID, snapshotID); err != nil {
		return translateNotFound(err)
	}

	if err := s.repos.Snapshots.UpdateNote(ctx, tx, userID, snapshotID, note); err != nil {
		return apierr.Internal(err)
	}

	return tx.Commit()
}

// Delete removes a snapshot row under an exclusive row lock. Files remain
// in the content-addressed store — no reference counting (spec §4.E).
func (s *Service) Delete(ctx context.Context, userID, snapshotID int64) error {
	tx, err := s.repos.UnitOfWork.BeginImmediate(ctx)
	if err != nil {
		return apierr.Internal(err)
	}
	defer tx.Rollback()

	if err := s.repos.Snapshots.Delete(ctx, tx, userID, snapshotID); err != nil {
		return translateNotFound(err)
	}

	return tx.Commit()
}

// EditorView is the response to GET /snapshot/<id>/editor_view: the
// snapshot plus its timestamp-adjacent neighbors and a one-shot download
// token for its ZIP.
type EditorView struct {
	Snapshot      *store.Snapshot
	Previous      *store.Snapshot
	Next          *store.Snapshot
	DownloadToken string
}

// EditorView implements spec §4.E's Editor view operation.
func (s *Service) EditorView(ctx context.Context, userID, snapshotID int64) (*EditorView, error) {
	tx, err := s.repos.UnitOfWork.BeginImmediate(ctx)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	defer tx.Rollback()

	snap, err := s.repos.Snapshots.Get(ctx, tx, userID, snapshotID)
	if err != nil {
		return nil, translateNotFound(err)
	}

	prev, next, err := s.repos.Snapshots.Neighbors(ctx, tx, userID, snapshotID, snap.Timestamp)
	if err != nil {
		return nil, apierr.Internal(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apierr.Internal(err)
	}

	token, err := s.downloadItems.Put(tokenstore.DownloadIntent{SnapshotID: snap.ID})
	if err != nil {
		return nil, apierr.Internal(err)
	}

	return &EditorView{Snapshot: snap, Previous: prev, Next: next, DownloadToken: token}, nil
}

// DownloadToken issues a one-shot token for a snapshot's ZIP export,
// independent of EditorView — used by GET /snapshot/<id>/download_token.
func (s *Service) DownloadToken(ctx context.Context, userID, snapshotID int64) (string, error) {
	tx, err := s.repos.UnitOfWork.BeginImmediate(ctx)
	if err != nil {
		return "", apierr.Internal(err)
	}
	defer tx.Rollback()

	snap, err := s.repos.Snapshots.Get(ctx, tx, userID, snapshotID)
	if err != nil {
		return "", translateNotFound(err)
	}

	if err := tx.Commit(); err != nil {
		return "", apierr.Internal(err)
	}

	token, err := s.downloadItems.Put(tokenstore.DownloadIntent{SnapshotID: snap.ID})
	if err != nil {
		return "", apierr.Internal(err)
	}

	return token, nil
}

// ExportZIP materializes a previously-issued download token into ZIP
// bytes of the snapshot's sync files, consuming the token. Used by the
// GET /misc/download handler.
func (s *Service) ExportZIP(ctx context.Context, userID int64, token string) ([]byte, error) {
	intent, ok := s.downloadItems.Take(token)
	if !ok {
		return nil, apierr.New(apierr.InvalidDownloadToken, "download token unknown or expired")
	}

	tx, err := s.repos.UnitOfWork.BeginImmediate(ctx)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	defer tx.Rollback()

	snap, err := s.repos.Snapshots.Get(ctx, tx, userID, intent.SnapshotID)
	if err != nil {
		return nil, translateNotFound(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apierr.Internal(err)
	}

	return s.buildSyncFilesZIP(snap.SyncFiles, userID)
}

// CreateShare mints a public, token-keyed read-only grant to a snapshot's
// editor view (supplemented entity, SPEC_FULL.md §3), reusing an existing
// grant if one already exists for this snapshot.
func (s *Service) CreateShare(ctx context.Context, userID, snapshotID int64) (*store.SnapshotShare, error) {
	tx, err := s.repos.UnitOfWork.BeginImmediate(ctx)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	defer tx.Rollback()

	if _, err := s.repos.Snapshots.Get(ctx, tx, userID, snapshotID); err != nil {
		return nil, translateNotFound(err)
	}

	existing, err := s.repos.Shares.GetBySnapshot(ctx, tx, userID, snapshotID)
	switch {
	case err == nil:
		return existing, tx.Commit()
	case errors.Is(err, store.ErrNotFound):
		// fall through to create
	default:
		return nil, apierr.Internal(err)
	}

	// Share tokens live in the database indefinitely rather than in a
	// TTLMap, so they're minted as UUIDs instead of the short alphabet
	// tokenstore uses for its ephemeral upload/download tokens.
	share, err := s.repos.Shares.Create(ctx, tx, &store.SnapshotShare{
		UserID:     userID,
		SnapshotID: snapshotID,
		Token:      uuid.NewString(),
	})
	if err != nil {
		return nil, apierr.Internal(err)
	}

	return share, tx.Commit()
}

// ViewShare resolves a public share token to its editor view (no auth
// required, GET /share/<token>).
func (s *Service) ViewShare(ctx context.Context, token string) (*EditorView, error) {
	tx, err := s.repos.UnitOfWork.BeginImmediate(ctx)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	defer tx.Rollback()

	share, err := s.repos.Shares.GetByToken(ctx, tx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apierr.New(apierr.InvalidShareToken, "share token unknown")
		}

		return nil, apierr.Internal(err)
	}

	snap, err := s.repos.Snapshots.Get(ctx, tx, share.UserID, share.SnapshotID)
	if err != nil {
		return nil, translateNotFound(err)
	}

	prev, next, err := s.repos.Snapshots.Neighbors(ctx, tx, share.UserID, snap.ID, snap.Timestamp)
	if err != nil {
		return nil, apierr.Internal(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apierr.Internal(err)
	}

	return &EditorView{Snapshot: snap, Previous: prev, Next: next}, nil
}

// translateNotFound maps a repository ErrNotFound into the HTTP-layer's
// generic NotFound code (spec §7's NotFound taxonomy entry), wrapping
// anything else as internal.
func translateNotFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return apierr.New(apierr.NotFound, "entity not found")
	}

	return apierr.Internal(err)
}
