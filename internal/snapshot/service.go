// Package snapshot implements the snapshot service (spec component E):
// listing, direct-upload creation, note updates, deletion, and the
// editor view. Layered the way internal/sync.Engine sits on top of
// internal/graph.Client and internal/store's repositories: a service
// struct holding repositories and collaborators, methods returning
// domain errors the HTTP layer classifies via internal/apierr.
package snapshot

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/memolanes/memolanes-server/internal/apierr"
	"github.com/memolanes/memolanes-server/internal/filestore"
	"github.com/memolanes/memolanes-server/internal/store"
	"github.com/memolanes/memolanes-server/internal/syncfile"
	"github.com/memolanes/memolanes-server/internal/tokenstore"
)

const (
	defaultPageSize = 10
	maxPageSize     = 200
	maxNoteLen      = 256
	clockSkewTolerance = 10 * time.Second

	// syncDirMarker is the path segment spec §4.E.4 looks for to decide
	// whether an uploaded archive is rooted at a "sync/" directory.
	syncDirMarker = "sync/"
)

// Service implements the snapshot operations of spec §4.E.
type Service struct {
	repos         store.Repositories
	files         *filestore.Store
	uploadedItems *tokenstore.TTLMap[[]byte]
	downloadItems *tokenstore.TTLMap[tokenstore.DownloadIntent]
	quotaPerUser  int64
}

// NewService constructs a Service. uploadedItems and downloadItems are
// shared with the HTTP layer's upload/download endpoints (spec §4.D).
func NewService(
	repos store.Repositories,
	files *filestore.Store,
	uploadedItems *tokenstore.TTLMap[[]byte],
	downloadItems *tokenstore.TTLMap[tokenstore.DownloadIntent],
	quotaPerUser int64,
) *Service {
	return &Service{
		repos:         repos,
		files:         files,
		uploadedItems: uploadedItems,
		downloadItems: downloadItems,
		quotaPerUser:  quotaPerUser,
	}
}

// CreateResult is the response body for a successful upload-path create
// (spec §6: `{id, file_count, logs}`).
type CreateResult struct {
	Snapshot  *store.Snapshot
	FileCount int
	Logs      []string
}

// List returns a page of the user's snapshots ordered by timestamp desc.
// page_size is clamped to [1, maxPageSize]; zero defaults to 10.
func (s *Service) List(ctx context.Context, userID int64, page, pageSize int) (store.Page[store.Snapshot], error) {
	if page < 1 {
		page = 1
	}

	switch {
	case pageSize <= 0:
		pageSize = defaultPageSize
	case pageSize > maxPageSize:
		pageSize = maxPageSize
	}

	tx, err := s.repos.UnitOfWork.BeginImmediate(ctx)
	if err != nil {
		return store.Page[store.Snapshot]{}, apierr.Internal(err)
	}
	defer tx.Rollback()

	result, err := s.repos.Snapshots.List(ctx, tx, userID, page, pageSize)
	if err != nil {
		return store.Page[store.Snapshot]{}, apierr.Internal(err)
	}

	return result, tx.Commit()
}

// Create runs the direct-upload path: validates the timestamp and note,
// consumes the one-shot upload token, parses the uploaded bytes as a ZIP
// archive, stages and promotes every recognized sync file, and persists a
// new DirectUpload snapshot.
func (s *Service) Create(ctx context.Context, userID int64, timestamp time.Time, uploadToken string, note *string) (*CreateResult, error) {
	if timestamp.After(time.Now().Add(clockSkewTolerance)) {
		return nil, apierr.New(apierr.TimestampIsInFuture, "timestamp is more than 10s in the future")
	}

	if note != nil && len(*note) > maxNoteLen {
		return nil, apierr.New(apierr.NoteTooLong, fmt.Sprintf("note exceeds %d characters", maxNoteLen))
	}

	raw, ok := s.uploadedItems.Take(uploadToken)
	if !ok {
		return nil, apierr.New(apierr.InvalidUploadToken, "upload token unknown or expired")
	}

	syncFiles, fileCount, logs, err := s.stageUploadedArchive(userID, raw)
	if err != nil {
		return nil, err
	}

	if len(syncFiles) == 0 {
		return nil, apierr.New(apierr.SnapshotIsEmpty, "archive contained no recognized sync files")
	}

	tx, err := s.repos.UnitOfWork.BeginImmediate(ctx)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	defer tx.Rollback()

	created, err := s.repos.Snapshots.Create(ctx, tx, &store.Snapshot{
		UserID:     userID,
		Timestamp:  timestamp,
		SourceKind: store.SourceDirectUpload,
		SyncFiles:  syncFiles,
	})
	if err != nil {
		return nil, apierr.Internal(err)
	}

	if _, err := s.repos.SnapshotLogs.Create(ctx, tx, &store.SnapshotLog{
		UserID:     userID,
		SnapshotID: &created.ID,
		Timestamp:  timestamp,
		Success:    true,
		Detail:     strings.Join(logs, "\n"),
	}); err != nil {
		return nil, apierr.Internal(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apierr.Internal(err)
	}

	return &CreateResult{Snapshot: created, FileCount: fileCount, Logs: logs}, nil
}

// stageUploadedArchive parses raw as a ZIP, recognizes sync-file entries,
// streams each one's SHA-256 while staging it, and promotes the new ones
// into the user's permanent store. Returns the complete id→sha256 map
// (including files already present) and the logs for unrecognized entries.
func (s *Service) stageUploadedArchive(userID int64, raw []byte) (map[int]string, int, []string, error) {
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, 0, nil, apierr.New(apierr.SnapshotIsEmpty, "uploaded bytes are not a valid zip archive")
	}

	rooted := false

	for _, f := range zr.File {
		if strings.Contains(strings.ToLower(f.Name), syncDirMarker) {
			rooted = true
			break
		}
	}

	staging, err := s.files.NewStagingDir()
	if err != nil {
		return nil, 0, nil, apierr.Internal(err)
	}
	defer staging.Release()

	var (
		logs      []string
		staged    []filestore.StagedItem
		syncFiles = make(map[int]string)
	)

	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}

		name, ok := entryName(f.Name, rooted)
		if !ok {
			continue
		}

		id, err := syncfile.Parse(path.Base(name))
		if err != nil {
			logs = append(logs, fmt.Sprintf("unexpected file: %s", f.Name))
			continue
		}

		sha, err := stageEntry(f, staging.Path, id)
		if err != nil {
			return nil, 0, nil, apierr.Internal(err)
		}

		syncFiles[id] = sha

		if !s.files.HasFile(userID, sha) {
			staged = append(staged, filestore.StagedItem{
				SHA256:     sha,
				StagedPath: stagedEntryPath(staging.Path, id),
			})
		}
	}

	if len(staged) > 0 {
		if err := s.files.AddFiles(userID, staged, s.quotaPerUser); err != nil {
			return nil, 0, nil, classifyFilestoreError(err)
		}
	}

	return syncFiles, len(syncFiles), logs, nil
}

// entryName resolves a zip entry's effective name given whether the
// archive is rooted at a "sync/" directory (spec §4.E.4): entries outside
// that directory are excluded when rooted is true.
func entryName(rawName string, rooted bool) (string, bool) {
	if !rooted {
		return rawName, true
	}

	idx := strings.LastIndex(strings.ToLower(rawName), syncDirMarker)
	if idx < 0 {
		return "", false
	}

	return rawName[idx+len(syncDirMarker):], true
}

func stagedEntryPath(stagingDir string, id int) string {
	return stagingDir + "/" + strconv.Itoa(id)
}

// stageEntry streams a zip entry into the staging directory while
// computing its SHA-256 in the same pass, the io.MultiWriter(f, h) shape
// internal/sync/executor_transfer.go uses for QuickXorHash, generalized
// from a local file to a zip entry reader.
func stageEntry(f *zip.File, stagingDir string, id int) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("snapshot: opening zip entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.Create(stagedEntryPath(stagingDir, id))
	if err != nil {
		return "", fmt.Errorf("snapshot: creating staged file for entry %s: %w", f.Name, err)
	}
	defer out.Close()

	h := sha256.New()
	w := io.MultiWriter(out, h)

	if _, err := io.Copy(w, rc); err != nil {
		return "", fmt.Errorf("snapshot: staging zip entry %s: %w", f.Name, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// classifyFilestoreError turns a filestore error into the matching
// apierr.Error, so quota failures surface to the client as a 400 (spec §7,
// S3) instead of collapsing into a generic internal error.
func classifyFilestoreError(err error) error {
	if errors.Is(err, filestore.ErrQuotaExceeded) {
		return apierr.New(apierr.QuotaExceeded, err.Error())
	}

	return apierr.Internal(err)
}
