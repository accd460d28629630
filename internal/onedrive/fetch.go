package onedrive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/memolanes/memolanes-server/internal/filestore"
	"github.com/memolanes/memolanes-server/internal/store"
	"github.com/memolanes/memolanes-server/internal/syncfile"
)

const (
	rootFolderName = "Fog of World"
	syncFolderName = "Sync"
	lockFileName   = "FoW-Sync-Lock"

	// lockStaleness is how old a FoW-Sync-Lock file must be before it is
	// ignored as stale (spec §4.C.4).
	lockStaleness = 15 * time.Minute

	lockRetryAttempts = 3
	lockRetryInterval = 2 * time.Minute

	// downloadWorkers bounds how many staged-file downloads run at once,
	// the same bounded-errgroup shape as transfer.go's dispatchPool, sized
	// down from a sync client's upload/download pools since a snapshot
	// fetch is one short-lived burst rather than a long-running watch.
	downloadWorkers = 4
)

// Result is the outcome of a successful remote fetch: the complete
// id→sha256 map for the user's current sync files (including files
// already present before this run) and the instant the fetch began.
type Result struct {
	SyncFiles map[int]string
	Timestamp time.Time
	Logs      []string
}

// Fetcher is the pluggable remote-source adapter spec §4.C describes.
// OneDriveFetcher is its only implementation today.
type Fetcher interface {
	// Precheck performs the shallow folder-structure check used by task
	// creation/update validation (spec §4.F) without downloading files.
	Precheck(ctx context.Context, source store.Source) error
	// Snapshot runs the full fetch-validate-deduplicate-persist pipeline
	// once. Callers that must tolerate Locked responses use
	// SnapshotWithRetry instead.
	Snapshot(ctx context.Context, source store.Source, userID int64, fstore *filestore.Store, quotaPerUser int64) (Result, error)
}

// OneDriveFetcher implements Fetcher for the store.SourceProviderOneDriveShare
// variant.
type OneDriveFetcher struct {
	client               *Client
	logger               *slog.Logger
	sizeLimitPerSnapshot int64

	// sleepFunc waits between Locked retries. Defaults to timeSleep;
	// tests override it to avoid real delays, the same injectable shape
	// as graph.Client.sleepFunc.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

var _ Fetcher = (*OneDriveFetcher)(nil)

// NewOneDriveFetcher constructs a fetcher backed by client.
func NewOneDriveFetcher(client *Client, sizeLimitPerSnapshot int64, logger *slog.Logger) *OneDriveFetcher {
	if logger == nil {
		logger = slog.Default()
	}

	return &OneDriveFetcher{
		client:               client,
		logger:               logger,
		sizeLimitPerSnapshot: sizeLimitPerSnapshot,
		sleepFunc:            timeSleep,
	}
}

// Precheck resolves the share and requires the "Fog of World"/"Sync"
// folder structure, without listing or downloading sync files.
func (f *OneDriveFetcher) Precheck(ctx context.Context, source store.Source) error {
	_, _, err := f.resolveSyncFolder(ctx, source.ShareURL)
	return err
}

// resolveSyncFolder walks share root → "Fog of World" → "Sync" and
// returns the drive id and item id of the Sync folder for pagination.
func (f *OneDriveFetcher) resolveSyncFolder(ctx context.Context, shareURL string) (driveID, itemID string, err error) {
	token := encodeShareToken(shareURL)

	root, err := f.getItem(ctx, rootChildrenPath(token))
	if err != nil {
		return "", "", err
	}

	if root.Name != rootFolderName || !root.isFolder() {
		return "", "", fmt.Errorf("%w: root folder named %q, want %q", ErrInvalidFolderStructure, root.Name, rootFolderName)
	}

	if root.Children == nil {
		return "", "", fmt.Errorf("%w: root folder has no children", ErrInvalidFolderStructure)
	}

	for _, child := range root.Children.Value {
		if child.Name == syncFolderName && child.isFolder() {
			if child.ParentReference == nil {
				return "", "", fmt.Errorf("%w: sync folder missing drive reference", ErrInvalidFolderStructure)
			}

			return child.ParentReference.DriveID, child.ID, nil
		}
	}

	return "", "", fmt.Errorf("%w: no %q child folder", ErrInvalidFolderStructure, syncFolderName)
}

type accumulatedFile struct {
	id          int
	sha256      string
	size        int64
	downloadURL string
}

// Snapshot runs the fetch-validate-deduplicate-persist pipeline once.
func (f *OneDriveFetcher) Snapshot(
	ctx context.Context, source store.Source, userID int64, fstore *filestore.Store, quotaPerUser int64,
) (Result, error) {
	startedAt := time.Now().UTC()

	driveID, syncFolderID, err := f.resolveSyncFolder(ctx, source.ShareURL)
	if err != nil {
		return Result{}, err
	}

	var (
		logs           []string
		accumulated    []accumulatedFile
		cumulativeSize int64
	)

	path := childrenPath(driveID, syncFolderID)

	for path != "" {
		page, err := f.getChildPage(ctx, path)
		if err != nil {
			return Result{Logs: logs}, err
		}

		for _, child := range page.Value {
			if child.Name == lockFileName && startedAt.Sub(child.LastModifiedDateTime) < lockStaleness {
				return Result{Logs: logs}, ErrLocked
			}

			if child.isFolder() {
				logs = append(logs, fmt.Sprintf("unexpected folder: %s", child.Name))
				continue
			}

			id, err := syncfile.Parse(child.Name)
			if err != nil {
				logs = append(logs, fmt.Sprintf("unexpected file: %s", child.Name))
				continue
			}

			sha := child.File.Hashes.Sha256Hash
			accumulated = append(accumulated, accumulatedFile{id: id, sha256: sha, size: child.Size, downloadURL: child.DownloadURL})
			cumulativeSize += child.Size
		}

		path = relativeNextLink(page.NextLink)
	}

	if cumulativeSize > f.sizeLimitPerSnapshot {
		return Result{Logs: logs}, ErrSizeLimitExceeded
	}

	staged, staging, err := f.stageNewFiles(ctx, fstore, userID, accumulated)
	if staging != nil {
		defer staging.Release()
	}

	if err != nil {
		return Result{Logs: logs}, err
	}

	if len(staged) > 0 {
		if err := fstore.AddFiles(userID, staged, quotaPerUser); err != nil {
			return Result{Logs: logs}, err
		}
	}

	syncFiles := make(map[int]string, len(accumulated))
	for _, a := range accumulated {
		syncFiles[a.id] = a.sha256
	}

	return Result{SyncFiles: syncFiles, Timestamp: startedAt, Logs: logs}, nil
}

// SnapshotWithRetry is the outer retry wrapper spec §4.C describes: up to
// 3 attempts, sleeping 2 minutes between attempts, on a Locked response.
func (f *OneDriveFetcher) SnapshotWithRetry(
	ctx context.Context, source store.Source, userID int64, fstore *filestore.Store, quotaPerUser int64,
) (Result, error) {
	var (
		lastErr    error
		lastResult Result
	)

	for attempt := 1; attempt <= lockRetryAttempts; attempt++ {
		result, err := f.Snapshot(ctx, source, userID, fstore, quotaPerUser)
		if err == nil {
			return result, nil
		}

		if !errors.Is(err, ErrLocked) {
			return result, err
		}

		lastErr = err
		lastResult = result

		if attempt == lockRetryAttempts {
			break
		}

		f.logger.Warn("sync folder locked, retrying",
			slog.Int64("user_id", userID),
			slog.Int("attempt", attempt),
		)

		if sleepErr := f.sleepFunc(ctx, lockRetryInterval); sleepErr != nil {
			return lastResult, sleepErr
		}
	}

	f.logger.Error("Still locked, failed to sync.", slog.Int64("user_id", userID))

	return lastResult, lastErr
}

// stageNewFiles downloads every accumulated file not already present in
// fstore into a fresh staging directory, re-verifying nothing here — hash
// re-verification happens in filestore.AddFiles (spec §4.C's "hash trust"
// rule: the listing hash only drives deduplication).
func (f *OneDriveFetcher) stageNewFiles(
	ctx context.Context, fstore *filestore.Store, userID int64, accumulated []accumulatedFile,
) ([]filestore.StagedItem, *filestore.StagingDir, error) {
	var toDownload []accumulatedFile

	for _, a := range accumulated {
		if !fstore.HasFile(userID, a.sha256) {
			toDownload = append(toDownload, a)
		}
	}

	if len(toDownload) == 0 {
		return nil, nil, nil
	}

	staging, err := fstore.NewStagingDir()
	if err != nil {
		return nil, nil, fmt.Errorf("onedrive: creating staging dir: %w", err)
	}

	staged := make([]filestore.StagedItem, len(toDownload))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(downloadWorkers)

	for i, a := range toDownload {
		i, a := i, a

		g.Go(func() error {
			stagedPath := staging.Path + "/" + strconv.Itoa(a.id)

			if err := f.downloadToFile(gctx, a.downloadURL, stagedPath); err != nil {
				return err
			}

			staged[i] = filestore.StagedItem{SHA256: a.sha256, StagedPath: stagedPath}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, staging, err
	}

	return staged, staging, nil
}

func (f *OneDriveFetcher) downloadToFile(ctx context.Context, downloadURL, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return fmt.Errorf("onedrive: creating download request: %w", err)
	}

	resp, err := f.client.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("onedrive: downloading file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("onedrive: downloading file: HTTP %d", resp.StatusCode)
	}

	out, err := createFile(destPath)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("onedrive: writing staged file: %w", err)
	}

	return nil
}

func createFile(path string) (*os.File, error) {
	out, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("onedrive: creating staged file: %w", err)
	}

	return out, nil
}

func (f *OneDriveFetcher) getItem(ctx context.Context, path string) (driveItem, error) {
	resp, err := f.client.get(ctx, path)
	if err != nil {
		return driveItem{}, err
	}
	defer resp.Body.Close()

	var item driveItem
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return driveItem{}, fmt.Errorf("onedrive: decoding item: %w", err)
	}

	return item, nil
}

func (f *OneDriveFetcher) getChildPage(ctx context.Context, path string) (childPage, error) {
	resp, err := f.client.get(ctx, path)
	if err != nil {
		return childPage{}, err
	}
	defer resp.Body.Close()

	var page childPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return childPage{}, fmt.Errorf("onedrive: decoding child page: %w", err)
	}

	return page, nil
}

// relativeNextLink strips the client's base URL prefix from a full
// "@odata.nextLink" so it can be re-passed to Client.get, which always
// prepends baseURL.
func relativeNextLink(nextLink string) string {
	if nextLink == "" {
		return ""
	}

	for _, prefix := range []string{DefaultBaseURL} {
		if len(nextLink) > len(prefix) && nextLink[:len(prefix)] == prefix {
			return nextLink[len(prefix):]
		}
	}

	return nextLink
}
