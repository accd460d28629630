package onedrive_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/memolanes/memolanes-server/internal/filestore"
	"github.com/memolanes/memolanes-server/internal/onedrive"
	"github.com/memolanes/memolanes-server/internal/store"
	"github.com/memolanes/memolanes-server/internal/syncfile"
)

// fakeShareServer serves a single "Fog of World/Sync" folder containing one
// file, mirroring the OneDrive share-listing API shape this package talks
// to (spec §4.C, S2's known test vector).
func fakeShareServer(t *testing.T, fileName, sha256Hex string, fileBytes []byte, lockFile *lockFileSpec) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()

	mux.HandleFunc("/shares/", func(w http.ResponseWriter, r *http.Request) {
		children := []map[string]any{
			{
				"id":     "sync-folder-id",
				"name":   "Sync",
				"folder": map[string]any{"childCount": 1},
				"parentReference": map[string]any{
					"driveId": "drive1",
				},
			},
		}

		writeJSON(t, w, map[string]any{
			"name":     "Fog of World",
			"folder":   map[string]any{"childCount": 1},
			"children": map[string]any{"value": children},
		})
	})

	mux.HandleFunc("/drives/drive1/items/sync-folder-id/children", func(w http.ResponseWriter, r *http.Request) {
		var values []map[string]any

		if lockFile != nil {
			values = append(values, map[string]any{
				"name":                 lockFile.name,
				"lastModifiedDateTime": lockFile.modifiedAt.Format(time.RFC3339),
			})
		}

		values = append(values,
			map[string]any{
				"name":   "unexpected-folder",
				"folder": map[string]any{"childCount": 0},
			},
			map[string]any{
				"name": "not-a-valid-sync-filename",
				"file": map[string]any{"hashes": map[string]any{"sha256Hash": "deadbeef"}},
			},
			map[string]any{
				"name":                         fileName,
				"size":                         len(fileBytes),
				"file":                         map[string]any{"hashes": map[string]any{"sha256Hash": sha256Hex}},
				"@microsoft.graph.downloadUrl": fmt.Sprintf("http://%s/download/%s", r.Host, fileName),
			},
		)

		writeJSON(t, w, map[string]any{"value": values})
	})

	mux.HandleFunc("/download/", func(w http.ResponseWriter, r *http.Request) {
		w.Write(fileBytes)
	})

	return httptest.NewServer(mux)
}

type lockFileSpec struct {
	name       string
	modifiedAt time.Time
}

func writeFile(path string, content []byte) error {
	return os.WriteFile(path, content, 0o644)
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Fatalf("encoding fake response: %v", err)
	}
}

func TestSnapshotDownloadsAndPromotesNewFile(t *testing.T) {
	fileName, err := syncfile.Filename(117660)
	require.NoError(t, err)

	content := []byte{0x00}
	sum := sha256.Sum256(content)
	sha := hex.EncodeToString(sum[:])
	require.Equal(t, "6e340b9cffb37a989ca544e6bb780a2c78901d3fb33738768511a30617afa01d", sha)

	srv := fakeShareServer(t, fileName, sha, content, nil)
	defer srv.Close()

	client := onedrive.NewClient(srv.URL, srv.Client(), nil)
	fetcher := onedrive.NewOneDriveFetcher(client, 10*1024*1024, nil)

	dir := t.TempDir()
	fstore, err := filestore.Open(dir, nil)
	require.NoError(t, err)

	source := store.Source{Kind: store.SourceProviderOneDriveShare, ShareURL: "https://1drv.ms/f/s!fake"}

	result, err := fetcher.Snapshot(context.Background(), source, 1, fstore, 10*1024*1024)
	require.NoError(t, err)
	require.Equal(t, map[int]string{117660: sha}, result.SyncFiles)
	require.True(t, fstore.HasFile(1, sha))

	require.Len(t, result.Logs, 2)
}

func TestSnapshotSkipsAlreadyPresentFile(t *testing.T) {
	fileName, err := syncfile.Filename(42)
	require.NoError(t, err)

	content := []byte("hello")
	sum := sha256.Sum256(content)
	sha := hex.EncodeToString(sum[:])

	srv := fakeShareServer(t, fileName, sha, content, nil)
	defer srv.Close()

	client := onedrive.NewClient(srv.URL, srv.Client(), nil)
	fetcher := onedrive.NewOneDriveFetcher(client, 10*1024*1024, nil)

	dir := t.TempDir()
	fstore, err := filestore.Open(dir, nil)
	require.NoError(t, err)

	staging, err := fstore.NewStagingDir()
	require.NoError(t, err)

	stagedPath := staging.Path + "/seed"
	require.NoError(t, writeFile(stagedPath, content))
	require.NoError(t, fstore.AddFiles(1, []filestore.StagedItem{{SHA256: sha, StagedPath: stagedPath}}, 10*1024*1024))

	source := store.Source{Kind: store.SourceProviderOneDriveShare, ShareURL: "https://1drv.ms/f/s!fake"}

	result, err := fetcher.Snapshot(context.Background(), source, 1, fstore, 10*1024*1024)
	require.NoError(t, err)
	require.Equal(t, sha, result.SyncFiles[42])
}

func TestSnapshotReturnsLockedWhenLockFileIsFresh(t *testing.T) {
	fileName, err := syncfile.Filename(1)
	require.NoError(t, err)

	lock := &lockFileSpec{name: "FoW-Sync-Lock", modifiedAt: time.Now().UTC()}

	srv := fakeShareServer(t, fileName, "deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef", []byte("x"), lock)
	defer srv.Close()

	client := onedrive.NewClient(srv.URL, srv.Client(), nil)
	fetcher := onedrive.NewOneDriveFetcher(client, 10*1024*1024, nil)

	dir := t.TempDir()
	fstore, err := filestore.Open(dir, nil)
	require.NoError(t, err)

	source := store.Source{Kind: store.SourceProviderOneDriveShare, ShareURL: "https://1drv.ms/f/s!fake"}

	_, err = fetcher.Snapshot(context.Background(), source, 1, fstore, 10*1024*1024)
	require.ErrorIs(t, err, onedrive.ErrLocked)
}

func TestSnapshotIgnoresStaleLockFile(t *testing.T) {
	fileName, err := syncfile.Filename(1)
	require.NoError(t, err)

	content := []byte("x")
	sum := sha256.Sum256(content)
	sha := hex.EncodeToString(sum[:])

	lock := &lockFileSpec{name: "FoW-Sync-Lock", modifiedAt: time.Now().UTC().Add(-20 * time.Minute)}

	srv := fakeShareServer(t, fileName, sha, content, lock)
	defer srv.Close()

	client := onedrive.NewClient(srv.URL, srv.Client(), nil)
	fetcher := onedrive.NewOneDriveFetcher(client, 10*1024*1024, nil)

	dir := t.TempDir()
	fstore, err := filestore.Open(dir, nil)
	require.NoError(t, err)

	source := store.Source{Kind: store.SourceProviderOneDriveShare, ShareURL: "https://1drv.ms/f/s!fake"}

	result, err := fetcher.Snapshot(context.Background(), source, 1, fstore, 10*1024*1024)
	require.NoError(t, err)
	require.Equal(t, sha, result.SyncFiles[1])
}

func TestPrecheckRejectsWrongRootFolderName(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/shares/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"name": "Not Fog of World", "folder": map[string]any{}})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := onedrive.NewClient(srv.URL, srv.Client(), nil)
	fetcher := onedrive.NewOneDriveFetcher(client, 10*1024*1024, nil)

	source := store.Source{Kind: store.SourceProviderOneDriveShare, ShareURL: "https://1drv.ms/f/s!fake"}

	err := fetcher.Precheck(context.Background(), source)
	require.ErrorIs(t, err, onedrive.ErrInvalidFolderStructure)
}
