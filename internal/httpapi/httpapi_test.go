package httpapi_test

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/stretchr/testify/require"

	"github.com/memolanes/memolanes-server/internal/archive"
	"github.com/memolanes/memolanes-server/internal/auth"
	"github.com/memolanes/memolanes-server/internal/filestore"
	"github.com/memolanes/memolanes-server/internal/httpapi"
	"github.com/memolanes/memolanes-server/internal/idp"
	"github.com/memolanes/memolanes-server/internal/mapengine"
	"github.com/memolanes/memolanes-server/internal/onedrive"
	"github.com/memolanes/memolanes-server/internal/snapshot"
	"github.com/memolanes/memolanes-server/internal/sqlitestore"
	"github.com/memolanes/memolanes-server/internal/store"
	"github.com/memolanes/memolanes-server/internal/tasks"
	"github.com/memolanes/memolanes-server/internal/tokenstore"
)

// noopFetcher satisfies onedrive.Fetcher for tests that never reach the
// scheduled-sync path.
type noopFetcher struct{}

func (noopFetcher) Precheck(ctx context.Context, source store.Source) error { return nil }

func (noopFetcher) Snapshot(ctx context.Context, source store.Source, userID int64, fstore *filestore.Store, quotaPerUser int64) (onedrive.Result, error) {
	return onedrive.Result{}, nil
}

var _ onedrive.Fetcher = noopFetcher{}

func mustTestServer(t *testing.T) (http.Handler, *auth.Service, store.Repositories) {
	t.Helper()

	db, err := sqlitestore.Open(context.Background(), ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repos := db.Repositories()

	files, err := filestore.Open(t.TempDir(), nil)
	require.NoError(t, err)

	uploaded := tokenstore.New[[]byte](time.Hour)
	downloads := tokenstore.New[tokenstore.DownloadIntent](time.Hour)

	snapshots := snapshot.NewService(repos, files, uploaded, downloads, 1<<30)
	archiver := archive.NewExporter(repos, files, mapengine.NewEngine())
	authSvc := auth.NewService([]byte("test-secret"), repos, false)

	provider := idp.NewGitHubProviderWithEndpoint(
		"client-id", "client-secret", "http://localhost/callback",
		oauth2.Endpoint{AuthURL: "http://localhost/authorize", TokenURL: "http://localhost/token"},
		"http://localhost", slog.Default(),
	)

	server := httpapi.NewServer(httpapi.Deps{
		Logger:             slog.Default(),
		Snapshots:          snapshots,
		Tasks:              tasks.NewService(repos, noopFetcher{}),
		Archiver:           archiver,
		Auth:               authSvc,
		IDP:                provider,
		UploadedItems:      uploaded,
		DownloadItems:      downloads,
		CORSAllowedOrigins: []string{"*"},
	})

	return server.NewRouter(), authSvc, repos
}

func authHeader(t *testing.T, authSvc *auth.Service, repos store.Repositories, userID int64) string {
	t.Helper()

	tx, err := repos.UnitOfWork.BeginImmediate(context.Background())
	require.NoError(t, err)
	_, err = repos.Users.EnsureByID(context.Background(), tx, &store.User{
		ID: userID, ContactEmail: "a@example.com", OAuthProvider: "none", Language: "en",
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	token, err := authSvc.IssueToken(userID)
	require.NoError(t, err)

	return "Bearer " + token
}

func TestUploadThenCreateSnapshotRoundTrips(t *testing.T) {
	router, authSvc, repos := mustTestServer(t)
	bearer := authHeader(t, authSvc, repos, 1)

	var zipBuf bytes.Buffer
	zw := zip.NewWriter(&zipBuf)
	fw, err := zw.Create("sync/0_abcdefghijklmnopqrstuvwxyz012345")
	require.NoError(t, err)
	_, err = fw.Write([]byte("journey bytes"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	uploadReq := httptest.NewRequest(http.MethodPost, "/misc/upload", bytes.NewReader(zipBuf.Bytes()))
	uploadReq.Header.Set("Authorization", bearer)
	uploadRec := httptest.NewRecorder()
	router.ServeHTTP(uploadRec, uploadReq)
	require.Equal(t, http.StatusOK, uploadRec.Code)

	var uploadResp map[string]string
	require.NoError(t, json.Unmarshal(uploadRec.Body.Bytes(), &uploadResp))
	require.NotEmpty(t, uploadResp["upload_token"])

	createBody, err := json.Marshal(map[string]any{
		"timestamp":    time.Now().Format(time.RFC3339),
		"upload_token": uploadResp["upload_token"],
	})
	require.NoError(t, err)

	createReq := httptest.NewRequest(http.MethodPost, "/snapshot", bytes.NewReader(createBody))
	createReq.Header.Set("Authorization", bearer)
	createRec := httptest.NewRecorder()
	router.ServeHTTP(createRec, createReq)
	require.Equal(t, http.StatusOK, createRec.Code, createRec.Body.String())
}

func TestListSnapshotsRequiresBearerToken(t *testing.T) {
	router, _, _ := mustTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/snapshot", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSnapshotTaskCRUDFlow(t *testing.T) {
	router, authSvc, repos := mustTestServer(t)
	bearer := authHeader(t, authSvc, repos, 2)

	body, err := json.Marshal(map[string]any{
		"interval_minutes": 360,
		"source":           map[string]string{"kind": "onedrive_share", "share_url": "https://1drv.ms/f/s!x"},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/snapshot_task", bytes.NewReader(body))
	req.Header.Set("Authorization", bearer)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	getReq := httptest.NewRequest(http.MethodGet, "/snapshot_task", nil)
	getReq.Header.Set("Authorization", bearer)
	getRec := httptest.NewRecorder()
	router.ServeHTTP(getRec, getReq)
	require.Equal(t, http.StatusOK, getRec.Code)
}

func TestArchiveDownloadTokenFlow(t *testing.T) {
	router, authSvc, repos := mustTestServer(t)
	bearer := authHeader(t, authSvc, repos, 3)

	req := httptest.NewRequest(http.MethodGet, "/memolanes_archive/download_token?timezone=UTC", nil)
	req.Header.Set("Authorization", bearer)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["download_token"])

	dlReq := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/misc/download?token=%s", resp["download_token"]), nil)
	dlReq.Header.Set("Authorization", bearer)
	dlRec := httptest.NewRecorder()
	router.ServeHTTP(dlRec, dlReq)
	require.Equal(t, http.StatusOK, dlRec.Code)
	require.Equal(t, "application/octet-stream", dlRec.Header().Get("Content-Type"))
}
