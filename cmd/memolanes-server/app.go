package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/memolanes/memolanes-server/internal/archive"
	"github.com/memolanes/memolanes-server/internal/auth"
	"github.com/memolanes/memolanes-server/internal/config"
	"github.com/memolanes/memolanes-server/internal/filestore"
	"github.com/memolanes/memolanes-server/internal/httpapi"
	"github.com/memolanes/memolanes-server/internal/idp"
	"github.com/memolanes/memolanes-server/internal/mapengine"
	"github.com/memolanes/memolanes-server/internal/onedrive"
	"github.com/memolanes/memolanes-server/internal/scheduler"
	"github.com/memolanes/memolanes-server/internal/snapshot"
	"github.com/memolanes/memolanes-server/internal/sqlitestore"
	"github.com/memolanes/memolanes-server/internal/tasks"
	"github.com/memolanes/memolanes-server/internal/tokenstore"
)

// remoteFetchTimeout bounds a single OneDrive listing call the way the
// teacher's httpClientTimeout bounds CLI metadata requests.
const remoteFetchTimeout = 30 * time.Second

// uploadTokenTTL/downloadTokenTTL are how long spec §4.D's one-shot
// tokens stay redeemable before expiring unused.
const (
	uploadTokenTTL   = 15 * time.Minute
	downloadTokenTTL = 15 * time.Minute
)

// sizeLimitPerSnapshot bounds a single scheduled fetch's total byte count
// (spec §4.C), independent of the per-user quota enforced at write time.
const sizeLimitPerSnapshot = 2 * 1024 * 1024 * 1024

// shutdownGrace is how long serve waits for in-flight HTTP requests to
// finish after the first SIGINT/SIGTERM before the context passed to
// http.Server.Shutdown expires.
const shutdownGrace = 10 * time.Second

// app bundles every long-lived collaborator the subcommands need, built
// once from resolved configuration — the same role as a CLI's per-command
// CLIContext, generalized to a single process-lifetime value.
type app struct {
	cfg    *config.Holder
	logger *slog.Logger

	db    *sqlitestore.DB
	files *filestore.Store

	snapshots *snapshot.Service
	tasks     *tasks.Service
	archiver  *archive.Exporter
	scheduler *scheduler.Scheduler
	auth      *auth.Service
	idp       idp.Provider

	uploadedItems *tokenstore.TTLMap[[]byte]
	downloadItems *tokenstore.TTLMap[tokenstore.DownloadIntent]
}

func buildApp(ctx context.Context, bootstrapPath string) (*app, error) {
	cfg, err := config.Resolve(bootstrapPath)
	if err != nil {
		return nil, fmt.Errorf("resolving configuration: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	db, err := sqlitestore.Open(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	files, err := filestore.Open(cfg.DataBaseDir, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("opening file store: %w", err)
	}

	repos := db.Repositories()

	httpClient := &http.Client{Timeout: remoteFetchTimeout}
	fetcher := onedrive.NewOneDriveFetcher(onedrive.NewClient(onedrive.DefaultBaseURL, httpClient, logger), sizeLimitPerSnapshot, logger)

	uploadedItems := tokenstore.New[[]byte](uploadTokenTTL)
	downloadItems := tokenstore.New[tokenstore.DownloadIntent](downloadTokenTTL)

	a := &app{
		cfg:    config.NewHolder(cfg),
		logger: logger,
		db:     db,
		files:  files,

		snapshots: snapshot.NewService(repos, files, uploadedItems, downloadItems, cfg.QuotaPerUserBytes),
		tasks:     tasks.NewService(repos, fetcher),
		archiver:  archive.NewExporter(repos, files, mapengine.NewEngine()),
		scheduler: scheduler.New(repos, files, fetcher, cfg.QuotaPerUserBytes, logger),
		auth:      auth.NewService([]byte(cfg.JWTSecret), repos, cfg.SingleUserNoAuthMode),
		idp:       idp.NewGitHubProvider(cfg.GitHubClientID, cfg.GitHubClientSecret, cfg.GitHubRedirectURL, logger),

		uploadedItems: uploadedItems,
		downloadItems: downloadItems,
	}

	return a, nil
}

func (a *app) close() {
	a.db.Close()
}

func (a *app) httpServer() *http.Server {
	cfg := a.cfg.Config()

	router := httpapi.NewServer(httpapi.Deps{
		Logger:             a.logger,
		Snapshots:          a.snapshots,
		Tasks:              a.tasks,
		Archiver:           a.archiver,
		Auth:               a.auth,
		IDP:                a.idp,
		UploadedItems:      a.uploadedItems,
		DownloadItems:      a.downloadItems,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	}).NewRouter()

	return &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}
}
