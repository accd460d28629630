package httpapi

import (
	"log/slog"

	"github.com/memolanes/memolanes-server/internal/archive"
	"github.com/memolanes/memolanes-server/internal/auth"
	"github.com/memolanes/memolanes-server/internal/idp"
	"github.com/memolanes/memolanes-server/internal/snapshot"
	"github.com/memolanes/memolanes-server/internal/tasks"
	"github.com/memolanes/memolanes-server/internal/tokenstore"
)

// Server holds the collaborators every handler needs. It has no state of
// its own beyond these references — all mutable state lives in the
// services and stores it wraps, the same shape as graph.Client holding
// an http.Client and a TokenSource rather than request state.
type Server struct {
	logger *slog.Logger

	snapshots *snapshot.Service
	tasks     *tasks.Service
	archiver  *archive.Exporter
	auth      *auth.Service
	idp       idp.Provider

	uploadedItems *tokenstore.TTLMap[[]byte]
	downloadItems *tokenstore.TTLMap[tokenstore.DownloadIntent]

	corsAllowedOrigins []string
}

// Deps bundles the collaborators NewServer wires into handlers.
type Deps struct {
	Logger             *slog.Logger
	Snapshots          *snapshot.Service
	Tasks              *tasks.Service
	Archiver           *archive.Exporter
	Auth               *auth.Service
	IDP                idp.Provider
	UploadedItems      *tokenstore.TTLMap[[]byte]
	DownloadItems      *tokenstore.TTLMap[tokenstore.DownloadIntent]
	CORSAllowedOrigins []string
}

// NewServer constructs a Server from its dependencies.
func NewServer(d Deps) *Server {
	return &Server{
		logger:             d.Logger,
		snapshots:          d.Snapshots,
		tasks:              d.Tasks,
		archiver:           d.Archiver,
		auth:               d.Auth,
		idp:                d.IDP,
		uploadedItems:      d.UploadedItems,
		downloadItems:      d.DownloadItems,
		corsAllowedOrigins: d.CORSAllowedOrigins,
	}
}
