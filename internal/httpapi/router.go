package httpapi

import "net/http"

// NewRouter assembles the mux for every endpoint spec §6 names. Every
// route is bearer-authenticated except the GitHub SSO entry points and
// the public share view, per spec §6's "unless noted" carve-outs.
func (s *Server) NewRouter() http.Handler {
	mux := http.NewServeMux()

	authed := func(h http.HandlerFunc) http.HandlerFunc {
		return withAuth(s.auth, s.logger, h)
	}

	mux.HandleFunc("GET /snapshot", authed(s.handleListSnapshots))
	mux.HandleFunc("POST /snapshot", authed(s.handleCreateSnapshot))
	mux.HandleFunc("POST /snapshot/{id}", authed(s.handleUpdateSnapshot))
	mux.HandleFunc("DELETE /snapshot/{id}", authed(s.handleDeleteSnapshot))
	mux.HandleFunc("GET /snapshot/{id}/download_token", authed(s.handleSnapshotDownloadToken))
	mux.HandleFunc("GET /snapshot/{id}/editor_view", authed(s.handleSnapshotEditorView))
	mux.HandleFunc("GET /snapshot/{id}/share", authed(s.handleCreateShare))

	mux.HandleFunc("GET /share/{token}", s.handleViewShare)

	mux.HandleFunc("GET /snapshot_task", authed(s.handleGetTask))
	mux.HandleFunc("POST /snapshot_task", authed(s.handleCreateTask))
	mux.HandleFunc("PATCH /snapshot_task", authed(s.handleUpdateTask))
	mux.HandleFunc("DELETE /snapshot_task", authed(s.handleDeleteTask))

	mux.HandleFunc("GET /snapshot_log", authed(s.handleListLogs))

	mux.HandleFunc("POST /misc/upload", authed(s.handleUpload))
	mux.HandleFunc("GET /misc/download", authed(s.handleDownload))

	mux.HandleFunc("GET /memolanes_archive/download_token", authed(s.handleArchiveDownloadToken))

	mux.HandleFunc("GET /user", authed(s.handleGetUser))
	mux.HandleFunc("GET /user/sso/github", s.handleGitHubLoginStart)
	mux.HandleFunc("GET /user/sso/github/callback", s.handleGitHubLoginCallback)

	return withLogging(s.logger, withCORS(s.corsAllowedOrigins, mux))
}
