package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/memolanes/memolanes-server/internal/apierr"
)

type createSnapshotRequest struct {
	Timestamp   time.Time `json:"timestamp"`
	UploadToken string    `json:"upload_token"`
	Note        *string   `json:"note,omitempty"`
}

type createSnapshotResponse struct {
	ID        int64    `json:"id"`
	FileCount int      `json:"file_count"`
	Logs      []string `json:"logs"`
}

func (s *Server) handleCreateSnapshot(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	var req createSnapshotRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.logger, apierr.New(apierr.SnapshotIsEmpty, "malformed request body"))
		return
	}

	result, err := s.snapshots.Create(r.Context(), user.ID, req.Timestamp, req.UploadToken, req.Note)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, createSnapshotResponse{
		ID:        result.Snapshot.ID,
		FileCount: result.FileCount,
		Logs:      result.Logs,
	})
}

func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	page := parseIntParam(r, "page", 1)
	pageSize := parseIntParam(r, "page_size", 0)

	result, err := s.snapshots.List(r.Context(), user.ID, page, pageSize)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type updateSnapshotRequest struct {
	Note *string `json:"note,omitempty"`
}

func (s *Server) handleUpdateSnapshot(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, s.logger, apierr.New(apierr.NotFound, "invalid snapshot id"))
		return
	}

	var req updateSnapshotRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.logger, apierr.New(apierr.NoteTooLong, "malformed request body"))
		return
	}

	if err := s.snapshots.Update(r.Context(), user.ID, id, req.Note); err != nil {
		writeError(w, s.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, nil)
}

func (s *Server) handleDeleteSnapshot(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, s.logger, apierr.New(apierr.NotFound, "invalid snapshot id"))
		return
	}

	if err := s.snapshots.Delete(r.Context(), user.ID, id); err != nil {
		writeError(w, s.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, nil)
}

func (s *Server) handleSnapshotDownloadToken(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, s.logger, apierr.New(apierr.NotFound, "invalid snapshot id"))
		return
	}

	token, err := s.snapshots.DownloadToken(r.Context(), user.ID, id)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"download_token": token})
}

func (s *Server) handleSnapshotEditorView(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, s.logger, apierr.New(apierr.NotFound, "invalid snapshot id"))
		return
	}

	view, err := s.snapshots.EditorView(r.Context(), user.ID, id)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleCreateShare(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, s.logger, apierr.New(apierr.NotFound, "invalid snapshot id"))
		return
	}

	share, err := s.snapshots.CreateShare(r.Context(), user.ID, id)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, share)
}

func (s *Server) handleViewShare(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")

	view, err := s.snapshots.ViewShare(r.Context(), token)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

func parseIntParam(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}
