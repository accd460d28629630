package httpapi

import (
	"net/http"

	"github.com/memolanes/memolanes-server/internal/apierr"
	"github.com/memolanes/memolanes-server/internal/store"
	"github.com/memolanes/memolanes-server/internal/tasks"
)

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	task, err := s.tasks.Get(r.Context(), user.ID)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, task)
}

type taskRequestBody struct {
	Status          *store.TaskStatus `json:"status,omitempty"`
	IntervalMinutes *int              `json:"interval_minutes,omitempty"`
	Source          *store.Source     `json:"source,omitempty"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	var req taskRequestBody
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.logger, apierr.New(apierr.InvalidShare, "malformed request body"))
		return
	}

	if req.IntervalMinutes == nil || req.Source == nil {
		writeError(w, s.logger, apierr.New(apierr.InvalidInterval, "interval_minutes and source are required"))
		return
	}

	task, err := s.tasks.Create(r.Context(), user.ID, tasks.CreateInput{
		IntervalMinutes: *req.IntervalMinutes,
		Source:          *req.Source,
	})
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	var req taskRequestBody
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.logger, apierr.New(apierr.InvalidStatus, "malformed request body"))
		return
	}

	task, err := s.tasks.Update(r.Context(), user.ID, tasks.UpdateInput{
		Status:          req.Status,
		IntervalMinutes: req.IntervalMinutes,
		Source:          req.Source,
	})
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	if err := s.tasks.Delete(r.Context(), user.ID); err != nil {
		writeError(w, s.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, nil)
}

func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	page := parseIntParam(r, "page", 1)
	pageSize := parseIntParam(r, "page_size", 0)

	result, err := s.tasks.ListLogs(r.Context(), user.ID, page, pageSize)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
