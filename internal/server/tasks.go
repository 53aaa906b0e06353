package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nhle/taskminder/internal/auth"
	"github.com/nhle/taskminder/internal/model"
	"github.com/nhle/taskminder/internal/tasks"
)

// currentEmail returns the email set by requireAuth.
func currentEmail(r *http.Request) string {
	u, _ := auth.UserFrom(r.Context())
	return u.Email
}

// writeTaskError maps a tasks error onto a status code.
func (s *Server) writeTaskError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case tasks.IsValidationError(err):
		writeMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, tasks.ErrNotFound):
		writeMessage(w, http.StatusNotFound, "Task not found")
	default:
		s.log.WithError(err).WithField("request_id", middleware.GetReqID(r.Context())).
			Error("task operation failed")
		writeMessage(w, http.StatusInternalServerError, "Server error")
	}
}

// GET /api/tasks/get?status=&q=
func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	list, err := s.tasks.List(r.Context(), currentEmail(r))
	if err != nil {
		s.writeTaskError(w, r, err)
		return
	}

	q := r.URL.Query()
	if status, search := q.Get("status"), q.Get("q"); status != "" || search != "" {
		list = tasks.Filter(list, status, search)
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": list})
}

// POST /api/tasks/create
func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var in model.TaskInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid json")
		return
	}

	task, err := s.tasks.Add(r.Context(), currentEmail(r), in)
	if err != nil {
		s.writeTaskError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

// PUT /api/tasks/update/{id}
func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	var patch model.TaskPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid json")
		return
	}

	task, err := s.tasks.Update(r.Context(), currentEmail(r), chi.URLParam(r, "id"), patch)
	if err != nil {
		s.writeTaskError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// PATCH /api/tasks/toggle/{id}
func (s *Server) handleToggleTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.tasks.Toggle(r.Context(), currentEmail(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeTaskError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// DELETE /api/tasks/del/{id}
func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := s.tasks.Remove(r.Context(), currentEmail(r), chi.URLParam(r, "id")); err != nil {
		s.writeTaskError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Task deleted")
}
