// Package httpapi provides the broker's HTTP surface: session listing and
// inspection endpoints alongside the WebSocket upgrade route.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ashureev/relaybroker/internal/domain"
	"github.com/ashureev/relaybroker/internal/sessionstore"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Handler serves the session read surface backed by a sessionstore.Store.
type Handler struct {
	store sessionstore.Store
}

// NewHandler creates a Handler over store.
func NewHandler(store sessionstore.Store) *Handler {
	return &Handler{store: store}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// RegisterRoutes mounts the session routes under r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", h.ListSessions)
		r.Get("/{id}", h.GetSession)
		r.Get("/{id}/output", h.GetSessionOutput)
	})
}

// ListSessions handles GET /sessions, optionally filtered by status and
// working_dir query parameters.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	var filter domain.Filter

	if raw := r.URL.Query().Get("status"); raw != "" {
		status := domain.Status(raw)
		filter.Status = &status
	}
	if dir := r.URL.Query().Get("working_dir"); dir != "" {
		filter.WorkingDir = &dir
	}

	sessions, err := h.store.List(r.Context(), filter)
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	JSON(w, http.StatusOK, sessions)
}

// GetSession handles GET /sessions/{id}.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	session, err := h.store.Get(r.Context(), id)
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to fetch session")
		return
	}
	if session == nil {
		Error(w, http.StatusNotFound, "session not found")
		return
	}
	JSON(w, http.StatusOK, session)
}

// GetSessionOutput handles GET /sessions/{id}/output.
func (h *Handler) GetSessionOutput(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	output, err := h.store.GetOutput(r.Context(), id)
	if err != nil {
		if errors.Is(err, sessionstore.ErrNotFound) {
			Error(w, http.StatusNotFound, "session not found")
			return
		}
		Error(w, http.StatusInternalServerError, "failed to fetch output")
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(output); err != nil {
		return
	}
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid session id")
		return uuid.Nil, false
	}
	return id, true
}
