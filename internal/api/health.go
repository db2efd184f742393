package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/abenov/flowgram/internal/store"
)

// HealthHandler reports process and database health.
type HealthHandler struct {
	repo store.Repository
}

// NewHealthHandler creates a health handler backed by the repository.
func NewHealthHandler(repo store.Repository) *HealthHandler {
	return &HealthHandler{repo: repo}
}

// RegisterHealth registers health routes on the router.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/healthz", h.healthz)
}

func (h *HealthHandler) healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Ping(r.Context()); err != nil {
		Error(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
