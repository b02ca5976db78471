package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/markdave123-py/docsift/internal/core"
)

type HealthHandler struct {
	db      core.DbClient
	name    string
	version string
}

func NewHealthHandler(db core.DbClient, name, version string) *HealthHandler {
	return &HealthHandler{db: db, name: name, version: version}
}

func (h *HealthHandler) Root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"name": h.name, "version": h.version, "docs": "/api/documents"})
}

func (h *HealthHandler) Version(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": h.version})
}

// Health pings the database with a short deadline.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "unhealthy",
			"database": "disconnected",
			"error":    err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "database": "connected"})
}
