package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/brinkadata/brinkadata-platform/internal/api/middleware"
	"github.com/brinkadata/brinkadata-platform/internal/api/response"
)

const pingTimeout = 2 * time.Second

// DBPinger checks database connectivity.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles the GET /health endpoint.
type HealthHandler struct {
	db      DBPinger
	version string
	env     string
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(db DBPinger, version, env string) *HealthHandler {
	return &HealthHandler{
		db:      db,
		version: version,
		env:     env,
	}
}

type databaseStatus struct {
	Connected bool `json:"connected"`
}

type healthData struct {
	Status   string         `json:"status"`
	Version  string         `json:"version"`
	Env      string         `json:"env"`
	Database databaseStatus `json:"database"`
}

// ServeHTTP handles the health check request. It always returns 200; a failed
// database ping reports status "degraded".
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	status := "healthy"
	connected := true

	ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
	defer cancel()
	if err := h.db.Ping(ctx); err != nil {
		slog.Warn("database ping failed", "error", err, "requestId", requestID)
		status = "degraded"
		connected = false
	}

	response.Success(w, http.StatusOK, healthData{
		Status:   status,
		Version:  h.version,
		Env:      h.env,
		Database: databaseStatus{Connected: connected},
	}, requestID)
}
