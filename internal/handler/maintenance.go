package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/session-server-go/internal/audit"
	"github.com/openclaw/session-server-go/internal/config"
	apperrors "github.com/openclaw/session-server-go/internal/errors"
	"github.com/openclaw/session-server-go/internal/jobs"
)

// Sweeper is implemented by *jobs.SessionJanitor.
type Sweeper interface {
	Sweep(ctx context.Context) (jobs.SweepResult, error)
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type MaintenanceHandler struct {
	janitor Sweeper
	db      Pinger
}

func NewMaintenanceHandler(janitor Sweeper, db Pinger) *MaintenanceHandler {
	return &MaintenanceHandler{janitor: janitor, db: db}
}

// POST /internal/cron/cleanup-sessions
// Guarded by MaintenanceMiddleware.
func (h *MaintenanceHandler) CleanupSessions(w http.ResponseWriter, r *http.Request) {
	result, err := h.janitor.Sweep(r.Context())

	audit.LogFromRequest(r, audit.Event{
		Type: audit.EventSessionSweep,
		Details: map[string]interface{}{
			"expiredRemoved": result.ExpiredRemoved,
			"staleRemoved":   result.StaleRemoved,
			"failed":         err != nil,
		},
	})

	if err != nil {
		writeError(w, apperrors.Internal("Session cleanup failed").WithCause(err))
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// GET /health
func (h *MaintenanceHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UnixMilli(),
	}

	ctx, cancel := context.WithTimeout(r.Context(), config.DBPingTimeout)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		log.Error().Err(err).Msg("health check: database unreachable")
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
