package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openclaw/session-server-go/internal/audit"
	"github.com/openclaw/session-server-go/internal/middleware"
	"github.com/openclaw/session-server-go/internal/service"
)

// APIKeyOperations is implemented by *service.APIKeyService.
type APIKeyOperations interface {
	Store(ctx context.Context, userID, name, secret string) (*service.APIKeyView, error)
	List(ctx context.Context, userID string) ([]service.APIKeyView, error)
	Reveal(ctx context.Context, userID, name string) (string, error)
	Delete(ctx context.Context, userID, name string) error
}

type APIKeyHandler struct {
	keys APIKeyOperations
}

func NewAPIKeyHandler(keys APIKeyOperations) *APIKeyHandler {
	return &APIKeyHandler{keys: keys}
}

// GET /v1/api-keys
func (h *APIKeyHandler) List(w http.ResponseWriter, r *http.Request) {
	views, err := h.keys.List(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	if views == nil {
		views = []service.APIKeyView{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"keys": views})
}

// GET /v1/api-keys/{name}
func (h *APIKeyHandler) Reveal(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	key, err := h.keys.Reveal(r.Context(), middleware.GetUserID(r.Context()), name)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"name": name, "key": key})
}

// PUT /v1/api-keys/{name}
func (h *APIKeyHandler) Store(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key string `json:"key"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	userID := middleware.GetUserID(r.Context())

	view, err := h.keys.Store(r.Context(), userID, chi.URLParam(r, "name"), req.Key)
	if err != nil {
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:    audit.EventAPIKeyStore,
		UserID:  userID,
		Details: map[string]interface{}{"name": view.Name},
	})

	writeJSON(w, http.StatusOK, view)
}

// DELETE /v1/api-keys/{name}
func (h *APIKeyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	name := chi.URLParam(r, "name")

	if err := h.keys.Delete(r.Context(), userID, name); err != nil {
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:    audit.EventAPIKeyDelete,
		UserID:  userID,
		Details: map[string]interface{}{"name": name},
	})

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
