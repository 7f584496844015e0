package handler

import (
	"encoding/json"
	"net/http"
	"time"

	apperrors "github.com/openclaw/session-server-go/internal/errors"
	"github.com/openclaw/session-server-go/internal/httputil"
	"github.com/openclaw/session-server-go/internal/model"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

func writeError(w http.ResponseWriter, err error) {
	httputil.WriteError(w, err)
}

// decodeBody rejects malformed JSON. An empty body decodes to the zero value.
func decodeBody(r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperrors.ValidationError("Invalid request body").WithCause(err)
	}
	return nil
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}

func formatSession(s model.Session) map[string]any {
	return map[string]any{
		"id":            s.ID,
		"createdAt":     s.CreatedAt.Format(time.RFC3339),
		"expiresAt":     s.ExpiresAt.Format(time.RFC3339),
		"invalidatedAt": formatTime(s.InvalidatedAt),
	}
}

func formatUser(u *model.User) map[string]any {
	return map[string]any{
		"id":               u.ID,
		"email":            u.Email,
		"name":             u.Name,
		"role":             u.Role,
		"subscriptionTier": u.SubscriptionTier,
	}
}
