package middleware

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/session-server-go/internal/audit"
	apperrors "github.com/openclaw/session-server-go/internal/errors"
	"github.com/openclaw/session-server-go/internal/httputil"
	"github.com/openclaw/session-server-go/internal/util"
)

// MaintenanceMiddleware guards scheduler-invoked endpoints with a shared
// secret sent as "Authorization: Bearer <secret>". With no secret configured
// every request is let through.
type MaintenanceMiddleware struct {
	secret string
}

func NewMaintenanceMiddleware(secret string) *MaintenanceMiddleware {
	if secret == "" {
		log.Warn().Msg("maintenance endpoints are not protected: no shared secret configured")
	}
	return &MaintenanceMiddleware{secret: secret}
}

func (m *MaintenanceMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.secret == "" {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		presented, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || !util.ConstantTimeEqual(presented, m.secret) {
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventMaintenanceDeny,
				Details: map[string]interface{}{"path": r.URL.Path},
			})
			httputil.WriteError(w, apperrors.Unauthorized("Unauthorized"))
			return
		}

		next.ServeHTTP(w, r)
	})
}
