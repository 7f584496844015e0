package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/openclaw/session-server-go/internal/audit"
	apperrors "github.com/openclaw/session-server-go/internal/errors"
	"github.com/openclaw/session-server-go/internal/httputil"
	"github.com/openclaw/session-server-go/internal/util"
)

const (
	CSRFCookieName = "csrf_token"
	CSRFHeaderName = "X-CSRF-Token"
	CSRFMaxAge     = 24 * time.Hour
)

// CSRFMiddleware provides CSRF protection for state-changing requests.
// It uses the double-submit cookie pattern:
// 1. A CSRF token is set in a cookie (readable by JavaScript)
// 2. The same token must be sent in the X-CSRF-Token header
// 3. For state-changing methods (POST, PUT, PATCH, DELETE), both must match
//
// Requests that authenticate with an Authorization header are not exposed to
// ambient cookie credentials and skip the check.
type CSRFMiddleware struct {
	secure bool
}

func NewCSRFMiddleware(secure bool) *CSRFMiddleware {
	return &CSRFMiddleware{secure: secure}
}

func (m *CSRFMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			next.ServeHTTP(w, r)
			return
		}

		cookie, err := r.Cookie(CSRFCookieName)
		if err != nil || cookie.Value == "" {
			token, err := util.GenerateToken()
			if err != nil {
				httputil.WriteError(w, apperrors.Internal("Failed to generate security token"))
				return
			}
			m.setCSRFCookie(w, token)
			cookie = &http.Cookie{Value: token}
		}

		if isSafeMethod(r.Method) {
			next.ServeHTTP(w, r)
			return
		}

		headerToken := r.Header.Get(CSRFHeaderName)
		if headerToken == "" || !util.ConstantTimeEqual(cookie.Value, headerToken) {
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventCSRFFailure,
				UserID:  GetUserID(r.Context()),
				Details: map[string]interface{}{"path": r.URL.Path, "missing": headerToken == ""},
			})
			httputil.WriteError(w, apperrors.Forbidden("Invalid CSRF token"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *CSRFMiddleware) setCSRFCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(CSRFMaxAge.Seconds()),
		HttpOnly: false, // Must be readable by JavaScript to send in header
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func isSafeMethod(method string) bool {
	return method == http.MethodGet ||
		method == http.MethodHead ||
		method == http.MethodOptions
}
