package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/session-server-go/internal/audit"
	apperrors "github.com/openclaw/session-server-go/internal/errors"
	"github.com/openclaw/session-server-go/internal/httputil"
	"github.com/openclaw/session-server-go/internal/service"
)

type contextKey string

const ClaimsContextKey contextKey = "claims"

func GetClaims(ctx context.Context) *service.Claims {
	if claims, ok := ctx.Value(ClaimsContextKey).(*service.Claims); ok {
		return claims
	}
	return nil
}

func GetUserID(ctx context.Context) string {
	if claims := GetClaims(ctx); claims != nil {
		return claims.UserID()
	}
	return ""
}

// WithClaims is used by tests and by handlers that authenticate inline.
func WithClaims(ctx context.Context, claims *service.Claims) context.Context {
	return context.WithValue(ctx, ClaimsContextKey, claims)
}

// AccessTokenVerifier is the part of the token service the auth middleware uses.
type AccessTokenVerifier interface {
	VerifyAccessToken(token string) (*service.Claims, error)
}

// AuthMiddleware admits requests carrying a valid access token. Verification
// is signature and expiry only; storage is never consulted.
type AuthMiddleware struct {
	tokens AccessTokenVerifier
}

func NewAuthMiddleware(tokens AccessTokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ExtractAccessToken(r)
		if token == "" {
			httputil.WriteError(w, apperrors.Unauthenticated())
			return
		}

		claims, err := m.tokens.VerifyAccessToken(token)
		if err != nil {
			log.Debug().Err(err).Str("path", r.URL.Path).Msg("auth middleware: access token rejected")
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventAuthFailure,
				Details: map[string]interface{}{"path": r.URL.Path, "reason": err},
			})
			httputil.WriteError(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// ExtractAccessToken prefers the Authorization header over the cookie.
func ExtractAccessToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}

	if cookie, err := r.Cookie(AccessTokenCookie); err == nil {
		return cookie.Value
	}

	return ""
}
