package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/session-server-go/internal/audit"
	"github.com/openclaw/session-server-go/internal/middleware"
	"github.com/openclaw/session-server-go/internal/model"
	"github.com/openclaw/session-server-go/internal/service"
)

// AuthOperations is implemented by *service.AuthService.
type AuthOperations interface {
	Authenticate(ctx context.Context, email, password string) (*model.User, error)
	Login(ctx context.Context, user *model.User) (*service.IssuedSession, error)
	Refresh(ctx context.Context, refreshToken string) (*service.RefreshResult, error)
	Logout(ctx context.Context, refreshToken string) error
	LogoutAll(ctx context.Context, userID string) (int64, error)
	Me(ctx context.Context, accessToken string) (*model.User, error)
	ListSessions(ctx context.Context, userID string) ([]model.Session, error)
}

type AuthHandler struct {
	auth    AuthOperations
	cookies *middleware.CookieWriter
}

func NewAuthHandler(auth AuthOperations, cookies *middleware.CookieWriter) *AuthHandler {
	return &AuthHandler{auth: auth, cookies: cookies}
}

// POST /v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	ctx := r.Context()

	user, err := h.auth.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		audit.LogFromRequest(r, audit.Event{
			Type:    audit.EventLoginFailure,
			Details: map[string]interface{}{"email": req.Email},
		})
		writeError(w, err)
		return
	}

	issued, err := h.auth.Login(ctx, user)
	if err != nil {
		log.Error().Err(err).Str("userId", user.ID).Msg("failed to create session")
		writeError(w, err)
		return
	}

	h.setTokenCookies(w, issued.Tokens)

	audit.LogFromRequest(r, audit.Event{
		Type:      audit.EventLoginSuccess,
		UserID:    user.ID,
		SessionID: issued.Session.ID,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"user":      formatUser(user),
		"sessionId": issued.Session.ID,
		"tokens":    issued.Tokens,
	})
}

// POST /v1/auth/refresh
// The refresh token comes from the cookie, or from the body for clients that
// do not keep cookies.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	refreshToken, err := refreshTokenFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.auth.Refresh(r.Context(), refreshToken)
	if err != nil {
		audit.LogFromRequest(r, audit.Event{
			Type:    audit.EventRefreshRejected,
			Details: map[string]interface{}{"reason": err},
		})
		h.cookies.Clear(w)
		writeError(w, err)
		return
	}

	h.cookies.SetAccessToken(w, result.AccessToken.Value, time.Until(result.AccessToken.ExpiresAt))

	writeJSON(w, http.StatusOK, map[string]any{
		"accessToken":          result.AccessToken.Value,
		"accessTokenExpiresAt": result.AccessToken.ExpiresAt,
	})
}

// POST /v1/auth/logout
// Always succeeds and always clears the cookies.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	refreshToken, err := refreshTokenFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.auth.Logout(r.Context(), refreshToken); err != nil {
		log.Error().Err(err).Msg("failed to invalidate session on logout")
		writeError(w, err)
		return
	}

	h.cookies.Clear(w)
	audit.LogFromRequest(r, audit.Event{Type: audit.EventLogout})

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// POST /v1/auth/logout-all
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	count, err := h.auth.LogoutAll(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	h.cookies.Clear(w)
	audit.LogFromRequest(r, audit.Event{
		Type:    audit.EventLogoutAll,
		UserID:  userID,
		Details: map[string]interface{}{"invalidated": count},
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"invalidated": count,
	})
}

// GET /v1/auth/me
// Verifies the access token itself so an unauthenticated caller gets the
// same UNAUTHENTICATED body as any other failure.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.auth.Me(r.Context(), middleware.ExtractAccessToken(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, formatUser(user))
}

// GET /v1/auth/sessions
func (h *AuthHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.auth.ListSessions(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}

	result := make([]map[string]any, 0, len(sessions))
	for _, s := range sessions {
		result = append(result, formatSession(s))
	}

	writeJSON(w, http.StatusOK, map[string]any{"sessions": result})
}

func (h *AuthHandler) setTokenCookies(w http.ResponseWriter, tokens service.TokenPair) {
	h.cookies.SetAccessToken(w, tokens.AccessToken, time.Until(tokens.AccessTokenExpiresAt))
	h.cookies.SetRefreshToken(w, tokens.RefreshToken, time.Until(tokens.RefreshTokenExpiresAt))
}

func refreshTokenFrom(r *http.Request) (string, error) {
	if token := middleware.RefreshTokenFromCookie(r); token != "" {
		return token, nil
	}

	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeBody(r, &req); err != nil {
		return "", err
	}
	return req.RefreshToken, nil
}
