package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/openclaw/session-server-go/internal/errors"
	"github.com/openclaw/session-server-go/internal/service"
)

type fakeLimiter struct {
	allowed int
	keys    []string
}

func (f *fakeLimiter) CheckLimit(ctx context.Context, key string, limit int, window time.Duration) service.RateLimitDecision {
	f.keys = append(f.keys, key)
	if len(f.keys) > f.allowed {
		return service.RateLimitDecision{Allowed: false, ResetAt: time.Now().Add(30 * time.Second)}
	}
	return service.RateLimitDecision{Allowed: true, Remaining: f.allowed - len(f.keys), ResetAt: time.Now().Add(window)}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestMaintenanceMiddleware(t *testing.T) {
	t.Run("accepts matching secret", func(t *testing.T) {
		handler := NewMaintenanceMiddleware("cron-secret").Handler(okHandler())

		req := httptest.NewRequest("POST", "/internal/cron/cleanup-sessions", nil)
		req.Header.Set("Authorization", "Bearer cron-secret")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("rejects wrong or missing secret", func(t *testing.T) {
		handler := NewMaintenanceMiddleware("cron-secret").Handler(okHandler())

		for _, header := range []string{"", "Bearer nope", "cron-secret", "Bearer cron-secret-extra"} {
			req := httptest.NewRequest("POST", "/internal/cron/cleanup-sessions", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code, header)
			assert.Equal(t, apperrors.ErrCodeUnauthorized, decodeCode(t, rec))
		}
	})

	t.Run("open when no secret configured", func(t *testing.T) {
		handler := NewMaintenanceMiddleware("").Handler(okHandler())

		req := httptest.NewRequest("POST", "/internal/cron/cleanup-sessions", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestCSRFMiddleware(t *testing.T) {
	handler := NewCSRFMiddleware(false).Handler(okHandler())

	t.Run("safe method issues a cookie", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/v1/api-keys", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, CSRFCookieName, cookies[0].Name)
		assert.False(t, cookies[0].HttpOnly)
	})

	t.Run("matching header passes", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/v1/pairing/authorize", nil)
		req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: "tok"})
		req.Header.Set(CSRFHeaderName, "tok")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("missing or mismatched header is forbidden", func(t *testing.T) {
		for _, header := range []string{"", "other"} {
			req := httptest.NewRequest("PUT", "/v1/api-keys/openai", nil)
			req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: "tok"})
			if header != "" {
				req.Header.Set(CSRFHeaderName, header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusForbidden, rec.Code)
		}
	})

	t.Run("bearer clients skip the check", func(t *testing.T) {
		req := httptest.NewRequest("DELETE", "/v1/api-keys/openai", nil)
		req.Header.Set("Authorization", "Bearer token")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestIPRateLimitMiddleware(t *testing.T) {
	limiter := &fakeLimiter{allowed: 2}
	handler := NewIPRateLimitMiddleware(limiter, 2, time.Minute, "login").Handler(okHandler())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("POST", "/v1/auth/login", nil)
		req.RemoteAddr = "203.0.113.7:5555"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)

		if rec.Code == http.StatusTooManyRequests {
			assert.NotEmpty(t, rec.Header().Get("Retry-After"))
			assert.Equal(t, apperrors.ErrCodeRateLimitExceeded, decodeCode(t, rec))
		}
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Equal(t, "ip:login:203.0.113.7", limiter.keys[0])
}

func TestUserRateLimitMiddleware(t *testing.T) {
	t.Run("anonymous passes through", func(t *testing.T) {
		limiter := &fakeLimiter{}
		handler := NewUserRateLimitMiddleware(limiter, 5, time.Minute, "api-keys").Handler(okHandler())

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, limiter.keys)
	})

	t.Run("limits by user id", func(t *testing.T) {
		limiter := &fakeLimiter{allowed: 1}
		handler := NewUserRateLimitMiddleware(limiter, 1, time.Minute, "api-keys").Handler(okHandler())

		claims := &service.Claims{}
		claims.Subject = "user-9"

		var last *httptest.ResponseRecorder
		for i := 0; i < 2; i++ {
			req := httptest.NewRequest("GET", "/", nil)
			req = req.WithContext(WithClaims(req.Context(), claims))
			last = httptest.NewRecorder()
			handler.ServeHTTP(last, req)
		}

		assert.Equal(t, http.StatusTooManyRequests, last.Code)
		assert.Equal(t, "1", last.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "user:api-keys:user-9", limiter.keys[0])
	})
}

func TestBodyLimitMiddleware(t *testing.T) {
	handler := NewBodyLimitMiddleware(16).Handler(okHandler())

	req := httptest.NewRequest("POST", "/", strings.NewReader(strings.Repeat("x", 32)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	req = httptest.NewRequest("POST", "/", strings.NewReader("small"))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	rec := httptest.NewRecorder()
	NewSecurityHeadersMiddleware(true).Handler(okHandler()).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.NotEmpty(t, rec.Header().Get("Strict-Transport-Security"))
}

func TestRequestLogger(t *testing.T) {
	handler := RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
}
