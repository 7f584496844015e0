package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/session-server-go/internal/audit"
)

// UserRateLimitMiddleware limits authenticated callers by user ID. It must run
// after AuthMiddleware; anonymous requests pass through untouched.
type UserRateLimitMiddleware struct {
	limiter Limiter
	limit   int
	window  time.Duration
	prefix  string
}

func NewUserRateLimitMiddleware(limiter Limiter, limit int, window time.Duration, prefix string) *UserRateLimitMiddleware {
	return &UserRateLimitMiddleware{
		limiter: limiter,
		limit:   limit,
		window:  window,
		prefix:  prefix,
	}
}

func (m *UserRateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := GetUserID(r.Context())
		if userID == "" {
			next.ServeHTTP(w, r)
			return
		}

		decision := m.limiter.CheckLimit(r.Context(), "user:"+m.prefix+":"+userID, m.limit, m.window)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(m.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))

		if !decision.Allowed {
			log.Warn().Str("userId", userID).Str("scope", m.prefix).Msg("rate limit exceeded")
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventRateLimitExceed,
				UserID:  userID,
				Details: map[string]interface{}{"scope": m.prefix},
			})
			writeTooManyRequests(w, decision.ResetAt)
			return
		}

		next.ServeHTTP(w, r)
	})
}
