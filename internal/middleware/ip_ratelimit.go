package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/openclaw/session-server-go/internal/audit"
	apperrors "github.com/openclaw/session-server-go/internal/errors"
	"github.com/openclaw/session-server-go/internal/httputil"
	"github.com/openclaw/session-server-go/internal/service"
)

// Limiter is satisfied by *service.RateLimiter.
type Limiter interface {
	CheckLimit(ctx context.Context, key string, limit int, window time.Duration) service.RateLimitDecision
}

type IPRateLimitMiddleware struct {
	limiter Limiter
	limit   int
	window  time.Duration
	prefix  string
}

func NewIPRateLimitMiddleware(limiter Limiter, limit int, window time.Duration, prefix string) *IPRateLimitMiddleware {
	return &IPRateLimitMiddleware{
		limiter: limiter,
		limit:   limit,
		window:  window,
		prefix:  prefix,
	}
}

func (m *IPRateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := audit.ClientIP(r)

		key := fmt.Sprintf("ip:%s:%s", m.prefix, ip)
		decision := m.limiter.CheckLimit(r.Context(), key, m.limit, m.window)

		if !decision.Allowed {
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventRateLimitExceed,
				Details: map[string]interface{}{"scope": m.prefix},
			})
			writeTooManyRequests(w, decision.ResetAt)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeTooManyRequests(w http.ResponseWriter, resetAt time.Time) {
	secondsLeft := int(time.Until(resetAt).Seconds()) + 1
	if secondsLeft < 1 {
		secondsLeft = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secondsLeft))
	httputil.WriteError(w, apperrors.RateLimitExceeded())
}
