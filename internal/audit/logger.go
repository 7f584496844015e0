package audit

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type EventType string

const (
	EventLoginSuccess     EventType = "login_success"
	EventLoginFailure     EventType = "login_failure"
	EventLogout           EventType = "logout"
	EventLogoutAll        EventType = "logout_all"
	EventRefreshRejected  EventType = "refresh_rejected"
	EventAuthFailure      EventType = "auth_failure"
	EventRateLimitExceed  EventType = "rate_limit_exceeded"
	EventCSRFFailure      EventType = "csrf_failure"
	EventPairingInitiate  EventType = "pairing_initiate"
	EventPairingAuthorize EventType = "pairing_authorize"
	EventPairingRejected  EventType = "pairing_rejected"
	EventSessionSweep     EventType = "session_sweep"
	EventMaintenanceDeny  EventType = "maintenance_denied"
	EventAPIKeyStore      EventType = "api_key_store"
	EventAPIKeyDelete     EventType = "api_key_delete"
)

type Event struct {
	Type      EventType
	UserID    string
	SessionID string
	IP        string
	UserAgent string
	Details   map[string]interface{}
}

func Log(ctx context.Context, event Event) {
	logger := log.With().
		Str("audit", "security").
		Str("event_type", string(event.Type)).
		Time("timestamp", time.Now()).
		Logger()

	if event.UserID != "" {
		logger = logger.With().Str("user_id", event.UserID).Logger()
	}
	if event.SessionID != "" {
		logger = logger.With().Str("session_id", event.SessionID).Logger()
	}
	if event.IP != "" {
		logger = logger.With().Str("ip", event.IP).Logger()
	}
	if event.UserAgent != "" {
		logger = logger.With().Str("user_agent", event.UserAgent).Logger()
	}

	logEvent := logger.Info()
	for k, v := range event.Details {
		logEvent = addField(logEvent, k, v)
	}
	logEvent.Msg("security audit event")
}

func addField(e *zerolog.Event, key string, value interface{}) *zerolog.Event {
	switch v := value.(type) {
	case string:
		return e.Str(key, v)
	case int:
		return e.Int(key, v)
	case int64:
		return e.Int64(key, v)
	case bool:
		return e.Bool(key, v)
	case error:
		return e.AnErr(key, v)
	default:
		return e.Interface(key, v)
	}
}

func LogFromRequest(r *http.Request, event Event) {
	event.IP = ClientIP(r)
	event.UserAgent = r.UserAgent()
	Log(r.Context(), event)
}

// ClientIP relies on chi's RealIP middleware having already rewritten
// RemoteAddr from X-Forwarded-For / X-Real-IP.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
