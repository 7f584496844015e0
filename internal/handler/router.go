package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/openclaw/session-server-go/internal/config"
	"github.com/openclaw/session-server-go/internal/middleware"
)

type Middleware func(http.Handler) http.Handler

// Middlewares are applied per route group. A nil entry is skipped.
type Middlewares struct {
	RequireAuth     Middleware
	CSRF            Middleware
	LoginLimit      Middleware
	PairingLimit    Middleware
	UserLimit       Middleware
	Maintenance     Middleware
	BodyLimit       Middleware
	SecurityHeaders Middleware
}

type Handlers struct {
	Auth        *AuthHandler
	Pairing     *PairingHandler
	APIKeys     *APIKeyHandler
	Maintenance *MaintenanceHandler
}

func NewRouter(h Handlers, mw Middlewares) chi.Router {
	r := chi.NewRouter()

	timeout := chimiddleware.Timeout(config.ServerRequestTimeout)

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	use(r, mw.BodyLimit)
	use(r, mw.SecurityHeaders)

	r.With(timeout).Get("/health", h.Maintenance.Health)

	r.Route("/v1/auth", func(r chi.Router) {
		r.Use(timeout)
		r.With(optional(mw.LoginLimit)).Post("/login", h.Auth.Login)
		r.Post("/refresh", h.Auth.Refresh)
		r.Post("/logout", h.Auth.Logout)
		r.Get("/me", h.Auth.Me)

		r.Group(func(r chi.Router) {
			use(r, mw.RequireAuth)
			r.Post("/logout-all", h.Auth.LogoutAll)
			r.Get("/sessions", h.Auth.ListSessions)
		})
	})

	r.Route("/v1/pairing", func(r chi.Router) {
		// Long-lived; bounded by the request's own expiry instead.
		r.Get("/{code}/events", h.Pairing.Events)

		r.Group(func(r chi.Router) {
			r.Use(timeout)
			r.With(optional(mw.PairingLimit)).Post("/", h.Pairing.Initiate)
			r.Get("/{code}", h.Pairing.Poll)

			r.Group(func(r chi.Router) {
				use(r, mw.RequireAuth)
				use(r, mw.CSRF)
				r.Post("/authorize", h.Pairing.Authorize)
				r.Get("/{code}/details", h.Pairing.Details)
			})
		})
	})

	r.Route("/v1/api-keys", func(r chi.Router) {
		r.Use(timeout)
		use(r, mw.RequireAuth)
		use(r, mw.UserLimit)
		use(r, mw.CSRF)
		r.Get("/", h.APIKeys.List)
		r.Get("/{name}", h.APIKeys.Reveal)
		r.Put("/{name}", h.APIKeys.Store)
		r.Delete("/{name}", h.APIKeys.Delete)
	})

	r.Route("/internal/cron", func(r chi.Router) {
		r.Use(timeout)
		use(r, mw.Maintenance)
		r.Post("/cleanup-sessions", h.Maintenance.CleanupSessions)
	})

	return r
}

func use(r chi.Router, m Middleware) {
	if m != nil {
		r.Use(m)
	}
}

func optional(m Middleware) func(http.Handler) http.Handler {
	if m == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return m
}
