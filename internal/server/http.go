// Package server assembles the HTTP API: public SSO endpoints, the Gate-protected routes and the
// readiness probe, wrapped with request id, panic recovery, access logging and OpenTelemetry.
package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	datasethandler "sqabi/backend/internal/dataset/handler"
	healthhandler "sqabi/backend/internal/health/handler"
	"sqabi/backend/internal/platform/rbac"
	"sqabi/backend/internal/server/middleware"
	ssohandler "sqabi/backend/internal/sso/handler"
)

// Deps holds the handlers and middleware the router mounts.
type Deps struct {
	SSO     *ssohandler.Handler
	Dataset *datasethandler.Handler
	// Gate guards protected routes. Required.
	Gate *middleware.Gate
	// HealthPinger is used by /healthz (e.g. *sql.DB). If nil, the database check is skipped.
	HealthPinger healthhandler.Pinger
	Logger       *slog.Logger
	// ServiceName names the otelhttp server spans.
	ServiceName string
}

// NewRouter returns the API handler.
//
// Routes:
//   - POST   /sso/validate                              public
//   - POST   /sso/logout                                public, bearer optional
//   - GET    /sso/status                                public
//   - POST   /sso/hub-logout                            Hub shared secret
//   - GET    /sso/me                                    Gate
//   - GET    /sso/users/{userID}/sessions               Gate + admin
//   - DELETE /sso/users/{userID}/sessions/{sessionID}   Gate + admin
//   - POST   /datasets/validate                         Gate + admin|editor
//   - GET    /healthz                                   public
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.AccessLog(logger, map[string]bool{"/healthz": true}))
	r.Use(chimw.Recoverer)

	r.Get("/healthz", healthhandler.NewServer(deps.HealthPinger).HealthCheck)

	r.Route("/sso", func(r chi.Router) {
		r.Post("/validate", deps.SSO.Validate)
		r.Post("/logout", deps.SSO.Logout)
		r.Get("/status", deps.SSO.Status)
		r.Post("/hub-logout", deps.SSO.HubLogout)

		r.Group(func(r chi.Router) {
			r.Use(deps.Gate.Middleware)
			r.Get("/me", deps.SSO.Me)
			r.Group(func(r chi.Router) {
				r.Use(rbac.RequireRole(rbac.RoleAdmin))
				r.Get("/users/{userID}/sessions", deps.SSO.ListSessions)
				r.Delete("/users/{userID}/sessions/{sessionID}", deps.SSO.RevokeSession)
			})
		})
	})

	if deps.Dataset != nil {
		r.With(deps.Gate.Middleware, rbac.RequireRole(rbac.RoleAdmin, rbac.RoleEditor)).
			Post("/datasets/validate", deps.Dataset.Validate)
	}

	name := deps.ServiceName
	if name == "" {
		name = "sqabi"
	}
	return otelhttp.NewHandler(r, name, otelhttp.WithFilter(func(r *http.Request) bool {
		return r.URL.Path != "/healthz"
	}))
}
