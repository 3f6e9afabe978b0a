package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// AccessLog returns middleware that logs one line per request after it completes: route pattern, status,
// duration, request id and, for authenticated requests, the user and session. Paths in skip are not logged.
func AccessLog(logger *slog.Logger, skip map[string]bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skip[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			// The Gate runs deeper in the chain; the sink captures the identity it attaches.
			var id Identity
			next.ServeHTTP(ww, r.WithContext(withIdentitySink(r.Context(), &id)))

			route := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			attrs := []any{
				"method", r.Method,
				"route", route,
				"status", ww.Status(),
				"duration_ms", time.Since(start).Milliseconds(),
				"client_ip", r.RemoteAddr,
				"request_id", chimw.GetReqID(r.Context()),
			}
			if id.UserID != "" {
				attrs = append(attrs, "user_id", id.UserID, "session_id", id.SessionID)
			}
			level := slog.LevelInfo
			if ww.Status() >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.Log(r.Context(), level, "http request", attrs...)
		})
	}
}
