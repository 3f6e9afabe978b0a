// Package handler serves the readiness probe.
package handler

import (
	"context"
	"net/http"
	"time"

	"sqabi/backend/internal/platform/httpjson"
)

const pingTimeout = 2 * time.Second

// Pinger checks a dependency (e.g. *sql.DB) for readiness.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Server answers GET /healthz.
type Server struct {
	pinger Pinger
}

// NewServer returns a health Server. If pinger is nil, the database check is skipped.
func NewServer(pinger Pinger) *Server {
	return &Server{pinger: pinger}
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// HealthCheck reports SERVING when the database answers a ping and NOT_SERVING (503) otherwise.
// The Hub is not probed here; its reachability is reported by /sso/status only.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if s.pinger == nil {
		httpjson.WriteJSON(w, http.StatusOK, healthResponse{Status: "SERVING", Database: "skipped"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
	defer cancel()
	if err := s.pinger.PingContext(ctx); err != nil {
		httpjson.WriteJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "NOT_SERVING", Database: "unreachable"})
		return
	}
	httpjson.WriteJSON(w, http.StatusOK, healthResponse{Status: "SERVING", Database: "ok"})
}
