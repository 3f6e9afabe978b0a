// Package handler exposes the SSO service over HTTP.
package handler

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"sqabi/backend/internal/hub"
	"sqabi/backend/internal/platform/httpjson"
	"sqabi/backend/internal/server/middleware"
	"sqabi/backend/internal/session/domain"
	"sqabi/backend/internal/sso/service"
)

// HubSecretHeader carries the shared secret on Hub-initiated logout notifications.
const HubSecretHeader = "X-Hub-Secret"

// SSOService is the service surface used by the handler.
type SSOService interface {
	ValidateAndIssue(ctx context.Context, ssoToken string, meta service.ClientMeta) (*service.IssueResult, error)
	Logout(ctx context.Context, token string, meta service.ClientMeta) error
	HubLogout(ctx context.Context, userID string) (int64, error)
	Status(ctx context.Context) service.Status
	ListActiveSessions(ctx context.Context, userID string) ([]*domain.Session, error)
	RevokeSession(ctx context.Context, userID, sessionID string) error
}

// Handler serves the /sso endpoints.
type Handler struct {
	svc       SSOService
	service   string
	hubSecret string
	logger    *slog.Logger
}

// New returns a Handler. service is echoed in validate responses; an empty hubSecret disables /sso/hub-logout.
func New(svc SSOService, serviceName, hubSecret string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{svc: svc, service: serviceName, hubSecret: hubSecret, logger: logger}
}

type validateRequest struct {
	Token string `json:"token"`
}

type validateData struct {
	User            service.User `json:"user"`
	BIToken         string       `json:"biToken"`
	AuthenticatedAt time.Time    `json:"authenticatedAt"`
	Service         string       `json:"service"`
}

// Validate handles POST /sso/validate: exchanges a Hub SSO token for a local token.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := httpjson.Decode(r, &req); err != nil || req.Token == "" {
		httpjson.WriteError(w, http.StatusBadRequest, "Token required", "Token SSO é obrigatório")
		return
	}
	res, err := h.svc.ValidateAndIssue(r.Context(), req.Token, clientMeta(r))
	if err != nil {
		h.writeValidateError(w, r, err)
		return
	}
	httpjson.WriteData(w, http.StatusOK, validateData{
		User:            res.User,
		BIToken:         res.Token,
		AuthenticatedAt: res.AuthenticatedAt,
		Service:         h.service,
	})
}

func (h *Handler) writeValidateError(w http.ResponseWriter, r *http.Request, err error) {
	var rej *hub.RejectedError
	switch {
	case errors.Is(err, service.ErrTokenRequired):
		httpjson.WriteError(w, http.StatusBadRequest, "Token required", "Token SSO é obrigatório")
	case errors.Is(err, service.ErrSSODisabled):
		httpjson.WriteError(w, http.StatusForbidden, "SSO disabled", "SSO não está habilitado")
	case errors.As(err, &rej):
		status := rej.StatusCode
		if status < http.StatusBadRequest {
			status = http.StatusUnauthorized
		}
		msg := rej.Message
		if msg == "" {
			msg = "Token SSO inválido ou expirado"
		}
		httpjson.WriteError(w, status, "Validation failed", msg)
	case errors.Is(err, hub.ErrHubTimeout):
		h.logger.WarnContext(r.Context(), "hub validation timed out", "error", err)
		httpjson.WriteError(w, http.StatusGatewayTimeout, "Gateway timeout", "O Hub não respondeu a tempo")
	case errors.Is(err, hub.ErrHubUnavailable):
		h.logger.WarnContext(r.Context(), "hub unavailable", "error", err)
		httpjson.WriteError(w, http.StatusServiceUnavailable, "Hub unavailable", "Serviço de autenticação indisponível")
	default:
		h.logger.ErrorContext(r.Context(), "sso validation failed", "error", err)
		httpjson.WriteError(w, http.StatusInternalServerError, "Internal error", "Erro interno na validação SSO")
	}
}

// Logout handles POST /sso/logout. It always answers 200.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Logout(r.Context(), middleware.BearerToken(r), clientMeta(r)); err != nil {
		h.logger.WarnContext(r.Context(), "logout bookkeeping failed", "error", err)
	}
	httpjson.WriteMessage(w, http.StatusOK, "Logout realizado com sucesso")
}

// Status handles GET /sso/status. It always answers 200.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	httpjson.WriteData(w, http.StatusOK, h.svc.Status(r.Context()))
}

type hubLogoutRequest struct {
	UserID string `json:"userId"`
}

// HubLogout handles POST /sso/hub-logout: the Hub notifies that a user logged out there.
func (h *Handler) HubLogout(w http.ResponseWriter, r *http.Request) {
	if h.hubSecret == "" || subtle.ConstantTimeCompare([]byte(r.Header.Get(HubSecretHeader)), []byte(h.hubSecret)) != 1 {
		httpjson.WriteError(w, http.StatusForbidden, "forbidden", "Notificação do Hub não autorizada")
		return
	}
	var req hubLogoutRequest
	if err := httpjson.Decode(r, &req); err != nil || req.UserID == "" {
		httpjson.WriteError(w, http.StatusBadRequest, "userId required", "userId é obrigatório")
		return
	}
	n, err := h.svc.HubLogout(r.Context(), req.UserID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "hub logout failed", "user_id", req.UserID, "error", err)
		httpjson.WriteError(w, http.StatusInternalServerError, "Internal error", "Falha ao encerrar sessões")
		return
	}
	httpjson.WriteData(w, http.StatusOK, map[string]int64{"invalidated": n})
}

// Me handles GET /sso/me behind the Gate.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		httpjson.WriteError(w, http.StatusUnauthorized, middleware.CodeUnauthorized, "Autenticação necessária")
		return
	}
	httpjson.WriteData(w, http.StatusOK, id)
}

type sessionView struct {
	ID           string     `json:"id"`
	UserID       string     `json:"userId"`
	IPAddress    string     `json:"ipAddress,omitempty"`
	UserAgent    string     `json:"userAgent,omitempty"`
	ExpiresAt    time.Time  `json:"expiresAt"`
	LastActivity time.Time  `json:"lastActivity"`
	LastHubCheck *time.Time `json:"lastHubCheck,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// ListSessions handles GET /sso/users/{userID}/sessions (admin).
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.svc.ListActiveSessions(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		if errors.Is(err, service.ErrUserIDRequired) {
			httpjson.WriteError(w, http.StatusBadRequest, "userId required", "userId é obrigatório")
			return
		}
		h.logger.ErrorContext(r.Context(), "list sessions failed", "error", err)
		httpjson.WriteError(w, http.StatusInternalServerError, "Internal error", "Falha ao listar sessões")
		return
	}
	out := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionView{
			ID:           s.ID,
			UserID:       s.UserID,
			IPAddress:    s.IPAddress,
			UserAgent:    s.UserAgent,
			ExpiresAt:    s.ExpiresAt,
			LastActivity: s.LastActivity,
			LastHubCheck: s.LastHubCheck,
			CreatedAt:    s.CreatedAt,
		})
	}
	httpjson.WriteData(w, http.StatusOK, out)
}

// RevokeSession handles DELETE /sso/users/{userID}/sessions/{sessionID} (admin).
func (h *Handler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	err := h.svc.RevokeSession(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "sessionID"))
	switch {
	case err == nil:
		httpjson.WriteMessage(w, http.StatusOK, "Sessão encerrada")
	case errors.Is(err, service.ErrSessionNotFound), errors.Is(err, service.ErrUserIDRequired):
		httpjson.WriteError(w, http.StatusNotFound, middleware.CodeSessionNotFound, "Sessão não encontrada")
	default:
		h.logger.ErrorContext(r.Context(), "revoke session failed", "error", err)
		httpjson.WriteError(w, http.StatusInternalServerError, "Internal error", "Falha ao encerrar sessão")
	}
}

func clientMeta(r *http.Request) service.ClientMeta {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return service.ClientMeta{IP: ip, UserAgent: r.UserAgent()}
}
