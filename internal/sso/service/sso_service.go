// Package service exchanges Hub SSO tokens for local BI sessions and manages their lifecycle:
// issue, logout, Hub-initiated logout, status reporting and admin revocation.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"sqabi/backend/internal/hub"
	"sqabi/backend/internal/security"
	"sqabi/backend/internal/session/domain"
	"sqabi/backend/internal/telemetry"
)

// Sentinel errors; the handler maps them to HTTP statuses.
var (
	ErrSSODisabled     = errors.New("sso disabled")
	ErrTokenRequired   = errors.New("sso token required")
	ErrUserIDRequired  = errors.New("user id required")
	ErrSessionNotFound = errors.New("session not found")
)

// HubClient is the subset of the Hub client used by the service.
type HubClient interface {
	ValidateSSOToken(ctx context.Context, token string) (*hub.Identity, error)
	CheckHealthy(ctx context.Context) error
}

// TokenIssuer mints local tokens.
type TokenIssuer interface {
	Issue(id security.Identity) (string, time.Time, error)
}

// SessionRepo is the minimal session repository needed by the service.
type SessionRepo interface {
	Rotate(ctx context.Context, s *domain.Session) error
	ListActiveByUser(ctx context.Context, userID string) ([]*domain.Session, error)
	InvalidateByToken(ctx context.Context, token string, reason domain.LogoutReason) (bool, error)
	InvalidateByID(ctx context.Context, id string, reason domain.LogoutReason) error
	InvalidateAllByUser(ctx context.Context, userID string, reason domain.LogoutReason) (int64, error)
}

// Config holds the SSO settings the service reports and enforces.
type Config struct {
	Enabled bool
	Service string
	HubURL  string
}

// ClientMeta is request metadata recorded on the session row.
type ClientMeta struct {
	IP        string
	UserAgent string
}

// User is the minimal user projection returned to the client.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
}

// IssueResult is the outcome of a successful SSO exchange.
type IssueResult struct {
	Token           string
	ExpiresAt       time.Time
	AuthenticatedAt time.Time
	SessionID       string
	User            User
	// Persisted is false when the session row could not be written; the token is still returned.
	Persisted bool
}

// Status is the SSO status report.
type Status struct {
	SSOEnabled   bool   `json:"ssoEnabled"`
	HubConnected bool   `json:"hubConnected"`
	HubURL       string `json:"hubUrl"`
	Service      string `json:"service"`
	Error        string `json:"error,omitempty"`
}

// Service implements the SSO session lifecycle.
type Service struct {
	hub      HubClient
	tokens   TokenIssuer
	sessions SessionRepo
	cfg      Config
	logger   *slog.Logger
	events   telemetry.EventEmitter
	now      func() time.Time
}

// NewService returns a Service. logger and events may be nil.
func NewService(hubClient HubClient, tokens TokenIssuer, sessions SessionRepo, cfg Config, logger *slog.Logger, events telemetry.EventEmitter) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		hub:      hubClient,
		tokens:   tokens,
		sessions: sessions,
		cfg:      cfg,
		logger:   logger,
		events:   events,
		now:      time.Now,
	}
}

// ValidateAndIssue validates ssoToken with the Hub and issues a local session for the returned identity.
// Hub errors (*hub.RejectedError, hub.ErrHubTimeout, hub.ErrHubUnavailable) are returned unchanged.
func (s *Service) ValidateAndIssue(ctx context.Context, ssoToken string, meta ClientMeta) (*IssueResult, error) {
	if !s.cfg.Enabled {
		return nil, ErrSSODisabled
	}
	ssoToken = strings.TrimSpace(ssoToken)
	if ssoToken == "" {
		return nil, ErrTokenRequired
	}
	id, err := s.hub.ValidateSSOToken(ctx, ssoToken)
	if err != nil {
		return nil, err
	}
	return s.Issue(ctx, id, meta)
}

// Issue mints a local token for a Hub-validated identity and rotates the user's sessions to the new one.
// If the session row cannot be written the token is still returned with Persisted false; the Gate then
// rejects it with session_not_found on first use.
func (s *Service) Issue(ctx context.Context, id *hub.Identity, meta ClientMeta) (*IssueResult, error) {
	if id == nil || id.ID == "" {
		return nil, ErrUserIDRequired
	}
	token, expiresAt, err := s.tokens.Issue(security.Identity{UserID: id.ID, Email: id.Email, Role: id.Role, Name: id.Name})
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	sess := &domain.Session{
		ID:           uuid.New().String(),
		UserID:       id.ID,
		HubUserID:    id.ID,
		LocalToken:   token,
		IsActive:     true,
		ExpiresAt:    expiresAt,
		LastActivity: now,
		LastHubCheck: &now,
		IPAddress:    meta.IP,
		UserAgent:    meta.UserAgent,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	res := &IssueResult{
		Token:           token,
		ExpiresAt:       expiresAt,
		AuthenticatedAt: now,
		SessionID:       sess.ID,
		User:            User{ID: id.ID, Email: id.Email, Name: id.Name, Role: id.Role},
	}
	if err := s.sessions.Rotate(ctx, sess); err != nil {
		s.logger.ErrorContext(ctx, "session persistence failed; returning token without session row",
			"user_id", id.ID, "error", err)
		return res, nil
	}
	res.Persisted = true
	s.emit(ctx, telemetry.EventSessionCreated, sess.ID, id.ID, "", meta.IP)
	return res, nil
}

// Logout marks the session behind token inactive with reason manual. It is idempotent: an empty,
// unknown or already-inactive token is not an error. Store failures are returned for logging only.
func (s *Service) Logout(ctx context.Context, token string, meta ClientMeta) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	changed, err := s.sessions.InvalidateByToken(ctx, token, domain.LogoutManual)
	if err != nil {
		return err
	}
	if changed {
		s.emit(ctx, telemetry.EventSessionInvalidated, "", "", domain.LogoutManual, meta.IP)
	}
	return nil
}

// HubLogout invalidates every active session of userID with reason hub_logout and returns how many changed.
func (s *Service) HubLogout(ctx context.Context, userID string) (int64, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, ErrUserIDRequired
	}
	n, err := s.sessions.InvalidateAllByUser(ctx, userID, domain.LogoutHubLogout)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.emit(ctx, telemetry.EventSessionInvalidated, "", userID, domain.LogoutHubLogout, "")
	}
	return n, nil
}

// Status reports whether SSO is enabled and whether the Hub answers its health probe.
// Probe failures, timeouts included, report HubConnected false with the error text.
func (s *Service) Status(ctx context.Context) Status {
	st := Status{SSOEnabled: s.cfg.Enabled, HubURL: s.cfg.HubURL, Service: s.cfg.Service}
	if !s.cfg.Enabled {
		return st
	}
	if err := s.hub.CheckHealthy(ctx); err != nil {
		st.Error = err.Error()
		return st
	}
	st.HubConnected = true
	return st
}

// ListActiveSessions returns the user's active sessions, newest first.
func (s *Service) ListActiveSessions(ctx context.Context, userID string) ([]*domain.Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrUserIDRequired
	}
	return s.sessions.ListActiveByUser(ctx, userID)
}

// RevokeSession invalidates one session of userID by id with reason manual.
// Returns ErrSessionNotFound when the user has no active session with that id.
func (s *Service) RevokeSession(ctx context.Context, userID, sessionID string) error {
	active, err := s.ListActiveSessions(ctx, userID)
	if err != nil {
		return err
	}
	for _, sess := range active {
		if sess.ID == sessionID {
			if err := s.sessions.InvalidateByID(ctx, sessionID, domain.LogoutManual); err != nil {
				return err
			}
			s.emit(ctx, telemetry.EventSessionInvalidated, sessionID, userID, domain.LogoutManual, "")
			return nil
		}
	}
	return ErrSessionNotFound
}

func (s *Service) emit(ctx context.Context, eventType, sessionID, userID string, reason domain.LogoutReason, ip string) {
	e := telemetry.NewSessionEvent(eventType, sessionID, userID, string(reason))
	e.Service = s.cfg.Service
	e.IP = ip
	telemetry.EmitAsync(s.events, ctx, e)
}
