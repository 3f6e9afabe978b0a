// Package middleware holds the HTTP middleware guarding protected routes. Gate authenticates a bearer
// token against the local session store and re-validates the user's Hub session on a throttled schedule.
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"sqabi/backend/internal/platform/httpjson"
	"sqabi/backend/internal/security"
	"sqabi/backend/internal/session/domain"
	"sqabi/backend/internal/telemetry"
)

// Rejection codes returned in the error field of a 401.
const (
	CodeUnauthorized       = "unauthorized"
	CodeInvalidToken       = "invalid_token"
	CodeTokenExpired       = "token_expired"
	CodeSessionNotFound    = "session_not_found"
	CodeSessionInactive    = "session_inactive"
	CodeHubSessionInactive = "hub_session_inactive"
	CodeInternal           = "internal_error"
)

const (
	msgUnauthorized    = "Token de acesso não fornecido"
	msgInvalidToken    = "Token inválido"
	msgTokenExpired    = "Token expirado. Faça login novamente"
	msgSessionNotFound = "Sessão não encontrada"
	msgInternal        = "Erro interno ao validar sessão"
)

const (
	defaultRecheckInterval = 2 * time.Minute
	// bookkeepingTimeout bounds best-effort writes so they do not hold the request.
	bookkeepingTimeout = 3 * time.Second
)

// TokenValidator verifies a local token's signature and expiry.
type TokenValidator interface {
	Validate(token string) (*security.Claims, error)
}

// SessionStore is the subset of the session repository used by the Gate.
type SessionStore interface {
	GetByToken(ctx context.Context, token string) (*domain.Session, error)
	InvalidateByToken(ctx context.Context, token string, reason domain.LogoutReason) (bool, error)
	InvalidateByID(ctx context.Context, id string, reason domain.LogoutReason) error
	TouchActivity(ctx context.Context, id string, at time.Time) error
	MarkHubChecked(ctx context.Context, id string, at time.Time) error
}

// LivenessChecker reports whether the Hub still considers the user's session live.
type LivenessChecker interface {
	IsUserSessionActive(ctx context.Context, userID string) (bool, error)
}

// LivenessPolicy decides what the Gate does when the liveness check itself fails.
type LivenessPolicy int

const (
	// FailOpen lets the request through when the liveness substrate is unavailable.
	FailOpen LivenessPolicy = iota
	// FailClosed rejects with hub_session_inactive (reason hub_down) and leaves the session active.
	FailClosed
)

func (p LivenessPolicy) String() string {
	if p == FailClosed {
		return "fail_closed"
	}
	return "fail_open"
}

// GateConfig holds the Gate's timing and policy settings.
type GateConfig struct {
	// RecheckInterval is the minimum time between Hub liveness checks for a session.
	RecheckInterval time.Duration
	// Inactivity is the local idle window; zero disables the idle check.
	Inactivity time.Duration
	Policy     LivenessPolicy
	// Service is recorded on emitted events.
	Service string
}

// Gate authenticates requests for protected routes.
type Gate struct {
	tokens   TokenValidator
	sessions SessionStore
	liveness LivenessChecker
	cfg      GateConfig
	logger   *slog.Logger
	events   telemetry.EventEmitter
	now      func() time.Time
}

// NewGate returns a Gate. logger and events may be nil.
func NewGate(tokens TokenValidator, sessions SessionStore, liveness LivenessChecker, cfg GateConfig, logger *slog.Logger, events telemetry.EventEmitter) *Gate {
	if cfg.RecheckInterval <= 0 {
		cfg.RecheckInterval = defaultRecheckInterval
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Gate{
		tokens:   tokens,
		sessions: sessions,
		liveness: liveness,
		cfg:      cfg,
		logger:   logger,
		events:   events,
		now:      time.Now,
	}
}

// Middleware rejects requests without a usable session and attaches the caller's Identity otherwise.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		token := BearerToken(r)
		if token == "" {
			httpjson.WriteError(w, http.StatusUnauthorized, CodeUnauthorized, msgUnauthorized)
			return
		}

		claims, err := g.tokens.Validate(token)
		if err != nil {
			if errors.Is(err, security.ErrTokenExpired) {
				g.expireByToken(ctx, token, r)
				httpjson.WriteError(w, http.StatusUnauthorized, CodeTokenExpired, msgTokenExpired)
				return
			}
			httpjson.WriteError(w, http.StatusUnauthorized, CodeInvalidToken, msgInvalidToken)
			return
		}

		sess, err := g.sessions.GetByToken(ctx, token)
		if err != nil {
			g.logger.ErrorContext(ctx, "session lookup failed", "error", err)
			httpjson.WriteError(w, http.StatusInternalServerError, CodeInternal, msgInternal)
			return
		}
		if sess == nil {
			httpjson.WriteError(w, http.StatusUnauthorized, CodeSessionNotFound, msgSessionNotFound)
			return
		}
		if sess.UserID != claims.Subject {
			g.logger.WarnContext(ctx, "token subject does not match session owner", "session_id", sess.ID)
			httpjson.WriteError(w, http.StatusUnauthorized, CodeInvalidToken, msgInvalidToken)
			return
		}
		if !sess.IsActive {
			httpjson.WriteRejection(w, http.StatusUnauthorized, CodeSessionInactive, sess.LogoutReason.Message(), string(sess.LogoutReason))
			return
		}

		now := g.now().UTC()
		if sess.Expired(now) || sess.Idle(now, g.cfg.Inactivity) {
			g.invalidate(ctx, sess, domain.LogoutExpired, r)
			httpjson.WriteRejection(w, http.StatusUnauthorized, CodeSessionInactive, domain.LogoutExpired.Message(), string(domain.LogoutExpired))
			return
		}

		if sess.HubCheckDue(now, g.cfg.RecheckInterval) {
			live, err := g.liveness.IsUserSessionActive(ctx, sess.UserID)
			switch {
			case err != nil:
				g.logger.WarnContext(ctx, "hub liveness check failed",
					"session_id", sess.ID, "user_id", sess.UserID, "policy", g.cfg.Policy.String(), "error", err)
				g.emit(ctx, telemetry.EventHubCheckFailed, sess, domain.LogoutHubDown, r)
				if g.cfg.Policy == FailClosed {
					httpjson.WriteRejection(w, http.StatusUnauthorized, CodeHubSessionInactive, domain.LogoutHubDown.Message(), string(domain.LogoutHubDown))
					return
				}
				g.bookkeep(ctx, "touch activity", func(c context.Context) error { return g.sessions.TouchActivity(c, sess.ID, now) })
			case !live:
				g.invalidate(ctx, sess, domain.LogoutHubInactive, r)
				httpjson.WriteRejection(w, http.StatusUnauthorized, CodeHubSessionInactive, domain.LogoutHubInactive.Message(), string(domain.LogoutHubInactive))
				return
			default:
				g.bookkeep(ctx, "mark hub checked", func(c context.Context) error { return g.sessions.MarkHubChecked(c, sess.ID, now) })
			}
		} else {
			g.bookkeep(ctx, "touch activity", func(c context.Context) error { return g.sessions.TouchActivity(c, sess.ID, now) })
		}

		ctx = WithIdentity(ctx, Identity{
			UserID:    claims.Subject,
			Email:     claims.Email,
			Role:      claims.Role,
			Name:      claims.Name,
			SessionID: sess.ID,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// expireByToken marks the session behind an expired token inactive. The token's claims are not trusted,
// so the row is found by token alone.
func (g *Gate) expireByToken(ctx context.Context, token string, r *http.Request) {
	var changed bool
	g.bookkeep(ctx, "expire session", func(c context.Context) error {
		var err error
		changed, err = g.sessions.InvalidateByToken(c, token, domain.LogoutExpired)
		return err
	})
	if changed {
		telemetry.EmitAsync(g.events, ctx, g.event(telemetry.EventSessionInvalidated, "", "", domain.LogoutExpired, r))
	}
}

func (g *Gate) invalidate(ctx context.Context, sess *domain.Session, reason domain.LogoutReason, r *http.Request) {
	g.bookkeep(ctx, "invalidate session", func(c context.Context) error { return g.sessions.InvalidateByID(c, sess.ID, reason) })
	g.emit(ctx, telemetry.EventSessionInvalidated, sess, reason, r)
}

// bookkeep runs a best-effort write; failures are logged and swallowed.
func (g *Gate) bookkeep(ctx context.Context, op string, fn func(context.Context) error) {
	c, cancel := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
	defer cancel()
	if err := fn(c); err != nil {
		g.logger.WarnContext(ctx, "session bookkeeping failed", "op", op, "error", err)
	}
}

func (g *Gate) emit(ctx context.Context, eventType string, sess *domain.Session, reason domain.LogoutReason, r *http.Request) {
	telemetry.EmitAsync(g.events, ctx, g.event(eventType, sess.ID, sess.UserID, reason, r))
}

func (g *Gate) event(eventType, sessionID, userID string, reason domain.LogoutReason, r *http.Request) *telemetry.SessionEvent {
	e := telemetry.NewSessionEvent(eventType, sessionID, userID, string(reason))
	e.Service = g.cfg.Service
	e.IP = r.RemoteAddr
	return e
}
