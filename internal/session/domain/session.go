package domain

import "time"

// LogoutReason records why a BI session transitioned to inactive.
type LogoutReason string

const (
	LogoutHubLogout   LogoutReason = "hub_logout"
	LogoutHubInactive LogoutReason = "hub_inactive"
	LogoutHubDown     LogoutReason = "hub_down"
	LogoutManual      LogoutReason = "manual"
	LogoutExpired     LogoutReason = "expired"
	LogoutNewLogin    LogoutReason = "new_login"
)

// DefaultInactiveMessage is shown when a session is inactive for an unknown reason.
const DefaultInactiveMessage = "Sessão inativa"

var reasonMessages = map[LogoutReason]string{
	LogoutHubLogout:   "Sessão encerrada: logout realizado no Hub",
	LogoutHubInactive: "Sessão encerrada: inatividade detectada no Hub",
	LogoutHubDown:     "Sessão encerrada: Hub indisponível",
	LogoutManual:      "Sessão encerrada: logout realizado",
	LogoutExpired:     "Sessão expirada. Faça login novamente",
	LogoutNewLogin:    "Sessão encerrada: novo login realizado em outro dispositivo",
}

// Valid reports whether r is one of the known logout reasons.
func (r LogoutReason) Valid() bool {
	_, ok := reasonMessages[r]
	return ok
}

// Message returns the user-facing text for r, or DefaultInactiveMessage if r is unknown.
func (r LogoutReason) Message() string {
	if m, ok := reasonMessages[r]; ok {
		return m
	}
	return DefaultInactiveMessage
}

// Session is a local BI session derived from a successful Hub validation.
// LogoutReason and LogoutAt are only meaningful when IsActive is false.
type Session struct {
	ID           string
	UserID       string
	LocalToken   string
	HubUserID    string
	IsActive     bool
	ExpiresAt    time.Time
	LastActivity time.Time
	LastHubCheck *time.Time // nil until the first successful liveness re-check
	LogoutAt     *time.Time
	LogoutReason LogoutReason
	IPAddress    string
	UserAgent    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Expired reports whether the session's absolute expiry has passed at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// Idle reports whether the last recorded activity is older than the inactivity window.
// A zero window disables the check.
func (s *Session) Idle(now time.Time, inactivity time.Duration) bool {
	if inactivity <= 0 || s.LastActivity.IsZero() {
		return false
	}
	return now.Sub(s.LastActivity) > inactivity
}

// HubCheckDue reports whether a liveness re-check against the Hub is due:
// never checked, or at least interval elapsed since the last successful check.
func (s *Session) HubCheckDue(now time.Time, interval time.Duration) bool {
	if s.LastHubCheck == nil {
		return true
	}
	return now.Sub(*s.LastHubCheck) >= interval
}
