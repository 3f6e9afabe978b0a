package repository

import (
	"context"
	"time"

	"sqabi/backend/internal/session/domain"
)

// Repository defines persistence for BI sessions. Rows are never hard-deleted.
type Repository interface {
	// GetByToken returns the session whose local_token equals token, or nil if none exists.
	GetByToken(ctx context.Context, token string) (*domain.Session, error)
	// ListActiveByUser returns the user's active sessions, newest first.
	ListActiveByUser(ctx context.Context, userID string) ([]*domain.Session, error)
	// Rotate deactivates every active session of s.UserID with reason new_login and inserts s, atomically.
	Rotate(ctx context.Context, s *domain.Session) error
	// InvalidateByToken deactivates the active session with the given token. Reports whether a row changed.
	InvalidateByToken(ctx context.Context, token string, reason domain.LogoutReason) (bool, error)
	// InvalidateByID deactivates the active session with the given id.
	InvalidateByID(ctx context.Context, id string, reason domain.LogoutReason) error
	// InvalidateAllByUser deactivates every active session of the user and returns how many changed.
	InvalidateAllByUser(ctx context.Context, userID string, reason domain.LogoutReason) (int64, error)
	// TouchActivity sets last_activity.
	TouchActivity(ctx context.Context, id string, at time.Time) error
	// MarkHubChecked sets last_hub_check and last_activity after a successful liveness re-check.
	MarkHubChecked(ctx context.Context, id string, at time.Time) error
}
