package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sqabi/backend/internal/session/domain"
)

const sessionColumns = `id, user_id, local_token, hub_user_id, is_active, expires_at, last_activity,
	last_hub_check, logout_at, logout_reason, ip_address, user_agent, created_at, updated_at`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a session repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByToken returns the session for token, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM bi_sessions WHERE local_token = $1`, token)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

// ListActiveByUser returns the active sessions of the user, newest first.
func (r *PostgresRepository) ListActiveByUser(ctx context.Context, userID string) ([]*domain.Session, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM bi_sessions WHERE user_id = $1 AND is_active ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Rotate runs the single-session-per-user rotation in one transaction. A transaction-scoped advisory
// lock keyed by user_id serializes concurrent logins of the same user, so no reader observes two
// active rows and the partial unique index never trips.
func (r *PostgresRepository) Rotate(ctx context.Context, s *domain.Session) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("session rotate: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, s.UserID); err != nil {
		return fmt.Errorf("session rotate: lock: %w", err)
	}
	now := time.Now().UTC()
	if _, err = tx.ExecContext(ctx,
		`UPDATE bi_sessions SET is_active = FALSE, logout_at = $2, logout_reason = $3, updated_at = $2
		 WHERE user_id = $1 AND is_active`,
		s.UserID, now, string(domain.LogoutNewLogin)); err != nil {
		return fmt.Errorf("session rotate: invalidate: %w", err)
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO bi_sessions (id, user_id, local_token, hub_user_id, is_active, expires_at, last_activity,
			last_hub_check, ip_address, user_agent, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, TRUE, $5, $6, $7, $8, $9, $10, $10)`,
		s.ID, s.UserID, s.LocalToken, s.HubUserID, s.ExpiresAt, s.LastActivity,
		timeToNullTime(s.LastHubCheck), nullString(s.IPAddress), nullString(s.UserAgent), s.CreatedAt); err != nil {
		return fmt.Errorf("session rotate: insert: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("session rotate: commit: %w", err)
	}
	return nil
}

// InvalidateByToken deactivates the active session holding token. Already-inactive or unknown tokens report false.
func (r *PostgresRepository) InvalidateByToken(ctx context.Context, token string, reason domain.LogoutReason) (bool, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`UPDATE bi_sessions SET is_active = FALSE, logout_at = $2, logout_reason = $3, updated_at = $2
		 WHERE local_token = $1 AND is_active`,
		token, now, string(reason))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// InvalidateByID deactivates the active session with the given id.
func (r *PostgresRepository) InvalidateByID(ctx context.Context, id string, reason domain.LogoutReason) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx,
		`UPDATE bi_sessions SET is_active = FALSE, logout_at = $2, logout_reason = $3, updated_at = $2
		 WHERE id = $1 AND is_active`,
		id, now, string(reason))
	return err
}

// InvalidateAllByUser deactivates all active sessions for the user.
func (r *PostgresRepository) InvalidateAllByUser(ctx context.Context, userID string, reason domain.LogoutReason) (int64, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`UPDATE bi_sessions SET is_active = FALSE, logout_at = $2, logout_reason = $3, updated_at = $2
		 WHERE user_id = $1 AND is_active`,
		userID, now, string(reason))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// TouchActivity sets the session's last_activity.
func (r *PostgresRepository) TouchActivity(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE bi_sessions SET last_activity = $2, updated_at = $2 WHERE id = $1`, id, at)
	return err
}

// MarkHubChecked sets last_hub_check and last_activity.
func (r *PostgresRepository) MarkHubChecked(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE bi_sessions SET last_hub_check = $2, last_activity = $2, updated_at = $2 WHERE id = $1`, id, at)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var (
		s            domain.Session
		lastHubCheck sql.NullTime
		logoutAt     sql.NullTime
		logoutReason sql.NullString
		ip           sql.NullString
		userAgent    sql.NullString
	)
	if err := row.Scan(&s.ID, &s.UserID, &s.LocalToken, &s.HubUserID, &s.IsActive, &s.ExpiresAt, &s.LastActivity,
		&lastHubCheck, &logoutAt, &logoutReason, &ip, &userAgent, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.LastHubCheck = nullTimeToPtr(lastHubCheck)
	s.LogoutAt = nullTimeToPtr(logoutAt)
	s.LogoutReason = domain.LogoutReason(logoutReason.String)
	s.IPAddress = ip.String
	s.UserAgent = userAgent.String
	return &s, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func timeToNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullTimeToPtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	return &n.Time
}
