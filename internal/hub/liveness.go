package hub

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const defaultInactivity = 60 * time.Minute

// LivenessChecker reads the Hub's replicated user_sessions table to decide whether the Hub
// still considers a user's session live.
type LivenessChecker struct {
	db         *sql.DB
	inactivity time.Duration
	now        func() time.Time
}

// NewLivenessChecker returns a checker over db. A non-positive inactivity falls back to 60 minutes.
func NewLivenessChecker(db *sql.DB, inactivity time.Duration) *LivenessChecker {
	if inactivity <= 0 {
		inactivity = defaultInactivity
	}
	return &LivenessChecker{db: db, inactivity: inactivity, now: time.Now}
}

// IsUserSessionActive reports whether the user's most recent Hub session is active and was used
// within the inactivity window. A user without any Hub session row is not live.
// Errors are returned only for database failures.
func (c *LivenessChecker) IsUserSessionActive(ctx context.Context, userID string) (bool, error) {
	var (
		active       bool
		lastActivity sql.NullTime
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT is_active, COALESCE(last_activity, updated_at, created_at)
		 FROM user_sessions
		 WHERE user_id = $1
		 ORDER BY is_active DESC, COALESCE(last_activity, updated_at, created_at) DESC
		 LIMIT 1`, userID).Scan(&active, &lastActivity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return Live(active, lastActivity, c.now(), c.inactivity), nil
}

// Live applies the Hub inactivity rule to a session row: inactive rows and rows whose last activity
// is older than inactivity are dead, even if the row claims to be active.
func Live(active bool, lastActivity sql.NullTime, now time.Time, inactivity time.Duration) bool {
	if !active || !lastActivity.Valid {
		return false
	}
	return now.Sub(lastActivity.Time) <= inactivity
}
