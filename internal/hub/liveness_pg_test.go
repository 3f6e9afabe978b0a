package hub

import (
	"context"
	"os"
	"testing"
	"time"

	"sqabi/backend/internal/db"
)

func TestLivenessChecker_IsUserSessionActive(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}
	ctx := context.Background()
	conn, err := db.Open(ctx, dsn)
	if err != nil {
		t.Skipf("Database connection failed (expected in test environment): %v", err)
	}
	defer conn.Close()
	// The temp table lives on one connection and shadows any replicated user_sessions.
	conn.SetMaxOpenConns(1)

	if _, err := conn.ExecContext(ctx, `CREATE TEMP TABLE user_sessions (
		user_id TEXT NOT NULL, is_active BOOLEAN NOT NULL,
		last_activity TIMESTAMPTZ, updated_at TIMESTAMPTZ, created_at TIMESTAMPTZ NOT NULL)`); err != nil {
		t.Fatalf("create user_sessions: %v", err)
	}
	now := time.Now().UTC()
	rows := []struct {
		user     string
		active   bool
		activity time.Time
	}{
		{"live", true, now.Add(-5 * time.Minute)},
		{"live", false, now.Add(-time.Minute)},
		{"idle", true, now.Add(-2 * time.Hour)},
		{"ended", false, now.Add(-time.Minute)},
	}
	for _, r := range rows {
		if _, err := conn.ExecContext(ctx,
			`INSERT INTO user_sessions (user_id, is_active, last_activity, created_at) VALUES ($1, $2, $3, $3)`,
			r.user, r.active, r.activity); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	c := NewLivenessChecker(conn, time.Hour)
	for user, want := range map[string]bool{"live": true, "idle": false, "ended": false, "unknown": false} {
		got, err := c.IsUserSessionActive(ctx, user)
		if err != nil {
			t.Fatalf("IsUserSessionActive(%s): %v", user, err)
		}
		if got != want {
			t.Errorf("IsUserSessionActive(%s) = %v, want %v", user, got, want)
		}
	}
}
