package db

import "embed"

// MigrationFS embeds SQL migration files from internal/db/migrations.
// Used by the migrate runner (sqabi migrate) to apply the bi_sessions schema.
// The Hub-owned user_sessions table is replicated by the Hub and is not migrated here.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
