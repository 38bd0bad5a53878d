package runstate

import (
	"context"
	"database/sql"
)

const migrationSQL = `
CREATE TABLE IF NOT EXISTS plug_state (
    provider TEXT NOT NULL,
    plug TEXT NOT NULL,
    integration TEXT NOT NULL,
    last_run_at TEXT,
    execution_count INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (provider, plug, integration)
);
CREATE TABLE IF NOT EXISTS plug_runs (
    id TEXT PRIMARY KEY,
    provider TEXT NOT NULL,
    plug TEXT NOT NULL,
    integration TEXT NOT NULL,
    success INTEGER NOT NULL,
    error_msg TEXT,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    started_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_plug_runs_key ON plug_runs(provider, plug, integration);
CREATE INDEX IF NOT EXISTS idx_plug_runs_started_at ON plug_runs(started_at);
`

// RunMigrations applies the database schema migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, migrationSQL)
	return err
}
