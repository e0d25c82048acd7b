// Package postgres provides the PostgreSQL-backed [callstore.Store] used in
// production. All operations share a single [pgxpool.Pool]; writes that read
// the current row first (status advances, cost merges) run inside a
// transaction with a row lock so concurrent webhook writers serialize.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//
//	_ = store.CreateCall(ctx, call)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlCalls = `
CREATE TABLE IF NOT EXISTS calls (
    id            TEXT         PRIMARY KEY,
    from_number   TEXT         NOT NULL,
    language      TEXT         NOT NULL DEFAULT '',
    customer_type TEXT         NOT NULL DEFAULT '',
    intent        TEXT         NOT NULL DEFAULT '',
    status        TEXT         NOT NULL DEFAULT 'INIT',
    summary       TEXT         NOT NULL DEFAULT '',
    transcript    TEXT         NOT NULL DEFAULT '',
    costs         JSONB        NOT NULL DEFAULT '{}',
    created_at    TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at    TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_calls_from_number_created_at
    ON calls (from_number, created_at);

CREATE INDEX IF NOT EXISTS idx_calls_status_created_at
    ON calls (status, created_at);
`

const ddlCallbackTasks = `
CREATE TABLE IF NOT EXISTS callback_tasks (
    id               TEXT         PRIMARY KEY,
    call_id          TEXT         NOT NULL UNIQUE REFERENCES calls (id) ON DELETE CASCADE,
    priority         SMALLINT     NOT NULL DEFAULT 2,
    name             TEXT         NOT NULL DEFAULT '',
    callback_number  TEXT         NOT NULL,
    best_time_window TEXT         NOT NULL DEFAULT '',
    notes            TEXT         NOT NULL DEFAULT '',
    assignee         TEXT         NOT NULL DEFAULT '',
    status           TEXT         NOT NULL DEFAULT 'PENDING',
    created_at       TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at       TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_callback_tasks_status_priority
    ON callback_tasks (status, priority);
`

// Migrate creates or ensures all required tables and indexes exist. It is
// idempotent (CREATE TABLE IF NOT EXISTS / CREATE INDEX IF NOT EXISTS) and
// safe to call on every application start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range []string{ddlCalls, ddlCallbackTasks} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
