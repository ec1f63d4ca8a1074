package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"smartlock/models"
)

const lockEventsSchema = `
CREATE TABLE IF NOT EXISTS lock_events (
    uuid         UUID PRIMARY KEY,
    thing        TEXT        NOT NULL,
    kind         TEXT        NOT NULL,
    version      BIGINT      NOT NULL DEFAULT 0,
    lock_state   SMALLINT    NOT NULL,
    client_token TEXT        NOT NULL DEFAULT '',
    detail       TEXT        NOT NULL DEFAULT '',
    created_at   TIMESTAMPTZ NOT NULL
)`

func EnsureLockEventsTable(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, lockEventsSchema); err != nil {
		return fmt.Errorf("failed to create lock_events table: %w", err)
	}
	return nil
}

func InsertLockEvent(ctx context.Context, db *sql.DB, ev models.LockEvent) (uuid.UUID, error) {
	id := uuid.New()
	query := `
        INSERT INTO lock_events (uuid, thing, kind, version, lock_state, client_token, detail, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := db.ExecContext(ctx, query, id, ev.Thing, string(ev.Kind), int64(ev.Version),
		int16(ev.LockState), ev.ClientToken, ev.Detail, time.UnixMilli(ev.Timestamp).UTC())
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert lock event: %w", err)
	}
	return id, nil
}
