package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

func ConnectPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	// The gateway only appends audit rows, so a small pool is enough.
	cfg.MaxConns = 4
	cfg.MinConns = 0
	cfg.HealthCheckPeriod = 30 * time.Second
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 15 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return pool, nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const eventLogSchema = `
CREATE TABLE IF NOT EXISTS event_logs (
	id             BIGSERIAL PRIMARY KEY,
	event_type     TEXT        NOT NULL,
	appointment_id TEXT,
	clinic_id      TEXT,
	payload        JSONB,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS event_logs_appointment_created_idx
	ON event_logs (appointment_id, created_at DESC);
`

// EnsureEventLogSchema creates the event_logs table and its lookup index when missing.
func EnsureEventLogSchema(ctx context.Context, db execer) error {
	if _, err := db.Exec(ctx, eventLogSchema); err != nil {
		return fmt.Errorf("ensure event_logs schema: %w", err)
	}
	return nil
}
