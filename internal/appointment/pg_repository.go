package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgExecutor is the subset of *pgxpool.Pool the event log needs.
type PgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PgEventLog writes to the event_logs table:
//
//	event_logs(id bigserial, event_type text, appointment_id text, clinic_id text,
//	           payload jsonb, created_at timestamptz)
type PgEventLog struct {
	db PgExecutor
}

func NewPgEventLog(db PgExecutor) *PgEventLog {
	return &PgEventLog{db: db}
}

func (r *PgEventLog) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, clinic_id, payload, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, ev.EventType, nullableText(ev.AppointmentID), nullableText(ev.ClinicID), ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

// RecentEvents returns the latest events for an appointment, newest first.
func (r *PgEventLog) RecentEvents(ctx context.Context, appointmentID string, limit int) ([]EventLog, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, event_type, COALESCE(appointment_id, ''), COALESCE(clinic_id, ''), payload, created_at
		FROM event_logs
		WHERE appointment_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, appointmentID, limit)
	if err != nil {
		return nil, fmt.Errorf("query event logs: %w", err)
	}
	defer rows.Close()

	var result []EventLog
	for rows.Next() {
		var ev EventLog
		if err := rows.Scan(&ev.ID, &ev.EventType, &ev.AppointmentID, &ev.ClinicID, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event log: %w", err)
		}
		result = append(result, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func nullableText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
