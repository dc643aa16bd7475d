package appointment

import (
	"context"
	"time"
)

const (
	EventAppointmentCreated = "APPOINTMENT_CREATED"
	EventAppointmentUpdated = "APPOINTMENT_UPDATED"
	EventAppointmentDeleted = "APPOINTMENT_DELETED"
)

// EventLog is one audit row for a successful write through the gateway.
type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID string
	ClinicID      string
	Payload       []byte
	CreatedAt     time.Time
}

// EventRecorder persists gateway write events.
type EventRecorder interface {
	InsertEvent(ctx context.Context, ev EventLog) error
}
