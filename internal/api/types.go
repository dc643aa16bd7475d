package api

import (
	"time"

	"github.com/goccy/go-json"

	"github.com/hackgods/clinic-appointment-gateway/internal/appointment"
)

// ListAppointmentsQuery is the accepted query string of GET /appointments.
type ListAppointmentsQuery struct {
	ClinicID  string `validate:"omitempty,max=64"`
	StartDate string `validate:"omitempty,instant"`
	EndDate   string `validate:"omitempty,instant"`
	Status    string `validate:"omitempty,status_list"`
	Limit     *int   `validate:"omitempty,min=1,max=500"`
	Page      *int   `validate:"omitempty,min=1"`
	DoctorID  string `validate:"omitempty,max=64"`
	PatientID string `validate:"omitempty,max=64"`
}

type AppointmentListResponse struct {
	Appointments []appointment.NormalizedAppointment `json:"appointments"`
	Count        int                                 `json:"count"`
}

type EventResponse struct {
	ID            int64           `json:"id"`
	EventType     string          `json:"event_type"`
	AppointmentID string          `json:"appointment_id,omitempty"`
	ClinicID      string          `json:"clinic_id,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
