package appointment

import (
	"strings"
	"time"

	"github.com/goccy/go-json"
)

type AppointmentStatus string

const (
	StatusScheduled  AppointmentStatus = "scheduled"
	StatusConfirmed  AppointmentStatus = "confirmed"
	StatusInProgress AppointmentStatus = "in-progress"
	StatusCompleted  AppointmentStatus = "completed"
	StatusCancelled  AppointmentStatus = "cancelled"
	StatusNoShow     AppointmentStatus = "no-show"
)

// RawAppointment is an appointment as the clinic API sent it. Fields keeps every
// key verbatim; the typed fields are read from it and treat values of an
// unexpected type as absent.
type RawAppointment struct {
	ID             string
	StartTime      string
	EndTime        string
	CreatedAt      string
	UpdatedAt      string
	PatientName    string
	PatientPhone   string
	DoctorName     string
	Specialization string
	PatientID      Reference
	Patient        Reference
	DoctorID       Reference
	Doctor         Reference
	Status         AppointmentStatus
	ServiceType    string
	Notes          string

	Fields map[string]json.RawMessage
}

func (r *RawAppointment) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	*r = RawAppointment{
		ID:             firstNonEmpty(stringField(fields, "_id"), stringField(fields, "id")),
		StartTime:      stringField(fields, "startTime"),
		EndTime:        stringField(fields, "endTime"),
		CreatedAt:      stringField(fields, "createdAt"),
		UpdatedAt:      stringField(fields, "updatedAt"),
		PatientName:    stringField(fields, "patientName"),
		PatientPhone:   stringField(fields, "patientPhone"),
		DoctorName:     stringField(fields, "doctorName"),
		Specialization: stringField(fields, "specialization"),
		PatientID:      referenceField(fields, "patientId"),
		Patient:        referenceField(fields, "patient"),
		DoctorID:       referenceField(fields, "doctorId"),
		Doctor:         referenceField(fields, "doctor"),
		Status:         AppointmentStatus(stringField(fields, "status")),
		ServiceType:    stringField(fields, "serviceType"),
		Notes:          stringField(fields, "notes"),
		Fields:         fields,
	}
	return nil
}

// NormalizedAppointment is the read-only projection handed to callers.
// Empty strings and nil instants mean the source did not supply a value.
type NormalizedAppointment struct {
	ID             string
	PatientID      string
	DoctorID       string
	PatientName    string
	PatientPhone   string
	DoctorName     string
	Specialization string
	Status         AppointmentStatus
	ServiceType    string
	Notes          string
	StartTime      *time.Time
	EndTime        *time.Time
	CreatedAt      *time.Time
	UpdatedAt      *time.Time

	raw RawAppointment
}

// Raw returns the record the projection was built from.
func (a NormalizedAppointment) Raw() RawAppointment {
	return a.raw
}

// MarshalJSON passes every received field through and overlays the resolved values.
func (a NormalizedAppointment) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(a.raw.Fields)+8)
	for k, v := range a.raw.Fields {
		out[k] = v
	}
	if a.ID != "" {
		if _, ok := out["_id"]; !ok {
			out["id"] = a.ID
		}
	}
	out["patientName"] = nullableString(a.PatientName)
	out["patientPhone"] = nullableString(a.PatientPhone)
	out["doctorName"] = nullableString(a.DoctorName)
	out["specialization"] = nullableString(a.Specialization)
	out["startTime"] = nullableInstant(a.StartTime)
	out["endTime"] = nullableInstant(a.EndTime)
	out["createdAt"] = nullableInstant(a.CreatedAt)
	out["updatedAt"] = nullableInstant(a.UpdatedAt)
	return json.Marshal(out)
}

func referenceField(fields map[string]json.RawMessage, key string) Reference {
	var ref Reference
	raw, ok := fields[key]
	if !ok {
		return ref
	}
	if err := ref.UnmarshalJSON(raw); err != nil {
		return Reference{}
	}
	return ref
}

// instantLayouts are tried in order; zone-less forms are read as UTC.
var instantLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	time.DateOnly,
}

// parseInstant returns nil for empty or unparseable input.
func parseInstant(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range instantLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// wireTime is the canonical instant encoding sent to the clinic API.
func wireTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableInstant(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
