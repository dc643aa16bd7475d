package appointment

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	redisclient "github.com/hackgods/clinic-appointment-gateway/internal/redis"
)

// Draft is an appointment submitted for creation or as an update patch.
// References may be identifiers or embedded objects.
type Draft struct {
	Clinic         Reference         `json:"clinicId"`
	Patient        Reference         `json:"patientId"`
	Doctor         Reference         `json:"doctorId"`
	StartTime      string            `json:"startTime"`
	EndTime        string            `json:"endTime"`
	Status         AppointmentStatus `json:"status,omitempty"`
	ServiceType    string            `json:"serviceType,omitempty"`
	Notes          string            `json:"notes,omitempty"`
	PatientName    string            `json:"patientName,omitempty"`
	PatientPhone   string            `json:"patientPhone,omitempty"`
	DoctorName     string            `json:"doctorName,omitempty"`
	Specialization string            `json:"specialization,omitempty"`
}

// CreateAppointment validates the draft, then posts it. Checks run in order
// and stop at the first failure: clinic, patient, doctor, start, end, ordering.
// A successful create clears the list cache.
func (s *Service) CreateAppointment(ctx context.Context, d Draft) (NormalizedAppointment, error) {
	payload, clinicID, se := s.prepareDraft(ctx, d)
	if se != nil {
		return NormalizedAppointment{}, s.fail(ctx, "create", se)
	}

	var created NormalizedAppointment
	submit := func(ctx context.Context) {
		created, se = s.submit(ctx, payload, clinicID)
	}

	if s.locker == nil {
		submit(ctx)
	} else {
		ran := false
		err := s.locker.WithLock(ctx, draftLockKey(payload), func(lockCtx context.Context) error {
			ran = true
			submit(lockCtx)
			return nil
		})
		switch {
		case errors.Is(err, redisclient.ErrLockNotAcquired):
			se = newServiceError(http.StatusConflict, MsgConflict, detailsSlotBeingBooked)
		case err != nil && !ran:
			s.logger.Warn("draft lock unavailable, submitting unguarded", zap.Error(err))
			submit(ctx)
		}
	}

	if se != nil {
		return NormalizedAppointment{}, s.fail(ctx, "create", se)
	}
	return created, nil
}

func (s *Service) submit(ctx context.Context, payload map[string]any, clinicID string) (NormalizedAppointment, *ServiceError) {
	resp, err := s.transport.Post(ctx, appointmentsPath, payload)
	s.metrics.ObserveTransport("create", err)
	if err != nil {
		return NormalizedAppointment{}, classify(err, kindWrite)
	}
	s.cache.Invalidate()

	raw, err := decodeOne(resp.Data)
	if err != nil || raw.ID == "" {
		raw = mergeRaw(raw, payload)
	}
	created := Normalize(raw)
	s.logEvent(ctx, EventAppointmentCreated, created.ID, clinicID, payload)
	return created, nil
}

func (s *Service) prepareDraft(ctx context.Context, d Draft) (map[string]any, string, *ServiceError) {
	clinicID := d.Clinic.Unwrap()
	if clinicID == "" {
		clinicID = s.resolver.Resolve(ctx)
	}
	if clinicID == "" {
		return nil, "", validationError(MsgMissingClinic, "clinicId")
	}

	patientID := d.Patient.Unwrap()
	if patientID == "" {
		return nil, "", validationError(MsgMissingPatient, "patientId")
	}

	doctorID := d.Doctor.Unwrap()
	if d.Doctor.Embedded != nil && doctorID == "" {
		return nil, "", validationError(MsgInvalidDoctor, "doctorId")
	}

	start := parseInstant(d.StartTime)
	if start == nil {
		return nil, "", validationError(MsgInvalidStartTime, "startTime")
	}

	var end *time.Time
	if strings.TrimSpace(d.EndTime) == "" {
		t := start.Add(s.defaultDuration)
		end = &t
	} else if end = parseInstant(d.EndTime); end == nil {
		return nil, "", validationError(MsgInvalidEndTime, "endTime")
	}

	if !end.After(*start) {
		return nil, "", validationError(MsgEndNotAfterStart, "endTime")
	}
	if start.Before(s.now()) {
		s.logger.Warn("appointment start time is in the past",
			zap.String("clinic_id", clinicID),
			zap.Time("start_time", *start),
		)
	}

	status := d.Status
	if status == "" {
		status = StatusScheduled
	}

	payload := map[string]any{
		"clinicId":  clinicID,
		"patientId": patientID,
		"startTime": wireTime(*start),
		"endTime":   wireTime(*end),
		"status":    string(status),
	}
	if doctorID != "" {
		payload["doctorId"] = doctorID
	}
	setIf(payload, "serviceType", d.ServiceType)
	setIf(payload, "notes", d.Notes)
	setIf(payload, "patientName", firstNonEmpty(d.PatientName, d.Patient.Embedded.DisplayName()))
	setIf(payload, "patientPhone", firstNonEmpty(d.PatientPhone, d.Patient.Embedded.Telephone()))
	setIf(payload, "doctorName", firstNonEmpty(d.DoctorName, d.Doctor.Embedded.DisplayName()))
	setIf(payload, "specialization", firstNonEmpty(d.Specialization, d.Doctor.Embedded.specialization()))

	return payload, clinicID, nil
}

// UpdateAppointment sends only the fields present in patch. When both times are
// given the end must follow the start.
func (s *Service) UpdateAppointment(ctx context.Context, id string, patch Draft) (NormalizedAppointment, error) {
	if se := checkID(id); se != nil {
		return NormalizedAppointment{}, s.fail(ctx, "update", se)
	}
	payload, se := preparePatch(patch)
	if se != nil {
		return NormalizedAppointment{}, s.fail(ctx, "update", se)
	}

	resp, err := s.transport.Put(ctx, appointmentPath(id), payload)
	s.metrics.ObserveTransport("update", err)
	if err != nil {
		return NormalizedAppointment{}, s.fail(ctx, "update", classify(err, kindWrite))
	}
	s.cache.Invalidate()

	raw, err := decodeOne(resp.Data)
	if err != nil || raw.ID == "" {
		withID := map[string]any{"_id": strings.TrimSpace(id)}
		for k, v := range payload {
			withID[k] = v
		}
		raw = mergeRaw(raw, withID)
	}
	updated := Normalize(raw)
	clinicID, _ := payload["clinicId"].(string)
	s.logEvent(ctx, EventAppointmentUpdated, strings.TrimSpace(id), clinicID, payload)
	return updated, nil
}

// DeleteAppointment removes the appointment and clears the list cache.
func (s *Service) DeleteAppointment(ctx context.Context, id string) error {
	if se := checkID(id); se != nil {
		return s.fail(ctx, "delete", se)
	}

	_, err := s.transport.Delete(ctx, appointmentPath(id))
	s.metrics.ObserveTransport("delete", err)
	if err != nil {
		return s.fail(ctx, "delete", classify(err, kindDelete))
	}
	s.cache.Invalidate()
	s.logEvent(ctx, EventAppointmentDeleted, strings.TrimSpace(id), "", map[string]any{})
	return nil
}

func preparePatch(p Draft) (map[string]any, *ServiceError) {
	payload := map[string]any{}

	if !p.Clinic.IsZero() {
		id := p.Clinic.Unwrap()
		if id == "" {
			return nil, validationError(MsgMissingClinic, "clinicId")
		}
		payload["clinicId"] = id
	}
	if !p.Patient.IsZero() {
		id := p.Patient.Unwrap()
		if id == "" {
			return nil, validationError(MsgMissingPatient, "patientId")
		}
		payload["patientId"] = id
	}
	if !p.Doctor.IsZero() {
		id := p.Doctor.Unwrap()
		if id == "" {
			return nil, validationError(MsgInvalidDoctor, "doctorId")
		}
		payload["doctorId"] = id
	}

	var start, end *time.Time
	if strings.TrimSpace(p.StartTime) != "" {
		if start = parseInstant(p.StartTime); start == nil {
			return nil, validationError(MsgInvalidStartTime, "startTime")
		}
		payload["startTime"] = wireTime(*start)
	}
	if strings.TrimSpace(p.EndTime) != "" {
		if end = parseInstant(p.EndTime); end == nil {
			return nil, validationError(MsgInvalidEndTime, "endTime")
		}
		payload["endTime"] = wireTime(*end)
	}
	if start != nil && end != nil && !end.After(*start) {
		return nil, validationError(MsgEndNotAfterStart, "endTime")
	}

	setIf(payload, "status", string(p.Status))
	setIf(payload, "serviceType", p.ServiceType)
	setIf(payload, "notes", p.Notes)
	setIf(payload, "patientName", firstNonEmpty(p.PatientName, p.Patient.Embedded.DisplayName()))
	setIf(payload, "patientPhone", firstNonEmpty(p.PatientPhone, p.Patient.Embedded.Telephone()))
	setIf(payload, "doctorName", firstNonEmpty(p.DoctorName, p.Doctor.Embedded.DisplayName()))
	setIf(payload, "specialization", firstNonEmpty(p.Specialization, p.Doctor.Embedded.specialization()))

	if len(payload) == 0 {
		return nil, validationError(MsgEmptyUpdate, "")
	}
	return payload, nil
}

// mergeRaw fills the fields the API left out of its echo with what we sent.
func mergeRaw(echoed RawAppointment, sent map[string]any) RawAppointment {
	merged := map[string]json.RawMessage{}
	for k, v := range sent {
		if b, err := json.Marshal(v); err == nil {
			merged[k] = b
		}
	}
	for k, v := range echoed.Fields {
		merged[k] = v
	}
	data, err := json.Marshal(merged)
	if err != nil {
		return echoed
	}
	var raw RawAppointment
	if err := json.Unmarshal(data, &raw); err != nil {
		return echoed
	}
	return raw
}

func draftLockKey(payload map[string]any) string {
	owner, _ := payload["doctorId"].(string)
	if owner == "" {
		owner, _ = payload["patientId"].(string)
	}
	clinicID, _ := payload["clinicId"].(string)
	start, _ := payload["startTime"].(string)
	return clinicID + ":" + owner + ":" + start
}

func setIf(m map[string]any, key, value string) {
	if value = strings.TrimSpace(value); value != "" {
		m[key] = value
	}
}
