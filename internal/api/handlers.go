package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/hackgods/clinic-appointment-gateway/internal/appointment"
)

const clinicHeader = "X-Clinic-ID"

var errNoBackend = errors.New("backend not configured")

func listAppointmentsHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := parseListQuery(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_query", err.Error())
			return
		}
		if err := validate.Struct(q); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_query", describeValidation(err))
			return
		}

		appts, err := svc.ListAppointments(r.Context(), q.params())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, AppointmentListResponse{Appointments: appts, Count: len(appts)})
	}
}

func getAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appt, err := svc.GetAppointmentByID(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, appt)
	}
}

func createAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var draft appointment.Draft
		if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if draft.Clinic.IsZero() {
			if clinicID := strings.TrimSpace(r.Header.Get(clinicHeader)); clinicID != "" {
				draft.Clinic = appointment.RefID(clinicID)
			}
		}

		appt, err := svc.CreateAppointment(r.Context(), draft)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, appt)
	}
}

func updateAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var patch appointment.Draft
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, err := svc.UpdateAppointment(r.Context(), chi.URLParam(r, "id"), patch)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, appt)
	}
}

func deleteAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.DeleteAppointment(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func invalidateCacheHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		svc.Invalidate()
		w.WriteHeader(http.StatusNoContent)
	}
}

func appointmentEventsHandler(events EventReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if events == nil {
			writeError(w, http.StatusNotFound, "event_log_disabled", "the event log is not configured")
			return
		}

		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > 200 {
				writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be between 1 and 200")
				return
			}
			limit = n
		}

		logs, err := events.RecentEvents(r.Context(), chi.URLParam(r, "id"), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := make([]EventResponse, 0, len(logs))
		for _, ev := range logs {
			resp = append(resp, EventResponse{
				ID:            ev.ID,
				EventType:     ev.EventType,
				AppointmentID: ev.AppointmentID,
				ClinicID:      ev.ClinicID,
				Payload:       ev.Payload,
				CreatedAt:     ev.CreatedAt,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func parseListQuery(r *http.Request) (ListAppointmentsQuery, error) {
	v := r.URL.Query()
	q := ListAppointmentsQuery{
		ClinicID:  strings.TrimSpace(v.Get(appointment.ParamClinicID)),
		StartDate: v.Get(appointment.ParamStartDate),
		EndDate:   v.Get(appointment.ParamEndDate),
		Status:    v.Get(appointment.ParamStatus),
		DoctorID:  v.Get(appointment.ParamDoctorID),
		PatientID: v.Get(appointment.ParamPatientID),
	}
	if q.ClinicID == "" {
		q.ClinicID = strings.TrimSpace(r.Header.Get(clinicHeader))
	}

	var err error
	if q.Limit, err = optionalInt(v.Get(appointment.ParamLimit)); err != nil {
		return q, errors.New("limit must be an integer")
	}
	if q.Page, err = optionalInt(v.Get(appointment.ParamPage)); err != nil {
		return q, errors.New("page must be an integer")
	}
	return q, nil
}

func (q ListAppointmentsQuery) params() appointment.QueryParams {
	p := appointment.QueryParams{
		appointment.ParamClinicID:  q.ClinicID,
		appointment.ParamStartDate: q.StartDate,
		appointment.ParamEndDate:   q.EndDate,
		appointment.ParamStatus:    q.Status,
		appointment.ParamDoctorID:  q.DoctorID,
		appointment.ParamPatientID: q.PatientID,
	}
	if q.Limit != nil {
		p[appointment.ParamLimit] = strconv.Itoa(*q.Limit)
	}
	if q.Page != nil {
		p[appointment.ParamPage] = strconv.Itoa(*q.Page)
	}
	return p
}

func optionalInt(s string) (*int, error) {
	if s == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field()+" failed "+fe.Tag())
	}
	return strings.Join(fields, "; ")
}

// writeServiceError renders a gateway failure with its own status code. The
// network-failure code 0 is not a valid HTTP status and is sent as 502.
func writeServiceError(w http.ResponseWriter, err error) {
	se, ok := appointment.AsServiceError(err)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	status := se.StatusCode
	if status < 400 || status > 599 {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, se)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
