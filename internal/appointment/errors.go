package appointment

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/hackgods/clinic-appointment-gateway/internal/transport"
)

// StatusNetworkError marks a failure where the clinic API never answered.
const StatusNetworkError = 0

const (
	MsgPermissionDenied  = "Permission denied"
	MsgAuthRequired      = "Authentication required"
	MsgNotFound          = "Appointment not found"
	MsgConflict          = "Appointment conflict"
	MsgNetworkError      = "Network error"
	MsgInvalidResponse   = "Invalid response"
	MsgInvalidIdentifier = "invalid identifier"
	MsgMissingClinic     = "missing clinic identifier"
	MsgMissingPatient    = "missing patient identifier"
	MsgInvalidDoctor     = "invalid doctor reference"
	MsgInvalidStartTime  = "missing or invalid start time"
	MsgInvalidEndTime    = "invalid end time"
	MsgEndNotAfterStart  = "end time must be after start time"
	MsgEmptyUpdate       = "no fields to update"
)

const detailsSlotBeingBooked = "slot is currently being booked, please retry shortly"

// ServiceError is the only failure value gateway operations return.
type ServiceError struct {
	IsError    bool   `json:"isError"`
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Details    string `json:"details"`
}

func (e *ServiceError) Error() string {
	if e.Details == "" {
		return fmt.Sprintf("%d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%d: %s: %s", e.StatusCode, e.Message, e.Details)
}

func newServiceError(status int, message, details string) *ServiceError {
	return &ServiceError{IsError: true, StatusCode: status, Message: message, Details: details}
}

// AsServiceError extracts a ServiceError from err.
func AsServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

func validationError(message, details string) *ServiceError {
	return newServiceError(http.StatusBadRequest, message, details)
}

type requestKind int

const (
	kindList requestKind = iota
	kindSingle
	kindWrite
	kindDelete
)

// responseStatus returns the HTTP status carried by a transport error, or -1.
func responseStatus(err error) int {
	var terr *transport.Error
	if errors.As(err, &terr) && terr.Response != nil {
		return terr.Response.Status
	}
	return -1
}

// classify maps a failed call onto the error taxonomy. A list 404 is not an
// error and is handled by the caller before this point.
func classify(err error, kind requestKind) *ServiceError {
	var terr *transport.Error
	if !errors.As(err, &terr) {
		return newServiceError(http.StatusBadGateway, MsgInvalidResponse, err.Error())
	}
	if terr.Response == nil {
		details := err.Error()
		if terr.Err != nil {
			details = terr.Err.Error()
		}
		return newServiceError(StatusNetworkError, MsgNetworkError, details)
	}

	status := terr.Response.Status
	body := parseErrorBody(terr.Response.Data)
	fallback := terr.Error()

	switch {
	case status == http.StatusForbidden:
		return newServiceError(status, MsgPermissionDenied, firstNonEmpty(body.Message, body.Details, fallback))
	case status == http.StatusUnauthorized:
		return newServiceError(status, MsgAuthRequired, firstNonEmpty(body.Message, body.Details, fallback))
	case status == http.StatusNotFound && kind != kindList:
		return newServiceError(status, MsgNotFound, firstNonEmpty(body.Message, body.Details, fallback))
	case status == http.StatusConflict && kind == kindWrite:
		return newServiceError(status, MsgConflict, firstNonEmpty(body.Message, body.Details, body.Error, fallback))
	default:
		return newServiceError(status,
			firstNonEmpty(body.Message, fallback),
			firstNonEmpty(body.Details, body.Error, body.Message, fallback),
		)
	}
}

type errorBody struct {
	Message string
	Details string
	Error   string
}

func parseErrorBody(data []byte) errorBody {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return errorBody{}
	}
	return errorBody{
		Message: stringField(fields, "message"),
		Details: stringField(fields, "details"),
		Error:   stringField(fields, "error"),
	}
}
