package api

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/hackgods/clinic-appointment-gateway/internal/appointment"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("instant", validateInstant)
	_ = validate.RegisterValidation("status_list", validateStatusList)
}

var knownStatuses = map[appointment.AppointmentStatus]bool{
	appointment.StatusScheduled:  true,
	appointment.StatusConfirmed:  true,
	appointment.StatusInProgress: true,
	appointment.StatusCompleted:  true,
	appointment.StatusCancelled:  true,
	appointment.StatusNoShow:     true,
}

// validateInstant accepts a calendar date or an RFC 3339 timestamp.
func validateInstant(fl validator.FieldLevel) bool {
	v := fl.Field().String()
	if _, err := time.Parse(time.DateOnly, v); err == nil {
		return true
	}
	_, err := time.Parse(time.RFC3339, v)
	return err == nil
}

func validateStatusList(fl validator.FieldLevel) bool {
	for _, part := range strings.Split(fl.Field().String(), ",") {
		if !knownStatuses[appointment.AppointmentStatus(strings.TrimSpace(part))] {
			return false
		}
	}
	return true
}
