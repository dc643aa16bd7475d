package appointment

import (
	"net/url"
	"strings"
)

// Query parameter keys understood by the clinic API.
const (
	ParamClinicID  = "clinicId"
	ParamStartDate = "startDate"
	ParamEndDate   = "endDate"
	ParamStatus    = "status"
	ParamLimit     = "limit"
	ParamPage      = "page"
	ParamDoctorID  = "doctorId"
	ParamPatientID = "patientId"
)

// QueryParams filters a list request. Empty values are treated as unset.
type QueryParams map[string]string

// Clone returns a copy with empty values dropped.
func (p QueryParams) Clone() QueryParams {
	out := make(QueryParams, len(p))
	for k, v := range p {
		if v = strings.TrimSpace(v); v != "" {
			out[k] = v
		}
	}
	return out
}

func (p QueryParams) Values() url.Values {
	v := make(url.Values, len(p))
	for key, val := range p {
		if val != "" {
			v.Set(key, val)
		}
	}
	return v
}

// Canonical is the cache key form: keys sorted, values URL-encoded.
func (p QueryParams) Canonical() string {
	return p.Values().Encode()
}
