package appointment

// Normalize flattens patient and doctor details and parses the instants.
//
// Names resolve as: the flat field on the record, then the embedded "patientId"
// (or "doctorId") object, then the embedded "patient" (or "doctor") object. Each
// embedded object offers "name" before "firstName lastName". Specialization is
// taken from whichever doctor reference supplied the name.
func Normalize(raw RawAppointment) NormalizedAppointment {
	n := NormalizedAppointment{
		ID:          raw.ID,
		PatientID:   firstNonEmpty(raw.PatientID.Unwrap(), raw.Patient.Unwrap()),
		DoctorID:    firstNonEmpty(raw.DoctorID.Unwrap(), raw.Doctor.Unwrap()),
		Status:      raw.Status,
		ServiceType: raw.ServiceType,
		Notes:       raw.Notes,
		StartTime:   parseInstant(raw.StartTime),
		EndTime:     parseInstant(raw.EndTime),
		CreatedAt:   parseInstant(raw.CreatedAt),
		UpdatedAt:   parseInstant(raw.UpdatedAt),
		raw:         raw,
	}

	patients := []*Party{raw.PatientID.Embedded, raw.Patient.Embedded}
	n.PatientName = firstNonEmpty(raw.PatientName, firstDisplayName(patients))
	n.PatientPhone = firstNonEmpty(raw.PatientPhone, firstTelephone(patients))

	n.DoctorName, n.Specialization = resolveDoctor(raw)
	return n
}

// NormalizeAll never returns nil, so an empty result is still "data present".
func NormalizeAll(raws []RawAppointment) []NormalizedAppointment {
	out := make([]NormalizedAppointment, 0, len(raws))
	for _, r := range raws {
		out = append(out, Normalize(r))
	}
	return out
}

func resolveDoctor(raw RawAppointment) (name, specialization string) {
	if name = firstNonEmpty(raw.DoctorName); name != "" {
		return name, raw.Specialization
	}
	for _, doc := range []*Party{raw.DoctorID.Embedded, raw.Doctor.Embedded} {
		if name = doc.DisplayName(); name != "" {
			return name, doc.Specialization
		}
	}
	return "", raw.Specialization
}

func firstDisplayName(parties []*Party) string {
	for _, p := range parties {
		if name := p.DisplayName(); name != "" {
			return name
		}
	}
	return ""
}

func firstTelephone(parties []*Party) string {
	for _, p := range parties {
		if phone := p.Telephone(); phone != "" {
			return phone
		}
	}
	return ""
}
