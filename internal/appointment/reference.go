package appointment

import (
	"bytes"
	"strings"

	"github.com/goccy/go-json"
)

// Party is the embedded form of a patient, doctor or clinic reference.
type Party struct {
	ObjectID       string `json:"_id,omitempty"`
	ID             string `json:"id,omitempty"`
	Name           string `json:"name,omitempty"`
	FirstName      string `json:"firstName,omitempty"`
	LastName       string `json:"lastName,omitempty"`
	Phone          string `json:"phone,omitempty"`
	PhoneNumber    string `json:"phoneNumber,omitempty"`
	Specialization string `json:"specialization,omitempty"`
}

// Identifier prefers "_id" over "id".
func (p *Party) Identifier() string {
	if p == nil {
		return ""
	}
	if p.ObjectID != "" {
		return p.ObjectID
	}
	return p.ID
}

// DisplayName is the name field, else "first last" built from whichever parts exist.
func (p *Party) DisplayName() string {
	if p == nil {
		return ""
	}
	if name := strings.TrimSpace(p.Name); name != "" {
		return name
	}
	return strings.TrimSpace(strings.TrimSpace(p.FirstName) + " " + strings.TrimSpace(p.LastName))
}

// Telephone prefers "phone" over "phoneNumber".
func (p *Party) Telephone() string {
	if p == nil {
		return ""
	}
	if p.Phone != "" {
		return p.Phone
	}
	return p.PhoneNumber
}

func (p *Party) specialization() string {
	if p == nil {
		return ""
	}
	return p.Specialization
}

// Reference is either an identifier (ID set, Embedded nil) or an embedded
// object (Embedded set). The zero value is an absent reference.
type Reference struct {
	ID       string
	Embedded *Party

	raw json.RawMessage
}

// RefID builds a reference-by-identifier.
func RefID(id string) Reference {
	return Reference{ID: id}
}

// RefEmbedded builds an embedded-object reference.
func RefEmbedded(p Party) Reference {
	return Reference{Embedded: &p}
}

func (r Reference) IsZero() bool {
	return r.ID == "" && r.Embedded == nil
}

// Unwrap returns the referenced identifier whichever form the reference has.
func (r Reference) Unwrap() string {
	if r.Embedded != nil {
		return r.Embedded.Identifier()
	}
	return r.ID
}

func (r *Reference) UnmarshalJSON(data []byte) error {
	*r = Reference{}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	r.raw = append(json.RawMessage(nil), trimmed...)

	switch trimmed[0] {
	case '"':
		return json.Unmarshal(trimmed, &r.ID)
	case '{':
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return err
		}
		p := &Party{
			ObjectID:       stringField(fields, "_id"),
			ID:             stringField(fields, "id"),
			Name:           stringField(fields, "name"),
			FirstName:      stringField(fields, "firstName"),
			LastName:       stringField(fields, "lastName"),
			Phone:          stringField(fields, "phone"),
			PhoneNumber:    stringField(fields, "phoneNumber"),
			Specialization: stringField(fields, "specialization"),
		}
		r.Embedded = p
		return nil
	default:
		// numeric identifiers
		var n json.Number
		if err := json.Unmarshal(trimmed, &n); err == nil {
			r.ID = n.String()
		}
		return nil
	}
}

// MarshalJSON emits the reference exactly as it was received when decoded.
func (r Reference) MarshalJSON() ([]byte, error) {
	if len(r.raw) > 0 {
		return r.raw, nil
	}
	if r.Embedded != nil {
		return json.Marshal(r.Embedded)
	}
	if r.ID != "" {
		return json.Marshal(r.ID)
	}
	return []byte("null"), nil
}

// stringField reads a string (or number) field, treating any other type as absent.
func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok || len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
