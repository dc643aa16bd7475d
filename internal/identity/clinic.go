package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// ClinicDataSource reads the "_id" (then "id") of the stored active clinic record.
type ClinicDataSource struct {
	Store Store
}

func (s ClinicDataSource) ClinicID(ctx context.Context) (string, error) {
	obj, err := loadObject(ctx, s.Store, KeyClinicData)
	if err != nil || obj == nil {
		return "", err
	}
	return objectID(obj), nil
}

// UserDataSource reads the clinic reference embedded in the stored user record.
// The reference lives under "clinicId" or "clinic" and is either an identifier
// or an object carrying "_id"/"id".
type UserDataSource struct {
	Store Store
}

func (s UserDataSource) ClinicID(ctx context.Context) (string, error) {
	obj, err := loadObject(ctx, s.Store, KeyUserData)
	if err != nil || obj == nil {
		return "", err
	}
	for _, field := range []string{"clinicId", "clinic"} {
		raw, ok := obj[field]
		if !ok {
			continue
		}
		if id := scalarID(raw); id != "" {
			return id, nil
		}
		var nested map[string]json.RawMessage
		if err := json.Unmarshal(raw, &nested); err == nil {
			if id := objectID(nested); id != "" {
				return id, nil
			}
		}
	}
	return "", nil
}

// DefaultClinicSource reads the plain "defaultClinicId" value.
type DefaultClinicSource struct {
	Store Store
}

func (s DefaultClinicSource) ClinicID(ctx context.Context) (string, error) {
	v, ok, err := s.Store.Get(ctx, KeyDefaultClinicID)
	if err != nil || !ok {
		return "", err
	}
	return strings.TrimSpace(v), nil
}

func loadObject(ctx context.Context, store Store, key string) (map[string]json.RawMessage, error) {
	raw, ok, err := store.Get(ctx, key)
	if err != nil || !ok || strings.TrimSpace(raw) == "" {
		return nil, err
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return obj, nil
}

func objectID(obj map[string]json.RawMessage) string {
	for _, field := range []string{"_id", "id"} {
		if id := scalarID(obj[field]); id != "" {
			return id
		}
	}
	return ""
}

// scalarID accepts a JSON string or number.
func scalarID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
