// Package identity holds the session key-value store the gateway reads its
// credential and clinic context from.
package identity

import (
	"context"
	"sync"
)

// Well-known keys.
const (
	KeyToken           = "token"
	KeyClinicData      = "clinicData"
	KeyUserData        = "userData"
	KeyDefaultClinicID = "defaultClinicId"
)

// Store is a string keyed get/set/remove interface. Get reports ok=false for a
// missing key; err is reserved for store failures.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// MemoryStore keeps values in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}
