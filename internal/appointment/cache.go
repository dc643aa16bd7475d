package appointment

import (
	"slices"
	"sync"
	"time"
)

const DefaultCacheTTL = 5 * time.Minute

// CacheEntry is one list result and the request that produced it.
type CacheEntry struct {
	Data       []NormalizedAppointment
	CapturedAt time.Time
	ClinicID   string
	Params     QueryParams

	key string
}

func (e *CacheEntry) validFor(clinicID, key string, now time.Time, ttl time.Duration) bool {
	return e != nil &&
		e.Data != nil &&
		!e.CapturedAt.IsZero() &&
		now.Sub(e.CapturedAt) < ttl &&
		e.ClinicID == clinicID &&
		e.key == key
}

// ListCache holds at most one list result. Storing replaces the slot whatever
// the previous entry's query was.
//
// Invalidate bumps a generation counter. A result fetched before an
// invalidation is dropped by StoreAt instead of resurrecting stale data.
type ListCache struct {
	mu    sync.RWMutex
	entry *CacheEntry
	gen   uint64
	ttl   time.Duration
	now   func() time.Time
}

func NewListCache(ttl time.Duration, now func() time.Time) *ListCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if now == nil {
		now = time.Now
	}
	return &ListCache{ttl: ttl, now: now}
}

// Lookup returns a copy of the cached data when the slot is valid for the request.
func (c *ListCache) Lookup(clinicID string, params QueryParams) ([]NormalizedAppointment, bool) {
	key := params.Canonical()
	c.mu.RLock()
	entry := c.entry
	c.mu.RUnlock()

	if !entry.validFor(clinicID, key, c.now(), c.ttl) {
		return nil, false
	}
	return slices.Clone(entry.Data), true
}

// Generation identifies the current invalidation epoch.
func (c *ListCache) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen
}

// Store replaces the slot with data captured now.
func (c *ListCache) Store(clinicID string, params QueryParams, data []NormalizedAppointment) {
	c.StoreAt(c.Generation(), clinicID, params, data)
}

// StoreAt replaces the slot only if no invalidation happened since gen was
// read. It reports whether the entry was stored.
func (c *ListCache) StoreAt(gen uint64, clinicID string, params QueryParams, data []NormalizedAppointment) bool {
	if data == nil {
		data = []NormalizedAppointment{}
	}
	entry := &CacheEntry{
		Data:       slices.Clone(data),
		CapturedAt: c.now(),
		ClinicID:   clinicID,
		Params:     params.Clone(),
		key:        params.Canonical(),
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	c.entry = entry
	return true
}

func (c *ListCache) Invalidate() {
	c.mu.Lock()
	c.entry = nil
	c.gen++
	c.mu.Unlock()
}

// Snapshot returns the current entry, or nil.
func (c *ListCache) Snapshot() *CacheEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.entry == nil {
		return nil
	}
	cp := *c.entry
	cp.Data = slices.Clone(c.entry.Data)
	return &cp
}
