package admission

import (
	"context"
	"sync"
	"time"
)

type memRecord struct {
	rec       CapacityRecord
	holders   map[string]bool
	expiresAt time.Time
}

// MemoryCapacityStore is an in-process CapacityStore.
//
// It is safe for concurrent use by multiple goroutines, but its state is
// local to the process and is not shared across replicas. Use
// RedisCapacityStore when the capacity invariant must hold across multiple
// instances.
type MemoryCapacityStore struct {
	mu      sync.Mutex
	records map[string]*memRecord
	now     func() time.Time
}

// NewMemoryCapacityStore constructs a MemoryCapacityStore. now may be nil,
// in which case time.Now is used; tests inject their own clock to exercise
// TTL expiry.
func NewMemoryCapacityStore(now func() time.Time) *MemoryCapacityStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryCapacityStore{
		records: make(map[string]*memRecord),
		now:     now,
	}
}

// live returns the record for resourceID, dropping it first if expired.
func (m *MemoryCapacityStore) live(resourceID string) *memRecord {
	rec, ok := m.records[resourceID]
	if !ok {
		return nil
	}
	if !rec.expiresAt.IsZero() && !m.now().Before(rec.expiresAt) {
		delete(m.records, resourceID)
		return nil
	}
	return rec
}

// TryAcquire checks and increments in one critical section.
func (m *MemoryCapacityStore) TryAcquire(ctx context.Context, resourceID, holderID string) (AcquireResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := m.live(resourceID)
	if rec == nil {
		return AcquireResult{Status: AcquireMissing}, nil
	}
	if rec.rec.CurrentCount >= rec.rec.MaxCount {
		return AcquireResult{Status: AcquireFull, Count: rec.rec.CurrentCount}, nil
	}
	rec.rec.CurrentCount++
	if holderID != "" {
		rec.holders[holderID] = true
	}
	return AcquireResult{Status: AcquireGranted, Count: rec.rec.CurrentCount}, nil
}

// ReleaseOne decrements with a floor at zero.
func (m *MemoryCapacityStore) ReleaseOne(ctx context.Context, resourceID, holderID string) (ReleaseResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := m.live(resourceID)
	if rec == nil {
		return ReleaseResult{Status: ReleaseMissing}, nil
	}
	if rec.rec.CurrentCount <= 0 {
		return ReleaseResult{Status: ReleaseAtFloor, Count: rec.rec.CurrentCount}, nil
	}
	rec.rec.CurrentCount--
	if holderID != "" {
		delete(rec.holders, holderID)
	}
	return ReleaseResult{Status: ReleaseDone, Count: rec.rec.CurrentCount}, nil
}

// InitIfAbsent creates the record only when no live record exists.
func (m *MemoryCapacityStore) InitIfAbsent(ctx context.Context, rec CapacityRecord, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.live(rec.ResourceID) != nil {
		return false, nil
	}
	var expires time.Time
	if ttl > 0 {
		expires = m.now().Add(ttl)
	}
	m.records[rec.ResourceID] = &memRecord{
		rec:       rec,
		holders:   make(map[string]bool),
		expiresAt: expires,
	}
	return true, nil
}

// Snapshot returns a copy of the live record.
func (m *MemoryCapacityStore) Snapshot(ctx context.Context, resourceID string) (CapacityRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := m.live(resourceID)
	if rec == nil {
		return CapacityRecord{}, false, nil
	}
	return rec.rec, true, nil
}

// ActiveResources lists ids with live records.
func (m *MemoryCapacityStore) ActiveResources(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.records))
	for id := range m.records {
		if m.live(id) != nil {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// ForceCount overwrites the count and refreshes the TTL of a live record.
func (m *MemoryCapacityStore) ForceCount(ctx context.Context, resourceID string, count int64, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := m.live(resourceID)
	if rec == nil {
		return nil
	}
	rec.rec.CurrentCount = count
	if ttl > 0 {
		rec.expiresAt = m.now().Add(ttl)
	}
	return nil
}

// Drop removes a record outright; tests use it to simulate TTL expiry races.
func (m *MemoryCapacityStore) Drop(resourceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, resourceID)
}
